package client

import (
	"github.com/ValentinKolb/dStats/lib/lockmgr"
	"github.com/ValentinKolb/dStats/rpc/common"
	"github.com/ValentinKolb/dStats/rpc/serializer"
	"github.com/ValentinKolb/dStats/rpc/transport"
)

// NewRPCLockMgr connects transport and returns a lock manager client for the given shard
func NewRPCLockMgr(
	shardId uint64,
	config common.ClientConfig,
	transport transport.IRPCClientTransport,
	serializer serializer.IRPCSerializer,
) (lockmgr.ILockManager, error) {

	if err := transport.Connect(config); err != nil {
		return nil, err
	}

	return &rpcLockMgr{
		rpcClientAdapter{
			shardId:    shardId,
			config:     config,
			transport:  transport,
			serializer: serializer,
		},
	}, nil
}

// rpcLockMgr implements lockmgr.ILockManager by forwarding every call to a server shard
type rpcLockMgr struct {
	rpcClientAdapter
}

// --------------------------------------------------------------------------
// Interface Methods (docu see lockmgr.ILockManager)
// --------------------------------------------------------------------------

func (i *rpcLockMgr) AcquireLock(key string) (bool, []byte, error) {
	resp, err := i.invoke(common.NewAcquireRequest(key))
	if err != nil {
		return false, nil, err
	}
	return resp.Ok, resp.Value, nil
}

func (i *rpcLockMgr) ReleaseLock(key string, ownerID []byte) (bool, error) {
	resp, err := i.invoke(common.NewReleaseRequest(key, ownerID))
	if err != nil {
		return false, err
	}
	return resp.Ok, nil
}
