package client

import (
	"encoding/json"
	"fmt"
	"github.com/ValentinKolb/dStats/lib/db"
	"github.com/ValentinKolb/dStats/rpc/common"
	"github.com/ValentinKolb/dStats/rpc/serializer"
	"github.com/ValentinKolb/dStats/rpc/transport"
)

// NewRPCStore connects transport and returns a store client for the given shard.
// The returned Handle closes the transport on Close.
func NewRPCStore(
	shardId uint64,
	config common.ClientConfig,
	transport transport.IRPCClientTransport,
	serializer serializer.IRPCSerializer,
) (Handle, error) {

	if err := transport.Connect(config); err != nil {
		return nil, err
	}

	return &rpcStore{
		rpcClientAdapter{
			shardId:    shardId,
			config:     config,
			transport:  transport,
			serializer: serializer,
		},
	}, nil
}

// rpcStore implements store.IStore by forwarding every call to a server shard
type rpcStore struct {
	rpcClientAdapter
}

// --------------------------------------------------------------------------
// Interface Methods (docu see store.IStore)
// --------------------------------------------------------------------------

func (i *rpcStore) Set(key string, value []byte) error {
	_, err := i.invoke(common.NewSetRequest(key, value))
	return err
}

func (i *rpcStore) SetIfUnset(key string, value []byte) (bool, error) {
	resp, err := i.invoke(common.NewSetIfUnsetRequest(key, value))
	if err != nil {
		return false, err
	}
	return resp.Ok, nil
}

func (i *rpcStore) SetMulti(entries map[string][]byte) error {
	if len(entries) == 0 {
		return nil
	}
	_, err := i.invoke(common.NewSetMultiRequest(entries))
	return err
}

func (i *rpcStore) Incr(key string, delta uint64) (uint64, error) {
	resp, err := i.invoke(common.NewIncrRequest(key, delta))
	if err != nil {
		return 0, err
	}
	return resp.Counter, nil
}

func (i *rpcStore) Delete(key string) error {
	_, err := i.invoke(common.NewDeleteRequest(key))
	return err
}

func (i *rpcStore) DeleteMulti(keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	_, err := i.invoke(common.NewDeleteMultiRequest(keys))
	return err
}

func (i *rpcStore) Get(key string) ([]byte, bool, error) {
	resp, err := i.invoke(common.NewGetRequest(key))
	if err != nil {
		return nil, false, err
	}
	return resp.Value, resp.Ok, nil
}

func (i *rpcStore) GetMulti(keys []string) (map[string][]byte, error) {
	if len(keys) == 0 {
		return map[string][]byte{}, nil
	}
	resp, err := i.invoke(common.NewGetMultiRequest(keys))
	if err != nil {
		return nil, err
	}
	if resp.Entries == nil {
		return map[string][]byte{}, nil
	}
	return resp.Entries, nil
}

func (i *rpcStore) Has(key string) (bool, error) {
	resp, err := i.invoke(common.NewHasRequest(key))
	if err != nil {
		return false, err
	}
	return resp.Ok, nil
}

func (i *rpcStore) Keys(prefix string) ([]string, error) {
	resp, err := i.invoke(common.NewKeysRequest(prefix))
	if err != nil {
		return nil, err
	}
	return resp.Keys, nil
}

func (i *rpcStore) GetDBInfo() (db.DatabaseInfo, error) {
	resp, err := i.invoke(common.NewDBInfoRequest())
	if err != nil {
		return db.DatabaseInfo{}, err
	}
	var info db.DatabaseInfo
	if err := json.Unmarshal(resp.Meta, &info); err != nil {
		return db.DatabaseInfo{}, fmt.Errorf("RPC client - invalid db info: %w", err)
	}
	return info, nil
}
