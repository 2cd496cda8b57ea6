package server

import (
	"encoding/json"
	"fmt"
	"github.com/ValentinKolb/dStats/lib/store"
	"github.com/ValentinKolb/dStats/rpc/common"
)

// NewIStoreServerAdapter creates an adapter that serves store.IStore requests
func NewIStoreServerAdapter() IRPCServerAdapter {
	return &iStoreServerAdapterImpl{}
}

type iStoreServerAdapterImpl struct{}

func (adapter *iStoreServerAdapterImpl) Handle(req *common.Message, store store.IStore) *common.Message {
	// Check for nil store
	if store == nil {
		return common.NewErrorResponse("handler: store is nil")
	}

	// Handle different message types
	switch req.MsgType {
	case common.MsgTKVSet:
		return common.NewSetResponse(store.Set(req.Key, req.Value))
	case common.MsgTKVSetIfUnset:
		stored, err := store.SetIfUnset(req.Key, req.Value)
		return common.NewSetIfUnsetResponse(stored, err)
	case common.MsgTKVSetMulti:
		return common.NewSetMultiResponse(store.SetMulti(req.Entries))
	case common.MsgTKVIncr:
		value, err := store.Incr(req.Key, req.Delta)
		return common.NewIncrResponse(value, err)
	case common.MsgTKVDelete:
		return common.NewDeleteResponse(store.Delete(req.Key))
	case common.MsgTKVDeleteMulti:
		return common.NewDeleteMultiResponse(store.DeleteMulti(req.Keys))
	case common.MsgTKVGet:
		val, ok, err := store.Get(req.Key)
		return common.NewGetResponse(val, ok, err)
	case common.MsgTKVGetMulti:
		values, err := store.GetMulti(req.Keys)
		return common.NewGetMultiResponse(values, err)
	case common.MsgTKVHas:
		ok, err := store.Has(req.Key)
		return common.NewHasResponse(ok, err)
	case common.MsgTKVKeys:
		keys, err := store.Keys(req.Key)
		return common.NewKeysResponse(keys, err)
	case common.MsgTKVDBInfo:
		info, err := store.GetDBInfo()
		if err != nil {
			return common.NewDBInfoResponse(nil, err)
		}
		meta, err := json.Marshal(info)
		return common.NewDBInfoResponse(meta, err)
	default:
		return common.NewErrorResponse(
			fmt.Sprintf("RPC IStoreAdapter - Unsupported message type: %s", req.MsgType),
		)
	}
}
