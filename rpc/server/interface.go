package server

import (
	"github.com/ValentinKolb/dStats/lib/store"
	"github.com/ValentinKolb/dStats/rpc/common"
)

// IRPCServerAdapter turns a request message into calls on the shard's store.
// Failures are reported inside the returned message (MsgTError), never as a
// nil response.
type IRPCServerAdapter interface {
	Handle(req *common.Message, st store.IStore) (resp *common.Message)
}
