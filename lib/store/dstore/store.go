package dstore

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/ValentinKolb/dStats/lib/db"
	"github.com/ValentinKolb/dStats/lib/store"
	"github.com/ValentinKolb/dStats/lib/store/dstore/internal"
	"github.com/lni/dragonboat/v4"
	"github.com/lni/dragonboat/v4/client"
	"github.com/lni/dragonboat/v4/logger"
	sm "github.com/lni/dragonboat/v4/statemachine"
)

var (
	retries = 5
	log     = logger.GetLogger("store")
)

// storeImpl is the raft backed implementation of store.IStore.
// It encapsulates a Dragonboat NodeHost which is used to communicate with the state machine.
type storeImpl struct {
	nh      *dragonboat.NodeHost
	shardID uint64
	cs      *client.Session
	timeout time.Duration
}

// NewDistributedStore creates a new distributed store instance which uses raft consensus to ensure strict linearizability
// across multiple nodes.
func NewDistributedStore(nh *dragonboat.NodeHost, shardID uint64, timeout time.Duration) store.IStore {
	return &storeImpl{
		nh:      nh,
		shardID: shardID,
		cs:      nh.GetNoOPSession(shardID),
		timeout: timeout,
	}
}

// --------------------------------------------------------------------------
// Internal write and read operations (used by interface methods)
// --------------------------------------------------------------------------

// write proposes a Command via SyncPropose and returns the state machine result.
// Busy errors are retried; any other failure is returned as a *store.Error.
func (s *storeImpl) write(cmd internal.Command) (sm.Result, error) {
	for i := 0; i < retries; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		res, err := s.nh.SyncPropose(ctx, s.cs, cmd.Serialize())
		cancel()

		if errors.Is(err, dragonboat.ErrSystemBusy) {
			log.Infof("SyncPropose: System busy, retrying (%d/%d)...", i+1, retries)
			time.Sleep(s.timeout / 10)
			continue
		}

		if err != nil {
			return res, store.NewError(store.RetCInternalError, err.Error())
		}
		if res.Value != uint64(store.RetCSuccess) {
			return res, store.NewError(store.RetCode(res.Value), string(res.Data))
		}
		return res, nil
	}
	return sm.Result{}, store.NewError(store.RetCInternalError, "timeout")
}

// read is a generic helper function that queries the state machine
// and converts the response into the expected type R.
//
// SyncRead is used by default; stale reads use the faster StaleRead and are
// only used for informational queries.
func read[R any](r *storeImpl, q internal.Query, stale bool) (R, error) {
	var zero R
	for i := 0; i < retries; i++ {
		var (
			res interface{}
			err error
		)

		if stale {
			res, err = r.nh.StaleRead(r.shardID, q)
		} else {
			ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
			res, err = r.nh.SyncRead(ctx, r.shardID, q)
			cancel()
		}

		if errors.Is(err, dragonboat.ErrSystemBusy) {
			log.Infof("SyncRead: System busy, retrying (%d/%d)...", i+1, retries)
			time.Sleep(r.timeout / 10)
			continue
		}

		if err != nil {
			var se *store.Error
			if errors.As(err, &se) {
				return zero, se
			}
			return zero, store.NewError(store.RetCInternalError, err.Error())
		}

		casted, ok := res.(R)
		if !ok {
			return zero, store.NewError(store.RetCInternalError,
				fmt.Sprintf("unexpected type: received %T, expected %T", res, zero))
		}
		return casted, nil
	}
	return zero, store.NewError(store.RetCInternalError, "timeout")
}

// --------------------------------------------------------------------------
// Interface Methods (docs see store/interface.go)
// --------------------------------------------------------------------------

func (s *storeImpl) Set(key string, value []byte) error {
	_, err := s.write(internal.Command{
		Type:    internal.CommandTSet,
		Entries: []internal.Entry{{Key: key, Value: value}},
	})
	return err
}

func (s *storeImpl) SetIfUnset(key string, value []byte) (bool, error) {
	res, err := s.write(internal.Command{
		Type:    internal.CommandTSetIfUnset,
		Entries: []internal.Entry{{Key: key, Value: value}},
	})
	if err != nil {
		return false, err
	}
	return len(res.Data) == 1 && res.Data[0] == 1, nil
}

func (s *storeImpl) SetMulti(entries map[string][]byte) error {
	if len(entries) == 0 {
		return nil
	}
	cmd := internal.Command{Type: internal.CommandTSet, Entries: make([]internal.Entry, 0, len(entries))}
	for key, value := range entries {
		cmd.Entries = append(cmd.Entries, internal.Entry{Key: key, Value: value})
	}
	_, err := s.write(cmd)
	return err
}

func (s *storeImpl) Incr(key string, delta uint64) (uint64, error) {
	res, err := s.write(internal.Command{
		Type:    internal.CommandTIncr,
		Delta:   delta,
		Entries: []internal.Entry{{Key: key}},
	})
	if err != nil {
		return 0, err
	}
	if len(res.Data) != 8 {
		return 0, store.NewError(store.RetCInternalError, "malformed Incr result")
	}
	return binary.BigEndian.Uint64(res.Data), nil
}

func (s *storeImpl) Delete(key string) error {
	return s.DeleteMulti([]string{key})
}

func (s *storeImpl) DeleteMulti(keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	cmd := internal.Command{Type: internal.CommandTDelete, Entries: make([]internal.Entry, len(keys))}
	for i, key := range keys {
		cmd.Entries[i].Key = key
	}
	_, err := s.write(cmd)
	return err
}

func (s *storeImpl) Get(key string) ([]byte, bool, error) {
	res, err := read[internal.QueryResult](s, internal.Query{Type: internal.QueryTGet, Key: key}, false)
	if err != nil {
		return nil, false, err
	}
	return res.Value, res.Ok, nil
}

func (s *storeImpl) GetMulti(keys []string) (map[string][]byte, error) {
	return read[map[string][]byte](s, internal.Query{Type: internal.QueryTGetMulti, Keys: keys}, false)
}

func (s *storeImpl) Has(key string) (bool, error) {
	return read[bool](s, internal.Query{Type: internal.QueryTHas, Key: key}, false)
}

func (s *storeImpl) Keys(prefix string) ([]string, error) {
	return read[[]string](s, internal.Query{Type: internal.QueryTKeys, Key: prefix}, false)
}

func (s *storeImpl) GetDBInfo() (db.DatabaseInfo, error) {
	return read[db.DatabaseInfo](
		s,
		internal.Query{Type: internal.QueryTGetDBInfo},
		true, // Note: allow for stale reads
	)
}
