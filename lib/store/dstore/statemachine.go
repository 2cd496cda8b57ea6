package dstore

import (
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/ValentinKolb/dStats/lib/db"
	"github.com/ValentinKolb/dStats/lib/store"
	"github.com/ValentinKolb/dStats/lib/store/dstore/internal"
	sm "github.com/lni/dragonboat/v4/statemachine"
)

// --------------------------------------------------------------------------
// State Machine Implementation
// --------------------------------------------------------------------------

// KVStateMachine is a state machine implementation for Dragonboat RAFT
type KVStateMachine struct {
	replicaID uint64
	shardID   uint64
	database  db.KVDB // the actual dataStorage
}

// CreateStateMachineFactory returns a function that can be used by dragonboat to create a new state machine for a node host
// The factory pattern is used to enable the caller to pass an interchangeable dbFactory
func CreateStateMachineFactory(dbFactory store.DBFactory) func(shardID uint64, replicaID uint64) sm.IConcurrentStateMachine {
	return func(shardID uint64, replicaID uint64) sm.IConcurrentStateMachine {
		return &KVStateMachine{
			replicaID: replicaID,
			shardID:   shardID,
			database:  dbFactory(),
		}
	}
}

func (fsm *KVStateMachine) unsupported(op fmt.Stringer) error {
	return store.NewError(store.RetCUnsupportedOperation, fmt.Sprintf("%s operation is not supported", op))
}

// Lookup handles read-only queries by mapping each Query operation to the corresponding KVDB method.
func (fsm *KVStateMachine) Lookup(itf interface{}) (interface{}, error) {
	q, ok := itf.(internal.Query)
	if !ok {
		return nil, store.NewError(store.RetCInternalError, fmt.Sprintf("invalid Query type: %T", itf))
	}

	switch q.Type {
	case internal.QueryTGet:
		if !fsm.database.SupportsFeature(db.FeatureGet) {
			return nil, fsm.unsupported(q.Type)
		}
		val, ok := fsm.database.Get(q.Key)
		return internal.QueryResult{Value: val, Ok: ok}, nil
	case internal.QueryTGetMulti:
		if !fsm.database.SupportsFeature(db.FeatureGet) {
			return nil, fsm.unsupported(q.Type)
		}
		values := make(map[string][]byte, len(q.Keys))
		for _, key := range q.Keys {
			if val, ok := fsm.database.Get(key); ok {
				values[key] = val
			}
		}
		return values, nil
	case internal.QueryTHas:
		if !fsm.database.SupportsFeature(db.FeatureHas) {
			return nil, fsm.unsupported(q.Type)
		}
		return fsm.database.Has(q.Key), nil
	case internal.QueryTKeys:
		if !fsm.database.SupportsFeature(db.FeatureKeys) {
			return nil, fsm.unsupported(q.Type)
		}
		return fsm.database.Keys(q.Key), nil
	case internal.QueryTGetDBInfo:
		return fsm.database.GetInfo(), nil
	default:
		return nil, store.NewError(store.RetCInvalidOperation, fmt.Sprintf("unknown Query operation: %d", q.Type))
	}
}

// Update handles write commands on the KVDB instance.
// The raft log index of an entry is used as the write index of every key it touches.
func (fsm *KVStateMachine) Update(entries []sm.Entry) ([]sm.Entry, error) {
	if len(entries) == 0 {
		return entries, nil
	}

	start := time.Now()

	for idx, e := range entries {
		entries[idx].Result = fsm.apply(e)
	}

	if elapsed := time.Since(start); elapsed > time.Millisecond {
		log.Infof("State machine took long to update. Batch updated %d entries, took %.2fms", len(entries), float64(elapsed)/float64(time.Millisecond))
	}
	return entries, nil
}

func (fsm *KVStateMachine) apply(e sm.Entry) sm.Result {
	fail := func(code store.RetCode, format string, args ...any) sm.Result {
		return sm.Result{Value: uint64(code), Data: []byte(fmt.Sprintf(format, args...))}
	}

	if len(e.Cmd) == 0 {
		return fail(store.RetCInvalidOperation, "empty command ignored")
	}

	cmd := internal.Command{}
	if err := cmd.Deserialize(e.Cmd); err != nil {
		return fail(store.RetCInternalError, "failed to deserialize command: %v", err)
	}

	feat, err := cmd.Type.ToDBFeature()
	if err != nil {
		return fail(store.RetCInvalidOperation, "unknown Command operation: %s", cmd.Type)
	}
	if !fsm.database.SupportsFeature(feat) {
		return fail(store.RetCUnsupportedOperation, "%s operation is not supported", cmd.Type)
	}

	switch cmd.Type {
	case internal.CommandTSet:
		for _, entry := range cmd.Entries {
			fsm.database.Set(entry.Key, entry.Value, e.Index)
		}
		return sm.Result{Value: uint64(store.RetCSuccess)}
	case internal.CommandTDelete:
		for _, entry := range cmd.Entries {
			fsm.database.Delete(entry.Key, e.Index)
		}
		return sm.Result{Value: uint64(store.RetCSuccess)}
	case internal.CommandTSetIfUnset:
		if len(cmd.Entries) != 1 {
			return fail(store.RetCInvalidOperation, "SetIfUnset expects one entry, got %d", len(cmd.Entries))
		}
		stored := fsm.database.SetIfUnset(cmd.Entries[0].Key, cmd.Entries[0].Value, e.Index)
		data := []byte{0}
		if stored {
			data[0] = 1
		}
		return sm.Result{Value: uint64(store.RetCSuccess), Data: data}
	case internal.CommandTIncr:
		if len(cmd.Entries) != 1 {
			return fail(store.RetCInvalidOperation, "Incr expects one entry, got %d", len(cmd.Entries))
		}
		v, ok := fsm.database.Incr(cmd.Entries[0].Key, cmd.Delta, e.Index)
		if !ok {
			return fail(store.RetCInvalidOperation, "value of %s is not a counter", cmd.Entries[0].Key)
		}
		data := make([]byte, 8)
		binary.BigEndian.PutUint64(data, v)
		return sm.Result{Value: uint64(store.RetCSuccess), Data: data}
	default:
		return fail(store.RetCInvalidOperation, "unknown Command operation: %s", cmd.Type)
	}
}

// PrepareSnapshot is not used. We don't need to prepare anything since we use fuzzy snapshotting
func (fsm *KVStateMachine) PrepareSnapshot() (interface{}, error) {
	return nil, nil
}

// SaveSnapshot saves a fuzzy db snapshot to the writer
func (fsm *KVStateMachine) SaveSnapshot(_ interface{}, writer io.Writer, _ sm.ISnapshotFileCollection, _ <-chan struct{}) error {
	if !fsm.database.SupportsFeature(db.FeatureSave) {
		return fmt.Errorf("the used KVDB implementation does not support Save() operations")
	}
	return fsm.database.Save(writer)
}

// RecoverFromSnapshot restores the database from a snapshot written by SaveSnapshot.
func (fsm *KVStateMachine) RecoverFromSnapshot(r io.Reader, _ []sm.SnapshotFile, _ <-chan struct{}) error {
	if !fsm.database.SupportsFeature(db.FeatureLoad) {
		return fmt.Errorf("the used KVDB implementation does not support Load() operations")
	}
	return fsm.database.Load(r)
}

// Close performs any necessary cleanup.
func (fsm *KVStateMachine) Close() error {
	return fsm.database.Close()
}
