package dstore

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/ValentinKolb/dStats/lib/db"
	"github.com/ValentinKolb/dStats/lib/db/engines/maple"
	"github.com/ValentinKolb/dStats/lib/store"
	"github.com/ValentinKolb/dStats/lib/store/dstore/internal"
	sm "github.com/lni/dragonboat/v4/statemachine"
)

func newTestFSM() *KVStateMachine {
	factory := CreateStateMachineFactory(func() db.KVDB { return maple.NewMapleDB(nil) })
	return factory(1, 1).(*KVStateMachine)
}

func propose(t *testing.T, fsm *KVStateMachine, index uint64, cmd internal.Command) sm.Result {
	t.Helper()
	entries, err := fsm.Update([]sm.Entry{{Index: index, Cmd: cmd.Serialize()}})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	return entries[0].Result
}

func TestStateMachineWrites(t *testing.T) {
	fsm := newTestFSM()

	res := propose(t, fsm, 1, internal.Command{
		Type:    internal.CommandTSet,
		Entries: []internal.Entry{{Key: "record:0", Value: []byte("a")}, {Key: "record:1", Value: []byte("b")}},
	})
	if res.Value != uint64(store.RetCSuccess) {
		t.Fatalf("Set failed: %s", res.Data)
	}

	res = propose(t, fsm, 2, internal.Command{
		Type:    internal.CommandTIncr,
		Delta:   2,
		Entries: []internal.Entry{{Key: "record:count"}},
	})
	if binary.BigEndian.Uint64(res.Data) != 2 {
		t.Errorf("Expected counter 2, got %v", res.Data)
	}

	res = propose(t, fsm, 3, internal.Command{
		Type:    internal.CommandTSetIfUnset,
		Entries: []internal.Entry{{Key: "record:0", Value: []byte("c")}},
	})
	if !bytes.Equal(res.Data, []byte{0}) {
		t.Errorf("Expected SetIfUnset on an existing key to report not stored")
	}

	res = propose(t, fsm, 4, internal.Command{
		Type:    internal.CommandTIncr,
		Delta:   1,
		Entries: []internal.Entry{{Key: "record:0"}},
	})
	if res.Value != uint64(store.RetCInvalidOperation) {
		t.Errorf("Expected Incr on a non counter to fail, got code %d", res.Value)
	}

	propose(t, fsm, 5, internal.Command{
		Type:    internal.CommandTDelete,
		Entries: []internal.Entry{{Key: "record:1"}},
	})

	values, err := fsm.Lookup(internal.Query{Type: internal.QueryTGetMulti, Keys: []string{"record:0", "record:1"}})
	if err != nil {
		t.Fatal(err)
	}
	m := values.(map[string][]byte)
	if len(m) != 1 || string(m["record:0"]) != "a" {
		t.Errorf("Unexpected state after writes: %v", m)
	}
}

func TestStateMachineRejectsGarbage(t *testing.T) {
	fsm := newTestFSM()
	entries, err := fsm.Update([]sm.Entry{{Index: 1, Cmd: nil}, {Index: 2, Cmd: []byte{1, 2}}})
	if err != nil {
		t.Fatal(err)
	}
	for i, e := range entries {
		if e.Result.Value == uint64(store.RetCSuccess) {
			t.Errorf("entry %d: expected failure code", i)
		}
	}
}

func TestStateMachineSnapshot(t *testing.T) {
	fsm := newTestFSM()
	propose(t, fsm, 7, internal.Command{
		Type:    internal.CommandTSet,
		Entries: []internal.Entry{{Key: "pids", Value: []byte(`["a"]`)}},
	})

	var buf bytes.Buffer
	if err := fsm.SaveSnapshot(nil, &buf, nil, nil); err != nil {
		t.Fatalf("SaveSnapshot failed: %v", err)
	}

	restored := newTestFSM()
	if err := restored.RecoverFromSnapshot(&buf, nil, nil); err != nil {
		t.Fatalf("RecoverFromSnapshot failed: %v", err)
	}

	keys, err := restored.Lookup(internal.Query{Type: internal.QueryTKeys, Key: "pid"})
	if err != nil {
		t.Fatal(err)
	}
	if got := keys.([]string); len(got) != 1 || got[0] != "pids" {
		t.Errorf("Unexpected keys after restore: %v", got)
	}

	// replaying an entry older than the snapshot must not override it
	propose(t, restored, 3, internal.Command{
		Type:    internal.CommandTSet,
		Entries: []internal.Entry{{Key: "pids", Value: []byte(`[]`)}},
	})
	res, _ := restored.Lookup(internal.Query{Type: internal.QueryTGet, Key: "pids"})
	if string(res.(internal.QueryResult).Value) != `["a"]` {
		t.Errorf("Stale replay overwrote snapshot state")
	}
}
