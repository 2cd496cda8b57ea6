// Package testing provides a conformance suite for store.IStore implementations.
package testing

import (
	"fmt"
	"sync"
	"testing"

	"github.com/ValentinKolb/dStats/lib/store"
)

// StoreFactory creates a fresh, empty store for one subtest.
type StoreFactory func() store.IStore

// RunStoreTests runs the IStore contract tests against the store returned by factory.
func RunStoreTests(t *testing.T, name string, factory StoreFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("SetGet", func(t *testing.T) {
			testSetGet(t, factory())
		})

		t.Run("SetIfUnset", func(t *testing.T) {
			testSetIfUnset(t, factory())
		})

		t.Run("Multi", func(t *testing.T) {
			testMulti(t, factory())
		})

		t.Run("Incr", func(t *testing.T) {
			testIncr(t, factory())
		})

		t.Run("Keys", func(t *testing.T) {
			testKeys(t, factory())
		})

		t.Run("Info", func(t *testing.T) {
			testInfo(t, factory())
		})
	})
}

func testSetGet(t *testing.T, s store.IStore) {
	if err := s.Set("record:0", []byte("commit")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	value, ok, err := s.Get("record:0")
	if err != nil || !ok || string(value) != "commit" {
		t.Errorf("Get returned %q, %v, %v", value, ok, err)
	}

	if has, _ := s.Has("record:0"); !has {
		t.Errorf("Expected Has to report the key")
	}

	if err := s.Delete("record:0"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, ok, _ = s.Get("record:0"); ok {
		t.Errorf("Expected key to be deleted")
	}
	if err := s.Delete("record:0"); err != nil {
		t.Errorf("Deleting a missing key must not fail: %v", err)
	}
}

func testSetIfUnset(t *testing.T, s store.IStore) {
	stored, err := s.SetIfUnset("lock:writer", []byte("a"))
	if err != nil || !stored {
		t.Fatalf("Expected first SetIfUnset to store, got %v, %v", stored, err)
	}

	stored, err = s.SetIfUnset("lock:writer", []byte("b"))
	if err != nil || stored {
		t.Errorf("Expected second SetIfUnset to be rejected, got %v, %v", stored, err)
	}

	value, _, _ := s.Get("lock:writer")
	if string(value) != "a" {
		t.Errorf("Expected value a, got %s", value)
	}
}

func testMulti(t *testing.T, s store.IStore) {
	entries := map[string][]byte{
		"update:0": []byte("3"),
		"update:1": []byte("4"),
		"update:2": []byte("3"),
	}
	if err := s.SetMulti(entries); err != nil {
		t.Fatalf("SetMulti failed: %v", err)
	}

	values, err := s.GetMulti([]string{"update:0", "update:1", "update:2", "update:9"})
	if err != nil {
		t.Fatalf("GetMulti failed: %v", err)
	}
	if len(values) != 3 {
		t.Errorf("Expected 3 values, got %d", len(values))
	}
	if _, ok := values["update:9"]; ok {
		t.Errorf("Missing keys must be absent from GetMulti results")
	}

	if err := s.DeleteMulti([]string{"update:0", "update:1"}); err != nil {
		t.Fatalf("DeleteMulti failed: %v", err)
	}
	values, _ = s.GetMulti([]string{"update:0", "update:1", "update:2"})
	if len(values) != 1 || string(values["update:2"]) != "3" {
		t.Errorf("Unexpected values after DeleteMulti: %v", values)
	}
}

func testIncr(t *testing.T, s store.IStore) {
	const workers, perWorker = 4, 50
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				if _, err := s.Incr("user:count", 1); err != nil {
					t.Errorf("Incr failed: %v", err)
				}
			}
		}()
	}
	wg.Wait()

	v, err := s.Incr("user:count", 0)
	if err != nil || v != workers*perWorker {
		t.Errorf("Expected counter %d, got %d (%v)", workers*perWorker, v, err)
	}

	if err := s.Set("companies", []byte("[]")); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Incr("companies", 1); err == nil {
		t.Errorf("Expected Incr on a non counter value to fail")
	}
}

func testKeys(t *testing.T, s store.IStore) {
	for i := 0; i < 5; i++ {
		if err := s.Set(fmt.Sprintf("pid:%d", i), []byte("0")); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Set("pids", []byte("[]")); err != nil {
		t.Fatal(err)
	}

	keys, err := s.Keys("pid:")
	if err != nil {
		t.Fatalf("Keys failed: %v", err)
	}
	if len(keys) != 5 || keys[0] != "pid:0" || keys[4] != "pid:4" {
		t.Errorf("Unexpected keys: %v", keys)
	}
}

func testInfo(t *testing.T, s store.IStore) {
	if err := s.Set("a", []byte("b")); err != nil {
		t.Fatal(err)
	}
	info, err := s.GetDBInfo()
	if err != nil {
		t.Fatalf("GetDBInfo failed: %v", err)
	}
	if info.Keys < 1 {
		t.Errorf("Expected at least one key, got %d", info.Keys)
	}
}
