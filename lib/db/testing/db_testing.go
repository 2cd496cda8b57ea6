package testing

import (
	"bytes"
	"fmt"
	"sync"
	"testing"

	"github.com/ValentinKolb/dStats/lib/db"
)

// DBFactory is a function that creates a new instance of a KVDB implementation
type DBFactory func() db.KVDB

// RunKVDBTests runs a comprehensive test suite for a KVDB implementation.
func RunKVDBTests(t *testing.T, name string, factory DBFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("Set&Get", func(t *testing.T) {
			testSetGet(t, factory())
		})

		t.Run("Delete", func(t *testing.T) {
			testDelete(t, factory())
		})

		t.Run("Has", func(t *testing.T) {
			testHas(t, factory())
		})

		t.Run("SetIfUnset", func(t *testing.T) {
			testSetIfUnset(t, factory())
		})

		t.Run("Incr", func(t *testing.T) {
			testIncr(t, factory())
		})

		t.Run("ConcurrentIncr", func(t *testing.T) {
			testConcurrentIncr(t, factory())
		})

		t.Run("Keys", func(t *testing.T) {
			testKeys(t, factory())
		})

		t.Run("StaleWrites", func(t *testing.T) {
			testStaleWrites(t, factory())
		})

		t.Run("SaveLoad", func(t *testing.T) {
			testSaveLoad(t, factory)
		})

		t.Run("EdgeCases", func(t *testing.T) {
			testEdgeCases(t, factory())
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

// Checks if the database supports the specified feature
// Skip the test if it is not supported
func requireFeature(t testing.TB, database db.KVDB, feature db.Feature) {
	if !database.SupportsFeature(feature) {
		t.Skip()
	}
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testSetGet(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet|db.FeatureGet)

	testKey := "record:1"
	testValue1 := []byte("test-value1")
	testValue2 := []byte("test-value2")

	database.Set(testKey, testValue1, 1)

	result, exists := database.Get(testKey)
	if !exists {
		t.Errorf("Expected key %s to exist after Set", testKey)
	}
	if !bytes.Equal(result, testValue1) {
		t.Errorf("Expected value %s, got %s", testValue1, result)
	}

	database.Set(testKey, testValue2, 2)

	result, _ = database.Get(testKey)
	if !bytes.Equal(result, testValue2) {
		t.Errorf("Expected value %s, got %s", testValue2, result)
	}

	if _, exists = database.Get("nonexistent-key"); exists {
		t.Errorf("Expected nonexistent key to return exists=false")
	}

	retrievedValue, _ := database.Get(testKey)
	retrievedValue[0] = 'X'

	originalValue, _ := database.Get(testKey)
	if bytes.Equal(retrievedValue, originalValue) {
		t.Errorf("Get should return a copy, not a reference to the stored value")
	}
}

func testDelete(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet|db.FeatureDelete|db.FeatureGet)

	database.Set("update:0", []byte("7"), 1)
	database.Delete("update:0", 2)

	if _, exists := database.Get("update:0"); exists {
		t.Errorf("Expected key to be gone after Delete")
	}

	// deleting a missing key is a no-op
	database.Delete("update:1", 3)
	if database.Has("update:1") {
		t.Errorf("Delete of a missing key must not create it")
	}
}

func testHas(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet|db.FeatureHas)

	if database.Has("pid:reader") {
		t.Errorf("Expected Has to be false for unknown key")
	}

	database.Set("pid:reader", []byte("12"), 1)
	if !database.Has("pid:reader") {
		t.Errorf("Expected Has to be true after Set")
	}

	database.Set("empty", nil, 2)
	if !database.Has("empty") {
		t.Errorf("Expected Has to be true for a key with an empty value")
	}
}

func testSetIfUnset(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSetIfUnset|db.FeatureGet)

	if !database.SetIfUnset("lock:writer", []byte("owner-a"), 1) {
		t.Errorf("Expected first SetIfUnset to store the value")
	}
	if database.SetIfUnset("lock:writer", []byte("owner-b"), 2) {
		t.Errorf("Expected second SetIfUnset to be rejected")
	}

	value, _ := database.Get("lock:writer")
	if string(value) != "owner-a" {
		t.Errorf("Expected owner-a to hold the key, got %s", value)
	}
}

func testIncr(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureIncr|db.FeatureGet|db.FeatureSet)

	v, ok := database.Incr("record:count", 1, 1)
	if !ok || v != 1 {
		t.Errorf("Expected first Incr to return 1, got %d (ok=%v)", v, ok)
	}

	v, _ = database.Incr("record:count", 5, 2)
	if v != 6 {
		t.Errorf("Expected counter to be 6, got %d", v)
	}

	raw, _ := database.Get("record:count")
	if string(raw) != "6" {
		t.Errorf("Expected counter to be stored as decimal text, got %q", raw)
	}

	database.Set("not-a-counter", []byte("hello"), 3)
	if _, ok = database.Incr("not-a-counter", 1, 4); ok {
		t.Errorf("Expected Incr on a non numeric value to fail")
	}
	raw, _ = database.Get("not-a-counter")
	if string(raw) != "hello" {
		t.Errorf("Failed Incr must not modify the value, got %q", raw)
	}
}

func testConcurrentIncr(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureIncr)

	const workers, perWorker = 8, 250
	var wg sync.WaitGroup
	var mu sync.Mutex
	seen := make(map[uint64]bool)

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				v, _ := database.Incr("update:count", 1, 0)
				mu.Lock()
				if seen[v] {
					t.Errorf("Counter value %d handed out twice", v)
				}
				seen[v] = true
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()

	if len(seen) != workers*perWorker {
		t.Errorf("Expected %d distinct values, got %d", workers*perWorker, len(seen))
	}
}

func testKeys(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureKeys|db.FeatureSet)

	for i := 0; i < 3; i++ {
		database.Set(fmt.Sprintf("user:%d", i), []byte("u"), uint64(i+1))
	}
	database.Set("record:0", []byte("r"), 10)

	keys := database.Keys("user:")
	expected := []string{"user:0", "user:1", "user:2"}
	if fmt.Sprint(keys) != fmt.Sprint(expected) {
		t.Errorf("Expected %v, got %v", expected, keys)
	}

	if all := database.Keys(""); len(all) != 4 {
		t.Errorf("Expected 4 keys without prefix, got %d", len(all))
	}
}

func testStaleWrites(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet|db.FeatureGet)

	database.Set("settings", []byte("new"), 10)
	database.Set("settings", []byte("old"), 5)

	value, _ := database.Get("settings")
	if string(value) != "new" {
		t.Errorf("Stale write overwrote newer value, got %s", value)
	}
	if database.WriteIdx() != 10 {
		t.Errorf("Expected write index 10, got %d", database.WriteIdx())
	}
}

func testSaveLoad(t *testing.T, factory DBFactory) {
	database := factory()
	database2 := factory()

	defer database.Close()
	defer database2.Close()

	requireFeature(t, database, db.FeatureSet|db.FeatureGet|db.FeatureSave|db.FeatureLoad)

	numEntries := 1000
	for i := 0; i < numEntries; i++ {
		database.Set(fmt.Sprintf("record:%d", i), []byte(fmt.Sprintf("value-%d", i)), uint64(i+1))
	}

	var buf bytes.Buffer
	if err := database.Save(&buf); err != nil {
		t.Fatalf("Unexpected error during Save: %v", err)
	}
	if err := database2.Load(&buf); err != nil {
		t.Fatalf("Unexpected error during Load: %v", err)
	}

	for i := 0; i < numEntries; i++ {
		key := fmt.Sprintf("record:%d", i)
		actual, exists := database2.Get(key)
		if !exists {
			t.Errorf("Key %s not found after Load", key)
			continue
		}
		if string(actual) != fmt.Sprintf("value-%d", i) {
			t.Errorf("Value mismatch for key %s: got %s", key, actual)
		}
	}

	if database2.WriteIdx() != uint64(numEntries) {
		t.Errorf("Expected restored write index %d, got %d", numEntries, database2.WriteIdx())
	}

	if err := database2.Load(bytes.NewReader([]byte("garbage"))); err == nil {
		t.Errorf("Expected Load to reject an invalid snapshot")
	}
}

func testEdgeCases(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet|db.FeatureGet)

	database.Set("", []byte("empty-key"), 1)
	if value, ok := database.Get(""); !ok || string(value) != "empty-key" {
		t.Errorf("Expected empty key to be usable")
	}

	large := bytes.Repeat([]byte("x"), 1<<20)
	database.Set("large", large, 2)
	if value, _ := database.Get("large"); !bytes.Equal(value, large) {
		t.Errorf("Large value mismatch")
	}

	unicode := "user:jürgen@例え.jp"
	database.Set(unicode, []byte("1"), 3)
	if !database.Has(unicode) {
		t.Errorf("Expected unicode key to be found")
	}
}
