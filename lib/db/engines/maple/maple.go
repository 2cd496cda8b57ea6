package maple

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"runtime"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/ValentinKolb/dStats/lib/db"
	"github.com/ValentinKolb/dStats/lib/db/engines/maple/internal"
	"github.com/ValentinKolb/dStats/lib/db/util"
)

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

const (
	magicNum     = "MAPLEDB\x00" // File format identifier
	mapleVersion = 4             // Database version
)

// --------------------------------------------------------------------------
// Core Maple database structure
// --------------------------------------------------------------------------

// mapleImpl implements an in-memory database with sharded data
type mapleImpl struct {
	numShards int               // Number of shards
	seed      uint64            // Seed for the shard hash
	shards    []*internal.Shard // Array of shards
	currIndex atomic.Uint64     // Current logical timestamp
}

// DBOptions configures the mapleImpl behavior during initialization
type DBOptions struct {
	NumShards int // Number of shards (0 = auto)
}

// DefaultOptions returns the default mapleImpl options
func DefaultOptions() *DBOptions {
	return &DBOptions{
		NumShards: runtime.NumCPU(),
	}
}

// --------------------------------------------------------------------------
// Initialization and Setup
// --------------------------------------------------------------------------

// NewMapleDB creates a new MapleDB instance with the specified options (optional)
func NewMapleDB(opts *DBOptions) db.KVDB {
	if opts == nil {
		opts = DefaultOptions()
	}
	if opts.NumShards <= 0 {
		opts.NumShards = runtime.NumCPU()
	}

	maple := &mapleImpl{
		numShards: opts.NumShards,
		seed:      util.GenerateSeed(),
	}
	maple.shards = newShards(opts.NumShards)
	return maple
}

func newShards(n int) []*internal.Shard {
	shards := make([]*internal.Shard, n)
	for i := range shards {
		shards[i] = internal.NewShard()
	}
	return shards
}

// shardFor returns the shard responsible for key
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) shardFor(key string) *internal.Shard {
	return internal.GetShard(util.HashString(key, maple.seed), maple.shards)
}

// --------------------------------------------------------------------------
// Core KVDB Interface Methods - Write Operations
// --------------------------------------------------------------------------

// Set inserts or updates an entry with the given key, value, and writeIndex.
// If the key already exists, the old value is overwritten.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) Set(key string, value []byte, writeIdx uint64) {
	maple.compute(key, writeIdx, func(old internal.Entry, loaded bool) (internal.Entry, bool) {
		return internal.Entry{Value: copyBytes(value), Index: writeIdx}, false
	})
}

// SetIfUnset inserts an entry only if the key does not exist yet.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) SetIfUnset(key string, value []byte, writeIdx uint64) bool {
	stored := false
	maple.compute(key, writeIdx, func(old internal.Entry, loaded bool) (internal.Entry, bool) {
		if loaded {
			return old, false
		}
		stored = true
		return internal.Entry{Value: copyBytes(value), Index: writeIdx}, false
	})
	return stored
}

// Incr adds delta to the decimal counter stored under key.
// The read and the write happen inside one Compute call, so concurrent
// increments never lose an update.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) Incr(key string, delta uint64, writeIdx uint64) (uint64, bool) {
	var (
		result uint64
		ok     bool
	)
	maple.compute(key, writeIdx, func(old internal.Entry, loaded bool) (internal.Entry, bool) {
		var current uint64
		if loaded {
			current, ok = util.DecodeCounter(old.Value)
			if !ok {
				return old, false
			}
		}
		ok = true
		result = current + delta
		return internal.Entry{Value: util.EncodeCounter(result), Index: writeIdx}, false
	})
	return result, ok
}

// Delete removes an entry with the specified key. This change is immediate.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) Delete(key string, writeIdx uint64) {
	maple.compute(key, writeIdx, func(old internal.Entry, _ bool) (internal.Entry, bool) {
		return old, true
	})
}

// compute is the shared write path of Set, SetIfUnset, Incr and Delete.
// fn receives the current entry (and whether it existed) and returns the new
// entry plus whether the key should be removed. Writes with a write index
// lower than the stored entry's index are stale and ignored.
//
// Thread-safety: fn runs while the map bucket is locked, so it must not call
// back into the database.
func (maple *mapleImpl) compute(key string, writeIdx uint64, fn func(old internal.Entry, loaded bool) (internal.Entry, bool)) {
	maple.SetWriteIdx(writeIdx)

	shard := maple.shardFor(key)
	shard.Data.Compute(key, func(old internal.Entry, loaded bool) (internal.Entry, bool) {
		if loaded && writeIdx < old.Index {
			return old, false
		}
		entry, del := fn(old, loaded)
		if del {
			return old, true
		}
		return entry, false
	})
}

// --------------------------------------------------------------------------
// Core KVDB Interface Methods - Read Operations
// --------------------------------------------------------------------------

// Get retrieves a value for a key.
// The returned value is a copy of the stored data and therefore safe to modify.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) Get(key string) ([]byte, bool) {
	entry, ok := maple.shardFor(key).Data.Load(key)
	if !ok {
		return nil, false
	}
	return copyBytes(entry.Value), true
}

// Has checks if a key exists in the database.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) Has(key string) bool {
	_, ok := maple.shardFor(key).Data.Load(key)
	return ok
}

// Keys lists all keys with the given prefix in ascending order.
// The listing is a fuzzy snapshot: keys written concurrently may or may not
// be included.
func (maple *mapleImpl) Keys(prefix string) []string {
	var keys []string
	for _, shard := range maple.shards {
		shard.Data.Range(func(key string, _ internal.Entry) bool {
			if strings.HasPrefix(key, prefix) {
				keys = append(keys, key)
			}
			return true
		})
	}
	sort.Strings(keys)
	return keys
}

// --------------------------------------------------------------------------
// Persistence
// --------------------------------------------------------------------------

// Save writes all entries to w.
//
// Format: magic, version (u8), entry count (u64), then per entry
// key length (u32), key, index (u64), value length (u32), value.
// All integers are little endian. Like every maple snapshot this is a fuzzy
// cut; the caller is responsible for quiescing writers if it needs a
// consistent one.
func (maple *mapleImpl) Save(w io.Writer) error {
	bw := bufio.NewWriterSize(w, 1024*1024)

	type savedEntry struct {
		key   string
		entry internal.Entry
	}
	var entries []savedEntry
	for _, shard := range maple.shards {
		shard.Data.Range(func(key string, entry internal.Entry) bool {
			entries = append(entries, savedEntry{key, internal.Entry{Value: copyBytes(entry.Value), Index: entry.Index}})
			return true
		})
	}

	if _, err := bw.WriteString(magicNum); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, uint8(mapleVersion)); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, uint64(len(entries))); err != nil {
		return err
	}

	for _, item := range entries {
		if err := binary.Write(bw, binary.LittleEndian, uint32(len(item.key))); err != nil {
			return err
		}
		if _, err := bw.WriteString(item.key); err != nil {
			return err
		}
		if err := binary.Write(bw, binary.LittleEndian, item.entry.Index); err != nil {
			return err
		}
		if err := binary.Write(bw, binary.LittleEndian, uint32(len(item.entry.Value))); err != nil {
			return err
		}
		if _, err := bw.Write(item.entry.Value); err != nil {
			return err
		}
	}

	return bw.Flush()
}

// Load replaces the database content with a snapshot written by Save.
//
// Thread-safety: This function is not thread-safe and should not be called concurrently
func (maple *mapleImpl) Load(r io.Reader) error {
	br := bufio.NewReaderSize(r, 1024*1024)

	magicBytes := make([]byte, len(magicNum))
	if _, err := io.ReadFull(br, magicBytes); err != nil {
		return err
	}
	if string(magicBytes) != magicNum {
		return fmt.Errorf("invalid file format: magic number mismatch")
	}

	var version uint8
	if err := binary.Read(br, binary.LittleEndian, &version); err != nil {
		return err
	}
	if int(version) != mapleVersion {
		return fmt.Errorf("unsupported version: %d (expected %d)", version, mapleVersion)
	}

	var count uint64
	if err := binary.Read(br, binary.LittleEndian, &count); err != nil {
		return err
	}

	maple.shards = newShards(maple.numShards)
	maple.currIndex.Store(0)

	var maxIndex uint64
	for i := uint64(0); i < count; i++ {
		var keyLen uint32
		if err := binary.Read(br, binary.LittleEndian, &keyLen); err != nil {
			return err
		}
		key := make([]byte, keyLen)
		if _, err := io.ReadFull(br, key); err != nil {
			return err
		}

		var index uint64
		if err := binary.Read(br, binary.LittleEndian, &index); err != nil {
			return err
		}
		if index > maxIndex {
			maxIndex = index
		}

		var valueLen uint32
		if err := binary.Read(br, binary.LittleEndian, &valueLen); err != nil {
			return err
		}
		value := make([]byte, valueLen)
		if _, err := io.ReadFull(br, value); err != nil {
			return err
		}

		maple.shardFor(string(key)).Data.Store(string(key), internal.Entry{Value: value, Index: index})
	}

	maple.SetWriteIdx(maxIndex)
	return nil
}

// --------------------------------------------------------------------------
// KVDB Interface Implementation - Features and Metadata
// --------------------------------------------------------------------------

const supportedFeatures = db.FeatureSet |
	db.FeatureSetIfUnset |
	db.FeatureIncr |
	db.FeatureGet |
	db.FeatureDelete |
	db.FeatureHas |
	db.FeatureKeys |
	db.FeatureSave |
	db.FeatureLoad

// GetInfo returns statistics about the database
func (maple *mapleImpl) GetInfo() db.DatabaseInfo {
	keys, size := 0, 0
	shardSizes := make([]int, len(maple.shards))
	for i, shard := range maple.shards {
		shard.Data.Range(func(key string, entry internal.Entry) bool {
			keys++
			size += len(key) + len(entry.Value) + 8
			return true
		})
		shardSizes[i] = shard.Data.Size()
	}

	meta := &struct {
		CurrentWriteIndex uint64 `json:"current_write_index"`
		ShardCount        int    `json:"shard_count"`
		ShardSizes        []int  `json:"shard_sizes"`
	}{
		CurrentWriteIndex: maple.currIndex.Load(),
		ShardCount:        len(maple.shards),
		ShardSizes:        shardSizes,
	}

	return db.DatabaseInfo{
		Keys:      keys,
		SizeBytes: size,
		DbType:    db.ImplMaple,
		SupportedFeatures: []db.Feature{
			db.FeatureSet, db.FeatureSetIfUnset, db.FeatureIncr,
			db.FeatureGet, db.FeatureDelete, db.FeatureHas, db.FeatureKeys,
			db.FeatureSave, db.FeatureLoad,
		},
		Metadata: meta,
	}
}

// SupportsFeature checks if this implementation supports a specific KVDB feature
func (maple *mapleImpl) SupportsFeature(feature db.Feature) bool {
	return supportedFeatures&feature == feature
}

// Close releases nothing; maple keeps no background workers.
func (maple *mapleImpl) Close() error {
	return nil
}

// --------------------------------------------------------------------------
// Index and Timestamp Management
// --------------------------------------------------------------------------

// SetWriteIdx safely updates the current index
// It only updates if the new index is greater than the current one
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) SetWriteIdx(newIdx uint64) {
	for {
		currIdx := maple.currIndex.Load()
		if newIdx <= currIdx {
			return
		}
		if maple.currIndex.CompareAndSwap(currIdx, newIdx) {
			return
		}
	}
}

// WriteIdx returns the current index of the database
func (maple *mapleImpl) WriteIdx() uint64 {
	return maple.currIndex.Load()
}

func copyBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	c := make([]byte, len(b))
	copy(c, b)
	return c
}
