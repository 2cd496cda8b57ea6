package internal

import (
	"github.com/ValentinKolb/dStats/lib/db/util"
	"github.com/puzpuzpuz/xsync/v3"
)

// --------------------------------------------------------------------------
// Entry Type (key-value pair with metadata)
// --------------------------------------------------------------------------

// Entry stores a value with the write index of its last modification
type Entry struct {
	Value []byte
	Index uint64 // Current Index when this entry was created/updated
}

// --------------------------------------------------------------------------
// Shard Type (partition of the database)
// --------------------------------------------------------------------------

// Shard represents a partition of the key space
type Shard struct {
	Data *xsync.MapOf[string, Entry]
}

// NewShard creates a new shard whose map hashes keys with util.HashString
func NewShard() *Shard {
	return &Shard{
		Data: xsync.NewMapOfWithHasher[string, Entry](util.HashString),
	}
}

// GetShard returns the appropriate shard for a given key hash
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func GetShard[T any](hash uint64, shards []*T) *T {
	// Shift right by 7 bits to use higher-quality bits for distribution
	return shards[(hash>>7)%uint64(len(shards))]
}
