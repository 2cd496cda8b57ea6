// Package maple implements an in-memory key-value database (KVDB) sharded over
// xsync maps.
//
// Keys are assigned to shards by a seeded murmur3 hash (util.HashString); the
// same function is used as the hasher of every shard's map. All writes go
// through a single compute helper that runs inside xsync's per-bucket lock,
// which is what makes SetIfUnset and Incr atomic without a global lock.
//
// Stale Write Prevention: each entry stores the write index of its last
// modification. A write is only applied if its index is greater than or equal
// to the stored one.
//
// Persistence Format:
//  1. Magic number "MAPLEDB\x00"
//  2. Version number (currently 4)
//  3. Number of entries
//  4. For each entry: key length, key, index, value length, value
//
// Snapshots are fuzzy: Save does not block writers, so the caller has to
// provide consistency if it needs it (the raft state machine does).
package maple
