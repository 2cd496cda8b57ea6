// Package lockmgr implements leases on top of any store.IStore.
//
// The lock manager only ever stores in the provided IStore and has no other
// internal state, so it is safe to create it multiple times on the same store.
//
// Lock Acquisition: a lock is a key created with SetIfUnset whose value is a
// random (uuid) owner id. SetIfUnset reports whether this caller created the
// key, so no follow-up read is needed.
//
// Lock Release: the value is compared with the caller's owner id before the
// key is deleted. Releasing a lock that does not exist succeeds.
//
// Locks do not expire. The ingest command uses a lock on the key "lock:writer"
// to keep a single writer per record store; a crashed writer leaves the lock
// behind and it has to be cleared with `dstats lock release --force`.
package lockmgr
