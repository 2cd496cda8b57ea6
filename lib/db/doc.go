// Package db provides a standardized interface for key-value database implementations.
// It defines the KVDB interface that the record store builds on and keeps the
// storage engine swappable.
//
// Key Components:
//
//   - KVDB Interface: The core interface all database implementations satisfy.
//     It provides plain writes (Set, Delete), the two primitives needed for
//     safe coordination between independent writer processes (SetIfUnset and
//     the atomic counter Incr), reads (Get, Has), prefix listing (Keys) and
//     persistence (Save, Load).
//
//   - Feature Flags: The Feature type defines capability flags that implementations
//     advertise through SupportsFeature, so stores can reject unsupported
//     operations with a clear error instead of failing silently.
//
//   - Database Information: The DatabaseInfo structure reports key count,
//     approximate size, implementation type and implementation specific metadata.
//
// Write Indices:
//
// Every write carries a write index used as a logical timestamp. A write whose
// index is lower than the index stored with the entry is stale and ignored.
// In a replicated store the raft log index is used, which makes replaying the
// same log onto a recovered snapshot idempotent.
//
// Counters:
//
// Incr stores counters as decimal ASCII. The record store relies on this for
// its record, update-log and user sequence counters: an Incr is a single
// engine operation, so two writers can never be handed the same id.
package db
