// Package internal provides the command and query structures of the dstore
// state machine.
//
// Commands (Set, SetIfUnset, Incr, Delete) are proposed to the raft log and use
// a compact binary encoding:
//
//   - 1 byte: command type
//   - 8 bytes: delta (Incr only, big endian)
//   - 4 bytes: number of entries
//   - per entry: 4 bytes key length, key, 4 bytes value length, value
//
// A batch write (SetMulti, DeleteMulti) is one command and therefore one raft
// log entry, so it is applied atomically on every replica.
//
// Queries (Get, GetMulti, Has, Keys, GetDBInfo) run locally on the state
// machine and are passed as Go values without serialization.
package internal
