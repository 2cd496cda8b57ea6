// Package dstore implements a replicated key-value store using the Dragonboat
// RAFT consensus library. It provides a linearizable implementation of the
// store.IStore interface that can operate across multiple nodes.
//
// Architecture:
//
//   - Store Client: implements store.IStore, serializes writes into commands
//     and proposes them with SyncPropose; reads go through SyncRead.
//
//   - State Machine: a Dragonboat IConcurrentStateMachine that owns the db.KVDB
//     instance and applies commands to it. The raft log index is the write index.
//
//   - Communication Protocol: commands and queries in the internal package.
//
// Write Operations:
//
//	1. The operation is serialized into a Command
//	2. The Command is proposed to the RAFT cluster via SyncPropose
//	3. Once committed, the command is applied on every replica (Update in statemachine.go)
//	4. The result is returned to the client; Incr and SetIfUnset carry their
//	   outcome in the result data
//
// Because Incr is applied inside the state machine, two writer processes that
// allocate record ids or update-log positions concurrently always receive
// distinct values.
//
// Read Operations:
//
//	Reads use SyncRead so they observe every committed write. GetDBInfo uses
//	StaleRead since it is informational only.
//
// Snapshots:
//
//	SaveSnapshot and RecoverFromSnapshot delegate to db.KVDB Save and Load.
//	Snapshots are fuzzy; replaying the log after recovery is idempotent
//	because stale writes (lower write index) are ignored by the engine.
package dstore
