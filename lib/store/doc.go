// Package store provides the record store contract (IStore): a shared key–value
// service with string keys and opaque values, which every writer and reader
// process uses as its only synchronization point.
//
// Key Components:
//
//   - IStore Interface: plain reads and writes, batch variants (SetMulti,
//     GetMulti, DeleteMulti) to keep network round trips low, prefix listing
//     for dump tooling, and two coordination primitives: SetIfUnset (used for
//     leases) and Incr (used for every id counter).
//
//   - Error System: a structured error with a RetCode so callers and RPC
//     adapters can distinguish unsupported operations from internal failures.
//
//   - DBFactory: abstracts creation of the db.KVDB engine below a store.
//
// Implementations:
//
//   - Local Store (lstore): wraps a db.KVDB in-process. Used by `memory://`
//     store URIs, by tests and by the serve command for non-replicated shards.
//
//   - Distributed Store (dstore): raft replication via dragonboat. Every write,
//     including Incr, is a single proposed command, so counters stay atomic
//     across the cluster.
//
// Remote access to either implementation goes through the rpc packages; see
// rpc/client.Open for the store URI format.
package store
