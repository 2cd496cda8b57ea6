// Package server hosts record store and lock manager shards behind an RPC
// transport.
//
// Every shard is a store.IStore plus an adapter that turns request messages
// into calls on it. A dStats deployment usually runs two shards on one server:
//
//	100  the record store (records, update log, users, settings, cursors)
//	200  the lock manager holding the writer lease lock:writer
//
// Shard types:
//
//   - ShardTypeLocalIStore / ShardTypeLocalILockManager: a single node maple
//     store, enough for one ingestion host with many readers.
//
//   - ShardTypeRemoteIStore / ShardTypeRemoteILockManager: a raft replicated
//     store (dragonboat). RTTMillisecond, SnapshotEntries, CompactionOverhead,
//     DataDir, ReplicaID and ClusterMembers must be set.
//
// Example:
//
//	s := server.NewRPCServer(
//	  common.ServerConfig{
//	    Shards: []common.ServerShard{
//	      {ShardID: 100, Type: common.ShardTypeLocalIStore},
//	      {ShardID: 200, Type: common.ShardTypeLocalILockManager},
//	    },
//	    Transport:     common.ServerTransportConfig{Endpoint: "0.0.0.0:8080"},
//	    TimeoutSecond: 5,
//	  },
//	  http.NewHttpServerTransport(),
//	  serializer.NewSnappySerializer(),
//	)
//	err := s.Serve()
//
// Requests for shards the server does not host are answered with an error
// message. Serve blocks while the transport listens.
package server
