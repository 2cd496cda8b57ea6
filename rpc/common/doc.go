// Package common holds the types shared by the RPC client, server and transports
// that front the dStats key-value shards.
//
// Key Components:
//
//   - Message: the single request/response envelope. Which fields are set depends
//     on the MessageType; factory functions exist for every operation of
//     store.IStore and lockmgr.ILockManager.
//
//   - ServerConfig / ClientConfig: transport, timeout and RAFT settings, with
//     helpers converting them to Dragonboat configurations.
//
//   - Logger: a dragonboat logger.ILogger implementation with a fixed line layout.
//     InitLoggers installs it and sets the level of every package logger,
//     including the runtime, processor, memstore and dump loggers.
package common
