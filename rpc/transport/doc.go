// Package transport defines the client and server contracts for moving serialized
// messages between dStats processes. Every request carries the ID of the shard it
// targets, so one server can host several stores and lock managers.
//
// Implementations live in the sub packages http, tcp and unix; tcp and unix share
// the framed connection handling of package base.
package transport
