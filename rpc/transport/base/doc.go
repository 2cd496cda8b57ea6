// Package base implements the framed, multiplexed connection handling shared by the
// socket transports (TCP, Unix sockets). Protocol details are supplied by connectors.
//
// Every request and response travels as one frame: shard id, request id and a
// length prefixed payload (see frame). Responses carry the ids of their request,
// so many requests can be in flight on one connection.
//
// Client side, a clientTransport keeps a pool of slots, ConnectionsPerEndpoint per
// endpoint, and picks them round robin. A slot whose connection died fails the
// requests waiting on it and is redialed by the next request that picks it.
// Failed attempts are retried with jittered exponential backoff.
//
// Server side, every accepted connection runs a session that reads frames into
// pooled buffers and hands up to WorkersPerConn of them to the handler at once.
// Writes of responses are serialized per connection.
//
// Counters for requests, retries, dials, frames and connections are exported
// through github.com/VictoriaMetrics/metrics.
package base
