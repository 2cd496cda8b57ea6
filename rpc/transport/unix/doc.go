// Package unix implements a Unix domain socket transport for the dStats RPC layer.
// It is the cheapest way to reach a store server running on the same host, e.g. a
// dashboard process reading the records written by the ingest job.
//
// A stale socket file at the endpoint path is removed before listening.
package unix
