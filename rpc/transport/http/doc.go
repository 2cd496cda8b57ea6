// Package http implements the HTTP transport of the dStats RPC layer.
//
// Requests are POSTed to /{shardId} with the serialized message as body. The
// server additionally exposes GET /metrics in the Prometheus text format, so a
// store server can be scraped without a separate listener.
//
// The client round-robins over all configured endpoints and retries failed
// requests. It is safe for concurrent use.
package http
