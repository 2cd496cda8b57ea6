// Package rpc gives processes network access to the dStats record store. Many
// reader processes and the ingest writer share one store server and use it as
// their only synchronization point.
//
// The package is organized into several subpackages:
//
//   - common: the Message protocol, configuration structures and logging.
//
//   - transport: network communication with pluggable implementations
//     (TCP, Unix sockets, HTTP).
//
//   - serializer: Message encodings (JSON, snappy compressed JSON, GOB).
//
//   - client: store and lock manager clients and store URI resolution.
//
//   - server: the server hosting store and lock manager shards.
package rpc
