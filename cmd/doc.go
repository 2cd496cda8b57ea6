// Package cmd implements the command-line interface of dStats. It provides a
// hierarchical command structure for running the record store server,
// ingesting events and reading the records back.
//
// The package is organized into several subpackages:
//
//   - serve: Starts a server hosting record store and lock manager shards
//   - ingest: Runs an ingestion cycle (defaults, events, corrections, finalize)
//   - query: Syncs an in-memory index through the update log and filters it
//   - backup: Dumps the store to a file or S3 object and restores it
//   - kv: Raw key-value access for inspection and repair
//   - lock: Lock operations, e.g. releasing a stale writer lease
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// All flags can be set as DSTATS_<FLAG> environment variables or in .env files.
// See dstats -help for a list of all commands.
package cmd
