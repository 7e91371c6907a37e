// Package store provides the durable stores behind termgraph.
//
// Every persisted component talks to an ObjectStore: a flat key/value byte
// store with get, put, prefix scan and sync. Three backends implement it:
//   - Store: SQLite (WAL mode), which additionally keeps the commit log
//   - BadgerStore: an embedded BadgerDB
//   - MemoryStore: process-local, for tests and throwaway sessions
//
// Sealed wraps any ObjectStore with a checksummed, optionally compressed blob
// envelope so torn or corrupted values are detected on read.
//
// # Commit Log
//
// Commit records are appended to the commit_records table and read back in
// sequence order. All reads ORDER BY sequence ASC so replays are
// deterministic.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
