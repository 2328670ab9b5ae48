// Package store provides SQLite-backed durable storage for document collections.
//
// The store is the write path's storage adapter. Every write is optimistic:
// updates and removals name the revision they were derived from and fail with
// a *ConflictError when the stored revision differs. The store never retries.
//
// # Tables
//
//   - documents: current committed state per (collection, id), tombstones included
//   - revisions: append-only history of every committed revision
//
// # Ordering
//
// Each committed write is stamped with a store-wide seq (MAX(seq)+1 inside the
// write transaction). Reads that return several rows use ORDER BY seq ASC,
// id ASC COLLATE BINARY so results are deterministic.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - a single connection: SQLite allows one writer at a time
package store
