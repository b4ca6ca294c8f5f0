// Package store provides SQLite-backed storage for mdstats document
// collections.
//
// The store holds JSON documents grouped by collection name:
//   - projects: the primary collection summarized by mdstats
//   - references, ligands, ...: reference collections read by the
//     reference resolver
//
// # Critical Patterns
//
// Deterministic Query Results
//   - All queries MUST include: ORDER BY seq ASC, id ASC COLLATE BINARY
//   - seq is insertion order; an upsert keeps the original seq
//
// Canonical Bodies
//   - Bodies are written with ir.MarshalCanonical, so equal documents are
//     byte-identical and strings are NFC normalized like filter values
//
// Identity
//   - A document's id is its "_id" field, or a UUIDv7 when it has none
//   - UNIQUE(collection, id): writing the same id again replaces the body
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Filters are compiled by internal/querysql.
package store
