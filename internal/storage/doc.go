// Package storage persists meme records and the operator audit trail.
//
// Two SQL backends share one implementation:
//   - "sqlite": a local database file (modernc.org/sqlite, single connection)
//   - "postgres": a server reached through a DSN (github.com/lib/pq)
//
// Timestamps are stored as epoch seconds.
package storage
