// Package storage keeps the run history: one record per sync attempt.
//
// Two drivers are available:
//   - file: append-only JSON Lines, compacted to the most recent runs
//   - sqlite: a single SQLite database file (modernc.org/sqlite, no cgo)
package storage
