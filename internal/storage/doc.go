// Package storage persists tracked items, their reminder-state tokens and
// the dispatch audit log.
//
// Drivers:
//   - "file": items as a JSON document rewritten atomically, audit as JSON Lines
//   - "sqlite": a single SQLite database (pure Go driver, WAL mode)
package storage
