// Package history provides SQLite-backed storage for training run history.
//
// Each training invocation writes one row to runs plus a per-epoch loss
// series to epochs, keyed by a time-sortable UUIDv7 run ID. The database
// is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//   - Foreign key enforcement
//
// Schema changes are applied through PRAGMA user_version migrations in
// store.go; the base tables live in the embedded schema.sql.
package history
