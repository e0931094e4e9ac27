// Package repositories implements SQLite persistence for sync run history.
//
// History is an audit log: runs are written after a successful sync and only read back by the history commands.
// Runs support soft deletes via deleted_at timestamps and exclude deleted records from queries by default.
//
// Key Implementations:
//   - [SyncRunRepository] : Run summaries with section-based queries
//   - [SyncRecordRepository] : Per-item outcomes written in one transaction per run
//   - [HistoryRecorder] : Adapter that lets the sync engine record runs
//
// Sequence numbers provide stable, human-readable ordering (e.g., run #42) independent of UUIDs and creation timestamps.
// The [NextSequence] function atomically increments per-table sequence counters in dedicated sequence tables.
package repositories
