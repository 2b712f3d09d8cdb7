// Package tracestore provides an SQLite-backed log of runtime trace events.
//
// The log is diagnostic only. It is never read back into a Runtime.
//
//   - Runs: one row per recorded scenario run
//   - Events: engine.TraceEvent rows keyed by (run_id, seq)
//
// # Critical Patterns
//
// Logical Time:
//   - All ordering uses seq INTEGER from the runtime clock, never timestamps
//   - Queries include ORDER BY seq ASC so reads are reproducible
//
// Idempotent Writes:
//   - Rerunning a flush with events already stored is a no-op
//     (ON CONFLICT(run_id, seq) DO NOTHING)
//
// # Database Configuration
//
//   - WAL mode: concurrent reads while a run is being recorded
//   - synchronous=NORMAL
//   - busy_timeout=5000
//   - foreign_keys=ON
package tracestore
