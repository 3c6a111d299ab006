// Package store provides SQLite-backed durable storage for merge run logs.
//
// The store keeps an append-only log with:
//   - Runs: one row per engine run, upserted when the run finishes
//   - Snapshots: canonical JSON of the target model before and after the run
//   - Changes: one row per applied request with its outcome
//
// # Ordering
//
// Changes are keyed by (run_id, seq) and always read ORDER BY seq ASC. Runs
// are listed in the order they were first written.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Snapshot hashes and request ids are computed in internal/ir with
// canonical JSON and SHA-256 domain separation.
package store
