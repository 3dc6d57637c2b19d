// Package store provides SQLite-backed durable storage for the rules
// base, the evaluation harness, and the provision mapper.
//
// Ownership follows the domain model:
//
//   - rules + rule_dependencies: the versioned, effective-dated rule
//     base and its dependency DAG. Writes go through the approval
//     workflow; the approval transaction atomically expires the
//     superseded version and activates the successor, so concurrent
//     readers never observe zero or two effective rules for a key.
//   - test_cases: curated inputs, soft-deactivated, never deleted.
//   - runs + results: batch executions. Results are keyed by
//     (run_id, test_case_id) and written with ON CONFLICT DO NOTHING,
//     so a retried case is idempotent.
//   - provisions + mappings + obligations: the provision-impact
//     pipeline. Obligations are unique per (rule_id, mapping_id),
//     making approval replays harmless (at-least-once delivery).
//
// # Invariants enforced here
//
//   - Effective-date exclusivity: for any (program, rule_type,
//     jurisdiction), no two approved-or-superseded rules have
//     overlapping [effective_date, expiration_date) ranges.
//   - Rule dependency acyclicity: edges inserted with a rule are
//     rejected if they would close a cycle.
//   - Mapping terminality: review_status transitions are guarded by a
//     compare-and-set on the current status.
//
// # Database configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - foreign_keys=ON: referential integrity
//
// Dates are stored as ISO text (YYYY-MM-DD for effective ranges,
// RFC 3339 for timestamps); monetary and score decimals are stored as
// exact decimal strings, never floats.
package store
