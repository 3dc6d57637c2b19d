// Package harness executes curated test cases through the rules
// engine and aggregates pass/fail and variance statistics.
//
// # Run lifecycle
//
// A run is created in running status and returns to the caller
// immediately; cases execute in the background with bounded
// concurrency and the run transitions to completed once every case
// has a recorded result. Callers poll the run, they are never blocked
// on the batch.
//
// # Pass determination
//
// Boolean fields must match the expected result exactly. Numeric
// fields pass iff the variance is at most the case's tolerance, where
//
//	variance = |actual - expected| / expected * 100
//
// against the curated expectation, or against the external reference
// calculator's amount when reference verification is requested. A zero
// reference amount defines variance as 0 when the engine amount is
// also zero, else 100. A case with any mismatched boolean field fails
// regardless of numeric variance.
//
// # Failure isolation
//
// One case's engine error (for example RULE_NOT_FOUND) records a
// failed result with the error message and does not abort the rest of
// the run. Results are keyed by (run, case) and written idempotently,
// so retrying a single case after a transient reference timeout is
// safe.
//
// # Suites
//
// Curated cases can be loaded from YAML suite files (see suite.go)
// for bulk import and for the CLI test command.
package harness
