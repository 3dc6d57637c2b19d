// Package engine implements the benefit rules evaluation engine.
//
// The engine is a pure function from (program, household, asOfDate) to
// a Determination. It holds no mutable state of its own: rule versions
// are resolved through a RuleResolver at the start of each evaluation,
// and the same inputs always produce byte-identical output (see
// policy.DeterminationHash).
//
// Evaluation flow, SNAP as the representative program:
//
//  1. Validate the household profile. Malformed input (negative income,
//     size < 1) is rejected before any calculation begins, never
//     silently clamped.
//  2. Resolve the effective rule set for the program and jurisdiction
//     as of the evaluation date. No effective rule -> RULE_NOT_FOUND.
//  3. Categorical eligibility: a household already receiving a
//     qualifying program bypasses income and asset tests entirely.
//     The income-limit rule is never added to the audit trail in that
//     path.
//  4. Apply deductions in fixed order, compute net income (floored at
//     zero), run the gross and net income tests, and look up the
//     benefit allotment.
//  5. Round benefit amounts to whole currency units, half up.
//
// TANF, Medicaid, and the refundable tax credit reuse the same rule
// resolution, validation, and rounding, with program-specific benefit
// math (payment standard, FPL-style gross test, phase-in/phase-out
// schedule respectively).
//
// Concurrency: Evaluate is safe to call concurrently across unrelated
// households; nothing is shared between calls except the read-only
// resolver.
package engine
