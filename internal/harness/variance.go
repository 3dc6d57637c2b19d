package harness

import (
	"github.com/shopspring/decimal"

	"github.com/civigo/benefits/internal/policy"
)

var (
	hundred = decimal.NewFromInt(100)
)

// Variance computes the percent difference of actual from expected.
// A zero expected amount defines variance as 0 when actual is also
// zero, else 100 (a sentinel for "arbitrarily far off").
func Variance(actual, expected decimal.Decimal) decimal.Decimal {
	if expected.IsZero() {
		if actual.IsZero() {
			return decimal.Zero
		}
		return hundred
	}
	return actual.Sub(expected).Abs().Div(expected).Mul(hundred).Round(2)
}

// comparison is the outcome of judging a determination against a test
// case's expectation (and optionally a reference amount).
type comparison struct {
	passed   bool
	variance *decimal.Decimal
}

// compare judges the engine's determination against the case.
//
// referenceAmount, when non-nil, replaces the curated expected amount
// as the variance baseline (the expectation still gates booleans).
func compare(tc *policy.EvaluationTestCase, actual *policy.Determination, referenceAmount *decimal.Decimal) comparison {
	// Boolean fields: exact match required; a mismatch fails the case
	// regardless of numeric variance.
	if tc.Expected.Eligible != nil && actual.Eligible != *tc.Expected.Eligible {
		return comparison{passed: false}
	}

	baseline, baselineSet := tc.Expected.Amount()
	if referenceAmount != nil {
		baseline, baselineSet = *referenceAmount, true
	}
	if !baselineSet {
		// No numeric comparison applies.
		return comparison{passed: true}
	}

	actualAmount, ok := actual.Amount()
	if !ok {
		// Expected a numeric amount, engine produced none.
		return comparison{passed: false}
	}

	v := Variance(actualAmount, baseline)
	return comparison{
		passed:   v.LessThanOrEqual(tc.Tolerance),
		variance: &v,
	}
}
