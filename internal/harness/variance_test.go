package harness

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civigo/benefits/internal/policy"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestVariance(t *testing.T) {
	tests := []struct {
		name     string
		actual   string
		expected string
		want     string
	}{
		{"exact match", "450", "450", "0"},
		{"two percent", "459", "450", "2"},
		{"rounded to two places", "465", "450", "3.33"},
		{"under as well as over", "441", "450", "2"},
		{"both zero", "0", "0", "0"},
		{"expected zero actual not", "5", "0", "100"},
		{"fractional amounts", "270.10", "270", "0.04"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Variance(dec(tt.actual), dec(tt.expected))
			assert.True(t, got.Equal(dec(tt.want)), "Variance(%s, %s) = %s, want %s",
				tt.actual, tt.expected, got, tt.want)
		})
	}
}

func compareCase(expected policy.ExpectedResult, tolerance string) *policy.EvaluationTestCase {
	return &policy.EvaluationTestCase{
		ID:        "tc",
		Program:   policy.ProgramSNAP,
		Expected:  expected,
		Tolerance: dec(tolerance),
	}
}

func eligibleWith(amount string) *policy.Determination {
	d := &policy.Determination{Program: policy.ProgramSNAP, Eligible: true}
	if amount != "" {
		b := dec(amount)
		d.MonthlyBenefit = &b
	}
	return d
}

func TestCompare_WithinTolerance(t *testing.T) {
	eligible := true
	benefit := dec("450")
	tc := compareCase(policy.ExpectedResult{Eligible: &eligible, MonthlyBenefit: &benefit}, "2.00")

	c := compare(tc, eligibleWith("459"), nil)
	assert.True(t, c.passed, "2.00%% variance passes a 2.00%% tolerance")
	require.NotNil(t, c.variance)
	assert.True(t, c.variance.Equal(dec("2")))
}

func TestCompare_OverTolerance(t *testing.T) {
	eligible := true
	benefit := dec("450")
	tc := compareCase(policy.ExpectedResult{Eligible: &eligible, MonthlyBenefit: &benefit}, "2.00")

	c := compare(tc, eligibleWith("465"), nil)
	assert.False(t, c.passed)
	require.NotNil(t, c.variance)
	assert.True(t, c.variance.Equal(dec("3.33")))
}

func TestCompare_BooleanMismatchFailsRegardless(t *testing.T) {
	eligible := false
	tc := compareCase(policy.ExpectedResult{Eligible: &eligible}, "100.00")

	c := compare(tc, eligibleWith(""), nil)
	assert.False(t, c.passed, "eligibility mismatch fails even under a generous tolerance")
	assert.Nil(t, c.variance)
}

func TestCompare_NoNumericExpectation(t *testing.T) {
	eligible := true
	tc := compareCase(policy.ExpectedResult{Eligible: &eligible}, "1.00")

	c := compare(tc, eligibleWith("270"), nil)
	assert.True(t, c.passed)
	assert.Nil(t, c.variance, "no baseline means no variance")
}

func TestCompare_ExpectedAmountButEngineProducedNone(t *testing.T) {
	benefit := dec("270")
	tc := compareCase(policy.ExpectedResult{MonthlyBenefit: &benefit}, "1.00")

	c := compare(tc, eligibleWith(""), nil)
	assert.False(t, c.passed)
}

func TestCompare_ReferenceAmountReplacesBaseline(t *testing.T) {
	eligible := true
	benefit := dec("450")
	tc := compareCase(policy.ExpectedResult{Eligible: &eligible, MonthlyBenefit: &benefit}, "1.00")

	// Curated expectation would fail; the reference amount agrees.
	ref := dec("459")
	c := compare(tc, eligibleWith("459"), &ref)
	assert.True(t, c.passed)
	require.NotNil(t, c.variance)
	assert.True(t, c.variance.IsZero())
}

func TestCompare_ReferenceBaselineAppliesWithoutCuratedAmount(t *testing.T) {
	eligible := true
	tc := compareCase(policy.ExpectedResult{Eligible: &eligible}, "1.00")

	ref := dec("500")
	c := compare(tc, eligibleWith("450"), &ref)
	assert.False(t, c.passed, "reference disagreement fails even when the case curates no amount")
	require.NotNil(t, c.variance)
	assert.True(t, c.variance.Equal(dec("10")))
}
