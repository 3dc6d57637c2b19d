package engine_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civigo/benefits/internal/engine"
	"github.com/civigo/benefits/internal/policy"
	"github.com/civigo/benefits/internal/testutil"
)

var asOf = testutil.Date("2024-10-15")

func snapEngine() *engine.Engine {
	return engine.New(&testutil.StaticResolver{
		Rules: testutil.SNAPRules(testutil.Date("2024-10-01")),
	})
}

func TestEvaluate_SNAPWorkingFamily(t *testing.T) {
	eng := snapEngine()

	det, err := eng.Evaluate(context.Background(), policy.ProgramSNAP, testutil.ScenarioHousehold(), asOf)
	require.NoError(t, err)

	assert.True(t, det.Eligible)
	require.NotNil(t, det.MonthlyBenefit)
	assert.True(t, det.MonthlyBenefit.Equal(testutil.Dec("270")),
		"monthly benefit = %s", det.MonthlyBenefit)
	assert.Nil(t, det.AnnualCredit)

	iv := det.Intermediates
	assert.True(t, iv.GrossIncome.Equal(testutil.Dec("2500")))
	assert.True(t, iv.TotalDeductions.Equal(testutil.Dec("847")), "total deductions = %s", iv.TotalDeductions)
	assert.True(t, iv.NetIncome.Equal(testutil.Dec("1653")), "net income = %s", iv.NetIncome)

	assert.Equal(t, []string{
		"snap-standard-deduction",
		"snap-earned-income-deduction",
		"snap-excess-shelter-deduction",
		"snap-income-limit",
		"snap-allotment",
	}, det.AppliedRules)
}

func TestEvaluate_SNAPIneligibleOverGrossLimit(t *testing.T) {
	eng := snapEngine()
	h := testutil.ScenarioHousehold()
	h.EarnedIncome = testutil.Dec("5000")

	det, err := eng.Evaluate(context.Background(), policy.ProgramSNAP, h, asOf)
	require.NoError(t, err)

	assert.False(t, det.Eligible)
	assert.Nil(t, det.MonthlyBenefit)
	assert.Nil(t, det.AnnualCredit)
}

func TestEvaluate_SNAPCategoricalBypassesIncomeTests(t *testing.T) {
	eng := snapEngine()
	h := testutil.ScenarioHousehold()
	h.EarnedIncome = testutil.Dec("5000")
	h.ReceivesPrograms = []string{"tanf"}

	det, err := eng.Evaluate(context.Background(), policy.ProgramSNAP, h, asOf)
	require.NoError(t, err)

	assert.True(t, det.Eligible, "categorical eligibility overrides the income tests")
	assert.Contains(t, det.AppliedRules, "snap-categorical-eligibility")
	assert.Contains(t, det.AppliedRules, policy.AppliedRuleCategorical)
	assert.NotContains(t, det.AppliedRules, "snap-income-limit")
}

func TestEvaluate_SNAPNetIncomeFlooredAtZero(t *testing.T) {
	eng := snapEngine()
	h := &policy.HouseholdProfile{
		Size:         1,
		Jurisdiction: "US",
		EarnedIncome: testutil.Dec("100"),
		ShelterCost:  testutil.Dec("800"),
	}

	det, err := eng.Evaluate(context.Background(), policy.ProgramSNAP, h, asOf)
	require.NoError(t, err)

	assert.True(t, det.Eligible)
	assert.False(t, det.Intermediates.NetIncome.IsNegative())
	require.NotNil(t, det.MonthlyBenefit)
	assert.True(t, det.MonthlyBenefit.Equal(testutil.Dec("291")), "full allotment at zero net income")
}

func TestEvaluate_SNAPMinimumBenefit(t *testing.T) {
	eng := snapEngine()
	h := &policy.HouseholdProfile{
		Size:           1,
		Jurisdiction:   "US",
		UnearnedIncome: testutil.Dec("1150"),
	}

	det, err := eng.Evaluate(context.Background(), policy.ProgramSNAP, h, asOf)
	require.NoError(t, err)

	require.True(t, det.Eligible)
	require.NotNil(t, det.MonthlyBenefit)
	assert.True(t, det.MonthlyBenefit.Equal(testutil.Dec("23")),
		"one-person households get the minimum benefit, got %s", det.MonthlyBenefit)
}

// Raising earned income must never raise the benefit: the earned
// income deduction offsets part of each extra dollar, not all of it.
func TestEvaluate_SNAPBenefitMonotoneInIncome(t *testing.T) {
	eng := snapEngine()
	ctx := context.Background()

	prev := testutil.Dec("99999")
	for income := 0; income <= 2800; income += 200 {
		h := testutil.ScenarioHousehold()
		h.EarnedIncome = decimal.NewFromInt(int64(income))

		det, err := eng.Evaluate(ctx, policy.ProgramSNAP, h, asOf)
		require.NoError(t, err)

		benefit := decimal.Zero
		if det.MonthlyBenefit != nil {
			benefit = *det.MonthlyBenefit
		}
		assert.True(t, benefit.LessThanOrEqual(prev),
			"benefit rose from %s to %s at income %d", prev, benefit, income)
		prev = benefit
	}
}

func TestEvaluate_InvalidInput(t *testing.T) {
	eng := snapEngine()
	ctx := context.Background()

	_, err := eng.Evaluate(ctx, "lottery", testutil.ScenarioHousehold(), asOf)
	assert.True(t, engine.IsInvalidInput(err))

	_, err = eng.Evaluate(ctx, policy.ProgramSNAP, nil, asOf)
	assert.True(t, engine.IsInvalidInput(err))

	_, err = eng.Evaluate(ctx, policy.ProgramSNAP, &policy.HouseholdProfile{Size: 0}, asOf)
	assert.True(t, engine.IsInvalidInput(err))
}

func TestEvaluate_RuleNotFound(t *testing.T) {
	eng := engine.New(&testutil.StaticResolver{})

	_, err := eng.Evaluate(context.Background(), policy.ProgramSNAP, testutil.ScenarioHousehold(), asOf)
	require.Error(t, err)
	assert.True(t, engine.IsRuleNotFound(err))
}

func TestEvaluate_AsOfSelectsRuleVersion(t *testing.T) {
	old := testutil.SNAPRules(testutil.Date("2023-10-01"))
	for i := range old {
		exp := testutil.Date("2024-10-01")
		old[i].ID = old[i].ID + "-2023"
		old[i].ExpirationDate = &exp
		if p, ok := old[i].Parameters.(*policy.AllotmentParams); ok {
			clone := *p
			clone.MaxAllotments = testutil.DecTable(map[int]string{1: "281", 2: "516", 3: "740", 4: "939"})
			old[i].Parameters = &clone
		}
	}
	eng := engine.New(&testutil.StaticResolver{
		Rules: append(old, testutil.SNAPRules(testutil.Date("2024-10-01"))...),
	})
	h := testutil.ScenarioHousehold()

	current, err := eng.Evaluate(context.Background(), policy.ProgramSNAP, h, asOf)
	require.NoError(t, err)
	prior, err := eng.Evaluate(context.Background(), policy.ProgramSNAP, h, testutil.Date("2024-06-15"))
	require.NoError(t, err)

	require.NotNil(t, current.MonthlyBenefit)
	require.NotNil(t, prior.MonthlyBenefit)
	assert.True(t, current.MonthlyBenefit.Equal(testutil.Dec("270")))
	assert.True(t, prior.MonthlyBenefit.Equal(testutil.Dec("244")),
		"2023 allotment table yields a smaller grant, got %s", prior.MonthlyBenefit)
	assert.Contains(t, prior.AppliedRules, "snap-allotment-2023")
}

func tanfRules(effective string) []policy.Rule {
	eff := testutil.Date(effective)
	return []policy.Rule{
		{
			ID: "tanf-income-limit", Program: policy.ProgramTANF, RuleType: policy.RuleTypeIncomeLimit,
			Jurisdiction: "US", EffectiveDate: eff, Status: policy.RuleStatusApproved,
			SourceCitation: "42 U.S.C. 602",
			Parameters: &policy.IncomeLimitParams{
				GrossLimits:         testutil.DecTable(map[int]string{1: "900", 2: "1100", 3: "1300"}),
				PerAdditionalMember: testutil.Dec("200"),
			},
		},
		{
			ID: "tanf-earned-income-disregard", Program: policy.ProgramTANF, RuleType: policy.RuleTypeDeduction,
			Jurisdiction: "US", EffectiveDate: eff, Status: policy.RuleStatusApproved,
			SourceCitation: "42 U.S.C. 602",
			Parameters: &policy.DeductionParams{
				Kind: policy.DeductionEarnedIncome,
				Rate: testutil.Dec("0.50"),
			},
		},
		{
			ID: "tanf-payment-standard", Program: policy.ProgramTANF, RuleType: policy.RuleTypeAllotment,
			Jurisdiction: "US", EffectiveDate: eff, Status: policy.RuleStatusApproved,
			SourceCitation: "42 U.S.C. 602",
			Parameters: &policy.AllotmentParams{
				MaxAllotments:       testutil.DecTable(map[int]string{1: "300", 2: "450", 3: "600"}),
				PerAdditionalMember: testutil.Dec("100"),
			},
		},
	}
}

func TestEvaluate_TANF(t *testing.T) {
	eng := engine.New(&testutil.StaticResolver{Rules: tanfRules("2024-10-01")})
	ctx := context.Background()

	t.Run("grant reduced by countable income", func(t *testing.T) {
		h := &policy.HouseholdProfile{
			Size:         3,
			Jurisdiction: "US",
			EarnedIncome: testutil.Dec("800"),
		}
		det, err := eng.Evaluate(ctx, policy.ProgramTANF, h, asOf)
		require.NoError(t, err)

		// countable = 800 - 50% disregard = 400; grant = 600 - 400.
		assert.True(t, det.Eligible)
		require.NotNil(t, det.MonthlyBenefit)
		assert.True(t, det.MonthlyBenefit.Equal(testutil.Dec("200")), "grant = %s", det.MonthlyBenefit)
	})

	t.Run("over gross limit", func(t *testing.T) {
		h := &policy.HouseholdProfile{
			Size:         3,
			Jurisdiction: "US",
			EarnedIncome: testutil.Dec("1400"),
		}
		det, err := eng.Evaluate(ctx, policy.ProgramTANF, h, asOf)
		require.NoError(t, err)
		assert.False(t, det.Eligible)
		assert.Nil(t, det.MonthlyBenefit)
	})

	t.Run("countable income above payment standard", func(t *testing.T) {
		h := &policy.HouseholdProfile{
			Size:           3,
			Jurisdiction:   "US",
			UnearnedIncome: testutil.Dec("1250"),
		}
		det, err := eng.Evaluate(ctx, policy.ProgramTANF, h, asOf)
		require.NoError(t, err)
		assert.False(t, det.Eligible, "zero grant means ineligible")
	})
}

func TestEvaluate_Medicaid(t *testing.T) {
	rules := []policy.Rule{
		{
			ID: "medicaid-magi-limit", Program: policy.ProgramMedicaid, RuleType: policy.RuleTypeIncomeLimit,
			Jurisdiction: "US", EffectiveDate: testutil.Date("2024-01-01"), Status: policy.RuleStatusApproved,
			SourceCitation: "42 U.S.C. 1396a",
			Parameters: &policy.IncomeLimitParams{
				GrossLimits:         testutil.DecTable(map[int]string{1: "1732", 2: "2351", 3: "2970"}),
				PerAdditionalMember: testutil.Dec("619"),
			},
		},
		{
			ID: "medicaid-categorical", Program: policy.ProgramMedicaid, RuleType: policy.RuleTypeCategorical,
			Jurisdiction: "US", EffectiveDate: testutil.Date("2024-01-01"), Status: policy.RuleStatusApproved,
			SourceCitation: "42 U.S.C. 1396a",
			Parameters: &policy.CategoricalParams{
				QualifyingPrograms: []string{"ssi"},
			},
		},
	}
	eng := engine.New(&testutil.StaticResolver{Rules: rules})
	ctx := context.Background()

	t.Run("under limit eligible with no amount", func(t *testing.T) {
		h := &policy.HouseholdProfile{Size: 2, Jurisdiction: "US", EarnedIncome: testutil.Dec("2000")}
		det, err := eng.Evaluate(ctx, policy.ProgramMedicaid, h, asOf)
		require.NoError(t, err)
		assert.True(t, det.Eligible)
		assert.Nil(t, det.MonthlyBenefit)
		assert.Nil(t, det.AnnualCredit)
	})

	t.Run("over limit", func(t *testing.T) {
		h := &policy.HouseholdProfile{Size: 2, Jurisdiction: "US", EarnedIncome: testutil.Dec("2400")}
		det, err := eng.Evaluate(ctx, policy.ProgramMedicaid, h, asOf)
		require.NoError(t, err)
		assert.False(t, det.Eligible)
	})

	t.Run("ssi recipient over limit still eligible", func(t *testing.T) {
		h := &policy.HouseholdProfile{
			Size: 2, Jurisdiction: "US",
			EarnedIncome:     testutil.Dec("2400"),
			ReceivesPrograms: []string{"ssi"},
		}
		det, err := eng.Evaluate(ctx, policy.ProgramMedicaid, h, asOf)
		require.NoError(t, err)
		assert.True(t, det.Eligible)
	})
}

func TestEvaluate_TaxCredit(t *testing.T) {
	rules := []policy.Rule{
		{
			ID: "eitc-schedule", Program: policy.ProgramTaxCredit, RuleType: policy.RuleTypeAllotment,
			Jurisdiction: "US", EffectiveDate: testutil.Date("2024-01-01"), Status: policy.RuleStatusApproved,
			SourceCitation: "26 U.S.C. 32",
			Parameters: &policy.AllotmentParams{
				PhaseInRate:       testutil.Dec("0.40"),
				PlateauAmount:     testutil.Dec("6960"),
				PhaseOutRate:      testutil.Dec("0.2106"),
				PhaseOutThreshold: testutil.Dec("22720"),
			},
		},
	}
	eng := engine.New(&testutil.StaticResolver{Rules: rules})
	ctx := context.Background()

	t.Run("phase-in", func(t *testing.T) {
		h := &policy.HouseholdProfile{Size: 3, Jurisdiction: "US", EarnedIncome: testutil.Dec("1000")}
		det, err := eng.Evaluate(ctx, policy.ProgramTaxCredit, h, asOf)
		require.NoError(t, err)

		// 40% of 12000 annual earned income.
		assert.True(t, det.Eligible)
		assert.Nil(t, det.MonthlyBenefit)
		require.NotNil(t, det.AnnualCredit)
		assert.True(t, det.AnnualCredit.Equal(testutil.Dec("4800")), "credit = %s", det.AnnualCredit)
	})

	t.Run("plateau", func(t *testing.T) {
		h := &policy.HouseholdProfile{Size: 3, Jurisdiction: "US", EarnedIncome: testutil.Dec("1800")}
		det, err := eng.Evaluate(ctx, policy.ProgramTaxCredit, h, asOf)
		require.NoError(t, err)
		require.NotNil(t, det.AnnualCredit)
		assert.True(t, det.AnnualCredit.Equal(testutil.Dec("6960")), "credit capped at plateau, got %s", det.AnnualCredit)
	})

	t.Run("phase-out", func(t *testing.T) {
		h := &policy.HouseholdProfile{Size: 3, Jurisdiction: "US", EarnedIncome: testutil.Dec("2500")}
		det, err := eng.Evaluate(ctx, policy.ProgramTaxCredit, h, asOf)
		require.NoError(t, err)

		// Annual gross 30000 is 7280 over the threshold:
		// 6960 - 0.2106 * 7280 rounds to 5427.
		require.NotNil(t, det.AnnualCredit)
		assert.True(t, det.AnnualCredit.Equal(testutil.Dec("5427")), "credit = %s", det.AnnualCredit)
	})

	t.Run("fully phased out", func(t *testing.T) {
		h := &policy.HouseholdProfile{Size: 3, Jurisdiction: "US", EarnedIncome: testutil.Dec("5000")}
		det, err := eng.Evaluate(ctx, policy.ProgramTaxCredit, h, asOf)
		require.NoError(t, err)
		assert.False(t, det.Eligible)
		assert.Nil(t, det.AnnualCredit)
	})

	t.Run("no earned income", func(t *testing.T) {
		h := &policy.HouseholdProfile{Size: 3, Jurisdiction: "US", UnearnedIncome: testutil.Dec("500")}
		det, err := eng.Evaluate(ctx, policy.ProgramTaxCredit, h, asOf)
		require.NoError(t, err)
		assert.False(t, det.Eligible)
	})
}
