// Package testutil provides shared fixtures for store, engine, and
// harness tests: an in-temp-dir SQLite store, a static rule resolver,
// and a consistent SNAP rule set with known arithmetic.
package testutil

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/civigo/benefits/internal/policy"
	"github.com/civigo/benefits/internal/store"
)

// OpenStore opens a fresh SQLite store under t.TempDir, closed on
// cleanup.
func OpenStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "benefits.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// Dec parses a decimal literal, failing the build on typos rather
// than at run time.
func Dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// Date parses a YYYY-MM-DD literal.
func Date(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

// DecTable builds a size-keyed decimal table from string literals.
func DecTable(entries map[int]string) map[int]decimal.Decimal {
	table := make(map[int]decimal.Decimal, len(entries))
	for size, amt := range entries {
		table[size] = Dec(amt)
	}
	return table
}

// StaticResolver implements engine.RuleResolver over a fixed rule
// slice, for engine tests that do not need a database.
type StaticResolver struct {
	Rules []policy.Rule
}

// EffectiveRules returns the rules matching the program and
// jurisdiction that are effective at asOf.
func (r *StaticResolver) EffectiveRules(_ context.Context, program policy.Program, jurisdiction string, asOf time.Time) ([]policy.Rule, error) {
	var out []policy.Rule
	for _, rule := range r.Rules {
		if rule.Program == program && rule.Jurisdiction == jurisdiction && rule.EffectiveAt(asOf) {
			out = append(out, rule)
		}
	}
	return out, nil
}

// SNAPRules returns a complete approved SNAP rule set with fixed
// parameters:
//
//   - gross limits 130% FPL-ish: size 1..4 = 1580, 2137, 2694, 3250;
//     net limits size 1..4 = 1215, 1644, 2072, 2500; +407 gross /
//     +429 net per additional member
//   - standard deduction 198 for sizes 1-3, 208 for 4, 244 for 5+
//   - earned income deduction 20%
//   - medical deduction: excess over 35, elderly/disabled only
//   - dependent care fully deductible
//   - excess shelter: shelter plus utilities above 50% of adjusted
//     income, capped at 624 unless elderly/disabled
//   - max allotments size 1..4 = 291, 535, 766, 973, +219 per
//     additional member; 30% reduction rate; minimum benefit 23 for
//     sizes 1-2
//   - categorical eligibility via TANF or SSI receipt
//
// With these parameters a size-3 household with 2500 earned income,
// 900 shelter, and 150 utilities nets 1802 before shelter, takes a
// 149 excess shelter deduction, and lands on a 270 monthly benefit.
func SNAPRules(effective time.Time) []policy.Rule {
	mk := func(id string, ruleType policy.RuleType, params policy.RuleParameters) policy.Rule {
		return policy.Rule{
			ID:             id,
			Program:        policy.ProgramSNAP,
			RuleType:       ruleType,
			Jurisdiction:   "US",
			Parameters:     params,
			EffectiveDate:  effective,
			SourceCitation: "7 U.S.C. 2014",
			Status:         policy.RuleStatusApproved,
			CreatedAt:      effective,
		}
	}

	shelterCap := Dec("624")
	return []policy.Rule{
		mk("snap-income-limit", policy.RuleTypeIncomeLimit, &policy.IncomeLimitParams{
			GrossLimits:         DecTable(map[int]string{1: "1580", 2: "2137", 3: "2694", 4: "3250"}),
			NetLimits:           DecTable(map[int]string{1: "1215", 2: "1644", 3: "2072", 4: "2500"}),
			PerAdditionalMember: Dec("407"),
		}),
		mk("snap-standard-deduction", policy.RuleTypeDeduction, &policy.DeductionParams{
			Kind:    policy.DeductionStandard,
			Amounts: DecTable(map[int]string{1: "198", 2: "198", 3: "198", 4: "208", 5: "244"}),
		}),
		mk("snap-earned-income-deduction", policy.RuleTypeDeduction, &policy.DeductionParams{
			Kind: policy.DeductionEarnedIncome,
			Rate: Dec("0.20"),
		}),
		mk("snap-medical-deduction", policy.RuleTypeDeduction, &policy.DeductionParams{
			Kind:      policy.DeductionMedical,
			Threshold: Dec("35"),
		}),
		mk("snap-dependent-care-deduction", policy.RuleTypeDeduction, &policy.DeductionParams{
			Kind: policy.DeductionDependentCare,
		}),
		mk("snap-excess-shelter-deduction", policy.RuleTypeDeduction, &policy.DeductionParams{
			Kind:                     policy.DeductionExcessShelter,
			IncomeShare:              Dec("0.50"),
			Cap:                      &shelterCap,
			CapExemptElderlyDisabled: true,
		}),
		mk("snap-allotment", policy.RuleTypeAllotment, &policy.AllotmentParams{
			MaxAllotments:         DecTable(map[int]string{1: "291", 2: "535", 3: "766", 4: "973"}),
			PerAdditionalMember:   Dec("219"),
			BenefitReductionRate:  Dec("0.30"),
			MinimumBenefit:        Dec("23"),
			MinimumBenefitMaxSize: 2,
		}),
		mk("snap-categorical-eligibility", policy.RuleTypeCategorical, &policy.CategoricalParams{
			QualifyingPrograms: []string{"tanf", "ssi"},
		}),
	}
}

// ScenarioHousehold is the size-3 household used across engine and
// harness tests: 2500 earned income, 900 shelter, 150 utilities.
func ScenarioHousehold() *policy.HouseholdProfile {
	return &policy.HouseholdProfile{
		Size:         3,
		Jurisdiction: "US",
		EarnedIncome: Dec("2500"),
		ShelterCost:  Dec("900"),
		UtilityCost:  Dec("150"),
	}
}

// SeedSNAPRules inserts the fixture rules as drafts and approves
// them, exercising the same write path production uses.
func SeedSNAPRules(t *testing.T, s *store.Store, effective time.Time) []policy.Rule {
	t.Helper()
	ctx := context.Background()
	rules := SNAPRules(effective)
	for i := range rules {
		draft := rules[i]
		draft.Status = policy.RuleStatusDraft
		require.NoError(t, s.InsertDraftRule(ctx, &draft))
		require.NoError(t, s.ApproveRule(ctx, draft.ID))
	}
	return rules
}
