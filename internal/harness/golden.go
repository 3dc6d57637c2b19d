package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/civigo/benefits/internal/policy"
)

// determinationSnapshot converts a determination to the map shape
// accepted by canonical marshalling, so golden comparisons are
// byte-stable across runs.
func determinationSnapshot(name string, d *policy.Determination) map[string]any {
	deductions := make([]any, len(d.Intermediates.Deductions))
	for i, line := range d.Intermediates.Deductions {
		deductions[i] = map[string]any{
			"kind":   string(line.Kind),
			"amount": line.Amount,
		}
	}

	snapshot := map[string]any{
		"case_name":     name,
		"program":       string(d.Program),
		"jurisdiction":  d.Jurisdiction,
		"eligible":      d.Eligible,
		"as_of_date":    d.AsOfDate,
		"applied_rules": append([]string(nil), d.AppliedRules...),
		"intermediates": map[string]any{
			"gross_income":     d.Intermediates.GrossIncome,
			"net_income":       d.Intermediates.NetIncome,
			"total_deductions": d.Intermediates.TotalDeductions,
			"deductions":       deductions,
		},
	}
	if d.MonthlyBenefit != nil {
		snapshot["monthly_benefit"] = *d.MonthlyBenefit
	}
	if d.AnnualCredit != nil {
		snapshot["annual_credit"] = *d.AnnualCredit
	}
	return snapshot
}

// AssertGolden compares a determination against the golden file
// testdata/golden/{name}.golden, serialized canonically.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func AssertGolden(t *testing.T, name string, d *policy.Determination) error {
	t.Helper()

	data, err := policy.MarshalCanonical(determinationSnapshot(name, d))
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
	return nil
}
