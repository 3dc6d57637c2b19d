package policy

import (
	"crypto/sha256"
	"encoding/hex"
)

// Domain prefixes for content-addressed identity. The version suffix
// enables future algorithm migration.
const (
	DomainDetermination = "benefits/determination/v1"
)

// hashWithDomain computes SHA-256 with domain separation:
// SHA256(domain || 0x00 || data). The null separator prevents
// domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// DeterminationHash computes the content-addressed identity of a
// determination. Evaluating the same (program, household, asOfDate)
// twice yields the same hash: the engine is deterministic and the
// canonical encoding is byte-stable.
func DeterminationHash(d *Determination) (string, error) {
	deductions := make([]any, len(d.Intermediates.Deductions))
	for i, line := range d.Intermediates.Deductions {
		deductions[i] = map[string]any{
			"kind":   string(line.Kind),
			"amount": line.Amount,
		}
	}

	obj := map[string]any{
		"program":       string(d.Program),
		"jurisdiction":  d.Jurisdiction,
		"eligible":      d.Eligible,
		"applied_rules": d.AppliedRules,
		"as_of_date":    d.AsOfDate,
		"intermediates": map[string]any{
			"gross_income":     d.Intermediates.GrossIncome,
			"net_income":       d.Intermediates.NetIncome,
			"total_deductions": d.Intermediates.TotalDeductions,
			"deductions":       deductions,
		},
	}
	if d.MonthlyBenefit != nil {
		obj["monthly_benefit"] = *d.MonthlyBenefit
	}
	if d.AnnualCredit != nil {
		obj["annual_credit"] = *d.AnnualCredit
	}

	data, err := MarshalCanonical(obj)
	if err != nil {
		return "", err
	}
	return hashWithDomain(DomainDetermination, data), nil
}
