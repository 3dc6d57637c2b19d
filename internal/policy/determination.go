package policy

import (
	"time"

	"github.com/shopspring/decimal"
)

// AppliedRuleCategorical is the audit-trail marker appended alongside
// the categorical-eligibility rule ID when income and asset tests were
// bypassed.
const AppliedRuleCategorical = "categorical_eligibility"

// DeductionLine records one deduction applied during evaluation, kept
// for audit and debugging.
type DeductionLine struct {
	Kind   DeductionKind   `json:"kind"`
	Amount decimal.Decimal `json:"amount"`
}

// Intermediates holds the intermediate values of a determination.
type Intermediates struct {
	GrossIncome     decimal.Decimal `json:"gross_income"`
	NetIncome       decimal.Decimal `json:"net_income"`
	TotalDeductions decimal.Decimal `json:"total_deductions"`
	Deductions      []DeductionLine `json:"deductions,omitempty"`
}

// Determination is the engine's output for one evaluation.
//
// Exactly one of MonthlyBenefit and AnnualCredit is set for an eligible
// household, depending on the program; both are nil when ineligible or
// when the program is eligibility-only (Medicaid).
//
// AsOfDate records which point in time rule versions were resolved
// against: the benefit is computed from the rules effective on that
// date, not the wall-clock time of the call.
type Determination struct {
	Program      Program `json:"program"`
	Jurisdiction string  `json:"jurisdiction"`
	Eligible     bool    `json:"eligible"`

	MonthlyBenefit *decimal.Decimal `json:"monthly_benefit,omitempty"`
	AnnualCredit   *decimal.Decimal `json:"annual_credit,omitempty"`

	AppliedRules  []string      `json:"applied_rules"`
	Intermediates Intermediates `json:"intermediate_values"`

	AsOfDate time.Time `json:"as_of_date"`
}

// Amount returns the determination's benefit amount (monthly or
// annual) and whether one is present.
func (d *Determination) Amount() (decimal.Decimal, bool) {
	if d.MonthlyBenefit != nil {
		return *d.MonthlyBenefit, true
	}
	if d.AnnualCredit != nil {
		return *d.AnnualCredit, true
	}
	return decimal.Zero, false
}

// Applied reports whether the audit trail contains the given entry
// (a rule ID, or the categorical-eligibility marker).
func (d *Determination) Applied(entry string) bool {
	for _, r := range d.AppliedRules {
		if r == entry {
			return true
		}
	}
	return false
}
