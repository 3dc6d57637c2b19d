package engine

import (
	"github.com/shopspring/decimal"

	"github.com/civigo/benefits/internal/policy"
)

var monthsPerYear = decimal.NewFromInt(12)

// taxCredit runs the refundable-credit determination (EITC-shaped):
// the credit phases in as a rate on annual earned income up to a
// plateau, holds level, then phases out past a gross-income threshold.
//
// Household income fields are monthly; the credit schedule is annual,
// so amounts are annualized before the schedule is applied. The result
// is an AnnualCredit, not a MonthlyBenefit.
func (ev *evaluation) taxCredit() (*policy.Determination, error) {
	h := ev.household

	if err := ev.requireRule(ev.rules.allotment, policy.RuleTypeAllotment); err != nil {
		return nil, err
	}
	params := ev.rules.allotment.Parameters.(*policy.AllotmentParams)

	annualEarned := h.EarnedIncome.Add(h.SelfEmploymentNet).Mul(monthsPerYear)
	annualGross := h.GrossIncome().Mul(monthsPerYear)

	ev.apply(ev.rules.allotment.ID)

	credit := params.PhaseInRate.Mul(annualEarned)
	if credit.GreaterThan(params.PlateauAmount) {
		credit = params.PlateauAmount
	}
	if annualGross.GreaterThan(params.PhaseOutThreshold) {
		over := annualGross.Sub(params.PhaseOutThreshold)
		credit = credit.Sub(params.PhaseOutRate.Mul(over))
	}
	credit = roundBenefit(floorZero(credit))

	if credit.IsZero() {
		return ev.determination(false, annualGross, annualGross, nil, nil), nil
	}
	return ev.determination(true, annualGross, annualGross, nil, &credit), nil
}
