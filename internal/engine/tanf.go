package engine

import (
	"fmt"

	"github.com/civigo/benefits/internal/policy"
)

// tanf runs the TANF determination: a payment standard by household
// size reduced by countable income, where countable income is gross
// income less an earned-income disregard.
func (ev *evaluation) tanf() (*policy.Determination, error) {
	h := ev.household
	gross := h.GrossIncome()

	categorical := ev.categoricallyEligible()

	if err := ev.requireRule(ev.rules.allotment, policy.RuleTypeAllotment); err != nil {
		return nil, err
	}
	allotParams := ev.rules.allotment.Parameters.(*policy.AllotmentParams)

	if rule, p := ev.rules.deduction(policy.DeductionEarnedIncome); rule != nil {
		earned := h.EarnedIncome.Add(h.SelfEmploymentNet)
		if earned.IsPositive() {
			ev.apply(rule.ID)
			ev.deduct(policy.DeductionEarnedIncome, p.Rate.Mul(earned))
		}
	}
	countable := floorZero(gross.Sub(ev.totalDed))

	if !categorical {
		if err := ev.requireRule(ev.rules.incomeLimit, policy.RuleTypeIncomeLimit); err != nil {
			return nil, err
		}
		limits := ev.rules.incomeLimit.Parameters.(*policy.IncomeLimitParams)
		ev.apply(ev.rules.incomeLimit.ID)

		grossLimit, ok := tableLookup(limits.GrossLimits, limits.PerAdditionalMember, h.Size)
		if !ok {
			return nil, NewRuleNotFoundError(
				fmt.Sprintf("no gross income limit for household size %d", h.Size),
				string(ev.program), h.Jurisdiction, ev.asOf.Format("2006-01-02"))
		}
		if gross.GreaterThan(grossLimit) {
			return ev.determination(false, gross, countable, nil, nil), nil
		}
	}

	standard, ok := tableLookup(allotParams.MaxAllotments, allotParams.PerAdditionalMember, h.Size)
	if !ok {
		return nil, NewRuleNotFoundError(
			fmt.Sprintf("no payment standard for household size %d", h.Size),
			string(ev.program), h.Jurisdiction, ev.asOf.Format("2006-01-02"))
	}
	ev.apply(ev.rules.allotment.ID)

	benefit := roundBenefit(floorZero(standard.Sub(countable)))
	if benefit.IsZero() && !categorical {
		// Countable income at or above the payment standard: no grant.
		return ev.determination(false, gross, countable, nil, nil), nil
	}

	return ev.determination(true, gross, countable, &benefit, nil), nil
}
