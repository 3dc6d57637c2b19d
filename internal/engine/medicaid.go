package engine

import (
	"fmt"

	"github.com/civigo/benefits/internal/policy"
)

// medicaid runs the Medicaid determination: a MAGI-style gross income
// test against FPL-derived limits by household size. Eligibility only,
// no benefit amount.
func (ev *evaluation) medicaid() (*policy.Determination, error) {
	h := ev.household
	gross := h.GrossIncome()

	if ev.categoricallyEligible() {
		return ev.determination(true, gross, gross, nil, nil), nil
	}

	if err := ev.requireRule(ev.rules.incomeLimit, policy.RuleTypeIncomeLimit); err != nil {
		return nil, err
	}
	limits := ev.rules.incomeLimit.Parameters.(*policy.IncomeLimitParams)
	ev.apply(ev.rules.incomeLimit.ID)

	limit, ok := tableLookup(limits.GrossLimits, limits.PerAdditionalMember, h.Size)
	if !ok {
		return nil, NewRuleNotFoundError(
			fmt.Sprintf("no income limit for household size %d", h.Size),
			string(ev.program), h.Jurisdiction, ev.asOf.Format("2006-01-02"))
	}

	eligible := !gross.GreaterThan(limit)
	return ev.determination(eligible, gross, gross, nil, nil), nil
}
