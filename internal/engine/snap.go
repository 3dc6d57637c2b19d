package engine

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/civigo/benefits/internal/policy"
)

// snap runs the SNAP determination pipeline.
//
// Deduction order: standard, earned income, medical, dependent care,
// then excess shelter. The shelter deduction's income threshold is a
// share of income remaining after every other deduction, which is why
// it is computed last even though it precedes medical and dependent
// care in statute ordering.
func (ev *evaluation) snap() (*policy.Determination, error) {
	h := ev.household
	gross := h.GrossIncome()

	categorical := ev.categoricallyEligible()

	if err := ev.requireRule(ev.rules.allotment, policy.RuleTypeAllotment); err != nil {
		return nil, err
	}
	allotParams, ok := ev.rules.allotment.Parameters.(*policy.AllotmentParams)
	if !ok || len(allotParams.MaxAllotments) == 0 {
		return nil, NewRuleNotFoundError("allotment rule has no allotment table",
			string(ev.program), h.Jurisdiction, ev.asOf.Format("2006-01-02"))
	}

	ev.snapDeductions(gross)
	net := floorZero(gross.Sub(ev.totalDed))

	if !categorical {
		if err := ev.requireRule(ev.rules.incomeLimit, policy.RuleTypeIncomeLimit); err != nil {
			return nil, err
		}
		limits := ev.rules.incomeLimit.Parameters.(*policy.IncomeLimitParams)
		ev.apply(ev.rules.incomeLimit.ID)

		passed, err := ev.snapIncomeTests(limits, gross, net)
		if err != nil {
			return nil, err
		}
		if !passed {
			return ev.determination(false, gross, net, nil, nil), nil
		}
	}

	maxAllotment, ok := tableLookup(allotParams.MaxAllotments, allotParams.PerAdditionalMember, h.Size)
	if !ok {
		return nil, NewRuleNotFoundError(
			fmt.Sprintf("no allotment for household size %d", h.Size),
			string(ev.program), h.Jurisdiction, ev.asOf.Format("2006-01-02"))
	}
	ev.apply(ev.rules.allotment.ID)

	benefit := roundBenefit(floorZero(maxAllotment.Sub(allotParams.BenefitReductionRate.Mul(net))))
	if allotParams.MinimumBenefitMaxSize > 0 &&
		h.Size <= allotParams.MinimumBenefitMaxSize &&
		benefit.LessThan(allotParams.MinimumBenefit) {
		benefit = allotParams.MinimumBenefit
	}

	return ev.determination(true, gross, net, &benefit, nil), nil
}

// snapDeductions applies the effective deduction rules. Missing
// deduction rules are skipped: a jurisdiction without a codified
// medical deduction simply deducts nothing for it.
func (ev *evaluation) snapDeductions(gross decimal.Decimal) {
	h := ev.household

	if rule, p := ev.rules.deduction(policy.DeductionStandard); rule != nil {
		if amt, ok := tableLookup(p.Amounts, decimal.Zero, h.Size); ok {
			ev.apply(rule.ID)
			ev.deduct(policy.DeductionStandard, amt)
		}
	}

	if rule, p := ev.rules.deduction(policy.DeductionEarnedIncome); rule != nil {
		earned := h.EarnedIncome.Add(h.SelfEmploymentNet)
		if earned.IsPositive() {
			ev.apply(rule.ID)
			ev.deduct(policy.DeductionEarnedIncome, p.Rate.Mul(earned))
		}
	}

	if rule, p := ev.rules.deduction(policy.DeductionMedical); rule != nil {
		if h.HasElderlyOrDisabled() && h.MedicalExpenses.GreaterThan(p.Threshold) {
			ev.apply(rule.ID)
			ev.deduct(policy.DeductionMedical, h.MedicalExpenses.Sub(p.Threshold))
		}
	}

	if rule, _ := ev.rules.deduction(policy.DeductionDependentCare); rule != nil {
		if h.DependentCare.IsPositive() {
			ev.apply(rule.ID)
			ev.deduct(policy.DeductionDependentCare, h.DependentCare)
		}
	}

	if rule, p := ev.rules.deduction(policy.DeductionExcessShelter); rule != nil {
		adjusted := floorZero(gross.Sub(ev.totalDed))
		shelter := h.ShelterCost.Add(h.UtilityCost)
		excess := shelter.Sub(p.IncomeShare.Mul(adjusted))
		if excess.IsPositive() {
			if p.Cap != nil && excess.GreaterThan(*p.Cap) &&
				!(p.CapExemptElderlyDisabled && h.HasElderlyOrDisabled()) {
				excess = *p.Cap
			}
			ev.apply(rule.ID)
			ev.deduct(policy.DeductionExcessShelter, excess)
		}
	}
}

// snapIncomeTests runs the gross and net income tests. Ineligible if
// either fails.
func (ev *evaluation) snapIncomeTests(limits *policy.IncomeLimitParams, gross, net decimal.Decimal) (bool, error) {
	h := ev.household

	grossLimit, ok := tableLookup(limits.GrossLimits, limits.PerAdditionalMember, h.Size)
	if !ok {
		return false, NewRuleNotFoundError(
			fmt.Sprintf("no gross income limit for household size %d", h.Size),
			string(ev.program), h.Jurisdiction, ev.asOf.Format("2006-01-02"))
	}
	if gross.GreaterThan(grossLimit) {
		return false, nil
	}

	if len(limits.NetLimits) > 0 {
		netLimit, ok := tableLookup(limits.NetLimits, limits.PerAdditionalMember, h.Size)
		if !ok {
			return false, NewRuleNotFoundError(
				fmt.Sprintf("no net income limit for household size %d", h.Size),
				string(ev.program), h.Jurisdiction, ev.asOf.Format("2006-01-02"))
		}
		if net.GreaterThan(netLimit) {
			return false, nil
		}
	}
	return true, nil
}
