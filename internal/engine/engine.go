package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/civigo/benefits/internal/policy"
)

// RuleResolver resolves the approved rules effective for a program,
// jurisdiction, and date. Implemented by the store; evaluations see a
// consistent snapshot (the store's approval transaction guarantees at
// most one effective rule per (program, ruleType, jurisdiction) key).
type RuleResolver interface {
	EffectiveRules(ctx context.Context, program policy.Program, jurisdiction string, asOf time.Time) ([]policy.Rule, error)
}

// Engine evaluates household profiles against codified program rules.
// Safe for concurrent use: the only dependency is the read-only
// resolver.
type Engine struct {
	resolver RuleResolver
}

// New creates an Engine backed by the given resolver.
func New(resolver RuleResolver) *Engine {
	return &Engine{resolver: resolver}
}

// Evaluate computes a benefit determination for the household under
// the given program, using the rule versions effective as of asOf.
// A zero asOf means the current UTC date.
//
// Deterministic and side-effect free: identical inputs produce
// byte-identical determinations.
func (e *Engine) Evaluate(ctx context.Context, program policy.Program, household *policy.HouseholdProfile, asOf time.Time) (*policy.Determination, error) {
	if !program.Valid() {
		return nil, NewInvalidInputError(fmt.Sprintf("unknown program %q", program))
	}
	if household == nil {
		return nil, NewInvalidInputError("household profile is required")
	}
	if err := household.Validate(); err != nil {
		return nil, NewInvalidInputError(err.Error())
	}
	if asOf.IsZero() {
		asOf = time.Now().UTC().Truncate(24 * time.Hour)
	}

	rules, err := e.resolver.EffectiveRules(ctx, program, household.Jurisdiction, asOf)
	if err != nil {
		return nil, fmt.Errorf("resolve rules: %w", err)
	}
	rs := newRuleSet(rules)
	if rs.empty() {
		return nil, NewRuleNotFoundError(
			"no effective rules",
			string(program), household.Jurisdiction, asOf.Format("2006-01-02"))
	}

	ev := &evaluation{
		program:   program,
		household: household,
		asOf:      asOf,
		rules:     rs,
	}

	switch program {
	case policy.ProgramSNAP:
		return ev.snap()
	case policy.ProgramTANF:
		return ev.tanf()
	case policy.ProgramMedicaid:
		return ev.medicaid()
	case policy.ProgramTaxCredit:
		return ev.taxCredit()
	default:
		return nil, NewInvalidInputError(fmt.Sprintf("program %q has no calculator", program))
	}
}

// ruleSet indexes effective rules by type for one evaluation.
// Deductions keep a stable ID-sorted order so the audit trail is
// deterministic regardless of resolver ordering.
type ruleSet struct {
	incomeLimit *policy.Rule
	allotment   *policy.Rule
	categorical *policy.Rule
	deductions  []policy.Rule
}

func newRuleSet(rules []policy.Rule) *ruleSet {
	rs := &ruleSet{}
	for i := range rules {
		r := rules[i]
		switch r.RuleType {
		case policy.RuleTypeIncomeLimit:
			rs.incomeLimit = &r
		case policy.RuleTypeAllotment:
			rs.allotment = &r
		case policy.RuleTypeCategorical:
			rs.categorical = &r
		case policy.RuleTypeDeduction:
			rs.deductions = append(rs.deductions, r)
		}
	}
	sort.Slice(rs.deductions, func(i, j int) bool {
		return rs.deductions[i].ID < rs.deductions[j].ID
	})
	return rs
}

func (rs *ruleSet) empty() bool {
	return rs.incomeLimit == nil && rs.allotment == nil && rs.categorical == nil && len(rs.deductions) == 0
}

// deduction returns the deduction rule of the given kind, or nil.
func (rs *ruleSet) deduction(kind policy.DeductionKind) (*policy.Rule, *policy.DeductionParams) {
	for i := range rs.deductions {
		p, ok := rs.deductions[i].Parameters.(*policy.DeductionParams)
		if ok && p.Kind == kind {
			return &rs.deductions[i], p
		}
	}
	return nil, nil
}

// evaluation carries the per-call state shared by program calculators.
type evaluation struct {
	program   policy.Program
	household *policy.HouseholdProfile
	asOf      time.Time
	rules     *ruleSet

	applied    []string
	deductions []policy.DeductionLine
	totalDed   decimal.Decimal
}

func (ev *evaluation) apply(ruleID string) {
	ev.applied = append(ev.applied, ruleID)
}

func (ev *evaluation) deduct(kind policy.DeductionKind, amount decimal.Decimal) {
	if amount.IsNegative() {
		amount = decimal.Zero
	}
	ev.deductions = append(ev.deductions, policy.DeductionLine{Kind: kind, Amount: amount})
	ev.totalDed = ev.totalDed.Add(amount)
}

// requireRule fails with RULE_NOT_FOUND when a calculator needs a rule
// type the effective set lacks.
func (ev *evaluation) requireRule(r *policy.Rule, ruleType policy.RuleType) error {
	if r == nil {
		return NewRuleNotFoundError(
			fmt.Sprintf("no effective %s rule", ruleType),
			string(ev.program), ev.household.Jurisdiction, ev.asOf.Format("2006-01-02"))
	}
	return nil
}

// categoricallyEligible reports whether the household bypasses income
// and asset tests, recording the rule in the audit trail when it does.
func (ev *evaluation) categoricallyEligible() bool {
	if ev.rules.categorical == nil {
		return false
	}
	params, ok := ev.rules.categorical.Parameters.(*policy.CategoricalParams)
	if !ok {
		return false
	}
	for _, q := range params.QualifyingPrograms {
		if ev.household.Receives(q) {
			ev.apply(ev.rules.categorical.ID)
			ev.apply(policy.AppliedRuleCategorical)
			return true
		}
	}
	return false
}

// determination assembles the output with intermediates and a
// deterministic applied-rules trail.
func (ev *evaluation) determination(eligible bool, gross, net decimal.Decimal, monthly, annual *decimal.Decimal) *policy.Determination {
	applied := make([]string, len(ev.applied))
	copy(applied, ev.applied)

	return &policy.Determination{
		Program:        ev.program,
		Jurisdiction:   ev.household.Jurisdiction,
		Eligible:       eligible,
		MonthlyBenefit: monthly,
		AnnualCredit:   annual,
		AppliedRules:   applied,
		Intermediates: policy.Intermediates{
			GrossIncome:     gross.Round(2),
			NetIncome:       net.Round(2),
			TotalDeductions: ev.totalDed.Round(2),
			Deductions:      ev.deductions,
		},
		AsOfDate: ev.asOf,
	}
}
