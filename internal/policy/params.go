package policy

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// RuleParameters is the tagged-variant interface for per-RuleType
// parameter shapes. Exactly one concrete struct exists per RuleType.
// Shapes are validated at write time (store and rule-pack compiler),
// never at evaluation time.
type RuleParameters interface {
	// Type returns the RuleType this shape belongs to.
	Type() RuleType

	// Validate checks internal consistency of the shape.
	Validate() error
}

// IncomeLimitParams holds gross and net monthly income limits by
// household size. PerAdditionalMember extends both tables past the
// largest listed size.
type IncomeLimitParams struct {
	// GrossLimits maps household size to the gross monthly income limit.
	GrossLimits map[int]decimal.Decimal `json:"gross_limits"`

	// NetLimits maps household size to the net monthly income limit.
	// Empty for programs with a gross test only (e.g. Medicaid MAGI).
	NetLimits map[int]decimal.Decimal `json:"net_limits,omitempty"`

	// PerAdditionalMember is added per member beyond the largest size
	// present in the tables.
	PerAdditionalMember decimal.Decimal `json:"per_additional_member"`

	// AnnualBasis marks limits expressed per year rather than per month
	// (tax credit programs).
	AnnualBasis bool `json:"annual_basis,omitempty"`
}

func (p *IncomeLimitParams) Type() RuleType { return RuleTypeIncomeLimit }

func (p *IncomeLimitParams) Validate() error {
	if len(p.GrossLimits) == 0 {
		return fmt.Errorf("income limit: gross limits table is empty")
	}
	for size, amt := range p.GrossLimits {
		if size < 1 {
			return fmt.Errorf("income limit: household size %d < 1", size)
		}
		if amt.IsNegative() {
			return fmt.Errorf("income limit: negative gross limit for size %d", size)
		}
	}
	for size, amt := range p.NetLimits {
		if size < 1 {
			return fmt.Errorf("income limit: household size %d < 1", size)
		}
		if amt.IsNegative() {
			return fmt.Errorf("income limit: negative net limit for size %d", size)
		}
	}
	if p.PerAdditionalMember.IsNegative() {
		return fmt.Errorf("income limit: negative per-additional-member increment")
	}
	return nil
}

// DeductionKind names the deduction a DeductionParams rule codifies.
// The engine applies deductions in a fixed order regardless of rule
// declaration order: standard, earned income, excess shelter, medical,
// dependent care.
type DeductionKind string

const (
	DeductionStandard      DeductionKind = "standard"
	DeductionEarnedIncome  DeductionKind = "earned_income"
	DeductionExcessShelter DeductionKind = "excess_shelter"
	DeductionMedical       DeductionKind = "medical"
	DeductionDependentCare DeductionKind = "dependent_care"
)

// DeductionParams codifies one deduction. Which fields apply depends on
// Kind:
//
//   - standard: Amounts (by household size)
//   - earned_income: Rate (fraction of earned income, e.g. 0.20)
//   - excess_shelter: IncomeShare (threshold fraction of adjusted
//     income), Cap (nil = uncapped), CapExemptElderlyDisabled
//   - medical: Threshold (excess over this amount is deductible),
//     restricted to households with an elderly or disabled member
//   - dependent_care: fully deductible, no parameters beyond Kind
type DeductionParams struct {
	Kind DeductionKind `json:"kind"`

	Amounts map[int]decimal.Decimal `json:"amounts,omitempty"`
	Rate    decimal.Decimal         `json:"rate,omitempty"`

	IncomeShare              decimal.Decimal  `json:"income_share,omitempty"`
	Cap                      *decimal.Decimal `json:"cap,omitempty"`
	CapExemptElderlyDisabled bool             `json:"cap_exempt_elderly_disabled,omitempty"`

	Threshold decimal.Decimal `json:"threshold,omitempty"`
}

func (p *DeductionParams) Type() RuleType { return RuleTypeDeduction }

func (p *DeductionParams) Validate() error {
	switch p.Kind {
	case DeductionStandard:
		if len(p.Amounts) == 0 {
			return fmt.Errorf("deduction %s: amounts table is empty", p.Kind)
		}
		for size, amt := range p.Amounts {
			if size < 1 || amt.IsNegative() {
				return fmt.Errorf("deduction %s: invalid entry size=%d amount=%s", p.Kind, size, amt)
			}
		}
	case DeductionEarnedIncome:
		if p.Rate.IsNegative() || p.Rate.GreaterThan(decimal.NewFromInt(1)) {
			return fmt.Errorf("deduction %s: rate %s outside [0,1]", p.Kind, p.Rate)
		}
	case DeductionExcessShelter:
		if p.IncomeShare.IsNegative() || p.IncomeShare.GreaterThan(decimal.NewFromInt(1)) {
			return fmt.Errorf("deduction %s: income share %s outside [0,1]", p.Kind, p.IncomeShare)
		}
		if p.Cap != nil && p.Cap.IsNegative() {
			return fmt.Errorf("deduction %s: negative cap", p.Kind)
		}
	case DeductionMedical:
		if p.Threshold.IsNegative() {
			return fmt.Errorf("deduction %s: negative threshold", p.Kind)
		}
	case DeductionDependentCare:
		// No parameters.
	default:
		return fmt.Errorf("deduction: unknown kind %q", p.Kind)
	}
	return nil
}

// AllotmentParams codifies the benefit amount calculation.
//
// For monthly-benefit programs (SNAP, TANF): MaxAllotments by household
// size, reduced by BenefitReductionRate times net income, floored at
// MinimumBenefit for the smallest households.
//
// For annual tax credits: PhaseInRate up to PlateauAmount, level until
// PhaseOutThreshold, then reduced by PhaseOutRate per unit of income
// past the threshold.
type AllotmentParams struct {
	MaxAllotments        map[int]decimal.Decimal `json:"max_allotments,omitempty"`
	PerAdditionalMember  decimal.Decimal         `json:"per_additional_member,omitempty"`
	BenefitReductionRate decimal.Decimal         `json:"benefit_reduction_rate,omitempty"`
	MinimumBenefit       decimal.Decimal         `json:"minimum_benefit,omitempty"`
	MinimumBenefitMaxSize int                    `json:"minimum_benefit_max_size,omitempty"`

	PhaseInRate       decimal.Decimal `json:"phase_in_rate,omitempty"`
	PlateauAmount     decimal.Decimal `json:"plateau_amount,omitempty"`
	PhaseOutRate      decimal.Decimal `json:"phase_out_rate,omitempty"`
	PhaseOutThreshold decimal.Decimal `json:"phase_out_threshold,omitempty"`
}

func (p *AllotmentParams) Type() RuleType { return RuleTypeAllotment }

func (p *AllotmentParams) Validate() error {
	if len(p.MaxAllotments) == 0 && p.PlateauAmount.IsZero() {
		return fmt.Errorf("allotment: neither an allotment table nor a credit schedule is present")
	}
	for size, amt := range p.MaxAllotments {
		if size < 1 || amt.IsNegative() {
			return fmt.Errorf("allotment: invalid entry size=%d amount=%s", size, amt)
		}
	}
	one := decimal.NewFromInt(1)
	for _, rate := range []decimal.Decimal{p.BenefitReductionRate, p.PhaseInRate, p.PhaseOutRate} {
		if rate.IsNegative() || rate.GreaterThan(one) {
			return fmt.Errorf("allotment: rate %s outside [0,1]", rate)
		}
	}
	if p.MinimumBenefit.IsNegative() || p.PlateauAmount.IsNegative() || p.PhaseOutThreshold.IsNegative() {
		return fmt.Errorf("allotment: negative amount")
	}
	return nil
}

// CategoricalParams lists programs whose receipt confers automatic
// eligibility, bypassing income and asset tests entirely.
type CategoricalParams struct {
	QualifyingPrograms []string `json:"qualifying_programs"`
}

func (p *CategoricalParams) Type() RuleType { return RuleTypeCategorical }

func (p *CategoricalParams) Validate() error {
	if len(p.QualifyingPrograms) == 0 {
		return fmt.Errorf("categorical eligibility: qualifying programs list is empty")
	}
	for _, q := range p.QualifyingPrograms {
		if q == "" {
			return fmt.Errorf("categorical eligibility: empty program name")
		}
	}
	return nil
}

// DocumentRequirementParams lists documents an applicant must provide.
// Not used in benefit math; carried for completeness of the rule base.
type DocumentRequirementParams struct {
	Documents []string `json:"documents"`
	AppliesTo string   `json:"applies_to,omitempty"`
}

func (p *DocumentRequirementParams) Type() RuleType { return RuleTypeDocumentRequirement }

func (p *DocumentRequirementParams) Validate() error {
	if len(p.Documents) == 0 {
		return fmt.Errorf("document requirement: documents list is empty")
	}
	return nil
}

// paramsEnvelope is the tagged JSON encoding of RuleParameters:
// the variant's fields plus a "type" discriminator.
type paramsEnvelope struct {
	Type RuleType `json:"type"`
}

// MarshalParameters encodes params as a tagged JSON envelope.
func MarshalParameters(p RuleParameters) ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("marshal parameters: nil")
	}
	inner, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal parameters: %w", err)
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(inner, &m); err != nil {
		return nil, fmt.Errorf("marshal parameters: %w", err)
	}
	tag, _ := json.Marshal(p.Type())
	m["type"] = tag
	return json.Marshal(m)
}

// UnmarshalParameters decodes a tagged JSON envelope into the concrete
// variant named by its "type" field.
func UnmarshalParameters(data []byte) (RuleParameters, error) {
	var env paramsEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("unmarshal parameters: %w", err)
	}

	var p RuleParameters
	switch env.Type {
	case RuleTypeIncomeLimit:
		p = &IncomeLimitParams{}
	case RuleTypeDeduction:
		p = &DeductionParams{}
	case RuleTypeAllotment:
		p = &AllotmentParams{}
	case RuleTypeCategorical:
		p = &CategoricalParams{}
	case RuleTypeDocumentRequirement:
		p = &DocumentRequirementParams{}
	default:
		return nil, fmt.Errorf("unmarshal parameters: unknown type %q", env.Type)
	}

	if err := json.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("unmarshal parameters (%s): %w", env.Type, err)
	}
	return p, nil
}
