package policy

import (
	"encoding/json"
	"fmt"
	"time"
)

// Program identifies a public-assistance program.
type Program string

const (
	ProgramSNAP      Program = "snap"
	ProgramTANF      Program = "tanf"
	ProgramMedicaid  Program = "medicaid"
	ProgramTaxCredit Program = "tax_credit"
)

// ValidPrograms lists every supported program code.
var ValidPrograms = []Program{ProgramSNAP, ProgramTANF, ProgramMedicaid, ProgramTaxCredit}

// Valid reports whether p is a known program code.
func (p Program) Valid() bool {
	for _, v := range ValidPrograms {
		if p == v {
			return true
		}
	}
	return false
}

// RuleType categorizes a codified provision. Each type has exactly one
// parameter shape (see params.go).
type RuleType string

const (
	RuleTypeIncomeLimit         RuleType = "income_limit"
	RuleTypeDeduction           RuleType = "deduction"
	RuleTypeAllotment           RuleType = "allotment"
	RuleTypeCategorical         RuleType = "categorical_eligibility"
	RuleTypeDocumentRequirement RuleType = "document_requirement"
)

// ValidRuleTypes lists every supported rule type.
var ValidRuleTypes = []RuleType{
	RuleTypeIncomeLimit,
	RuleTypeDeduction,
	RuleTypeAllotment,
	RuleTypeCategorical,
	RuleTypeDocumentRequirement,
}

// Valid reports whether t is a known rule type.
func (t RuleType) Valid() bool {
	for _, v := range ValidRuleTypes {
		if t == v {
			return true
		}
	}
	return false
}

// RuleStatus tracks a rule through the approval workflow.
type RuleStatus string

const (
	RuleStatusDraft      RuleStatus = "draft"
	RuleStatusApproved   RuleStatus = "approved"
	RuleStatusSuperseded RuleStatus = "superseded"
)

// Rule is a single codified provision, versioned by effective date.
//
// INVARIANT: for any (Program, RuleType, Jurisdiction) key, at most one
// approved rule is effective at any point in time. Effective ranges are
// half-open [EffectiveDate, ExpirationDate); a nil ExpirationDate means
// open-ended. The store enforces this at write time; the engine relies
// on it at evaluation time.
//
// Rules are mutated only through the approval workflow. Superseding a
// rule sets its ExpirationDate and creates a successor record.
type Rule struct {
	ID             string         `json:"id"`
	Program        Program        `json:"program"`
	RuleType       RuleType       `json:"rule_type"`
	Jurisdiction   string         `json:"jurisdiction"`
	Parameters     RuleParameters `json:"parameters"`
	EffectiveDate  time.Time      `json:"effective_date"`
	ExpirationDate *time.Time     `json:"expiration_date,omitempty"`
	SourceCitation string         `json:"source_citation"`
	Status         RuleStatus     `json:"status"`

	// DependsOn lists rule IDs this rule's formula references. The
	// edges form a DAG; cycles are rejected at authoring time.
	DependsOn []string `json:"depends_on,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// EffectiveAt reports whether the rule's [EffectiveDate, ExpirationDate)
// interval contains t.
func (r *Rule) EffectiveAt(t time.Time) bool {
	if t.Before(r.EffectiveDate) {
		return false
	}
	if r.ExpirationDate != nil && !t.Before(*r.ExpirationDate) {
		return false
	}
	return true
}

// Key returns the uniqueness key for the effective-date invariant.
// Deduction rules key on their kind as well: the standard and shelter
// deductions version independently.
func (r *Rule) Key() string {
	if p, ok := r.Parameters.(*DeductionParams); ok {
		return fmt.Sprintf("%s/%s/%s/%s", r.Program, r.RuleType, p.Kind, r.Jurisdiction)
	}
	return fmt.Sprintf("%s/%s/%s", r.Program, r.RuleType, r.Jurisdiction)
}

// ruleJSON mirrors Rule with parameters as a raw tagged envelope, so
// the RuleParameters interface round-trips through JSON.
type ruleJSON struct {
	ID             string          `json:"id"`
	Program        Program         `json:"program"`
	RuleType       RuleType        `json:"rule_type"`
	Jurisdiction   string          `json:"jurisdiction"`
	Parameters     json.RawMessage `json:"parameters"`
	EffectiveDate  time.Time       `json:"effective_date"`
	ExpirationDate *time.Time      `json:"expiration_date,omitempty"`
	SourceCitation string          `json:"source_citation"`
	Status         RuleStatus      `json:"status"`
	DependsOn      []string        `json:"depends_on,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// MarshalJSON encodes the rule with its parameters as a tagged envelope.
func (r Rule) MarshalJSON() ([]byte, error) {
	var params json.RawMessage
	if r.Parameters != nil {
		p, err := MarshalParameters(r.Parameters)
		if err != nil {
			return nil, err
		}
		params = p
	}
	return json.Marshal(ruleJSON{
		ID:             r.ID,
		Program:        r.Program,
		RuleType:       r.RuleType,
		Jurisdiction:   r.Jurisdiction,
		Parameters:     params,
		EffectiveDate:  r.EffectiveDate,
		ExpirationDate: r.ExpirationDate,
		SourceCitation: r.SourceCitation,
		Status:         r.Status,
		DependsOn:      r.DependsOn,
		CreatedAt:      r.CreatedAt,
	})
}

// UnmarshalJSON decodes the tagged parameter envelope into the concrete
// variant for the rule's type.
func (r *Rule) UnmarshalJSON(data []byte) error {
	var rj ruleJSON
	if err := json.Unmarshal(data, &rj); err != nil {
		return err
	}
	r.ID = rj.ID
	r.Program = rj.Program
	r.RuleType = rj.RuleType
	r.Jurisdiction = rj.Jurisdiction
	r.EffectiveDate = rj.EffectiveDate
	r.ExpirationDate = rj.ExpirationDate
	r.SourceCitation = rj.SourceCitation
	r.Status = rj.Status
	r.DependsOn = rj.DependsOn
	r.CreatedAt = rj.CreatedAt
	if len(rj.Parameters) > 0 {
		p, err := UnmarshalParameters(rj.Parameters)
		if err != nil {
			return err
		}
		r.Parameters = p
	}
	return nil
}

// Validate checks structural validity: known enums, parameter shape
// matching the rule type, and a coherent effective range.
func (r *Rule) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("rule: id is required")
	}
	if !r.Program.Valid() {
		return fmt.Errorf("rule %s: unknown program %q", r.ID, r.Program)
	}
	if !r.RuleType.Valid() {
		return fmt.Errorf("rule %s: unknown rule type %q", r.ID, r.RuleType)
	}
	if r.Jurisdiction == "" {
		return fmt.Errorf("rule %s: jurisdiction is required", r.ID)
	}
	if r.EffectiveDate.IsZero() {
		return fmt.Errorf("rule %s: effective date is required", r.ID)
	}
	if r.ExpirationDate != nil && !r.ExpirationDate.After(r.EffectiveDate) {
		return fmt.Errorf("rule %s: expiration %s not after effective %s",
			r.ID, r.ExpirationDate.Format("2006-01-02"), r.EffectiveDate.Format("2006-01-02"))
	}
	if r.Parameters == nil {
		return fmt.Errorf("rule %s: parameters are required", r.ID)
	}
	if r.Parameters.Type() != r.RuleType {
		return fmt.Errorf("rule %s: parameter shape %q does not match rule type %q",
			r.ID, r.Parameters.Type(), r.RuleType)
	}
	if err := r.Parameters.Validate(); err != nil {
		return fmt.Errorf("rule %s: %w", r.ID, err)
	}
	return nil
}
