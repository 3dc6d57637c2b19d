package policy

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// LegislativeProvision is a discrete unit of legislative text, owned by
// a public law record. Immutable once ingested.
type LegislativeProvision struct {
	ID               string    `json:"id"`
	PublicLawID      string    `json:"public_law_id"`
	SectionNumber    string    `json:"section_number"`
	ProvisionType    string    `json:"provision_type"`
	ProvisionText    string    `json:"provision_text"`
	USCodeCitation   string    `json:"us_code_citation"`
	AffectedPrograms []Program `json:"affected_programs"`
	EffectiveDate    time.Time `json:"effective_date"`
	IngestedAt       time.Time `json:"ingested_at"`
}

// MappingType categorizes how a provision affects the mapped term.
type MappingType string

const (
	MappingAmends            MappingType = "amends"
	MappingSupersedes        MappingType = "supersedes"
	MappingAddsException     MappingType = "adds_exception"
	MappingModifiesThreshold MappingType = "modifies_threshold"
	MappingClarifies         MappingType = "clarifies"
	MappingRemoves           MappingType = "removes"
	MappingCreates           MappingType = "creates"
)

// ValidMappingTypes lists every supported mapping type.
var ValidMappingTypes = []MappingType{
	MappingAmends, MappingSupersedes, MappingAddsException,
	MappingModifiesThreshold, MappingClarifies, MappingRemoves, MappingCreates,
}

// Valid reports whether t is a known mapping type.
func (t MappingType) Valid() bool {
	for _, v := range ValidMappingTypes {
		if t == v {
			return true
		}
	}
	return false
}

// MatchMethod records how a mapping candidate was produced.
type MatchMethod string

const (
	MatchCitation   MatchMethod = "citation_match"
	MatchSemantic   MatchMethod = "semantic_similarity"
	MatchAIProposed MatchMethod = "ai_proposed"
	MatchManual     MatchMethod = "manual"
)

// ReviewStatus is the mapping state machine: pending -> approved or
// pending -> rejected. Terminal states are immutable; corrections
// require a new mapping.
type ReviewStatus string

const (
	ReviewPending  ReviewStatus = "pending"
	ReviewApproved ReviewStatus = "approved"
	ReviewRejected ReviewStatus = "rejected"
)

// Terminal reports whether s admits no further transitions.
func (s ReviewStatus) Terminal() bool {
	return s == ReviewApproved || s == ReviewRejected
}

// PriorityLevel orders the review queue.
type PriorityLevel string

const (
	PriorityUrgent PriorityLevel = "urgent"
	PriorityHigh   PriorityLevel = "high"
	PriorityNormal PriorityLevel = "normal"
	PriorityLow    PriorityLevel = "low"
)

// Rank returns a sortable weight, higher meaning more urgent.
func (p PriorityLevel) Rank() int {
	switch p {
	case PriorityUrgent:
		return 3
	case PriorityHigh:
		return 2
	case PriorityNormal:
		return 1
	default:
		return 0
	}
}

// ProvisionMapping links one provision to one ontology term / rule.
type ProvisionMapping struct {
	ID          string      `json:"id"`
	ProvisionID string      `json:"provision_id"`

	// RuleID is the mapped rule. OntologyTerm is the canonical concept
	// name the rule codifies (e.g. "snap net income limit").
	RuleID       string `json:"rule_id"`
	OntologyTerm string `json:"ontology_term"`

	MappingType MappingType `json:"mapping_type"`
	MatchMethod MatchMethod `json:"match_method"`

	AIConfidenceScore       decimal.Decimal `json:"ai_confidence_score"`
	CitationMatchScore      decimal.Decimal `json:"citation_match_score"`
	SemanticSimilarityScore decimal.Decimal `json:"semantic_similarity_score"`

	ReviewStatus  ReviewStatus  `json:"review_status"`
	PriorityLevel PriorityLevel `json:"priority_level"`

	MappingReason     string `json:"mapping_reason,omitempty"`
	ImpactDescription string `json:"impact_description,omitempty"`

	// RejectionReason is set only on rejected mappings and is required
	// for the transition.
	RejectionReason string `json:"rejection_reason,omitempty"`

	CreatedAt  time.Time  `json:"created_at"`
	ReviewedAt *time.Time `json:"reviewed_at,omitempty"`
	ReviewedBy string     `json:"reviewed_by,omitempty"`
}

// Validate checks the mapping is structurally sound.
func (m *ProvisionMapping) Validate() error {
	if m.ID == "" || m.ProvisionID == "" || m.RuleID == "" {
		return fmt.Errorf("mapping: id, provision_id, and rule_id are required")
	}
	if !m.MappingType.Valid() {
		return fmt.Errorf("mapping %s: unknown mapping type %q", m.ID, m.MappingType)
	}
	for _, score := range []decimal.Decimal{m.AIConfidenceScore, m.CitationMatchScore, m.SemanticSimilarityScore} {
		if score.IsNegative() || score.GreaterThan(decimal.NewFromInt(1)) {
			return fmt.Errorf("mapping %s: score %s outside [0,1]", m.ID, score)
		}
	}
	return nil
}

// ObligationStatus tracks a re-verification obligation.
type ObligationStatus string

const (
	ObligationPending   ObligationStatus = "pending"
	ObligationSatisfied ObligationStatus = "satisfied"
)

// ReverificationObligation queues a rule for mandatory re-verification
// after a mapping approval. Delivery is at-least-once: obligations are
// unique per (RuleID, MappingID), so a replayed approval enqueues
// nothing new and satisfying one twice is harmless.
type ReverificationObligation struct {
	ID        string           `json:"id"`
	RuleID    string           `json:"rule_id"`
	MappingID string           `json:"mapping_id"`
	Status    ObligationStatus `json:"status"`
	CreatedAt time.Time        `json:"created_at"`

	// SatisfiedByRunID records the evaluation run that discharged the
	// obligation.
	SatisfiedByRunID string `json:"satisfied_by_run_id,omitempty"`
}
