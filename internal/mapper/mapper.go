package mapper

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/civigo/benefits/internal/matcher"
	"github.com/civigo/benefits/internal/policy"
	"github.com/civigo/benefits/internal/store"
)

// MappingStateError reports a review action that the mapping's current
// state does not admit.
type MappingStateError struct {
	MappingID string
	Reason    string
}

func (e *MappingStateError) Error() string {
	return fmt.Sprintf("mapping %s: %s", e.MappingID, e.Reason)
}

// Mapper drives the provision-to-rule mapping workflow.
type Mapper struct {
	store    *store.Store
	semantic matcher.SemanticMatcher
	logger   *slog.Logger
}

// Option configures a Mapper.
type Option func(*Mapper)

// WithSemanticMatcher wires the AI similarity collaborator. Without
// one, proposals score on citation alone.
func WithSemanticMatcher(m matcher.SemanticMatcher) Option {
	return func(mp *Mapper) { mp.semantic = m }
}

// WithLogger overrides the default logger.
func WithLogger(l *slog.Logger) Option {
	return func(mp *Mapper) { mp.logger = l }
}

// New creates a Mapper.
func New(st *store.Store, opts ...Option) *Mapper {
	mp := &Mapper{store: st, logger: slog.Default()}
	for _, opt := range opts {
		opt(mp)
	}
	return mp
}

// ProposalRequest names the provision, rule, and characterization for
// a new mapping candidate.
type ProposalRequest struct {
	ProvisionID  string
	RuleID       string
	OntologyTerm string
	MappingType  policy.MappingType

	MappingReason     string
	ImpactDescription string
}

// ProposeMapping scores a provision-to-rule link and inserts it as a
// pending mapping awaiting human review.
//
// Semantic scoring failures degrade the proposal to citation-only
// rather than failing it; the returned mapping's MatchMethod records
// which path was taken.
func (mp *Mapper) ProposeMapping(ctx context.Context, req ProposalRequest) (*policy.ProvisionMapping, error) {
	if !req.MappingType.Valid() {
		return nil, fmt.Errorf("propose mapping: unknown mapping type %q", req.MappingType)
	}

	provision, err := mp.store.GetProvision(ctx, req.ProvisionID)
	if err != nil {
		return nil, fmt.Errorf("propose mapping: %w", err)
	}
	rule, err := mp.store.GetRule(ctx, req.RuleID)
	if err != nil {
		return nil, fmt.Errorf("propose mapping: %w", err)
	}

	citation := matcher.CitationScore(provision.USCodeCitation, rule.SourceCitation)

	method := policy.MatchCitation
	var semantic *matcher.Score
	if mp.semantic != nil {
		score, err := mp.semantic.Similarity(ctx, provision.ProvisionText, termDefinition(req.OntologyTerm, rule))
		if err != nil {
			mp.logger.Warn("semantic scoring unavailable, degrading to citation match",
				"provision_id", provision.ID, "rule_id", rule.ID, "error", err)
		} else {
			method = policy.MatchAIProposed
			semantic = &score
		}
	}

	m := &policy.ProvisionMapping{
		ID:           uuid.NewString(),
		ProvisionID:  provision.ID,
		RuleID:       rule.ID,
		OntologyTerm: req.OntologyTerm,
		MappingType:  req.MappingType,
		MatchMethod:  method,

		CitationMatchScore: citation,

		ReviewStatus:  policy.ReviewPending,
		PriorityLevel: priorityFor(req.MappingType, len(provision.AffectedPrograms)),

		MappingReason:     req.MappingReason,
		ImpactDescription: req.ImpactDescription,
		CreatedAt:         time.Now().UTC(),
	}
	if semantic != nil {
		m.SemanticSimilarityScore = semantic.Value
		m.AIConfidenceScore = matcher.Combine(citation, &semantic.Value)
		if m.MappingReason == "" {
			m.MappingReason = semantic.Justification
		}
	} else {
		m.AIConfidenceScore = matcher.Combine(citation, nil)
	}

	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("propose mapping: %w", err)
	}
	if err := mp.store.InsertMapping(ctx, m); err != nil {
		return nil, err
	}
	mp.logger.Info("mapping proposed",
		"mapping_id", m.ID, "provision_id", m.ProvisionID, "rule_id", m.RuleID,
		"confidence", m.AIConfidenceScore, "priority", m.PriorityLevel)
	return m, nil
}

// termDefinition assembles the text the semantic matcher compares the
// provision against.
func termDefinition(ontologyTerm string, rule *policy.Rule) string {
	parts := []string{ontologyTerm}
	parts = append(parts,
		fmt.Sprintf("program: %s", rule.Program),
		fmt.Sprintf("rule type: %s", rule.RuleType),
	)
	if rule.SourceCitation != "" {
		parts = append(parts, fmt.Sprintf("codifies: %s", rule.SourceCitation))
	}
	return strings.Join(parts, "\n")
}

// priorityFor derives review priority from how disruptive the mapping
// type is, bumped one level when the provision touches three or more
// programs.
func priorityFor(t policy.MappingType, affectedPrograms int) policy.PriorityLevel {
	var p policy.PriorityLevel
	switch t {
	case policy.MappingSupersedes, policy.MappingRemoves:
		p = policy.PriorityUrgent
	case policy.MappingAmends, policy.MappingModifiesThreshold:
		p = policy.PriorityHigh
	case policy.MappingAddsException, policy.MappingCreates:
		p = policy.PriorityNormal
	default:
		p = policy.PriorityLow
	}
	if affectedPrograms >= 3 {
		p = bump(p)
	}
	return p
}

func bump(p policy.PriorityLevel) policy.PriorityLevel {
	switch p {
	case policy.PriorityLow:
		return policy.PriorityNormal
	case policy.PriorityNormal:
		return policy.PriorityHigh
	default:
		return policy.PriorityUrgent
	}
}

// ReviewQueue returns pending mappings, most urgent first.
func (mp *Mapper) ReviewQueue(ctx context.Context) ([]policy.ProvisionMapping, error) {
	return mp.store.PendingMappings(ctx)
}

// Approve transitions a pending mapping to approved and enqueues
// re-verification obligations for the mapped rule and every rule that
// transitively depends on it. Returns the affected rule IDs.
//
// Approving a mapping that is already terminal fails with
// store.ErrStaleStatus and changes nothing.
func (mp *Mapper) Approve(ctx context.Context, mappingID, reviewedBy string) ([]string, error) {
	m, err := mp.store.GetMapping(ctx, mappingID)
	if err != nil {
		return nil, err
	}

	if err := mp.store.TransitionMapping(ctx, mappingID, policy.ReviewApproved, "", reviewedBy); err != nil {
		return nil, err
	}

	affected, err := mp.store.Dependents(ctx, m.RuleID)
	if err != nil {
		return nil, fmt.Errorf("approve mapping %s: %w", mappingID, err)
	}
	if err := mp.store.EnqueueObligations(ctx, mappingID, affected); err != nil {
		return nil, fmt.Errorf("approve mapping %s: %w", mappingID, err)
	}

	mp.logger.Info("mapping approved",
		"mapping_id", mappingID, "rule_id", m.RuleID,
		"affected_rules", len(affected), "reviewed_by", reviewedBy)
	return affected, nil
}

// Reject transitions a pending mapping to rejected. A non-empty
// reason is required; rejection without one is refused.
func (mp *Mapper) Reject(ctx context.Context, mappingID, reason, reviewedBy string) error {
	if strings.TrimSpace(reason) == "" {
		return &MappingStateError{MappingID: mappingID, Reason: "rejection requires a non-empty reason"}
	}
	if err := mp.store.TransitionMapping(ctx, mappingID, policy.ReviewRejected, reason, reviewedBy); err != nil {
		return err
	}
	mp.logger.Info("mapping rejected", "mapping_id", mappingID, "reviewed_by", reviewedBy)
	return nil
}

// BulkFailure records one failed approval within a bulk request.
type BulkFailure struct {
	MappingID string
	Err       error
}

// BulkResult summarizes a bulk approval.
type BulkResult struct {
	Approved int
	Failures []BulkFailure
}

// BulkApprove approves each mapping independently: one failure (a
// mapping already reviewed, say) does not roll back or block the
// rest.
func (mp *Mapper) BulkApprove(ctx context.Context, mappingIDs []string, reviewedBy string) (*BulkResult, error) {
	result := &BulkResult{}
	for _, id := range mappingIDs {
		if _, err := mp.Approve(ctx, id, reviewedBy); err != nil {
			result.Failures = append(result.Failures, BulkFailure{MappingID: id, Err: err})
			continue
		}
		result.Approved++
	}
	return result, nil
}
