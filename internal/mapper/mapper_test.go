package mapper

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civigo/benefits/internal/matcher"
	"github.com/civigo/benefits/internal/policy"
	"github.com/civigo/benefits/internal/store"
	"github.com/civigo/benefits/internal/testutil"
)

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// fakeSemantic returns a canned similarity score.
type fakeSemantic struct {
	score matcher.Score
	err   error
}

func (f *fakeSemantic) Similarity(_ context.Context, _, _ string) (matcher.Score, error) {
	return f.score, f.err
}

func seedProvision(t *testing.T, st *store.Store, programs ...policy.Program) {
	t.Helper()
	if len(programs) == 0 {
		programs = []policy.Program{policy.ProgramSNAP}
	}
	p := &policy.LegislativeProvision{
		ID:               "prov-1",
		PublicLawID:      "pl-118-42",
		SectionNumber:    "4001",
		ProvisionType:    "amendment",
		ProvisionText:    "The standard deduction under section 5(e) is increased...",
		USCodeCitation:   "7 U.S.C. 2014",
		AffectedPrograms: programs,
		EffectiveDate:    testutil.Date("2025-10-01"),
	}
	require.NoError(t, st.InsertProvision(context.Background(), p))
}

func mapperUnderTest(t *testing.T, opts ...Option) (*Mapper, *store.Store) {
	t.Helper()
	st := testutil.OpenStore(t)
	testutil.SeedSNAPRules(t, st, testutil.Date("2024-10-01"))
	seedProvision(t, st)
	opts = append(opts, WithLogger(quietLogger))
	return New(st, opts...), st
}

func TestProposeMapping_CitationOnly(t *testing.T) {
	mp, _ := mapperUnderTest(t)

	m, err := mp.ProposeMapping(context.Background(), ProposalRequest{
		ProvisionID:  "prov-1",
		RuleID:       "snap-standard-deduction",
		OntologyTerm: "snap standard deduction",
		MappingType:  policy.MappingAmends,
	})
	require.NoError(t, err)

	assert.Equal(t, policy.MatchCitation, m.MatchMethod)
	assert.Equal(t, policy.ReviewPending, m.ReviewStatus)
	// Provision and rule cite the same statute.
	assert.True(t, m.CitationMatchScore.Equal(decimal.RequireFromString("1.0")))
	assert.True(t, m.AIConfidenceScore.Equal(m.CitationMatchScore),
		"without a semantic signal, confidence is the citation score")
	assert.True(t, m.SemanticSimilarityScore.IsZero())
}

func TestProposeMapping_BlendsSemanticScore(t *testing.T) {
	sem := &fakeSemantic{score: matcher.Score{
		Value:         decimal.RequireFromString("0.9"),
		Justification: "both describe the standard deduction amount",
	}}
	mp, _ := mapperUnderTest(t, WithSemanticMatcher(sem))

	m, err := mp.ProposeMapping(context.Background(), ProposalRequest{
		ProvisionID:  "prov-1",
		RuleID:       "snap-standard-deduction",
		OntologyTerm: "snap standard deduction",
		MappingType:  policy.MappingAmends,
	})
	require.NoError(t, err)

	assert.Equal(t, policy.MatchAIProposed, m.MatchMethod)
	assert.True(t, m.SemanticSimilarityScore.Equal(decimal.RequireFromString("0.9")))
	// 0.4 * 1.0 + 0.6 * 0.9
	assert.True(t, m.AIConfidenceScore.Equal(decimal.RequireFromString("0.94")),
		"confidence = %s", m.AIConfidenceScore)
	assert.Equal(t, "both describe the standard deduction amount", m.MappingReason)
}

func TestProposeMapping_DegradesWhenSemanticFails(t *testing.T) {
	sem := &fakeSemantic{err: errors.New("rate limited")}
	mp, _ := mapperUnderTest(t, WithSemanticMatcher(sem))

	m, err := mp.ProposeMapping(context.Background(), ProposalRequest{
		ProvisionID:  "prov-1",
		RuleID:       "snap-standard-deduction",
		OntologyTerm: "snap standard deduction",
		MappingType:  policy.MappingAmends,
	})
	require.NoError(t, err, "a down collaborator must not block proposals")

	assert.Equal(t, policy.MatchCitation, m.MatchMethod)
	assert.True(t, m.SemanticSimilarityScore.IsZero())
	assert.True(t, m.AIConfidenceScore.Equal(m.CitationMatchScore))
}

func TestProposeMapping_UnknownInputs(t *testing.T) {
	mp, _ := mapperUnderTest(t)
	ctx := context.Background()

	_, err := mp.ProposeMapping(ctx, ProposalRequest{
		ProvisionID: "prov-1", RuleID: "snap-standard-deduction", MappingType: "renames",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mapping type")

	_, err = mp.ProposeMapping(ctx, ProposalRequest{
		ProvisionID: "prov-missing", RuleID: "snap-standard-deduction", MappingType: policy.MappingAmends,
	})
	assert.True(t, errors.Is(err, store.ErrNotFound))

	_, err = mp.ProposeMapping(ctx, ProposalRequest{
		ProvisionID: "prov-1", RuleID: "rule-missing", MappingType: policy.MappingAmends,
	})
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

func TestPriorityFor(t *testing.T) {
	tests := []struct {
		mappingType policy.MappingType
		programs    int
		want        policy.PriorityLevel
	}{
		{policy.MappingSupersedes, 1, policy.PriorityUrgent},
		{policy.MappingRemoves, 1, policy.PriorityUrgent},
		{policy.MappingAmends, 1, policy.PriorityHigh},
		{policy.MappingModifiesThreshold, 1, policy.PriorityHigh},
		{policy.MappingAddsException, 1, policy.PriorityNormal},
		{policy.MappingCreates, 1, policy.PriorityNormal},
		{policy.MappingClarifies, 1, policy.PriorityLow},
		// Three or more affected programs bump one level.
		{policy.MappingClarifies, 3, policy.PriorityNormal},
		{policy.MappingCreates, 3, policy.PriorityHigh},
		{policy.MappingAmends, 3, policy.PriorityUrgent},
		{policy.MappingSupersedes, 3, policy.PriorityUrgent},
	}
	for _, tt := range tests {
		got := priorityFor(tt.mappingType, tt.programs)
		assert.Equal(t, tt.want, got, "priorityFor(%s, %d)", tt.mappingType, tt.programs)
	}
}

func proposeFixture(t *testing.T, mp *Mapper, ruleID string) *policy.ProvisionMapping {
	t.Helper()
	m, err := mp.ProposeMapping(context.Background(), ProposalRequest{
		ProvisionID:  "prov-1",
		RuleID:       ruleID,
		OntologyTerm: "snap standard deduction",
		MappingType:  policy.MappingSupersedes,
	})
	require.NoError(t, err)
	return m
}

func TestApprove_EnqueuesTransitiveObligations(t *testing.T) {
	mp, st := mapperUnderTest(t)
	ctx := context.Background()

	// Four rules depend on the mapped one, one of them transitively.
	dep := func(id string, dependsOn ...string) {
		r := &policy.Rule{
			ID:           id,
			Program:      policy.ProgramSNAP,
			RuleType:     policy.RuleTypeDocumentRequirement,
			Jurisdiction: "US",
			Parameters: &policy.DocumentRequirementParams{
				Documents: []string{"income-statement"},
			},
			EffectiveDate: testutil.Date("2024-10-01"),
			DependsOn:     dependsOn,
		}
		require.NoError(t, st.InsertDraftRule(ctx, r))
	}
	dep("doc-a", "snap-standard-deduction")
	dep("doc-b", "snap-standard-deduction")
	dep("doc-c", "snap-standard-deduction")
	dep("doc-d", "doc-c")

	m := proposeFixture(t, mp, "snap-standard-deduction")

	affected, err := mp.Approve(ctx, m.ID, "analyst@example.gov")
	require.NoError(t, err)
	assert.Equal(t, []string{"doc-a", "doc-b", "doc-c", "doc-d", "snap-standard-deduction"}, affected)

	got, err := st.GetMapping(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, policy.ReviewApproved, got.ReviewStatus)

	pending, err := st.PendingObligations(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, 5, "one obligation per affected rule")
}

func TestApprove_TerminalMappingRefused(t *testing.T) {
	mp, _ := mapperUnderTest(t)
	ctx := context.Background()

	m := proposeFixture(t, mp, "snap-standard-deduction")
	_, err := mp.Approve(ctx, m.ID, "first@example.gov")
	require.NoError(t, err)

	_, err = mp.Approve(ctx, m.ID, "second@example.gov")
	assert.True(t, errors.Is(err, store.ErrStaleStatus))
}

func TestReject(t *testing.T) {
	mp, st := mapperUnderTest(t)
	ctx := context.Background()

	m := proposeFixture(t, mp, "snap-standard-deduction")

	t.Run("requires a reason", func(t *testing.T) {
		err := mp.Reject(ctx, m.ID, "   ", "analyst@example.gov")
		var stateErr *MappingStateError
		require.ErrorAs(t, err, &stateErr)
		assert.Equal(t, m.ID, stateErr.MappingID)

		got, err := st.GetMapping(ctx, m.ID)
		require.NoError(t, err)
		assert.Equal(t, policy.ReviewPending, got.ReviewStatus, "refused rejection changed state")
	})

	t.Run("records reason and reviewer", func(t *testing.T) {
		err := mp.Reject(ctx, m.ID, "provision covers a different subsection", "analyst@example.gov")
		require.NoError(t, err)

		got, err := st.GetMapping(ctx, m.ID)
		require.NoError(t, err)
		assert.Equal(t, policy.ReviewRejected, got.ReviewStatus)
		assert.Equal(t, "provision covers a different subsection", got.RejectionReason)
		assert.Equal(t, "analyst@example.gov", got.ReviewedBy)

		// No obligations from a rejection.
		pending, err := st.PendingObligations(ctx)
		require.NoError(t, err)
		assert.Empty(t, pending)
	})

	t.Run("terminal stays terminal", func(t *testing.T) {
		err := mp.Reject(ctx, m.ID, "another reason", "analyst@example.gov")
		assert.True(t, errors.Is(err, store.ErrStaleStatus))
	})
}

func TestBulkApprove_FailuresAreIndependent(t *testing.T) {
	mp, _ := mapperUnderTest(t)
	ctx := context.Background()

	first := proposeFixture(t, mp, "snap-standard-deduction")
	second := proposeFixture(t, mp, "snap-allotment")

	// Pre-approve the first so the bulk call finds it terminal.
	_, err := mp.Approve(ctx, first.ID, "earlier@example.gov")
	require.NoError(t, err)

	result, err := mp.BulkApprove(ctx, []string{first.ID, second.ID, "missing"}, "analyst@example.gov")
	require.NoError(t, err)

	assert.Equal(t, 1, result.Approved)
	require.Len(t, result.Failures, 2)
	assert.Equal(t, first.ID, result.Failures[0].MappingID)
	assert.True(t, errors.Is(result.Failures[0].Err, store.ErrStaleStatus))
	assert.Equal(t, "missing", result.Failures[1].MappingID)
	assert.True(t, errors.Is(result.Failures[1].Err, store.ErrNotFound))
}

func TestReviewQueue_OrdersByPriority(t *testing.T) {
	sem := &fakeSemantic{score: matcher.Score{Value: decimal.RequireFromString("0.5")}}
	mp, _ := mapperUnderTest(t, WithSemanticMatcher(sem))
	ctx := context.Background()

	clarify, err := mp.ProposeMapping(ctx, ProposalRequest{
		ProvisionID: "prov-1", RuleID: "snap-allotment",
		OntologyTerm: "snap allotment", MappingType: policy.MappingClarifies,
	})
	require.NoError(t, err)
	supersede, err := mp.ProposeMapping(ctx, ProposalRequest{
		ProvisionID: "prov-1", RuleID: "snap-standard-deduction",
		OntologyTerm: "snap standard deduction", MappingType: policy.MappingSupersedes,
	})
	require.NoError(t, err)

	queue, err := mp.ReviewQueue(ctx)
	require.NoError(t, err)
	require.Len(t, queue, 2)
	assert.Equal(t, supersede.ID, queue[0].ID)
	assert.Equal(t, clarify.ID, queue[1].ID)
}
