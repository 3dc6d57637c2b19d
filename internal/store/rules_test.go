package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/civigo/benefits/internal/policy"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testDate(s string) time.Time {
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return d
}

func deductionRule(id, effective string) *policy.Rule {
	return &policy.Rule{
		ID:           id,
		Program:      policy.ProgramSNAP,
		RuleType:     policy.RuleTypeDeduction,
		Jurisdiction: "US",
		Parameters: &policy.DeductionParams{
			Kind: policy.DeductionEarnedIncome,
			Rate: decimal.RequireFromString("0.20"),
		},
		EffectiveDate:  testDate(effective),
		SourceCitation: "7 U.S.C. 2014(e)(2)",
	}
}

func mustInsertApproved(t *testing.T, s *Store, rule *policy.Rule) {
	t.Helper()
	ctx := context.Background()
	if err := s.InsertDraftRule(ctx, rule); err != nil {
		t.Fatalf("InsertDraftRule(%s) failed: %v", rule.ID, err)
	}
	if err := s.ApproveRule(ctx, rule.ID); err != nil {
		t.Fatalf("ApproveRule(%s) failed: %v", rule.ID, err)
	}
}

func TestInsertDraftRule_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rule := deductionRule("snap-eid-2024", "2024-10-01")
	exp := testDate("2025-09-30")
	rule.ExpirationDate = &exp

	if err := s.InsertDraftRule(ctx, rule); err != nil {
		t.Fatalf("InsertDraftRule() failed: %v", err)
	}

	got, err := s.GetRule(ctx, "snap-eid-2024")
	if err != nil {
		t.Fatalf("GetRule() failed: %v", err)
	}
	if got.Status != policy.RuleStatusDraft {
		t.Errorf("status = %s, want draft", got.Status)
	}
	if !got.EffectiveDate.Equal(rule.EffectiveDate) {
		t.Errorf("effective date = %v, want %v", got.EffectiveDate, rule.EffectiveDate)
	}
	if got.ExpirationDate == nil || !got.ExpirationDate.Equal(exp) {
		t.Errorf("expiration date = %v, want %v", got.ExpirationDate, exp)
	}
	params, ok := got.Parameters.(*policy.DeductionParams)
	if !ok {
		t.Fatalf("parameters type = %T, want *DeductionParams", got.Parameters)
	}
	if !params.Rate.Equal(decimal.RequireFromString("0.20")) {
		t.Errorf("rate = %s, want 0.20", params.Rate)
	}
}

func TestInsertDraftRule_RejectsInvalid(t *testing.T) {
	s := newTestStore(t)

	rule := deductionRule("bad-params", "2024-10-01")
	rule.Parameters = &policy.CategoricalParams{QualifyingPrograms: []string{"tanf"}}

	if err := s.InsertDraftRule(context.Background(), rule); err == nil {
		t.Fatal("expected parameter shape mismatch error, got nil")
	}
}

func TestGetRule_NotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetRule(context.Background(), "nope")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestApproveRule_NotDraft(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rule := deductionRule("snap-eid-2024", "2024-10-01")
	mustInsertApproved(t, s, rule)

	if err := s.ApproveRule(ctx, rule.ID); !errors.Is(err, ErrNotDraft) {
		t.Fatalf("re-approve err = %v, want ErrNotDraft", err)
	}
}

func TestApproveRule_SupersedesOpenEndedPredecessor(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	old := deductionRule("snap-eid-2023", "2023-10-01")
	mustInsertApproved(t, s, old)

	next := deductionRule("snap-eid-2024", "2024-10-01")
	mustInsertApproved(t, s, next)

	got, err := s.GetRule(ctx, "snap-eid-2023")
	if err != nil {
		t.Fatalf("GetRule() failed: %v", err)
	}
	if got.Status != policy.RuleStatusSuperseded {
		t.Errorf("predecessor status = %s, want superseded", got.Status)
	}
	if got.ExpirationDate == nil || !got.ExpirationDate.Equal(testDate("2024-10-01")) {
		t.Errorf("predecessor expiration = %v, want 2024-10-01", got.ExpirationDate)
	}
}

func TestApproveRule_DeductionKindsCoexist(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	earned := deductionRule("snap-eid-2024", "2024-10-01")
	mustInsertApproved(t, s, earned)

	standard := deductionRule("snap-standard-2024", "2024-10-01")
	standard.Parameters = &policy.DeductionParams{
		Kind:    policy.DeductionStandard,
		Amounts: map[int]decimal.Decimal{1: decimal.RequireFromString("198")},
	}
	mustInsertApproved(t, s, standard)

	rules, err := s.EffectiveRules(ctx, policy.ProgramSNAP, "US", testDate("2024-10-15"))
	if err != nil {
		t.Fatalf("EffectiveRules() failed: %v", err)
	}
	if len(rules) != 2 {
		t.Fatalf("got %d effective rules, want both deduction kinds: %v", len(rules), ruleIDs(rules))
	}
}

func TestApproveRule_RejectsOverlap(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := deductionRule("snap-eid-2024", "2024-10-01")
	exp := testDate("2025-10-01")
	first.ExpirationDate = &exp
	mustInsertApproved(t, s, first)

	// Starts inside the fixed range of the approved rule.
	overlapping := deductionRule("snap-eid-overlap", "2025-01-01")
	if err := s.InsertDraftRule(ctx, overlapping); err != nil {
		t.Fatalf("InsertDraftRule() failed: %v", err)
	}
	if err := s.ApproveRule(ctx, overlapping.ID); !errors.Is(err, ErrEffectiveOverlap) {
		t.Fatalf("approve err = %v, want ErrEffectiveOverlap", err)
	}

	// The draft stays a draft after the refused approval.
	got, err := s.GetRule(ctx, overlapping.ID)
	if err != nil {
		t.Fatalf("GetRule() failed: %v", err)
	}
	if got.Status != policy.RuleStatusDraft {
		t.Errorf("status = %s, want draft", got.Status)
	}
}

func TestEffectiveRules_ResolvesHistoricalVersions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	old := deductionRule("snap-eid-2023", "2023-10-01")
	mustInsertApproved(t, s, old)
	next := deductionRule("snap-eid-2024", "2024-10-01")
	mustInsertApproved(t, s, next)

	current, err := s.EffectiveRules(ctx, policy.ProgramSNAP, "US", testDate("2024-10-15"))
	if err != nil {
		t.Fatalf("EffectiveRules() failed: %v", err)
	}
	if len(current) != 1 || current[0].ID != "snap-eid-2024" {
		t.Fatalf("current rules = %v, want [snap-eid-2024]", ruleIDs(current))
	}

	historical, err := s.EffectiveRules(ctx, policy.ProgramSNAP, "US", testDate("2024-06-15"))
	if err != nil {
		t.Fatalf("EffectiveRules() failed: %v", err)
	}
	if len(historical) != 1 || historical[0].ID != "snap-eid-2023" {
		t.Fatalf("historical rules = %v, want [snap-eid-2023]", ruleIDs(historical))
	}
	if historical[0].Status != policy.RuleStatusSuperseded {
		t.Errorf("historical status = %s, want superseded", historical[0].Status)
	}
}

func TestEffectiveRules_ExcludesDrafts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rule := deductionRule("snap-eid-2024", "2024-10-01")
	if err := s.InsertDraftRule(ctx, rule); err != nil {
		t.Fatalf("InsertDraftRule() failed: %v", err)
	}

	rules, err := s.EffectiveRules(ctx, policy.ProgramSNAP, "US", testDate("2024-10-15"))
	if err != nil {
		t.Fatalf("EffectiveRules() failed: %v", err)
	}
	if len(rules) != 0 {
		t.Errorf("rules = %v, want none (drafts are not effective)", ruleIDs(rules))
	}
}

func TestDependents_TransitiveClosure(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// d depends on c depends on a; b depends on a; e is unrelated.
	insert := func(id string, deps ...string) {
		r := deductionRule(id, "2024-10-01")
		r.RuleType = policy.RuleTypeIncomeLimit
		r.Parameters = &policy.IncomeLimitParams{
			GrossLimits: map[int]decimal.Decimal{1: decimal.RequireFromString("1580")},
		}
		r.DependsOn = deps
		if err := s.InsertDraftRule(ctx, r); err != nil {
			t.Fatalf("InsertDraftRule(%s) failed: %v", id, err)
		}
	}
	insert("a")
	insert("b", "a")
	insert("c", "a")
	insert("d", "c")
	insert("e")

	got, err := s.Dependents(ctx, "a")
	if err != nil {
		t.Fatalf("Dependents() failed: %v", err)
	}
	want := []string{"a", "b", "c", "d"}
	if len(got) != len(want) {
		t.Fatalf("dependents = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("dependents = %v, want %v", got, want)
		}
	}
}

func TestInsertDraftRule_RejectsDependencyCycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	self := deductionRule("cycle-self", "2024-10-01")
	self.DependsOn = []string{"cycle-self"}
	if err := s.InsertDraftRule(ctx, self); !errors.Is(err, ErrDependencyCycle) {
		t.Fatalf("self-dependency err = %v, want ErrDependencyCycle", err)
	}

	// a declares a forward edge to b before b exists. Closing the loop
	// from b's side must be refused.
	a := deductionRule("cycle-a", "2024-10-01")
	a.DependsOn = []string{"cycle-b"}
	if err := s.InsertDraftRule(ctx, a); err != nil {
		t.Fatalf("InsertDraftRule(a) failed: %v", err)
	}

	b := deductionRule("cycle-b", "2024-11-01")
	b.DependsOn = []string{"cycle-a"}
	if err := s.InsertDraftRule(ctx, b); !errors.Is(err, ErrDependencyCycle) {
		t.Fatalf("cycle err = %v, want ErrDependencyCycle", err)
	}
}

func TestListRules_AllStatuses(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	approved := deductionRule("snap-eid-2024", "2024-10-01")
	mustInsertApproved(t, s, approved)

	draft := deductionRule("snap-eid-2025", "2025-10-01")
	if err := s.InsertDraftRule(ctx, draft); err != nil {
		t.Fatalf("InsertDraftRule() failed: %v", err)
	}

	rules, err := s.ListRules(ctx, policy.ProgramSNAP)
	if err != nil {
		t.Fatalf("ListRules() failed: %v", err)
	}
	if len(rules) != 2 {
		t.Fatalf("got %d rules, want 2", len(rules))
	}
	if rules[0].ID != "snap-eid-2024" || rules[1].ID != "snap-eid-2025" {
		t.Errorf("rules = %v, want ID order", ruleIDs(rules))
	}
}

func ruleIDs(rules []policy.Rule) []string {
	ids := make([]string, len(rules))
	for i, r := range rules {
		ids[i] = r.ID
	}
	return ids
}
