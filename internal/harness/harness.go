package harness

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/civigo/benefits/internal/engine"
	"github.com/civigo/benefits/internal/metrics"
	"github.com/civigo/benefits/internal/policy"
	"github.com/civigo/benefits/internal/store"
	"github.com/civigo/benefits/internal/verifier"
)

// DefaultWorkers bounds concurrent case execution within a run.
const DefaultWorkers = 4

// ReferenceClient is the external reference calculator consulted when
// a run requests verification. Implemented by verifier.Client.
type ReferenceClient interface {
	Verify(ctx context.Context, program policy.Program, household *policy.HouseholdProfile, asOf time.Time) (*verifier.Determination, error)
}

// RunRequest selects the cases for a run and whether the reference
// calculator participates.
type RunRequest struct {
	Program       policy.Program
	Category      string
	Tag           string
	TestCaseIDs   []string
	WithReference bool
}

// Harness executes batches of curated test cases through the engine
// and records per-case results and run aggregates in the store.
type Harness struct {
	store     *store.Store
	engine    *engine.Engine
	reference ReferenceClient
	workers   int
	logger    *slog.Logger
}

// Option configures a Harness.
type Option func(*Harness)

// WithReference wires the external reference calculator. Runs with
// WithReference=true fail fast when no client is configured.
func WithReference(c ReferenceClient) Option {
	return func(h *Harness) { h.reference = c }
}

// WithWorkers overrides the per-run concurrency bound.
func WithWorkers(n int) Option {
	return func(h *Harness) {
		if n > 0 {
			h.workers = n
		}
	}
}

// WithLogger overrides the default logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Harness) { h.logger = l }
}

// New creates a Harness.
func New(st *store.Store, eng *engine.Engine, opts ...Option) *Harness {
	h := &Harness{
		store:   st,
		engine:  eng,
		workers: DefaultWorkers,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// selectCases resolves the request's filter to concrete active cases.
func (h *Harness) selectCases(ctx context.Context, req RunRequest) ([]policy.EvaluationTestCase, error) {
	filter := store.TestCaseFilter{
		Program:    req.Program,
		Category:   req.Category,
		Tag:        req.Tag,
		ActiveOnly: true,
		IDs:        req.TestCaseIDs,
	}
	cases, err := h.store.ListTestCases(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("select cases: %w", err)
	}
	return cases, nil
}

// createRun persists a new running run covering the given cases.
func (h *Harness) createRun(ctx context.Context, req RunRequest, total int) (*policy.EvaluationRun, error) {
	if req.WithReference && h.reference == nil {
		return nil, fmt.Errorf("run requested reference verification but no reference client is configured")
	}
	if total == 0 {
		return nil, fmt.Errorf("no active test cases match the run filter")
	}
	run := &policy.EvaluationRun{
		ID:            uuid.NewString(),
		TotalCases:    total,
		WithReference: req.WithReference,
		StartedAt:     time.Now().UTC(),
	}
	if err := h.store.CreateRun(ctx, run); err != nil {
		return nil, err
	}
	return run, nil
}

// StartRun creates a run and executes it in the background. The
// returned run is in running status; callers poll the store for
// completion. Cancelling ctx does not abort the batch.
func (h *Harness) StartRun(ctx context.Context, req RunRequest) (*policy.EvaluationRun, error) {
	cases, err := h.selectCases(ctx, req)
	if err != nil {
		return nil, err
	}
	run, err := h.createRun(ctx, req, len(cases))
	if err != nil {
		return nil, err
	}

	go func() {
		bg := context.WithoutCancel(ctx)
		if err := h.executeRun(bg, run, cases, req.WithReference); err != nil {
			h.logger.Error("run failed", "run_id", run.ID, "error", err)
		}
	}()
	return run, nil
}

// Run creates a run and executes it synchronously, returning the
// completed run.
func (h *Harness) Run(ctx context.Context, req RunRequest) (*policy.EvaluationRun, error) {
	cases, err := h.selectCases(ctx, req)
	if err != nil {
		return nil, err
	}
	run, err := h.createRun(ctx, req, len(cases))
	if err != nil {
		return nil, err
	}
	if err := h.executeRun(ctx, run, cases, req.WithReference); err != nil {
		return nil, err
	}
	return h.store.GetRun(ctx, run.ID)
}

// executeRun fans the cases out over a bounded worker pool, records
// every result, and transitions the run to completed. Only storage
// errors fail the run; case-level errors are isolated into results.
func (h *Harness) executeRun(ctx context.Context, run *policy.EvaluationRun, cases []policy.EvaluationTestCase, withReference bool) error {
	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(h.workers)

	for i := range cases {
		tc := cases[i]
		g.Go(func() error {
			result := h.executeCase(gctx, run.ID, &tc, withReference)
			if err := h.store.WriteResult(gctx, result); err != nil {
				return err
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		if ferr := h.store.FailRun(ctx, run.ID); ferr != nil {
			h.logger.Error("marking run failed", "run_id", run.ID, "error", ferr)
		}
		return fmt.Errorf("run %s: %w", run.ID, err)
	}

	if err := h.store.CompleteRun(ctx, run.ID); err != nil {
		return fmt.Errorf("run %s: %w", run.ID, err)
	}
	h.logger.Info("run completed",
		"run_id", run.ID,
		"total_cases", run.TotalCases,
		"elapsed", time.Since(start).Round(time.Millisecond))
	return nil
}

// executeCase evaluates one case and judges the outcome. Never
// returns an error: engine and reference failures become errored
// results so the rest of the batch proceeds.
func (h *Harness) executeCase(ctx context.Context, runID string, tc *policy.EvaluationTestCase, withReference bool) *policy.EvaluationResult {
	result := &policy.EvaluationResult{RunID: runID, TestCaseID: tc.ID}

	start := time.Now()
	defer func() {
		result.ExecutionTimeMs = time.Since(start).Milliseconds()
		metrics.CaseDuration.Observe(time.Since(start).Seconds())
		metrics.RunCases.WithLabelValues(caseResultLabel(result)).Inc()
	}()

	actual, err := h.engine.Evaluate(ctx, tc.Program, &tc.Input, tc.AsOfDate)
	if err != nil {
		result.ErrorMessage = err.Error()
		h.logger.Warn("case errored", "run_id", runID, "test_case_id", tc.ID, "error", err)
		return result
	}
	result.Actual = actual

	var referenceAmount *decimal.Decimal
	if withReference {
		ref, err := h.reference.Verify(ctx, tc.Program, &tc.Input, tc.AsOfDate)
		if err != nil {
			metrics.ReferenceCalls.WithLabelValues(referenceStatusLabel(err)).Inc()
			result.ErrorMessage = fmt.Sprintf("reference verification: %s", err)
			h.logger.Warn("reference call failed", "run_id", runID, "test_case_id", tc.ID, "error", err)
			return result
		}
		metrics.ReferenceCalls.WithLabelValues("ok").Inc()
		if actual.Eligible != ref.Eligible {
			// Reference disagrees on eligibility itself.
			return result
		}
		if amount, ok := ref.Amount(); ok {
			referenceAmount = &amount
		}
	}

	cmp := compare(tc, actual, referenceAmount)
	result.Passed = cmp.passed
	result.Variance = cmp.variance
	return result
}

func referenceStatusLabel(err error) string {
	if verifier.IsTimeout(err) {
		return "timeout"
	}
	return "error"
}

func caseResultLabel(r *policy.EvaluationResult) string {
	switch {
	case r.Errored():
		return "errored"
	case r.Passed:
		return "passed"
	default:
		return "failed"
	}
}
