package harness

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/civigo/benefits/internal/policy"
	"github.com/civigo/benefits/internal/store"
)

// ReverifyOutcome reports what a re-verification sweep did.
type ReverifyOutcome struct {
	Run         *policy.EvaluationRun
	Obligations int
	Programs    []policy.Program
}

// Reverify discharges pending re-verification obligations: it finds
// the programs touched by obligated rules, runs every active test
// case for those programs, and marks the obligations satisfied by the
// completed run. With no pending obligations it returns a nil Run.
//
// Obligations whose rule no longer exists contribute no programs to
// the sweep but are still satisfied by it.
func (h *Harness) Reverify(ctx context.Context, withReference bool) (*ReverifyOutcome, error) {
	obligations, err := h.store.PendingObligations(ctx)
	if err != nil {
		return nil, err
	}
	if len(obligations) == 0 {
		return &ReverifyOutcome{}, nil
	}

	programs, err := h.obligatedPrograms(ctx, obligations)
	if err != nil {
		return nil, err
	}
	if len(programs) == 0 {
		// Every obligated rule has since been removed; nothing to run.
		if err := h.store.SatisfyObligations(ctx, obligationIDs(obligations), ""); err != nil {
			return nil, fmt.Errorf("reverify: %w", err)
		}
		return &ReverifyOutcome{Obligations: len(obligations)}, nil
	}

	var cases []policy.EvaluationTestCase
	seen := make(map[string]bool)
	for _, program := range programs {
		batch, err := h.store.ListTestCases(ctx, store.TestCaseFilter{
			Program:    program,
			ActiveOnly: true,
		})
		if err != nil {
			return nil, fmt.Errorf("reverify: %w", err)
		}
		for _, tc := range batch {
			if !seen[tc.ID] {
				seen[tc.ID] = true
				cases = append(cases, tc)
			}
		}
	}
	if len(cases) == 0 {
		return nil, fmt.Errorf("reverify: no active test cases cover the obligated programs")
	}

	run, err := h.createRun(ctx, RunRequest{WithReference: withReference}, len(cases))
	if err != nil {
		return nil, err
	}
	if err := h.executeRun(ctx, run, cases, withReference); err != nil {
		return nil, err
	}

	if err := h.store.SatisfyObligations(ctx, obligationIDs(obligations), run.ID); err != nil {
		return nil, fmt.Errorf("reverify: %w", err)
	}

	completed, err := h.store.GetRun(ctx, run.ID)
	if err != nil {
		return nil, err
	}
	h.logger.Info("reverification sweep completed",
		"run_id", run.ID, "obligations", len(obligations), "cases", len(cases))
	return &ReverifyOutcome{
		Run:         completed,
		Obligations: len(obligations),
		Programs:    programs,
	}, nil
}

func obligationIDs(obligations []policy.ReverificationObligation) []string {
	ids := make([]string, len(obligations))
	for i, o := range obligations {
		ids[i] = o.ID
	}
	return ids
}

// obligatedPrograms resolves the distinct programs of the obligated
// rules, sorted for deterministic run composition.
func (h *Harness) obligatedPrograms(ctx context.Context, obligations []policy.ReverificationObligation) ([]policy.Program, error) {
	set := make(map[policy.Program]bool)
	for _, o := range obligations {
		rule, err := h.store.GetRule(ctx, o.RuleID)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("reverify: %w", err)
		}
		set[rule.Program] = true
	}
	programs := make([]policy.Program, 0, len(set))
	for p := range set {
		programs = append(programs, p)
	}
	sort.Slice(programs, func(i, j int) bool { return programs[i] < programs[j] })
	return programs, nil
}
