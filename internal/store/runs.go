package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/civigo/benefits/internal/policy"
)

// CreateRun inserts a new run in running status.
func (s *Store) CreateRun(ctx context.Context, run *policy.EvaluationRun) error {
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	run.Status = policy.RunStatusRunning

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, status, total_cases, passed_cases, failed_cases, with_reference, started_at)
		VALUES (?, 'running', ?, 0, 0, ?, ?)
	`, run.ID, run.TotalCases, boolToInt(run.WithReference), encodeTime(run.StartedAt))
	if err != nil {
		return fmt.Errorf("create run %s: %w", run.ID, err)
	}
	return nil
}

// WriteResult records one case outcome. Idempotent on (run_id,
// test_case_id): a retried case after a transient failure re-issues
// just that case and the first write wins.
func (s *Store) WriteResult(ctx context.Context, r *policy.EvaluationResult) error {
	actual, err := encodeJSON(r.Actual)
	if err != nil {
		return fmt.Errorf("write result %s/%s: %w", r.RunID, r.TestCaseID, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO results (run_id, test_case_id, actual, passed, variance, execution_time_ms, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, test_case_id) DO NOTHING
	`,
		r.RunID, r.TestCaseID, actual, boolToInt(r.Passed),
		encodeNullDecimal(r.Variance), r.ExecutionTimeMs, r.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("write result %s/%s: %w", r.RunID, r.TestCaseID, err)
	}
	return nil
}

// CompleteRun aggregates results and transitions the run to completed.
// Pass/fail counts and the average variance (mean over cases that
// produced a defined variance) are computed from the recorded results,
// not from in-memory state, so a crashed-and-resumed run aggregates
// correctly.
func (s *Store) CompleteRun(ctx context.Context, runID string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var passed, failed int
		err := tx.QueryRowContext(ctx, `
			SELECT COALESCE(SUM(passed), 0), COALESCE(SUM(1 - passed), 0) FROM results WHERE run_id = ?
		`, runID).Scan(&passed, &failed)
		if err != nil {
			return fmt.Errorf("complete run %s: aggregate: %w", runID, err)
		}

		rows, err := tx.QueryContext(ctx, `
			SELECT variance FROM results WHERE run_id = ? AND variance IS NOT NULL ORDER BY test_case_id
		`, runID)
		if err != nil {
			return fmt.Errorf("complete run %s: variances: %w", runID, err)
		}
		sum := decimal.Zero
		count := 0
		for rows.Next() {
			var v string
			if err := rows.Scan(&v); err != nil {
				rows.Close()
				return err
			}
			d, err := decodeDecimal(v)
			if err != nil {
				rows.Close()
				return err
			}
			sum = sum.Add(d)
			count++
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		var avg any
		if count > 0 {
			avg = sum.Div(decimal.NewFromInt(int64(count))).Round(2).String()
		}

		res, err := tx.ExecContext(ctx, `
			UPDATE runs
			SET status = 'completed', passed_cases = ?, failed_cases = ?, average_variance = ?, completed_at = ?
			WHERE id = ? AND status = 'running'
		`, passed, failed, avg, encodeTime(time.Now().UTC()), runID)
		if err != nil {
			return fmt.Errorf("complete run %s: %w", runID, err)
		}
		return requireRowAffected(res, "run", runID)
	})
}

// FailRun marks a run failed after an unrecoverable error. Individual
// case errors never reach here; they are isolated into results.
func (s *Store) FailRun(ctx context.Context, runID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE runs SET status = 'failed', completed_at = ? WHERE id = ? AND status = 'running'
	`, encodeTime(time.Now().UTC()), runID)
	if err != nil {
		return fmt.Errorf("fail run %s: %w", runID, err)
	}
	return requireRowAffected(res, "run", runID)
}

const runSelect = `
	SELECT id, status, total_cases, passed_cases, failed_cases,
	       average_variance, with_reference, started_at, completed_at
	FROM runs`

func scanRunRow(row rowScanner) (*policy.EvaluationRun, error) {
	var (
		run       policy.EvaluationRun
		avg       sql.NullString
		withRef   int
		started   string
		completed sql.NullString
	)
	err := row.Scan(&run.ID, &run.Status, &run.TotalCases, &run.PassedCases,
		&run.FailedCases, &avg, &withRef, &started, &completed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if run.AverageVariance, err = decodeNullDecimal(avg); err != nil {
		return nil, fmt.Errorf("run %s: %w", run.ID, err)
	}
	run.WithReference = withRef != 0
	if run.StartedAt, err = decodeTime(started); err != nil {
		return nil, fmt.Errorf("run %s: %w", run.ID, err)
	}
	if run.CompletedAt, err = decodeNullTime(completed); err != nil {
		return nil, fmt.Errorf("run %s: %w", run.ID, err)
	}
	return &run, nil
}

// GetRun fetches one run by ID.
func (s *Store) GetRun(ctx context.Context, id string) (*policy.EvaluationRun, error) {
	run, err := scanRunRow(s.db.QueryRowContext(ctx, runSelect+` WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
		}
		return nil, err
	}
	return run, nil
}

// ListRuns returns runs newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]policy.EvaluationRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, runSelect+` ORDER BY started_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []policy.EvaluationRun
	for rows.Next() {
		run, err := scanRunRow(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// ResultsForRun returns all results for a run in test-case ID order.
func (s *Store) ResultsForRun(ctx context.Context, runID string) ([]policy.EvaluationResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, test_case_id, actual, passed, variance, execution_time_ms, error_message
		FROM results WHERE run_id = ? ORDER BY test_case_id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("results for run %s: %w", runID, err)
	}
	defer rows.Close()

	var results []policy.EvaluationResult
	for rows.Next() {
		var (
			r        policy.EvaluationResult
			actual   sql.NullString
			passed   int
			variance sql.NullString
		)
		if err := rows.Scan(&r.RunID, &r.TestCaseID, &actual, &passed,
			&variance, &r.ExecutionTimeMs, &r.ErrorMessage); err != nil {
			return nil, err
		}
		if actual.Valid && actual.String != "" {
			r.Actual = &policy.Determination{}
			if err := decodeJSON(actual, r.Actual); err != nil {
				return nil, fmt.Errorf("result %s/%s: %w", r.RunID, r.TestCaseID, err)
			}
		}
		r.Passed = passed != 0
		if r.Variance, err = decodeNullDecimal(variance); err != nil {
			return nil, fmt.Errorf("result %s/%s: %w", r.RunID, r.TestCaseID, err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}
