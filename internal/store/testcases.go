package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/civigo/benefits/internal/policy"
)

// TestCaseFilter narrows ListTestCases. Zero values match everything.
// Filters compile to parameterized SQL; values are never interpolated.
type TestCaseFilter struct {
	Program    policy.Program
	Category   string
	Tag        string
	ActiveOnly bool

	// IDs restricts to an explicit set (used when a run names its
	// cases directly).
	IDs []string
}

// compile builds the WHERE clause and parameter list for the filter.
// Queries always carry ORDER BY id for deterministic results.
func (f *TestCaseFilter) compile() (string, []any) {
	var conds []string
	var params []any

	if f.Program != "" {
		conds = append(conds, "program = ?")
		params = append(params, string(f.Program))
	}
	if f.Category != "" {
		conds = append(conds, "category = ?")
		params = append(params, f.Category)
	}
	if f.Tag != "" {
		// Tags are stored as a JSON array of strings.
		conds = append(conds, "EXISTS (SELECT 1 FROM json_each(test_cases.tags) WHERE json_each.value = ?)")
		params = append(params, f.Tag)
	}
	if f.ActiveOnly {
		conds = append(conds, "is_active = 1")
	}
	if len(f.IDs) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(f.IDs)), ", ")
		conds = append(conds, fmt.Sprintf("id IN (%s)", placeholders))
		for _, id := range f.IDs {
			params = append(params, id)
		}
	}

	if len(conds) == 0 {
		return "", params
	}
	return " WHERE " + strings.Join(conds, " AND "), params
}

// CreateTestCase inserts a new curated test case.
func (s *Store) CreateTestCase(ctx context.Context, tc *policy.EvaluationTestCase) error {
	if tc.Tolerance.IsZero() {
		tc.Tolerance = policy.DefaultTolerance
	}
	if err := tc.Validate(); err != nil {
		return fmt.Errorf("create test case: %w", err)
	}

	now := time.Now().UTC()
	if tc.CreatedAt.IsZero() {
		tc.CreatedAt = now
	}
	tc.UpdatedAt = now

	input, err := encodeJSON(tc.Input)
	if err != nil {
		return fmt.Errorf("create test case %s: %w", tc.ID, err)
	}
	expected, err := encodeJSON(tc.Expected)
	if err != nil {
		return fmt.Errorf("create test case %s: %w", tc.ID, err)
	}
	tags, err := encodeJSON(tc.Tags)
	if err != nil {
		return fmt.Errorf("create test case %s: %w", tc.ID, err)
	}

	var asOf any
	if !tc.AsOfDate.IsZero() {
		asOf = encodeDate(tc.AsOfDate)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO test_cases
		(id, program, category, description, input, expected, tolerance, as_of_date, tags, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		tc.ID, string(tc.Program), tc.Category, tc.Description,
		input, expected, tc.Tolerance.String(), asOf, tags,
		boolToInt(tc.IsActive), encodeTime(tc.CreatedAt), encodeTime(tc.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("create test case %s: %w", tc.ID, err)
	}
	return nil
}

// UpdateTestCase edits a test case in place. Identity is immutable:
// the row keyed by tc.ID is updated, never re-created.
func (s *Store) UpdateTestCase(ctx context.Context, tc *policy.EvaluationTestCase) error {
	if err := tc.Validate(); err != nil {
		return fmt.Errorf("update test case: %w", err)
	}

	input, err := encodeJSON(tc.Input)
	if err != nil {
		return fmt.Errorf("update test case %s: %w", tc.ID, err)
	}
	expected, err := encodeJSON(tc.Expected)
	if err != nil {
		return fmt.Errorf("update test case %s: %w", tc.ID, err)
	}
	tags, err := encodeJSON(tc.Tags)
	if err != nil {
		return fmt.Errorf("update test case %s: %w", tc.ID, err)
	}

	var asOf any
	if !tc.AsOfDate.IsZero() {
		asOf = encodeDate(tc.AsOfDate)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE test_cases
		SET program = ?, category = ?, description = ?, input = ?, expected = ?,
		    tolerance = ?, as_of_date = ?, tags = ?, is_active = ?, updated_at = ?
		WHERE id = ?
	`,
		string(tc.Program), tc.Category, tc.Description, input, expected,
		tc.Tolerance.String(), asOf, tags, boolToInt(tc.IsActive),
		encodeTime(time.Now().UTC()), tc.ID,
	)
	if err != nil {
		return fmt.Errorf("update test case %s: %w", tc.ID, err)
	}
	return requireRowAffected(res, "test case", tc.ID)
}

// DeactivateTestCase soft-deletes a test case. Historical results keep
// referencing it, so deactivation is preferred over deletion for audit
// continuity.
func (s *Store) DeactivateTestCase(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE test_cases SET is_active = 0, updated_at = ? WHERE id = ?
	`, encodeTime(time.Now().UTC()), id)
	if err != nil {
		return fmt.Errorf("deactivate test case %s: %w", id, err)
	}
	return requireRowAffected(res, "test case", id)
}

const testCaseSelect = `
	SELECT id, program, category, description, input, expected,
	       tolerance, as_of_date, tags, is_active, created_at, updated_at
	FROM test_cases`

func scanTestCaseRow(row rowScanner) (*policy.EvaluationTestCase, error) {
	var (
		tc       policy.EvaluationTestCase
		input    sql.NullString
		expected sql.NullString
		tol      string
		asOf     sql.NullString
		tags     sql.NullString
		active   int
		created  string
		updated  string
	)
	err := row.Scan(&tc.ID, &tc.Program, &tc.Category, &tc.Description,
		&input, &expected, &tol, &asOf, &tags, &active, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := decodeJSON(input, &tc.Input); err != nil {
		return nil, fmt.Errorf("test case %s: %w", tc.ID, err)
	}
	if err := decodeJSON(expected, &tc.Expected); err != nil {
		return nil, fmt.Errorf("test case %s: %w", tc.ID, err)
	}
	if err := decodeJSON(tags, &tc.Tags); err != nil {
		return nil, fmt.Errorf("test case %s: %w", tc.ID, err)
	}
	if tc.Tolerance, err = decodeDecimal(tol); err != nil {
		return nil, fmt.Errorf("test case %s: %w", tc.ID, err)
	}
	if asOf.Valid && asOf.String != "" {
		if tc.AsOfDate, err = decodeDate(asOf.String); err != nil {
			return nil, fmt.Errorf("test case %s: %w", tc.ID, err)
		}
	}
	tc.IsActive = active != 0
	if tc.CreatedAt, err = decodeTime(created); err != nil {
		return nil, fmt.Errorf("test case %s: %w", tc.ID, err)
	}
	if tc.UpdatedAt, err = decodeTime(updated); err != nil {
		return nil, fmt.Errorf("test case %s: %w", tc.ID, err)
	}
	return &tc, nil
}

// GetTestCase fetches one test case by ID.
func (s *Store) GetTestCase(ctx context.Context, id string) (*policy.EvaluationTestCase, error) {
	tc, err := scanTestCaseRow(s.db.QueryRowContext(ctx, testCaseSelect+` WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("test case %s: %w", id, ErrNotFound)
		}
		return nil, err
	}
	return tc, nil
}

// ListTestCases returns test cases matching the filter in ID order.
func (s *Store) ListTestCases(ctx context.Context, filter TestCaseFilter) ([]policy.EvaluationTestCase, error) {
	where, params := filter.compile()
	rows, err := s.db.QueryContext(ctx, testCaseSelect+where+` ORDER BY id`, params...)
	if err != nil {
		return nil, fmt.Errorf("list test cases: %w", err)
	}
	defer rows.Close()

	var cases []policy.EvaluationTestCase
	for rows.Next() {
		tc, err := scanTestCaseRow(rows)
		if err != nil {
			return nil, err
		}
		cases = append(cases, *tc)
	}
	return cases, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func requireRowAffected(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	return nil
}
