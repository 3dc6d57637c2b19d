package policy

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultTolerance is the variance tolerance (percent) applied when a
// test case does not specify one.
var DefaultTolerance = decimal.RequireFromString("1.00")

// ExpectedResult is the curated expectation for a test case. Boolean
// fields must match exactly; numeric fields pass under the case's
// variance tolerance.
type ExpectedResult struct {
	Eligible       *bool            `json:"eligible,omitempty"`
	MonthlyBenefit *decimal.Decimal `json:"monthly_benefit,omitempty"`
	AnnualCredit   *decimal.Decimal `json:"annual_credit,omitempty"`
}

// Amount returns the expected benefit amount and whether one is set.
func (e *ExpectedResult) Amount() (decimal.Decimal, bool) {
	if e.MonthlyBenefit != nil {
		return *e.MonthlyBenefit, true
	}
	if e.AnnualCredit != nil {
		return *e.AnnualCredit, true
	}
	return decimal.Zero, false
}

// EvaluationTestCase is a curated input/expectation pair. Identity is
// immutable across edits; cases are deactivated rather than deleted so
// historical results stay interpretable.
type EvaluationTestCase struct {
	ID          string           `json:"id"`
	Program     Program          `json:"program"`
	Category    string           `json:"category"`
	Description string           `json:"description,omitempty"`
	Input       HouseholdProfile `json:"input_data"`
	Expected    ExpectedResult   `json:"expected_result"`

	// Tolerance is the maximum passing variance, in percent.
	Tolerance decimal.Decimal `json:"tolerance"`

	// AsOfDate pins rule-version resolution for the case. Zero means
	// evaluate against currently effective rules.
	AsOfDate time.Time `json:"as_of_date,omitempty"`

	Tags     []string  `json:"tags,omitempty"`
	IsActive bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks the test case is well-formed enough to execute.
func (tc *EvaluationTestCase) Validate() error {
	if tc.ID == "" {
		return fmt.Errorf("test case: id is required")
	}
	if !tc.Program.Valid() {
		return fmt.Errorf("test case %s: unknown program %q", tc.ID, tc.Program)
	}
	if tc.Tolerance.IsNegative() {
		return fmt.Errorf("test case %s: negative tolerance", tc.ID)
	}
	if err := tc.Input.Validate(); err != nil {
		return fmt.Errorf("test case %s: input: %w", tc.ID, err)
	}
	return nil
}

// RunStatus tracks an evaluation run's lifecycle: created running,
// completed once every case in the batch has a result, failed on an
// unrecoverable error. Individual case errors do not fail a run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// EvaluationRun is one batch execution of test cases.
type EvaluationRun struct {
	ID          string    `json:"id"`
	Status      RunStatus `json:"status"`
	TotalCases  int       `json:"total_cases"`
	PassedCases int       `json:"passed_cases"`
	FailedCases int       `json:"failed_cases"`

	// AverageVariance is the mean over cases that produced a defined
	// variance; nil when no case did.
	AverageVariance *decimal.Decimal `json:"average_variance,omitempty"`

	// WithReference records whether the external reference calculator
	// was consulted for this run.
	WithReference bool `json:"with_reference"`

	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// EvaluationResult is one case's outcome within a run. Results are
// keyed by (RunID, TestCaseID) and written idempotently, so a retried
// case replaces nothing and duplicates nothing.
//
// INVARIANT: Passed is true iff every expected boolean field matches
// exactly and, when a numeric comparison applies, Variance is at most
// the case's tolerance.
type EvaluationResult struct {
	RunID      string `json:"run_id"`
	TestCaseID string `json:"test_case_id"`

	Actual *Determination `json:"actual_result,omitempty"`
	Passed bool           `json:"passed"`

	// Variance is the percent difference from the expected or
	// reference amount; nil when no numeric comparison applied.
	Variance *decimal.Decimal `json:"variance,omitempty"`

	ExecutionTimeMs int64  `json:"execution_time_ms"`
	ErrorMessage    string `json:"error_message,omitempty"`
}

// Errored reports whether the case failed to execute (engine or
// collaborator error), as opposed to a failed assertion.
func (r *EvaluationResult) Errored() bool {
	return r.ErrorMessage != ""
}
