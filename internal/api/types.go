package api

import (
	"github.com/civigo/benefits/internal/policy"
)

// ErrorResponse is the uniform error payload.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// EvaluateRequest is the body of POST /api/v1/evaluate.
type EvaluateRequest struct {
	Program   policy.Program          `json:"program" binding:"required"`
	Household policy.HouseholdProfile `json:"household" binding:"required"`

	// AsOfDate pins rule-version resolution, formatted 2006-01-02.
	// Empty means the current UTC date.
	AsOfDate string `json:"as_of_date,omitempty"`
}

// RunRequest is the body of POST /api/v1/runs.
type RunRequest struct {
	Program       policy.Program `json:"program,omitempty"`
	Category      string         `json:"category,omitempty"`
	Tag           string         `json:"tag,omitempty"`
	TestCaseIDs   []string       `json:"test_case_ids,omitempty"`
	WithReference bool           `json:"with_reference,omitempty"`
}

// RejectRequest is the body of POST /api/v1/mappings/:id/reject.
type RejectRequest struct {
	Reason     string `json:"reason" binding:"required"`
	ReviewedBy string `json:"reviewed_by" binding:"required"`
}

// ApproveRequest is the body of POST /api/v1/mappings/:id/approve.
type ApproveRequest struct {
	ReviewedBy string `json:"reviewed_by" binding:"required"`
}

// ApproveResponse reports the rules affected by an approval.
type ApproveResponse struct {
	MappingID     string   `json:"mapping_id"`
	AffectedRules []string `json:"affected_rules"`
}

// BulkApproveRequest is the body of POST /api/v1/mappings/approve-bulk.
type BulkApproveRequest struct {
	MappingIDs []string `json:"mapping_ids" binding:"required,min=1"`
	ReviewedBy string   `json:"reviewed_by" binding:"required"`
}

// BulkApproveResponse summarizes a bulk approval; failures are
// reported per mapping and do not block the rest.
type BulkApproveResponse struct {
	Approved int               `json:"approved"`
	Failures map[string]string `json:"failures,omitempty"`
}
