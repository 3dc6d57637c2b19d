// Package api exposes the evaluation, test-case, run, and mapping
// contracts over HTTP. The surface is thin plumbing: every handler
// binds a request, calls the owning package, and maps its typed
// errors to status codes.
package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/civigo/benefits/internal/engine"
	"github.com/civigo/benefits/internal/harness"
	"github.com/civigo/benefits/internal/mapper"
	"github.com/civigo/benefits/internal/metrics"
	"github.com/civigo/benefits/internal/policy"
	"github.com/civigo/benefits/internal/store"
)

// Handlers holds the HTTP handlers and their collaborators.
type Handlers struct {
	store   *store.Store
	engine  *engine.Engine
	harness *harness.Harness
	mapper  *mapper.Mapper
}

// NewHandlers creates the handler set.
func NewHandlers(st *store.Store, eng *engine.Engine, h *harness.Harness, mp *mapper.Mapper) *Handlers {
	return &Handlers{store: st, engine: eng, harness: h, mapper: mp}
}

func getOrCreateRequestID(c *gin.Context) string {
	if id := c.GetHeader("X-Request-ID"); id != "" {
		return id
	}
	return uuid.NewString()
}

// writeError maps package errors onto the uniform error payload.
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	code := "INTERNAL"

	var stateErr *mapper.MappingStateError
	switch {
	case engine.IsInvalidInput(err):
		status, code = http.StatusBadRequest, string(engine.ErrCodeInvalidInput)
	case engine.IsRuleNotFound(err):
		status, code = http.StatusNotFound, string(engine.ErrCodeRuleNotFound)
	case errors.Is(err, store.ErrNotFound):
		status, code = http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, store.ErrStaleStatus):
		status, code = http.StatusConflict, "ALREADY_REVIEWED"
	case errors.As(err, &stateErr):
		status, code = http.StatusUnprocessableEntity, "INVALID_TRANSITION"
	}
	c.JSON(status, ErrorResponse{Error: err.Error(), Code: code})
}

// HandleEvaluate handles POST /api/v1/evaluate.
func (h *Handlers) HandleEvaluate(c *gin.Context) {
	logger := slog.With("request_id", getOrCreateRequestID(c), "handler", "evaluate")

	var req EvaluateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "INVALID_REQUEST"})
		return
	}

	var asOf time.Time
	if req.AsOfDate != "" {
		var err error
		if asOf, err = time.Parse("2006-01-02", req.AsOfDate); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error: "as_of_date must be formatted YYYY-MM-DD",
				Code:  "INVALID_REQUEST",
			})
			return
		}
	}

	det, err := h.engine.Evaluate(c.Request.Context(), req.Program, &req.Household, asOf)
	if err != nil {
		metrics.Evaluations.WithLabelValues(string(req.Program), "error").Inc()
		logger.Warn("evaluation failed", "program", req.Program, "error", err)
		writeError(c, err)
		return
	}
	metrics.Evaluations.WithLabelValues(string(req.Program), outcome(det)).Inc()
	c.JSON(http.StatusOK, det)
}

func outcome(d *policy.Determination) string {
	if d.Eligible {
		return "eligible"
	}
	return "ineligible"
}

// HandleListTestCases handles GET /api/v1/testcases.
func (h *Handlers) HandleListTestCases(c *gin.Context) {
	filter := store.TestCaseFilter{
		Program:    policy.Program(c.Query("program")),
		Category:   c.Query("category"),
		Tag:        c.Query("tag"),
		ActiveOnly: c.Query("active") == "true",
	}
	cases, err := h.store.ListTestCases(c.Request.Context(), filter)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, cases)
}

// HandleGetTestCase handles GET /api/v1/testcases/:id.
func (h *Handlers) HandleGetTestCase(c *gin.Context) {
	tc, err := h.store.GetTestCase(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, tc)
}

// HandleCreateTestCase handles POST /api/v1/testcases.
func (h *Handlers) HandleCreateTestCase(c *gin.Context) {
	var tc policy.EvaluationTestCase
	if err := c.ShouldBindJSON(&tc); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "INVALID_REQUEST"})
		return
	}
	if tc.ID == "" {
		tc.ID = uuid.NewString()
	}
	if tc.Tolerance.IsZero() {
		tc.Tolerance = policy.DefaultTolerance
	}
	tc.IsActive = true
	if err := tc.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "INVALID_REQUEST"})
		return
	}
	if err := h.store.CreateTestCase(c.Request.Context(), &tc); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, tc)
}

// HandleUpdateTestCase handles PUT /api/v1/testcases/:id.
func (h *Handlers) HandleUpdateTestCase(c *gin.Context) {
	var tc policy.EvaluationTestCase
	if err := c.ShouldBindJSON(&tc); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "INVALID_REQUEST"})
		return
	}
	tc.ID = c.Param("id")
	if tc.Tolerance.IsZero() {
		tc.Tolerance = policy.DefaultTolerance
	}
	if err := tc.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "INVALID_REQUEST"})
		return
	}
	if err := h.store.UpdateTestCase(c.Request.Context(), &tc); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, tc)
}

// HandleDeactivateTestCase handles DELETE /api/v1/testcases/:id.
// Cases are deactivated, not deleted, so historical run results stay
// interpretable.
func (h *Handlers) HandleDeactivateTestCase(c *gin.Context) {
	if err := h.store.DeactivateTestCase(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// HandleCreateRun handles POST /api/v1/runs. The run executes in the
// background; the response carries the running run for polling.
func (h *Handlers) HandleCreateRun(c *gin.Context) {
	logger := slog.With("request_id", getOrCreateRequestID(c), "handler", "runs")

	var req RunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "INVALID_REQUEST"})
		return
	}

	run, err := h.harness.StartRun(c.Request.Context(), harness.RunRequest{
		Program:       req.Program,
		Category:      req.Category,
		Tag:           req.Tag,
		TestCaseIDs:   req.TestCaseIDs,
		WithReference: req.WithReference,
	})
	if err != nil {
		logger.Warn("run not started", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "RUN_NOT_STARTED"})
		return
	}
	logger.Info("run started", "run_id", run.ID, "total_cases", run.TotalCases)
	c.JSON(http.StatusAccepted, run)
}

// HandleListRuns handles GET /api/v1/runs.
func (h *Handlers) HandleListRuns(c *gin.Context) {
	runs, err := h.store.ListRuns(c.Request.Context(), 0)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, runs)
}

// HandleGetRun handles GET /api/v1/runs/:id.
func (h *Handlers) HandleGetRun(c *gin.Context) {
	run, err := h.store.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, run)
}

// HandleRunResults handles GET /api/v1/runs/:id/results.
func (h *Handlers) HandleRunResults(c *gin.Context) {
	if _, err := h.store.GetRun(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	results, err := h.store.ResultsForRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, results)
}

// HandleListMappings handles GET /api/v1/mappings. Only the pending
// queue is exposed; it comes back in review-priority order.
func (h *Handlers) HandleListMappings(c *gin.Context) {
	if status := c.Query("status"); status != "" && status != string(policy.ReviewPending) {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "only status=pending is supported",
			Code:  "INVALID_REQUEST",
		})
		return
	}
	queue, err := h.mapper.ReviewQueue(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, queue)
}

// HandleApproveMapping handles POST /api/v1/mappings/:id/approve.
func (h *Handlers) HandleApproveMapping(c *gin.Context) {
	var req ApproveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "INVALID_REQUEST"})
		return
	}
	affected, err := h.mapper.Approve(c.Request.Context(), c.Param("id"), req.ReviewedBy)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, ApproveResponse{MappingID: c.Param("id"), AffectedRules: affected})
}

// HandleRejectMapping handles POST /api/v1/mappings/:id/reject.
func (h *Handlers) HandleRejectMapping(c *gin.Context) {
	var req RejectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "INVALID_REQUEST"})
		return
	}
	if err := h.mapper.Reject(c.Request.Context(), c.Param("id"), req.Reason, req.ReviewedBy); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// HandleBulkApprove handles POST /api/v1/mappings/approve-bulk.
func (h *Handlers) HandleBulkApprove(c *gin.Context) {
	var req BulkApproveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "INVALID_REQUEST"})
		return
	}
	result, err := h.mapper.BulkApprove(c.Request.Context(), req.MappingIDs, req.ReviewedBy)
	if err != nil {
		writeError(c, err)
		return
	}
	resp := BulkApproveResponse{Approved: result.Approved}
	if len(result.Failures) > 0 {
		resp.Failures = make(map[string]string, len(result.Failures))
		for _, f := range result.Failures {
			resp.Failures[f.MappingID] = f.Err.Error()
		}
	}
	c.JSON(http.StatusOK, resp)
}
