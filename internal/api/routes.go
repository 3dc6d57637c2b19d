package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter builds the gin engine with all routes registered.
func NewRouter(h *Handlers) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	v1 := router.Group("/api/v1")
	RegisterRoutes(v1, h)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return router
}

// RegisterRoutes registers the v1 API routes on the given group.
func RegisterRoutes(rg *gin.RouterGroup, h *Handlers) {
	rg.POST("/evaluate", h.HandleEvaluate)

	rg.GET("/testcases", h.HandleListTestCases)
	rg.POST("/testcases", h.HandleCreateTestCase)
	rg.GET("/testcases/:id", h.HandleGetTestCase)
	rg.PUT("/testcases/:id", h.HandleUpdateTestCase)
	rg.DELETE("/testcases/:id", h.HandleDeactivateTestCase)

	rg.POST("/runs", h.HandleCreateRun)
	rg.GET("/runs", h.HandleListRuns)
	rg.GET("/runs/:id", h.HandleGetRun)
	rg.GET("/runs/:id/results", h.HandleRunResults)

	rg.GET("/mappings", h.HandleListMappings)
	rg.POST("/mappings/:id/approve", h.HandleApproveMapping)
	rg.POST("/mappings/:id/reject", h.HandleRejectMapping)
	rg.POST("/mappings/approve-bulk", h.HandleBulkApprove)
}
