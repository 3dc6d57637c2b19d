// Package metrics exposes Prometheus instrumentation for the
// evaluation pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Evaluations counts engine evaluations by program and outcome
	// (eligible, ineligible, error).
	Evaluations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "benefits",
		Name:      "engine_evaluations_total",
		Help:      "Engine evaluations by program and outcome.",
	}, []string{"program", "outcome"})

	// RunCases counts harness case executions by result (passed,
	// failed, errored).
	RunCases = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "benefits",
		Name:      "harness_cases_total",
		Help:      "Harness test case executions by result.",
	}, []string{"result"})

	// ReferenceCalls counts reference-verifier calls by status (ok,
	// timeout, error).
	ReferenceCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "benefits",
		Name:      "reference_calls_total",
		Help:      "Reference calculator calls by status.",
	}, []string{"status"})

	// CaseDuration observes per-case execution time.
	CaseDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "benefits",
		Name:      "harness_case_duration_seconds",
		Help:      "Per-case execution time in the harness.",
		Buckets:   prometheus.DefBuckets,
	})
)
