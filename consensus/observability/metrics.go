// Package observability provides Prometheus metrics and OpenTelemetry
// tracing for the consensus engine.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// RUN METRICS
// =============================================================================

var (
	runsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mhc2c_runs_total",
			Help: "Total number of consensus runs",
		},
		[]string{"status"}, // status: converged, exhausted, error
	)

	runDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mhc2c_run_duration_seconds",
			Help:    "Consensus run duration in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
		},
	)

	runRounds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mhc2c_run_rounds",
			Help:    "Number of rounds executed per run",
			Buckets: []float64{1, 2, 3, 5, 8, 13, 21},
		},
	)
)

// =============================================================================
// ROUND METRICS
// =============================================================================

var (
	roundDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mhc2c_round_duration_seconds",
			Help:    "Round duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
	)

	roundMaxDelta = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mhc2c_round_max_delta",
			Help:    "Largest absolute proposal score delta per round",
			Buckets: []float64{0.0001, 0.001, 0.01, 0.1, 1, 10, 100},
		},
	)
)

// =============================================================================
// PROPOSAL METRICS
// =============================================================================

var (
	proposalsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mhc2c_proposals_total",
			Help: "Total refinement proposals by acceptance outcome",
		},
		[]string{"outcome"}, // outcome: accepted, rejected, failed
	)
)

// =============================================================================
// ORACLE METRICS
// =============================================================================

var (
	oracleCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mhc2c_oracle_calls_total",
			Help: "Total oracle generation attempts",
		},
		[]string{"status"}, // status: success, error, empty
	)

	oracleDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mhc2c_oracle_duration_seconds",
			Help:    "Oracle call duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
	)
)

// =============================================================================
// PUBLIC API
// =============================================================================

// RecordRun records run-level metrics after a run reaches a terminal state.
func RecordRun(status string, rounds int, durationMS int) {
	runsTotal.WithLabelValues(status).Inc()
	runDurationSeconds.Observe(float64(durationMS) / 1000.0)
	runRounds.Observe(float64(rounds))
}

// RecordRound records round-level metrics after the acceptance step.
func RecordRound(maxDelta float64, durationMS int) {
	roundDurationSeconds.Observe(float64(durationMS) / 1000.0)
	roundMaxDelta.Observe(maxDelta)
}

// RecordProposal records a proposal's acceptance outcome.
func RecordProposal(outcome string) {
	proposalsTotal.WithLabelValues(outcome).Inc()
}

// RecordOracleCall records a single oracle generation attempt.
func RecordOracleCall(status string, durationMS int) {
	oracleCallsTotal.WithLabelValues(status).Inc()
	oracleDurationSeconds.Observe(float64(durationMS) / 1000.0)
}
