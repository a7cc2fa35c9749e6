package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

// =============================================================================
// METRICS TESTS
// =============================================================================

func TestRecordRun(t *testing.T) {
	tests := []struct {
		name       string
		status     string
		rounds     int
		durationMS int
	}{
		{"converged run", "converged", 2, 4000},
		{"exhausted run", "exhausted", 5, 60000},
		{"failed run", "error", 0, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			RecordRun(tt.status, tt.rounds, tt.durationMS)

			count := testutil.ToFloat64(runsTotal.WithLabelValues(tt.status))
			assert.Greater(t, count, 0.0)
		})
	}
}

func TestRecordProposal(t *testing.T) {
	for _, outcome := range []string{"accepted", "rejected", "failed"} {
		RecordProposal(outcome)

		count := testutil.ToFloat64(proposalsTotal.WithLabelValues(outcome))
		assert.Greater(t, count, 0.0)
	}
}

func TestRecordOracleCall(t *testing.T) {
	tests := []struct {
		name       string
		status     string
		durationMS int
	}{
		{"successful call", "success", 1500},
		{"failed call", "error", 100},
		{"empty response", "empty", 800},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			RecordOracleCall(tt.status, tt.durationMS)

			count := testutil.ToFloat64(oracleCallsTotal.WithLabelValues(tt.status))
			assert.Greater(t, count, 0.0)
		})
	}
}

func TestRecordRoundDoesNotPanic(t *testing.T) {
	RecordRound(0.0, 0)
	RecordRound(0.0001, 1200)
	RecordRound(42.5, 90000)
}
