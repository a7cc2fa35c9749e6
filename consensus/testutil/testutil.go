// Package testutil provides shared mocks for testing the consensus
// packages in isolation, without a live text-generation provider.
package testutil

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/consensus-cluster/mhc2c/consensus/chain"
	"github.com/consensus-cluster/mhc2c/consensus/oracle"
	"github.com/consensus-cluster/mhc2c/consensus/scoring"
)

// =============================================================================
// MOCK ORACLE
// =============================================================================

// MockOracle implements oracle.Oracle for testing.
// Configure responses by prompt prefix or use DefaultResponse.
type MockOracle struct {
	// Responses maps prompt prefixes to responses. First matching prefix wins.
	Responses map[string]string

	// DefaultResponse is returned when no prefix matches.
	DefaultResponse string

	// Delay simulates provider latency.
	Delay time.Duration

	// Error causes Generate to return this error.
	Error error

	// CallCount tracks the number of Generate calls.
	CallCount int

	// Calls records all calls for assertion.
	Calls []OracleCall

	// GenerateFunc allows custom generation logic.
	// If set, this is called instead of using Responses.
	GenerateFunc func(ctx context.Context, prompt string, opts oracle.Options) (string, error)

	mu sync.Mutex
}

// OracleCall records a single Generate call for assertion.
type OracleCall struct {
	Prompt  string
	Options oracle.Options
}

// NewMockOracle creates a MockOracle with a non-empty default response.
func NewMockOracle() *MockOracle {
	return &MockOracle{
		Responses:       make(map[string]string),
		DefaultResponse: "mock answer",
	}
}

// Generate implements oracle.Oracle.
func (m *MockOracle) Generate(ctx context.Context, prompt string, opts oracle.Options) (string, error) {
	m.mu.Lock()
	m.CallCount++
	m.Calls = append(m.Calls, OracleCall{Prompt: prompt, Options: opts})
	customFunc := m.GenerateFunc
	m.mu.Unlock()

	if customFunc != nil {
		return customFunc(ctx, prompt, opts)
	}

	if m.Delay > 0 {
		select {
		case <-time.After(m.Delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	if m.Error != nil {
		return "", m.Error
	}

	for prefix, response := range m.Responses {
		if strings.HasPrefix(prompt, prefix) {
			return response, nil
		}
	}

	return m.DefaultResponse, nil
}

// WithResponse adds a prefix-based response.
func (m *MockOracle) WithResponse(prefix, response string) *MockOracle {
	m.Responses[prefix] = response
	return m
}

// WithError configures the mock to return an error.
func (m *MockOracle) WithError(err error) *MockOracle {
	m.Error = err
	return m
}

// GetCallCount returns the number of calls (thread-safe).
func (m *MockOracle) GetCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CallCount
}

// GetCalls returns a copy of the recorded calls (thread-safe).
func (m *MockOracle) GetCalls() []OracleCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]OracleCall, len(m.Calls))
	copy(out, m.Calls)
	return out
}

// =============================================================================
// SCRIPTED RAND
// =============================================================================

// ScriptedRand returns a fixed sequence of values, then repeats the last
// one. Drives the acceptance gate deterministically in tests.
type ScriptedRand struct {
	Values []float64

	mu sync.Mutex
	i  int
}

// Float64 implements the engine's random source.
func (s *ScriptedRand) Float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.Values) == 0 {
		return 0
	}
	v := s.Values[min(s.i, len(s.Values)-1)]
	s.i++
	return v
}

// =============================================================================
// SCORERS
// =============================================================================

// ScoreMap scores texts from a fixed table, falling back to a default.
func ScoreMap(scores map[string]float64, fallback float64) scoring.Scorer {
	return scoring.Func(func(text string) (float64, error) {
		if s, ok := scores[text]; ok {
			return s, nil
		}
		return fallback, nil
	})
}

// ConstantScorer scores every text identically.
func ConstantScorer(score float64) scoring.Scorer {
	return scoring.Func(func(string) (float64, error) {
		return score, nil
	})
}

// =============================================================================
// EVENT RECORDER
// =============================================================================

// EventRecorder captures engine events for assertion.
type EventRecorder struct {
	mu        sync.Mutex
	RunID     string
	Rounds    []int
	Outcomes  map[int][]chain.RoundOutcome // keyed by chain index
	Completed []chain.RunResult
}

// NewEventRecorder creates an empty EventRecorder.
func NewEventRecorder() *EventRecorder {
	return &EventRecorder{Outcomes: make(map[int][]chain.RoundOutcome)}
}

func (r *EventRecorder) RunStarted(runID string, chains int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.RunID = runID
}

func (r *EventRecorder) RoundStarted(round int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Rounds = append(r.Rounds, round)
}

func (r *EventRecorder) ChainOutcome(chainIndex int, outcome chain.RoundOutcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Outcomes[chainIndex] = append(r.Outcomes[chainIndex], outcome)
}

func (r *EventRecorder) RunCompleted(result chain.RunResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Completed = append(r.Completed, result)
}
