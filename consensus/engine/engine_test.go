package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/consensus-cluster/mhc2c/consensus/chain"
	"github.com/consensus-cluster/mhc2c/consensus/config"
	"github.com/consensus-cluster/mhc2c/consensus/oracle"
	"github.com/consensus-cluster/mhc2c/consensus/scoring"
	"github.com/consensus-cluster/mhc2c/consensus/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// testConfig returns a config tuned for tests: single oracle attempt so
// mock failures surface immediately, no backoff sleeps.
func testConfig(task string, m, rounds int) *config.RunConfig {
	c := config.DefaultRunConfig()
	c.Task = task
	c.Chains = m
	c.MaxRounds = rounds
	c.OracleMaxAttempts = 1
	c.OracleTimeoutSeconds = 5
	return c
}

// alwaysReject drives the acceptance gate with draws just under 1, so only
// p = 1 proposals are taken.
func alwaysReject() *testutil.ScriptedRand {
	return &testutil.ScriptedRand{Values: []float64{0.999999}}
}

// lengthScorer scores by byte length; longer is better.
func lengthScorer() scoring.Scorer {
	return scoring.Func(func(text string) (float64, error) {
		return float64(len(text)), nil
	})
}

// candidateFromRefinementPrompt extracts the current candidate embedded in
// a refinement prompt, letting stubs derive deterministic proposals.
func candidateFromRefinementPrompt(prompt string) string {
	body := strings.TrimPrefix(prompt, "Original answer:\n")
	if i := strings.Index(body, "\n\n"); i >= 0 {
		return body[:i]
	}
	return body
}

// =============================================================================
// CONSTRUCTION
// =============================================================================

func TestNewFailsFastOnInvalidConfig(t *testing.T) {
	mock := testutil.NewMockOracle()
	cfg := testConfig("", 2, 1) // empty task

	_, err := New(cfg, mock, scoring.Brevity())
	require.Error(t, err)
	var cfgErr *config.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, 0, mock.GetCallCount(), "no oracle calls before validation")
}

func TestNewRequiresOracleAndScorer(t *testing.T) {
	cfg := testConfig("task", 2, 1)

	_, err := New(cfg, nil, scoring.Brevity())
	require.Error(t, err)

	_, err = New(cfg, testutil.NewMockOracle(), nil)
	require.Error(t, err)
}

// =============================================================================
// INITIALIZATION
// =============================================================================

func TestInitializationFailureIsFatal(t *testing.T) {
	mock := testutil.NewMockOracle().WithError(errors.New("provider down"))
	cfg := testConfig("task", 3, 2)

	e, err := New(cfg, mock, scoring.Brevity())
	require.NoError(t, err)

	_, err = e.Run(context.Background())
	require.Error(t, err)
	var oerr *oracle.OracleError
	assert.ErrorAs(t, err, &oerr)
}

func TestInitializationEmptyResponseIsFatal(t *testing.T) {
	mock := testutil.NewMockOracle()
	mock.DefaultResponse = "   "
	cfg := testConfig("task", 2, 1)

	e, err := New(cfg, mock, scoring.Brevity())
	require.NoError(t, err)

	_, err = e.Run(context.Background())
	require.Error(t, err)
	var oerr *oracle.OracleError
	assert.ErrorAs(t, err, &oerr)
}

func TestInitializationScorerPanicIsFatal(t *testing.T) {
	cfg := testConfig("task", 2, 1)
	e, err := New(cfg, testutil.NewMockOracle(), scoring.Func(func(string) (float64, error) {
		panic("broken scorer")
	}))
	require.NoError(t, err)

	_, err = e.Run(context.Background())
	require.Error(t, err)
	var serr *scoring.ScoreError
	assert.ErrorAs(t, err, &serr)
}

func TestRunUsesRoleHintsPerChain(t *testing.T) {
	mock := testutil.NewMockOracle()
	cfg := testConfig("task", 3, 1)
	cfg.Roles = []string{"Theorem Prover", "Problem Solver"}

	e, err := New(cfg, mock, testutil.ConstantScorer(1), WithRand(alwaysReject()))
	require.NoError(t, err)
	_, err = e.Run(context.Background())
	require.NoError(t, err)

	var initRoles []string
	for _, call := range mock.GetCalls() {
		if strings.HasPrefix(call.Prompt, "You are ") {
			initRoles = append(initRoles, call.Options.RoleHint)
		}
	}
	assert.ElementsMatch(t, []string{"Theorem Prover", "Problem Solver", "Agent 3"}, initRoles)
}

// =============================================================================
// DEGRADED ROUNDS
// =============================================================================

func TestRefinementFailureDegradesToRejection(t *testing.T) {
	mock := testutil.NewMockOracle()
	mock.GenerateFunc = func(ctx context.Context, prompt string, opts oracle.Options) (string, error) {
		if strings.HasPrefix(prompt, "You are ") {
			return "seed " + opts.RoleHint, nil
		}
		if strings.HasPrefix(prompt, "Original answer:") && opts.RoleHint == "Agent 2" {
			return "", errors.New("provider hiccup")
		}
		if strings.HasPrefix(prompt, "Original answer:") {
			return "refined " + opts.RoleHint, nil
		}
		return "a critique", nil
	}

	recorder := testutil.NewEventRecorder()
	cfg := testConfig("task", 2, 1)
	cfg.Epsilon = 0
	scorer := testutil.ScoreMap(map[string]float64{
		"seed Agent 1":    1,
		"seed Agent 2":    1,
		"refined Agent 1": 2,
	}, 0)

	e, err := New(cfg, mock, scorer, WithEvents(recorder))
	require.NoError(t, err)
	result, err := e.Run(context.Background())
	require.NoError(t, err, "refinement failures are recoverable, not fatal")

	// Chain 0 refined and accepted; chain 1 kept its initial candidate.
	assert.Equal(t, "refined Agent 1", result.Text)
	assert.Equal(t, 2.0, result.Score)

	outcomes := recorder.Outcomes[1]
	require.Len(t, outcomes, 1)
	assert.True(t, outcomes[0].Failed)
	assert.False(t, outcomes[0].Accepted)
	assert.Equal(t, 0.0, outcomes[0].Delta)
	assert.Contains(t, outcomes[0].FailureReason, "refinement")

	// Every round degraded for chain 1, so it is surfaced on the result.
	assert.Equal(t, []int{1}, result.DegradedChains)
}

func TestCritiqueFailureDoesNotAbortRound(t *testing.T) {
	mock := testutil.NewMockOracle()
	mock.GenerateFunc = func(ctx context.Context, prompt string, opts oracle.Options) (string, error) {
		switch {
		case strings.HasPrefix(prompt, "You are "):
			return "seed", nil
		case strings.HasPrefix(prompt, "Original answer:"):
			return "refined", nil
		default:
			return "", errors.New("critique oracle down")
		}
	}

	cfg := testConfig("task", 2, 1)
	scorer := testutil.ScoreMap(map[string]float64{"seed": 1, "refined": 2}, 0)

	e, err := New(cfg, mock, scorer)
	require.NoError(t, err)
	result, err := e.Run(context.Background())
	require.NoError(t, err)

	// Refinement still ran, just without critique influence.
	assert.Equal(t, "refined", result.Text)
	var sawBareRefinement bool
	for _, call := range mock.GetCalls() {
		if strings.HasPrefix(call.Prompt, "Original answer:") {
			assert.NotContains(t, call.Prompt, "Critique 1")
			sawBareRefinement = true
		}
	}
	assert.True(t, sawBareRefinement)
}

func TestProposalScoringFailureRejectsProposal(t *testing.T) {
	mock := testutil.NewMockOracle()
	mock.GenerateFunc = func(ctx context.Context, prompt string, opts oracle.Options) (string, error) {
		switch {
		case strings.HasPrefix(prompt, "You are "):
			return "seed", nil
		case strings.HasPrefix(prompt, "Original answer:"):
			return "unscorable", nil
		default:
			return "a critique", nil
		}
	}

	recorder := testutil.NewEventRecorder()
	cfg := testConfig("task", 1, 1)
	scorer := scoring.Func(func(text string) (float64, error) {
		if text == "unscorable" {
			return 0, errors.New("metric backend unavailable")
		}
		return 5, nil
	})

	e, err := New(cfg, mock, scorer, WithEvents(recorder))
	require.NoError(t, err)
	result, err := e.Run(context.Background())
	require.NoError(t, err)

	// The proposal was auto-rejected; the chain kept its candidate.
	assert.Equal(t, "seed", result.Text)
	assert.Equal(t, 5.0, result.Score)
	outcomes := recorder.Outcomes[0]
	require.Len(t, outcomes, 1)
	assert.True(t, outcomes[0].Failed)
	assert.Contains(t, outcomes[0].FailureReason, "scoring")
}

// =============================================================================
// CANCELLATION & BUDGET
// =============================================================================

func TestHostCancellationSurfacesAsError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	mock := testutil.NewMockOracle()
	var once sync.Once
	mock.GenerateFunc = func(ctx context.Context, prompt string, opts oracle.Options) (string, error) {
		if strings.HasPrefix(prompt, "You are ") {
			return "seed", nil
		}
		once.Do(cancel) // cancel the run once round 1 starts
		<-ctx.Done()
		return "", ctx.Err()
	}

	cfg := testConfig("task", 2, 3)
	e, err := New(cfg, mock, testutil.ConstantScorer(1))
	require.NoError(t, err)

	_, err = e.Run(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWallClockBudgetTerminatesExhausted(t *testing.T) {
	mock := testutil.NewMockOracle()
	mock.GenerateFunc = func(ctx context.Context, prompt string, opts oracle.Options) (string, error) {
		switch {
		case strings.HasPrefix(prompt, "You are "):
			return "seed", nil
		case strings.HasPrefix(prompt, "Original answer:"):
			// Round 1 responds fast; later rounds hang until the budget expires.
			select {
			case <-time.After(10 * time.Millisecond):
			case <-ctx.Done():
				return "", ctx.Err()
			}
			return fmt.Sprintf("refined at %s", time.Now()), nil
		default:
			if strings.Contains(prompt, "refined at") {
				<-ctx.Done()
				return "", ctx.Err()
			}
			return "a critique", nil
		}
	}

	cfg := testConfig("task", 1, 100)
	cfg.Epsilon = 0
	cfg.WallClockBudgetSeconds = 1
	scorer := scoring.Func(func(text string) (float64, error) {
		return float64(len(text)), nil
	})

	e, err := New(cfg, mock, scorer)
	require.NoError(t, err)

	result, err := e.Run(context.Background())
	require.NoError(t, err, "budget expiry is a terminal state, not an error")
	assert.Equal(t, chain.RunStateExhausted, result.Terminated)
	assert.Equal(t, 1, result.RoundsRun, "partial round 2 must be discarded")
	assert.Contains(t, result.Text, "refined at", "round 1 commit must stand")
}
