// Package engine implements the multi-agent critique-refine-accept loop.
//
// A run drives m independent agent chains through at most T rounds. Each
// round every chain gathers a self-critique and one peer-critique per
// other chain, proposes a refinement, and passes it through a
// Metropolis-Hastings acceptance gate. The run terminates when the largest
// proposal delta of a round falls under epsilon, or when the round budget
// is spent.
package engine

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/consensus-cluster/mhc2c/consensus/chain"
	"github.com/consensus-cluster/mhc2c/consensus/config"
	"github.com/consensus-cluster/mhc2c/consensus/observability"
	"github.com/consensus-cluster/mhc2c/consensus/oracle"
	"github.com/consensus-cluster/mhc2c/consensus/scoring"
)

var tracer = otel.Tracer("mhc2c/engine")

// Logger is the interface for logging.
type Logger interface {
	Info(msg string, fields ...any)
	Debug(msg string, fields ...any)
	Warn(msg string, fields ...any)
	Error(msg string, fields ...any)
	Bind(fields ...any) Logger
}

// nopLogger discards everything.
type nopLogger struct{}

func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
func (n nopLogger) Bind(...any) Logger { return n }

// Rand supplies uniform draws in [0, 1) for the acceptance gate.
// Injectable so tests can force both the accept and reject branches.
type Rand interface {
	Float64() float64
}

type defaultRand struct{}

func (defaultRand) Float64() float64 { return rand.Float64() }

// Events is notified of run progress. All methods are called from the
// round loop goroutine, never concurrently.
type Events interface {
	RunStarted(runID string, chains int)
	RoundStarted(round int)
	ChainOutcome(chainIndex int, outcome chain.RoundOutcome)
	RunCompleted(result chain.RunResult)
}

type nopEvents struct{}

func (nopEvents) RunStarted(string, int)               {}
func (nopEvents) RoundStarted(int)                     {}
func (nopEvents) ChainOutcome(int, chain.RoundOutcome) {}
func (nopEvents) RunCompleted(chain.RunResult)         {}

// =============================================================================
// ENGINE
// =============================================================================

// Engine owns one run's chain collection. Its lifetime is bounded by the
// Run invocation; there is no ambient global state.
type Engine struct {
	cfg    *config.RunConfig
	oracle oracle.Oracle
	scorer scoring.Scorer
	logger Logger
	rng    Rand
	events Events
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(l Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithRand sets the random source for acceptance sampling.
func WithRand(r Rand) Option {
	return func(e *Engine) { e.rng = r }
}

// WithEvents sets the run progress observer.
func WithEvents(ev Events) Option {
	return func(e *Engine) { e.events = ev }
}

// New creates an Engine. The configuration is validated here, before any
// oracle call is made; invalid parameters fail fast with a ConfigError.
// The oracle is wrapped with the retry and rate-limit policy from the
// configuration, so call sites never compose it themselves.
func New(cfg *config.RunConfig, o oracle.Oracle, scorer scoring.Scorer, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if o == nil {
		return nil, config.NewConfigError("oracle", "must not be nil")
	}
	if scorer == nil {
		return nil, config.NewConfigError("scorer", "must not be nil")
	}

	retried := oracle.WithRetry(o, oracle.RetryConfig{
		MaxAttempts:     cfg.OracleMaxAttempts,
		Timeout:         time.Duration(cfg.OracleTimeoutSeconds) * time.Second,
		InitialInterval: 1 * time.Second,
		MaxInterval:     20 * time.Second,
	})

	e := &Engine{
		cfg:    cfg,
		oracle: oracle.WithRateLimit(retried, cfg.OracleRequestsPerMinute),
		scorer: scorer,
		logger: nopLogger{},
		rng:    defaultRand{},
		events: nopEvents{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Run executes the consensus process to a terminal state and returns the
// best chain's candidate. The returned error is non-nil only for fatal
// conditions: chain initialization failure or host cancellation.
func (e *Engine) Run(ctx context.Context) (*chain.RunResult, error) {
	runID := uuid.NewString()
	log := e.logger.Bind("run_id", runID)
	startTime := time.Now()

	ctx, span := tracer.Start(ctx, "consensus.run", trace.WithAttributes(
		attribute.String("mhc2c.run.id", runID),
		attribute.Int("mhc2c.chains", e.cfg.Chains),
		attribute.Int("mhc2c.max_rounds", e.cfg.MaxRounds),
	))
	defer span.End()

	// The wall-clock budget bounds oracle work; expiry terminates the run
	// as exhausted rather than as an error.
	budgetCtx := ctx
	if e.cfg.WallClockBudgetSeconds > 0 {
		var cancel context.CancelFunc
		budgetCtx, cancel = context.WithTimeout(ctx, time.Duration(e.cfg.WallClockBudgetSeconds)*time.Second)
		defer cancel()
	}

	log.Info("run_started", "chains", e.cfg.Chains, "max_rounds", e.cfg.MaxRounds,
		"beta", e.cfg.Beta, "epsilon", e.cfg.Epsilon)
	e.events.RunStarted(runID, e.cfg.Chains)

	chains, err := e.initChains(budgetCtx, log)
	if err != nil {
		durationMS := int(time.Since(startTime).Milliseconds())
		observability.RecordRun("error", 0, durationMS)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Error("run_init_failed", "error", err.Error())
		return nil, fmt.Errorf("chain initialization: %w", err)
	}

	state := chain.RunStateRunning
	roundsRun := 0

	for t := 1; t <= e.cfg.MaxRounds; t++ {
		e.events.RoundStarted(t)

		maxDelta, err := e.runRound(budgetCtx, log, chains, t)
		if err != nil {
			if budgetCtx.Err() != nil && ctx.Err() == nil {
				// Budget expired mid-round: the partial round is discarded
				// and the last committed state stands.
				log.Warn("run_budget_expired", "round", t, "rounds_committed", roundsRun)
				state = chain.RunStateExhausted
				break
			}
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		roundsRun = t

		if maxDelta < e.cfg.Epsilon {
			log.Info("run_converged", "round", t, "max_delta", maxDelta, "epsilon", e.cfg.Epsilon)
			state = chain.RunStateConverged
			break
		}
	}
	if state == chain.RunStateRunning {
		state = chain.RunStateExhausted
		log.Info("run_exhausted", "rounds_run", roundsRun)
	}

	result, err := e.finalize(chains, state, roundsRun)
	if err != nil {
		return nil, err
	}

	durationMS := int(time.Since(startTime).Milliseconds())
	observability.RecordRun(string(state), roundsRun, durationMS)
	span.SetAttributes(
		attribute.Int("mhc2c.rounds_run", roundsRun),
		attribute.String("mhc2c.terminated", string(state)),
		attribute.Float64("mhc2c.best_score", result.Score),
	)
	span.SetStatus(codes.Ok, string(state))
	log.Info("run_completed", "terminated", string(state), "rounds_run", roundsRun,
		"best_chain", result.ChainIndex, "best_score", result.Score, "duration_ms", durationMS)
	e.events.RunCompleted(*result)

	return result, nil
}

// finalize builds the RunResult from the final chain states. Ties break
// toward the lowest chain index.
func (e *Engine) finalize(chains []*chain.AgentChain, state chain.RunState, roundsRun int) (*chain.RunResult, error) {
	best, err := chain.SelectBest(chains)
	if err != nil {
		return nil, err
	}

	var degraded []int
	for _, c := range chains {
		if c.AllRoundsFailed() {
			degraded = append(degraded, c.Index)
			e.logger.Warn("chain_degraded_all_rounds", "chain", c.Index)
		}
	}

	return &chain.RunResult{
		Text:           best.Candidate,
		Score:          best.Score,
		ChainIndex:     best.Index,
		RoundsRun:      roundsRun,
		Terminated:     state,
		DegradedChains: degraded,
	}, nil
}
