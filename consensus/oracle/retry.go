package oracle

import (
	"context"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/consensus-cluster/mhc2c/consensus/observability"
)

// RetryConfig configures the retry decorator.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int

	// Timeout bounds each individual attempt.
	Timeout time.Duration

	// InitialInterval and MaxInterval shape the exponential backoff
	// between attempts.
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryConfig returns the default oracle call policy.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:     6,
		Timeout:         120 * time.Second,
		InitialInterval: 1 * time.Second,
		MaxInterval:     20 * time.Second,
	}
}

// retryOracle decorates an Oracle with per-attempt timeouts and bounded
// exponential-backoff retry. Non-empty responses are required; an empty
// response counts as a failed attempt.
type retryOracle struct {
	inner Oracle
	cfg   RetryConfig
}

// WithRetry wraps an Oracle with the retry policy. This is composed around
// every engine call site, so transient provider failures are absorbed here
// and never propagate unless the whole attempt budget is spent.
func WithRetry(inner Oracle, cfg RetryConfig) Oracle {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = time.Second
	}
	if cfg.MaxInterval < cfg.InitialInterval {
		cfg.MaxInterval = cfg.InitialInterval
	}
	return &retryOracle{inner: inner, cfg: cfg}
}

// Generate implements Oracle.
func (r *retryOracle) Generate(ctx context.Context, prompt string, opts Options) (string, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.cfg.InitialInterval
	b.MaxInterval = r.cfg.MaxInterval
	b.MaxElapsedTime = 0 // attempt count is the bound, not elapsed time

	policy := backoff.WithMaxRetries(backoff.WithContext(b, ctx), uint64(r.cfg.MaxAttempts-1))

	text, err := backoff.RetryWithData(func() (string, error) {
		return r.attempt(ctx, prompt, opts)
	}, policy)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", NewOracleError("retries exhausted", err)
	}
	return text, nil
}

func (r *retryOracle) attempt(ctx context.Context, prompt string, opts Options) (string, error) {
	attemptCtx := ctx
	if r.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, r.cfg.Timeout)
		defer cancel()
	}

	start := time.Now()
	text, err := r.inner.Generate(attemptCtx, prompt, opts)
	durationMS := int(time.Since(start).Milliseconds())

	if err != nil {
		observability.RecordOracleCall("error", durationMS)
		if ctx.Err() != nil {
			// The run was cancelled, not the attempt; do not retry.
			return "", backoff.Permanent(err)
		}
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		observability.RecordOracleCall("empty", durationMS)
		return "", NewOracleError("empty response", nil)
	}

	observability.RecordOracleCall("success", durationMS)
	return text, nil
}
