// Package oracle defines the text-generation oracle boundary.
//
// The oracle is the only external collaborator the engine suspends on.
// Implementations talk to an LLM provider; decorators in this package add
// the call policy (timeout, bounded retry, rate limiting) so call sites
// never duplicate it.
package oracle

import (
	"context"
	"fmt"
)

// Options carries per-call generation hints.
type Options struct {
	// RoleHint is a persona injected as the system message, used to
	// diversify otherwise identical prompts across chains.
	RoleHint string

	// MaxTokens caps the response length (0 = provider default).
	MaxTokens int

	// Temperature overrides the sampling temperature (nil = provider default).
	Temperature *float64
}

// Oracle is the interface to the external text-generation service.
type Oracle interface {
	Generate(ctx context.Context, prompt string, opts Options) (string, error)
}

// =============================================================================
// ERRORS
// =============================================================================

// OracleError is raised on network/API failure, rate limiting, or a
// malformed (empty) response.
type OracleError struct {
	Reason string
	Cause  error
}

func (e *OracleError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("oracle: %s: %v", e.Reason, e.Cause)
	}
	return fmt.Sprintf("oracle: %s", e.Reason)
}

func (e *OracleError) Unwrap() error {
	return e.Cause
}

// NewOracleError creates a new OracleError.
func NewOracleError(reason string, cause error) *OracleError {
	return &OracleError{Reason: reason, Cause: cause}
}

// =============================================================================
// FUNC ADAPTER
// =============================================================================

// Func adapts a plain function to the Oracle interface.
type Func func(ctx context.Context, prompt string, opts Options) (string, error)

// Generate implements Oracle.
func (f Func) Generate(ctx context.Context, prompt string, opts Options) (string, error) {
	return f(ctx, prompt, opts)
}
