// Package config provides run configuration for the consensus engine.
//
// Configuration is infrastructure-agnostic: it controls the shape of the
// stochastic process (chain count, round budget, acceptance temperature,
// convergence threshold) and the oracle call policy (timeouts, retries,
// rate limits), not provider endpoints or credentials.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/consensus-cluster/mhc2c/consensus/typeutil"
)

// =============================================================================
// ERRORS
// =============================================================================

// ConfigError indicates invalid run parameters. It is fatal and surfaced
// before any oracle call is made.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid config: %s: %s", e.Field, e.Message)
}

// NewConfigError creates a new ConfigError.
func NewConfigError(field, message string) *ConfigError {
	return &ConfigError{Field: field, Message: message}
}

// =============================================================================
// RUN CONFIG
// =============================================================================

// RunConfig holds the parameters of one consensus run.
type RunConfig struct {
	// Task is the problem statement handed to every chain.
	Task string `json:"task" yaml:"task"`

	// Chains is the number of independent agent chains (m). Fixed for the
	// lifetime of a run.
	Chains int `json:"chains" yaml:"chains"`

	// MaxRounds is the round budget (T).
	MaxRounds int `json:"max_rounds" yaml:"max_rounds"`

	// Beta is the inverse temperature of the acceptance rule. Higher values
	// reject degrading proposals more aggressively.
	Beta float64 `json:"beta" yaml:"beta"`

	// Epsilon is the convergence threshold. The run converges when the
	// largest absolute proposal delta of a round is strictly below it.
	Epsilon float64 `json:"epsilon" yaml:"epsilon"`

	// Roles optionally assigns a persona hint per chain, used only to
	// diversify prompting. Missing entries fall back to "Agent N".
	Roles []string `json:"roles,omitempty" yaml:"roles,omitempty"`

	// MaxParallel bounds concurrent chain evaluation within a round
	// (0 = one goroutine per chain).
	MaxParallel int `json:"max_parallel" yaml:"max_parallel"`

	// Oracle call policy.
	OracleTimeoutSeconds    int `json:"oracle_timeout_seconds" yaml:"oracle_timeout_seconds"`
	OracleMaxAttempts       int `json:"oracle_max_attempts" yaml:"oracle_max_attempts"`
	OracleRequestsPerMinute int `json:"oracle_requests_per_minute" yaml:"oracle_requests_per_minute"` // 0 = unlimited

	// WallClockBudgetSeconds bounds the whole run (0 = unbounded). On
	// expiry the run terminates as exhausted with the last committed round.
	WallClockBudgetSeconds int `json:"wall_clock_budget_seconds" yaml:"wall_clock_budget_seconds"`
}

// DefaultRunConfig returns a RunConfig with default values. Task is empty
// and must be supplied by the caller.
func DefaultRunConfig() *RunConfig {
	return &RunConfig{
		Chains:    3,
		MaxRounds: 3,
		Beta:      1.0,
		Epsilon:   1e-3,

		MaxParallel:             0,
		OracleTimeoutSeconds:    120,
		OracleMaxAttempts:       6,
		OracleRequestsPerMinute: 0,
		WallClockBudgetSeconds:  0,
	}
}

// Validate validates the run configuration. It returns a ConfigError on the
// first violation; no partial work is performed by callers on failure.
func (c *RunConfig) Validate() error {
	if c.Task == "" {
		return NewConfigError("task", "must be non-empty")
	}
	if c.Chains < 1 {
		return NewConfigError("chains", fmt.Sprintf("must be >= 1, got %d", c.Chains))
	}
	if c.MaxRounds < 1 {
		return NewConfigError("max_rounds", fmt.Sprintf("must be >= 1, got %d", c.MaxRounds))
	}
	if c.Beta <= 0 {
		return NewConfigError("beta", fmt.Sprintf("must be > 0, got %g", c.Beta))
	}
	if c.Epsilon < 0 {
		return NewConfigError("epsilon", fmt.Sprintf("must be >= 0, got %g", c.Epsilon))
	}
	if len(c.Roles) > c.Chains {
		return NewConfigError("roles", fmt.Sprintf("%d roles for %d chains", len(c.Roles), c.Chains))
	}
	if c.MaxParallel < 0 {
		return NewConfigError("max_parallel", "must be >= 0")
	}
	if c.OracleTimeoutSeconds < 1 {
		return NewConfigError("oracle_timeout_seconds", "must be >= 1")
	}
	if c.OracleMaxAttempts < 1 {
		return NewConfigError("oracle_max_attempts", "must be >= 1")
	}
	if c.OracleRequestsPerMinute < 0 {
		return NewConfigError("oracle_requests_per_minute", "must be >= 0")
	}
	if c.WallClockBudgetSeconds < 0 {
		return NewConfigError("wall_clock_budget_seconds", "must be >= 0")
	}
	return nil
}

// RoleFor returns the persona hint for a chain index, falling back to
// "Agent N" when no role is configured.
func (c *RunConfig) RoleFor(index int) string {
	if index < len(c.Roles) && c.Roles[index] != "" {
		return c.Roles[index]
	}
	return fmt.Sprintf("Agent %d", index+1)
}

// DefaultRoles returns m descriptive persona hints. The first three cover
// complementary review perspectives; further chains get generic expert
// personas.
func DefaultRoles(m int) []string {
	base := []string{
		"Critical Analyst (focuses on logical flaws and gaps)",
		"Creative Synthesizer (seeks novel connections and approaches)",
		"Practical Implementer (evaluates feasibility and clarity)",
	}
	roles := make([]string, 0, m)
	for i := 0; i < m; i++ {
		if i < len(base) {
			roles = append(roles, base[i])
			continue
		}
		roles = append(roles, fmt.Sprintf("Expert Agent %d (provides additional perspective)", i+1))
	}
	return roles
}

// =============================================================================
// MAP / FILE CONVERSION
// =============================================================================

// RunConfigFromMap creates a RunConfig from a map. Unknown keys are ignored.
func RunConfigFromMap(m map[string]any) *RunConfig {
	c := DefaultRunConfig()

	if v, ok := typeutil.SafeString(m["task"]); ok {
		c.Task = v
	}
	if v, ok := typeutil.SafeInt(m["chains"]); ok {
		c.Chains = v
	}
	if v, ok := typeutil.SafeInt(m["max_rounds"]); ok {
		c.MaxRounds = v
	}
	if v, ok := typeutil.SafeFloat(m["beta"]); ok {
		c.Beta = v
	}
	if v, ok := typeutil.SafeFloat(m["epsilon"]); ok {
		c.Epsilon = v
	}
	if v, ok := typeutil.SafeStringSlice(m["roles"]); ok {
		c.Roles = v
	}
	if v, ok := typeutil.SafeInt(m["max_parallel"]); ok {
		c.MaxParallel = v
	}
	if v, ok := typeutil.SafeInt(m["oracle_timeout_seconds"]); ok {
		c.OracleTimeoutSeconds = v
	}
	if v, ok := typeutil.SafeInt(m["oracle_max_attempts"]); ok {
		c.OracleMaxAttempts = v
	}
	if v, ok := typeutil.SafeInt(m["oracle_requests_per_minute"]); ok {
		c.OracleRequestsPerMinute = v
	}
	if v, ok := typeutil.SafeInt(m["wall_clock_budget_seconds"]); ok {
		c.WallClockBudgetSeconds = v
	}

	return c
}

// ToMap converts the config to a map.
func (c *RunConfig) ToMap() map[string]any {
	result := map[string]any{
		"task":                       c.Task,
		"chains":                     c.Chains,
		"max_rounds":                 c.MaxRounds,
		"beta":                       c.Beta,
		"epsilon":                    c.Epsilon,
		"max_parallel":               c.MaxParallel,
		"oracle_timeout_seconds":     c.OracleTimeoutSeconds,
		"oracle_max_attempts":        c.OracleMaxAttempts,
		"oracle_requests_per_minute": c.OracleRequestsPerMinute,
		"wall_clock_budget_seconds":  c.WallClockBudgetSeconds,
	}
	if len(c.Roles) > 0 {
		result["roles"] = c.Roles
	}
	return result
}

// LoadFile reads a YAML run configuration, layered over defaults.
// The result is not validated; callers validate before running.
func LoadFile(path string) (*RunConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	c := DefaultRunConfig()
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return c, nil
}
