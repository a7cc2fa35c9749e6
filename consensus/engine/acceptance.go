package engine

import "math"

// AcceptanceProbability returns the Metropolis-Hastings acceptance
// probability min(1, exp(beta*delta)) for a proposal whose score differs
// from the current candidate's by delta. Non-negative deltas (including
// exactly zero) are always accepted; negative deltas are accepted with
// exponentially decaying probability, so a bad refinement can never force
// a guaranteed degradation while exploration stays possible.
func AcceptanceProbability(beta, delta float64) float64 {
	if delta >= 0 {
		return 1
	}
	return math.Exp(beta * delta)
}

// accept draws from the injected random source and applies the gate.
func (e *Engine) accept(delta float64) bool {
	return e.rng.Float64() < AcceptanceProbability(e.cfg.Beta, delta)
}
