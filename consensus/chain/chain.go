// Package chain provides the per-agent chain state for the critique-refine loop.
//
// Each chain owns exactly one live candidate/score pair. The pair is only
// ever replaced together (Adopt); every round appends one RoundOutcome to
// the history regardless of whether the proposal was adopted.
package chain

import (
	"fmt"

	"github.com/google/uuid"
)

// =============================================================================
// RUN STATE
// =============================================================================

// RunState represents the lifecycle state of a consensus run.
// State transitions:
//
//	RUNNING -> CONVERGED (max round delta fell under epsilon)
//	RUNNING -> EXHAUSTED (round budget spent without convergence)
type RunState string

const (
	// RunStateRunning indicates the round loop is still executing.
	RunStateRunning RunState = "running"
	// RunStateConverged indicates the largest round delta fell under epsilon.
	RunStateConverged RunState = "converged"
	// RunStateExhausted indicates the round budget was spent without convergence.
	RunStateExhausted RunState = "exhausted"
)

// IsTerminal returns true if this is a terminal state.
func (s RunState) IsTerminal() bool {
	return s == RunStateConverged || s == RunStateExhausted
}

// =============================================================================
// ROUND ARTIFACTS
// =============================================================================

// Critique is an ephemeral critique produced during one round and consumed
// by the refinement stage of the same round.
type Critique struct {
	SourceChain int    `json:"source_chain"`
	TargetChain int    `json:"target_chain"`
	Text        string `json:"text"`
}

// IsSelf returns true if this is a self-critique.
func (c Critique) IsSelf() bool {
	return c.SourceChain == c.TargetChain
}

// Proposal is an ephemeral refinement candidate with its precomputed score.
// It is consumed by the acceptance step and discarded regardless of outcome.
type Proposal struct {
	ChainIndex int     `json:"chain_index"`
	Text       string  `json:"text"`
	Score      float64 `json:"score"`
}

// RoundOutcome records one chain's result for one round. Append-only.
type RoundOutcome struct {
	Round         int     `json:"round"`
	Accepted      bool    `json:"accepted"`
	Delta         float64 `json:"delta"`
	ProposalScore float64 `json:"proposal_score"`
	Failed        bool    `json:"failed"`
	FailureReason string  `json:"failure_reason,omitempty"`
}

// =============================================================================
// AGENT CHAIN
// =============================================================================

// AgentChain is one independent line of reasoning across rounds.
//
// Mutated only at the acceptance step of each round; within a round all
// reads go through a snapshot taken at the round boundary.
type AgentChain struct {
	ID        string         `json:"id"`
	Index     int            `json:"index"`
	Role      string         `json:"role"`
	Candidate string         `json:"candidate"`
	Score     float64        `json:"score"`
	History   []RoundOutcome `json:"history"`
}

// NewAgentChain creates a chain with its initial candidate and score.
func NewAgentChain(index int, role string, candidate string, score float64) *AgentChain {
	return &AgentChain{
		ID:        uuid.NewString(),
		Index:     index,
		Role:      role,
		Candidate: candidate,
		Score:     score,
	}
}

// Adopt replaces the candidate/score pair with the proposal's and records
// an accepted outcome. Candidate and score always change together.
func (a *AgentChain) Adopt(round int, p Proposal) {
	delta := p.Score - a.Score
	a.Candidate = p.Text
	a.Score = p.Score
	a.History = append(a.History, RoundOutcome{
		Round:         round,
		Accepted:      true,
		Delta:         delta,
		ProposalScore: p.Score,
	})
}

// Reject keeps the current candidate and records a rejected outcome.
func (a *AgentChain) Reject(round int, p Proposal) {
	a.History = append(a.History, RoundOutcome{
		Round:         round,
		Accepted:      false,
		Delta:         p.Score - a.Score,
		ProposalScore: p.Score,
	})
}

// RejectFailed records a degraded round: the refinement (or its scoring)
// failed, so the chain keeps its candidate and the delta is zero.
func (a *AgentChain) RejectFailed(round int, reason string) {
	a.History = append(a.History, RoundOutcome{
		Round:         round,
		Accepted:      false,
		Delta:         0,
		ProposalScore: a.Score,
		Failed:        true,
		FailureReason: reason,
	})
}

// LastOutcome returns the most recent round outcome, or false if the chain
// has not completed a round yet.
func (a *AgentChain) LastOutcome() (RoundOutcome, bool) {
	if len(a.History) == 0 {
		return RoundOutcome{}, false
	}
	return a.History[len(a.History)-1], true
}

// AllRoundsFailed returns true if every executed round degraded to a
// failure for this chain. Used to surface chains that silently kept their
// initial candidate for the whole run.
func (a *AgentChain) AllRoundsFailed() bool {
	if len(a.History) == 0 {
		return false
	}
	for _, o := range a.History {
		if !o.Failed {
			return false
		}
	}
	return true
}

// =============================================================================
// RUN RESULT
// =============================================================================

// RunResult is the final output of a consensus run: the best chain's
// candidate and score, tagged with how and when the run terminated.
type RunResult struct {
	Text       string   `json:"text"`
	Score      float64  `json:"score"`
	ChainIndex int      `json:"chain_index"`
	RoundsRun  int      `json:"rounds_run"`
	Terminated RunState `json:"terminated"`

	// DegradedChains lists chains whose every round degraded to a failed
	// refinement. Their candidate is still the round-0 initial answer.
	DegradedChains []int `json:"degraded_chains,omitempty"`
}

// SelectBest returns the chain with the maximum score. Ties break toward
// the lowest chain index so selection is deterministic.
func SelectBest(chains []*AgentChain) (*AgentChain, error) {
	if len(chains) == 0 {
		return nil, fmt.Errorf("no chains to select from")
	}
	best := chains[0]
	for _, c := range chains[1:] {
		if c.Score > best.Score {
			best = c
		}
	}
	return best, nil
}

// Snapshot returns a frozen copy of all candidate texts, indexed by chain.
// Peer critiques in round t must read this snapshot, never a half-updated
// chain, so every chain sees the same round t-1 state.
func Snapshot(chains []*AgentChain) []string {
	out := make([]string, len(chains))
	for i, c := range chains {
		out[i] = c.Candidate
	}
	return out
}
