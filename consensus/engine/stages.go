package engine

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/consensus-cluster/mhc2c/consensus/chain"
	"github.com/consensus-cluster/mhc2c/consensus/observability"
	"github.com/consensus-cluster/mhc2c/consensus/oracle"
	"github.com/consensus-cluster/mhc2c/consensus/prompts"
	"github.com/consensus-cluster/mhc2c/consensus/scoring"
)

// roundProposal is one chain's outcome of the critique/refine stages,
// pending the acceptance step.
type roundProposal struct {
	proposal chain.Proposal
	failed   bool
	reason   string
}

// initChains generates every chain's independent initial candidate.
// Any failure here is fatal: no chain can exist without an initial
// candidate, so the run fails fast rather than proceeding partially.
func (e *Engine) initChains(ctx context.Context, log Logger) ([]*chain.AgentChain, error) {
	ctx, span := tracer.Start(ctx, "consensus.init_chains")
	defer span.End()

	chains := make([]*chain.AgentChain, e.cfg.Chains)

	g, gctx := errgroup.WithContext(ctx)
	if e.cfg.MaxParallel > 0 {
		g.SetLimit(e.cfg.MaxParallel)
	}
	for i := 0; i < e.cfg.Chains; i++ {
		g.Go(func() error {
			role := e.cfg.RoleFor(i)
			text, err := e.oracle.Generate(gctx, prompts.Initial(role, e.cfg.Task), oracle.Options{RoleHint: role})
			if err != nil {
				return fmt.Errorf("chain %d: %w", i, err)
			}
			score, err := scoring.SafeScore(e.scorer, text)
			if err != nil {
				return fmt.Errorf("chain %d initial score: %w", i, err)
			}
			chains[i] = chain.NewAgentChain(i, role, text, score)
			log.Debug("chain_initialized", "chain", i, "role", role, "score", score)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return chains, nil
}

// runRound executes one synchronized critique -> refinement -> acceptance
// pass over all chains and returns the round's largest absolute proposal
// delta. Chains are evaluated concurrently against a snapshot of the
// previous round's candidates; chain state mutates only in the sequential
// acceptance step after every chain has finished, so a reader between
// rounds never observes a mixed snapshot.
func (e *Engine) runRound(ctx context.Context, log Logger, chains []*chain.AgentChain, round int) (float64, error) {
	startTime := time.Now()
	ctx, span := tracer.Start(ctx, "consensus.round", trace.WithAttributes(
		attribute.Int("mhc2c.round", round),
	))
	defer span.End()

	rlog := log.Bind("round", round)
	snapshot := chain.Snapshot(chains)
	results := make([]roundProposal, len(chains))

	g, gctx := errgroup.WithContext(ctx)
	if e.cfg.MaxParallel > 0 {
		g.SetLimit(e.cfg.MaxParallel)
	}
	for i := range chains {
		g.Go(func() error {
			rp, err := e.evaluateChain(gctx, rlog, chains[i], snapshot)
			if err != nil {
				return err
			}
			results[i] = rp
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	// Acceptance step: sequential, the round's hard synchronization point.
	maxDelta := 0.0
	for i, c := range chains {
		rp := results[i]
		if rp.failed {
			c.RejectFailed(round, rp.reason)
			observability.RecordProposal("failed")
		} else {
			delta := rp.proposal.Score - c.Score
			if abs := math.Abs(delta); abs > maxDelta {
				maxDelta = abs
			}
			if e.accept(delta) {
				c.Adopt(round, rp.proposal)
				observability.RecordProposal("accepted")
				rlog.Info("proposal_accepted", "chain", c.Index, "delta", delta, "score", c.Score)
			} else {
				c.Reject(round, rp.proposal)
				observability.RecordProposal("rejected")
				rlog.Info("proposal_rejected", "chain", c.Index, "delta", delta)
			}
		}
		if outcome, ok := c.LastOutcome(); ok {
			e.events.ChainOutcome(c.Index, outcome)
		}
	}

	durationMS := int(time.Since(startTime).Milliseconds())
	observability.RecordRound(maxDelta, durationMS)
	span.SetAttributes(attribute.Float64("mhc2c.max_delta", maxDelta))
	rlog.Info("round_completed", "max_delta", maxDelta, "duration_ms", durationMS)

	return maxDelta, nil
}

// evaluateChain runs the critique and refinement stages for one chain.
// The returned error is non-nil only on context cancellation; oracle and
// scoring failures degrade to a failed (auto-rejected) proposal so a
// transient outage costs one round for one chain, never the run.
func (e *Engine) evaluateChain(ctx context.Context, log Logger, c *chain.AgentChain, snapshot []string) (roundProposal, error) {
	critiques := e.gatherCritiques(ctx, log, c, snapshot)
	if err := ctx.Err(); err != nil {
		return roundProposal{}, err
	}

	texts := make([]string, len(critiques))
	for i, cr := range critiques {
		texts[i] = cr.Text
	}

	text, err := e.oracle.Generate(ctx, prompts.Refinement(c.Candidate, texts), oracle.Options{RoleHint: c.Role})
	if err != nil {
		if ctx.Err() != nil {
			return roundProposal{}, ctx.Err()
		}
		log.Warn("refinement_failed", "chain", c.Index, "error", err.Error())
		return roundProposal{failed: true, reason: fmt.Sprintf("refinement: %v", err)}, nil
	}

	score, err := scoring.SafeScore(e.scorer, text)
	if err != nil {
		log.Warn("proposal_scoring_failed", "chain", c.Index, "error", err.Error())
		return roundProposal{failed: true, reason: fmt.Sprintf("scoring: %v", err)}, nil
	}

	return roundProposal{proposal: chain.Proposal{ChainIndex: c.Index, Text: text, Score: score}}, nil
}

// gatherCritiques collects the self-critique and one peer-critique per
// other chain, all against the frozen round snapshot. A failed or empty
// critique degrades to no influence on the refinement.
func (e *Engine) gatherCritiques(ctx context.Context, log Logger, c *chain.AgentChain, snapshot []string) []chain.Critique {
	out := make([]chain.Critique, 0, len(snapshot))

	text, err := e.oracle.Generate(ctx, prompts.SelfCritique(c.Candidate), oracle.Options{RoleHint: c.Role})
	if err != nil {
		log.Warn("self_critique_degraded", "chain", c.Index, "error", err.Error())
	} else {
		out = append(out, chain.Critique{SourceChain: c.Index, TargetChain: c.Index, Text: text})
	}

	for j, peer := range snapshot {
		if j == c.Index {
			continue
		}
		text, err := e.oracle.Generate(ctx, prompts.PeerCritique(c.Candidate, peer), oracle.Options{RoleHint: e.cfg.RoleFor(j)})
		if err != nil {
			log.Warn("peer_critique_degraded", "chain", c.Index, "peer", j, "error", err.Error())
			continue
		}
		out = append(out, chain.Critique{SourceChain: j, TargetChain: c.Index, Text: text})
	}

	return out
}
