package swarm

import (
	"sync"

	"golang.org/x/sync/errgroup"
)

// RequestConsensus implements spec.md §4.6's weighted quorum vote:
// selects voters (matching RoleFilter, or all agents), collects a vote
// from each non-offline/non-failed voter (offline agents abstain, which
// only lowers participation without biasing the ratio, per spec.md §9),
// and tallies weighted approval against the configured threshold.
//
// Vote collection runs with bounded parallelism via golang.org/x/sync's
// errgroup, per SPEC_FULL.md §3's "bounded-parallelism fan-out" wiring.
// Agents are snapshotted once under the coordinator's lock so a
// concurrent AddAgent/HandleFailure mid-request can't double-count votes,
// per spec.md §5's ordering guarantee.
func (c *Coordinator) RequestConsensus(req ConsensusRequest) ConsensusResult {
	c.mu.Lock()
	var snapshot []Agent
	for _, a := range c.agents {
		if len(req.RoleFilter) > 0 && !roleIn(req.RoleFilter, a.Role) {
			continue
		}
		snapshot = append(snapshot, *a)
	}
	c.mu.Unlock()

	var voteMu sync.Mutex
	var votes []Vote

	var g errgroup.Group
	g.SetLimit(8)
	for _, a := range snapshot {
		a := a
		if a.Status == AgentOffline || a.Status == AgentFailed {
			continue // abstains: lowers participation, never biases the ratio
		}
		g.Go(func() error {
			decision, confidence, reasoning := c.handler.Vote(a.ID, a.Role, req.Topic, req.Payload)
			v := Vote{
				AgentID:    a.ID,
				Decision:   decision,
				Confidence: clamp01(confidence),
				Reasoning:  reasoning,
				Timestamp:  c.clk.Now(),
			}
			voteMu.Lock()
			votes = append(votes, v)
			voteMu.Unlock()
			return nil
		})
	}
	_ = g.Wait() // Vote never returns an error in this design; present for interface symmetry.

	weightByAgent := make(map[string]float64, len(snapshot))
	for _, a := range snapshot {
		weightByAgent[a.ID] = a.Weight
	}

	var weightYes, weightNo float64
	for _, v := range votes {
		w := weightByAgent[v.AgentID] * v.Confidence
		if v.Decision {
			weightYes += w
		} else {
			weightNo += w
		}
	}

	result := ConsensusResult{
		Topic:     req.Topic,
		Votes:     votes,
		WeightYes: weightYes,
		WeightNo:  weightNo,
	}

	// spec.md §9: the denominator is vote-weighted (W_yes + W_no), not total
	// configured weight.
	denom := weightYes + weightNo
	if denom > 0 {
		result.ApprovalRatio = weightYes / denom
		result.ConsensusReached = result.ApprovalRatio >= c.cfg.ConsensusThreshold || (1-result.ApprovalRatio) >= c.cfg.ConsensusThreshold
		result.Decision = result.ApprovalRatio >= c.cfg.ConsensusThreshold
	}
	// Empty swarm / zero votes: decision=false, consensus_reached=false,
	// per spec.md §8's boundary behavior (the zero-value defaults above
	// already satisfy this).

	if len(votes) > 0 {
		var sum float64
		for _, v := range votes {
			sum += v.Confidence
		}
		result.Confidence = sum / float64(len(votes))
	}
	if len(snapshot) > 0 {
		result.ParticipationRate = float64(len(votes)) / float64(len(snapshot))
	}

	c.log.Info().Str("topic", req.Topic).Int("votes", len(votes)).Float64("approval_ratio", result.ApprovalRatio).Bool("decision", result.Decision).Msg("consensus request")

	return result
}
