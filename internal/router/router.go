package router

import (
	"fmt"
	"math"

	"github.com/rawblock/payment-fabric/pkg/errs"

	"github.com/rawblock/payment-fabric/internal/money"
)

// Config tunes the router's search bounds.
type Config struct {
	MaxHops int
}

func DefaultConfig() Config { return Config{MaxHops: 4} }

// Router is the cross-chain path search engine's public contract.
type Router struct {
	cfg   Config
	graph *Graph
	gas   GasPriceFeed
}

func NewRouter(cfg Config, graph *Graph, gas GasPriceFeed) *Router {
	if cfg.MaxHops <= 0 {
		cfg.MaxHops = 4
	}
	return &Router{cfg: cfg, graph: graph, gas: gas}
}

// searchFrame is one node on the explicit DFS stack, per spec.md §9's
// "iterative DFS with an explicit stack" traversal note.
type searchFrame struct {
	chain        string
	amount       money.Amount
	path         []RouteHop
	visited      map[string]bool
	totalCostUSD float64
	totalSeconds int
}

// Route searches the bridge graph from `from` to `to` for the best route
// under `objective`, per spec.md §4.4.
func (r *Router) Route(from, to string, amount float64, objective Objective) (RouteResult, error) {
	if from == to {
		return RouteResult{
			Path:           nil,
			TotalCostUSD:   0,
			TotalSeconds:   0,
			HopCount:       0,
			SuccessProb:    1.0,
			Recommendation: "no bridge needed: source and destination chain are the same",
			FinalAmount:    money.New(amount),
		}, nil
	}

	startAmount := money.New(amount)
	amountAdmitted := false

	var candidates []RouteResult

	// bestCostSoFar bounds the cost-objective search: once a full path has
	// been found, any partial path that has already accumulated at least
	// that much cost can never beat it (cost only grows along a path), so
	// it's dropped without affecting which route selectBest ultimately
	// picks. Only applied when cost is the thing being minimized.
	bestCostSoFar := math.Inf(1)

	visited := map[string]bool{from: true}
	stack := []searchFrame{{chain: from, amount: startAmount, visited: visited}}

	for len(stack) > 0 {
		frame := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if len(frame.path) >= r.cfg.MaxHops {
			continue
		}
		if objective == ObjectiveCost && frame.totalCostUSD >= bestCostSoFar {
			continue
		}

		for _, b := range r.graph.bridgesFrom(frame.chain) {
			if !b.admitsAmount(frame.amount.Float64()) {
				continue
			}
			amountAdmitted = true

			for neighbor := range b.SupportedChains {
				if neighbor == frame.chain || frame.visited[neighbor] {
					continue
				}

				hop, err := r.buildHop(frame.chain, neighbor, b, frame.amount, objective)
				if err != nil {
					continue
				}

				nextAmount := frame.amount.Sub(money.New(hop.EstCostUSD))
				if nextAmount.IsNegative() {
					continue
				}

				nextPath := append(append([]RouteHop{}, frame.path...), hop)
				nextVisited := make(map[string]bool, len(frame.visited)+1)
				for k := range frame.visited {
					nextVisited[k] = true
				}
				nextVisited[neighbor] = true

				nextFrame := searchFrame{
					chain:        neighbor,
					amount:       nextAmount,
					path:         nextPath,
					visited:      nextVisited,
					totalCostUSD: frame.totalCostUSD + hop.EstCostUSD,
					totalSeconds: frame.totalSeconds + hop.EstSeconds,
				}

				if neighbor == to {
					cand := r.finalizeCandidate(nextFrame, startAmount)
					candidates = append(candidates, cand)
					if objective == ObjectiveCost && cand.TotalCostUSD < bestCostSoFar {
						bestCostSoFar = cand.TotalCostUSD
					}
					continue
				}

				stack = append(stack, nextFrame)
			}
		}
	}

	if len(candidates) == 0 {
		if !amountAdmitted {
			return RouteResult{}, errs.New(errs.AmountOutOfRange, fmt.Sprintf("amount %.2f is outside every bridge's admissible range", amount))
		}
		return RouteResult{}, errs.New(errs.UnsupportedRoute, fmt.Sprintf("no route from %s to %s within %d hops", from, to, r.cfg.MaxHops))
	}

	return selectBest(candidates, objective), nil
}

// buildHop computes one hop's cost per spec.md §4.4's formula:
// bridge_fee = base_fee + amount*fee_percent/100
// gas_usd = gas_units * gwei(objective, chain) * 1e-9 * native_price * gas_multiplier
// hop.cost = bridge_fee + gas_out + gas_in
func (r *Router) buildHop(from, to string, b Bridge, amount money.Amount, objective Objective) (RouteHop, error) {
	bridgeFee := b.BaseFeeUSD + amount.Float64()*b.FeePercent/100

	gasOut, err := r.gasEstimateUSD(from, gasUnitsOut, objective, b)
	if err != nil {
		return RouteHop{}, err
	}
	gasIn, err := r.gasEstimateUSD(to, gasUnitsIn, objective, b)
	if err != nil {
		return RouteHop{}, err
	}

	cost := bridgeFee + gasOut + gasIn

	return RouteHop{
		From:       from,
		To:         to,
		Bridge:     b.Name,
		Amount:     amount,
		EstCostUSD: cost,
		EstSeconds: b.AvgSeconds,
		GasEstUSD:  gasOut + gasIn,
	}, nil
}

func (r *Router) gasEstimateUSD(chain string, gasUnits float64, objective Objective, b Bridge) (float64, error) {
	quote, err := r.gas.Gas(chain)
	if err != nil {
		return 0, err
	}
	nativePrice, err := r.gas.NativePriceUSD(chain)
	if err != nil {
		return 0, err
	}
	multiplier := b.GasMultiplier
	if multiplier <= 0 {
		multiplier = 1
	}
	gwei := quote.gwei(gasSpeedFor(objective))
	return gasUnits * gwei * 1e-9 * nativePrice * multiplier, nil
}

// finalizeCandidate computes success probability and final amount for a
// completed path, per spec.md §4.4.
func (r *Router) finalizeCandidate(frame searchFrame, startAmount money.Amount) RouteResult {
	hops := len(frame.path)
	prob := 1.0 - 0.05*float64(hops-1)
	for _, hop := range frame.path {
		for _, b := range r.graph.Bridges {
			if b.Name == hop.Bridge {
				prob *= b.Reliability
				break
			}
		}
	}
	if prob < 0 {
		prob = 0
	}

	return RouteResult{
		Path:         frame.path,
		TotalCostUSD: frame.totalCostUSD,
		TotalSeconds: frame.totalSeconds,
		HopCount:     hops,
		SuccessProb:  prob,
		FinalAmount:  startAmount.Sub(money.New(frame.totalCostUSD)),
	}
}

// selectBest implements spec.md §4.4's three objective functions as a
// single pass over candidates, per spec.md §9's "no Pareto fronts" note.
func selectBest(candidates []RouteResult, objective Objective) RouteResult {
	best := candidates[0]
	bestScore := objectiveScore(best, objective)

	for _, c := range candidates[1:] {
		score := objectiveScore(c, objective)
		if better(score, bestScore, objective) {
			best = c
			bestScore = score
		}
	}
	best.Recommendation = recommendationFor(best, objective)
	return best
}

// objectiveScore returns a value to minimize for cost/speed, or maximize
// for balance, per spec.md §4.4's fixed normalization constants.
func objectiveScore(r RouteResult, objective Objective) float64 {
	switch objective {
	case ObjectiveSpeed:
		return float64(r.TotalSeconds)
	case ObjectiveBalance:
		return 0.4*(1-r.TotalCostUSD/100) + 0.3*(1-float64(r.TotalSeconds)/600) + 0.3*r.SuccessProb
	default:
		return r.TotalCostUSD
	}
}

func better(score, bestScore float64, objective Objective) bool {
	if objective == ObjectiveBalance {
		return score > bestScore
	}
	return score < bestScore
}

func recommendationFor(r RouteResult, objective Objective) string {
	switch objective {
	case ObjectiveSpeed:
		return fmt.Sprintf("fastest route: %d hop(s), %ds", r.HopCount, r.TotalSeconds)
	case ObjectiveBalance:
		return fmt.Sprintf("balanced route: %d hop(s), $%.2f cost, %ds, %.0f%% success", r.HopCount, r.TotalCostUSD, r.TotalSeconds, r.SuccessProb*100)
	default:
		return fmt.Sprintf("cheapest route: %d hop(s), $%.2f", r.HopCount, r.TotalCostUSD)
	}
}
