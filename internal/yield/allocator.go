package yield

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/rawblock/payment-fabric/internal/clock"
)

// Config tunes the allocator's thresholds.
type Config struct {
	EmergencyReserve   float64
	MinBalanceThreshold float64
	RebalanceHysteresis float64 // fraction, default 0.05
	Profile             RiskProfile
}

func DefaultConfig() Config {
	return Config{
		EmergencyReserve:    0,
		MinBalanceThreshold: 0,
		RebalanceHysteresis: 0.05,
		Profile:             ProfileBalanced,
	}
}

// Allocator is the yield engine's public contract.
type Allocator struct {
	cfg     Config
	feed    ProtocolFeed
	adapter ProtocolAdapter
	clk     clock.Clock

	mu         sync.Mutex
	positions  map[string]*Position
	lastReport Report

	cronEntry cron.EntryID
	cronRun   *cron.Cron
	stopTick  chan struct{}
}

func NewAllocator(cfg Config, feed ProtocolFeed, adapter ProtocolAdapter, clk clock.Clock) *Allocator {
	if clk == nil {
		clk = clock.New()
	}
	return &Allocator{
		cfg:       cfg,
		feed:      feed,
		adapter:   adapter,
		clk:       clk,
		positions: make(map[string]*Position),
	}
}

// SnapshotProtocols pulls the current protocol set from the injected feed.
func (a *Allocator) SnapshotProtocols() ([]Protocol, error) {
	return a.feed.SnapshotProtocols()
}

// Positions returns a shallow copy of the current position map.
func (a *Allocator) Positions() map[string]Position {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[string]Position, len(a.positions))
	for k, v := range a.positions {
		out[k] = *v
	}
	return out
}

// Optimize computes the target allocation for `balance` and, if it differs
// enough from current positions, executes the rebalance. Below the minimum
// balance threshold, it returns the prior report unchanged, per spec.md §4.3.
func (a *Allocator) Optimize(ctx context.Context, balance float64) (Report, error) {
	a.mu.Lock()
	if balance < a.cfg.MinBalanceThreshold {
		report := a.lastReport
		a.mu.Unlock()
		return report, nil
	}
	a.mu.Unlock()

	protocols, err := a.SnapshotProtocols()
	if err != nil {
		return Report{}, err
	}

	allocations := a.targetAllocation(protocols, balance)

	a.mu.Lock()
	needsRebalance := a.needsRebalance(allocations)
	a.mu.Unlock()

	report := a.buildReport(allocations, needsRebalance)

	if needsRebalance {
		if err := a.rebalance(ctx, allocations); err != nil {
			return report, err
		}
		report = a.buildReport(allocations, needsRebalance)
	}

	a.mu.Lock()
	a.lastReport = report
	a.mu.Unlock()

	return report, nil
}

// targetAllocation distributes `available` proportionally to the weight of
// admitted protocols, dropping any protocol whose pro-rata share falls
// below its minimum deposit and redistributing the remainder across
// survivors in a second pass (dropped protocols never resurrect), per
// spec.md §4.3. Score orders the allocations for reporting only.
func (a *Allocator) targetAllocation(protocols []Protocol, balance float64) []Allocation {
	available := balance - a.cfg.EmergencyReserve
	if available < 0 {
		available = 0
	}

	admitted := make([]Protocol, 0, len(protocols))
	for _, p := range protocols {
		if a.cfg.Profile.admits(p.RiskTier) {
			admitted = append(admitted, p)
		}
	}

	survivors := admitted
	for {
		totalWeight := 0.0
		for _, p := range survivors {
			totalWeight += p.Weight
		}
		if totalWeight <= 0 {
			survivors = nil
			break
		}

		dropped := false
		next := make([]Protocol, 0, len(survivors))
		for _, p := range survivors {
			share := available * (p.Weight / totalWeight)
			if share < p.MinDeposit {
				dropped = true
				continue
			}
			next = append(next, p)
		}
		survivors = next
		if !dropped || len(survivors) == 0 {
			break
		}
	}

	totalWeight := 0.0
	for _, p := range survivors {
		totalWeight += p.Weight
	}

	allocations := make([]Allocation, 0, len(survivors))
	for _, p := range survivors {
		var target float64
		if totalWeight > 0 {
			target = available * (p.Weight / totalWeight)
		}
		score := p.APY * riskMultiplier(p.RiskTier) * p.Weight
		allocations = append(allocations, Allocation{ProtocolName: p.Name, Target: target, Score: score})
	}

	sort.Slice(allocations, func(i, j int) bool { return allocations[i].Score > allocations[j].Score })
	return allocations
}

// needsRebalance applies spec.md §4.3's 5% hysteresis gate per protocol,
// plus the "no current positions, any new target > 0" special case.
func (a *Allocator) needsRebalance(allocations []Allocation) bool {
	hysteresis := a.cfg.RebalanceHysteresis
	if hysteresis <= 0 {
		hysteresis = 0.05
	}

	if len(a.positions) == 0 {
		for _, alloc := range allocations {
			if alloc.Target > 0 {
				return true
			}
		}
		return false
	}

	for _, alloc := range allocations {
		current := 0.0
		if pos, ok := a.positions[alloc.ProtocolName]; ok {
			current = pos.Amount
		}
		denom := alloc.Target
		if denom < 1 {
			denom = 1
		}
		diff := alloc.Target - current
		if diff < 0 {
			diff = -diff
		}
		if diff/denom > hysteresis {
			return true
		}
	}
	return false
}

// rebalance withdraws surpluses before depositing shortfalls (spec.md §5's
// ordering guarantee), mutating position state transitions as it goes.
func (a *Allocator) rebalance(ctx context.Context, allocations []Allocation) error {
	targets := make(map[string]float64, len(allocations))
	for _, alloc := range allocations {
		targets[alloc.ProtocolName] = alloc.Target
	}

	a.mu.Lock()
	type delta struct {
		name   string
		amount float64
	}
	var withdraws, deposits []delta
	seen := make(map[string]bool)

	for name, pos := range a.positions {
		target := targets[name]
		seen[name] = true
		if pos.Amount > target {
			withdraws = append(withdraws, delta{name, pos.Amount - target})
		} else if pos.Amount < target {
			deposits = append(deposits, delta{name, target - pos.Amount})
		}
	}
	for _, alloc := range allocations {
		if !seen[alloc.ProtocolName] && alloc.Target > 0 {
			deposits = append(deposits, delta{alloc.ProtocolName, alloc.Target})
		}
	}
	a.mu.Unlock()

	for _, w := range withdraws {
		if err := a.adapter.Withdraw(w.name, w.amount); err != nil {
			return err
		}
		a.mu.Lock()
		if pos, ok := a.positions[w.name]; ok {
			pos.Amount -= w.amount
			pos.Value = pos.Amount
			pos.LastUpdated = a.clk.Now()
		}
		a.mu.Unlock()
	}

	for _, d := range deposits {
		if err := a.adapter.Deposit(d.name, d.amount); err != nil {
			return err
		}
		apy, _ := a.adapter.CurrentAPY(d.name)
		a.mu.Lock()
		pos, ok := a.positions[d.name]
		if !ok {
			pos = &Position{ProtocolName: d.name, APYAtDeposit: apy}
			a.positions[d.name] = pos
		}
		pos.Amount += d.amount
		pos.Value = pos.Amount
		pos.LastUpdated = a.clk.Now()
		a.mu.Unlock()
	}

	_ = ctx
	return nil
}

func (a *Allocator) buildReport(allocations []Allocation, rebalanceRequired bool) Report {
	a.mu.Lock()
	defer a.mu.Unlock()

	totalValue := 0.0
	weightedSum := 0.0
	for _, pos := range a.positions {
		totalValue += pos.Value
		weightedSum += pos.APYAtDeposit * pos.Value
	}

	weightedAPY := 0.0
	if totalValue > 0 {
		weightedAPY = weightedSum / totalValue
	}

	return Report{
		Allocations:       allocations,
		TotalValue:        totalValue,
		WeightedAPY:       weightedAPY,
		BaselineAPY:       baselineAPY,
		RebalanceRequired: rebalanceRequired,
	}
}

// Start runs Optimize every `period` against a balance supplied by
// balanceFn, using the allocator's injected clock. Grounded on the
// teacher's mempool.Poller.Run ticker-with-context-cancellation loop.
func (a *Allocator) Start(ctx context.Context, period time.Duration, balanceFn func() float64) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-a.clk.After(period):
				if _, err := a.Optimize(ctx, balanceFn()); err != nil {
					log.Printf("[YieldAllocator] optimize failed: %v", err)
				}
			}
		}
	}()
}

// StartCron schedules Optimize on a cron expression instead of a fixed
// period, for deployments that want allocation runs pinned to wall-clock
// windows (e.g. "at the top of every hour").
func (a *Allocator) StartCron(spec string, balanceFn func() float64) error {
	c := cron.New()
	id, err := c.AddFunc(spec, func() {
		if _, err := a.Optimize(context.Background(), balanceFn()); err != nil {
			log.Printf("[YieldAllocator] cron optimize failed: %v", err)
		}
	})
	if err != nil {
		return err
	}
	a.cronEntry = id
	a.cronRun = c
	c.Start()
	return nil
}

// Stop halts a cron-scheduled optimize loop started via StartCron.
func (a *Allocator) Stop() {
	if a.cronRun != nil {
		a.cronRun.Stop()
	}
}
