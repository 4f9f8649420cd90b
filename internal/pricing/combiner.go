package pricing

import (
	"math/rand"
	"sync"
	"time"
)

// Combiner is the pricing engine's public contract: Optimal derives a price
// recommendation from a market snapshot; Update records an observed outcome.
type Combiner struct {
	cfg Config

	mu          sync.Mutex
	currentPrice float64
	history      []PricePoint
	rng          *rand.Rand
}

func NewCombiner(cfg Config) *Combiner {
	if cfg.Elasticity == 0 {
		cfg.Elasticity = -1.5
	}
	if cfg.MaxHistory <= 0 {
		cfg.MaxHistory = 1000
	}
	return &Combiner{
		cfg:          cfg,
		currentPrice: cfg.BasePrice,
		rng:          rand.New(rand.NewSource(1)),
	}
}

// CurrentPrice returns the last price set by Update, or the base price if
// Update has never been called.
func (c *Combiner) CurrentPrice() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentPrice
}

// Optimal derives a price recommendation from market, per spec.md §4.5:
// start at base_price, sum each enabled factor's impact, clamp to
// [floor, ceiling], then apply the selected A/B variant multiplier.
func (c *Combiner) Optimal(market MarketData) Recommendation {
	base := c.cfg.BasePrice
	c.mu.Lock()
	hist := len(c.history)
	c.mu.Unlock()

	price := base
	contributions := make([]FactorContribution, 0, len(c.cfg.Factors))
	var results []factorResult

	for _, f := range c.cfg.Factors {
		if !f.Enabled {
			continue
		}
		impact, score := computeFactor(f, base, market)
		price += impact
		contributions = append(contributions, FactorContribution{Name: f.Name, Kind: f.Kind, Impact: impact, Score: score})
		results = append(results, factorResult{impact: impact, score: score})
	}

	price = clamp(price, c.cfg.Floor, c.cfg.Ceiling)

	var variant *Variant
	if len(c.cfg.Variants) > 0 {
		v := c.selectVariant()
		variant = &v
		price *= v.Multiplier
		price = clamp(price, c.cfg.Floor, c.cfg.Ceiling)
	}

	expected := c.expectedImpact(base, price)
	confidence := c.confidence(hist, market, results)

	return Recommendation{
		BasePrice:  base,
		Price:      price,
		Variant:    variant,
		Factors:    contributions,
		Expected:   expected,
		Confidence: confidence,
	}
}

// computeFactor implements the per-kind impact/score formulas from
// spec.md §4.5.
func computeFactor(f AdjustmentFactor, p float64, m MarketData) (impact, score float64) {
	switch f.Kind {
	case FactorDemand:
		score = 2 * (m.Demand - 0.5)
		impact = score * f.Weight * p * 0.10

	case FactorCompetitor:
		mean, ok := weightedCompetitorMean(m.Competitors)
		if !ok {
			return 0, 0
		}
		impact = (0.95*mean - p) * f.Weight * 0.5
		if mean != 0 {
			score = (p - mean) / mean
		}

	case FactorTime:
		now := m.Now
		if m.Location != nil {
			now = now.In(m.Location)
		}
		score = timeOfDayScore(now.Hour(), isWeekday(now))
		impact = score * f.Weight * p * 0.10

	case FactorCapacity:
		score = 2 * (0.5 - m.Supply)
		impact = score * f.Weight * p * 0.15

	case FactorCustom:
		if f.Custom != nil {
			impact, score = f.Custom(p, m)
		}
	}
	return impact, score
}

// weightedCompetitorMean computes the market-share-weighted mean competitor
// price, defaulting each unweighted competitor to weight 1.
func weightedCompetitorMean(competitors []Competitor) (float64, bool) {
	if len(competitors) == 0 {
		return 0, false
	}
	var sumWeighted, sumWeight float64
	for _, c := range competitors {
		w := c.MarketShare
		if w <= 0 {
			w = 1
		}
		sumWeighted += c.Price * w
		sumWeight += w
	}
	if sumWeight == 0 {
		return 0, false
	}
	return sumWeighted / sumWeight, true
}

// timeOfDayScore implements spec.md §4.5's peak/off-peak time factor:
// weekday peak hours (9-11, 14-16 local) score +0.5, weekends -0.3, the
// small-hours band (before 6 or after 22) -0.5, else 0.
func timeOfDayScore(hour int, weekday bool) float64 {
	switch {
	case hour < 6 || hour > 22:
		return -0.5
	case !weekday:
		return -0.3
	case (hour >= 9 && hour < 11) || (hour >= 14 && hour < 16):
		return 0.5
	default:
		return 0
	}
}

func isWeekday(t time.Time) bool {
	wd := t.Weekday()
	return wd != time.Sunday && wd != time.Saturday
}

// selectVariant picks a variant by weighted random draw over Allocation,
// per spec.md §4.5's "weighted random pick from a static variant set".
func (c *Combiner) selectVariant() Variant {
	c.mu.Lock()
	r := c.rng.Float64()
	c.mu.Unlock()

	var cumulative float64
	for _, v := range c.cfg.Variants {
		cumulative += v.Allocation
		if r <= cumulative {
			return v
		}
	}
	return c.cfg.Variants[len(c.cfg.Variants)-1]
}

// expectedImpact projects demand/revenue/margin change from an elasticity
// model, per spec.md §4.5.
func (c *Combiner) expectedImpact(base, newPrice float64) ExpectedImpact {
	if base == 0 {
		return ExpectedImpact{}
	}
	deltaFrac := (newPrice - base) / base
	demandChange := c.cfg.Elasticity * deltaFrac
	revenueChange := (1+deltaFrac)*(1+demandChange) - 1
	marginChange := deltaFrac * 0.3

	return ExpectedImpact{
		DemandChangePct:  demandChange * 100,
		RevenueChangePct: revenueChange * 100,
		MarginChangePct:  marginChange * 100,
	}
}

// confidence implements spec.md §4.5's base+bonus-minus-penalty model.
func (c *Combiner) confidence(historyLen int, market MarketData, results []factorResult) float64 {
	conf := 0.7
	if historyLen > 100 {
		conf += 0.1
	}
	if len(market.Competitors) >= 3 {
		conf += 0.1
	}
	if variance(scoresOf(results)) > 0.5 {
		conf -= 0.15
	}
	return clamp01(conf)
}

func scoresOf(results []factorResult) []float64 {
	out := make([]float64, len(results))
	for i, r := range results {
		out[i] = r.score
	}
	return out
}

func variance(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	var mean float64
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))
	var sumSq float64
	for _, x := range xs {
		d := x - mean
		sumSq += d * d
	}
	return sumSq / float64(len(xs))
}

// Update appends a (price, volume, revenue) observation to the capped
// history and sets it as the current price, per spec.md §4.5.
func (c *Combiner) Update(newPrice, volume, revenue float64, at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = append(c.history, PricePoint{Price: newPrice, Volume: volume, Revenue: revenue, Timestamp: at})
	if len(c.history) > c.cfg.MaxHistory {
		c.history = c.history[len(c.history)-c.cfg.MaxHistory:]
	}
	c.currentPrice = newPrice
}

// History returns a copy of the capped price history.
func (c *Combiner) History() []PricePoint {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]PricePoint, len(c.history))
	copy(out, c.history)
	return out
}
