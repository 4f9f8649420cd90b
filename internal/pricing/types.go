// Package pricing implements the factor-weighted dynamic price combiner
// described in spec.md §4.5: it derives an adjusted price from a base price
// and a pluggable set of demand/competitor/time/capacity/custom factors,
// clamps it to a configured floor/ceiling, and optionally splits traffic
// across A/B variants.
//
// Grounded on the teacher's internal/metrics package (clustering.go), whose
// pure-function, doc-comment-documented statistical helpers (e.g.
// AdjustedRandIndex) set the style this package follows for its own
// formula-heavy functions.
package pricing

import "time"

// FactorKind is the category of adjustment a factor contributes.
type FactorKind string

const (
	FactorDemand     FactorKind = "demand"
	FactorCompetitor FactorKind = "competitor"
	FactorTime       FactorKind = "time"
	FactorCapacity   FactorKind = "capacity"
	FactorCustom     FactorKind = "custom"
)

// AdjustmentFactor is one named, weighted contributor to the derived price.
type AdjustmentFactor struct {
	Name    string
	Kind    FactorKind
	Weight  float64
	Enabled bool
	// Custom is invoked only for FactorCustom factors; it must return
	// (impact, score) the same shape as the built-in factor kinds.
	Custom func(base float64, m MarketData) (impact, score float64)
}

// Competitor is one observed competitor price point.
type Competitor struct {
	Name         string
	Price        float64
	MarketShare  float64 // optional; 0 means "unweighted" (falls back to equal share)
}

// MarketData is the read-only snapshot the combiner derives a price from.
type MarketData struct {
	Demand      float64 // [0,1]
	Supply      float64 // [0,1]
	Competitors []Competitor
	Now         time.Time // caller-supplied "now" so time-of-day factors are deterministic in tests
	Location    *time.Location
}

// Variant is one A/B price multiplier bucket.
type Variant struct {
	Name       string
	Multiplier float64
	Allocation float64 // fraction of traffic; variants should sum to 1.0
}

// Config tunes the combiner's bounds and factor set.
type Config struct {
	BasePrice     float64
	Floor         float64
	Ceiling       float64
	Factors       []AdjustmentFactor
	Variants      []Variant // optional; empty disables A/B splitting
	Elasticity    float64   // η in spec.md §4.5; default -1.5
	LearningRate  float64   // reserved; read by nothing (spec.md §9 open question 2)
	MaxHistory    int       // default 1000
}

func DefaultConfig(basePrice, floor, ceiling float64) Config {
	return Config{
		BasePrice:  basePrice,
		Floor:      floor,
		Ceiling:    ceiling,
		Elasticity: -1.5,
		MaxHistory: 1000,
	}
}

// factorResult records one factor's impact and score, for the
// variance-based confidence penalty.
type factorResult struct {
	impact float64
	score  float64
}

// ExpectedImpact is the elasticity-projected effect of moving from base to
// new price, all fields expressed as percentages.
type ExpectedImpact struct {
	DemandChangePct  float64
	RevenueChangePct float64
	MarginChangePct  float64
}

// Recommendation is the combiner's output for one optimal() call.
type Recommendation struct {
	BasePrice      float64
	Price          float64
	Variant        *Variant
	Factors        []FactorContribution
	Expected       ExpectedImpact
	Confidence     float64
}

// FactorContribution records one factor's computed impact/score for
// explainability in the returned recommendation.
type FactorContribution struct {
	Name   string
	Kind   FactorKind
	Impact float64
	Score  float64
}

// PricePoint is one historical (price, volume, revenue) observation.
type PricePoint struct {
	Price     float64
	Volume    float64
	Revenue   float64
	Timestamp time.Time
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clamp01(v float64) float64 { return clamp(v, 0, 1) }
