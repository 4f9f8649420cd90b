package pricing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestOptimalClampsToFloorCeiling(t *testing.T) {
	cfg := DefaultConfig(100, 80, 120)
	cfg.Factors = []AdjustmentFactor{
		{Name: "demand", Kind: FactorDemand, Weight: 10, Enabled: true},
	}
	c := NewCombiner(cfg)

	rec := c.Optimal(MarketData{Demand: 1.0, Now: time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)})
	require.LessOrEqual(t, rec.Price, cfg.Ceiling)
	require.GreaterOrEqual(t, rec.Price, cfg.Floor)
}

func TestOptimalDemandFactorPushesPriceUp(t *testing.T) {
	cfg := DefaultConfig(100, 50, 200)
	cfg.Factors = []AdjustmentFactor{
		{Name: "demand", Kind: FactorDemand, Weight: 1, Enabled: true},
	}
	c := NewCombiner(cfg)

	high := c.Optimal(MarketData{Demand: 0.9})
	low := c.Optimal(MarketData{Demand: 0.1})
	require.Greater(t, high.Price, low.Price)
}

func TestOptimalCompetitorFactorPullsTowardMarket(t *testing.T) {
	cfg := DefaultConfig(100, 0, 200)
	cfg.Factors = []AdjustmentFactor{
		{Name: "competitor", Kind: FactorCompetitor, Weight: 1, Enabled: true},
	}
	c := NewCombiner(cfg)

	rec := c.Optimal(MarketData{Competitors: []Competitor{
		{Name: "a", Price: 50, MarketShare: 1},
		{Name: "b", Price: 50, MarketShare: 1},
	}})
	require.Less(t, rec.Price, 100.0)
}

func TestOptimalDisabledFactorIsIgnored(t *testing.T) {
	cfg := DefaultConfig(100, 0, 200)
	cfg.Factors = []AdjustmentFactor{
		{Name: "demand", Kind: FactorDemand, Weight: 5, Enabled: false},
	}
	c := NewCombiner(cfg)

	rec := c.Optimal(MarketData{Demand: 1.0})
	require.Equal(t, 100.0, rec.Price)
	require.Empty(t, rec.Factors)
}

func TestUpdateAppendsHistoryAndCapsAtMaxHistory(t *testing.T) {
	cfg := DefaultConfig(100, 0, 200)
	cfg.MaxHistory = 3
	c := NewCombiner(cfg)

	for i := 0; i < 5; i++ {
		c.Update(float64(100+i), 10, 1000, time.Now())
	}
	require.Len(t, c.History(), 3)
	require.Equal(t, 104.0, c.CurrentPrice())
}

func TestConfidenceClampedToUnitInterval(t *testing.T) {
	cfg := DefaultConfig(100, 0, 200)
	c := NewCombiner(cfg)
	rec := c.Optimal(MarketData{Competitors: []Competitor{{Price: 1}, {Price: 2}, {Price: 3}}})
	require.GreaterOrEqual(t, rec.Confidence, 0.0)
	require.LessOrEqual(t, rec.Confidence, 1.0)
}

func TestTimeOfDayScorePeakOffPeak(t *testing.T) {
	require.Equal(t, 0.5, timeOfDayScore(9, true))
	require.Equal(t, -0.3, timeOfDayScore(12, false))
	require.Equal(t, -0.5, timeOfDayScore(3, true))
	require.Equal(t, 0.0, timeOfDayScore(12, true))
}

func TestVariantSelectionRespectsAllocation(t *testing.T) {
	cfg := DefaultConfig(100, 0, 200)
	cfg.Variants = []Variant{
		{Name: "control", Multiplier: 1.0, Allocation: 1.0},
	}
	c := NewCombiner(cfg)
	rec := c.Optimal(MarketData{})
	require.NotNil(t, rec.Variant)
	require.Equal(t, "control", rec.Variant.Name)
}
