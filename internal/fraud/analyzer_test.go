package fraud

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalyze_NormalTransactionIsSafe(t *testing.T) {
	a := NewAnalyzer(DefaultConfig(), nil, nil)

	analysis := a.Analyze(Transaction{
		ID:        "t1",
		UserID:    "u1",
		Amount:    125.50,
		Timestamp: time.Now(),
		Chain:     "ethereum",
		Geo:       &Geo{Country: "USA"},
	})

	assert.Equal(t, LevelSafe, analysis.RiskLevel)
	assert.Empty(t, analysis.Signals)
	assert.Equal(t, RecommendApprove, analysis.Recommendation)
	assert.Equal(t, 1.0, analysis.Confidence)
}

func TestAnalyze_VelocityBreach(t *testing.T) {
	cfg := DefaultConfig()
	cfg.VelocityThreshold1h = 10
	a := NewAnalyzer(cfg, nil, nil)

	base := time.Now()
	var last Analysis
	for i := 0; i < 12; i++ {
		last = a.Analyze(Transaction{
			ID:        "velocity-tx",
			UserID:    "u2",
			Amount:    10,
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Chain:     "ethereum",
		})
	}

	var velocitySignals []Signal
	for _, s := range last.Signals {
		if s.Kind == SignalVelocity {
			velocitySignals = append(velocitySignals, s)
		}
	}
	require.NotEmpty(t, velocitySignals)

	foundBurst := false
	for _, s := range velocitySignals {
		if s.Severity == SeverityHigh && s.Confidence == 0.9 {
			foundBurst = true
		}
	}
	assert.True(t, foundBurst, "expected a high-severity 5-minute burst signal")
}

func TestAnalyze_ImpossibleTravel(t *testing.T) {
	a := NewAnalyzer(DefaultConfig(), nil, nil)

	tMinus1h := time.Now()
	a.Analyze(Transaction{
		ID:        "t-ny",
		UserID:    "u3",
		Amount:    100,
		Timestamp: tMinus1h,
		Chain:     "ethereum",
		Geo:       &Geo{Country: "USA", City: "New York", Lat: 40.7128, Lon: -74.0060},
	})

	analysis := a.Analyze(Transaction{
		ID:        "t-tokyo",
		UserID:    "u3",
		Amount:    100,
		Timestamp: tMinus1h.Add(time.Hour),
		Chain:     "ethereum",
		Geo:       &Geo{Country: "Japan", City: "Tokyo", Lat: 35.6762, Lon: 139.6503},
	})

	var found *Signal
	for i := range analysis.Signals {
		if analysis.Signals[i].Kind == SignalGeoAnomaly && analysis.Signals[i].Severity == SeverityCritical {
			found = &analysis.Signals[i]
		}
	}
	require.NotNil(t, found, "expected a critical geo-anomaly signal")
	assert.Equal(t, 0.95, found.Confidence)
	assert.Equal(t, RecommendBlock, analysis.Recommendation)
}

func TestAnalyze_BlocklistShortCircuit(t *testing.T) {
	a := NewAnalyzer(DefaultConfig(), nil, nil)
	a.Blocklist().Block("0xBAD")

	analysis := a.Analyze(Transaction{
		ID:        "t-blocked",
		UserID:    "u4",
		Amount:    10,
		Timestamp: time.Now(),
		From:      "0xBAD",
		To:        "0xGOOD",
		Chain:     "ethereum",
	})

	assert.Equal(t, RecommendBlock, analysis.Recommendation)
	assert.Equal(t, 1.0, analysis.RiskScore)

	a.Blocklist().Unblock("0xBAD")
	second := a.Analyze(Transaction{
		ID:        "t-unblocked",
		UserID:    "u4",
		Amount:    10,
		Timestamp: time.Now(),
		From:      "0xBAD",
		To:        "0xGOOD",
		Chain:     "ethereum",
	})
	assert.NotEqual(t, RecommendBlock, second.Recommendation)
}

func TestAnalyze_AmountAnomalyNeedsThreePriorTransactions(t *testing.T) {
	a := NewAnalyzer(DefaultConfig(), nil, nil)
	base := time.Now()

	priorAmounts := []float64{100, 105, 95}
	for i, amt := range priorAmounts {
		a.Analyze(Transaction{
			ID:        "prior",
			UserID:    "u5",
			Amount:    amt,
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Chain:     "ethereum",
		})
	}

	analysis := a.Analyze(Transaction{
		ID:        "anomalous",
		UserID:    "u5",
		Amount:    99999,
		Timestamp: base.Add(4 * time.Minute),
		Chain:     "ethereum",
	})

	found := false
	for _, s := range analysis.Signals {
		if s.Kind == SignalAmountAnomaly {
			found = true
		}
	}
	assert.True(t, found, "expected an amount-anomaly signal with 3 prior transactions observed")
}

func TestAnalyze_SameTransactionTwiceYieldsDistinctAnalysesAndGrowingHistory(t *testing.T) {
	a := NewAnalyzer(DefaultConfig(), nil, nil)
	tx := Transaction{ID: "dup", UserID: "u6", Amount: 42, Timestamp: time.Now(), Chain: "ethereum"}

	a.Analyze(tx)
	p1 := a.Profiles().Get("u6")
	require.NotNil(t, p1)
	assert.Equal(t, int64(1), p1.TotalTx)

	a.Analyze(tx)
	p2 := a.Profiles().Get("u6")
	assert.Equal(t, int64(2), p2.TotalTx)
	assert.Len(t, p2.History, 2)
}
