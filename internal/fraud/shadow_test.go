package fraud

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestShadowAnalyzerReturnsProductionResultUnaffectedByShadow(t *testing.T) {
	prodCfg := DefaultConfig()
	shadowCfg := DefaultConfig()
	shadowCfg.DeviationThreshold = 0.01 // far more sensitive; unused here, since the amount detector needs three prior transactions

	sa := NewShadowAnalyzer(
		NewAnalyzer(prodCfg, nil, nil),
		NewAnalyzer(shadowCfg, nil, nil),
	)

	tx := Transaction{ID: "t1", UserID: "u1", Amount: 125.50, Timestamp: time.Now(), Chain: "ethereum"}
	prod, result := sa.Analyze(tx)

	require.Equal(t, LevelSafe, prod.RiskLevel)
	require.Equal(t, "t1", result.TxID)
	require.Equal(t, prod.RiskScore, result.ProductionScore)
}

func TestShadowAnalyzerDetectsDivergence(t *testing.T) {
	prodCfg := DefaultConfig()
	shadowCfg := DefaultConfig()
	shadowCfg.Thresholds.Critical = 0.0 // shadow always escalates to critical

	sa := NewShadowAnalyzer(
		NewAnalyzer(prodCfg, nil, nil),
		NewAnalyzer(shadowCfg, nil, nil),
	)

	_, result := sa.Analyze(Transaction{ID: "t2", UserID: "u2", Amount: 50, Timestamp: time.Now()})
	require.True(t, result.Diverged)
}
