package fraud

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAlertManagerSkipsSafeAnalyses(t *testing.T) {
	var captured []Alert
	am := NewAlertManager(func(a Alert) { captured = append(captured, a) })

	am.EmitFromAnalysis(Analysis{TxID: "t1", RiskLevel: LevelSafe})

	require.Empty(t, captured)
	require.Empty(t, am.GetRecentAlerts(10))
}

func TestAlertManagerEmitsAndRecordsHistory(t *testing.T) {
	var captured []Alert
	am := NewAlertManager(func(a Alert) { captured = append(captured, a) })

	am.EmitFromAnalysis(Analysis{TxID: "t1", RiskLevel: LevelHigh, Recommendation: RecommendReview})
	am.EmitFromAnalysis(Analysis{TxID: "t2", RiskLevel: LevelCritical, Recommendation: RecommendBlock})

	require.Len(t, captured, 2)
	recent := am.GetRecentAlerts(10)
	require.Len(t, recent, 2)
	require.Equal(t, "t2", recent[0].TxID) // most recent first
}

func TestAlertManagerGetRecentAlertsCapsAtLimit(t *testing.T) {
	am := NewAlertManager(nil)
	for i := 0; i < 5; i++ {
		am.EmitFromAnalysis(Analysis{TxID: "t", RiskLevel: LevelLow})
	}
	require.Len(t, am.GetRecentAlerts(2), 2)
}
