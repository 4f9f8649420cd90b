package fraud

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBlocklistBlockUnblockContains(t *testing.T) {
	b := NewBlocklist()
	require.False(t, b.Contains("addr-1"))

	b.Block("addr-1")
	require.True(t, b.Contains("addr-1"))

	b.Unblock("addr-1")
	require.False(t, b.Contains("addr-1"))
}

func TestAnalyzeShortCircuitsOnBlocklistedAddress(t *testing.T) {
	bl := NewBlocklist()
	bl.Block("bad-actor")
	a := NewAnalyzer(DefaultConfig(), bl, nil)

	analysis := a.Analyze(Transaction{ID: "t1", UserID: "u1", From: "bad-actor", Amount: 10})

	require.Equal(t, LevelCritical, analysis.RiskLevel)
	require.Equal(t, RecommendBlock, analysis.Recommendation)
}
