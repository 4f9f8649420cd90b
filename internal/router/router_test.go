package router

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rawblock/payment-fabric/pkg/errs"
)

type fakeGasFeed struct {
	standardGwei float64
	nativeUSD    map[string]float64
}

func (f fakeGasFeed) Gas(chain string) (GasQuote, error) {
	return GasQuote{StandardGwei: f.standardGwei, FastGwei: f.standardGwei * 2, InstantGwei: f.standardGwei * 4}, nil
}

func (f fakeGasFeed) NativePriceUSD(chain string) (float64, error) {
	if v, ok := f.nativeUSD[chain]; ok {
		return v, nil
	}
	return 1, nil
}

func wormholeBridge() Bridge {
	return Bridge{
		Name:            "wormhole",
		SupportedChains: map[string]bool{"solana": true, "ethereum": true},
		BaseFeeUSD:      5,
		FeePercent:      0.1,
		AvgSeconds:      180,
		MinAmount:       1,
		MaxAmount:       1_000_000,
		Reliability:     0.99,
		GasMultiplier:   1,
	}
}

func TestRouteSingleHopCostOptimal(t *testing.T) {
	graph := NewGraph([]string{"solana", "ethereum"}, []Bridge{wormholeBridge()})
	feed := fakeGasFeed{standardGwei: 20, nativeUSD: map[string]float64{"solana": 100, "ethereum": 2000}}
	r := NewRouter(DefaultConfig(), graph, feed)

	result, err := r.Route("solana", "ethereum", 1000, ObjectiveCost)
	require.NoError(t, err)
	require.Len(t, result.Path, 1)
	require.Equal(t, 1, result.HopCount)
	require.Equal(t, 180, result.TotalSeconds)
	require.InDelta(t, 0.99, result.SuccessProb, 1e-9)
	require.Equal(t, "wormhole", result.Path[0].Bridge)
}

func TestRouteSameChainIsZeroHop(t *testing.T) {
	graph := NewGraph([]string{"solana"}, []Bridge{wormholeBridge()})
	feed := fakeGasFeed{standardGwei: 20, nativeUSD: map[string]float64{}}
	r := NewRouter(DefaultConfig(), graph, feed)

	result, err := r.Route("solana", "solana", 1000, ObjectiveCost)
	require.NoError(t, err)
	require.Empty(t, result.Path)
	require.Equal(t, 0.0, result.TotalCostUSD)
	require.Equal(t, 1.0, result.SuccessProb)
}

func TestRouteNoRouteWithinHopBudget(t *testing.T) {
	graph := NewGraph([]string{"solana", "ethereum", "polygon"}, []Bridge{wormholeBridge()})
	feed := fakeGasFeed{standardGwei: 20, nativeUSD: map[string]float64{}}
	r := NewRouter(DefaultConfig(), graph, feed)

	_, err := r.Route("solana", "polygon", 1000, ObjectiveCost)
	require.Error(t, err)
	require.True(t, errs.Is(err, errs.UnsupportedRoute))
}

func TestRouteAmountOutOfRange(t *testing.T) {
	b := wormholeBridge()
	b.MinAmount = 10000
	graph := NewGraph([]string{"solana", "ethereum"}, []Bridge{b})
	feed := fakeGasFeed{standardGwei: 20, nativeUSD: map[string]float64{}}
	r := NewRouter(DefaultConfig(), graph, feed)

	_, err := r.Route("solana", "ethereum", 100, ObjectiveCost)
	require.Error(t, err)
	require.True(t, errs.Is(err, errs.AmountOutOfRange))
}

func TestRouteSpeedObjectivePicksFasterPath(t *testing.T) {
	fast := wormholeBridge()
	fast.Name = "fast-bridge"
	fast.AvgSeconds = 30
	fast.BaseFeeUSD = 50

	slow := wormholeBridge()
	slow.Name = "slow-cheap-bridge"
	slow.AvgSeconds = 600
	slow.BaseFeeUSD = 1

	graph := NewGraph([]string{"solana", "ethereum"}, []Bridge{fast, slow})
	feed := fakeGasFeed{standardGwei: 1, nativeUSD: map[string]float64{"solana": 1, "ethereum": 1}}
	r := NewRouter(DefaultConfig(), graph, feed)

	result, err := r.Route("solana", "ethereum", 1000, ObjectiveSpeed)
	require.NoError(t, err)
	require.Equal(t, "fast-bridge", result.Path[0].Bridge)
}

func TestFinalAmountEqualsAmountMinusTotalCost(t *testing.T) {
	graph := NewGraph([]string{"solana", "ethereum"}, []Bridge{wormholeBridge()})
	feed := fakeGasFeed{standardGwei: 20, nativeUSD: map[string]float64{"solana": 100, "ethereum": 2000}}
	r := NewRouter(DefaultConfig(), graph, feed)

	result, err := r.Route("solana", "ethereum", 1000, ObjectiveCost)
	require.NoError(t, err)
	require.InDelta(t, 1000-result.TotalCostUSD, result.FinalAmount.Float64(), 1e-6)
}
