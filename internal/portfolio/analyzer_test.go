package portfolio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/restake-risk-ea/internal/model"
	"github.com/yourorg/restake-risk-ea/internal/validation"
)

func testInputs() Inputs {
	return Inputs{
		Uptime: model.OperatorUptime{UptimePct: 99.7, DVTProtected: false},
		Liquidity: model.LiquidityProfile{Venues: []model.Venue{
			{Chain: "Ethereum", DepthUSD: 40_000_000},
			{Chain: "Arbitrum", DepthUSD: 20_000_000},
		}},
		Distribution: model.DistributionProfile{RestakedPct: 62, BaseStakePct: 38},
		Prices:       model.PriceBook{"ETH": 3000, "eETH": 100, "weETH": 100},
		Yields: model.YieldBook{
			"eETH":  {TotalAPY: 4},
			"weETH": {TotalAPY: 10},
		},
	}
}

func TestAnalyze_EqualSplitScenario(t *testing.T) {
	a := NewAnalyzer()

	got, err := a.Analyze([]model.Holding{
		{Symbol: "eETH", Balance: 10},
		{Symbol: "weETH", Balance: 10},
	}, testInputs())
	require.NoError(t, err)
	require.Len(t, got.Assets, 2)

	assert.InDelta(t, 7.0, got.Metrics.BlendedAPY, 1e-9)
	assert.Equal(t, 50, got.Metrics.DiversificationScore)
	assert.Equal(t, 2000.0, got.Metrics.TotalValueUSD)
	assert.Equal(t, 20.0, got.Metrics.TotalStakedETH)
	assert.Equal(t, 25, got.Metrics.OverallRiskScore)
	assert.Equal(t, 95, got.Metrics.LiquidityHealth)
	assert.Equal(t, 62.0, got.Metrics.TotalRestakedPct)
}

func TestAnalyze_ZeroValue(t *testing.T) {
	a := NewAnalyzer()

	got, err := a.Analyze([]model.Holding{
		{Symbol: "ETH", Balance: 0},
		{Symbol: "weETH", Balance: 0},
	}, testInputs())
	require.NoError(t, err)

	assert.Empty(t, got.Assets)
	assert.Zero(t, got.Metrics.TotalValueUSD)
	assert.Zero(t, got.Metrics.BlendedAPY)
	assert.Zero(t, got.Metrics.OverallRiskScore)
	assert.Zero(t, got.Metrics.LiquidityHealth)
	assert.Zero(t, got.Metrics.DiversificationScore)
}

func TestAnalyze_WeightedMeanBounds(t *testing.T) {
	a := NewAnalyzer()
	got, err := a.Analyze([]model.Holding{
		{Symbol: "ETH", Balance: 1.3},
		{Symbol: "weETH", Balance: 7},
		{Symbol: "LiquidUSD", Balance: 12000},
	}, testInputs())
	require.NoError(t, err)
	require.Len(t, got.Assets, 3)

	minAPY, maxAPY := got.Assets[0].APY, got.Assets[0].APY
	minRisk, maxRisk := got.Assets[0].RiskScore, got.Assets[0].RiskScore
	minLiq, maxLiq := got.Assets[0].LiquidityScore, got.Assets[0].LiquidityScore
	for _, asset := range got.Assets[1:] {
		minAPY, maxAPY = min(minAPY, asset.APY), max(maxAPY, asset.APY)
		minRisk, maxRisk = min(minRisk, asset.RiskScore), max(maxRisk, asset.RiskScore)
		minLiq, maxLiq = min(minLiq, asset.LiquidityScore), max(maxLiq, asset.LiquidityScore)
	}

	m := got.Metrics
	assert.GreaterOrEqual(t, m.BlendedAPY, minAPY)
	assert.LessOrEqual(t, m.BlendedAPY, maxAPY)
	assert.GreaterOrEqual(t, m.OverallRiskScore, minRisk)
	assert.LessOrEqual(t, m.OverallRiskScore, maxRisk)
	assert.GreaterOrEqual(t, m.LiquidityHealth, minLiq)
	assert.LessOrEqual(t, m.LiquidityHealth, maxLiq)
	assert.Equal(t, 7.0, m.TotalStakedETH)
}

func TestAnalyze_SingleAssetFloor(t *testing.T) {
	got, err := NewAnalyzer().Analyze([]model.Holding{{Symbol: "ETH", Balance: 2}}, testInputs())
	require.NoError(t, err)

	assert.Equal(t, 20, got.Metrics.DiversificationScore)
	assert.Equal(t, 6000.0, got.Metrics.TotalValueUSD)
	assert.Zero(t, got.Metrics.BlendedAPY)
}

func TestAnalyze_MergesAndNormalizesSymbols(t *testing.T) {
	got, err := NewAnalyzer().Analyze([]model.Holding{
		{Symbol: "weeth", Balance: 1},
		{Symbol: "ETH", Balance: 1},
		{Symbol: "WEETH", Balance: 2},
	}, testInputs())
	require.NoError(t, err)
	require.Len(t, got.Assets, 2)

	assert.Equal(t, "weETH", got.Assets[0].Symbol)
	assert.Equal(t, 3.0, got.Assets[0].Balance)
	assert.Equal(t, "ETH", got.Assets[1].Symbol)
}

func TestAnalyze_Fallbacks(t *testing.T) {
	got, err := NewAnalyzer().Analyze([]model.Holding{
		{Symbol: "LiquidUSD", Balance: 100},
		{Symbol: "eETH", Balance: 1},
	}, Inputs{Prices: model.PriceBook{"LiquidUSD": 2}})
	require.NoError(t, err)
	require.Len(t, got.Assets, 2)

	usd := got.Assets[0]
	assert.Equal(t, 1.0, usd.UnitPrice)
	assert.Equal(t, 10.0, usd.APY)
	assert.Equal(t, 40, usd.RiskScore)

	eeth := got.Assets[1]
	assert.Equal(t, 3500.0, eeth.UnitPrice)
	assert.Equal(t, 3.2, eeth.APY)
	assert.Equal(t, 70, eeth.LiquidityScore)
}

func TestAnalyze_InvalidInput(t *testing.T) {
	a := NewAnalyzer()

	_, err := a.Analyze([]model.Holding{{Symbol: "DOGE", Balance: 1}}, testInputs())
	assert.ErrorIs(t, err, validation.ErrInvalidHolding)

	_, err = a.Analyze([]model.Holding{{Symbol: "ETH", Balance: -1}}, testInputs())
	assert.ErrorIs(t, err, validation.ErrInvalidHolding)
}

func TestAnalyze_Idempotent(t *testing.T) {
	a := NewAnalyzer()
	holdings := []model.Holding{
		{Symbol: "ETH", Balance: 1.5},
		{Symbol: "eETH", Balance: 3},
		{Symbol: "LiquidUSD", Balance: 2500},
	}
	in := testInputs()

	first, err := a.Analyze(holdings, in)
	require.NoError(t, err)
	second, err := a.Analyze(holdings, in)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestOperatorRisk(t *testing.T) {
	tests := []struct {
		uptime float64
		dvt    bool
		want   int
	}{
		{99.95, false, 15},
		{99.95, true, 11},
		{99.6, false, 25},
		{99.2, true, 28},
		{98.0, false, 60},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, OperatorRisk(model.OperatorUptime{UptimePct: tt.uptime, DVTProtected: tt.dvt}))
	}
}

func TestLiquidityBand(t *testing.T) {
	assert.Equal(t, 100, LiquidityBand(50_000_000))
	assert.Equal(t, 90, LiquidityBand(20_000_000))
	assert.Equal(t, 80, LiquidityBand(12_500_000))
	assert.Equal(t, 70, LiquidityBand(5_500_000))
}
