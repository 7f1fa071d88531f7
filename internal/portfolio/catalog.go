package portfolio

import (
	"math"
	"strings"

	"github.com/yourorg/restake-risk-ea/internal/model"
)

// Supported asset symbols
const (
	SymbolETH       = "ETH"
	SymbolEETH      = "eETH"
	SymbolWEETH     = "weETH"
	SymbolLiquidUSD = "LiquidUSD"
)

// Liquidity score bands by total venue depth.
var liquidityBands = []struct {
	minDepthUSD float64
	score       int
}{
	{50_000_000, 100},
	{20_000_000, 90},
	{10_000_000, 80},
}

const (
	liquidityFloor     = 70
	rebasingDiscount   = 10
	dvtRiskMultiplier  = 0.7
	stablecoinRisk     = 40
	nativeRisk         = 25
	fullLiquidityScore = 100
)

// assetSpec describes how one supported asset is priced and annotated.
type assetSpec struct {
	symbol       string
	defaultPrice float64
	defaultAPY   float64
	fixedPrice   bool
	staked       bool
	risk         func(Inputs) int
	liquidity    func(Inputs) int
}

func fixed(v int) func(Inputs) int {
	return func(Inputs) int { return v }
}

func operatorRiskOf(in Inputs) int {
	return OperatorRisk(in.Uptime)
}

func catalog() map[string]assetSpec {
	specs := []assetSpec{
		{
			symbol:       SymbolETH,
			defaultPrice: 3500,
			risk:         fixed(nativeRisk),
			liquidity:    fixed(fullLiquidityScore),
		},
		{
			symbol:       SymbolEETH,
			defaultPrice: 3500,
			defaultAPY:   3.2,
			staked:       true,
			risk:         operatorRiskOf,
			liquidity: func(in Inputs) int {
				return max(LiquidityBand(in.Liquidity.TotalDepthUSD())-rebasingDiscount, liquidityFloor)
			},
		},
		{
			symbol:       SymbolWEETH,
			defaultPrice: 3600,
			defaultAPY:   3.2,
			staked:       true,
			risk:         operatorRiskOf,
			liquidity: func(in Inputs) int {
				return LiquidityBand(in.Liquidity.TotalDepthUSD())
			},
		},
		{
			symbol:       SymbolLiquidUSD,
			defaultPrice: 1.0,
			defaultAPY:   10.0,
			fixedPrice:   true,
			risk:         fixed(stablecoinRisk),
			liquidity:    fixed(fullLiquidityScore),
		},
	}

	out := make(map[string]assetSpec, len(specs))
	for _, s := range specs {
		out[strings.ToUpper(s.symbol)] = s
	}
	return out
}

func (s assetSpec) price(prices model.PriceBook) float64 {
	if s.fixedPrice {
		return s.defaultPrice
	}
	if p, ok := prices[s.symbol]; ok && p > 0 {
		return p
	}
	return s.defaultPrice
}

func (s assetSpec) apy(yields model.YieldBook) float64 {
	if s.symbol == SymbolETH {
		return 0
	}
	if q, ok := yields[s.symbol]; ok {
		return q.TotalAPY
	}
	return s.defaultAPY
}

// OperatorRisk maps validator uptime to a 15-60 operator risk score, cut by
// 30% when the validators are DVT protected.
func OperatorRisk(u model.OperatorUptime) int {
	var risk int
	switch {
	case u.UptimePct >= 99.9:
		risk = 15
	case u.UptimePct >= 99.5:
		risk = 25
	case u.UptimePct >= 99.0:
		risk = 40
	default:
		risk = 60
	}
	if u.DVTProtected {
		risk = int(math.Round(float64(risk) * dvtRiskMultiplier))
	}
	return risk
}

// LiquidityBand scores total exit depth for the wrapped staking token.
func LiquidityBand(totalDepthUSD float64) int {
	for _, b := range liquidityBands {
		if totalDepthUSD >= b.minDepthUSD {
			return b.score
		}
	}
	return liquidityFloor
}
