// Package recommend turns portfolio aggregates into rule-based strategy
// suggestions.
package recommend

import (
	"fmt"
	"math"

	"github.com/dustin/go-humanize"

	"github.com/yourorg/restake-risk-ea/internal/model"
)

// Rule thresholds and APY multipliers.
const (
	conservativeRiskBelow    = 40
	yieldLiquidityAbove      = 80
	diversifyScoreBelow      = 60
	yieldOptimizationFactor  = 1.5
	diversificationAPYFactor = 0.9
)

// Context carries the market readings quoted in recommendation text.
type Context struct {
	UptimePct         float64
	TotalLiquidityUSD float64
}

// Engine evaluates each rule independently; all eligible recommendations
// are returned.
type Engine struct{}

// NewEngine creates a recommendation engine
func NewEngine() *Engine {
	return &Engine{}
}

// Recommend returns every strategy whose rule matches the metrics.
func (e *Engine) Recommend(m model.PortfolioMetrics, ctx Context) []model.Recommendation {
	recs := make([]model.Recommendation, 0, 3)

	if m.OverallRiskScore < conservativeRiskBelow {
		recs = append(recs, conservativeHold(m, ctx))
	}
	if m.LiquidityHealth > yieldLiquidityAbove {
		recs = append(recs, yieldOptimization(m, ctx))
	}
	if m.DiversificationScore < diversifyScoreBelow {
		recs = append(recs, diversification(m))
	}
	return recs
}

func conservativeHold(m model.PortfolioMetrics, ctx Context) model.Recommendation {
	return model.Recommendation{
		Name:        "Conservative Hold",
		Description: "Maintain current allocation with low-risk staking",
		ExpectedAPY: m.BlendedAPY,
		RiskLevel:   "Low",
		Steps: []string{
			"Continue holding weETH/eETH for stable staking rewards",
			fmt.Sprintf("Monitor validator uptime (currently %.1f%%)", ctx.UptimePct),
			"Maintain Liquid USD position for liquidity",
		},
		Pros: []string{
			"Low risk with DVT protection",
			"Good liquidity across multiple chains",
			fmt.Sprintf("Stable %.2f%% APY", m.BlendedAPY),
		},
		Cons: []string{
			"Limited upside potential",
			"Not maximizing yield opportunities",
		},
		DataSources: []string{"Beaconcha.in", "DefiLlama", "Uniswap"},
	}
}

func yieldOptimization(m model.PortfolioMetrics, ctx Context) model.Recommendation {
	apy := m.BlendedAPY * yieldOptimizationFactor
	return model.Recommendation{
		Name:        "Yield Optimization",
		Description: "Leverage weETH collateral for additional yield",
		ExpectedAPY: apy,
		RiskLevel:   "Moderate",
		Steps: []string{
			"Supply weETH as collateral",
			"Borrow stablecoins at ≤50% LTV",
			"Deploy to Liquid USD (10% APY)",
			"Monitor liquidation risk",
		},
		Pros: []string{
			fmt.Sprintf("Potential %.2f%% APY", apy),
			"Deep liquidity for unwinding position",
			fmt.Sprintf("$%s available liquidity", humanize.Comma(int64(math.Round(ctx.TotalLiquidityUSD)))),
		},
		Cons: []string{
			"Liquidation risk if ETH drops",
			"Interest rate volatility",
			"Smart contract risk",
		},
		DataSources: []string{"Uniswap Subgraph", "DefiLlama"},
	}
}

func diversification(m model.PortfolioMetrics) model.Recommendation {
	return model.Recommendation{
		Name:        "Diversification",
		Description: "Reduce concentration risk across AVS and assets",
		ExpectedAPY: m.BlendedAPY * diversificationAPYFactor,
		RiskLevel:   "Low-Moderate",
		Steps: []string{
			"Reduce single-AVS exposure (currently concentrated)",
			"Split allocation across eETH and weETH",
			"Consider multi-chain deployment",
			"Add uncorrelated assets",
		},
		Pros: []string{
			"Lower protocol concentration risk",
			"Multi-chain liquidity options",
			"Better risk-adjusted returns",
		},
		Cons: []string{
			"Slightly lower raw APY",
			"More complex management",
			"Higher gas costs for rebalancing",
		},
		DataSources: []string{"EigenExplorer", "Uniswap Subgraph"},
	}
}
