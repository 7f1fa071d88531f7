package risk

import (
	"math"

	"github.com/yourorg/restake-risk-ea/internal/model"
)

// DepthBenchmarkUSD is the total pool depth that scores 100 on the depth leg.
const DepthBenchmarkUSD = 10_000_000

const (
	depthWeight    = 0.6
	slippageWeight = 0.4
)

// LiquidityHealthIndex scores exit liquidity 0-100 from normalized total depth
// (60%) and inverse average slippage (40%). An empty profile scores 0.
func LiquidityHealthIndex(l model.LiquidityProfile) int {
	if len(l.Venues) == 0 {
		return 0
	}

	depthScore := math.Min(l.TotalDepthUSD()/DepthBenchmarkUSD*100, 100)

	var totalBps float64
	for _, v := range l.Venues {
		totalBps += float64(v.SlippageBps)
	}
	avgBps := totalBps / float64(len(l.Venues))
	slippageScore := math.Max(0, 100-avgBps)

	return clamp(int(math.Round(depthScore*depthWeight+slippageScore*slippageWeight)), 0, 100)
}
