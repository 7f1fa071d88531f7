package source

import (
	"github.com/yourorg/restake-risk-ea/internal/concentration"
	"github.com/yourorg/restake-risk-ea/internal/config"
	"github.com/yourorg/restake-risk-ea/internal/model"
)

// Static payloads served when a provider is down or unconfigured. Each one is
// complete and passes the same validation as a live payload.

// FallbackUptime returns the static operator uptime
func FallbackUptime(cfg config.Config) model.OperatorUptime {
	return model.OperatorUptime{
		UptimePct:            99.5,
		MissedAttestations:   15,
		TotalAttestations:    3000,
		ValidatorCount:       len(cfg.ValidatorIndices),
		DVTProtected:         true,
		ClientDiversityNote:  cfg.ClientDiversity.Note,
		ClientDiversityScore: cfg.ClientDiversity.Score,
	}
}

// FallbackConcentration returns the static AVS split
func FallbackConcentration() model.ConcentrationProfile {
	return concentration.NewProfile([]model.Share{
		{Name: "EigenDA", Pct: 46.2, Type: "Data Availability", AuditStatus: "audited"},
		{Name: "Witness Chain", Pct: 30.9, Type: "Oracle Network", AuditStatus: "audited"},
		{Name: "Lagrange", Pct: 22.9, Type: "ZK Coprocessor", AuditStatus: "in_progress"},
	})
}

// FallbackLiquidity returns a single mainnet venue quoted for tradeUSD
func FallbackLiquidity(tradeUSD int) model.LiquidityProfile {
	if tradeUSD <= 0 {
		tradeUSD = 10000
	}
	return model.LiquidityProfile{
		ReferenceTradeUSD: tradeUSD,
		Venues: []model.Venue{{
			Chain:       "Ethereum",
			Venue:       "Uniswap V3",
			Pool:        "weETH/WETH",
			DepthUSD:    5_500_000,
			FeeTier:     500,
			SlippageBps: 25,
			FeeUSD:      4.2,
		}},
	}
}

// FallbackDistribution returns the static base/restaked split
func FallbackDistribution() model.DistributionProfile {
	return model.DistributionProfile{
		TotalStakedETH: 5_000_000,
		RestakedETH:    3_100_000,
		RestakedPct:    62,
		BaseStakePct:   38,
	}
}

// FallbackPrices returns static USD prices
func FallbackPrices() model.PriceBook {
	return model.PriceBook{
		"ETH":   3500,
		"eETH":  3500,
		"weETH": 3600,
		"ETHFI": 2.5,
	}
}

// FallbackYields returns static APY quotes
func FallbackYields() model.YieldBook {
	return model.YieldBook{
		"eETH":      {BaseAPY: 3.2, TotalAPY: 3.2, TVLUSD: 8.5e9},
		"weETH":     {BaseAPY: 3.2, TotalAPY: 3.2},
		"LiquidUSD": {BaseAPY: 10, TotalAPY: 10},
	}
}
