package aggregate

import (
	"github.com/yourorg/restake-risk-ea/internal/model"
	"github.com/yourorg/restake-risk-ea/internal/risk"
)

// MethodologyVersion identifies the scoring formulas behind a report
const MethodologyVersion = "composite-risk/v1"

// RiskReport is the outbound risk view: the composite score plus the tiles
// it was computed from.
type RiskReport struct {
	Address            string                   `json:"address,omitempty"`
	RiskScore          model.RiskScore          `json:"risk_score"`
	Tiles              Tiles                    `json:"tiles"`
	Distribution       risk.DistributionBalance `json:"distribution"`
	MethodologyVersion string                   `json:"methodology_version"`
	DataQuality        string                   `json:"data_quality"`
	Sources            []SourceStatus           `json:"sources"`
}

// Tiles are the supporting views shown next to the score
type Tiles struct {
	Uptime        UptimeTile         `json:"uptime"`
	Concentration ConcentrationTile  `json:"concentration"`
	Slashing      risk.SlashingProxy `json:"slashing_proxy"`
	Liquidity     LiquidityTile      `json:"liquidity"`
}

// UptimeTile summarises validator performance
type UptimeTile struct {
	UptimePct           float64      `json:"uptime_pct"`
	MissedAttestations  int          `json:"missed_attestations"`
	TotalAttestations   int          `json:"total_attestations"`
	DVTProtected        bool         `json:"dvt_protected"`
	ClientDiversityNote string       `json:"client_diversity_note"`
	Status              model.Status `json:"status"`
}

// ConcentrationTile summarises the AVS split
type ConcentrationTile struct {
	LargestSharePct  float64       `json:"largest_share_pct"`
	LargestShareName string        `json:"largest_share_name"`
	HHI              float64       `json:"hhi"`
	Level            string        `json:"level"`
	Grade            string        `json:"grade"`
	Shares           []model.Share `json:"shares"`
	Status           model.Status  `json:"status"`
}

// LiquidityTile summarises exit liquidity
type LiquidityTile struct {
	HealthIndex       int           `json:"health_index"`
	ReferenceTradeUSD int           `json:"reference_trade_usd"`
	TotalDepthUSD     float64       `json:"total_depth_usd"`
	RecommendedChain  string        `json:"recommended_chain,omitempty"`
	Venues            []model.Venue `json:"venues"`
	Status            model.Status  `json:"status"`
}

// PortfolioReport is the outbound portfolio view
type PortfolioReport struct {
	Assets          []model.PortfolioAsset `json:"assets"`
	Metrics         model.PortfolioMetrics `json:"metrics"`
	Recommendations []model.Recommendation `json:"recommendations"`
	MarketContext   MarketContext          `json:"market_context"`
	Sources         []SourceStatus         `json:"sources"`
}

// MarketContext carries the upstream readings a portfolio was valued against
type MarketContext struct {
	ETHPriceUSD         float64 `json:"eth_price_usd"`
	ValidatorUptimePct  float64 `json:"validator_uptime_pct"`
	TotalProtocolTVLUSD float64 `json:"total_protocol_tvl_usd"`
	LiquidityVenues     int     `json:"liquidity_venues"`
	TotalLiquidityUSD   float64 `json:"total_liquidity_usd"`
	LargestAVSPct       float64 `json:"largest_avs_pct"`
	RestakedPct         float64 `json:"restaked_pct"`
	DataQuality         string  `json:"data_quality"`
}

func buildTiles(snap Snapshot, a risk.Assessment) Tiles {
	uptime := snap.Uptime.Uptime()
	conc := snap.Concentration.Concentration()
	liq := snap.Liquidity.Liquidity()

	tiles := Tiles{
		Uptime: UptimeTile{
			UptimePct:           uptime.UptimePct,
			MissedAttestations:  uptime.MissedAttestations,
			TotalAttestations:   uptime.TotalAttestations,
			DVTProtected:        uptime.DVTProtected,
			ClientDiversityNote: uptime.ClientDiversityNote,
			Status:              snap.Uptime.Status,
		},
		Concentration: ConcentrationTile{
			LargestSharePct:  conc.LargestSharePct,
			LargestShareName: conc.LargestShareName,
			HHI:              conc.HHI,
			Level:            a.Concentration.Level,
			Grade:            a.Concentration.Grade,
			Shares:           conc.Shares,
			Status:           snap.Concentration.Status,
		},
		Slashing: a.Slashing,
		Liquidity: LiquidityTile{
			HealthIndex:       a.Factors.LiquidityHealth,
			ReferenceTradeUSD: liq.ReferenceTradeUSD,
			TotalDepthUSD:     liq.TotalDepthUSD(),
			Venues:            liq.Venues,
			Status:            snap.Liquidity.Status,
		},
	}
	if best, ok := liq.Best(); ok {
		tiles.Liquidity.RecommendedChain = best.Chain
	}
	return tiles
}

func buildMarketContext(snap Snapshot) MarketContext {
	liq := snap.Liquidity.Liquidity()
	return MarketContext{
		ETHPriceUSD:         snap.Prices.Prices()["ETH"],
		ValidatorUptimePct:  snap.Uptime.Uptime().UptimePct,
		TotalProtocolTVLUSD: snap.Yields.Yields().TotalTVLUSD(),
		LiquidityVenues:     len(liq.Venues),
		TotalLiquidityUSD:   liq.TotalDepthUSD(),
		LargestAVSPct:       snap.Concentration.Concentration().LargestSharePct,
		RestakedPct:         snap.Distribution.Distribution().RestakedPct,
		DataQuality:         DataQuality(snap.Metrics()...),
	}
}
