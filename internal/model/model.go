// Package model defines the value objects that flow through the risk core.
// Every type here is rebuilt per request from upstream responses and
// caller-supplied balances; none of them is long-lived state.
package model

import (
	"time"
)

// Domain identifies which upstream data family a metric belongs to.
type Domain string

// Upstream data domains
const (
	DomainUptime        Domain = "uptime"
	DomainLiquidity     Domain = "liquidity"
	DomainConcentration Domain = "concentration"
	DomainDistribution  Domain = "distribution"
	DomainPrice         Domain = "price"
	DomainYield         Domain = "yield"
)

// Status records the provenance of an upstream metric.
type Status string

// Provenance values. The core only ever emits live and fallback; cached is
// reserved for presentation layers that re-serve a stored copy.
const (
	StatusLive     Status = "live"
	StatusCached   Status = "cached"
	StatusFallback Status = "fallback"
)

// UpstreamMetric is the normalized result of one upstream source fetch.
type UpstreamMetric struct {
	// Domain of the payload carried in Value
	Domain Domain `json:"domain"`

	// Source is the name of the source that produced the metric
	Source string `json:"source"`

	// Status is live only when the upstream call succeeded
	Status Status `json:"status"`

	// FetchedAt is when the metric was produced
	FetchedAt time.Time `json:"fetched_at"`

	// Value holds the domain payload: OperatorUptime, LiquidityProfile,
	// ConcentrationProfile, DistributionProfile, PriceBook or YieldBook
	Value any `json:"value"`

	// Reason explains why a fallback was served
	Reason string `json:"reason,omitempty"`
}

// IsFallback reports whether the metric carries static fallback data.
func (m UpstreamMetric) IsFallback() bool {
	return m.Status == StatusFallback
}

// Uptime returns the operator uptime payload.
func (m UpstreamMetric) Uptime() OperatorUptime {
	v, _ := m.Value.(OperatorUptime)
	return v
}

// Liquidity returns the liquidity payload.
func (m UpstreamMetric) Liquidity() LiquidityProfile {
	v, _ := m.Value.(LiquidityProfile)
	return v
}

// Concentration returns the AVS concentration payload.
func (m UpstreamMetric) Concentration() ConcentrationProfile {
	v, _ := m.Value.(ConcentrationProfile)
	return v
}

// Distribution returns the base/restaked distribution payload.
func (m UpstreamMetric) Distribution() DistributionProfile {
	v, _ := m.Value.(DistributionProfile)
	return v
}

// Prices returns the spot price payload.
func (m UpstreamMetric) Prices() PriceBook {
	v, _ := m.Value.(PriceBook)
	return v
}

// Yields returns the yield payload.
func (m UpstreamMetric) Yields() YieldBook {
	v, _ := m.Value.(YieldBook)
	return v
}

// OperatorUptime summarises validator attestation performance.
type OperatorUptime struct {
	UptimePct            float64 `json:"uptime_pct"`
	MissedAttestations   int     `json:"missed_attestations"`
	TotalAttestations    int     `json:"total_attestations"`
	ValidatorCount       int     `json:"validator_count"`
	DVTProtected         bool    `json:"dvt_protected"`
	ClientDiversityNote  string  `json:"client_diversity_note"`
	ClientDiversityScore int     `json:"client_diversity_score"`
}

// Share is one named slice of a concentration profile.
type Share struct {
	Name        string  `json:"name"`
	Pct         float64 `json:"pct"`
	Type        string  `json:"type,omitempty"`
	AuditStatus string  `json:"audit_status,omitempty"`
}

// ConcentrationProfile describes how restaked value is split across AVSs.
type ConcentrationProfile struct {
	Shares            []Share `json:"shares"`
	HHI               float64 `json:"hhi"`
	LargestSharePct   float64 `json:"largest_share_pct"`
	LargestShareName  string  `json:"largest_share_name,omitempty"`
	AuditStatus       string  `json:"audit_status"`
	HistoricalSlashes int     `json:"historical_slashes"`
}

// Venue is one pool on one chain quoted for the reference trade size.
type Venue struct {
	Chain       string  `json:"chain"`
	Venue       string  `json:"venue"`
	Pool        string  `json:"pool"`
	DepthUSD    float64 `json:"depth_usd"`
	FeeTier     int     `json:"fee_tier"`
	SlippageBps int     `json:"slippage_bps"`
	FeeUSD      float64 `json:"fee_usd"`
}

// LiquidityProfile lists exit venues quoted for ReferenceTradeUSD.
type LiquidityProfile struct {
	Venues            []Venue `json:"venues"`
	ReferenceTradeUSD int     `json:"reference_trade_usd"`
}

// TotalDepthUSD sums pool depth across all venues.
func (l LiquidityProfile) TotalDepthUSD() float64 {
	var total float64
	for _, v := range l.Venues {
		total += v.DepthUSD
	}
	return total
}

// Best returns the venue with the lowest slippage.
func (l LiquidityProfile) Best() (Venue, bool) {
	if len(l.Venues) == 0 {
		return Venue{}, false
	}
	best := l.Venues[0]
	for _, v := range l.Venues[1:] {
		if v.SlippageBps < best.SlippageBps {
			best = v
		}
	}
	return best, true
}

// DistributionProfile splits total stake into base and restaked portions.
type DistributionProfile struct {
	TotalStakedETH float64 `json:"total_staked_eth"`
	RestakedETH    float64 `json:"restaked_eth"`
	BaseStakePct   float64 `json:"base_stake_pct"`
	RestakedPct    float64 `json:"restaked_pct"`
}

// PriceBook maps asset symbol to USD unit price.
type PriceBook map[string]float64

// YieldQuote is the APY breakdown for one tracked asset, in percent.
type YieldQuote struct {
	BaseAPY   float64 `json:"apy_base"`
	RewardAPY float64 `json:"apy_reward"`
	TotalAPY  float64 `json:"apy_total"`
	TVLUSD    float64 `json:"tvl_usd"`
}

// YieldBook maps asset symbol to its yield quote.
type YieldBook map[string]YieldQuote

// TotalTVLUSD sums TVL over all quoted assets.
func (y YieldBook) TotalTVLUSD() float64 {
	var total float64
	for _, q := range y {
		total += q.TVLUSD
	}
	return total
}
