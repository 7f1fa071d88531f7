// Package risk implements the composite risk scorer: a fixed-weight linear
// blend of uptime, AVS concentration, slashing and liquidity risk.
package risk

import (
	"fmt"
	"math"

	"github.com/yourorg/restake-risk-ea/internal/concentration"
	"github.com/yourorg/restake-risk-ea/internal/config"
	"github.com/yourorg/restake-risk-ea/internal/model"
)

// Blend weights.
const (
	uptimeWeight        = 2.0
	concentrationWeight = 0.5
	slashingWeight      = 0.3
	liquidityWeight     = 0.3
)

// Reason thresholds, evaluated in this order.
const (
	concentrationReasonPct = 50.0
	liquidityReasonHealth  = 70
	uptimeReasonPct        = 99.5
	slashingReasonScore    = 30
)

// Grade cutoffs on the composite score.
const (
	safeBelow     = 35
	moderateBelow = 65
)

const maxReasons = 3

// AllClearReasons are reported when no factor crosses its threshold.
var AllClearReasons = []string{
	"Low overall risk across all metrics",
	"Strong operator performance",
	"Well-diversified AVS allocation",
}

// Factors are the normalized inputs of the linear blend.
type Factors struct {
	UptimePct       float64 `json:"uptime_pct"`
	LargestSharePct float64 `json:"largest_share_pct"`
	SlashingProxy   int     `json:"slashing_proxy"`
	LiquidityHealth int     `json:"liquidity_health"`
}

// Assessment is a risk score together with the sub-results it was built from.
type Assessment struct {
	Score         model.RiskScore     `json:"risk_score"`
	Factors       Factors             `json:"factors"`
	Slashing      SlashingProxy       `json:"slashing_proxy"`
	Concentration concentration.Band  `json:"concentration_band"`
	Distribution  DistributionBalance `json:"distribution"`
}

// Scorer computes composite risk. It holds only immutable configuration and
// is safe for concurrent use.
type Scorer struct {
	scoring config.Scoring
}

// NewScorer creates a scorer with the given tunable constants
func NewScorer(scoring config.Scoring) *Scorer {
	return &Scorer{scoring: scoring}
}

// Score assesses the current upstream picture. It performs no I/O and never
// fails; every input is already fallback-safe.
func (s *Scorer) Score(
	uptime model.OperatorUptime,
	conc model.ConcentrationProfile,
	liq model.LiquidityProfile,
	dist model.DistributionProfile,
) Assessment {
	slashing := NewSlashingProxy(
		uptime.UptimePct,
		uptime.ClientDiversityScore,
		uptime.DVTProtected,
		conc.AuditStatus,
		conc.HistoricalSlashes,
	)

	f := Factors{
		UptimePct:       uptime.UptimePct,
		LargestSharePct: conc.LargestSharePct,
		SlashingProxy:   slashing.Score,
		LiquidityHealth: LiquidityHealthIndex(liq),
	}

	return Assessment{
		Score:         Blend(f),
		Factors:       f,
		Slashing:      slashing,
		Concentration: concentration.Classify(conc.HHI),
		Distribution:  BalanceDistribution(dist, s.scoring.Distribution),
	}
}

// Blend folds the factors into a clamped score, grade and ranked reasons.
func Blend(f Factors) model.RiskScore {
	uptimeRisk := math.Max(0, 100-f.UptimePct) * uptimeWeight
	concentrationRisk := math.Max(0, math.Min(f.LargestSharePct, 100)) * concentrationWeight
	slashingRisk := float64(f.SlashingProxy) * slashingWeight
	liquidityRisk := math.Max(0, float64(100-f.LiquidityHealth)) * liquidityWeight

	raw := uptimeRisk + concentrationRisk + slashingRisk + liquidityRisk
	value := clamp(int(math.Round(raw)), 0, 100)

	return model.RiskScore{
		Value:      value,
		Grade:      GradeFor(value),
		TopReasons: reasons(f),
	}
}

// GradeFor buckets a composite score.
func GradeFor(value int) model.Grade {
	switch {
	case value < safeBelow:
		return model.GradeSafe
	case value < moderateBelow:
		return model.GradeModerate
	default:
		return model.GradeHigh
	}
}

// reasons lists triggered factors in priority order: structural
// concentration first, then liquidity, uptime and slashing.
func reasons(f Factors) []string {
	var out []string
	if f.LargestSharePct > concentrationReasonPct {
		out = append(out, fmt.Sprintf("High AVS concentration (%.0f%%)", f.LargestSharePct))
	}
	if f.LiquidityHealth < liquidityReasonHealth {
		out = append(out, fmt.Sprintf("Moderate liquidity depth (health index: %d)", f.LiquidityHealth))
	}
	if f.UptimePct < uptimeReasonPct {
		out = append(out, fmt.Sprintf("Operator uptime below optimal (%.1f%%)", f.UptimePct))
	}
	if f.SlashingProxy > slashingReasonScore {
		out = append(out, fmt.Sprintf("Elevated slashing risk score (%d)", f.SlashingProxy))
	}

	if len(out) == 0 {
		return append([]string(nil), AllClearReasons...)
	}
	if len(out) > maxReasons {
		out = out[:maxReasons]
	}
	return out
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
