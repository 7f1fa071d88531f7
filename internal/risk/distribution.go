package risk

import (
	"math"

	"github.com/yourorg/restake-risk-ea/internal/config"
	"github.com/yourorg/restake-risk-ea/internal/model"
)

// DistributionBalance rates how close the restaked share sits to the ideal.
type DistributionBalance struct {
	BaseStakePct   float64 `json:"base_stake_pct"`
	RestakedPct    float64 `json:"restaked_pct"`
	BalancedScore  int     `json:"balanced_score"`
	Grade          string  `json:"balance_grade"`
	Recommendation string  `json:"recommendation"`
}

// BalanceDistribution scores a distribution against the configured bands.
// The thresholds are heuristics, not a derived optimum.
func BalanceDistribution(d model.DistributionProfile, s config.DistributionScoring) DistributionBalance {
	deviation := math.Abs(d.RestakedPct - s.IdealRestakedPct)

	score := s.FloorScore
	for _, band := range s.Bands {
		if deviation < band.MaxDeviation {
			score = band.Score
			break
		}
	}

	grade := "C"
	switch {
	case score >= s.GradeA:
		grade = "A"
	case score >= s.GradeB:
		grade = "B"
	}

	rec := "Consider rebalancing"
	if score >= s.GradeB {
		rec = "Well-balanced"
	}

	return DistributionBalance{
		BaseStakePct:   d.BaseStakePct,
		RestakedPct:    d.RestakedPct,
		BalancedScore:  score,
		Grade:          grade,
		Recommendation: rec,
	}
}
