// Package concentration computes Herfindahl-Hirschman concentration and
// diversification indices over percentage shares. It is shared by the risk
// scorer (AVS concentration) and the portfolio analyzer (asset allocation).
package concentration

import (
	"math"
	"strings"

	"gonum.org/v1/gonum/floats"

	"github.com/yourorg/restake-risk-ea/internal/model"
)

// SingleShareFloor is the diversification score of a one-share profile. A
// deliberately chosen single safe asset is never scored as zero.
const SingleShareFloor = 20

// Band cutoffs on the HHI (0-1 scale).
const (
	LowCutoff  = 0.15
	HighCutoff = 0.25
)

// Band is the qualitative concentration level for an HHI value.
type Band struct {
	Level string `json:"level"`
	Grade string `json:"grade"`
}

// HHI returns Σ(p/100)² for shares given in percent.
func HHI(sharesPct []float64) float64 {
	squares := make([]float64, len(sharesPct))
	for i, p := range sharesPct {
		f := p / 100
		squares[i] = f * f
	}
	return floats.Sum(squares)
}

// DiversificationScore maps shares to 0-100 where higher means more diverse.
// No shares scores 0 and a single share scores SingleShareFloor.
func DiversificationScore(sharesPct []float64) int {
	switch len(sharesPct) {
	case 0:
		return 0
	case 1:
		return SingleShareFloor
	}
	score := int(math.Round((1 - HHI(sharesPct)) * 100))
	return clamp(score, 0, 100)
}

// Classify bands an HHI value: below 0.15 is low (A), up to 0.25 moderate
// (B), above that high (C).
func Classify(hhi float64) Band {
	switch {
	case hhi < LowCutoff:
		return Band{Level: "low", Grade: "A"}
	case hhi <= HighCutoff:
		return Band{Level: "moderate", Grade: "B"}
	default:
		return Band{Level: "high", Grade: "C"}
	}
}

// NewProfile builds a concentration profile from named shares, deriving the
// HHI, the largest share and the combined audit status.
func NewProfile(shares []model.Share) model.ConcentrationProfile {
	pcts := make([]float64, len(shares))
	profile := model.ConcentrationProfile{
		Shares: shares,
	}
	for i, s := range shares {
		pcts[i] = s.Pct
		if i == 0 || s.Pct > profile.LargestSharePct {
			profile.LargestSharePct = s.Pct
			profile.LargestShareName = s.Name
		}
	}
	profile.HHI = HHI(pcts)
	profile.AuditStatus = combinedAuditStatus(shares)
	return profile
}

// Pcts extracts the percentages of a profile in order.
func Pcts(shares []model.Share) []float64 {
	out := make([]float64, len(shares))
	for i, s := range shares {
		out[i] = s.Pct
	}
	return out
}

// combinedAuditStatus collapses per-share audit states: a uniform state is
// kept as is, anything else is "mixed".
func combinedAuditStatus(shares []model.Share) string {
	status := ""
	for _, s := range shares {
		st := strings.ToLower(s.AuditStatus)
		if st == "" {
			st = "none"
		}
		switch {
		case status == "":
			status = st
		case status != st:
			return "mixed"
		}
	}
	if status == "" {
		return "none"
	}
	return status
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
