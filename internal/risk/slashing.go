package risk

import (
	"math"
	"strings"
)

// Traffic-light bands used in slashing proxy inputs.
const (
	BandGreen = "Green"
	BandAmber = "Amber"
	BandRed   = "Red"
)

// Sub-blend weights of the slashing proxy.
const (
	slashingUptimeWeight    = 0.4
	slashingDiversityWeight = 0.2
	slashingDVTWeight       = 0.2
	slashingAuditWeight     = 0.2
)

// SlashingInputs are the banded inputs behind a slashing proxy score.
type SlashingInputs struct {
	OperatorUptimeBand     string `json:"operator_uptime_band"`
	ClientDiversityBand    string `json:"client_diversity_band"`
	DVTPresence            bool   `json:"dvt_presence"`
	AVSAuditStatus         string `json:"avs_audit_status"`
	HistoricalSlashesCount int    `json:"historical_slashes_count"`
}

// SlashingProxy is a 0-100 heuristic for slashing exposure.
type SlashingProxy struct {
	Score     int            `json:"proxy_score"`
	Grade     string         `json:"grade"`
	RiskLevel string         `json:"risk_level"`
	Inputs    SlashingInputs `json:"inputs"`
}

// uptimeBand maps uptime to its band and 0-100 partial risk.
func uptimeBand(uptimePct float64) (string, float64) {
	switch {
	case uptimePct >= 99.9:
		return BandGreen, 0
	case uptimePct >= 99.5:
		return BandGreen, 25
	case uptimePct >= 99.0:
		return BandAmber, 50
	default:
		return BandRed, 100
	}
}

// diversityBand maps a client-diversity score to its band and partial risk.
func diversityBand(score int) (string, float64) {
	switch {
	case score >= 75:
		return BandGreen, 20
	case score >= 60:
		return BandAmber, 50
	default:
		return BandRed, 100
	}
}

func dvtRisk(present bool) float64 {
	if present {
		return 0
	}
	return 100
}

// auditRisk maps an AVS audit status to partial risk; unknown states are
// treated like an audit in progress.
func auditRisk(status string) float64 {
	switch strings.ToLower(status) {
	case "audited":
		return 0
	case "mixed":
		return 30
	case "in_progress":
		return 50
	case "none":
		return 100
	default:
		return 50
	}
}

// NewSlashingProxy blends the four banded inputs into a proxy score.
func NewSlashingProxy(uptimePct float64, diversityScore int, dvt bool, auditStatus string, historicalSlashes int) SlashingProxy {
	uBand, uRisk := uptimeBand(uptimePct)
	dBand, dRisk := diversityBand(diversityScore)

	raw := uRisk*slashingUptimeWeight +
		dRisk*slashingDiversityWeight +
		dvtRisk(dvt)*slashingDVTWeight +
		auditRisk(auditStatus)*slashingAuditWeight
	score := clamp(int(math.Round(raw)), 0, 100)

	grade, level := slashingGrade(score)
	if auditStatus == "" {
		auditStatus = "none"
	}
	return SlashingProxy{
		Score:     score,
		Grade:     grade,
		RiskLevel: level,
		Inputs: SlashingInputs{
			OperatorUptimeBand:     uBand,
			ClientDiversityBand:    dBand,
			DVTPresence:            dvt,
			AVSAuditStatus:         strings.ToLower(auditStatus),
			HistoricalSlashesCount: historicalSlashes,
		},
	}
}

func slashingGrade(score int) (string, string) {
	switch {
	case score < 15:
		return "A", "Very Low"
	case score < 30:
		return "B", "Low"
	case score < 50:
		return "C", "Moderate"
	default:
		return "D", "High"
	}
}
