package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/restake-risk-ea/internal/concentration"
	"github.com/yourorg/restake-risk-ea/internal/config"
	"github.com/yourorg/restake-risk-ea/internal/model"
)

func TestBlend_SafeScenario(t *testing.T) {
	got := Blend(Factors{UptimePct: 99.9, LargestSharePct: 30, SlashingProxy: 10, LiquidityHealth: 90})

	assert.Equal(t, 21, got.Value)
	assert.Equal(t, model.GradeSafe, got.Grade)
	assert.Equal(t, AllClearReasons, got.TopReasons)
}

func TestBlend_HighScenario(t *testing.T) {
	got := Blend(Factors{UptimePct: 98.0, LargestSharePct: 70, SlashingProxy: 45, LiquidityHealth: 50})

	assert.Equal(t, 68, got.Value)
	assert.Equal(t, model.GradeHigh, got.Grade)
	require.Len(t, got.TopReasons, 3)
	assert.Contains(t, got.TopReasons[0], "AVS concentration")
	assert.Contains(t, got.TopReasons[1], "liquidity")
	assert.Contains(t, got.TopReasons[2], "uptime")
}

func TestBlend_Clamps(t *testing.T) {
	tests := []struct {
		name string
		f    Factors
		want int
	}{
		{"worst case", Factors{UptimePct: 0, LargestSharePct: 100, SlashingProxy: 100, LiquidityHealth: 0}, 100},
		{"best case", Factors{UptimePct: 100, LargestSharePct: 0, SlashingProxy: 0, LiquidityHealth: 100}, 0},
		{"out of range inputs", Factors{UptimePct: 140, LargestSharePct: -20, SlashingProxy: 0, LiquidityHealth: 180}, 0},
		{"oversized share", Factors{UptimePct: 100, LargestSharePct: 400, SlashingProxy: 0, LiquidityHealth: 100}, 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Blend(tt.f)
			assert.Equal(t, tt.want, got.Value)
			assert.GreaterOrEqual(t, got.Value, 0)
			assert.LessOrEqual(t, got.Value, 100)
			assert.LessOrEqual(t, len(got.TopReasons), 3)
		})
	}
}

func TestGradeFor(t *testing.T) {
	assert.Equal(t, model.GradeSafe, GradeFor(34))
	assert.Equal(t, model.GradeModerate, GradeFor(35))
	assert.Equal(t, model.GradeModerate, GradeFor(64))
	assert.Equal(t, model.GradeHigh, GradeFor(65))
}

func TestNewSlashingProxy(t *testing.T) {
	tests := []struct {
		name      string
		uptime    float64
		diversity int
		dvt       bool
		audit     string
		score     int
		grade     string
		uBand     string
	}{
		{"all green", 99.95, 80, true, "audited", 4, "A", BandGreen},
		{"all red", 98.5, 50, false, "none", 100, "D", BandRed},
		{"amber mixed", 99.0, 75, true, "mixed", 30, "C", BandAmber},
		{"unknown audit", 99.6, 65, true, "pending", 30, "C", BandGreen},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewSlashingProxy(tt.uptime, tt.diversity, tt.dvt, tt.audit, 0)
			assert.Equal(t, tt.score, p.Score)
			assert.Equal(t, tt.grade, p.Grade)
			assert.Equal(t, tt.uBand, p.Inputs.OperatorUptimeBand)
			assert.Equal(t, tt.dvt, p.Inputs.DVTPresence)
		})
	}
}

func TestLiquidityHealthIndex(t *testing.T) {
	assert.Equal(t, 0, LiquidityHealthIndex(model.LiquidityProfile{}))

	single := model.LiquidityProfile{Venues: []model.Venue{{DepthUSD: 5_500_000, SlippageBps: 25}}}
	assert.Equal(t, 63, LiquidityHealthIndex(single))

	deep := model.LiquidityProfile{Venues: []model.Venue{
		{DepthUSD: 8_000_000, SlippageBps: 10},
		{DepthUSD: 4_000_000, SlippageBps: 30},
	}}
	assert.Equal(t, 92, LiquidityHealthIndex(deep))

	dry := model.LiquidityProfile{Venues: []model.Venue{{DepthUSD: 0, SlippageBps: 9999}}}
	assert.Equal(t, 0, LiquidityHealthIndex(dry))
}

func TestBalanceDistribution(t *testing.T) {
	s := config.DefaultScoring().Distribution

	tests := []struct {
		restaked float64
		score    int
		grade    string
	}{
		{62, 100, "A"},
		{56, 90, "A"},
		{52, 80, "B"},
		{50, 70, "C"},
		{30, 60, "C"},
	}

	for _, tt := range tests {
		got := BalanceDistribution(model.DistributionProfile{RestakedPct: tt.restaked, BaseStakePct: 100 - tt.restaked}, s)
		assert.Equal(t, tt.score, got.BalancedScore, "restaked=%v", tt.restaked)
		assert.Equal(t, tt.grade, got.Grade, "restaked=%v", tt.restaked)
	}
}

func TestScorer_Score(t *testing.T) {
	scorer := NewScorer(config.DefaultScoring())

	conc := concentration.NewProfile([]model.Share{
		{Name: "EigenDA", Pct: 46, AuditStatus: "audited"},
		{Name: "Witness Chain", Pct: 31, AuditStatus: "audited"},
		{Name: "Lagrange", Pct: 23, AuditStatus: "in_progress"},
	})

	a := scorer.Score(
		model.OperatorUptime{UptimePct: 99.0, ClientDiversityScore: 75, DVTProtected: true},
		conc,
		model.LiquidityProfile{Venues: []model.Venue{{DepthUSD: 5_500_000, SlippageBps: 25}}},
		model.DistributionProfile{RestakedPct: 62, BaseStakePct: 38},
	)

	assert.Equal(t, 30, a.Slashing.Score)
	assert.Equal(t, 63, a.Factors.LiquidityHealth)
	assert.Equal(t, 45, a.Score.Value)
	assert.Equal(t, model.GradeModerate, a.Score.Grade)
	assert.Len(t, a.Score.TopReasons, 2)
	assert.Equal(t, "high", a.Concentration.Level)
	assert.Equal(t, 100, a.Distribution.BalancedScore)
}
