package aggregate

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/yourorg/restake-risk-ea/internal/config"
	"github.com/yourorg/restake-risk-ea/internal/history"
	"github.com/yourorg/restake-risk-ea/internal/model"
	"github.com/yourorg/restake-risk-ea/internal/portfolio"
	"github.com/yourorg/restake-risk-ea/internal/recommend"
	"github.com/yourorg/restake-risk-ea/internal/risk"
	"github.com/yourorg/restake-risk-ea/internal/security"
	"github.com/yourorg/restake-risk-ea/internal/source"
	"github.com/yourorg/restake-risk-ea/internal/validation"
)

// refresher is implemented by fetchers that can bypass their TTL
type refresher interface {
	Refresh(ctx context.Context, src source.Source) model.UpstreamMetric
}

// Core owns the sources and the pure scoring components. Apart from the
// fetcher's cache it holds no mutable state and is safe for concurrent use.
type Core struct {
	sources  source.Set
	fetcher  Fetcher
	scorer   *risk.Scorer
	analyzer *portfolio.Analyzer
	engine   *recommend.Engine
	sink     history.Sink
	now      func() time.Time

	riskGauge prometheus.Gauge
}

// New creates the aggregation core. A nil fetcher queries sources directly.
func New(sources source.Set, fetcher Fetcher, scoring config.Scoring) *Core {
	if fetcher == nil {
		fetcher = direct{}
	}
	return &Core{
		sources:  sources,
		fetcher:  fetcher,
		scorer:   risk.NewScorer(scoring),
		analyzer: portfolio.NewAnalyzer(),
		engine:   recommend.NewEngine(),
		now:      time.Now,
		riskGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "restake_risk_score",
			Help: "Most recently computed composite risk score",
		}),
	}
}

// WithHistory sets the sink computed results are written to
func (c *Core) WithHistory(sink history.Sink) *Core {
	c.sink = sink
	return c
}

// WithClock replaces the time source for history records
func (c *Core) WithClock(now func() time.Time) *Core {
	c.now = now
	return c
}

// Collectors returns the core metrics to register
func (c *Core) Collectors() []prometheus.Collector {
	return []prometheus.Collector{c.riskGauge}
}

// Analyzer exposes the portfolio analyzer, e.g. for listing symbols
func (c *Core) Analyzer() *portfolio.Analyzer {
	return c.analyzer
}

// Snapshot resolves every source concurrently
func (c *Core) Snapshot(ctx context.Context) Snapshot {
	return collect(ctx, c.fetcher, c.sources)
}

// RiskScore computes the composite risk view. address is optional and only
// echoed back in checksum form; a malformed address is rejected.
func (c *Core) RiskScore(ctx context.Context, address string) (RiskReport, error) {
	if address != "" {
		normalized, err := security.NormalizeAddress(address)
		if err != nil {
			return RiskReport{}, err
		}
		address = normalized
	}

	snap := c.Snapshot(ctx)
	assessment := c.scorer.Score(
		snap.Uptime.Uptime(),
		snap.Concentration.Concentration(),
		snap.Liquidity.Liquidity(),
		snap.Distribution.Distribution(),
	)

	used := []model.UpstreamMetric{snap.Uptime, snap.Concentration, snap.Liquidity, snap.Distribution}
	report := RiskReport{
		Address:            address,
		RiskScore:          assessment.Score,
		Tiles:              buildTiles(snap, assessment),
		Distribution:       assessment.Distribution,
		MethodologyVersion: MethodologyVersion,
		DataQuality:        DataQuality(used...),
		Sources:            Statuses(used...),
	}

	c.riskGauge.Set(float64(report.RiskScore.Value))
	c.record(ctx, history.Record{
		Kind:    history.KindRisk,
		Subject: address,
		Values: map[string]float64{
			"score":              float64(report.RiskScore.Value),
			"slashing_proxy":     float64(assessment.Slashing.Score),
			"liquidity_health":   float64(assessment.Factors.LiquidityHealth),
			"uptime_pct":         assessment.Factors.UptimePct,
			"largest_share_pct":  assessment.Factors.LargestSharePct,
			"hhi":                snap.Concentration.Concentration().HHI,
			"restaked_pct":       assessment.Distribution.RestakedPct,
			"distribution_score": float64(assessment.Distribution.BalancedScore),
		},
		DataQuality: report.DataQuality,
	})

	logrus.WithFields(logrus.Fields{
		"score":        report.RiskScore.Value,
		"grade":        report.RiskScore.Grade,
		"data_quality": report.DataQuality,
	}).Debug("Computed risk score")
	return report, nil
}

// AnalyzePortfolio values the holdings against the current upstream picture
// and attaches recommendations. Invalid holdings are rejected before any
// upstream call with an error wrapping validation.ErrInvalidHolding.
func (c *Core) AnalyzePortfolio(ctx context.Context, holdings []model.Holding) (PortfolioReport, error) {
	if err := validation.CheckHoldings(holdings, c.analyzer.Supports); err != nil {
		return PortfolioReport{}, err
	}

	snap := c.Snapshot(ctx)
	analysis, err := c.analyzer.Analyze(holdings, portfolio.Inputs{
		Uptime:       snap.Uptime.Uptime(),
		Liquidity:    snap.Liquidity.Liquidity(),
		Distribution: snap.Distribution.Distribution(),
		Prices:       snap.Prices.Prices(),
		Yields:       snap.Yields.Yields(),
	})
	if err != nil {
		return PortfolioReport{}, fmt.Errorf("analyze portfolio: %w", err)
	}

	market := buildMarketContext(snap)
	report := PortfolioReport{
		Assets:  analysis.Assets,
		Metrics: analysis.Metrics,
		Recommendations: c.engine.Recommend(analysis.Metrics, recommend.Context{
			UptimePct:         market.ValidatorUptimePct,
			TotalLiquidityUSD: market.TotalLiquidityUSD,
		}),
		MarketContext: market,
		Sources:       Statuses(snap.Metrics()...),
	}

	m := analysis.Metrics
	c.record(ctx, history.Record{
		Kind: history.KindPortfolio,
		Values: map[string]float64{
			"total_value_usd":       m.TotalValueUSD,
			"total_staked_eth":      m.TotalStakedETH,
			"blended_apy":           m.BlendedAPY,
			"overall_risk_score":    float64(m.OverallRiskScore),
			"liquidity_health":      float64(m.LiquidityHealth),
			"diversification_score": float64(m.DiversificationScore),
		},
		DataQuality: market.DataQuality,
	})
	return report, nil
}

// SourceStatuses reports the current provenance of every source
func (c *Core) SourceStatuses(ctx context.Context) []SourceStatus {
	return Statuses(c.Snapshot(ctx).Metrics()...)
}

// Warm refreshes every source ahead of requests, bypassing the TTL when the
// fetcher supports it. It returns the number of sources that fell back.
func (c *Core) Warm(ctx context.Context) int {
	all := c.sources.All()
	results := make([]model.UpstreamMetric, len(all))

	g, gctx := errgroup.WithContext(ctx)
	for i, src := range all {
		i, src := i, src
		g.Go(func() error {
			if r, ok := c.fetcher.(refresher); ok {
				results[i] = r.Refresh(gctx, src)
			} else {
				results[i] = c.fetcher.GetOrFetch(gctx, src)
			}
			return nil
		})
	}
	_ = g.Wait()

	fallbacks := 0
	for _, m := range results {
		if m.IsFallback() {
			fallbacks++
		}
	}
	logrus.WithFields(logrus.Fields{
		"sources":   len(all),
		"fallbacks": fallbacks,
	}).Info("Warmed source cache")
	return fallbacks
}

func (c *Core) record(ctx context.Context, rec history.Record) {
	if c.sink == nil {
		return
	}
	rec.RecordedAt = c.now()
	if err := c.sink.Write(context.WithoutCancel(ctx), rec); err != nil {
		logrus.WithError(err).WithField("kind", rec.Kind).Warn("Failed to write history")
	}
}
