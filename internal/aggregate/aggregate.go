// Package aggregate is the aggregation core: it fans out to every upstream
// source, reconciles live and fallback results, and folds them into risk
// scores, portfolio metrics and recommendations.
package aggregate

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/yourorg/restake-risk-ea/internal/model"
	"github.com/yourorg/restake-risk-ea/internal/otel"
	"github.com/yourorg/restake-risk-ea/internal/source"
)

// Data quality of a response, derived from the statuses of its metrics
const (
	QualityLive     = "live"
	QualityDegraded = "degraded"
	QualityFallback = "fallback"
)

// Fetcher resolves a source to a metric, typically through the source cache
type Fetcher interface {
	GetOrFetch(ctx context.Context, src source.Source) model.UpstreamMetric
}

// direct fetches without caching
type direct struct{}

func (direct) GetOrFetch(ctx context.Context, src source.Source) model.UpstreamMetric {
	return src.Fetch(ctx)
}

// Snapshot is one metric per domain, resolved together.
type Snapshot struct {
	Uptime        model.UpstreamMetric
	Liquidity     model.UpstreamMetric
	Concentration model.UpstreamMetric
	Distribution  model.UpstreamMetric
	Prices        model.UpstreamMetric
	Yields        model.UpstreamMetric
}

// Metrics returns the snapshot metrics in source order
func (s Snapshot) Metrics() []model.UpstreamMetric {
	return []model.UpstreamMetric{s.Uptime, s.Liquidity, s.Concentration, s.Distribution, s.Prices, s.Yields}
}

// SourceStatus is the provenance of one metric as shown to callers
type SourceStatus struct {
	Source    string       `json:"source"`
	Domain    model.Domain `json:"domain"`
	Status    model.Status `json:"status"`
	Reason    string       `json:"reason,omitempty"`
	FetchedAt time.Time    `json:"fetched_at"`
}

// Statuses lists the provenance of the given metrics
func Statuses(metrics ...model.UpstreamMetric) []SourceStatus {
	out := make([]SourceStatus, len(metrics))
	for i, m := range metrics {
		out[i] = SourceStatus{
			Source:    m.Source,
			Domain:    m.Domain,
			Status:    m.Status,
			Reason:    m.Reason,
			FetchedAt: m.FetchedAt,
		}
	}
	return out
}

// DataQuality is live when every metric is live, fallback when none is,
// and degraded otherwise.
func DataQuality(metrics ...model.UpstreamMetric) string {
	fallbacks := 0
	for _, m := range metrics {
		if m.IsFallback() {
			fallbacks++
		}
	}
	switch {
	case fallbacks == 0:
		return QualityLive
	case fallbacks == len(metrics):
		return QualityFallback
	default:
		return QualityDegraded
	}
}

// collect resolves every source concurrently and waits for all of them.
// Sources never fail, so there is no early exit.
func collect(ctx context.Context, fetcher Fetcher, sources source.Set) Snapshot {
	ctx, span := otel.Tracer().Start(ctx, "aggregate.snapshot")
	defer span.End()

	all := sources.All()
	results := make([]model.UpstreamMetric, len(all))

	var wg sync.WaitGroup
	for i, src := range all {
		wg.Add(1)
		go func(i int, src source.Source) {
			defer wg.Done()
			results[i] = fetcher.GetOrFetch(ctx, src)
		}(i, src)
	}
	wg.Wait()

	snap := Snapshot{
		Uptime:        results[0],
		Liquidity:     results[1],
		Concentration: results[2],
		Distribution:  results[3],
		Prices:        results[4],
		Yields:        results[5],
	}
	span.SetAttributes(attribute.String("data_quality", DataQuality(snap.Metrics()...)))
	return snap
}
