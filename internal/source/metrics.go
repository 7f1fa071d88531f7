package source

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/yourorg/restake-risk-ea/internal/model"
)

// Metrics counts source fetch outcomes. A nil *Metrics records nothing.
type Metrics struct {
	fetchTotal    *prometheus.CounterVec
	fetchDuration *prometheus.HistogramVec
}

// NewMetrics creates unregistered source metrics
func NewMetrics() *Metrics {
	return &Metrics{
		fetchTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "restake_source_fetch_total",
				Help: "Upstream source fetches by outcome status",
			},
			[]string{"source", "status"},
		),
		fetchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "restake_source_fetch_duration_seconds",
				Help:    "Upstream source fetch latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"source"},
		),
	}
}

// Collectors returns the collectors to register
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{m.fetchTotal, m.fetchDuration}
}

func (m *Metrics) observe(source string, status model.Status, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.fetchTotal.WithLabelValues(source, string(status)).Inc()
	m.fetchDuration.WithLabelValues(source).Observe(elapsed.Seconds())
}
