// Package source wraps provider clients as upstream sources that never fail:
// every error is absorbed into a complete, static fallback metric.
package source

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/attribute"

	"github.com/yourorg/restake-risk-ea/internal/model"
	"github.com/yourorg/restake-risk-ea/internal/otel"
)

// Source is one upstream data domain. Fetch always returns a usable metric.
type Source interface {
	Name() string
	Domain() model.Domain
	Fetch(ctx context.Context) model.UpstreamMetric
	Fallback() model.UpstreamMetric
}

// FetchFunc performs one upstream query and returns the domain payload
type FetchFunc func(ctx context.Context) (any, error)

// CheckFunc validates a fetched payload before it is accepted as live
type CheckFunc func(value any) error

// DefaultTimeout bounds a single live fetch
const DefaultTimeout = 15 * time.Second

// Live calls an upstream provider and degrades to its fallback on any error,
// panic, timeout or rejected payload.
type Live struct {
	name     string
	domain   model.Domain
	fetch    FetchFunc
	check    CheckFunc
	fallback any
	timeout  time.Duration

	breaker *gobreaker.CircuitBreaker
	metrics *Metrics
	now     func() time.Time
}

// NewLive creates a live source with the default timeout and a transport
// breaker that opens after 3 consecutive failures.
func NewLive(name string, domain model.Domain, fetch FetchFunc, fallback any) *Live {
	l := &Live{
		name:     name,
		domain:   domain,
		fetch:    fetch,
		fallback: fallback,
		timeout:  DefaultTimeout,
		now:      time.Now,
	}
	l.breaker = newBreaker(name, 3, 30*time.Second)
	return l
}

func newBreaker(name string, failures uint32, openFor time.Duration) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     openFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logrus.WithFields(logrus.Fields{
				"source": name,
				"from":   from.String(),
				"to":     to.String(),
			}).Warn("Source breaker state changed")
		},
	})
}

// WithTimeout sets the per-fetch timeout
func (l *Live) WithTimeout(timeout time.Duration) *Live {
	if timeout > 0 {
		l.timeout = timeout
	}
	return l
}

// WithCheck sets the payload validator
func (l *Live) WithCheck(check CheckFunc) *Live {
	l.check = check
	return l
}

// WithBreaker replaces the transport breaker thresholds
func (l *Live) WithBreaker(failures uint32, openFor time.Duration) *Live {
	l.breaker = newBreaker(l.name, failures, openFor)
	return l
}

// WithMetrics records fetch outcomes on m
func (l *Live) WithMetrics(m *Metrics) *Live {
	l.metrics = m
	return l
}

// WithClock replaces the time source used for FetchedAt
func (l *Live) WithClock(now func() time.Time) *Live {
	l.now = now
	return l
}

// Name returns the source name
func (l *Live) Name() string { return l.name }

// Domain returns the data domain
func (l *Live) Domain() model.Domain { return l.domain }

// Fallback returns the static metric served when the upstream fails
func (l *Live) Fallback() model.UpstreamMetric {
	return fallbackMetric(l.name, l.domain, l.fallback, l.now(), "")
}

// Fetch queries the upstream under the timeout and breaker. It never returns
// an error; failures yield the fallback metric with the reason recorded.
func (l *Live) Fetch(ctx context.Context) (metric model.UpstreamMetric) {
	start := time.Now()
	ctx, span := otel.Tracer().Start(ctx, "source.fetch")
	span.SetAttributes(
		attribute.String("source", l.name),
		attribute.String("domain", string(l.domain)),
	)
	defer func() {
		if r := recover(); r != nil {
			metric = l.degrade(fmt.Errorf("panic: %v", r))
		}
		span.SetAttributes(attribute.String("status", string(metric.Status)))
		span.End()
		l.metrics.observe(l.name, metric.Status, time.Since(start))
	}()

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	value, err := l.breaker.Execute(func() (interface{}, error) {
		v, err := l.fetch(ctx)
		if err != nil {
			return nil, err
		}
		if l.check != nil {
			if err := l.check(v); err != nil {
				return nil, err
			}
		}
		return v, nil
	})
	if err != nil {
		otel.RecordError(ctx, err)
		return l.degrade(err)
	}

	return model.UpstreamMetric{
		Domain:    l.domain,
		Source:    l.name,
		Status:    model.StatusLive,
		FetchedAt: l.now(),
		Value:     value,
	}
}

func (l *Live) degrade(err error) model.UpstreamMetric {
	reason := err.Error()
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		reason = "breaker open: " + reason
	case errors.Is(err, context.DeadlineExceeded):
		reason = "timeout: " + reason
	}
	logrus.WithFields(logrus.Fields{
		"source": l.name,
		"domain": l.domain,
		"reason": reason,
	}).Warn("Serving fallback metric")
	return fallbackMetric(l.name, l.domain, l.fallback, l.now(), reason)
}

// Static serves a fixed fallback without any I/O. It stands in for a
// provider that is not configured.
type Static struct {
	name    string
	domain  model.Domain
	value   any
	reason  string
	metrics *Metrics
	now     func() time.Time
}

// NewStatic creates a source that always reports the fallback value
func NewStatic(name string, domain model.Domain, value any, reason string) *Static {
	return &Static{
		name:   name,
		domain: domain,
		value:  value,
		reason: reason,
		now:    time.Now,
	}
}

// WithMetrics records fetch outcomes on m
func (s *Static) WithMetrics(m *Metrics) *Static {
	s.metrics = m
	return s
}

// WithClock replaces the time source used for FetchedAt
func (s *Static) WithClock(now func() time.Time) *Static {
	s.now = now
	return s
}

// Name returns the source name
func (s *Static) Name() string { return s.name }

// Domain returns the data domain
func (s *Static) Domain() model.Domain { return s.domain }

// Fallback returns the static metric
func (s *Static) Fallback() model.UpstreamMetric {
	return fallbackMetric(s.name, s.domain, s.value, s.now(), s.reason)
}

// Fetch returns the static metric
func (s *Static) Fetch(context.Context) model.UpstreamMetric {
	s.metrics.observe(s.name, model.StatusFallback, 0)
	return s.Fallback()
}

func fallbackMetric(name string, domain model.Domain, value any, at time.Time, reason string) model.UpstreamMetric {
	return model.UpstreamMetric{
		Domain:    domain,
		Source:    name,
		Status:    model.StatusFallback,
		FetchedAt: at,
		Value:     value,
		Reason:    reason,
	}
}
