// Package cache memoizes upstream source results for a short TTL and
// collapses concurrent fetches of the same source into one call.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/yourorg/restake-risk-ea/internal/model"
	"github.com/yourorg/restake-risk-ea/internal/source"
)

// DefaultTTL is how long a fetched metric is served without refetching
const DefaultTTL = 5 * time.Minute

// Lookup results
const (
	resultHit   = "hit"
	resultStale = "stale"
	resultMiss  = "miss"
)

type entry struct {
	metric   model.UpstreamMetric
	storedAt time.Time
}

// SourceCache keys entries by source name. Metrics keep the status they were
// fetched with, so a cached fallback is still reported as fallback.
type SourceCache struct {
	ttl   time.Duration
	grace time.Duration
	now   func() time.Time

	mu      sync.RWMutex
	entries map[string]entry

	group    singleflight.Group
	requests *prometheus.CounterVec
}

// New creates a cache. Entries younger than ttl are served as is; entries
// within a further grace period are served while a background refresh runs.
// A zero grace never serves anything older than ttl.
func New(ttl, grace time.Duration) *SourceCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if grace < 0 {
		grace = 0
	}
	return &SourceCache{
		ttl:     ttl,
		grace:   grace,
		now:     time.Now,
		entries: make(map[string]entry),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "restake_cache_requests_total",
				Help: "Source cache lookups by result",
			},
			[]string{"source", "result"},
		),
	}
}

// WithClock replaces the time source
func (c *SourceCache) WithClock(now func() time.Time) *SourceCache {
	c.now = now
	return c
}

// Collectors returns the cache metrics to register
func (c *SourceCache) Collectors() []prometheus.Collector {
	return []prometheus.Collector{c.requests}
}

// GetOrFetch returns the cached metric for src or fetches it. Concurrent
// misses share a single fetch. The fetch is detached from ctx: if the caller
// gives up first it receives the source fallback and the fetch still lands in
// the cache.
func (c *SourceCache) GetOrFetch(ctx context.Context, src source.Source) model.UpstreamMetric {
	key := src.Name()

	if e, ok := c.lookup(key); ok {
		age := c.now().Sub(e.storedAt)
		switch {
		case age < c.ttl:
			c.record(key, resultHit)
			return e.metric
		case age < c.ttl+c.grace:
			c.record(key, resultStale)
			c.group.DoChan(key, c.fetchFunc(context.WithoutCancel(ctx), src))
			return e.metric
		}
	}

	c.record(key, resultMiss)
	ch := c.group.DoChan(key, c.fetchFunc(context.WithoutCancel(ctx), src))
	select {
	case res := <-ch:
		return res.Val.(model.UpstreamMetric)
	case <-ctx.Done():
		m := src.Fallback()
		m.Reason = "request cancelled before upstream answered"
		return m
	}
}

// Refresh fetches src regardless of entry age, joining any fetch in flight
func (c *SourceCache) Refresh(ctx context.Context, src source.Source) model.UpstreamMetric {
	res := <-c.group.DoChan(src.Name(), c.fetchFunc(ctx, src))
	return res.Val.(model.UpstreamMetric)
}

// Invalidate drops the entry for a source name
func (c *SourceCache) Invalidate(name string) {
	c.mu.Lock()
	delete(c.entries, name)
	c.mu.Unlock()
}

// Len returns the number of cached entries
func (c *SourceCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *SourceCache) lookup(key string) (entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	return e, ok
}

func (c *SourceCache) fetchFunc(ctx context.Context, src source.Source) func() (any, error) {
	return func() (any, error) {
		m := src.Fetch(ctx)
		c.mu.Lock()
		c.entries[src.Name()] = entry{metric: m, storedAt: c.now()}
		c.mu.Unlock()
		return m, nil
	}
}

func (c *SourceCache) record(key, result string) {
	c.requests.WithLabelValues(key, result).Inc()
	logrus.WithFields(logrus.Fields{
		"source": key,
		"result": result,
	}).Debug("Source cache lookup")
}
