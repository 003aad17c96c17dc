package httpcache

import (
	"sync/atomic"
	"time"
)

// Metrics tracks request coordination statistics
type Metrics struct {
	// Entry hit/miss counters
	cacheHits   atomic.Uint64
	cacheMisses atomic.Uint64

	// Transport counters
	requests        atomic.Uint64
	transportErrors atomic.Uint64
	unauthorized    atomic.Uint64
	retries         atomic.Uint64
	unchanged       atomic.Uint64

	// Timing metrics (in nanoseconds)
	totalRequestLatency atomic.Uint64

	// Token refresh counters
	refreshes       atomic.Uint64
	refreshFailures atomic.Uint64
}

// NewMetrics creates a new metrics instance
func NewMetrics() *Metrics {
	return &Metrics{}
}

// RecordCacheHit increments the entry hit counter
func (m *Metrics) RecordCacheHit() {
	if m == nil {
		return
	}
	m.cacheHits.Add(1)
}

// RecordCacheMiss increments the entry miss counter
func (m *Metrics) RecordCacheMiss() {
	if m == nil {
		return
	}
	m.cacheMisses.Add(1)
}

// RecordRequest records one transport call with its latency
func (m *Metrics) RecordRequest(duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.requests.Add(1)
	m.totalRequestLatency.Add(uint64(duration.Nanoseconds()))
	if err != nil {
		m.transportErrors.Add(1)
	}
}

// RecordUnauthorized increments the 401 counter
func (m *Metrics) RecordUnauthorized() {
	if m == nil {
		return
	}
	m.unauthorized.Add(1)
}

// RecordRetry increments the retry counter
func (m *Metrics) RecordRetry() {
	if m == nil {
		return
	}
	m.retries.Add(1)
}

// RecordUnchanged increments the unchanged refetch counter
func (m *Metrics) RecordUnchanged() {
	if m == nil {
		return
	}
	m.unchanged.Add(1)
}

// RecordRefresh records a refresh call and its outcome
func (m *Metrics) RecordRefresh(ok bool) {
	if m == nil {
		return
	}
	m.refreshes.Add(1)
	if !ok {
		m.refreshFailures.Add(1)
	}
}

// GetSnapshot returns a snapshot of current metrics
func (m *Metrics) GetSnapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	hits := m.cacheHits.Load()
	misses := m.cacheMisses.Load()
	total := hits + misses

	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}

	requests := m.requests.Load()
	var avgLatency time.Duration
	if requests > 0 {
		avgLatency = time.Duration(m.totalRequestLatency.Load() / requests)
	}

	return MetricsSnapshot{
		CacheHits:         hits,
		CacheMisses:       misses,
		CacheHitRate:      hitRate,
		Requests:          requests,
		TransportErrors:   m.transportErrors.Load(),
		Unauthorized:      m.unauthorized.Load(),
		Retries:           m.retries.Load(),
		Unchanged:         m.unchanged.Load(),
		AvgRequestLatency: avgLatency,
		Refreshes:         m.refreshes.Load(),
		RefreshFailures:   m.refreshFailures.Load(),
	}
}

// Reset resets all metrics counters
func (m *Metrics) Reset() {
	if m == nil {
		return
	}
	m.cacheHits.Store(0)
	m.cacheMisses.Store(0)
	m.requests.Store(0)
	m.transportErrors.Store(0)
	m.unauthorized.Store(0)
	m.retries.Store(0)
	m.unchanged.Store(0)
	m.totalRequestLatency.Store(0)
	m.refreshes.Store(0)
	m.refreshFailures.Store(0)
}

// MetricsSnapshot represents a point-in-time snapshot of metrics
type MetricsSnapshot struct {
	// Entry metrics
	CacheHits    uint64
	CacheMisses  uint64
	CacheHitRate float64 // Percentage

	// Transport metrics
	Requests          uint64
	TransportErrors   uint64
	Unauthorized      uint64
	Retries           uint64
	Unchanged         uint64
	AvgRequestLatency time.Duration

	// Refresh metrics
	Refreshes       uint64
	RefreshFailures uint64
}
