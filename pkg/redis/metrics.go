package redis

import (
	"sync/atomic"
	"time"
)

// Metrics tracks Redis operation statistics.
// A nil *Metrics records nothing.
type Metrics struct {
	hits   atomic.Uint64
	misses atomic.Uint64
	errors atomic.Uint64

	getOperations    atomic.Uint64
	setOperations    atomic.Uint64
	deleteOperations atomic.Uint64

	// nanoseconds
	totalGetLatency atomic.Uint64
	totalSetLatency atomic.Uint64

	invalidationCount atomic.Uint64
}

// NewMetrics creates a new metrics instance
func NewMetrics() *Metrics {
	return &Metrics{}
}

// RecordHit increments the hit counter
func (m *Metrics) RecordHit() {
	if m != nil {
		m.hits.Add(1)
	}
}

// RecordMiss increments the miss counter
func (m *Metrics) RecordMiss() {
	if m != nil {
		m.misses.Add(1)
	}
}

// RecordError increments the error counter
func (m *Metrics) RecordError() {
	if m != nil {
		m.errors.Add(1)
	}
}

// RecordGet records a get operation with latency
func (m *Metrics) RecordGet(duration time.Duration) {
	if m == nil {
		return
	}
	m.getOperations.Add(1)
	m.totalGetLatency.Add(uint64(duration.Nanoseconds()))
}

// RecordSet records a set operation with latency
func (m *Metrics) RecordSet(duration time.Duration) {
	if m == nil {
		return
	}
	m.setOperations.Add(1)
	m.totalSetLatency.Add(uint64(duration.Nanoseconds()))
}

// RecordDelete increments the delete counter
func (m *Metrics) RecordDelete() {
	if m != nil {
		m.deleteOperations.Add(1)
	}
}

// RecordInvalidation counts one deleted SCAN batch
func (m *Metrics) RecordInvalidation() {
	if m != nil {
		m.invalidationCount.Add(1)
	}
}

// GetSnapshot returns a snapshot of current metrics
func (m *Metrics) GetSnapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	hits := m.hits.Load()
	misses := m.misses.Load()

	var hitRate float64
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}

	getOps := m.getOperations.Load()
	setOps := m.setOperations.Load()

	var avgGetLatency, avgSetLatency time.Duration
	if getOps > 0 {
		avgGetLatency = time.Duration(m.totalGetLatency.Load() / getOps)
	}
	if setOps > 0 {
		avgSetLatency = time.Duration(m.totalSetLatency.Load() / setOps)
	}

	return MetricsSnapshot{
		Hits:              hits,
		Misses:            misses,
		Errors:            m.errors.Load(),
		HitRate:           hitRate,
		GetOperations:     getOps,
		SetOperations:     setOps,
		DeleteOperations:  m.deleteOperations.Load(),
		AvgGetLatency:     avgGetLatency,
		AvgSetLatency:     avgSetLatency,
		InvalidationCount: m.invalidationCount.Load(),
	}
}

// Reset resets all metrics counters
func (m *Metrics) Reset() {
	if m == nil {
		return
	}
	m.hits.Store(0)
	m.misses.Store(0)
	m.errors.Store(0)
	m.getOperations.Store(0)
	m.setOperations.Store(0)
	m.deleteOperations.Store(0)
	m.totalGetLatency.Store(0)
	m.totalSetLatency.Store(0)
	m.invalidationCount.Store(0)
}

// MetricsSnapshot represents a point-in-time snapshot of metrics
type MetricsSnapshot struct {
	Hits    uint64
	Misses  uint64
	Errors  uint64
	HitRate float64 // Percentage

	GetOperations    uint64
	SetOperations    uint64
	DeleteOperations uint64

	AvgGetLatency time.Duration
	AvgSetLatency time.Duration

	InvalidationCount uint64
}
