package aiservice

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// PerformanceMetric is a snapshot of one category:provider:model key.
// TotalDurationSuccessful only counts successful attempts.
type PerformanceMetric struct {
	Key                     string        `json:"key"`
	Category                string        `json:"category"`
	Provider                string        `json:"provider"`
	Model                   string        `json:"model"`
	TotalCalls              int64         `json:"total_calls"`
	SuccessfulCalls         int64         `json:"successful_calls"`
	TotalDurationSuccessful time.Duration `json:"total_duration_successful"`
	SuccessRate             float64       `json:"success_rate"`
	AverageLatency          time.Duration `json:"average_latency"`
	P50                     time.Duration `json:"p50"`
	P95                     time.Duration `json:"p95"`
	LastError               string        `json:"last_error,omitempty"`
}

const latencyWindowSize = 100

type performanceEntry struct {
	totalCalls      int64
	successfulCalls int64
	totalDuration   time.Duration

	// Latency ring buffer of the last latencyWindowSize successes.
	latencies [latencyWindowSize]time.Duration
	latCount  int
	latIdx    int

	lastError string
}

// PerformanceTracker accumulates per-key call outcomes for the process
// lifetime.
type PerformanceTracker struct {
	mu      sync.RWMutex
	entries map[string]*performanceEntry
}

// NewPerformanceTracker creates an empty tracker.
func NewPerformanceTracker() *PerformanceTracker {
	return &PerformanceTracker{entries: make(map[string]*performanceEntry)}
}

// RecordSuccess counts a successful attempt and its duration.
func (t *PerformanceTracker) RecordSuccess(key string, d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e := t.getOrCreate(key)
	e.totalCalls++
	e.successfulCalls++
	e.totalDuration += d
	e.latencies[e.latIdx] = d
	e.latIdx = (e.latIdx + 1) % latencyWindowSize
	if e.latCount < latencyWindowSize {
		e.latCount++
	}
}

// RecordFailure counts a failed attempt. Its duration is not recorded.
func (t *PerformanceTracker) RecordFailure(key string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e := t.getOrCreate(key)
	e.totalCalls++
	if err != nil {
		e.lastError = err.Error()
	}
}

// Get returns the snapshot for key.
func (t *PerformanceTracker) Get(key string) (PerformanceMetric, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.entries[key]
	if !ok {
		return PerformanceMetric{}, false
	}
	return buildMetric(key, e), true
}

// Snapshot returns every tracked key, sorted.
func (t *PerformanceTracker) Snapshot() []PerformanceMetric {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]PerformanceMetric, 0, len(t.entries))
	for key, e := range t.entries {
		out = append(out, buildMetric(key, e))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func buildMetric(key string, e *performanceEntry) PerformanceMetric {
	m := PerformanceMetric{
		Key:                     key,
		TotalCalls:              e.totalCalls,
		SuccessfulCalls:         e.successfulCalls,
		TotalDurationSuccessful: e.totalDuration,
		LastError:               e.lastError,
	}
	if parts := strings.SplitN(key, ":", 3); len(parts) == 3 {
		m.Category, m.Provider, m.Model = parts[0], parts[1], parts[2]
	}
	if e.totalCalls > 0 {
		m.SuccessRate = float64(e.successfulCalls) / float64(e.totalCalls)
	}
	if e.successfulCalls > 0 {
		m.AverageLatency = e.totalDuration / time.Duration(e.successfulCalls)
	}
	if e.latCount > 0 {
		buf := make([]time.Duration, e.latCount)
		copy(buf, e.latencies[:e.latCount])
		sort.Slice(buf, func(i, j int) bool { return buf[i] < buf[j] })
		m.P50 = percentile(buf, 0.50)
		m.P95 = percentile(buf, 0.95)
	}
	return m
}

// percentile returns the value at p (0-1) from a sorted slice.
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(p * float64(len(sorted)-1))
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// getOrCreate returns the entry for key. Caller must hold Lock.
func (t *PerformanceTracker) getOrCreate(key string) *performanceEntry {
	if e, ok := t.entries[key]; ok {
		return e
	}
	e := &performanceEntry{}
	t.entries[key] = e
	return e
}
