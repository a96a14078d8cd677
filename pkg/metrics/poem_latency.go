// Package metrics provides latency tracking with percentile calculations.
package metrics

import (
	"sort"
	"sync"
	"time"
)

// =============================================================================
// Latency Tracker
// =============================================================================

// LatencyTracker keeps the most recent latencies in a ring buffer.
type LatencyTracker struct {
	mu      sync.Mutex
	samples []time.Duration
	next    int
	full    bool
	total   int64
	errors  int64
}

// NewLatencyTracker creates a tracker that keeps windowSize samples.
func NewLatencyTracker(windowSize int) *LatencyTracker {
	if windowSize <= 0 {
		windowSize = 1000
	}
	return &LatencyTracker{samples: make([]time.Duration, windowSize)}
}

// Record adds one successful measurement.
func (lt *LatencyTracker) Record(d time.Duration) {
	lt.mu.Lock()
	defer lt.mu.Unlock()

	lt.samples[lt.next] = d
	lt.next++
	if lt.next == len(lt.samples) {
		lt.next = 0
		lt.full = true
	}
	lt.total++
}

// RecordError counts a failed call without a latency sample.
func (lt *LatencyTracker) RecordError() {
	lt.mu.Lock()
	lt.errors++
	lt.mu.Unlock()
}

// Stats returns statistics over the current window. Count and Errors are lifetime totals.
func (lt *LatencyTracker) Stats() LatencyStats {
	lt.mu.Lock()
	n := lt.next
	if lt.full {
		n = len(lt.samples)
	}
	window := make([]time.Duration, n)
	copy(window, lt.samples[:n])
	stats := LatencyStats{Count: lt.total, Errors: lt.errors, Samples: n}
	lt.mu.Unlock()

	if n == 0 {
		return stats
	}

	sort.Slice(window, func(i, j int) bool { return window[i] < window[j] })

	var sum time.Duration
	for _, v := range window {
		sum += v
	}

	stats.Min = window[0]
	stats.Max = window[n-1]
	stats.Avg = sum / time.Duration(n)
	stats.P50 = percentile(window, 0.50)
	stats.P90 = percentile(window, 0.90)
	stats.P95 = percentile(window, 0.95)
	stats.P99 = percentile(window, 0.99)
	return stats
}

// percentile expects sorted input.
func percentile(sorted []time.Duration, p float64) time.Duration {
	idx := int(float64(len(sorted)-1) * p)
	return sorted[idx]
}

// Reset clears the window and counters.
func (lt *LatencyTracker) Reset() {
	lt.mu.Lock()
	defer lt.mu.Unlock()

	lt.next = 0
	lt.full = false
	lt.total = 0
	lt.errors = 0
}

// LatencyStats holds latency statistics.
type LatencyStats struct {
	Count   int64
	Errors  int64
	Min     time.Duration
	Max     time.Duration
	Avg     time.Duration
	P50     time.Duration
	P90     time.Duration
	P95     time.Duration
	P99     time.Duration
	Samples int
}

func millis(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}

// ToMap renders the stats with millisecond values for JSON output.
func (s LatencyStats) ToMap() map[string]any {
	return map[string]any{
		"count":       s.Count,
		"errors":      s.Errors,
		"min_ms":      millis(s.Min),
		"max_ms":      millis(s.Max),
		"avg_ms":      millis(s.Avg),
		"p50_ms":      millis(s.P50),
		"p90_ms":      millis(s.P90),
		"p95_ms":      millis(s.P95),
		"p99_ms":      millis(s.P99),
		"sample_size": s.Samples,
	}
}

// =============================================================================
// Per-route registry
// =============================================================================

// LatencyRegistry holds one tracker per name, created on first use.
type LatencyRegistry struct {
	mu       sync.RWMutex
	trackers map[string]*LatencyTracker
	window   int
}

// NewLatencyRegistry creates an empty registry.
func NewLatencyRegistry(windowSize int) *LatencyRegistry {
	return &LatencyRegistry{
		trackers: make(map[string]*LatencyTracker),
		window:   windowSize,
	}
}

// Tracker returns the tracker for name.
func (r *LatencyRegistry) Tracker(name string) *LatencyTracker {
	r.mu.RLock()
	tracker, ok := r.trackers[name]
	r.mu.RUnlock()
	if ok {
		return tracker
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if tracker, ok = r.trackers[name]; !ok {
		tracker = NewLatencyTracker(r.window)
		r.trackers[name] = tracker
	}
	return tracker
}

// Record adds a measurement for name.
func (r *LatencyRegistry) Record(name string, d time.Duration) {
	r.Tracker(name).Record(d)
}

// AllStats returns a snapshot of every tracker.
func (r *LatencyRegistry) AllStats() map[string]LatencyStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make(map[string]LatencyStats, len(r.trackers))
	for name, tracker := range r.trackers {
		result[name] = tracker.Stats()
	}
	return result
}
