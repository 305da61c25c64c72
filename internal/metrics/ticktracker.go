package metrics

import (
	"math"
	"sort"
	"sync"
	"time"
)

// TickTracker records engine tick durations in a circular buffer and
// computes percentiles for the admin status endpoint. Thread-safe.
type TickTracker struct {
	mu      sync.Mutex
	samples []float64 // tick durations in ms
	pos     int
	count   int
	cap     int
}

// NewTickTracker creates a tracker holding the last capacity samples.
// The default capacity covers a full day of minute ticks.
func NewTickTracker(capacity int) *TickTracker {
	if capacity <= 0 {
		capacity = 1440
	}
	return &TickTracker{
		samples: make([]float64, capacity),
		cap:     capacity,
	}
}

// Record adds one tick duration.
func (t *TickTracker) Record(d time.Duration) {
	ms := float64(d.Microseconds()) / 1000.0
	t.mu.Lock()
	t.samples[t.pos] = ms
	t.pos = (t.pos + 1) % t.cap
	if t.count < t.cap {
		t.count++
	}
	t.mu.Unlock()
}

// Percentiles returns p50, p95, p99 tick duration in milliseconds.
// Returns (0, 0, 0) before the first tick.
func (t *TickTracker) Percentiles() (p50, p95, p99 float64) {
	t.mu.Lock()
	n := t.count
	if n == 0 {
		t.mu.Unlock()
		return 0, 0, 0
	}

	sorted := make([]float64, n)
	if n == t.cap {
		copy(sorted, t.samples[t.pos:])
		copy(sorted[t.cap-t.pos:], t.samples[:t.pos])
	} else {
		copy(sorted, t.samples[:n])
	}
	t.mu.Unlock()

	sort.Float64s(sorted)

	p50 = percentile(sorted, 0.50)
	p95 = percentile(sorted, 0.95)
	p99 = percentile(sorted, 0.99)
	return
}

// Count returns the number of samples recorded (up to capacity).
func (t *TickTracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.count
}

// percentile computes the p-th percentile (0.0-1.0) of a sorted slice.
func percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return sorted[0]
	}
	rank := p * float64(n-1)
	lower := int(math.Floor(rank))
	upper := lower + 1
	if upper >= n {
		return sorted[n-1]
	}
	frac := rank - float64(lower)
	return sorted[lower]*(1-frac) + sorted[upper]*frac
}
