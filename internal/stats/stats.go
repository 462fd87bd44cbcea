// Package stats accumulates request outcome counters and recent latencies.
package stats

import (
	"sync"
	"time"
)

// Snapshot is a point-in-time view of the accumulator.
type Snapshot struct {
	TotalRequests       int64   `json:"total_requests"`
	SuccessfulRequests  int64   `json:"successful_requests"`
	FailedRequests      int64   `json:"failed_requests"`
	AverageResponseTime float64 `json:"average_response_time"`
	Uptime              float64 `json:"uptime"`
}

// Tracker counts requests and keeps a ring of the most recent latencies.
type Tracker struct {
	mu         sync.Mutex
	total      int64
	successful int64
	failed     int64
	samples    []time.Duration
	next       int
	filled     bool
	startedAt  time.Time
	now        func() time.Time
}

// NewTracker creates a tracker retaining up to capacity latency samples.
func NewTracker(capacity int) *Tracker {
	if capacity <= 0 {
		capacity = 1
	}
	return &Tracker{
		samples:   make([]time.Duration, capacity),
		startedAt: time.Now(),
		now:       time.Now,
	}
}

// Record counts a completed response. Statuses in [200, 400) are successes.
func (t *Tracker) Record(status int, latency time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.total++
	if status >= 200 && status < 400 {
		t.successful++
	} else {
		t.failed++
	}
	t.samples[t.next] = latency
	t.next++
	if t.next == len(t.samples) {
		t.next = 0
		t.filled = true
	}
}

// RecordError counts a failure that produced no status code.
func (t *Tracker) RecordError() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.total++
	t.failed++
}

// Snapshot returns current counters. The average covers retained samples only.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	count := t.next
	if t.filled {
		count = len(t.samples)
	}
	var avgMS float64
	if count > 0 {
		var sum time.Duration
		for i := 0; i < count; i++ {
			sum += t.samples[i]
		}
		avgMS = float64(sum) / float64(count) / float64(time.Millisecond)
	}
	return Snapshot{
		TotalRequests:       t.total,
		SuccessfulRequests:  t.successful,
		FailedRequests:      t.failed,
		AverageResponseTime: avgMS,
		Uptime:              t.now().Sub(t.startedAt).Seconds(),
	}
}

// SampleCount returns the number of retained latency samples.
func (t *Tracker) SampleCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.filled {
		return len(t.samples)
	}
	return t.next
}

// Reset clears counters and samples and restarts the uptime clock.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.total, t.successful, t.failed = 0, 0, 0
	t.samples = make([]time.Duration, len(t.samples))
	t.next = 0
	t.filled = false
	t.startedAt = t.now()
}
