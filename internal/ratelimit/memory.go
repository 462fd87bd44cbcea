package ratelimit

import (
	"math"
	"sync"
	"time"
)

// Ledger implements a trailing-window in-memory rate limiter. Each identity
// maps to the ordered timestamps of its admitted requests inside the window.
type Ledger struct {
	mu            sync.Mutex
	entries       map[string][]time.Time
	limit         int
	window        time.Duration
	maxIdentities int
}

// NewLedger constructs a Ledger admitting limit requests per window.
// maxIdentities bounds the tracked identities; zero or less means unbounded.
func NewLedger(limit int, window time.Duration, maxIdentities int) *Ledger {
	return &Ledger{
		entries:       make(map[string][]time.Time),
		limit:         limit,
		window:        window,
		maxIdentities: maxIdentities,
	}
}

// Limit returns the number of requests admitted per window.
func (l *Ledger) Limit() int { return l.limit }

// Window returns the trailing window length.
func (l *Ledger) Window() time.Duration { return l.window }

// Admit records a request from identity at now if it fits in the window.
// Pruning, the decision and the append happen under a single lock.
func (l *Ledger) Admit(identity string, now time.Time) Result {
	result := Result{Limit: l.limit, Window: l.window}
	if l.limit <= 0 {
		result.Allowed = true
		return result
	}
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	stamps, tracked := l.entries[identity]
	stamps = prune(stamps, cutoff)

	if len(stamps) >= l.limit {
		l.entries[identity] = stamps
		result.RetryAfter = retryAfter(stamps[0].Add(l.window).Sub(now))
		return result
	}

	if !tracked && l.maxIdentities > 0 && len(l.entries) >= l.maxIdentities {
		l.evictIdle(cutoff)
	}
	stamps = append(stamps, now)
	l.entries[identity] = stamps

	result.Allowed = true
	result.Remaining = l.limit - len(stamps)
	return result
}

// Identities returns the number of tracked identities.
func (l *Ledger) Identities() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Reset drops every tracked identity.
func (l *Ledger) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = make(map[string][]time.Time)
}

// evictIdle prunes every identity and removes the ones left empty.
// Callers must hold l.mu.
func (l *Ledger) evictIdle(cutoff time.Time) {
	for identity, stamps := range l.entries {
		stamps = prune(stamps, cutoff)
		if len(stamps) == 0 {
			delete(l.entries, identity)
			continue
		}
		l.entries[identity] = stamps
	}
}

// prune drops timestamps at or before cutoff. Stamps are in admission order.
func prune(stamps []time.Time, cutoff time.Time) []time.Time {
	idx := 0
	for idx < len(stamps) && !stamps[idx].After(cutoff) {
		idx++
	}
	if idx == 0 {
		return stamps
	}
	return append(stamps[:0], stamps[idx:]...)
}

func retryAfter(d time.Duration) int {
	seconds := int(math.Ceil(d.Seconds()))
	if seconds < 1 {
		return 1
	}
	return seconds
}
