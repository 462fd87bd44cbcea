package ratelimit

import "time"

// Result describes the outcome of a rate limit check.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	// RetryAfter is the whole number of seconds until the identity may retry.
	// It is zero for admitted requests and at least one for rejected ones.
	RetryAfter int
	Window     time.Duration
}

// Reset returns the moment a rejected identity regains capacity.
func (r Result) Reset(now time.Time) time.Time {
	return now.Add(time.Duration(r.RetryAfter) * time.Second)
}

// Limiter provides rate limit checks.
type Limiter interface {
	Admit(identity string, now time.Time) Result
}
