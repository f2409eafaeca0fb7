package models

import "time"

// RateLimitDecision is the outcome of a sliding-window rate limit check
type RateLimitDecision struct {
	Allowed    bool
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration // zero when allowed
	Penalty    time.Duration // escalating delay for repeat violators, set by the guard
}

// RetryAfterSeconds rounds RetryAfter up to whole seconds for Retry-After headers
func (d RateLimitDecision) RetryAfterSeconds() int {
	if d.RetryAfter <= 0 {
		return 0
	}
	secs := int(d.RetryAfter / time.Second)
	if d.RetryAfter%time.Second != 0 {
		secs++
	}
	return secs
}

// RateLimitRule describes a per-endpoint window
type RateLimitRule struct {
	Window      time.Duration
	MaxRequests int
}
