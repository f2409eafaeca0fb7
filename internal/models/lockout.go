package models

import "time"

// LockoutType scopes a lockout record to the kind of identifier being tracked
type LockoutType string

const (
	LockoutTypeUser LockoutType = "user"
	LockoutTypeIP   LockoutType = "ip"
)

// Valid reports whether t is a recognised lockout type
func (t LockoutType) Valid() bool {
	return t == LockoutTypeUser || t == LockoutTypeIP
}

// LockoutStatus reports whether an identifier is currently blocked
type LockoutStatus struct {
	Locked       bool
	LockoutUntil time.Time // zero when not locked
	Attempts     int       // failures recorded since the last lockout or clear
	LockoutCount int       // cumulative number of lockouts
}

// RetryAfter returns the remaining lock duration relative to now
func (s LockoutStatus) RetryAfter(now time.Time) time.Duration {
	if !s.Locked || !s.LockoutUntil.After(now) {
		return 0
	}
	return s.LockoutUntil.Sub(now)
}

// RetryAfterSeconds rounds the remaining lock up to whole seconds. A locked
// status always reports at least one second.
func (s LockoutStatus) RetryAfterSeconds(now time.Time) int {
	if !s.Locked {
		return 0
	}
	d := s.RetryAfter(now)
	secs := int((d + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}
