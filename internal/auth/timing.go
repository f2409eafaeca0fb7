package auth

import (
	"crypto/rand"
	"encoding/binary"
	"time"
)

// TimingDelay pads failed authentications to a common minimum duration so
// that an unknown account and a wrong password take about the same time.
type TimingDelay struct {
	base   time.Duration
	jitter time.Duration
	sleep  func(time.Duration)
}

// NewTimingDelay creates a new TimingDelay
func NewTimingDelay(base, jitter time.Duration) *TimingDelay {
	return &TimingDelay{base: base, jitter: jitter, sleep: time.Sleep}
}

// cryptoRandDuration returns a random duration in [0, max)
func cryptoRandDuration(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0
	}
	return time.Duration(binary.BigEndian.Uint64(b[:]) % uint64(max))
}

// WaitFrom sleeps until at least base plus a random jitter has elapsed since start
func (td *TimingDelay) WaitFrom(start time.Time) {
	if td == nil {
		return
	}
	target := td.base + cryptoRandDuration(td.jitter)
	if elapsed := time.Since(start); elapsed < target {
		td.sleep(target - elapsed)
	}
}
