package security

import (
	"math"
	"time"

	"github.com/bvanengelen78/guardrail/internal/clock"
)

type penalty struct {
	violations int
	delay      time.Duration
	resetAt    time.Time
}

// PenaltyLedger escalates the delay imposed on keys that keep hitting rate limits
type PenaltyLedger struct {
	entries *shardedMap[*penalty]
	config  PenaltyConfig
	clock   clock.Clock
}

// NewPenaltyLedger creates a PenaltyLedger
func NewPenaltyLedger(clk clock.Clock, config PenaltyConfig, shards int) *PenaltyLedger {
	return &PenaltyLedger{
		entries: newShardedMap[*penalty](shards),
		config:  config,
		clock:   clk,
	}
}

// Penalize records a violation for (endpoint, key) and returns the next delay.
// The quiet epoch starts at the first violation and is not extended by later
// ones, so a sustained offender keeps climbing until the epoch ends.
func (pl *PenaltyLedger) Penalize(endpoint, key string) time.Duration {
	now := pl.clock.Now()
	k := pairKey(endpoint, key)
	var delay time.Duration

	pl.entries.with(k, func(items map[string]*penalty) {
		p, ok := items[k]
		if !ok || !now.Before(p.resetAt) {
			p = &penalty{resetAt: now.Add(pl.config.QuietPeriod)}
			items[k] = p
		}
		p.violations++
		p.delay = pl.delayFor(p.violations)
		delay = p.delay
	})

	return delay
}

// Peek returns the current delay for (endpoint, key) without recording a violation
func (pl *PenaltyLedger) Peek(endpoint, key string) time.Duration {
	now := pl.clock.Now()
	k := pairKey(endpoint, key)
	var delay time.Duration

	pl.entries.with(k, func(items map[string]*penalty) {
		if p, ok := items[k]; ok && now.Before(p.resetAt) {
			delay = p.delay
		}
	})

	return delay
}

// delayFor computes min(base * multiplier^violations, max) in constant time
func (pl *PenaltyLedger) delayFor(violations int) time.Duration {
	d := float64(pl.config.BaseDelay) * math.Pow(pl.config.Multiplier, float64(violations))
	if math.IsInf(d, 0) || math.IsNaN(d) || d >= float64(pl.config.MaxDelay) {
		return pl.config.MaxDelay
	}
	return time.Duration(d)
}

// Sweep removes entries whose quiet epoch has ended
func (pl *PenaltyLedger) Sweep() int {
	now := pl.clock.Now()
	return pl.entries.sweep(func(_ string, p *penalty) bool {
		return !now.Before(p.resetAt)
	})
}

// Len returns the number of tracked penalties
func (pl *PenaltyLedger) Len() int {
	return pl.entries.len()
}
