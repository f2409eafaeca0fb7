package security

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/bvanengelen78/guardrail/internal/clock"
	"github.com/bvanengelen78/guardrail/internal/models"
)

type lockoutRecord struct {
	attempts     int
	lockedUntil  time.Time
	lockoutCount int
	lastFailure  time.Time
	lockEnd      time.Time // end of the most recent lockout, kept across Clear
}

func (r *lockoutRecord) lockedAt(now time.Time) bool {
	return !r.lockedUntil.IsZero() && !now.After(r.lockedUntil)
}

func (r *lockoutRecord) status(now time.Time) models.LockoutStatus {
	st := models.LockoutStatus{
		Attempts:     r.attempts,
		LockoutCount: r.lockoutCount,
	}
	if r.lockedAt(now) {
		st.Locked = true
		st.LockoutUntil = r.lockedUntil
	}
	return st
}

// LockoutTracker counts failed attempts per (type, identifier) and locks
// identifiers that exceed the threshold.
type LockoutTracker struct {
	records *shardedMap[*lockoutRecord]
	config  LockoutConfig
	clock   clock.Clock
	logger  *slog.Logger
}

// NewLockoutTracker creates a LockoutTracker
func NewLockoutTracker(clk clock.Clock, config LockoutConfig, shards int, logger *slog.Logger) *LockoutTracker {
	return &LockoutTracker{
		records: newShardedMap[*lockoutRecord](shards),
		config:  config,
		clock:   clk,
		logger:  logger,
	}
}

func lockoutKey(t models.LockoutType, identifier string) string {
	return pairKey(string(t), identifier)
}

func checkLockoutType(t models.LockoutType) error {
	if !t.Valid() {
		return fmt.Errorf("%w: unknown lockout type %q", models.ErrInvalidConfig, t)
	}
	return nil
}

// RecordFailure records a failed attempt. Failures recorded while the
// identifier is locked do not accumulate.
func (lt *LockoutTracker) RecordFailure(t models.LockoutType, identifier string) (models.LockoutStatus, error) {
	if err := checkLockoutType(t); err != nil {
		return models.LockoutStatus{}, err
	}

	now := lt.clock.Now()
	k := lockoutKey(t, identifier)
	var st models.LockoutStatus

	lt.records.with(k, func(items map[string]*lockoutRecord) {
		r, ok := items[k]
		if !ok {
			r = &lockoutRecord{}
			items[k] = r
		}

		if r.attempts < 0 {
			lt.reportInconsistency(t, identifier, r.attempts)
			lt.lock(r, now)
			st = r.status(now)
			return
		}

		if r.lockedAt(now) {
			st = r.status(now)
			return
		}

		if r.attempts > 0 && now.Sub(r.lastFailure) > lt.config.AttemptWindow {
			r.attempts = 0
		}

		r.attempts++
		r.lastFailure = now
		if r.attempts >= lt.config.MaxFailedAttempts {
			lt.lock(r, now)
		}
		st = r.status(now)
	})

	return st, nil
}

// lock transitions r to locked; attempts restart from zero
func (lt *LockoutTracker) lock(r *lockoutRecord, now time.Time) {
	r.lockoutCount++
	r.attempts = 0
	r.lockedUntil = now.Add(lt.durationFor(r.lockoutCount))
	r.lockEnd = r.lockedUntil
}

// durationFor returns base * 2^(count-1) capped at the maximum when
// progressive lockout is enabled, otherwise the base duration.
func (lt *LockoutTracker) durationFor(count int) time.Duration {
	base := lt.config.LockoutDuration
	if !lt.config.ProgressiveLockout || count <= 1 {
		return base
	}
	d := base
	for i := 1; i < count; i++ {
		d *= 2
		if d >= lt.config.MaxLockoutDuration || d <= 0 {
			return lt.config.MaxLockoutDuration
		}
	}
	return d
}

// IsLocked reports the lock state of (type, identifier)
func (lt *LockoutTracker) IsLocked(t models.LockoutType, identifier string) (models.LockoutStatus, error) {
	if err := checkLockoutType(t); err != nil {
		return models.LockoutStatus{}, err
	}

	now := lt.clock.Now()
	k := lockoutKey(t, identifier)
	var st models.LockoutStatus

	lt.records.with(k, func(items map[string]*lockoutRecord) {
		r, ok := items[k]
		if !ok {
			return
		}
		if r.attempts < 0 {
			lt.reportInconsistency(t, identifier, r.attempts)
			lt.lock(r, now)
		}
		st = r.status(now)
	})

	return st, nil
}

// Clear unlocks (type, identifier) and resets its attempts. The cumulative
// lockout count is kept so later lockouts still grow.
func (lt *LockoutTracker) Clear(t models.LockoutType, identifier string) error {
	if err := checkLockoutType(t); err != nil {
		return err
	}

	k := lockoutKey(t, identifier)
	lt.records.with(k, func(items map[string]*lockoutRecord) {
		r, ok := items[k]
		if !ok {
			return
		}
		if r.lockoutCount == 0 {
			delete(items, k)
			return
		}
		r.attempts = 0
		r.lockedUntil = time.Time{}
	})

	return nil
}

func (lt *LockoutTracker) reportInconsistency(t models.LockoutType, identifier string, attempts int) {
	lt.logger.Error("lockout record inconsistent, treating as locked",
		slog.String("type", string(t)),
		slog.String("identifier", identifier),
		slog.Int("attempts", attempts),
		slog.Any("error", models.ErrInternalInconsistency))
}

// Sweep drops records that are unlocked, hold no live attempts and whose
// lockout history has aged out.
func (lt *LockoutTracker) Sweep() int {
	now := lt.clock.Now()
	return lt.records.sweep(func(_ string, r *lockoutRecord) bool {
		if r.attempts < 0 || r.lockedAt(now) {
			return false
		}
		if r.attempts > 0 && now.Sub(r.lastFailure) <= lt.config.AttemptWindow {
			return false
		}
		if r.lockoutCount > 0 && now.Sub(r.lockEnd) <= lt.config.LockoutMemory {
			return false
		}
		return true
	})
}

// Len returns the number of records and how many are currently locked
func (lt *LockoutTracker) Len() (records, locked int) {
	now := lt.clock.Now()
	lt.records.each(func(_ string, r *lockoutRecord) {
		records++
		if r.lockedAt(now) {
			locked++
		}
	})
	return records, locked
}
