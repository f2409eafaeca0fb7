package security

import (
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bvanengelen78/guardrail/internal/clock"
	"github.com/bvanengelen78/guardrail/internal/models"
)

// TokenBlacklist is a bounded set of revoked token identifiers. Entries at
// or past their expiry are treated as absent even before a sweep runs.
type TokenBlacklist struct {
	entries *shardedMap[time.Time]
	size    atomic.Int64
	evictMu sync.Mutex
	config  BlacklistConfig
	clock   clock.Clock
}

// NewTokenBlacklist creates a TokenBlacklist
func NewTokenBlacklist(clk clock.Clock, config BlacklistConfig, shards int) *TokenBlacklist {
	return &TokenBlacklist{
		entries: newShardedMap[time.Time](shards),
		config:  config,
		clock:   clk,
	}
}

// Add revokes token until expiry. Re-adding keeps the later expiry. Add only
// touches the token's shard; capacity is enforced by Sweep.
func (b *TokenBlacklist) Add(token string, expiry time.Time) error {
	if token == "" {
		return fmt.Errorf("%w: empty token identifier", models.ErrInvalidConfig)
	}

	b.entries.with(token, func(items map[string]time.Time) {
		current, ok := items[token]
		if !ok {
			b.size.Add(1)
		} else if current.After(expiry) {
			return
		}
		items[token] = expiry
	})
	return nil
}

// IsBlacklisted reports whether token is revoked, deleting it if expired
func (b *TokenBlacklist) IsBlacklisted(token string) bool {
	now := b.clock.Now()
	listed := false

	b.entries.with(token, func(items map[string]time.Time) {
		expiry, ok := items[token]
		if !ok {
			return
		}
		if !expiry.After(now) {
			delete(items, token)
			b.size.Add(-1)
			return
		}
		listed = true
	})

	return listed
}

// Sweep removes expired entries, then evicts the soonest-expiring entries
// until the set is within capacity.
func (b *TokenBlacklist) Sweep() (expired, evicted int) {
	now := b.clock.Now()
	expired = b.entries.sweep(func(_ string, expiry time.Time) bool {
		return !expiry.After(now)
	})
	b.size.Add(-int64(expired))

	evicted = b.evictOverflow()
	return expired, evicted
}

type blacklistEntry struct {
	token  string
	expiry time.Time
}

// evictOverflow drops the soonest-expiring entries beyond capacity. An
// entry whose expiry changed since it was collected is left alone.
func (b *TokenBlacklist) evictOverflow() int {
	b.evictMu.Lock()
	defer b.evictMu.Unlock()

	over := int(b.size.Load()) - b.config.MaxEntries
	if over <= 0 {
		return 0
	}

	all := make([]blacklistEntry, 0, b.size.Load())
	b.entries.each(func(token string, expiry time.Time) {
		all = append(all, blacklistEntry{token: token, expiry: expiry})
	})
	slices.SortFunc(all, func(a, c blacklistEntry) int {
		return a.expiry.Compare(c.expiry)
	})

	evicted := 0
	for _, e := range all {
		if evicted >= over {
			break
		}
		b.entries.with(e.token, func(items map[string]time.Time) {
			if current, ok := items[e.token]; ok && current.Equal(e.expiry) {
				delete(items, e.token)
				b.size.Add(-1)
				evicted++
			}
		})
	}
	return evicted
}

// Len returns the number of stored entries, including expired ones not yet swept
func (b *TokenBlacklist) Len() int {
	return int(b.size.Load())
}
