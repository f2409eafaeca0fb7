package security

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bvanengelen78/guardrail/internal/models"
)

func TestTokenBlacklist_AddAndCheck(t *testing.T) {
	clk := newTestClock()
	b := NewTokenBlacklist(clk, BlacklistConfig{MaxEntries: 10}, 4)

	require.NoError(t, b.Add("jti-1", clk.Now().Add(time.Hour)))
	assert.True(t, b.IsBlacklisted("jti-1"))
	assert.False(t, b.IsBlacklisted("jti-2"))
}

func TestTokenBlacklist_AlreadyExpiredIsNotListed(t *testing.T) {
	clk := newTestClock()
	b := NewTokenBlacklist(clk, BlacklistConfig{MaxEntries: 10}, 4)

	require.NoError(t, b.Add("stale", clk.Now().Add(-time.Millisecond)))
	assert.False(t, b.IsBlacklisted("stale"))
	assert.Equal(t, 0, b.Len(), "lazy delete on read")
}

func TestTokenBlacklist_ExpiresLazily(t *testing.T) {
	clk := newTestClock()
	b := NewTokenBlacklist(clk, BlacklistConfig{MaxEntries: 10}, 4)

	require.NoError(t, b.Add("jti", clk.Now().Add(time.Minute)))
	clk.Advance(time.Minute)
	assert.False(t, b.IsBlacklisted("jti"), "expiry <= now is absent")
}

func TestTokenBlacklist_ReAddKeepsLaterExpiry(t *testing.T) {
	clk := newTestClock()
	b := NewTokenBlacklist(clk, BlacklistConfig{MaxEntries: 10}, 4)

	require.NoError(t, b.Add("jti", clk.Now().Add(2*time.Hour)))
	require.NoError(t, b.Add("jti", clk.Now().Add(time.Minute)))
	assert.Equal(t, 1, b.Len())

	clk.Advance(time.Hour)
	assert.True(t, b.IsBlacklisted("jti"))
}

func TestTokenBlacklist_RejectsEmptyToken(t *testing.T) {
	b := NewTokenBlacklist(newTestClock(), BlacklistConfig{MaxEntries: 10}, 4)
	assert.ErrorIs(t, b.Add("", time.Now()), models.ErrInvalidConfig)
}

func TestTokenBlacklist_SweepRemovesExpired(t *testing.T) {
	clk := newTestClock()
	b := NewTokenBlacklist(clk, BlacklistConfig{MaxEntries: 10}, 4)

	require.NoError(t, b.Add("short", clk.Now().Add(time.Minute)))
	require.NoError(t, b.Add("long", clk.Now().Add(time.Hour)))

	clk.Advance(2 * time.Minute)
	expired, evicted := b.Sweep()
	assert.Equal(t, 1, expired)
	assert.Equal(t, 0, evicted)
	assert.Equal(t, 1, b.Len())
}

func TestTokenBlacklist_SweepEvictsSoonestExpiringFirst(t *testing.T) {
	clk := newTestClock()
	b := NewTokenBlacklist(clk, BlacklistConfig{MaxEntries: 3}, 4)

	for i := 5; i >= 1; i-- {
		require.NoError(t, b.Add(fmt.Sprintf("jti-%d", i), clk.Now().Add(time.Duration(i)*time.Hour)))
	}
	assert.Equal(t, 5, b.Len(), "Add never evicts")

	expired, evicted := b.Sweep()
	assert.Equal(t, 0, expired)
	assert.Equal(t, 2, evicted)
	assert.Equal(t, 3, b.Len())
	assert.False(t, b.IsBlacklisted("jti-1"))
	assert.False(t, b.IsBlacklisted("jti-2"))
	assert.True(t, b.IsBlacklisted("jti-3"))
	assert.True(t, b.IsBlacklisted("jti-4"))
	assert.True(t, b.IsBlacklisted("jti-5"))

	_, evicted = b.Sweep()
	assert.Equal(t, 0, evicted)
}

func TestTokenBlacklist_AddAtCapacityOnlyTouchesItsShard(t *testing.T) {
	clk := newTestClock()
	const capacity = 50000
	b := NewTokenBlacklist(clk, BlacklistConfig{MaxEntries: capacity}, 32)
	for i := 0; i < capacity; i++ {
		require.NoError(t, b.Add(fmt.Sprintf("fill-%d", i), clk.Now().Add(time.Hour)))
	}

	start := time.Now()
	for i := 0; i < 200; i++ {
		require.NoError(t, b.Add(fmt.Sprintf("extra-%d", i), clk.Now().Add(2*time.Hour)))
	}
	elapsed := time.Since(start)

	assert.Equal(t, capacity+200, b.Len(), "no eviction scan on the Add path")
	assert.Less(t, elapsed, 500*time.Millisecond)

	_, evicted := b.Sweep()
	assert.Equal(t, 200, evicted)
	assert.True(t, b.IsBlacklisted("extra-0"), "later expiries survive eviction")
}

func TestTokenBlacklist_ConcurrentAddCheckSweep(t *testing.T) {
	clk := newTestClock()
	b := NewTokenBlacklist(clk, BlacklistConfig{MaxEntries: 100000}, 8)

	const (
		workers = 8
		perG    = 500
	)

	var wg sync.WaitGroup
	stop := make(chan struct{})
	sweeperDone := make(chan struct{})
	go func() {
		defer close(sweeperDone)
		for {
			select {
			case <-stop:
				return
			default:
				b.Sweep()
			}
		}
	}()

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perG; i++ {
				live := fmt.Sprintf("live-%d-%d", w, i)
				assert.NoError(t, b.Add(live, clk.Now().Add(time.Hour)))
				assert.NoError(t, b.Add(fmt.Sprintf("dead-%d-%d", w, i), clk.Now().Add(-time.Second)))
				assert.True(t, b.IsBlacklisted(live), "a sweep must not drop a live write")
			}
		}(w)
	}
	wg.Wait()
	close(stop)
	<-sweeperDone

	b.Sweep()
	assert.Equal(t, workers*perG, b.Len())
	assert.Equal(t, workers*perG, b.entries.len(), "size counter matches stored entries")
}
