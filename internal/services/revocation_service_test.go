package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bvanengelen78/guardrail/internal/models"
)

func TestRevocationService_RevokeWritesThrough(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	expiry := testEpoch.Add(10 * time.Minute)

	require.NoError(t, f.revocations.Revoke(ctx, "jti-1", "user-1", expiry, "logout"))

	assert.True(t, f.revocations.IsBlacklisted("jti-1"))
	stored, ok := f.repo.tokens["jti-1"]
	require.True(t, ok)
	assert.Equal(t, "user-1", stored.UserID)
	assert.Equal(t, expiry, stored.ExpiresAt)
	assert.Equal(t, testEpoch, stored.RevokedAt)
}

func TestRevocationService_PersistenceFailureKeepsMemoryRevocation(t *testing.T) {
	f := newFixture(t, nil)
	f.repo.err = errors.New("connection refused")

	err := f.revocations.Revoke(context.Background(), "jti-1", "user-1", testEpoch.Add(time.Minute), "logout")
	require.NoError(t, err)
	assert.True(t, f.revocations.IsBlacklisted("jti-1"))
}

func TestRevocationService_RejectsEmptyID(t *testing.T) {
	f := newFixture(t, nil)

	err := f.revocations.Revoke(context.Background(), "", "user-1", testEpoch.Add(time.Minute), "logout")
	assert.ErrorIs(t, err, models.ErrInvalidConfig)
	assert.Empty(t, f.repo.tokens)
}

func TestRevocationService_Restore(t *testing.T) {
	f := newFixture(t, nil)
	f.repo.tokens["live"] = models.RevokedToken{JTI: "live", ExpiresAt: testEpoch.Add(time.Hour)}
	f.repo.tokens["dead"] = models.RevokedToken{JTI: "dead", ExpiresAt: testEpoch.Add(-time.Hour)}

	n, err := f.revocations.Restore(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.True(t, f.revocations.IsBlacklisted("live"))
	assert.False(t, f.revocations.IsBlacklisted("dead"))
}

func TestRevocationService_RestoreSurfacesRepoError(t *testing.T) {
	f := newFixture(t, nil)
	f.repo.err = errors.New("boom")

	_, err := f.revocations.Restore(context.Background())
	assert.Error(t, err)
}

func TestRevocationService_SweeperDeletesExpiredRows(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	require.NoError(t, f.revocations.Revoke(ctx, "jti-1", "u", testEpoch.Add(time.Minute), "logout"))
	require.NoError(t, f.revocations.Revoke(ctx, "jti-2", "u", testEpoch.Add(time.Hour), "logout"))

	f.clock.Advance(2 * time.Minute)
	sw := f.revocations.Sweeper()
	assert.Equal(t, "revoked_tokens", sw.Name())

	n, err := sw.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Len(t, f.repo.tokens, 1)
}

func TestRevocationService_WithoutRepository(t *testing.T) {
	f := newFixture(t, nil)
	svc := NewRevocationService(f.guard.Blacklist(), nil, f.clock, nil, nil, discardLogger())

	n, err := svc.Restore(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	swept, err := svc.Sweeper().Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, swept)
}
