package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bvanengelen78/guardrail/internal/clock"
	"github.com/bvanengelen78/guardrail/internal/models"
)

const testSecret = "test-secret-32-characters-long!!"

var testEpoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestTokenManager_RoundTrip(t *testing.T) {
	clk := clock.NewFake(testEpoch)
	tm := NewTokenManager(testSecret, 15*time.Minute, clk)

	token, issued, err := tm.GenerateAccessToken("user-1", "sess-1")
	require.NoError(t, err)
	assert.NotEmpty(t, issued.ID)
	assert.Equal(t, testEpoch.Add(15*time.Minute), issued.ExpiresAt.Time)

	claims, err := tm.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "sess-1", claims.SessionID)
	assert.Equal(t, issued.ID, claims.ID)
}

func TestTokenManager_UniqueJTI(t *testing.T) {
	tm := NewTokenManager(testSecret, time.Minute, clock.NewFake(testEpoch))

	_, a, err := tm.GenerateAccessToken("u", "s")
	require.NoError(t, err)
	_, b, err := tm.GenerateAccessToken("u", "s")
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestTokenManager_Expired(t *testing.T) {
	clk := clock.NewFake(testEpoch)
	tm := NewTokenManager(testSecret, 15*time.Minute, clk)

	token, _, err := tm.GenerateAccessToken("u", "s")
	require.NoError(t, err)

	clk.Advance(16 * time.Minute)
	_, err = tm.ValidateToken(token)
	assert.ErrorIs(t, err, models.ErrUnauthorized)
}

func TestTokenManager_RejectsForeignTokens(t *testing.T) {
	clk := clock.NewFake(testEpoch)
	tm := NewTokenManager(testSecret, 15*time.Minute, clk)

	other := NewTokenManager("a-different-secret-of-32-chars!!", 15*time.Minute, clk)
	token, _, err := other.GenerateAccessToken("u", "s")
	require.NoError(t, err)
	_, err = tm.ValidateToken(token)
	assert.ErrorIs(t, err, models.ErrUnauthorized, "wrong signature")

	noSession := jwt.NewWithClaims(jwt.SigningMethodHS256, &models.TokenClaims{
		Type:   models.TokenTypeAccess,
		UserID: "u",
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        "jti",
			Issuer:    issuer,
			ExpiresAt: jwt.NewNumericDate(testEpoch.Add(time.Hour)),
		},
	})
	signed, err := noSession.SignedString([]byte(testSecret))
	require.NoError(t, err)
	_, err = tm.ValidateToken(signed)
	assert.ErrorIs(t, err, models.ErrUnauthorized, "missing session id")

	none := jwt.NewWithClaims(jwt.SigningMethodNone, &models.TokenClaims{})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = tm.ValidateToken(unsigned)
	assert.ErrorIs(t, err, models.ErrUnauthorized, "alg none")
}
