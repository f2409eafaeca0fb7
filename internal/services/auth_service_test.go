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

func loginReq(password string) LoginRequest {
	return LoginRequest{
		Email:     "  Admin@Example.com ",
		Password:  password,
		IPAddress: "10.0.0.1",
		UserAgent: "test-agent",
	}
}

func TestAuthService_LoginSuccess(t *testing.T) {
	f := newFixture(t, nil)

	res, err := f.auth.Login(context.Background(), loginReq(testPassword))
	require.NoError(t, err)
	assert.NotEmpty(t, res.AccessToken)
	assert.Equal(t, testEpoch.Add(15*time.Minute), res.ExpiresAt)
	require.NotNil(t, res.Session)
	assert.Equal(t, testEmail, res.Session.UserID)

	claims, err := f.tokens.ValidateToken(res.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, res.Session.ID, claims.SessionID)
	assert.Contains(t, f.auditBuf.String(), `"event_type":"login_success"`)
}

func TestAuthService_LoginFailures(t *testing.T) {
	tests := []struct {
		name string
		req  LoginRequest
	}{
		{"wrong password", loginReq("wrong")},
		{"unknown user", LoginRequest{Email: "nobody@example.com", Password: testPassword, IPAddress: "10.0.0.1"}},
		{"empty email", LoginRequest{Email: "  ", Password: testPassword}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			_, err := f.auth.Login(context.Background(), tt.req)
			assert.ErrorIs(t, err, models.ErrUnauthorized)
		})
	}
}

func TestAuthService_LockoutAfterRepeatedFailures(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := f.auth.Login(ctx, loginReq("wrong"))
		require.ErrorIs(t, err, models.ErrUnauthorized)
	}

	// the right password is refused while locked
	_, err := f.auth.Login(ctx, loginReq(testPassword))
	require.ErrorIs(t, err, models.ErrAccountLocked)

	var locked *LockedError
	require.True(t, errors.As(err, &locked))
	assert.Equal(t, 60, locked.RetryAfter)

	f.clock.Advance(time.Minute + time.Second)
	_, err = f.auth.Login(ctx, loginReq(testPassword))
	assert.NoError(t, err)
}

func TestAuthService_IPLockoutCoversOtherAccounts(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	for _, email := range []string{"a@example.com", "b@example.com", "c@example.com"} {
		_, err := f.auth.Login(ctx, LoginRequest{Email: email, Password: "x", IPAddress: "10.0.0.7"})
		require.ErrorIs(t, err, models.ErrUnauthorized)
	}

	_, err := f.auth.Login(ctx, LoginRequest{Email: testEmail, Password: testPassword, IPAddress: "10.0.0.7"})
	assert.ErrorIs(t, err, models.ErrAccountLocked)

	_, err = f.auth.Login(ctx, LoginRequest{Email: testEmail, Password: testPassword, IPAddress: "10.0.0.8"})
	assert.NoError(t, err)
}

func TestAuthService_SuccessClearsUserFailures(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, _ = f.auth.Login(ctx, loginReq("wrong"))
	}
	_, err := f.auth.Login(ctx, loginReq(testPassword))
	require.NoError(t, err)

	st, err := f.rateLimits.LockoutStatus(models.LockoutTypeUser, testEmail)
	require.NoError(t, err)
	assert.Zero(t, st.Attempts)
}

func TestAuthService_LogoutRevokesTokenAndSession(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	res, err := f.auth.Login(ctx, loginReq(testPassword))
	require.NoError(t, err)
	claims, err := f.tokens.ValidateToken(res.AccessToken)
	require.NoError(t, err)

	require.NoError(t, f.auth.Logout(ctx, claims))

	assert.True(t, f.revocations.IsBlacklisted(claims.ID))
	assert.Equal(t, claims.ExpiresAt.Time, f.repo.tokens[claims.ID].ExpiresAt)
	assert.False(t, f.sessions.Validate(res.Session.ID, "test-agent", "10.0.0.1").Valid)
}

func TestAuthService_LogoutRequiresClaims(t *testing.T) {
	f := newFixture(t, nil)
	assert.ErrorIs(t, f.auth.Logout(context.Background(), nil), models.ErrUnauthorized)
}
