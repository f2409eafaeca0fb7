package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bvanengelen78/guardrail/internal/models"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("JWT_SECRET", "test-secret-32-characters-long!")
}

func TestServerConfig_Timeouts_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)

	tests := []struct {
		name     string
		actual   time.Duration
		expected time.Duration
	}{
		{"ReadTimeout", cfg.Server.ReadTimeout, 15 * time.Second},
		{"WriteTimeout", cfg.Server.WriteTimeout, 15 * time.Second},
		{"IdleTimeout", cfg.Server.IdleTimeout, 60 * time.Second},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, tt.actual, tt.name)
	}
}

func TestServerConfig_Timeouts_CustomValues(t *testing.T) {
	setRequired(t)
	t.Setenv("SERVER_READ_TIMEOUT", "30s")
	t.Setenv("SERVER_WRITE_TIMEOUT", "45s")
	t.Setenv("SERVER_IDLE_TIMEOUT", "120s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 45*time.Second, cfg.Server.WriteTimeout)
	assert.Equal(t, 120*time.Second, cfg.Server.IdleTimeout)
}

func TestServerConfig_Timeouts_InvalidDuration(t *testing.T) {
	setRequired(t)
	t.Setenv("SERVER_READ_TIMEOUT", "not-a-duration")

	cfg, err := Load()
	require.NoError(t, err)

	// Invalid duration should fall back to default
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
}

func TestLoad_RequiresJWTSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	_, err := Load()
	assert.ErrorContains(t, err, "JWT_SECRET is required")
}

func TestLoad_ProductionRequiresLongSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "only-twenty-chars-xx")
	t.Setenv("ENV", "production")

	_, err := Load()
	assert.ErrorContains(t, err, "at least 32 characters")
}

func TestLoad_DatabaseOptional(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.False(t, cfg.Database.Enabled)

	t.Setenv("DATABASE_ENABLED", "true")
	_, err = Load()
	assert.ErrorContains(t, err, "DB_PASSWORD")

	t.Setenv("DB_PASSWORD", "pw")
	cfg, err = Load()
	require.NoError(t, err)
	assert.Equal(t, "host=localhost port=5432 user=postgres password=pw dbname=guardrail sslmode=disable", cfg.Database.DSN())
}

func TestLoad_SecurityOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("LOCKOUT_MAX_FAILED_ATTEMPTS", "3")
	t.Setenv("LOCKOUT_PROGRESSIVE", "false")
	t.Setenv("PENALTY_MULTIPLIER", "1.5")
	t.Setenv("SESSION_BIND_IP", "true")
	t.Setenv("DETECTOR_WINDOW", "2m")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Security.Lockout.MaxFailedAttempts)
	assert.False(t, cfg.Security.Lockout.ProgressiveLockout)
	assert.Equal(t, 1.5, cfg.Security.Penalty.Multiplier)
	assert.True(t, cfg.Security.Session.BindIP)
	assert.Equal(t, 2*time.Minute, cfg.Security.Detector.Window)
	assert.Equal(t, 15*time.Minute, cfg.Security.Lockout.LockoutDuration)
}

func TestLoad_RejectsNonPositiveThresholds(t *testing.T) {
	setRequired(t)
	t.Setenv("SESSION_MAX_CONCURRENT", "0")

	_, err := Load()
	assert.ErrorIs(t, err, models.ErrInvalidConfig)
}

func TestLoad_AlertsRequireRecipients(t *testing.T) {
	setRequired(t)
	t.Setenv("ALERTS_ENABLED", "true")
	t.Setenv("ALERTS_FROM_EMAIL", "security@example.com")

	_, err := Load()
	assert.ErrorContains(t, err, "ALERTS_RECIPIENTS")

	t.Setenv("ALERTS_RECIPIENTS", "ops@example.com, oncall@example.com")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"ops@example.com", "oncall@example.com"}, cfg.Alerts.Recipients)
}

func TestLoad_RejectsNonPositiveCleanupInterval(t *testing.T) {
	for _, v := range []string{"0s", "-5s"} {
		t.Run(v, func(t *testing.T) {
			setRequired(t)
			t.Setenv("CLEANUP_INTERVAL", v)

			_, err := Load()
			assert.ErrorContains(t, err, "CLEANUP_INTERVAL must be positive")
		})
	}
}

func TestLoad_ServiceToken(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Empty(t, cfg.Auth.ServiceToken)

	t.Setenv("SERVICE_API_TOKEN", "too-short")
	_, err = Load()
	assert.ErrorContains(t, err, "SERVICE_API_TOKEN")

	t.Setenv("SERVICE_API_TOKEN", "internal-service-token-0123456789")
	cfg, err = Load()
	require.NoError(t, err)
	assert.Equal(t, "internal-service-token-0123456789", cfg.Auth.ServiceToken)
}
