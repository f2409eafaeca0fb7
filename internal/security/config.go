package security

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/bvanengelen78/guardrail/internal/models"
)

// PenaltyConfig controls progressive delays applied to rate limit violators
type PenaltyConfig struct {
	BaseDelay   time.Duration `validate:"gt=0"`
	Multiplier  float64       `validate:"gte=1"`
	MaxDelay    time.Duration `validate:"gtefield=BaseDelay"`
	QuietPeriod time.Duration `validate:"gt=0"` // epoch after which violation counts reset
}

// LockoutConfig controls brute-force lockout
type LockoutConfig struct {
	MaxFailedAttempts  int           `validate:"gt=0"`
	LockoutDuration    time.Duration `validate:"gt=0"`
	ProgressiveLockout bool
	MaxLockoutDuration time.Duration `validate:"gtefield=LockoutDuration"`
	AttemptWindow      time.Duration `validate:"gt=0"`  // failures older than this no longer count
	LockoutMemory      time.Duration `validate:"gte=0"` // how long cumulative lockout counts survive an expired lock
}

// BlacklistConfig bounds the revoked token set
type BlacklistConfig struct {
	MaxEntries int `validate:"gt=0"`
}

// SessionConfig controls session lifetimes
type SessionConfig struct {
	ShortTTL              time.Duration `validate:"gt=0"`
	LongTTL               time.Duration `validate:"gtefield=ShortTTL"` // used when rememberMe is set
	IdleTimeout           time.Duration `validate:"gt=0"`
	RotationInterval      time.Duration `validate:"gt=0"`
	MaxConcurrentSessions int           `validate:"gt=0"`
	BindIP                bool
	BindUserAgent         bool
}

// DetectorConfig controls suspicious activity heuristics
type DetectorConfig struct {
	Window                time.Duration `validate:"gt=0"`
	RapidRequestThreshold int           `validate:"gt=0"`
	DistributedThreshold  int           `validate:"gt=0"`
	MaxSamplesPerEndpoint int           `validate:"gt=0"`
	EscalateToLockout     bool
}

// Config enumerates every option recognised by the security core
type Config struct {
	Shards    int `validate:"gt=0"`
	Penalty   PenaltyConfig
	Lockout   LockoutConfig
	Blacklist BlacklistConfig
	Session   SessionConfig
	Detector  DetectorConfig
}

// DefaultConfig returns production defaults
func DefaultConfig() Config {
	return Config{
		Shards: defaultShards,
		Penalty: PenaltyConfig{
			BaseDelay:   1 * time.Second,
			Multiplier:  2,
			MaxDelay:    5 * time.Minute,
			QuietPeriod: 24 * time.Hour,
		},
		Lockout: LockoutConfig{
			MaxFailedAttempts:  5,
			LockoutDuration:    15 * time.Minute,
			ProgressiveLockout: true,
			MaxLockoutDuration: 24 * time.Hour,
			AttemptWindow:      15 * time.Minute,
			LockoutMemory:      24 * time.Hour,
		},
		Blacklist: BlacklistConfig{
			MaxEntries: 100000,
		},
		Session: SessionConfig{
			ShortTTL:              24 * time.Hour,
			LongTTL:               30 * 24 * time.Hour,
			IdleTimeout:           30 * time.Minute,
			RotationInterval:      15 * time.Minute,
			MaxConcurrentSessions: 5,
		},
		Detector: DetectorConfig{
			Window:                60 * time.Second,
			RapidRequestThreshold: 30,
			DistributedThreshold:  10,
			MaxSamplesPerEndpoint: 10000,
		},
	}
}

var validate = validator.New()

// Validate checks every option once; a failure wraps models.ErrInvalidConfig
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) && len(ve) > 0 {
			fe := ve[0]
			return fmt.Errorf("%w: %s failed %q (value %v)", models.ErrInvalidConfig, fe.Namespace(), fe.Tag(), fe.Value())
		}
		return fmt.Errorf("%w: %v", models.ErrInvalidConfig, err)
	}
	return nil
}
