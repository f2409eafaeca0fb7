package security

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/bvanengelen78/guardrail/internal/models"
)

func TestDefaultConfig_IsValid(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
}

func TestConfigValidate_NamesFailingField(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Penalty.BaseDelay = 0

	err := cfg.Validate()
	assert.ErrorIs(t, err, models.ErrInvalidConfig)
	assert.Contains(t, err.Error(), "Penalty.BaseDelay")
}

func TestConfigValidate_ZeroLockoutMemoryAllowed(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Lockout.LockoutMemory = 0
	assert.NoError(t, cfg.Validate())

	cfg.Penalty.MaxDelay = 500 * time.Millisecond
	assert.ErrorIs(t, cfg.Validate(), models.ErrInvalidConfig)
}
