package models

import "time"

// Session is a server-side login session
type Session struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	UserAgent      string    `json:"user_agent"`
	IPAddress      string    `json:"ip_address"`
	CreatedAt      time.Time `json:"created_at"`
	LastAccessedAt time.Time `json:"last_accessed_at"`
	ExpiresAt      time.Time `json:"expires_at"`
	IsActive       bool      `json:"is_active"`
	RotationCount  int       `json:"rotation_count"`
}

// Session validation failure reasons
const (
	SessionReasonNotFound          = "not_found"
	SessionReasonInactive          = "inactive"
	SessionReasonExpired           = "expired"
	SessionReasonIdleTimeout       = "idle_timeout"
	SessionReasonIPMismatch        = "ip_mismatch"
	SessionReasonUserAgentMismatch = "user_agent_mismatch"
)

// SessionValidation is the outcome of validating a session
type SessionValidation struct {
	Valid         bool
	Reason        string
	NeedsRotation bool
	Session       *Session // copy of the session when valid
}
