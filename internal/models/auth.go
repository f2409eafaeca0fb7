package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token types
const (
	TokenTypeAccess = "access"
)

// TokenClaims are the JWT claims issued on login. The registered ID (jti) is
// the identifier recorded in the token blacklist.
type TokenClaims struct {
	Type      string `json:"type"`
	UserID    string `json:"user_id"`
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// RevokedToken is a persisted blacklist entry
type RevokedToken struct {
	JTI       string    `json:"jti"`
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
	Reason    string    `json:"reason"`
	RevokedAt time.Time `json:"revoked_at"`
}
