package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/bvanengelen78/guardrail/internal/clock"
	"github.com/bvanengelen78/guardrail/internal/models"
)

const issuer = "guardrail"

// TokenManager issues and verifies HS256 access tokens. Each token carries a
// unique jti so it can be revoked individually, and the id of the session it
// was issued for.
type TokenManager struct {
	secret            []byte
	accessTokenExpiry time.Duration
	clock             clock.Clock
}

// NewTokenManager creates a new TokenManager
func NewTokenManager(secret string, accessExpiry time.Duration, clk clock.Clock) *TokenManager {
	if clk == nil {
		clk = clock.System()
	}
	return &TokenManager{
		secret:            []byte(secret),
		accessTokenExpiry: accessExpiry,
		clock:             clk,
	}
}

// GenerateAccessToken signs a token bound to sessionID and returns it with its claims
func (tm *TokenManager) GenerateAccessToken(userID, sessionID string) (string, *models.TokenClaims, error) {
	now := tm.clock.Now()

	claims := &models.TokenClaims{
		Type:      models.TokenTypeAccess,
		UserID:    userID,
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Issuer:    issuer,
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(tm.accessTokenExpiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(tm.secret)
	if err != nil {
		return "", nil, fmt.Errorf("failed to sign access token: %w", err)
	}

	return tokenString, claims, nil
}

// ValidateToken verifies a token and returns its claims. Every failure wraps
// models.ErrUnauthorized.
func (tm *TokenManager) ValidateToken(tokenString string) (*models.TokenClaims, error) {
	claims := &models.TokenClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return tm.secret, nil
	},
		jwt.WithTimeFunc(tm.clock.Now),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrUnauthorized, err)
	}

	if !token.Valid {
		return nil, models.ErrUnauthorized
	}

	if claims.Type != models.TokenTypeAccess || claims.ID == "" || claims.SessionID == "" {
		return nil, fmt.Errorf("%w: incomplete token claims", models.ErrUnauthorized)
	}

	return claims, nil
}
