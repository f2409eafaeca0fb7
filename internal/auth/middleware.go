package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/bvanengelen78/guardrail/internal/models"
	pkghttp "github.com/bvanengelen78/guardrail/pkg/http"
)

// contextKey is a custom type for context keys
type contextKey string

const (
	// UserContextKey is the key for storing token claims in context
	UserContextKey contextKey = "user"
	// SessionContextKey is the key for storing the validated session in context
	SessionContextKey contextKey = "session"

	// SessionRotateHeader tells the client its session should be rotated
	SessionRotateHeader = "X-Session-Rotate"
)

// BlacklistChecker reports whether a token id has been revoked
type BlacklistChecker interface {
	IsBlacklisted(token string) bool
}

// SessionValidator validates a session against the presenting client
type SessionValidator interface {
	Validate(sessionID, userAgent, ipAddress string) models.SessionValidation
}

// AuthMiddleware validates the bearer token, rejects revoked tokens and
// tokens whose session is no longer valid, and injects claims and session
// into the request context.
func AuthMiddleware(tm *TokenManager, blacklist BlacklistChecker, sessions SessionValidator, ips *pkghttp.IPResolver) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, ok := bearerToken(r)
			if !ok {
				pkghttp.WriteUnauthorized(w, "missing or malformed authorization header")
				return
			}

			claims, err := tm.ValidateToken(tokenString)
			if err != nil {
				pkghttp.WriteUnauthorized(w, "invalid or expired token")
				return
			}

			if blacklist.IsBlacklisted(claims.ID) {
				pkghttp.WriteUnauthorized(w, "token has been revoked")
				return
			}

			v := sessions.Validate(claims.SessionID, r.UserAgent(), ips.ClientIP(r))
			if !v.Valid {
				pkghttp.WriteErrorWithDetails(w, http.StatusUnauthorized, "session_invalid", "session is no longer valid", v.Reason)
				return
			}
			if v.NeedsRotation {
				w.Header().Set(SessionRotateHeader, "true")
			}

			ctx := context.WithValue(r.Context(), UserContextKey, claims)
			ctx = context.WithValue(ctx, SessionContextKey, v.Session)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(authHeader, " ")
	if !found || scheme != "Bearer" || token == "" {
		return "", false
	}
	return token, true
}

// GetUserFromContext extracts token claims from request context
func GetUserFromContext(r *http.Request) *models.TokenClaims {
	claims, ok := r.Context().Value(UserContextKey).(*models.TokenClaims)
	if !ok {
		return nil
	}
	return claims
}

// GetSessionFromContext extracts the validated session from request context
func GetSessionFromContext(r *http.Request) *models.Session {
	s, ok := r.Context().Value(SessionContextKey).(*models.Session)
	if !ok {
		return nil
	}
	return s
}
