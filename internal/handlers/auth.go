package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/bvanengelen78/guardrail/internal/auth"
	"github.com/bvanengelen78/guardrail/internal/models"
	"github.com/bvanengelen78/guardrail/internal/services"
	pkghttp "github.com/bvanengelen78/guardrail/pkg/http"
)

// AuthServiceInterface defines the interface for auth business logic
type AuthServiceInterface interface {
	Login(ctx context.Context, req services.LoginRequest) (*services.LoginResult, error)
	Logout(ctx context.Context, claims *models.TokenClaims) error
}

// AuthHandler handles authentication-related HTTP requests
type AuthHandler struct {
	service AuthServiceInterface
	ips     *pkghttp.IPResolver
	logger  *slog.Logger
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(service AuthServiceInterface, ips *pkghttp.IPResolver, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{service: service, ips: ips, logger: logger}
}

// LoginRequest represents the request body for login
type LoginRequest struct {
	Email      string `json:"email" validate:"required,email"`
	Password   string `json:"password" validate:"required,max=72"`
	RememberMe bool   `json:"rememberMe"`
}

type LoginResponse struct {
	AccessToken string           `json:"accessToken"`
	ExpiresAt   *int64           `json:"expiresAt"`
	Session     *SessionResponse `json:"session"`
}

// Login handles POST /auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	result, err := h.service.Login(r.Context(), services.LoginRequest{
		Email:      req.Email,
		Password:   req.Password,
		IPAddress:  h.ips.ClientIP(r),
		UserAgent:  r.UserAgent(),
		RememberMe: req.RememberMe,
	})
	if err != nil {
		var locked *services.LockedError
		switch {
		case errors.As(err, &locked):
			pkghttp.WriteLocked(w, locked.RetryAfter, "Too many failed attempts, try again later")
		case errors.Is(err, models.ErrUnauthorized):
			pkghttp.WriteUnauthorized(w, "Invalid email or password")
		default:
			h.logger.Error("login failed", slog.Any("error", err))
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, LoginResponse{
		AccessToken: result.AccessToken,
		ExpiresAt:   epochMillis(result.ExpiresAt),
		Session:     sessionResponse(result.Session),
	})
}

// Logout handles POST /auth/logout behind the auth middleware
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Not authenticated")
		return
	}

	if err := h.service.Logout(r.Context(), claims); err != nil {
		h.logger.Error("logout failed", slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
