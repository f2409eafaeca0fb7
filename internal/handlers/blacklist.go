package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bvanengelen78/guardrail/internal/models"
	pkghttp "github.com/bvanengelen78/guardrail/pkg/http"
)

// RevocationServiceInterface defines token blacklist operations
type RevocationServiceInterface interface {
	Revoke(ctx context.Context, tokenID, userID string, expiresAt time.Time, reason string) error
	IsBlacklisted(tokenID string) bool
}

// BlacklistHandler serves /v1/blacklist
type BlacklistHandler struct {
	service RevocationServiceInterface
	logger  *slog.Logger
}

func NewBlacklistHandler(service RevocationServiceInterface, logger *slog.Logger) *BlacklistHandler {
	return &BlacklistHandler{service: service, logger: logger}
}

// BlacklistAddRequest revokes token until Expiry (Unix milliseconds)
type BlacklistAddRequest struct {
	Token  string `json:"token" validate:"required,max=4096"`
	Expiry int64  `json:"expiry" validate:"gt=0"`
	UserID string `json:"userId" validate:"max=256"`
	Reason string `json:"reason" validate:"max=64"`
}

type BlacklistResponse struct {
	Blacklisted bool `json:"blacklisted"`
}

// Add handles POST /v1/blacklist
func (h *BlacklistHandler) Add(w http.ResponseWriter, r *http.Request) {
	var req BlacklistAddRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	if req.Reason == "" {
		req.Reason = "manual"
	}

	err := h.service.Revoke(r.Context(), req.Token, req.UserID, time.UnixMilli(req.Expiry), req.Reason)
	if err != nil {
		if errors.Is(err, models.ErrInvalidConfig) {
			pkghttp.WriteBadRequest(w, err.Error())
			return
		}
		h.logger.Error("failed to blacklist token", slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Check handles GET /v1/blacklist/{token}
func (h *BlacklistHandler) Check(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	pkghttp.WriteJSON(w, http.StatusOK, BlacklistResponse{Blacklisted: h.service.IsBlacklisted(token)})
}
