package handlers

import (
	"context"
	"net/http"
	"time"

	pkghttp "github.com/bvanengelen78/guardrail/pkg/http"
)

// HealthChecker reports backing store health
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// HealthHandler serves GET /health. A nil checker reports the database as
// disabled.
type HealthHandler struct {
	db      HealthChecker
	timeout time.Duration
}

func NewHealthHandler(db HealthChecker) *HealthHandler {
	return &HealthHandler{db: db, timeout: 2 * time.Second}
}

type HealthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	if h.db == nil {
		pkghttp.WriteJSON(w, http.StatusOK, HealthResponse{Status: "healthy", Database: "disabled"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	if err := h.db.HealthCheck(ctx); err != nil {
		pkghttp.WriteJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "unhealthy", Database: "down"})
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, HealthResponse{Status: "healthy", Database: "up"})
}
