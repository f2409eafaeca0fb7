package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bvanengelen78/guardrail/internal/clock"
	"github.com/bvanengelen78/guardrail/internal/security"
	"github.com/bvanengelen78/guardrail/internal/services"
	pkghttp "github.com/bvanengelen78/guardrail/pkg/http"
	pkglogger "github.com/bvanengelen78/guardrail/pkg/logger"
)

var testEpoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// NewTestRequest creates an HTTP request with JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body any) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// AssertJSONResponse checks that response has correct status and decodes JSON body
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target any) {
	t.Helper()
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	if target != nil {
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), target), "Failed to decode response JSON")
	}
}

// AssertErrorResponse checks that response is a valid error response
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedError string) {
	t.Helper()
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	var resp pkghttp.ErrorResponse
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), "Failed to decode error response")
	assert.Equal(t, expectedError, resp.Error, "Error code mismatch")
	assert.NotEmpty(t, resp.Message, "Error message should not be empty")
}

// testServer wires the v1 handlers over real services and a fake clock
type testServer struct {
	clock    *clock.Fake
	guard    *security.Guard
	router   chi.Router
	throttle *ThrottleHandler
	sessions *SessionHandler
}

func newTestServer(t *testing.T, mutate func(*security.Config)) *testServer {
	t.Helper()

	cfg := security.DefaultConfig()
	cfg.Shards = 4
	cfg.Lockout.MaxFailedAttempts = 2
	if mutate != nil {
		mutate(&cfg)
	}
	clk := clock.NewFake(testEpoch)
	guard, err := security.New(cfg, clk, discardLogger())
	require.NoError(t, err)

	audit := pkglogger.NewAuditLogger(discardLogger())
	rateLimits := services.NewRateLimitService(guard, audit, nil, nil, discardLogger())
	sessions := services.NewSessionService(guard.Sessions(), audit, nil, discardLogger())
	revocations := services.NewRevocationService(guard.Blacklist(), nil, clk, audit, nil, discardLogger())

	ts := &testServer{
		clock:    clk,
		guard:    guard,
		throttle: NewThrottleHandler(rateLimits, discardLogger()),
		sessions: NewSessionHandler(sessions, nil, discardLogger()),
	}
	blacklist := NewBlacklistHandler(revocations, discardLogger())

	r := chi.NewRouter()
	r.Post("/v1/ratelimit/check", ts.throttle.CheckRateLimit)
	r.Post("/v1/lockout/check", ts.throttle.CheckLockout)
	r.Post("/v1/lockout/failure", ts.throttle.RecordFailure)
	r.Post("/v1/lockout/clear", ts.throttle.ClearFailures)
	r.Post("/v1/activity/observe", ts.throttle.Observe)
	r.Get("/v1/stats", ts.throttle.Stats)
	r.Post("/v1/sessions", ts.sessions.Create)
	r.Post("/v1/sessions/validate", ts.sessions.Validate)
	r.Delete("/v1/sessions/{id}", ts.sessions.Invalidate)
	r.Post("/v1/sessions/{id}/rotate", ts.sessions.Rotate)
	r.Delete("/v1/users/{userId}/sessions", ts.sessions.InvalidateAllForUser)
	r.Post("/v1/blacklist", blacklist.Add)
	r.Get("/v1/blacklist/{token}", blacklist.Check)
	ts.router = r
	return ts
}

func (ts *testServer) do(t *testing.T, method, url string, body any) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, NewTestRequest(t, method, url, body))
	return w
}

func newRecorder(ts *testServer, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}
