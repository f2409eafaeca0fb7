package services

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/bvanengelen78/guardrail/internal/auth"
	"github.com/bvanengelen78/guardrail/internal/clock"
	"github.com/bvanengelen78/guardrail/internal/models"
	"github.com/bvanengelen78/guardrail/internal/security"
	pkgauth "github.com/bvanengelen78/guardrail/pkg/auth"
	pkglogger "github.com/bvanengelen78/guardrail/pkg/logger"
)

const (
	testEmail    = "admin@example.com"
	testPassword = "correct horse battery staple"
	testSecret   = "test-secret-key-for-services-0123"
)

var testEpoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// recordingAlerter captures alerts instead of sending them
type recordingAlerter struct {
	mu     sync.Mutex
	alerts []Alert
}

func (r *recordingAlerter) Notify(a Alert) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, a)
}

func (r *recordingAlerter) sent() []Alert {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Alert(nil), r.alerts...)
}

// memoryRevocationRepo is an in-memory RevocationRepository
type memoryRevocationRepo struct {
	mu     sync.Mutex
	tokens map[string]models.RevokedToken
	err    error
}

func newMemoryRevocationRepo() *memoryRevocationRepo {
	return &memoryRevocationRepo{tokens: make(map[string]models.RevokedToken)}
}

func (m *memoryRevocationRepo) Revoke(_ context.Context, token models.RevokedToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.tokens[token.JTI] = token
	return nil
}

func (m *memoryRevocationRepo) ListActive(_ context.Context, now time.Time) ([]models.RevokedToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	var out []models.RevokedToken
	for _, t := range m.tokens {
		if t.ExpiresAt.After(now) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *memoryRevocationRepo) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k, t := range m.tokens {
		if !t.ExpiresAt.After(now) {
			delete(m.tokens, k)
			n++
		}
	}
	return n, nil
}

// fixture wires the service layer over a fake clock
type fixture struct {
	clock       *clock.Fake
	guard       *security.Guard
	alerts      *recordingAlerter
	repo        *memoryRevocationRepo
	auditBuf    *bytes.Buffer
	rateLimits  *RateLimitService
	sessions    *SessionService
	revocations *RevocationService
	auth        *AuthService
	tokens      *auth.TokenManager
}

func newFixture(t *testing.T, mutate func(*security.Config)) *fixture {
	t.Helper()

	cfg := security.DefaultConfig()
	cfg.Shards = 4
	cfg.Lockout.MaxFailedAttempts = 3
	cfg.Lockout.LockoutDuration = time.Minute
	if mutate != nil {
		mutate(&cfg)
	}

	clk := clock.NewFake(testEpoch)
	guard, err := security.New(cfg, clk, discardLogger())
	require.NoError(t, err)

	hash, err := pkgauth.HashPasswordWithCost(testPassword, bcrypt.MinCost)
	require.NoError(t, err)

	f := &fixture{
		clock:    clk,
		guard:    guard,
		alerts:   &recordingAlerter{},
		repo:     newMemoryRevocationRepo(),
		auditBuf: &bytes.Buffer{},
	}
	audit := pkglogger.NewAuditLogger(slog.New(slog.NewJSONHandler(f.auditBuf, nil)))

	f.rateLimits = NewRateLimitService(guard, audit, nil, f.alerts, discardLogger())
	f.sessions = NewSessionService(guard.Sessions(), audit, nil, discardLogger())
	f.revocations = NewRevocationService(guard.Blacklist(), f.repo, clk, audit, nil, discardLogger())
	f.tokens = auth.NewTokenManager(testSecret, 15*time.Minute, clk)
	f.auth = NewAuthService(AuthDeps{
		Verifier:    NewStaticCredentialVerifier(testEmail, hash),
		Tokens:      f.tokens,
		RateLimits:  f.rateLimits,
		Sessions:    f.sessions,
		Revocations: f.revocations,
		Clock:       clk,
		Audit:       audit,
		Logger:      discardLogger(),
	})
	return f
}
