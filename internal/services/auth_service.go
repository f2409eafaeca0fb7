package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bvanengelen78/guardrail/internal/auth"
	"github.com/bvanengelen78/guardrail/internal/clock"
	"github.com/bvanengelen78/guardrail/internal/instrumentation"
	"github.com/bvanengelen78/guardrail/internal/models"
	pkgauth "github.com/bvanengelen78/guardrail/pkg/auth"
	pkglogger "github.com/bvanengelen78/guardrail/pkg/logger"
)

// Login outcomes recorded in metrics
const (
	LoginOutcomeSuccess = "success"
	LoginOutcomeFailure = "failure"
	LoginOutcomeLocked  = "locked"
)

// CredentialVerifier checks a password and returns the user id it belongs to.
// Unknown users and wrong passwords both return models.ErrUnauthorized.
type CredentialVerifier interface {
	Verify(ctx context.Context, email, password string) (string, error)
}

// StaticCredentialVerifier accepts a single bootstrap account configured
// with a bcrypt hash.
type StaticCredentialVerifier struct {
	email        string
	passwordHash string
}

func NewStaticCredentialVerifier(email, passwordHash string) *StaticCredentialVerifier {
	return &StaticCredentialVerifier{
		email:        strings.ToLower(strings.TrimSpace(email)),
		passwordHash: passwordHash,
	}
}

func (v *StaticCredentialVerifier) Verify(_ context.Context, email, password string) (string, error) {
	if v.email == "" || v.passwordHash == "" || email != v.email {
		pkgauth.CompareDummy(password)
		return "", models.ErrUnauthorized
	}
	if err := pkgauth.ComparePassword(v.passwordHash, password); err != nil {
		if errors.Is(err, pkgauth.ErrPasswordMismatch) {
			return "", models.ErrUnauthorized
		}
		return "", err
	}
	return v.email, nil
}

// LockedError is returned by Login while the account or address is locked
type LockedError struct {
	RetryAfter int // seconds
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("%s: retry after %ds", models.ErrAccountLocked, e.RetryAfter)
}

func (e *LockedError) Unwrap() error { return models.ErrAccountLocked }

// LoginRequest carries credentials and the caller's fingerprint
type LoginRequest struct {
	Email      string
	Password   string
	IPAddress  string
	UserAgent  string
	RememberMe bool
}

// LoginResult is returned on a successful login
type LoginResult struct {
	AccessToken string          `json:"access_token"`
	ExpiresAt   time.Time       `json:"expires_at"`
	Session     *models.Session `json:"session"`
}

// AuthService authenticates users against the lockout tracker, opens
// sessions and issues access tokens.
type AuthService struct {
	verifier    CredentialVerifier
	tm          *auth.TokenManager
	rateLimits  *RateLimitService
	sessions    *SessionService
	revocations *RevocationService
	timing      *auth.TimingDelay
	clock       clock.Clock
	audit       *pkglogger.AuditLogger
	metrics     *instrumentation.Metrics
	logger      *slog.Logger
}

// AuthDeps groups AuthService collaborators
type AuthDeps struct {
	Verifier    CredentialVerifier
	Tokens      *auth.TokenManager
	RateLimits  *RateLimitService
	Sessions    *SessionService
	Revocations *RevocationService
	Timing      *auth.TimingDelay // nil disables failure padding
	Clock       clock.Clock
	Audit       *pkglogger.AuditLogger
	Metrics     *instrumentation.Metrics
	Logger      *slog.Logger
}

// NewAuthService creates a new AuthService
func NewAuthService(deps AuthDeps) *AuthService {
	if deps.Clock == nil {
		deps.Clock = clock.System()
	}
	return &AuthService{
		verifier:    deps.Verifier,
		tm:          deps.Tokens,
		rateLimits:  deps.RateLimits,
		sessions:    deps.Sessions,
		revocations: deps.Revocations,
		timing:      deps.Timing,
		clock:       deps.Clock,
		audit:       deps.Audit,
		metrics:     deps.Metrics,
		logger:      deps.Logger,
	}
}

// Login verifies credentials. Locked users or addresses get a *LockedError
// before the password is checked; bad credentials return
// models.ErrUnauthorized after counting a failure against both the user and
// the address.
func (s *AuthService) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	start := time.Now()
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" {
		return nil, models.ErrUnauthorized
	}

	if err := s.checkLocked(ctx, req, email); err != nil {
		return nil, err
	}

	userID, err := s.verifier.Verify(ctx, email, req.Password)
	if err != nil {
		if !errors.Is(err, models.ErrUnauthorized) {
			s.logger.Error("credential verification failed", slog.Any("error", err))
			return nil, models.ErrInternalServer
		}
		s.recordFailure(ctx, req, email)
		s.timing.WaitFrom(start)
		return nil, models.ErrUnauthorized
	}

	if err := s.rateLimits.ClearFailures(models.LockoutTypeUser, email); err != nil {
		s.logger.Error("failed to clear login failures", slog.Any("error", err))
	}

	session, err := s.sessions.Create(userID, req.UserAgent, req.IPAddress, req.RememberMe)
	if err != nil {
		s.logger.Error("failed to create session", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	token, claims, err := s.tm.GenerateAccessToken(userID, session.ID)
	if err != nil {
		s.sessions.Invalidate(session.ID)
		s.logger.Error("failed to generate access token", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.metrics.RecordLogin(ctx, LoginOutcomeSuccess)
	s.audit.LogLoginAttempt(email, req.IPAddress, req.UserAgent, true, "")

	return &LoginResult{
		AccessToken: token,
		ExpiresAt:   claims.ExpiresAt.Time,
		Session:     session,
	}, nil
}

func (s *AuthService) checkLocked(ctx context.Context, req LoginRequest, email string) error {
	now := s.clock.Now()
	retry := 0

	checks := []struct {
		t  models.LockoutType
		id string
	}{
		{models.LockoutTypeUser, email},
		{models.LockoutTypeIP, req.IPAddress},
	}
	for _, c := range checks {
		if c.id == "" {
			continue
		}
		status, err := s.rateLimits.LockoutStatus(c.t, c.id)
		if err != nil {
			s.logger.Error("lockout check failed", slog.String("type", string(c.t)), slog.Any("error", err))
			return models.ErrInternalServer
		}
		if secs := status.RetryAfterSeconds(now); secs > retry {
			retry = secs
		}
	}

	if retry == 0 {
		return nil
	}
	s.metrics.RecordLogin(ctx, LoginOutcomeLocked)
	s.audit.LogLoginAttempt(email, req.IPAddress, req.UserAgent, false, "locked")
	return &LockedError{RetryAfter: retry}
}

func (s *AuthService) recordFailure(ctx context.Context, req LoginRequest, email string) {
	if _, err := s.rateLimits.RecordFailure(ctx, models.LockoutTypeUser, email); err != nil {
		s.logger.Error("failed to record user login failure", slog.Any("error", err))
	}
	if req.IPAddress != "" {
		if _, err := s.rateLimits.RecordFailure(ctx, models.LockoutTypeIP, req.IPAddress); err != nil {
			s.logger.Error("failed to record ip login failure", slog.Any("error", err))
		}
	}
	s.metrics.RecordLogin(ctx, LoginOutcomeFailure)
	s.audit.LogLoginAttempt(email, req.IPAddress, req.UserAgent, false, "invalid_credentials")
}

// Logout revokes the token until it would have expired and ends its session
func (s *AuthService) Logout(ctx context.Context, claims *models.TokenClaims) error {
	if claims == nil || claims.ExpiresAt == nil {
		return models.ErrUnauthorized
	}

	if err := s.revocations.Revoke(ctx, claims.ID, claims.UserID, claims.ExpiresAt.Time, "logout"); err != nil {
		s.logger.Error("failed to revoke token", slog.String("jti", claims.ID), slog.Any("error", err))
		return models.ErrInternalServer
	}
	s.sessions.Invalidate(claims.SessionID)

	s.logger.Info("user logged out", slog.String("user_id", claims.UserID))
	return nil
}
