package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/bvanengelen78/guardrail/internal/auth"
	"github.com/bvanengelen78/guardrail/internal/background"
	"github.com/bvanengelen78/guardrail/internal/clock"
	"github.com/bvanengelen78/guardrail/internal/config"
	"github.com/bvanengelen78/guardrail/internal/database"
	"github.com/bvanengelen78/guardrail/internal/handlers"
	"github.com/bvanengelen78/guardrail/internal/instrumentation"
	"github.com/bvanengelen78/guardrail/internal/models"
	"github.com/bvanengelen78/guardrail/internal/repositories"
	"github.com/bvanengelen78/guardrail/internal/routes"
	"github.com/bvanengelen78/guardrail/internal/security"
	"github.com/bvanengelen78/guardrail/internal/services"
	pkghttp "github.com/bvanengelen78/guardrail/pkg/http"
	pkglogger "github.com/bvanengelen78/guardrail/pkg/logger"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(os.Getenv("LOG_LEVEL"))}))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clk := clock.System()
	guard, err := security.New(cfg.Security, clk, logger)
	if err != nil {
		logger.Error("invalid security configuration", slog.Any("error", err))
		os.Exit(1)
	}

	// Metrics
	inst, err := instrumentation.New(instrumentation.Config{
		ServiceName:     cfg.Telemetry.ServiceName,
		ServiceVersion:  cfg.Telemetry.ServiceVersion,
		Enabled:         cfg.Telemetry.Enabled,
		MetricsExporter: cfg.Telemetry.MetricsExporter,
	})
	if err != nil {
		logger.Error("failed to initialize instrumentation", slog.Any("error", err))
		os.Exit(1)
	}
	otel.SetMeterProvider(inst.MeterProvider())
	metrics := inst.Metrics()
	metrics.TrackEndpoints(loginEndpoint)
	if err := metrics.RegisterStatsCallback(guard.Stats); err != nil {
		logger.Error("failed to register store size gauges", slog.Any("error", err))
	}

	// Optional persistence of revocations
	var (
		db         *database.DB
		revokeRepo services.RevocationRepository
		health     handlers.HealthChecker
	)
	if cfg.Database.Enabled {
		db, err = database.NewConnection(ctx, &cfg.Database, logger)
		if err != nil {
			logger.Error("failed to connect to database", slog.Any("error", err))
			os.Exit(1)
		}
		defer db.Close()

		if err := db.Migrate(ctx); err != nil {
			logger.Error("failed to run migrations", slog.Any("error", err))
			os.Exit(1)
		}
		revokeRepo = repositories.NewTokenRevocationRepository(db)
		health = db
	}

	// Operator alerts
	var alerter services.Alerter = services.NoopAlerter{}
	if cfg.Alerts.Enabled {
		client, err := services.NewSESClient(ctx, cfg.Alerts.Region)
		if err != nil {
			logger.Error("failed to initialize SES client", slog.Any("error", err))
			os.Exit(1)
		}
		ses := services.NewSESAlertService(client, services.AlertConfig{
			FromAddress: cfg.Alerts.FromEmail,
			Recipients:  cfg.Alerts.Recipients,
			PerMinute:   cfg.Alerts.PerMinute,
			Burst:       cfg.Alerts.Burst,
			QueueSize:   cfg.Alerts.QueueSize,
		}, logger)
		ses.Start()
		defer ses.Stop()
		alerter = ses
	}

	// Services
	auditLogger := pkglogger.NewAuditLogger(logger)
	rateLimitService := services.NewRateLimitService(guard, auditLogger, metrics, alerter, logger)
	sessionService := services.NewSessionService(guard.Sessions(), auditLogger, metrics, logger)
	revocationService := services.NewRevocationService(guard.Blacklist(), revokeRepo, clk, auditLogger, metrics, logger)

	if _, err := revocationService.Restore(ctx); err != nil {
		logger.Error("failed to restore revoked tokens", slog.Any("error", err))
		os.Exit(1)
	}

	tokenManager := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenExpiry, clk)
	if cfg.Auth.AdminEmail == "" || cfg.Auth.AdminPasswordHash == "" {
		logger.Warn("ADMIN_EMAIL or ADMIN_PASSWORD_HASH not set, every login will be rejected")
	}
	if cfg.Auth.ServiceToken == "" {
		logger.Warn("SERVICE_API_TOKEN not set, every /v1 call will be rejected")
	}
	authService := services.NewAuthService(services.AuthDeps{
		Verifier:    services.NewStaticCredentialVerifier(cfg.Auth.AdminEmail, cfg.Auth.AdminPasswordHash),
		Tokens:      tokenManager,
		RateLimits:  rateLimitService,
		Sessions:    sessionService,
		Revocations: revocationService,
		Timing:      auth.NewTimingDelay(cfg.Auth.TimingDelayBase, cfg.Auth.TimingDelayJitter),
		Clock:       clk,
		Audit:       auditLogger,
		Metrics:     metrics,
		Logger:      logger,
	})

	ips, err := pkghttp.NewIPResolver(cfg.Server.TrustedProxies)
	if err != nil {
		logger.Error("invalid TRUSTED_PROXIES", slog.Any("error", err))
		os.Exit(1)
	}

	router := routes.NewRouter(routes.Dependencies{
		Env:            cfg.Server.Env,
		RequestsPerMin: cfg.Server.RequestsPerMin,
		LoginRule: models.RateLimitRule{
			Window:      cfg.Auth.LoginWindow,
			MaxRequests: cfg.Auth.LoginMaxRequests,
		},
		Throttle:       handlers.NewThrottleHandler(rateLimitService, logger),
		Sessions:       handlers.NewSessionHandler(sessionService, ips, logger),
		Blacklist:      handlers.NewBlacklistHandler(revocationService, logger),
		Auth:           handlers.NewAuthHandler(authService, ips, logger),
		Health:         handlers.NewHealthHandler(health),
		Metrics:        inst.MetricsHandler(),
		Throttler:      rateLimitService,
		Tokens:         tokenManager,
		Revocations:    revocationService,
		SessionCheck:   sessionService,
		ServiceToken:   cfg.Auth.ServiceToken,
		IPs:            ips,
		Logger:         logger,
		HandlerTimeout: cfg.Server.WriteTimeout,
	})

	// Background sweeps
	janitor := background.NewJanitor(logger, cfg.Auth.CleanupInterval, guard.Sweepers()...)
	janitor.Register(revocationService.Sweeper())
	go janitor.Start(ctx)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	janitor.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
	}
	if err := inst.Shutdown(shutdownCtx); err != nil {
		logger.Error("instrumentation shutdown error", slog.Any("error", err))
	}

	logger.Info("server stopped gracefully")
}

const loginEndpoint = "/auth/login"

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
