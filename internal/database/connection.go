package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bvanengelen78/guardrail/internal/config"
	"github.com/bvanengelen78/guardrail/internal/models"
)

const connectTimeout = 10 * time.Second

// DB owns the pool backing revocation persistence
type DB struct {
	Pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewConnection opens and pings the pool. The parent context bounds startup
// together with connectTimeout.
func NewConnection(ctx context.Context, cfg *config.DatabaseConfig, logger *slog.Logger) (*DB, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}
	poolConfig.MaxConns = cfg.MaxConns
	poolConfig.MinConns = cfg.MinConns
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	poolConfig.HealthCheckPeriod = cfg.HealthCheckPeriod

	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", MapPostgresError(err))
	}

	logger.Info("revocation store connected",
		slog.String("host", cfg.Host),
		slog.String("database", cfg.Name),
		slog.Int("max_conns", int(cfg.MaxConns)),
	)
	return FromPool(pool, logger), nil
}

// FromPool wraps an existing pool, as handed out by test containers
func FromPool(pool *pgxpool.Pool, logger *slog.Logger) *DB {
	if logger == nil {
		logger = slog.Default()
	}
	return &DB{Pool: pool, logger: logger}
}

func (db *DB) Close() {
	s := db.Pool.Stat()
	db.logger.Info("closing revocation store",
		slog.Int("acquired_conns", int(s.AcquiredConns())),
		slog.Int("total_conns", int(s.TotalConns())),
	)
	db.Pool.Close()
}

// HealthCheck pings with a short deadline; failures wrap ErrStoreUnavailable
func (db *DB) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := db.Pool.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}
	return nil
}
