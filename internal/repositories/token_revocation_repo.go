package repositories

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bvanengelen78/guardrail/internal/database"
	"github.com/bvanengelen78/guardrail/internal/models"
)

// TokenRevocationRepository persists blacklist entries so that revocations
// survive a restart.
type TokenRevocationRepository struct {
	pool *pgxpool.Pool
}

func NewTokenRevocationRepository(db *database.DB) *TokenRevocationRepository {
	return &TokenRevocationRepository{pool: db.Pool}
}

// Revoke records jti as revoked until expiresAt. Revoking again keeps the
// later expiry.
func (r *TokenRevocationRepository) Revoke(ctx context.Context, token models.RevokedToken) error {
	query := `
		INSERT INTO revoked_tokens (jti, user_id, expires_at, reason)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (jti) DO UPDATE
		SET expires_at = GREATEST(revoked_tokens.expires_at, EXCLUDED.expires_at)
	`

	_, err := r.pool.Exec(ctx, query, token.JTI, token.UserID, token.ExpiresAt, token.Reason)
	return database.MapPostgresError(err)
}

// ListActive returns every revocation that has not yet expired at now
func (r *TokenRevocationRepository) ListActive(ctx context.Context, now time.Time) ([]models.RevokedToken, error) {
	query := `
		SELECT jti, user_id, expires_at, reason, revoked_at
		FROM revoked_tokens
		WHERE expires_at > $1
		ORDER BY expires_at
	`

	rows, err := r.pool.Query(ctx, query, now)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	tokens, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.RevokedToken, error) {
		var t models.RevokedToken
		err := row.Scan(&t.JTI, &t.UserID, &t.ExpiresAt, &t.Reason, &t.RevokedAt)
		return t, err
	})
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return tokens, nil
}

// DeleteExpired removes revocations whose token could no longer be presented
func (r *TokenRevocationRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.pool.Exec(ctx, `DELETE FROM revoked_tokens WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return result.RowsAffected(), nil
}
