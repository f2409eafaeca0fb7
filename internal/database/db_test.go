package database

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"github.com/bvanengelen78/guardrail/internal/models"
)

func TestMapPostgresError(t *testing.T) {
	other := errors.New("syntax error at or near")

	tests := []struct {
		name string
		in   error
		want error
	}{
		{"nil", nil, nil},
		{"no rows", pgx.ErrNoRows, models.ErrNotFound},
		{"wrapped no rows", fmt.Errorf("scan: %w", pgx.ErrNoRows), models.ErrNotFound},
		{"unique", &pgconn.PgError{Code: "23505"}, models.ErrConflict},
		{"connection failure", &pgconn.PgError{Code: "08006"}, models.ErrStoreUnavailable},
		{"too many connections", &pgconn.PgError{Code: "53300"}, models.ErrStoreUnavailable},
		{"admin shutdown", fmt.Errorf("insert: %w", &pgconn.PgError{Code: "57P01"}), models.ErrStoreUnavailable},
		{"deadline", fmt.Errorf("query: %w", context.DeadlineExceeded), models.ErrStoreUnavailable},
		{"passthrough", other, other},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapPostgresError(tt.in)
			if tt.want == nil {
				assert.NoError(t, got)
				return
			}
			assert.ErrorIs(t, got, tt.want)
		})
	}
}

func TestMigrationsEmbedded(t *testing.T) {
	entries, err := migrationsFS.ReadDir("migrations")
	assert.NoError(t, err)
	assert.NotEmpty(t, entries)
}
