package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/bvanengelen78/guardrail/internal/models"
)

// MapPostgresError translates driver errors into model sentinels. Anything
// that means the store could not be reached becomes ErrStoreUnavailable so
// callers can keep serving from memory.
func MapPostgresError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return models.ErrNotFound
	}
	if errors.Is(err, context.DeadlineExceeded) || pgconn.Timeout(err) {
		return fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "23505": // unique_violation
			return models.ErrConflict
		case pgErr.Code == "57P01", pgErr.Code == "57P03": // admin_shutdown, cannot_connect_now
			return fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
		case len(pgErr.Code) == 5 && (pgErr.Code[:2] == "08" || pgErr.Code[:2] == "53"):
			// connection exception, insufficient resources
			return fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
		}
	}

	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}

	return err
}
