package errors

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// MapDBError maps Postgres errors from the audit store to AppError instances:
//   - context deadline/cancellation → UNAVAILABLE
//   - pgx.ErrNoRows → JOB_NOT_FOUND-style NotFound
//   - unique violation → CONFLICT (a retried append of an already-written
//     record; callers treat it as already recorded)
//   - check / not-null violation → INTERNAL_ERROR (the schema rejected a
//     record the code should never have produced)
//
// Unrecognized errors are returned unchanged.
func MapDBError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return Wrap(err, ErrCodeUnavailable, "audit store timed out")
	}
	if errors.Is(err, context.Canceled) {
		return Wrap(err, ErrCodeUnavailable, "audit store request canceled")
	}

	// The repos go through database/sql with the pgx driver, so both
	// not-found sentinels can surface depending on the call path.
	if errors.Is(err, sql.ErrNoRows) || errors.Is(err, pgx.ErrNoRows) {
		return Wrap(err, ErrCodeNotFound, "record not found")
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return mapPgError(pgErr)
	}

	return err
}

func mapPgError(pgErr *pgconn.PgError) error {
	switch pgErr.Code {
	case pgerrcode.UniqueViolation:
		return Wrap(pgErr, ErrCodeConflict, "record already written")
	case pgerrcode.CheckViolation, pgerrcode.NotNullViolation:
		return Wrap(pgErr, ErrCodeInternal, "record rejected by audit schema")
	default:
		return Wrap(pgErr, ErrCodeInternal, "audit store error")
	}
}
