package repository

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stemsi/learntrack-backend/internal/apperror"
)

const pgUniqueViolation = "23505"

// mapError turns driver errors into the shared error taxonomy.
func mapError(op, resource string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return apperror.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return &apperror.ConflictError{Resource: resource, Detail: pgErr.Detail}
	}
	return apperror.Unavailable(op, err)
}
