package postgres

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"salonsched/backend/internal/store"
)

const (
	codeExclusionViolation   = "23P01"
	codeUniqueViolation      = "23505"
	codeForeignKeyViolation  = "23503"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeLockNotAvailable     = "55P03"

	overlapConstraint = "appointments_no_overlap"
)

// mapError translates driver errors into store sentinels. Errors that are
// already store errors pass through untouched.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		if pgconn.SafeToRetry(err) {
			return fmt.Errorf("%w: %v", store.ErrTransient, err)
		}
		return err
	}

	switch {
	case pgErr.Code == codeExclusionViolation && pgErr.ConstraintName == overlapConstraint:
		return store.ErrConflict
	case pgErr.Code == codeUniqueViolation:
		return store.ErrConflict
	case pgErr.Code == codeForeignKeyViolation:
		return store.ErrNotFound
	case pgErr.Code == codeSerializationFailure,
		pgErr.Code == codeDeadlockDetected,
		pgErr.Code == codeLockNotAvailable,
		strings.HasPrefix(pgErr.Code, "08"):
		return fmt.Errorf("%w: %s", store.ErrTransient, pgErr.Message)
	}
	return err
}
