package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"buildhub/internal/marketerrors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// SQLSTATE codes the adapter tags explicitly.
const (
	codeLockNotAvailable          = "55P03"
	codeQueryCanceled             = "57014"
	codeInvalidTextRepresentation = "22P02"

	classDataException       = "22"
	classIntegrityConstraint = "23"
)

// mapError tags driver errors with the marketerrors taxonomy while keeping
// the original error in the chain.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %w", marketerrors.ErrNotFound, err)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %w", marketerrors.ErrTimeout, err)
	}

	state := sqlState(err)
	switch state {
	case codeLockNotAvailable, codeQueryCanceled:
		return fmt.Errorf("%w: %w", marketerrors.ErrTimeout, err)
	case codeInvalidTextRepresentation:
		// Ids are UUID columns: a malformed id names no row.
		return fmt.Errorf("%w: %w", marketerrors.ErrNotFound, err)
	}
	if len(state) == 5 {
		switch state[:2] {
		case classDataException, classIntegrityConstraint:
			return fmt.Errorf("%w: %w", marketerrors.ErrInvalidInput, err)
		}
	}
	// Everything else, serialization failures and deadlocks included, is a
	// retryable store failure.
	return fmt.Errorf("%w: %w", marketerrors.ErrStoreFailure, err)
}

func sqlState(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}
