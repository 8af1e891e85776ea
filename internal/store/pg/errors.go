package pg

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"github.com/giveaway/core/internal/apperr"
)

const sqlstateUniqueViolation = "23505"

// classifyWriteError turns a raw Postgres error into the apperr taxonomy by
// inspecting the violated constraint name, distinguishing the
// position-uniqueness index (spec section 4.2.2, retryable apperr.Conflict)
// from the duplicate-claim index (spec section 4.2.4, apperr.DuplicateClaim).
// Grounded on the teacher's wrapDBError (internal/storage/sqlite/errors.go)
// classifying sql.ErrNoRows into ErrNotFound -- the same "inspect the raw
// driver error once, at the edge" idiom, applied to constraint violations
// instead of a missing-row sentinel.
func classifyWriteError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != sqlstateUniqueViolation {
		return err
	}

	// lib/pq exports a SQLSTATE->class-name table; reused here purely for
	// its ErrorCode.Name() lookup so the wrapped error message carries a
	// human-readable class ("unique_violation") without hand-rolling a
	// second copy of the SQLSTATE registry alongside pgconn's.
	className := pq.ErrorCode(pgErr.Code).Name()

	switch pgErr.ConstraintName {
	case "idx_claims_active_unique_user":
		return fmt.Errorf("pg: %s on %s: %w", className, pgErr.ConstraintName, apperr.ErrDuplicateClaim)
	case "idx_claims_active_position":
		return fmt.Errorf("pg: %s on %s: %w", className, pgErr.ConstraintName, apperr.ErrConflict)
	default:
		return fmt.Errorf("pg: %s on %s: %w", className, pgErr.ConstraintName, apperr.ErrConflict)
	}
}
