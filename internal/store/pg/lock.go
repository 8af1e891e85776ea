package pg

import (
	"context"
	"fmt"
	"hash/fnv"

	"github.com/jackc/pgx/v5"
)

// itemLockKey derives a stable int64 advisory-lock key from itemID.
// hash/fnv (stdlib) is sufficient here: the key only needs to be stable
// and low-collision across concurrent callers, not cryptographically
// strong, and Postgres advisory locks already take the full 64-bit
// keyspace so FNV-1a's collision profile is not a practical concern at
// this cardinality.
func itemLockKey(itemID string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(itemID))
	return int64(h.Sum64())
}

// WithItemLock serializes every writer against itemID's active set using
// pg_advisory_xact_lock, held for the lifetime of a single transaction
// (spec section 5: "canonical unit of serialization is (item_id,
// active-set)"; section 4.2.2 names a Postgres advisory lock as one of
// the two acceptable strategies). The lock is released automatically when
// the transaction commits or rolls back -- no separate unlock call is
// needed or possible with the xact variant.
//
// fn typically calls WithTx itself (internal/claims does, for every
// mutating operation); that nested WithTx call joins this transaction via
// the ambient-tx context value rather than opening a second connection,
// which would make the advisory lock a no-op against the real mutation.
func (s *Store) WithItemLock(ctx context.Context, itemID string, fn func(ctx context.Context) error) error {
	if _, ok := ambientTx(ctx); ok {
		// Already inside a transaction (e.g. a WithItemLock nested inside
		// another, or a caller that opened WithTx first) -- the lock for
		// this connection/session already covers fn.
		return fn(ctx)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("pg: begin (item lock): %w", err)
	}

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", itemLockKey(itemID)); err != nil {
		_ = tx.Rollback(ctx)
		return fmt.Errorf("pg: acquire advisory lock for item %s: %w", itemID, err)
	}

	ctx = withAmbientTx(ctx, tx)
	if err := fn(ctx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && rbErr != pgx.ErrTxClosed {
			return fmt.Errorf("%w (rollback also failed: %v)", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("pg: commit (item lock): %w", err)
	}
	return nil
}
