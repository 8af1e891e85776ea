package pg

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/giveaway/core/internal/store"
)

// queryer is the minimal surface every query helper in this package needs.
// Both *pgxpool.Pool and pgx.Tx satisfy it, so read/write helpers are
// written once as free functions over queryer and reused by both Store
// (outside a transaction) and txHandle (inside one) -- the same
// package-local "operate against a minimal storage seam" idiom the
// teacher applies at the internal/decision/iterate.go Storage level, one
// layer further down.
type queryer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type txCtxKeyType struct{}

var txCtxKey = txCtxKeyType{}

// ambientTx returns the transaction already open on ctx, if any. Both
// WithTx and WithItemLock check this before opening a new one, so a
// WithTx call made inside a WithItemLock callback (the pattern every
// internal/claims operation uses) joins the lock's transaction instead of
// racing it on a second pooled connection -- a Postgres advisory xact
// lock only serializes callers that share the same transaction/session.
func ambientTx(ctx context.Context) (pgx.Tx, bool) {
	tx, ok := ctx.Value(txCtxKey).(pgx.Tx)
	return tx, ok
}

func withAmbientTx(ctx context.Context, tx pgx.Tx) context.Context {
	return context.WithValue(ctx, txCtxKey, tx)
}

// WithTx runs fn inside a single Postgres transaction. If ctx already
// carries a transaction (because this call is nested inside a
// WithItemLock or an outer WithTx), fn joins that transaction instead of
// opening a second one; only the outermost caller commits or rolls back.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	if tx, ok := ambientTx(ctx); ok {
		return fn(ctx, &txHandle{q: tx})
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("pg: begin: %w", err)
	}

	ctx = withAmbientTx(ctx, tx)
	if err := fn(ctx, &txHandle{q: tx}); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && rbErr != pgx.ErrTxClosed {
			return fmt.Errorf("%w (rollback also failed: %v)", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("pg: commit: %w", err)
	}
	return nil
}

// txHandle implements store.Tx over a queryer (always a pgx.Tx in
// practice, but kept as the narrower interface so every query helper in
// this package works identically against Store and txHandle).
type txHandle struct {
	q queryer
}
