// Package pg is the production store.Store implementation, backed by
// Postgres (for the spatial and full-text indexes spec section 6 asks
// for, which none of the teacher's own backends -- SQLite, Dolt-over-
// MySQL -- provide). Grounded structurally on the teacher's
// internal/storage/sqlite.SQLiteStorage: one struct wrapping a
// connection handle, a WithTx unit-of-work method, and per-entity query
// files, translated from database/sql's manual sql.Null* scanning to
// pgx/v5's Row/Rows scanning.
package pg

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/giveaway/core/internal/store"
	"github.com/giveaway/core/internal/store/pg/migrations"
)

// Store is the Postgres-backed store.Store implementation. pool drives
// every read/write in items.go/claims.go/categories.go/outbox.go; db
// wraps the same DSN through pgx/v5/stdlib purely so
// github.com/pressly/goose/v3 -- which wants a *sql.DB -- can run
// migrations against it.
type Store struct {
	pool *pgxpool.Pool
	db   *sql.DB
}

// Open connects to databaseURL and returns a ready Store. Callers should
// call Migrate once at process start before relying on the schema.
func Open(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("pg: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pg: ping: %w", err)
	}

	db := stdlib.OpenDBFromPool(pool)

	return &Store{pool: pool, db: db}, nil
}

// Migrate applies every pending goose migration embedded in
// internal/store/pg/migrations.
func (s *Store) Migrate(ctx context.Context) error {
	goose.SetBaseFS(migrations.FS)
	defer goose.SetBaseFS(nil)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("pg: set dialect: %w", err)
	}
	if err := goose.UpContext(ctx, s.db, "."); err != nil {
		return fmt.Errorf("pg: migrate: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	s.db.Close()
	s.pool.Close()
	return nil
}

var _ store.Store = (*Store)(nil)
