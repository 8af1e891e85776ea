package pg

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/giveaway/core/internal/store"
)

// appendOutboxEvent fills in ID/CreatedAt when the caller left them zero,
// the same "assign on append" convenience
// internal/store/memstore.Store.AppendOutboxEvent provides so
// internal/claims and internal/lifecycle never have to generate outbox
// primary keys themselves.
func appendOutboxEvent(ctx context.Context, q queryer, event store.OutboxEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	_, err := q.Exec(ctx, `
		INSERT INTO outbox (id, aggregate_type, aggregate_id, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		event.ID, event.AggregateType, event.AggregateID, event.EventType, event.Payload, event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("pg: append outbox event: %w", err)
	}
	return nil
}

// listUnpublishedOutboxEvents backs internal/outbox's polling publisher
// (spec section 9, "publisher polls it separately" -- deliberately outside
// any Tx, since the row was already committed by whatever operation
// appended it).
func listUnpublishedOutboxEvents(ctx context.Context, q queryer, limit int) ([]store.OutboxEvent, error) {
	rows, err := q.Query(ctx, `
		SELECT id, aggregate_type, aggregate_id, event_type, payload, created_at, published_at
		FROM outbox WHERE published_at IS NULL ORDER BY created_at ASC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("pg: list unpublished outbox events: %w", err)
	}
	defer rows.Close()

	var out []store.OutboxEvent
	for rows.Next() {
		var e store.OutboxEvent
		if err := rows.Scan(&e.ID, &e.AggregateType, &e.AggregateID, &e.EventType, &e.Payload, &e.CreatedAt, &e.PublishedAt); err != nil {
			return nil, fmt.Errorf("pg: scan outbox event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func markOutboxPublished(ctx context.Context, q queryer, id string) error {
	_, err := q.Exec(ctx, `UPDATE outbox SET published_at = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("pg: mark outbox published %s: %w", id, err)
	}
	return nil
}

// --- Store / txHandle adapters ---

func (s *Store) AppendOutboxEvent(ctx context.Context, event store.OutboxEvent) error {
	return appendOutboxEvent(ctx, s.pool, event)
}
func (t *txHandle) AppendOutboxEvent(ctx context.Context, event store.OutboxEvent) error {
	return appendOutboxEvent(ctx, t.q, event)
}

func (s *Store) ListUnpublishedOutboxEvents(ctx context.Context, limit int) ([]store.OutboxEvent, error) {
	return listUnpublishedOutboxEvents(ctx, s.pool, limit)
}

func (s *Store) MarkOutboxPublished(ctx context.Context, id string) error {
	return markOutboxPublished(ctx, s.pool, id)
}
