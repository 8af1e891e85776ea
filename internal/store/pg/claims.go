package pg

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/giveaway/core/internal/apperr"
	"github.com/giveaway/core/internal/model"
	"github.com/giveaway/core/internal/store"
)

const claimColumns = `id, item_id, user_id, queue_position, status, contact_method,
	preferred_pickup_date, claimer_note, lister_note, created_at, contacted_at,
	selected_at, completed_at, cancelled_at, skipped_at, expired_at, repositioned_at, reason`

func scanClaim(row pgx.Row) (*model.Claim, error) {
	var c model.Claim
	err := row.Scan(
		&c.ID, &c.ItemID, &c.UserID, &c.QueuePosition, &c.Status, &c.ContactMethod,
		&c.PreferredPickupDate, &c.ClaimerNote, &c.ListerNote, &c.CreatedAt, &c.ContactedAt,
		&c.SelectedAt, &c.CompletedAt, &c.CancelledAt, &c.SkippedAt, &c.ExpiredAt, &c.RepositionedAt, &c.Reason,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("claim", "")
		}
		return nil, fmt.Errorf("pg: scan claim: %w", err)
	}
	return &c, nil
}

func scanClaims(rows pgx.Rows) ([]*model.Claim, error) {
	defer rows.Close()
	var out []*model.Claim
	for rows.Next() {
		c, err := scanClaim(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func getClaim(ctx context.Context, q queryer, id string) (*model.Claim, error) {
	row := q.QueryRow(ctx, `SELECT `+claimColumns+` FROM claims WHERE id = $1`, id)
	c, err := scanClaim(row)
	if err != nil {
		if apperr.Is(err, apperr.ErrNotFound) {
			return nil, apperr.NotFound("claim", id)
		}
		return nil, err
	}
	return c, nil
}

// getActiveClaimByUser backs the duplicate-claim check in
// internal/claims.Service.Enqueue (spec section 4.2.1: "one active claim
// per (item, user)"); the partial unique index idx_claims_active_unique_user
// enforces the same rule at the storage layer as a race-safe backstop.
func getActiveClaimByUser(ctx context.Context, q queryer, itemID, userID string) (*model.Claim, error) {
	row := q.QueryRow(ctx, `SELECT `+claimColumns+` FROM claims
		WHERE item_id = $1 AND user_id = $2 AND status IN ('PENDING', 'CONTACTED') LIMIT 1`, itemID, userID)
	c, err := scanClaim(row)
	if err != nil {
		if apperr.Is(err, apperr.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return c, nil
}

func listActiveClaims(ctx context.Context, q queryer, itemID string) ([]*model.Claim, error) {
	rows, err := q.Query(ctx, `SELECT `+claimColumns+` FROM claims
		WHERE item_id = $1 AND status IN ('PENDING', 'CONTACTED') ORDER BY queue_position ASC`, itemID)
	if err != nil {
		return nil, fmt.Errorf("pg: list active claims: %w", err)
	}
	return scanClaims(rows)
}

func listClaims(ctx context.Context, q queryer, itemID string, includeInactive bool) ([]*model.Claim, error) {
	query := `SELECT ` + claimColumns + ` FROM claims WHERE item_id = $1`
	if !includeInactive {
		query += ` AND status IN ('PENDING', 'CONTACTED')`
	}
	query += ` ORDER BY queue_position ASC, created_at ASC`
	rows, err := q.Query(ctx, query, itemID)
	if err != nil {
		return nil, fmt.Errorf("pg: list claims: %w", err)
	}
	return scanClaims(rows)
}

func listClaimsByUser(ctx context.Context, q queryer, userID string) ([]*model.Claim, error) {
	rows, err := q.Query(ctx, `SELECT `+claimColumns+` FROM claims WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("pg: list claims by user: %w", err)
	}
	return scanClaims(rows)
}

// listClaimsForLister joins to items so a lister can see every claim
// against anything they own, the read internal/claims.ListForLister needs
// (spec section 4.2, "lister-facing queue views").
func listClaimsForLister(ctx context.Context, q queryer, listerID string) ([]*model.Claim, error) {
	rows, err := q.Query(ctx, `SELECT c.id, c.item_id, c.user_id, c.queue_position, c.status, c.contact_method,
		c.preferred_pickup_date, c.claimer_note, c.lister_note, c.created_at, c.contacted_at,
		c.selected_at, c.completed_at, c.cancelled_at, c.skipped_at, c.expired_at, c.repositioned_at, c.reason
		FROM claims c JOIN items i ON i.id = c.item_id
		WHERE i.owner_id = $1 ORDER BY c.created_at DESC`, listerID)
	if err != nil {
		return nil, fmt.Errorf("pg: list claims for lister: %w", err)
	}
	return scanClaims(rows)
}

func listStaleActiveClaims(ctx context.Context, q queryer, olderThan time.Time, limit int) ([]*model.Claim, error) {
	query := `SELECT ` + claimColumns + ` FROM claims
		WHERE status IN ('PENDING', 'CONTACTED') AND created_at < $1 ORDER BY created_at ASC`
	args := []any{olderThan}
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("pg: list stale active claims: %w", err)
	}
	return scanClaims(rows)
}

// insertClaimAtNextPosition assigns the new claim queue_position = (max
// active position for the item) + 1 in the same statement that inserts
// it, so the read-then-write race the teacher's own
// internal/storage/sqlite DecisionIterate avoids with SELECT...FOR UPDATE
// is instead closed by the caller's WithItemLock (spec section 4.2.2) plus
// the idx_claims_active_position partial unique index as a belt-and-
// braces backstop -- a concurrent insert that slips past the advisory
// lock (e.g. a stray connection not honoring it) still fails unique and
// surfaces as apperr.ErrConflict for the caller to retry.
func insertClaimAtNextPosition(ctx context.Context, q queryer, claim *model.Claim) error {
	row := q.QueryRow(ctx, `
		INSERT INTO claims (id, item_id, user_id, queue_position, status, contact_method,
			preferred_pickup_date, claimer_note, lister_note, created_at, reason)
		VALUES ($1, $2, $3,
			COALESCE((SELECT max(queue_position) FROM claims
				WHERE item_id = $2 AND status IN ('PENDING', 'CONTACTED')), 0) + 1,
			$4, $5, $6, $7, $8, $9, $10)
		RETURNING queue_position`,
		claim.ID, claim.ItemID, claim.UserID, claim.Status, claim.ContactMethod,
		claim.PreferredPickupDate, claim.ClaimerNote, claim.ListerNote, claim.CreatedAt, claim.Reason,
	)
	var position int
	if err := row.Scan(&position); err != nil {
		return fmt.Errorf("pg: insert claim: %w", classifyWriteError(err))
	}
	claim.QueuePosition = position
	return nil
}

func updateClaim(ctx context.Context, q queryer, id string, patch store.ClaimUpdate) error {
	set := make([]string, 0, 10)
	args := make([]any, 0, 10)
	arg := func(col string, v any) {
		args = append(args, v)
		set = append(set, fmt.Sprintf("%s = $%d", col, len(args)))
	}

	if patch.Status != nil {
		arg("status", *patch.Status)
	}
	if patch.ContactedAt != nil {
		arg("contacted_at", *patch.ContactedAt)
	}
	if patch.SelectedAt != nil {
		arg("selected_at", *patch.SelectedAt)
	}
	if patch.CompletedAt != nil {
		arg("completed_at", *patch.CompletedAt)
	}
	if patch.CancelledAt != nil {
		arg("cancelled_at", *patch.CancelledAt)
	}
	if patch.SkippedAt != nil {
		arg("skipped_at", *patch.SkippedAt)
	}
	if patch.ExpiredAt != nil {
		arg("expired_at", *patch.ExpiredAt)
	}
	if patch.RepositionedAt != nil {
		arg("repositioned_at", *patch.RepositionedAt)
	}
	if patch.QueuePosition != nil {
		arg("queue_position", *patch.QueuePosition)
	}
	if patch.ListerNote != nil {
		arg("lister_note", *patch.ListerNote)
	}
	if patch.Reason != nil {
		arg("reason", *patch.Reason)
	}
	if len(set) == 0 {
		return nil
	}

	args = append(args, id)
	query := fmt.Sprintf("UPDATE claims SET %s WHERE id = $%d", joinClauses(set), len(args))
	tag, err := q.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("pg: update claim %s: %w", id, classifyWriteError(err))
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("claim", id)
	}
	return nil
}

// renumberActiveSet re-assigns dense 1..N positions to itemID's active set
// ordered by (queue_position, created_at), the same compaction
// internal/store/memstore.RenumberActiveSet performs in-process after a
// Cancel/Skip or a stale-claim expiry opens a gap (spec section 4.2.3). A two-phase
// renumber (push to a negative holding range, then to 1..N) avoids
// tripping idx_claims_active_position against rows not yet touched.
func renumberActiveSet(ctx context.Context, q queryer, itemID string) error {
	rows, err := q.Query(ctx, `SELECT id FROM claims
		WHERE item_id = $1 AND status IN ('PENDING', 'CONTACTED')
		ORDER BY queue_position ASC, created_at ASC`, itemID)
	if err != nil {
		return fmt.Errorf("pg: renumber: list active set: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return fmt.Errorf("pg: renumber: scan: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("pg: renumber: %w", err)
	}

	for i, id := range ids {
		if _, err := q.Exec(ctx, `UPDATE claims SET queue_position = $1 WHERE id = $2`, -(i + 1), id); err != nil {
			return fmt.Errorf("pg: renumber: holding pass: %w", err)
		}
	}
	for i, id := range ids {
		if _, err := q.Exec(ctx, `UPDATE claims SET queue_position = $1 WHERE id = $2`, i+1, id); err != nil {
			return fmt.Errorf("pg: renumber: final pass: %w", err)
		}
	}
	return nil
}

// --- Store / txHandle adapters ---

func (s *Store) GetClaim(ctx context.Context, id string) (*model.Claim, error) { return getClaim(ctx, s.pool, id) }
func (t *txHandle) GetClaim(ctx context.Context, id string) (*model.Claim, error) { return getClaim(ctx, t.q, id) }

func (s *Store) GetActiveClaimByUser(ctx context.Context, itemID, userID string) (*model.Claim, error) {
	return getActiveClaimByUser(ctx, s.pool, itemID, userID)
}
func (t *txHandle) GetActiveClaimByUser(ctx context.Context, itemID, userID string) (*model.Claim, error) {
	return getActiveClaimByUser(ctx, t.q, itemID, userID)
}

func (s *Store) ListActiveClaims(ctx context.Context, itemID string) ([]*model.Claim, error) {
	return listActiveClaims(ctx, s.pool, itemID)
}
func (t *txHandle) ListActiveClaims(ctx context.Context, itemID string) ([]*model.Claim, error) {
	return listActiveClaims(ctx, t.q, itemID)
}

func (s *Store) ListClaims(ctx context.Context, itemID string, includeInactive bool) ([]*model.Claim, error) {
	return listClaims(ctx, s.pool, itemID, includeInactive)
}
func (t *txHandle) ListClaims(ctx context.Context, itemID string, includeInactive bool) ([]*model.Claim, error) {
	return listClaims(ctx, t.q, itemID, includeInactive)
}

func (s *Store) ListClaimsByUser(ctx context.Context, userID string) ([]*model.Claim, error) {
	return listClaimsByUser(ctx, s.pool, userID)
}
func (t *txHandle) ListClaimsByUser(ctx context.Context, userID string) ([]*model.Claim, error) {
	return listClaimsByUser(ctx, t.q, userID)
}

func (s *Store) ListClaimsForLister(ctx context.Context, listerID string) ([]*model.Claim, error) {
	return listClaimsForLister(ctx, s.pool, listerID)
}
func (t *txHandle) ListClaimsForLister(ctx context.Context, listerID string) ([]*model.Claim, error) {
	return listClaimsForLister(ctx, t.q, listerID)
}

func (s *Store) ListStaleActiveClaims(ctx context.Context, olderThan time.Time, limit int) ([]*model.Claim, error) {
	return listStaleActiveClaims(ctx, s.pool, olderThan, limit)
}
func (t *txHandle) ListStaleActiveClaims(ctx context.Context, olderThan time.Time, limit int) ([]*model.Claim, error) {
	return listStaleActiveClaims(ctx, t.q, olderThan, limit)
}

func (s *Store) InsertClaimAtNextPosition(ctx context.Context, claim *model.Claim) error {
	return insertClaimAtNextPosition(ctx, s.pool, claim)
}
func (t *txHandle) InsertClaimAtNextPosition(ctx context.Context, claim *model.Claim) error {
	return insertClaimAtNextPosition(ctx, t.q, claim)
}

func (s *Store) UpdateClaim(ctx context.Context, id string, patch store.ClaimUpdate) error {
	return updateClaim(ctx, s.pool, id, patch)
}
func (t *txHandle) UpdateClaim(ctx context.Context, id string, patch store.ClaimUpdate) error {
	return updateClaim(ctx, t.q, id, patch)
}

func (s *Store) RenumberActiveSet(ctx context.Context, itemID string) error {
	return renumberActiveSet(ctx, s.pool, itemID)
}
func (t *txHandle) RenumberActiveSet(ctx context.Context, itemID string) error {
	return renumberActiveSet(ctx, t.q, itemID)
}
