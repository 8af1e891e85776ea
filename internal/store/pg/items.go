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

const itemColumns = `id, owner_id, category_id, title, description, zip_code,
	ST_Y(location::geometry) AS lat, ST_X(location::geometry) AS lon,
	pickup_notes, status, created_at, updated_at, expires_at,
	claimed_at, expired_at, archived_at, view_count, claim_count`

// scanItem reads one itemColumns row into a model.Item.
func scanItem(row pgx.Row) (*model.Item, error) {
	var it model.Item
	var lat, lon *float64
	err := row.Scan(
		&it.ID, &it.OwnerID, &it.CategoryID, &it.Title, &it.Description, &it.ZipCode,
		&lat, &lon,
		&it.PickupNotes, &it.Status, &it.CreatedAt, &it.UpdatedAt, &it.ExpiresAt,
		&it.ClaimedAt, &it.ExpiredAt, &it.ArchivedAt, &it.ViewCount, &it.ClaimCount,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("item", "")
		}
		return nil, fmt.Errorf("pg: scan item: %w", err)
	}
	if lat != nil && lon != nil {
		it.Location = model.NewPoint(*lat, *lon)
	}
	return &it, nil
}

func getItem(ctx context.Context, q queryer, id string) (*model.Item, error) {
	row := q.QueryRow(ctx, `SELECT `+itemColumns+` FROM items WHERE id = $1`, id)
	it, err := scanItem(row)
	if err != nil {
		if apperr.Is(err, apperr.ErrNotFound) {
			return nil, apperr.NotFound("item", id)
		}
		return nil, err
	}
	return it, nil
}

func insertItem(ctx context.Context, q queryer, item *model.Item) error {
	var geog any
	if item.Location.HasLocation() {
		geog = fmt.Sprintf("POINT(%f %f)", item.Location.Lon, item.Location.Lat)
	}
	_, err := q.Exec(ctx, `
		INSERT INTO items (id, owner_id, category_id, title, description, zip_code,
			location, pickup_notes, status, created_at, updated_at, expires_at,
			claimed_at, expired_at, archived_at, view_count, claim_count)
		VALUES ($1, $2, $3, $4, $5, $6,
			CASE WHEN $7::text IS NULL THEN NULL ELSE ST_GeogFromText($7) END,
			$8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		item.ID, item.OwnerID, item.CategoryID, item.Title, item.Description, item.ZipCode,
		geog, item.PickupNotes, item.Status, item.CreatedAt, item.UpdatedAt, item.ExpiresAt,
		item.ClaimedAt, item.ExpiredAt, item.ArchivedAt, item.ViewCount, item.ClaimCount,
	)
	if err != nil {
		return fmt.Errorf("pg: insert item: %w", classifyWriteError(err))
	}
	return nil
}

// updateItem applies patch's non-nil fields with a hand-built SET clause,
// the same "only touch what the caller set" idiom as
// internal/store/memstore.applyItemPatch, translated to SQL.
func updateItem(ctx context.Context, q queryer, id string, patch store.ItemUpdate) error {
	set := make([]string, 0, 12)
	args := make([]any, 0, 12)
	arg := func(col string, v any) {
		args = append(args, v)
		set = append(set, fmt.Sprintf("%s = $%d", col, len(args)))
	}

	if patch.Title != nil {
		arg("title", *patch.Title)
	}
	if patch.Description != nil {
		arg("description", *patch.Description)
	}
	if patch.ZipCode != nil {
		arg("zip_code", *patch.ZipCode)
	}
	if patch.Location != nil {
		if patch.Location.HasLocation() {
			arg("location", fmt.Sprintf("POINT(%f %f)", patch.Location.Lon, patch.Location.Lat))
			set[len(set)-1] = fmt.Sprintf("location = ST_GeogFromText($%d)", len(args))
		} else {
			set = append(set, "location = NULL")
		}
	}
	if patch.PickupNotes != nil {
		arg("pickup_notes", *patch.PickupNotes)
	}
	if patch.CategoryID != nil {
		arg("category_id", *patch.CategoryID) // *patch.CategoryID may itself be nil -> SET category_id = NULL
	}
	if patch.Status != nil {
		arg("status", *patch.Status)
	}
	if patch.ClaimedAt != nil {
		arg("claimed_at", *patch.ClaimedAt)
	}
	if patch.ExpiredAt != nil {
		arg("expired_at", *patch.ExpiredAt)
	}
	if patch.ArchivedAt != nil {
		arg("archived_at", *patch.ArchivedAt)
	}
	if patch.ExpiresAt != nil {
		arg("expires_at", *patch.ExpiresAt)
	}
	set = append(set, "updated_at = now()")
	if len(set) == 1 {
		return nil
	}

	args = append(args, id)
	query := fmt.Sprintf("UPDATE items SET %s WHERE id = $%d", joinClauses(set), len(args))
	tag, err := q.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("pg: update item %s: %w", id, classifyWriteError(err))
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("item", id)
	}
	return nil
}

func joinClauses(clauses []string) string {
	out := clauses[0]
	for _, c := range clauses[1:] {
		out += ", " + c
	}
	return out
}

func bumpItemCounter(ctx context.Context, q queryer, column, id string, delta int64) error {
	tag, err := q.Exec(ctx, fmt.Sprintf("UPDATE items SET %s = %s + $1 WHERE id = $2", column, column), delta, id)
	if err != nil {
		return fmt.Errorf("pg: bump %s: %w", column, err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("item", id)
	}
	return nil
}

func listItemsByOwner(ctx context.Context, q queryer, ownerID string, status *model.ItemStatus, page model.Page) ([]*model.Item, int, error) {
	where := "owner_id = $1"
	args := []any{ownerID}
	if status != nil {
		args = append(args, *status)
		where += fmt.Sprintf(" AND status = $%d", len(args))
	}

	total, err := countItems(ctx, q, where, args)
	if err != nil {
		return nil, 0, err
	}

	args = append(args, page.Size, page.Offset())
	rows, err := q.Query(ctx, fmt.Sprintf(`SELECT %s FROM items WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		itemColumns, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pg: list items by owner: %w", err)
	}
	items, err := scanItems(rows)
	return items, total, err
}

// searchItems runs the ACTIVE/unexpired hot-path search (spec section 4.1,
// section 6 "partial index ... WHERE status='ACTIVE' AND expires_at >
// now()"). internal/items.Service.Search rejects any non-whitelisted
// SortKey/SortDir with InvalidInput via model.ValidSortKey/ValidSortDir
// before calling this, so the column name interpolated into ORDER BY
// below is never caller-controlled free text (spec section 7: "never
// constructs error messages by concatenating user input without quoting"
// -- the same discipline extends to query construction). orderByClause's
// own switch/default is a second, defense-in-depth whitelist: it still
// never interpolates an unrecognized key verbatim even if something
// upstream of the service layer forgets the check.
func searchItems(ctx context.Context, q queryer, filter model.ItemFilter, page model.Page) ([]*model.Item, int, error) {
	where := "status = 'ACTIVE' AND expires_at > now()"
	args := []any{}
	if filter.CategoryID != nil {
		args = append(args, *filter.CategoryID)
		where += fmt.Sprintf(" AND category_id = $%d", len(args))
	}
	if filter.ZipCode != nil {
		args = append(args, *filter.ZipCode)
		where += fmt.Sprintf(" AND zip_code = $%d", len(args))
	}
	if filter.Query != "" {
		args = append(args, filter.Query)
		where += fmt.Sprintf(" AND to_tsvector('english', title || ' ' || description) @@ plainto_tsquery('english', $%d)", len(args))
	}

	total, err := countItems(ctx, q, where, args)
	if err != nil {
		return nil, 0, err
	}

	orderBy := orderByClause(filter.SortKey, filter.SortDir)
	args = append(args, page.Size, page.Offset())
	rows, err := q.Query(ctx, fmt.Sprintf(`SELECT %s FROM items WHERE %s ORDER BY %s LIMIT $%d OFFSET $%d`,
		itemColumns, where, orderBy, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pg: search items: %w", err)
	}
	items, err := scanItems(rows)
	return items, total, err
}

// orderByClause maps an already-validated SortKey to its column exactly
// as internal/store/memstore.sortItems does in-process; any key outside
// the switch (which the service layer should never let through) falls
// back to created_at rather than being interpolated raw. Distance sorting
// has no meaning outside FindNearby so it also falls back to created_at
// here; FindNearby builds its own distance ORDER BY separately.
func orderByClause(key model.SortKey, dir model.SortDir) string {
	col := "created_at"
	switch key {
	case model.SortByTitle:
		col = "title"
	case model.SortByExpiresAt:
		col = "expires_at"
	}
	direction := "ASC"
	if dir == model.SortDesc {
		direction = "DESC"
	}
	return col + " " + direction
}

func findNearbyItems(ctx context.Context, q queryer, lat, lon, radiusMiles float64, filter model.ItemFilter, page model.Page) ([]*model.Item, int, error) {
	const metersPerMile = 1609.344
	radiusMeters := radiusMiles * metersPerMile

	where := `status = 'ACTIVE' AND expires_at > now() AND location IS NOT NULL
		AND ST_DWithin(location, ST_MakePoint($1, $2)::geography, $3)`
	args := []any{lon, lat, radiusMeters}
	if filter.CategoryID != nil {
		args = append(args, *filter.CategoryID)
		where += fmt.Sprintf(" AND category_id = $%d", len(args))
	}
	if filter.ZipCode != nil {
		args = append(args, *filter.ZipCode)
		where += fmt.Sprintf(" AND zip_code = $%d", len(args))
	}

	total, err := countItems(ctx, q, where, args)
	if err != nil {
		return nil, 0, err
	}

	orderBy := "ST_Distance(location, ST_MakePoint($1, $2)::geography) ASC"
	if filter.SortKey != model.SortByDistance && filter.SortKey != "" {
		orderBy = orderByClause(filter.SortKey, filter.SortDir)
	}

	args = append(args, page.Size, page.Offset())
	rows, err := q.Query(ctx, fmt.Sprintf(`SELECT %s FROM items WHERE %s ORDER BY %s LIMIT $%d OFFSET $%d`,
		itemColumns, where, orderBy, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pg: find nearby items: %w", err)
	}
	items, err := scanItems(rows)
	return items, total, err
}

func listExpiredActiveItems(ctx context.Context, q queryer, now time.Time, limit int) ([]*model.Item, error) {
	query := `SELECT ` + itemColumns + ` FROM items WHERE status = 'ACTIVE' AND expires_at < $1 ORDER BY expires_at ASC`
	args := []any{now}
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("pg: list expired active items: %w", err)
	}
	return scanItems(rows)
}

func listArchivableItems(ctx context.Context, q queryer, olderThan time.Time, limit int) ([]*model.Item, error) {
	query := `SELECT ` + itemColumns + ` FROM items
		WHERE archived_at IS NULL AND status IN ('CLAIMED', 'EXPIRED')
		AND COALESCE(claimed_at, expired_at) < $1
		ORDER BY COALESCE(claimed_at, expired_at) ASC`
	args := []any{olderThan}
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("pg: list archivable items: %w", err)
	}
	return scanItems(rows)
}

func listItemsByCategory(ctx context.Context, q queryer, categoryID string) ([]*model.Item, error) {
	rows, err := q.Query(ctx, `SELECT `+itemColumns+` FROM items WHERE category_id = $1`, categoryID)
	if err != nil {
		return nil, fmt.Errorf("pg: list items by category: %w", err)
	}
	return scanItems(rows)
}

func countItems(ctx context.Context, q queryer, where string, args []any) (int, error) {
	var total int
	row := q.QueryRow(ctx, `SELECT count(*) FROM items WHERE `+where, args...)
	if err := row.Scan(&total); err != nil {
		return 0, fmt.Errorf("pg: count items: %w", err)
	}
	return total, nil
}

func scanItems(rows pgx.Rows) ([]*model.Item, error) {
	defer rows.Close()
	var out []*model.Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// --- Store / txHandle adapters ---

func (s *Store) GetItem(ctx context.Context, id string) (*model.Item, error) { return getItem(ctx, s.pool, id) }
func (t *txHandle) GetItem(ctx context.Context, id string) (*model.Item, error) { return getItem(ctx, t.q, id) }

func (s *Store) InsertItem(ctx context.Context, item *model.Item) error { return insertItem(ctx, s.pool, item) }
func (t *txHandle) InsertItem(ctx context.Context, item *model.Item) error { return insertItem(ctx, t.q, item) }

func (s *Store) UpdateItem(ctx context.Context, id string, patch store.ItemUpdate) error {
	return updateItem(ctx, s.pool, id, patch)
}
func (t *txHandle) UpdateItem(ctx context.Context, id string, patch store.ItemUpdate) error {
	return updateItem(ctx, t.q, id, patch)
}

func (s *Store) BumpViewCount(ctx context.Context, id string, delta int64) error {
	return bumpItemCounter(ctx, s.pool, "view_count", id, delta)
}
func (t *txHandle) BumpViewCount(ctx context.Context, id string, delta int64) error {
	return bumpItemCounter(ctx, t.q, "view_count", id, delta)
}

func (s *Store) BumpClaimCount(ctx context.Context, id string, delta int64) error {
	return bumpItemCounter(ctx, s.pool, "claim_count", id, delta)
}
func (t *txHandle) BumpClaimCount(ctx context.Context, id string, delta int64) error {
	return bumpItemCounter(ctx, t.q, "claim_count", id, delta)
}

func (s *Store) ListItemsByOwner(ctx context.Context, ownerID string, status *model.ItemStatus, page model.Page) ([]*model.Item, int, error) {
	return listItemsByOwner(ctx, s.pool, ownerID, status, page)
}
func (t *txHandle) ListItemsByOwner(ctx context.Context, ownerID string, status *model.ItemStatus, page model.Page) ([]*model.Item, int, error) {
	return listItemsByOwner(ctx, t.q, ownerID, status, page)
}

func (s *Store) SearchItems(ctx context.Context, filter model.ItemFilter, page model.Page) ([]*model.Item, int, error) {
	return searchItems(ctx, s.pool, filter, page)
}
func (t *txHandle) SearchItems(ctx context.Context, filter model.ItemFilter, page model.Page) ([]*model.Item, int, error) {
	return searchItems(ctx, t.q, filter, page)
}

func (s *Store) FindNearbyItems(ctx context.Context, lat, lon, radiusMiles float64, filter model.ItemFilter, page model.Page) ([]*model.Item, int, error) {
	return findNearbyItems(ctx, s.pool, lat, lon, radiusMiles, filter, page)
}
func (t *txHandle) FindNearbyItems(ctx context.Context, lat, lon, radiusMiles float64, filter model.ItemFilter, page model.Page) ([]*model.Item, int, error) {
	return findNearbyItems(ctx, t.q, lat, lon, radiusMiles, filter, page)
}

func (s *Store) ListExpiredActiveItems(ctx context.Context, now time.Time, limit int) ([]*model.Item, error) {
	return listExpiredActiveItems(ctx, s.pool, now, limit)
}
func (t *txHandle) ListExpiredActiveItems(ctx context.Context, now time.Time, limit int) ([]*model.Item, error) {
	return listExpiredActiveItems(ctx, t.q, now, limit)
}

func (s *Store) ListArchivableItems(ctx context.Context, olderThan time.Time, limit int) ([]*model.Item, error) {
	return listArchivableItems(ctx, s.pool, olderThan, limit)
}
func (t *txHandle) ListArchivableItems(ctx context.Context, olderThan time.Time, limit int) ([]*model.Item, error) {
	return listArchivableItems(ctx, t.q, olderThan, limit)
}

func (s *Store) ListItemsByCategory(ctx context.Context, categoryID string) ([]*model.Item, error) {
	return listItemsByCategory(ctx, s.pool, categoryID)
}
func (t *txHandle) ListItemsByCategory(ctx context.Context, categoryID string) ([]*model.Item, error) {
	return listItemsByCategory(ctx, t.q, categoryID)
}
