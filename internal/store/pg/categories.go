package pg

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/giveaway/core/internal/apperr"
	"github.com/giveaway/core/internal/model"
	"github.com/giveaway/core/internal/store"
)

const categoryColumns = `id, parent_id, slug, name, active, sort_order`

func scanCategory(row pgx.Row) (*model.Category, error) {
	var c model.Category
	if err := row.Scan(&c.ID, &c.ParentID, &c.Slug, &c.Name, &c.Active, &c.SortOrder); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("category", "")
		}
		return nil, fmt.Errorf("pg: scan category: %w", err)
	}
	return &c, nil
}

func getCategory(ctx context.Context, q queryer, id string) (*model.Category, error) {
	row := q.QueryRow(ctx, `SELECT `+categoryColumns+` FROM categories WHERE id = $1`, id)
	c, err := scanCategory(row)
	if err != nil {
		if apperr.Is(err, apperr.ErrNotFound) {
			return nil, apperr.NotFound("category", id)
		}
		return nil, err
	}
	return c, nil
}

// listCategories lists either the top-level categories (parentID nil) or
// one category's direct children, matching the teacher's adjacency-list
// Category tree traversal one level at a time rather than a recursive CTE
// (spec section 3: categories are "not on the hot path", so the simpler
// per-level query wins over a recursive one).
func listCategories(ctx context.Context, q queryer, parentID *string) ([]*model.Category, error) {
	var rows pgx.Rows
	var err error
	if parentID == nil {
		rows, err = q.Query(ctx, `SELECT `+categoryColumns+` FROM categories WHERE parent_id IS NULL ORDER BY sort_order ASC, name ASC`)
	} else {
		rows, err = q.Query(ctx, `SELECT `+categoryColumns+` FROM categories WHERE parent_id = $1 ORDER BY sort_order ASC, name ASC`, *parentID)
	}
	if err != nil {
		return nil, fmt.Errorf("pg: list categories: %w", err)
	}
	defer rows.Close()

	var out []*model.Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func insertCategory(ctx context.Context, q queryer, cat *model.Category) error {
	_, err := q.Exec(ctx, `
		INSERT INTO categories (id, parent_id, slug, name, active, sort_order)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		cat.ID, cat.ParentID, cat.Slug, cat.Name, cat.Active, cat.SortOrder,
	)
	if err != nil {
		return fmt.Errorf("pg: insert category: %w", classifyWriteError(err))
	}
	return nil
}

func updateCategory(ctx context.Context, q queryer, id string, patch store.CategoryUpdate) error {
	set := make([]string, 0, 3)
	args := make([]any, 0, 3)
	arg := func(col string, v any) {
		args = append(args, v)
		set = append(set, fmt.Sprintf("%s = $%d", col, len(args)))
	}

	if patch.Name != nil {
		arg("name", *patch.Name)
	}
	if patch.Active != nil {
		arg("active", *patch.Active)
	}
	if patch.SortOrder != nil {
		arg("sort_order", *patch.SortOrder)
	}
	if len(set) == 0 {
		return nil
	}

	args = append(args, id)
	query := fmt.Sprintf("UPDATE categories SET %s WHERE id = $%d", joinClauses(set), len(args))
	tag, err := q.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("pg: update category %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("category", id)
	}
	return nil
}

// --- Store / txHandle adapters ---

func (s *Store) GetCategory(ctx context.Context, id string) (*model.Category, error) { return getCategory(ctx, s.pool, id) }
func (t *txHandle) GetCategory(ctx context.Context, id string) (*model.Category, error) { return getCategory(ctx, t.q, id) }

func (s *Store) ListCategories(ctx context.Context, parentID *string) ([]*model.Category, error) {
	return listCategories(ctx, s.pool, parentID)
}
func (t *txHandle) ListCategories(ctx context.Context, parentID *string) ([]*model.Category, error) {
	return listCategories(ctx, t.q, parentID)
}

func (s *Store) InsertCategory(ctx context.Context, cat *model.Category) error {
	return insertCategory(ctx, s.pool, cat)
}
func (t *txHandle) InsertCategory(ctx context.Context, cat *model.Category) error {
	return insertCategory(ctx, t.q, cat)
}

func (s *Store) UpdateCategory(ctx context.Context, id string, patch store.CategoryUpdate) error {
	return updateCategory(ctx, s.pool, id, patch)
}
func (t *txHandle) UpdateCategory(ctx context.Context, id string, patch store.CategoryUpdate) error {
	return updateCategory(ctx, t.q, id, patch)
}
