// Package categories implements the category tree (spec section 3):
// hierarchical, self-referential parent, unique slug, active flag, sort
// order. Explicitly "not on the hot path" -- no per-item locking, no
// outbox wiring for the category rows themselves. Grounded on the
// teacher's small package-local Service-over-Store idiom also used by
// internal/items and internal/claims.
package categories

import (
	"context"
	"fmt"
	"regexp"

	"github.com/google/uuid"

	"github.com/giveaway/core/internal/apperr"
	"github.com/giveaway/core/internal/model"
	"github.com/giveaway/core/internal/store"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

// Service implements category-tree operations.
type Service struct {
	store store.Store
}

// New builds a Service backed by st.
func New(st store.Store) *Service {
	return &Service{store: st}
}

// CreateInput describes a new category.
type CreateInput struct {
	ParentID *string
	Slug     string
	Name     string
	SortOrder int
}

// Create inserts a new active category, validating slug shape and, if
// ParentID is set, that the parent exists.
func (s *Service) Create(ctx context.Context, in CreateInput) (*model.Category, error) {
	if !slugPattern.MatchString(in.Slug) {
		return nil, apperr.Invalid(apperr.FieldError{Field: "slug", Reason: "must be lowercase alphanumeric, hyphen-separated"})
	}
	if len(in.Name) == 0 {
		return nil, apperr.Invalid(apperr.FieldError{Field: "name", Reason: "must not be empty"})
	}
	if in.ParentID != nil {
		if _, err := s.store.GetCategory(ctx, *in.ParentID); err != nil {
			return nil, fmt.Errorf("categories: parent: %w", err)
		}
	}

	cat := &model.Category{
		ID:        uuid.NewString(),
		ParentID:  in.ParentID,
		Slug:      in.Slug,
		Name:      in.Name,
		Active:    true,
		SortOrder: in.SortOrder,
	}
	if err := s.store.InsertCategory(ctx, cat); err != nil {
		return nil, fmt.Errorf("categories: insert: %w", err)
	}
	return cat, nil
}

// UpdateInput is a partial edit applied to an existing category.
type UpdateInput struct {
	Name      *string
	Active    *bool
	SortOrder *int
}

// Update applies a partial edit to an existing category.
func (s *Service) Update(ctx context.Context, id string, in UpdateInput) (*model.Category, error) {
	if _, err := s.store.GetCategory(ctx, id); err != nil {
		return nil, err
	}
	patch := store.CategoryUpdate{
		Name:      in.Name,
		Active:    in.Active,
		SortOrder: in.SortOrder,
	}
	if err := s.store.UpdateCategory(ctx, id, patch); err != nil {
		return nil, fmt.Errorf("categories: update: %w", err)
	}
	return s.store.GetCategory(ctx, id)
}

// Get returns a single category by id.
func (s *Service) Get(ctx context.Context, id string) (*model.Category, error) {
	return s.store.GetCategory(ctx, id)
}

// Children lists the direct children of parentID. A nil parentID lists
// the root categories.
func (s *Service) Children(ctx context.Context, parentID *string) ([]*model.Category, error) {
	return s.store.ListCategories(ctx, parentID)
}

// Remove deactivates a category and detaches it from every item that
// references it (spec section 3: category_id is a "weak reference;
// detaches to null on category removal"). Implemented as an explicit
// Go-level operation rather than ON DELETE SET NULL so the detachment
// and the category's deactivation happen in one place the caller can
// reason about, and so a future outbox append for affected items has
// somewhere to live.
func (s *Service) Remove(ctx context.Context, id string) error {
	cat, err := s.store.GetCategory(ctx, id)
	if err != nil {
		return err
	}
	if !cat.Active {
		return nil
	}

	return s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		items, err := tx.ListItemsByCategory(ctx, id)
		if err != nil {
			return fmt.Errorf("categories: list items for detach: %w", err)
		}
		for _, item := range items {
			var nilCategory *string
			if err := tx.UpdateItem(ctx, item.ID, store.ItemUpdate{CategoryID: &nilCategory}); err != nil {
				return fmt.Errorf("categories: detach item %s: %w", item.ID, err)
			}
		}

		inactive := false
		return tx.UpdateCategory(ctx, id, store.CategoryUpdate{Active: &inactive})
	})
}
