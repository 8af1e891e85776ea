// Package items implements the item registry (spec section 4.1): creating,
// updating, searching, and publishing give-away listings. Grounded on the
// teacher's package-local "Storage" seam idiom (internal/decision/iterate.go
// defines a minimal Storage interface and free functions operate against
// it) generalized into a Service type holding the full store.Store.
package items

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/giveaway/core/internal/apperr"
	"github.com/giveaway/core/internal/config"
	"github.com/giveaway/core/internal/idgen"
	"github.com/giveaway/core/internal/model"
	"github.com/giveaway/core/internal/store"
)

// Service implements the item registry operations.
type Service struct {
	store store.Store
	cfg   config.Options
	now   func() time.Time
}

// New builds a Service backed by st, applying cfg's TTL and page-size
// limits.
func New(st store.Store, cfg config.Options) *Service {
	return &Service{store: st, cfg: cfg, now: time.Now}
}

// Create validates in and inserts a new item owned by ownerID, immediately
// ACTIVE and accepting claims (spec section 4.1, Create: "Sets
// status=ACTIVE, expires_at = now + daysUntilExpiration"). DRAFT exists in
// the status enum (spec section 3) for items the out-of-scope plumbing
// layer is still assembling (e.g. pending image upload) before handing
// them to Create; the core itself never produces a DRAFT item.
func (s *Service) Create(ctx context.Context, ownerID string, in CreateInput) (*model.Item, error) {
	if err := validateCreate(in); err != nil {
		return nil, err
	}
	if in.CategoryID != nil {
		if err := s.checkCategoryUsable(ctx, *in.CategoryID); err != nil {
			return nil, err
		}
	}

	now := s.now()
	item := &model.Item{
		ID:          idgen.NewItemID(ownerID, in.Title, now, 0),
		OwnerID:     ownerID,
		CategoryID:  in.CategoryID,
		Title:       in.Title,
		Description: in.Description,
		ZipCode:     in.ZipCode,
		PickupNotes: in.PickupNotes,
		Status:      model.ItemActive,
		CreatedAt:   now,
		UpdatedAt:   now,
		ExpiresAt:   now.AddDate(0, 0, s.cfg.ClampTTLDays(in.TTLDays)),
	}
	if in.Lat != nil && in.Lon != nil {
		item.Location = model.NewPoint(*in.Lat, *in.Lon)
	}

	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := tx.InsertItem(ctx, item); err != nil {
			return fmt.Errorf("items: insert: %w", err)
		}
		return appendItemEvent(ctx, tx, item, "item.created")
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

// checkCategoryUsable returns apperr.NotFound if categoryID doesn't exist,
// or an InvalidInputError if it exists but is inactive (spec section 4.1,
// Create: "category exists and active").
func (s *Service) checkCategoryUsable(ctx context.Context, categoryID string) error {
	cat, err := s.store.GetCategory(ctx, categoryID)
	if err != nil {
		return err
	}
	if !cat.Active {
		return apperr.Invalid(apperr.FieldError{Field: "category_id", Reason: "category is not active"})
	}
	return nil
}

func validateCreate(in CreateInput) error {
	var fields []apperr.FieldError
	if !model.ValidTitle(in.Title) {
		fields = append(fields, apperr.FieldError{Field: "title", Reason: "must be 5-100 characters"})
	}
	if !model.ValidDescription(in.Description) {
		fields = append(fields, apperr.FieldError{Field: "description", Reason: "must be 10-1000 characters"})
	}
	if !model.ValidZip(in.ZipCode) {
		fields = append(fields, apperr.FieldError{Field: "zip_code", Reason: "must match \\d{5}(-\\d{4})?"})
	}
	if (in.Lat == nil) != (in.Lon == nil) {
		fields = append(fields, apperr.FieldError{Field: "location", Reason: "lat and lon must be set together"})
	} else if in.Lat != nil && in.Lon != nil && !model.ValidCoordinate(*in.Lat, *in.Lon) {
		fields = append(fields, apperr.FieldError{Field: "location", Reason: "out of range"})
	}
	if len(fields) > 0 {
		return apperr.Invalid(fields...)
	}
	return nil
}

// Update applies a partial edit to an item owned by ownerID. Only ACTIVE
// items may be edited (spec section 4.1, invariant: terminal items are
// immutable); any other status is InvalidStateTransition.
func (s *Service) Update(ctx context.Context, ownerID, itemID string, in UpdateInput) (*model.Item, error) {
	item, err := s.store.GetItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if item.OwnerID != ownerID {
		return nil, apperr.Forbidden("only the owner may edit this item")
	}
	if item.Status != model.ItemActive {
		return nil, apperr.InvalidTransition("item", string(item.Status), "edit")
	}

	patch := store.ItemUpdate{}
	if in.Title != nil {
		if !model.ValidTitle(*in.Title) {
			return nil, apperr.Invalid(apperr.FieldError{Field: "title", Reason: "must be 5-100 characters"})
		}
		patch.Title = in.Title
	}
	if in.Description != nil {
		if !model.ValidDescription(*in.Description) {
			return nil, apperr.Invalid(apperr.FieldError{Field: "description", Reason: "must be 10-1000 characters"})
		}
		patch.Description = in.Description
	}
	if in.ZipCode != nil {
		if !model.ValidZip(*in.ZipCode) {
			return nil, apperr.Invalid(apperr.FieldError{Field: "zip_code", Reason: "must match \\d{5}(-\\d{4})?"})
		}
		patch.ZipCode = in.ZipCode
	}
	if in.Lat != nil && in.Lon != nil {
		if !model.ValidCoordinate(*in.Lat, *in.Lon) {
			return nil, apperr.Invalid(apperr.FieldError{Field: "location", Reason: "out of range"})
		}
		pt := model.NewPoint(*in.Lat, *in.Lon)
		patch.Location = &pt
	}
	if in.PickupNotes != nil {
		patch.PickupNotes = in.PickupNotes
	}
	if in.CategoryID != nil {
		active, err := s.store.ListActiveClaims(ctx, itemID)
		if err != nil {
			return nil, err
		}
		if len(active) > 0 {
			return nil, fmt.Errorf("items: category change blocked by %d active claim(s): %w", len(active), apperr.ErrConflictWithActiveClaims)
		}
		if *in.CategoryID != nil {
			if err := s.checkCategoryUsable(ctx, **in.CategoryID); err != nil {
				return nil, err
			}
		}
		patch.CategoryID = in.CategoryID
	}

	err = s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := tx.UpdateItem(ctx, itemID, patch); err != nil {
			return err
		}
		updated, err := tx.GetItem(ctx, itemID)
		if err != nil {
			return err
		}
		return appendItemEvent(ctx, tx, updated, "item.updated")
	})
	if err != nil {
		return nil, err
	}
	return s.store.GetItem(ctx, itemID)
}

// changeStatusTransitions enumerates the item-status edges ChangeStatus
// will perform. SUSPENDED is an administrative off-ramp reversible to
// ACTIVE (spec section 3); DRAFT->ACTIVE is included for items the
// out-of-scope plumbing layer created directly in DRAFT. Every other
// transition (CLAIMED, EXPIRED, DELETED) is reached only through
// internal/lifecycle or internal/claims.Select, never through this
// generic entry point.
var changeStatusTransitions = map[model.ItemStatus]map[model.ItemStatus]bool{
	model.ItemDraft:     {model.ItemActive: true},
	model.ItemActive:    {model.ItemSuspended: true},
	model.ItemSuspended: {model.ItemActive: true},
}

// ChangeStatus drives an owner-initiated item status transition (spec
// section 6, Items.ChangeStatus): DRAFT->ACTIVE (publish) or the
// ACTIVE<->SUSPENDED administrative off-ramp. Any other requested
// transition is InvalidStateTransition -- cross-entity transitions
// (CLAIMED, EXPIRED, DELETED) are not reachable through this operation.
func (s *Service) ChangeStatus(ctx context.Context, ownerID, itemID string, to model.ItemStatus) (*model.Item, error) {
	item, err := s.store.GetItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if item.OwnerID != ownerID {
		return nil, apperr.Forbidden("only the owner may change this item's status")
	}
	if !changeStatusTransitions[item.Status][to] {
		return nil, apperr.InvalidTransition("item", string(item.Status), string(to))
	}

	eventType := "item.status_changed"
	switch to {
	case model.ItemActive:
		if item.Status == model.ItemDraft {
			eventType = "item.published"
		} else {
			eventType = "item.unsuspended"
		}
	case model.ItemSuspended:
		eventType = "item.suspended"
	}

	err = s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		status := to
		if err := tx.UpdateItem(ctx, itemID, store.ItemUpdate{Status: &status}); err != nil {
			return err
		}
		item.Status = to
		return appendItemEvent(ctx, tx, item, eventType)
	})
	if err != nil {
		return nil, err
	}
	return s.store.GetItem(ctx, itemID)
}

// GetWithQueue returns an item plus the claim-queue summary viewerID sees
// for it (spec section 4.2.1, GetQueueSummary): total claims, active
// claims, and the viewer's own position if they hold an active claim.
func (s *Service) GetWithQueue(ctx context.Context, viewerID, itemID string) (*QueueView, error) {
	item, err := s.store.GetItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	all, err := s.store.ListClaims(ctx, itemID, true)
	if err != nil {
		return nil, err
	}
	var active int
	var viewerPos *int
	for _, c := range all {
		if c.Status.IsActive() {
			active++
			if c.UserID == viewerID {
				pos := c.QueuePosition
				viewerPos = &pos
			}
		}
	}
	return &QueueView{
		Item:    item,
		Summary: model.NewQueueSummary(len(all), active, viewerPos),
	}, nil
}

// validateSortFilter rejects a filter whose SortKey/SortDir isn't on the
// whitelist (spec section 4.1: "Sort keys and direction are whitelisted
// (created_at|title|expires_at|distance, ASC|DESC); any other key is
// InvalidInput"). An unset SortKey/SortDir means the caller didn't
// request a particular sort, not an invalid one, so it falls through to
// the store's own default order (created_at ASC; pg's FindNearbyItems
// orders by distance) rather than being rejected here.
func validateSortFilter(filter model.ItemFilter) error {
	var fields []apperr.FieldError
	if filter.SortKey != "" && !model.ValidSortKey(filter.SortKey) {
		fields = append(fields, apperr.FieldError{Field: "sort_key", Reason: "must be one of created_at, title, expires_at, distance"})
	}
	if filter.SortDir != "" && !model.ValidSortDir(filter.SortDir) {
		fields = append(fields, apperr.FieldError{Field: "sort_dir", Reason: "must be ASC or DESC"})
	}
	if len(fields) > 0 {
		return apperr.Invalid(fields...)
	}
	return nil
}

// Search runs a filtered, paginated search over ACTIVE, unexpired items
// (spec section 4.1, Search).
func (s *Service) Search(ctx context.Context, filter model.ItemFilter, page model.Page) ([]*model.Item, int, error) {
	if err := validateSortFilter(filter); err != nil {
		return nil, 0, err
	}
	page = page.Clamp(s.cfg.SearchPageLimitMax)
	return s.store.SearchItems(ctx, filter, page)
}

// FindNearby runs a radius-bounded search centered on (lat, lon), clamping
// the radius to [1, 100] miles (spec section 4.1, FindNearby).
func (s *Service) FindNearby(ctx context.Context, lat, lon, radiusMiles float64, filter model.ItemFilter, page model.Page) ([]*model.Item, int, error) {
	if err := validateSortFilter(filter); err != nil {
		return nil, 0, err
	}
	if !model.ValidCoordinate(lat, lon) {
		return nil, 0, apperr.Invalid(apperr.FieldError{Field: "location", Reason: "out of range"})
	}
	page = page.Clamp(s.cfg.SearchPageLimitMax)
	radiusMiles = model.ClampRadius(radiusMiles)
	return s.store.FindNearbyItems(ctx, lat, lon, radiusMiles, filter, page)
}

// ListByOwner lists ownerID's listings, optionally filtered by status.
func (s *Service) ListByOwner(ctx context.Context, ownerID string, status *model.ItemStatus, page model.Page) ([]*model.Item, int, error) {
	page = page.Clamp(s.cfg.SearchPageLimitMax)
	return s.store.ListItemsByOwner(ctx, ownerID, status, page)
}

// RecordView bumps an item's view counter (spec section 4.1: "view_count is
// advisory, not used by any invariant").
func (s *Service) RecordView(ctx context.Context, itemID string) error {
	return s.store.BumpViewCount(ctx, itemID, 1)
}

type itemEventPayload struct {
	EventType string    `json:"event_type"`
	ItemID    string    `json:"item_id"`
	OwnerID   string    `json:"owner_id"`
	Status    string    `json:"status"`
	OccurredAt time.Time `json:"occurred_at"`
}

func appendItemEvent(ctx context.Context, tx store.Tx, item *model.Item, eventType string) error {
	payload, err := json.Marshal(itemEventPayload{
		EventType:  eventType,
		ItemID:     item.ID,
		OwnerID:    item.OwnerID,
		Status:     string(item.Status),
		OccurredAt: time.Now(),
	})
	if err != nil {
		return fmt.Errorf("items: marshal event: %w", err)
	}
	return tx.AppendOutboxEvent(ctx, store.OutboxEvent{
		AggregateType: "item",
		AggregateID:   item.ID,
		EventType:     eventType,
		Payload:       payload,
	})
}
