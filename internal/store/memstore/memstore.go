// Package memstore is an in-memory Store implementation used by unit and
// property tests (spec section 8) that need a real engine with genuine
// per-item serialization, not a mock. Grounded on the teacher's stance in
// internal/storage/sqlite/test_helpers.go of testing against a real
// (if lightweight) storage engine so concurrency bugs in the queue engine
// aren't mocked away.
package memstore

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/giveaway/core/internal/apperr"
	"github.com/giveaway/core/internal/model"
	"github.com/giveaway/core/internal/store"
)

// Store is an in-memory, goroutine-safe Store implementation.
type Store struct {
	mu         sync.RWMutex
	items      map[string]*model.Item
	claims     map[string]*model.Claim
	categories map[string]*model.Category
	outbox     []store.OutboxEvent

	lockMu    sync.Mutex
	itemLocks map[string]*sync.Mutex
}

// New returns an empty in-memory Store.
func New() *Store {
	return &Store{
		items:      make(map[string]*model.Item),
		claims:     make(map[string]*model.Claim),
		categories: make(map[string]*model.Category),
		itemLocks:  make(map[string]*sync.Mutex),
	}
}

var _ store.Store = (*Store)(nil)
var _ store.Tx = (*Store)(nil)

func (s *Store) Close() error { return nil }

// WithTx runs fn against this Store directly. memstore has no real
// transaction log; atomicity for item-scoped operations comes from the
// per-item lock callers take via WithItemLock before calling WithTx (the
// same nesting internal/claims and internal/lifecycle use against the pg
// backend).
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	return fn(ctx, s)
}

// WithItemLock serializes all writers for a given item (spec section 5).
func (s *Store) WithItemLock(ctx context.Context, itemID string, fn func(ctx context.Context) error) error {
	lock := s.lockFor(itemID)
	lock.Lock()
	defer lock.Unlock()
	return fn(ctx)
}

func (s *Store) lockFor(itemID string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	l, ok := s.itemLocks[itemID]
	if !ok {
		l = &sync.Mutex{}
		s.itemLocks[itemID] = l
	}
	return l
}

func cloneItem(it *model.Item) *model.Item {
	cp := *it
	return &cp
}

func cloneClaim(c *model.Claim) *model.Claim {
	cp := *c
	return &cp
}

// --- Items ---

func (s *Store) InsertItem(ctx context.Context, item *model.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.items[item.ID]; exists {
		return apperr.ErrConflict
	}
	s.items[item.ID] = cloneItem(item)
	return nil
}

func (s *Store) GetItem(ctx context.Context, id string) (*model.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	it, ok := s.items[id]
	if !ok {
		return nil, apperr.NotFound("item", id)
	}
	return cloneItem(it), nil
}

func (s *Store) UpdateItem(ctx context.Context, id string, patch store.ItemUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[id]
	if !ok {
		return apperr.NotFound("item", id)
	}
	applyItemPatch(it, patch)
	it.UpdatedAt = time.Now()
	return nil
}

func applyItemPatch(it *model.Item, patch store.ItemUpdate) {
	if patch.Title != nil {
		it.Title = *patch.Title
	}
	if patch.Description != nil {
		it.Description = *patch.Description
	}
	if patch.ZipCode != nil {
		it.ZipCode = *patch.ZipCode
	}
	if patch.Location != nil {
		it.Location = *patch.Location
	}
	if patch.PickupNotes != nil {
		it.PickupNotes = *patch.PickupNotes
	}
	if patch.CategoryID != nil {
		it.CategoryID = *patch.CategoryID
	}
	if patch.Status != nil {
		it.Status = *patch.Status
	}
	if patch.ClaimedAt != nil {
		it.ClaimedAt = patch.ClaimedAt
	}
	if patch.ExpiredAt != nil {
		it.ExpiredAt = patch.ExpiredAt
	}
	if patch.ArchivedAt != nil {
		it.ArchivedAt = patch.ArchivedAt
	}
	if patch.ExpiresAt != nil {
		it.ExpiresAt = *patch.ExpiresAt
	}
}

func (s *Store) BumpViewCount(ctx context.Context, id string, delta int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[id]
	if !ok {
		return apperr.NotFound("item", id)
	}
	it.ViewCount += delta
	return nil
}

func (s *Store) BumpClaimCount(ctx context.Context, id string, delta int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[id]
	if !ok {
		return apperr.NotFound("item", id)
	}
	it.ClaimCount += delta
	return nil
}

func (s *Store) ListItemsByOwner(ctx context.Context, ownerID string, status *model.ItemStatus, page model.Page) ([]*model.Item, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var matched []*model.Item
	for _, it := range s.items {
		if it.OwnerID != ownerID {
			continue
		}
		if status != nil && it.Status != *status {
			continue
		}
		matched = append(matched, cloneItem(it))
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.Before(matched[j].CreatedAt) })
	return paginateItems(matched, page), len(matched), nil
}

func (s *Store) SearchItems(ctx context.Context, filter model.ItemFilter, page model.Page) ([]*model.Item, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	now := time.Now()
	var matched []*model.Item
	for _, it := range s.items {
		if it.Status != model.ItemActive || !it.ExpiresAt.After(now) {
			continue
		}
		if !matchesFilter(it, filter) {
			continue
		}
		matched = append(matched, cloneItem(it))
	}
	sortItems(matched, filter.SortKey, filter.SortDir)
	return paginateItems(matched, page), len(matched), nil
}

func (s *Store) FindNearbyItems(ctx context.Context, lat, lon, radiusMiles float64, filter model.ItemFilter, page model.Page) ([]*model.Item, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	now := time.Now()
	var matched []*model.Item
	for _, it := range s.items {
		if it.Status != model.ItemActive || !it.ExpiresAt.After(now) {
			continue
		}
		if !it.Location.HasLocation() {
			continue // items without a location are excluded from nearby results only (spec section 4.1)
		}
		if haversineMiles(lat, lon, it.Location.Lat, it.Location.Lon) > radiusMiles {
			continue
		}
		if !matchesFilter(it, filter) {
			continue
		}
		matched = append(matched, cloneItem(it))
	}
	sortItems(matched, filter.SortKey, filter.SortDir)
	return paginateItems(matched, page), len(matched), nil
}

func (s *Store) ListExpiredActiveItems(ctx context.Context, now time.Time, limit int) ([]*model.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*model.Item
	for _, it := range s.items {
		if it.Status == model.ItemActive && it.ExpiresAt.Before(now) {
			out = append(out, cloneItem(it))
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (s *Store) ListItemsByCategory(ctx context.Context, categoryID string) ([]*model.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*model.Item
	for _, it := range s.items {
		if it.CategoryID != nil && *it.CategoryID == categoryID {
			out = append(out, cloneItem(it))
		}
	}
	return out, nil
}

func (s *Store) ListArchivableItems(ctx context.Context, olderThan time.Time, limit int) ([]*model.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*model.Item
	for _, it := range s.items {
		if it.ArchivedAt != nil {
			continue
		}
		if it.Status != model.ItemClaimed && it.Status != model.ItemExpired {
			continue
		}
		ts := it.ClaimedAt
		if it.Status == model.ItemExpired {
			ts = it.ExpiredAt
		}
		if ts == nil || ts.After(olderThan) {
			continue
		}
		out = append(out, cloneItem(it))
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func matchesFilter(it *model.Item, filter model.ItemFilter) bool {
	if filter.CategoryID != nil {
		if it.CategoryID == nil || *it.CategoryID != *filter.CategoryID {
			return false
		}
	}
	if filter.ZipCode != nil && it.ZipCode != *filter.ZipCode {
		return false
	}
	return true
}

// sortItems orders an already-validated SortKey/SortDir pair (internal/
// items.Service.Search and FindNearby reject anything outside
// model.ValidSortKey/ValidSortDir with InvalidInput before a filter ever
// reaches the store). The default case covers created_at and distance
// (memstore has no projected distance column, matching
// internal/store/pg.orderByClause's own created_at fallback for distance
// outside FindNearby) rather than silently accepting an unvetted key.
func sortItems(items []*model.Item, key model.SortKey, dir model.SortDir) {
	less := func(i, j int) bool {
		a, b := items[i], items[j]
		switch key {
		case model.SortByTitle:
			return a.Title < b.Title
		case model.SortByExpiresAt:
			return a.ExpiresAt.Before(b.ExpiresAt)
		default: // created_at, and distance (memstore has no projected distance column)
			return a.CreatedAt.Before(b.CreatedAt)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if dir == model.SortDesc {
			return less(j, i)
		}
		return less(i, j)
	})
}

func paginateItems(items []*model.Item, page model.Page) []*model.Item {
	off := page.Offset()
	if off >= len(items) {
		return []*model.Item{}
	}
	end := off + page.Size
	if end > len(items) {
		end = len(items)
	}
	return items[off:end]
}

// --- Claims ---

func (s *Store) GetClaim(ctx context.Context, id string) (*model.Claim, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.claims[id]
	if !ok {
		return nil, apperr.NotFound("claim", id)
	}
	return cloneClaim(c), nil
}

func (s *Store) GetActiveClaimByUser(ctx context.Context, itemID, userID string) (*model.Claim, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.claims {
		if c.ItemID == itemID && c.UserID == userID && c.Status.IsActive() {
			return cloneClaim(c), nil
		}
	}
	return nil, apperr.NotFound("claim", "")
}

func (s *Store) ListActiveClaims(ctx context.Context, itemID string) ([]*model.Claim, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*model.Claim
	for _, c := range s.claims {
		if c.ItemID == itemID && c.Status.IsActive() {
			out = append(out, cloneClaim(c))
		}
	}
	sortClaimsByPositionThenCreated(out)
	return out, nil
}

func (s *Store) ListClaims(ctx context.Context, itemID string, includeInactive bool) ([]*model.Claim, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*model.Claim
	for _, c := range s.claims {
		if c.ItemID != itemID {
			continue
		}
		if !includeInactive && !c.Status.IsActive() {
			continue
		}
		out = append(out, cloneClaim(c))
	}
	sortClaimsByPositionThenCreated(out)
	return out, nil
}

func (s *Store) ListClaimsByUser(ctx context.Context, userID string) ([]*model.Claim, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*model.Claim
	for _, c := range s.claims {
		if c.UserID == userID {
			out = append(out, cloneClaim(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) ListClaimsForLister(ctx context.Context, listerID string) ([]*model.Claim, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*model.Claim
	for _, c := range s.claims {
		it, ok := s.items[c.ItemID]
		if !ok || it.OwnerID != listerID {
			continue
		}
		out = append(out, cloneClaim(c))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) ListStaleActiveClaims(ctx context.Context, olderThan time.Time, limit int) ([]*model.Claim, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*model.Claim
	for _, c := range s.claims {
		if c.Status.IsActive() && c.CreatedAt.Before(olderThan) {
			out = append(out, cloneClaim(c))
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func sortClaimsByPositionThenCreated(claims []*model.Claim) {
	sort.Slice(claims, func(i, j int) bool {
		if claims[i].QueuePosition != claims[j].QueuePosition {
			return claims[i].QueuePosition < claims[j].QueuePosition
		}
		return claims[i].CreatedAt.Before(claims[j].CreatedAt)
	})
}

func (s *Store) InsertClaimAtNextPosition(ctx context.Context, claim *model.Claim) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range s.claims {
		if c.ItemID == claim.ItemID && c.UserID == claim.UserID && c.Status.IsActive() {
			return apperr.ErrDuplicateClaim
		}
	}

	maxPos := 0
	for _, c := range s.claims {
		if c.ItemID == claim.ItemID && c.Status.IsActive() && c.QueuePosition > maxPos {
			maxPos = c.QueuePosition
		}
	}
	claim.QueuePosition = maxPos + 1
	s.claims[claim.ID] = cloneClaim(claim)
	return nil
}

func (s *Store) UpdateClaim(ctx context.Context, id string, patch store.ClaimUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.claims[id]
	if !ok {
		return apperr.NotFound("claim", id)
	}
	applyClaimPatch(c, patch)
	return nil
}

func applyClaimPatch(c *model.Claim, patch store.ClaimUpdate) {
	if patch.Status != nil {
		c.Status = *patch.Status
	}
	if patch.ContactedAt != nil {
		c.ContactedAt = patch.ContactedAt
	}
	if patch.SelectedAt != nil {
		c.SelectedAt = patch.SelectedAt
	}
	if patch.CompletedAt != nil {
		c.CompletedAt = patch.CompletedAt
	}
	if patch.CancelledAt != nil {
		c.CancelledAt = patch.CancelledAt
	}
	if patch.SkippedAt != nil {
		c.SkippedAt = patch.SkippedAt
	}
	if patch.ExpiredAt != nil {
		c.ExpiredAt = patch.ExpiredAt
	}
	if patch.RepositionedAt != nil {
		c.RepositionedAt = patch.RepositionedAt
	}
	if patch.QueuePosition != nil {
		c.QueuePosition = *patch.QueuePosition
	}
	if patch.ListerNote != nil {
		c.ListerNote = *patch.ListerNote
	}
	if patch.Reason != nil {
		c.Reason = *patch.Reason
	}
}

// RenumberActiveSet renumbers itemID's active set to a dense 1..N sequence
// ordered by (queue_position, created_at), preserving relative order
// (spec section 4.2.3).
func (s *Store) RenumberActiveSet(ctx context.Context, itemID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var active []*model.Claim
	for _, c := range s.claims {
		if c.ItemID == itemID && c.Status.IsActive() {
			active = append(active, c)
		}
	}
	sortClaimsByPositionThenCreated(active)
	for i, c := range active {
		c.QueuePosition = i + 1
	}
	return nil
}

// --- Categories ---

func (s *Store) GetCategory(ctx context.Context, id string) (*model.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cat, ok := s.categories[id]
	if !ok {
		return nil, apperr.NotFound("category", id)
	}
	cp := *cat
	return &cp, nil
}

func (s *Store) ListCategories(ctx context.Context, parentID *string) ([]*model.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*model.Category
	for _, cat := range s.categories {
		if !sameParent(cat.ParentID, parentID) {
			continue
		}
		cp := *cat
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SortOrder < out[j].SortOrder })
	return out, nil
}

func sameParent(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func (s *Store) InsertCategory(ctx context.Context, cat *model.Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.categories[cat.ID]; exists {
		return apperr.ErrConflict
	}
	cp := *cat
	s.categories[cat.ID] = &cp
	return nil
}

func (s *Store) UpdateCategory(ctx context.Context, id string, patch store.CategoryUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cat, ok := s.categories[id]
	if !ok {
		return apperr.NotFound("category", id)
	}
	if patch.Name != nil {
		cat.Name = *patch.Name
	}
	if patch.Active != nil {
		cat.Active = *patch.Active
	}
	if patch.SortOrder != nil {
		cat.SortOrder = *patch.SortOrder
	}
	return nil
}

// PutCategory is a test/seed helper that bypasses InsertCategory's
// duplicate check, for tests that need to pre-populate a category tree.
func (s *Store) PutCategory(cat *model.Category) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *cat
	s.categories[cat.ID] = &cp
}

// --- Outbox ---

func (s *Store) AppendOutboxEvent(ctx context.Context, event store.OutboxEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if event.ID == "" {
		event.ID = outboxID(len(s.outbox))
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	s.outbox = append(s.outbox, event)
	return nil
}

func outboxID(seq int) string {
	return "obx-" + time.Now().Format("150405.000000000") + "-" + string(rune('a'+seq%26))
}

func (s *Store) ListUnpublishedOutboxEvents(ctx context.Context, limit int) ([]store.OutboxEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []store.OutboxEvent
	for _, e := range s.outbox {
		if e.PublishedAt != nil {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *Store) MarkOutboxPublished(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.outbox {
		if s.outbox[i].ID == id {
			now := time.Now()
			s.outbox[i].PublishedAt = &now
			return nil
		}
	}
	return apperr.NotFound("outbox_event", id)
}

// Outbox returns a copy of the appended events, for test assertions.
func (s *Store) Outbox() []store.OutboxEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]store.OutboxEvent, len(s.outbox))
	copy(out, s.outbox)
	return out
}

// haversineMiles returns the great-circle distance between two coordinates
// in miles (spec section 4.1, "find nearby").
func haversineMiles(lat1, lon1, lat2, lon2 float64) float64 {
	const earthRadiusMiles = 3958.8
	toRad := func(d float64) float64 { return d * math.Pi / 180 }
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)
	sinLat := math.Sin(dLat / 2)
	sinLon := math.Sin(dLon / 2)
	a := sinLat*sinLat + math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*sinLon*sinLon
	c := 2 * math.Asin(math.Sqrt(a))
	return earthRadiusMiles * c
}
