// Package store defines the storage-provider seam between the core
// components (items, claims, lifecycle, reclaim) and whatever relational
// engine backs them. Grounded on the teacher's internal/storage.Storage
// interface (see internal/storage/provider.go): a single interface that
// every service-layer package codes against, with one or more concrete
// implementations (here: pg for production, memstore for tests).
package store

import (
	"context"
	"time"

	"github.com/giveaway/core/internal/model"
)

// ClaimUpdate is a partial update applied to a claim row. Pointer fields
// left nil are not modified.
type ClaimUpdate struct {
	Status         *model.ClaimStatus
	ContactedAt    *time.Time
	SelectedAt     *time.Time
	CompletedAt    *time.Time
	CancelledAt    *time.Time
	SkippedAt      *time.Time
	ExpiredAt      *time.Time
	RepositionedAt *time.Time
	QueuePosition  *int
	ListerNote     *string
	Reason         *string
}

// ItemUpdate is a partial update applied to an item row.
type ItemUpdate struct {
	Title       *string
	Description *string
	ZipCode     *string
	Location    *model.Point
	PickupNotes *string
	CategoryID  **string // double pointer distinguishes "leave unchanged" (nil) from "set to NULL" (non-nil pointing at nil)
	Status      *model.ItemStatus
	ClaimedAt   *time.Time
	ExpiredAt   *time.Time
	ArchivedAt  *time.Time
	ExpiresAt   *time.Time
}

// OutboxEvent is a row appended to the outbox table in the same
// transaction as the lifecycle change that produced it (spec section 9).
type OutboxEvent struct {
	ID            string
	AggregateType string // "item" | "claim"
	AggregateID   string
	EventType     string
	Payload       []byte // JSON-encoded
	CreatedAt     time.Time
	PublishedAt   *time.Time
}

// Tx is a unit-of-work handle passed to callbacks run inside Store.WithTx.
// It exposes the same read/write surface as Store but all operations
// participate in the same transaction.
type Tx interface {
	ItemReader
	ItemWriter
	ClaimReader
	ClaimWriter
	CategoryReader
	CategoryWriter
	OutboxWriter
}

// ItemReader is the read surface for items.
type ItemReader interface {
	GetItem(ctx context.Context, id string) (*model.Item, error)
	SearchItems(ctx context.Context, filter model.ItemFilter, page model.Page) ([]*model.Item, int, error)
	FindNearbyItems(ctx context.Context, lat, lon, radiusMiles float64, filter model.ItemFilter, page model.Page) ([]*model.Item, int, error)
	ListItemsByOwner(ctx context.Context, ownerID string, status *model.ItemStatus, page model.Page) ([]*model.Item, int, error)
	ListExpiredActiveItems(ctx context.Context, now time.Time, limit int) ([]*model.Item, error)
	ListArchivableItems(ctx context.Context, olderThan time.Time, limit int) ([]*model.Item, error)
	// ListItemsByCategory returns every item referencing categoryID,
	// regardless of status, for internal/categories.Service.Remove (spec
	// section 3: category_id "detaches to null on category removal").
	ListItemsByCategory(ctx context.Context, categoryID string) ([]*model.Item, error)
}

// ItemWriter is the write surface for items.
type ItemWriter interface {
	InsertItem(ctx context.Context, item *model.Item) error
	UpdateItem(ctx context.Context, id string, patch ItemUpdate) error
	BumpViewCount(ctx context.Context, id string, delta int64) error
	BumpClaimCount(ctx context.Context, id string, delta int64) error
}

// ClaimReader is the read surface for claims.
type ClaimReader interface {
	GetClaim(ctx context.Context, id string) (*model.Claim, error)
	GetActiveClaimByUser(ctx context.Context, itemID, userID string) (*model.Claim, error)
	ListActiveClaims(ctx context.Context, itemID string) ([]*model.Claim, error)
	ListClaims(ctx context.Context, itemID string, includeInactive bool) ([]*model.Claim, error)
	ListClaimsByUser(ctx context.Context, userID string) ([]*model.Claim, error)
	ListClaimsForLister(ctx context.Context, listerID string) ([]*model.Claim, error)
	ListStaleActiveClaims(ctx context.Context, olderThan time.Time, limit int) ([]*model.Claim, error)
}

// ClaimWriter is the write surface for claims.
type ClaimWriter interface {
	// InsertClaimAtNextPosition inserts claim with queue_position set to
	// (max active position for item)+1, inside the per-item serialization
	// boundary established by WithItemLock (spec section 4.2.2). Returns
	// apperr.ErrConflict if a concurrent insert won the race and this
	// insert's position collided (caller retries), and
	// apperr.ErrDuplicateClaim if the user already holds an active claim.
	InsertClaimAtNextPosition(ctx context.Context, claim *model.Claim) error
	UpdateClaim(ctx context.Context, id string, patch ClaimUpdate) error
	// RenumberActiveSet re-assigns dense 1..N positions to itemID's active
	// set, ordered by (queue_position, created_at) ascending, preserving
	// relative order (spec section 4.2.3).
	RenumberActiveSet(ctx context.Context, itemID string) error
}

// CategoryReader is the read surface for categories.
type CategoryReader interface {
	GetCategory(ctx context.Context, id string) (*model.Category, error)
	ListCategories(ctx context.Context, parentID *string) ([]*model.Category, error)
}

// CategoryUpdate is a partial update applied to a category row.
type CategoryUpdate struct {
	Name      *string
	Active    *bool
	SortOrder *int
}

// CategoryWriter is the write surface for categories (spec section 3:
// "not on the hot path" — no locking or outbox wiring needed here).
type CategoryWriter interface {
	InsertCategory(ctx context.Context, cat *model.Category) error
	UpdateCategory(ctx context.Context, id string, patch CategoryUpdate) error
}

// OutboxWriter appends an event to the outbox within the current
// transaction (spec section 9).
type OutboxWriter interface {
	AppendOutboxEvent(ctx context.Context, event OutboxEvent) error
}

// OutboxReader drains the outbox from outside the originating transaction.
// Only the publisher (internal/outbox) calls this; it is not part of Tx
// because the publish step never participates in the transaction that
// appended the row (spec section 9, "publisher polls it separately").
type OutboxReader interface {
	ListUnpublishedOutboxEvents(ctx context.Context, limit int) ([]OutboxEvent, error)
	MarkOutboxPublished(ctx context.Context, id string) error
}

// ItemLocker serializes writers against a single item's active set (spec
// section 5, "canonical unit of serialization is (item_id, active-set)").
// Implementations may use a Postgres advisory lock or, for memstore, a
// plain per-item mutex. The lock is held for the duration of fn.
type ItemLocker interface {
	WithItemLock(ctx context.Context, itemID string, fn func(ctx context.Context) error) error
}

// Store is the full storage-provider interface. WithTx wraps fn in a
// single database transaction: every store call made via the Tx argument
// either all commits or all rolls back together (spec section 4.3,
// "all-or-nothing").
type Store interface {
	ItemReader
	ItemWriter
	ClaimReader
	ClaimWriter
	CategoryReader
	CategoryWriter
	OutboxWriter
	OutboxReader
	ItemLocker

	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	Close() error
}
