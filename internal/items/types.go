package items

import (
	"github.com/giveaway/core/internal/model"
)

// CreateInput carries the caller-supplied fields for a new item (spec
// section 4.1, Create).
type CreateInput struct {
	Title       string
	Description string
	ZipCode     string
	Lat         *float64
	Lon         *float64
	PickupNotes string
	CategoryID  *string
	TTLDays     int // 0 means "use the default TTL"
}

// UpdateInput is a partial update; nil fields are left unchanged. Status is
// not settable here — transitions go through ChangeStatus or, for
// cascading transitions, internal/lifecycle.
type UpdateInput struct {
	Title       *string
	Description *string
	ZipCode     *string
	Lat         *float64
	Lon         *float64
	PickupNotes *string
	CategoryID  **string
}

// QueueView bundles an item with the claim-queue summary a caller sees
// alongside it (spec sections 4.1, 4.2.1).
type QueueView struct {
	Item    *model.Item
	Summary model.QueueSummary
}
