// Package model holds the plain data structures shared by every core
// component: Item, Claim, Category and their enums. Validation lives here
// as pure helpers (ValidTitle, ValidDescription, ValidZip, ValidCoordinate,
// Item.IsClaimable and the like), so Create/Update entry points in
// internal/items and internal/claims share one set of field rules instead
// of re-declaring them inline.
package model

import (
	"regexp"
	"time"
)

// ItemStatus is the lifecycle state of an Item (spec section 3).
type ItemStatus string

const (
	ItemDraft     ItemStatus = "DRAFT"
	ItemActive    ItemStatus = "ACTIVE"
	ItemClaimed   ItemStatus = "CLAIMED"
	ItemExpired   ItemStatus = "EXPIRED"
	ItemDeleted   ItemStatus = "DELETED"
	ItemSuspended ItemStatus = "SUSPENDED"
)

// Point is a geographic coordinate. Both fields are optional together: an
// Item either has both Lat and Lon set, or neither (HasLocation reports
// which).
type Point struct {
	Lat float64
	Lon float64
	set bool
}

// NewPoint constructs a Point and marks it as present.
func NewPoint(lat, lon float64) Point {
	return Point{Lat: lat, Lon: lon, set: true}
}

// HasLocation reports whether the point carries a coordinate.
func (p Point) HasLocation() bool { return p.set }

// Item is a physical item offered for give-away by its owner.
type Item struct {
	ID           string
	OwnerID      string
	CategoryID   *string
	Title        string
	Description  string
	ZipCode      string
	Location     Point
	PickupNotes  string
	Status       ItemStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
	ExpiresAt    time.Time
	ClaimedAt    *time.Time
	ExpiredAt    *time.Time
	ArchivedAt   *time.Time
	ViewCount    int64
	ClaimCount   int64
}

var zipRe = regexp.MustCompile(`^\d{5}(-\d{4})?$`)

const (
	titleMinLen = 5
	titleMaxLen = 100
	descMinLen  = 10
	descMaxLen  = 1000
)

// ValidZip reports whether zip matches the format required by spec
// section 4.1 (`\d{5}(-\d{4})?`).
func ValidZip(zip string) bool {
	return zipRe.MatchString(zip)
}

// ValidTitle reports whether title's length is within [5, 100].
func ValidTitle(title string) bool {
	n := len([]rune(title))
	return n >= titleMinLen && n <= titleMaxLen
}

// ValidDescription reports whether description's length is within [10, 1000].
func ValidDescription(desc string) bool {
	n := len([]rune(desc))
	return n >= descMinLen && n <= descMaxLen
}

// ValidCoordinate reports whether lat/lon fall within valid ranges
// (lat in [-90, 90], lon in [-180, 180], spec section 4.1).
func ValidCoordinate(lat, lon float64) bool {
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

// IsClaimable reports whether the item currently accepts new claims
// (spec invariant 4): status ACTIVE and not yet expired as of now.
func (i *Item) IsClaimable(now time.Time) bool {
	return i.Status == ItemActive && i.ExpiresAt.After(now)
}
