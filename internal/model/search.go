package model

// SortKey is a whitelisted column for Search/FindNearby ordering
// (spec section 4.1: "created_at|title|expires_at|distance").
type SortKey string

const (
	SortByCreatedAt SortKey = "created_at"
	SortByTitle     SortKey = "title"
	SortByExpiresAt SortKey = "expires_at"
	SortByDistance  SortKey = "distance"
)

// SortDir is the direction of a sort.
type SortDir string

const (
	SortAsc  SortDir = "ASC"
	SortDesc SortDir = "DESC"
)

// ValidSortKey reports whether key is one of the whitelisted sort columns.
func ValidSortKey(key SortKey) bool {
	switch key {
	case SortByCreatedAt, SortByTitle, SortByExpiresAt, SortByDistance:
		return true
	default:
		return false
	}
}

// ValidSortDir reports whether dir is ASC or DESC.
func ValidSortDir(dir SortDir) bool {
	return dir == SortAsc || dir == SortDesc
}

const (
	defaultPageSize = 20
	minPageSize     = 1
)

// Page is a clamped pagination request.
type Page struct {
	Number int
	Size   int
}

// Clamp returns a Page with Size clamped to [1, maxSize] (spec section
// 4.1: "Page size clamped to [1, 100]"; maxSize comes from the
// search_page_limit_max config option).
func (p Page) Clamp(maxSize int) Page {
	size := p.Size
	if size <= 0 {
		size = defaultPageSize
	}
	if size < minPageSize {
		size = minPageSize
	}
	if size > maxSize {
		size = maxSize
	}
	number := p.Number
	if number < 1 {
		number = 1
	}
	return Page{Number: number, Size: size}
}

// Offset returns the zero-based row offset for this page.
func (p Page) Offset() int {
	return (p.Number - 1) * p.Size
}

const (
	minRadiusMiles = 1.0
	maxRadiusMiles = 100.0
)

// ClampRadius clamps a caller-supplied search radius to [1, 100] miles
// (spec section 4.1).
func ClampRadius(miles float64) float64 {
	if miles < minRadiusMiles {
		return minRadiusMiles
	}
	if miles > maxRadiusMiles {
		return maxRadiusMiles
	}
	return miles
}

// ItemFilter narrows a Search/FindNearby/ListByOwner query.
type ItemFilter struct {
	CategoryID *string
	ZipCode    *string
	Query      string // free-text search against title/description
	Status     *ItemStatus
	SortKey    SortKey
	SortDir    SortDir
}
