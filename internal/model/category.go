package model

// Category is hierarchical and self-referential; not on the hot path
// (spec section 3), described only because Items reference it.
type Category struct {
	ID       string
	ParentID *string
	Slug     string
	Name     string
	Active   bool
	SortOrder int
}
