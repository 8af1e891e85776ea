package categories

import (
	"context"
	"testing"
	"time"

	"github.com/giveaway/core/internal/model"
	"github.com/giveaway/core/internal/store/memstore"
)

func TestCreateRejectsBadSlug(t *testing.T) {
	svc := New(memstore.New())
	_, err := svc.Create(context.Background(), CreateInput{Slug: "Not A Slug", Name: "Bikes"})
	if err == nil {
		t.Fatal("expected error for invalid slug")
	}
}

func TestCreateRejectsMissingParent(t *testing.T) {
	svc := New(memstore.New())
	missing := "nope"
	_, err := svc.Create(context.Background(), CreateInput{ParentID: &missing, Slug: "bikes", Name: "Bikes"})
	if err == nil {
		t.Fatal("expected error for missing parent")
	}
}

func TestCreateInsertsActiveCategory(t *testing.T) {
	svc := New(memstore.New())
	cat, err := svc.Create(context.Background(), CreateInput{Slug: "furniture", Name: "Furniture"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !cat.Active {
		t.Error("expected new category to be active")
	}
	if cat.ID == "" {
		t.Error("expected a generated ID")
	}
}

func TestChildrenListsByParent(t *testing.T) {
	ctx := context.Background()
	svc := New(memstore.New())
	root, err := svc.Create(ctx, CreateInput{Slug: "home", Name: "Home"})
	if err != nil {
		t.Fatalf("Create root: %v", err)
	}
	if _, err := svc.Create(ctx, CreateInput{ParentID: &root.ID, Slug: "kitchen", Name: "Kitchen"}); err != nil {
		t.Fatalf("Create child: %v", err)
	}

	children, err := svc.Children(ctx, &root.ID)
	if err != nil {
		t.Fatalf("Children: %v", err)
	}
	if len(children) != 1 || children[0].Slug != "kitchen" {
		t.Fatalf("expected [kitchen], got %+v", children)
	}

	roots, err := svc.Children(ctx, nil)
	if err != nil {
		t.Fatalf("Children(nil): %v", err)
	}
	if len(roots) != 1 || roots[0].Slug != "home" {
		t.Fatalf("expected [home], got %+v", roots)
	}
}

func TestRemoveDetachesReferencingItems(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	svc := New(st)

	cat, err := svc.Create(ctx, CreateInput{Slug: "electronics", Name: "Electronics"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	now := time.Now()
	item := &model.Item{
		ID:          "itm-1",
		OwnerID:     "owner-1",
		CategoryID:  &cat.ID,
		Title:       "Old laptop, works fine",
		Description: "A slightly used laptop, good condition, charger included.",
		ZipCode:     "94110",
		Status:      model.ItemActive,
		CreatedAt:   now,
		UpdatedAt:   now,
		ExpiresAt:   now.Add(14 * 24 * time.Hour),
	}
	if err := st.InsertItem(ctx, item); err != nil {
		t.Fatalf("InsertItem: %v", err)
	}

	if err := svc.Remove(ctx, cat.ID); err != nil {
		t.Fatalf("Remove: %v", err)
	}

	got, err := st.GetItem(ctx, "itm-1")
	if err != nil {
		t.Fatalf("GetItem: %v", err)
	}
	if got.CategoryID != nil {
		t.Errorf("expected category_id detached to nil, got %v", *got.CategoryID)
	}

	deactivated, err := svc.Get(ctx, cat.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if deactivated.Active {
		t.Error("expected category to be deactivated after Remove")
	}
}

func TestRemoveIsIdempotent(t *testing.T) {
	ctx := context.Background()
	svc := New(memstore.New())
	cat, err := svc.Create(ctx, CreateInput{Slug: "toys", Name: "Toys"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := svc.Remove(ctx, cat.ID); err != nil {
		t.Fatalf("first Remove: %v", err)
	}
	if err := svc.Remove(ctx, cat.ID); err != nil {
		t.Fatalf("second Remove: %v", err)
	}
}
