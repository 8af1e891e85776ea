package lifecycle

import (
	"context"
	"testing"
	"time"

	"github.com/giveaway/core/internal/apperr"
	"github.com/giveaway/core/internal/claims"
	"github.com/giveaway/core/internal/config"
	"github.com/giveaway/core/internal/model"
	"github.com/giveaway/core/internal/store/memstore"
)

func seedActiveItemWithClaims(t *testing.T, st *memstore.Store, itemID, ownerID string, userIDs ...string) []*model.Claim {
	t.Helper()
	it := &model.Item{
		ID:          itemID,
		OwnerID:     ownerID,
		Title:       "Box of books",
		Description: "A box of assorted paperbacks, good condition.",
		ZipCode:     "94110",
		Status:      model.ItemActive,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		ExpiresAt:   time.Now().Add(14 * 24 * time.Hour),
	}
	if err := st.InsertItem(context.Background(), it); err != nil {
		t.Fatalf("InsertItem: %v", err)
	}
	claimSvc := claims.New(st, config.Defaults())
	var out []*model.Claim
	for _, u := range userIDs {
		c, err := claimSvc.Enqueue(context.Background(), claims.EnqueueRequest{UserID: u, ItemID: itemID})
		if err != nil {
			t.Fatalf("enqueue %s: %v", u, err)
		}
		out = append(out, c)
	}
	return out
}

func TestSoftDeleteItemCascadesActiveClaims(t *testing.T) {
	st := memstore.New()
	cs := seedActiveItemWithClaims(t, st, "itm-1", "owner-1", "u1", "u2")
	coord := New(st)

	if err := coord.SoftDeleteItem(context.Background(), "owner-1", "itm-1"); err != nil {
		t.Fatalf("SoftDeleteItem: %v", err)
	}

	item, err := st.GetItem(context.Background(), "itm-1")
	if err != nil {
		t.Fatalf("GetItem: %v", err)
	}
	if item.Status != model.ItemDeleted {
		t.Errorf("expected DELETED, got %s", item.Status)
	}
	for _, c := range cs {
		got, err := st.GetClaim(context.Background(), c.ID)
		if err != nil {
			t.Fatalf("GetClaim: %v", err)
		}
		if got.Status != model.ClaimExpired {
			t.Errorf("expected claim %s EXPIRED, got %s", c.ID, got.Status)
		}
		if got.Reason != claims.ReasonItemRemoved {
			t.Errorf("expected reason %q, got %q", claims.ReasonItemRemoved, got.Reason)
		}
	}
}

func TestSoftDeleteItemRejectsNonOwner(t *testing.T) {
	st := memstore.New()
	seedActiveItemWithClaims(t, st, "itm-1", "owner-1", "u1")
	coord := New(st)

	if err := coord.SoftDeleteItem(context.Background(), "someone-else", "itm-1"); !apperr.Is(err, apperr.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestExpireItemCascadesActiveClaims(t *testing.T) {
	st := memstore.New()
	cs := seedActiveItemWithClaims(t, st, "itm-1", "owner-1", "u1", "u2", "u3")
	coord := New(st)

	if err := coord.ExpireItem(context.Background(), "itm-1"); err != nil {
		t.Fatalf("ExpireItem: %v", err)
	}

	item, err := st.GetItem(context.Background(), "itm-1")
	if err != nil {
		t.Fatalf("GetItem: %v", err)
	}
	if item.Status != model.ItemExpired {
		t.Errorf("expected EXPIRED, got %s", item.Status)
	}
	if item.ExpiredAt == nil {
		t.Error("expected expired_at to be stamped")
	}
	for _, c := range cs {
		got, err := st.GetClaim(context.Background(), c.ID)
		if err != nil {
			t.Fatalf("GetClaim: %v", err)
		}
		if got.Status != model.ClaimExpired || got.Reason != claims.ReasonItemExpired {
			t.Errorf("claim %s: expected EXPIRED/%q, got %s/%q", c.ID, claims.ReasonItemExpired, got.Status, got.Reason)
		}
	}
}

func TestExpireItemIsIdempotentAgainstDoubleInvocation(t *testing.T) {
	st := memstore.New()
	seedActiveItemWithClaims(t, st, "itm-1", "owner-1", "u1")
	coord := New(st)

	if err := coord.ExpireItem(context.Background(), "itm-1"); err != nil {
		t.Fatalf("first ExpireItem: %v", err)
	}
	if err := coord.ExpireItem(context.Background(), "itm-1"); !apperr.Is(err, apperr.ErrInvalidStateTransition) {
		t.Fatalf("expected ErrInvalidStateTransition on repeat, got %v", err)
	}
}
