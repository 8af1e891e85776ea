package claims

import (
	"context"
	"testing"
	"time"

	"github.com/giveaway/core/internal/apperr"
	"github.com/giveaway/core/internal/config"
	"github.com/giveaway/core/internal/model"
	"github.com/giveaway/core/internal/store/memstore"
)

func seedActiveItem(t *testing.T, st *memstore.Store, id, ownerID string) *model.Item {
	t.Helper()
	it := &model.Item{
		ID:          id,
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
	return it
}

func TestEnqueueAssignsPositionOne(t *testing.T) {
	st := memstore.New()
	seedActiveItem(t, st, "itm-1", "owner-1")
	svc := New(st, config.Defaults())

	claim, err := svc.Enqueue(context.Background(), EnqueueRequest{UserID: "u1", ItemID: "itm-1"})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if claim.QueuePosition != 1 {
		t.Errorf("expected position 1, got %d", claim.QueuePosition)
	}
	if claim.Status != model.ClaimPending {
		t.Errorf("expected PENDING, got %s", claim.Status)
	}
}

func TestEnqueueRejectsSelfClaim(t *testing.T) {
	st := memstore.New()
	seedActiveItem(t, st, "itm-1", "owner-1")
	svc := New(st, config.Defaults())

	_, err := svc.Enqueue(context.Background(), EnqueueRequest{UserID: "owner-1", ItemID: "itm-1"})
	if !apperr.Is(err, apperr.ErrSelfClaimForbidden) {
		t.Fatalf("expected ErrSelfClaimForbidden, got %v", err)
	}
}

func TestEnqueueRejectsDuplicate(t *testing.T) {
	st := memstore.New()
	seedActiveItem(t, st, "itm-1", "owner-1")
	svc := New(st, config.Defaults())

	if _, err := svc.Enqueue(context.Background(), EnqueueRequest{UserID: "u1", ItemID: "itm-1"}); err != nil {
		t.Fatalf("first enqueue: %v", err)
	}
	_, err := svc.Enqueue(context.Background(), EnqueueRequest{UserID: "u1", ItemID: "itm-1"})
	if !apperr.Is(err, apperr.ErrDuplicateClaim) {
		t.Fatalf("expected ErrDuplicateClaim, got %v", err)
	}
}

func TestEnqueueRejectsPastPickupDate(t *testing.T) {
	st := memstore.New()
	seedActiveItem(t, st, "itm-1", "owner-1")
	svc := New(st, config.Defaults())

	past := time.Now().Add(-time.Hour)
	_, err := svc.Enqueue(context.Background(), EnqueueRequest{
		UserID: "u1",
		ItemID: "itm-1",
		Prefs:  model.EnqueuePrefs{PreferredPickupDate: &past},
	})
	if !apperr.Is(err, apperr.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestCancelCompactsActiveSet(t *testing.T) {
	st := memstore.New()
	seedActiveItem(t, st, "itm-1", "owner-1")
	svc := New(st, config.Defaults())
	ctx := context.Background()

	var claims []*model.Claim
	for _, u := range []string{"u1", "u2", "u3"} {
		c, err := svc.Enqueue(ctx, EnqueueRequest{UserID: u, ItemID: "itm-1"})
		if err != nil {
			t.Fatalf("enqueue %s: %v", u, err)
		}
		claims = append(claims, c)
	}

	if err := svc.Cancel(ctx, "u2", claims[1].ID, "changed my mind"); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	active, err := st.ListActiveClaims(ctx, "itm-1")
	if err != nil {
		t.Fatalf("ListActiveClaims: %v", err)
	}
	if len(active) != 2 {
		t.Fatalf("expected 2 active claims after cancel, got %d", len(active))
	}
	for i, c := range active {
		if c.QueuePosition != i+1 {
			t.Errorf("expected dense position %d, got %d", i+1, c.QueuePosition)
		}
	}
}

func TestCancelRejectsNonOwner(t *testing.T) {
	st := memstore.New()
	seedActiveItem(t, st, "itm-1", "owner-1")
	svc := New(st, config.Defaults())
	ctx := context.Background()

	claim, err := svc.Enqueue(ctx, EnqueueRequest{UserID: "u1", ItemID: "itm-1"})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := svc.Cancel(ctx, "someone-else", claim.ID, "nope"); !apperr.Is(err, apperr.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestSelectClosesItemAndExpiresSiblings(t *testing.T) {
	st := memstore.New()
	seedActiveItem(t, st, "itm-1", "owner-1")
	svc := New(st, config.Defaults())
	ctx := context.Background()

	var claims []*model.Claim
	for _, u := range []string{"u1", "u2", "u3"} {
		c, err := svc.Enqueue(ctx, EnqueueRequest{UserID: u, ItemID: "itm-1"})
		if err != nil {
			t.Fatalf("enqueue %s: %v", u, err)
		}
		claims = append(claims, c)
	}

	if err := svc.Select(ctx, "owner-1", claims[1].ID); err != nil {
		t.Fatalf("Select: %v", err)
	}

	selected, err := st.GetClaim(ctx, claims[1].ID)
	if err != nil {
		t.Fatalf("GetClaim: %v", err)
	}
	if selected.Status != model.ClaimSelected {
		t.Errorf("expected SELECTED, got %s", selected.Status)
	}

	for _, id := range []string{claims[0].ID, claims[2].ID} {
		c, err := st.GetClaim(ctx, id)
		if err != nil {
			t.Fatalf("GetClaim %s: %v", id, err)
		}
		if c.Status != model.ClaimExpired {
			t.Errorf("expected %s EXPIRED, got %s", id, c.Status)
		}
		if c.Reason != ReasonAnotherSelected {
			t.Errorf("expected reason %q, got %q", ReasonAnotherSelected, c.Reason)
		}
	}

	item, err := st.GetItem(ctx, "itm-1")
	if err != nil {
		t.Fatalf("GetItem: %v", err)
	}
	if item.Status != model.ItemClaimed {
		t.Errorf("expected item CLAIMED, got %s", item.Status)
	}

	active, err := st.ListActiveClaims(ctx, "itm-1")
	if err != nil {
		t.Fatalf("ListActiveClaims: %v", err)
	}
	if len(active) != 0 {
		t.Errorf("expected empty active set after select, got %d", len(active))
	}
}

func TestMoveToPositionReordersActiveSet(t *testing.T) {
	st := memstore.New()
	seedActiveItem(t, st, "itm-1", "owner-1")
	svc := New(st, config.Defaults())
	ctx := context.Background()

	var claims []*model.Claim
	for _, u := range []string{"u1", "u2", "u3"} {
		c, err := svc.Enqueue(ctx, EnqueueRequest{UserID: u, ItemID: "itm-1"})
		if err != nil {
			t.Fatalf("enqueue %s: %v", u, err)
		}
		claims = append(claims, c)
	}

	if err := svc.MoveToPosition(ctx, "owner-1", claims[2].ID, 1); err != nil {
		t.Fatalf("MoveToPosition: %v", err)
	}

	active, err := st.ListActiveClaims(ctx, "itm-1")
	if err != nil {
		t.Fatalf("ListActiveClaims: %v", err)
	}
	if len(active) != 3 || active[0].ID != claims[2].ID {
		t.Fatalf("expected claims[2] to be first, got %+v", active)
	}
	if active[1].ID != claims[0].ID || active[2].ID != claims[1].ID {
		t.Fatalf("expected relative order of claims[0],claims[1] preserved, got %+v", active)
	}
}

func TestCompleteRequiresSelectedStatus(t *testing.T) {
	st := memstore.New()
	seedActiveItem(t, st, "itm-1", "owner-1")
	svc := New(st, config.Defaults())
	ctx := context.Background()

	claim, err := svc.Enqueue(ctx, EnqueueRequest{UserID: "u1", ItemID: "itm-1"})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := svc.Complete(ctx, "u1", claim.ID); !apperr.Is(err, apperr.ErrInvalidStateTransition) {
		t.Fatalf("expected ErrInvalidStateTransition before Select, got %v", err)
	}

	if err := svc.Select(ctx, "owner-1", claim.ID); err != nil {
		t.Fatalf("Select: %v", err)
	}
	if err := svc.Complete(ctx, "u1", claim.ID); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	got, err := st.GetClaim(ctx, claim.ID)
	if err != nil {
		t.Fatalf("GetClaim: %v", err)
	}
	if got.Status != model.ClaimCompleted {
		t.Errorf("expected COMPLETED, got %s", got.Status)
	}
}
