package reclaim

import (
	"context"
	"testing"
	"time"

	"github.com/giveaway/core/internal/claims"
	"github.com/giveaway/core/internal/config"
	"github.com/giveaway/core/internal/model"
	"github.com/giveaway/core/internal/store/memstore"
)

func TestRunOnceExpiresLapsedItems(t *testing.T) {
	st := memstore.New()
	ctx := context.Background()
	it := &model.Item{
		ID:        "itm-1",
		OwnerID:   "owner-1",
		Title:     "Box of books",
		Description: "A box of assorted paperbacks, good condition.",
		ZipCode:   "94110",
		Status:    model.ItemActive,
		CreatedAt: time.Now().Add(-20 * 24 * time.Hour),
		UpdatedAt: time.Now().Add(-20 * 24 * time.Hour),
		ExpiresAt: time.Now().Add(-1 * time.Hour),
	}
	if err := st.InsertItem(ctx, it); err != nil {
		t.Fatalf("InsertItem: %v", err)
	}

	cfg := config.Defaults()
	r := New(st, cfg, nil)
	report := r.RunOnce(ctx)
	if report.ItemsExpired != 1 {
		t.Fatalf("expected 1 item expired, got %d (errors=%v)", report.ItemsExpired, report.Errors)
	}

	got, err := st.GetItem(ctx, "itm-1")
	if err != nil {
		t.Fatalf("GetItem: %v", err)
	}
	if got.Status != model.ItemExpired {
		t.Errorf("expected EXPIRED, got %s", got.Status)
	}
}

func TestRunOnceExpiresStaleClaims(t *testing.T) {
	st := memstore.New()
	ctx := context.Background()
	it := &model.Item{
		ID:        "itm-1",
		OwnerID:   "owner-1",
		Title:     "Box of books",
		Description: "A box of assorted paperbacks, good condition.",
		ZipCode:   "94110",
		Status:    model.ItemActive,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
		ExpiresAt: time.Now().Add(30 * 24 * time.Hour),
	}
	if err := st.InsertItem(ctx, it); err != nil {
		t.Fatalf("InsertItem: %v", err)
	}
	staleClaim := &model.Claim{
		ID:        "clm-stale",
		ItemID:    "itm-1",
		UserID:    "u1",
		Status:    model.ClaimPending,
		CreatedAt: time.Now().Add(-72 * time.Hour),
	}
	if err := st.InsertClaimAtNextPosition(ctx, staleClaim); err != nil {
		t.Fatalf("insert stale claim: %v", err)
	}
	freshClaim := &model.Claim{
		ID:        "clm-fresh",
		ItemID:    "itm-1",
		UserID:    "u2",
		Status:    model.ClaimPending,
		CreatedAt: time.Now(),
	}
	if err := st.InsertClaimAtNextPosition(ctx, freshClaim); err != nil {
		t.Fatalf("insert fresh claim: %v", err)
	}

	cfg := config.Defaults()
	r := New(st, cfg, nil)
	report := r.RunOnce(ctx)
	if report.ClaimsExpired != 1 {
		t.Fatalf("expected 1 claim expired, got %d (errors=%v)", report.ClaimsExpired, report.Errors)
	}

	stale, err := st.GetClaim(ctx, "clm-stale")
	if err != nil {
		t.Fatalf("GetClaim: %v", err)
	}
	if stale.Status != model.ClaimExpired || stale.Reason != claims.ReasonInactivity {
		t.Errorf("expected stale claim EXPIRED/%q, got %s/%q", claims.ReasonInactivity, stale.Status, stale.Reason)
	}

	fresh, err := st.GetClaim(ctx, "clm-fresh")
	if err != nil {
		t.Fatalf("GetClaim: %v", err)
	}
	if fresh.Status != model.ClaimPending {
		t.Errorf("expected fresh claim still PENDING, got %s", fresh.Status)
	}
	if fresh.QueuePosition != 1 {
		t.Errorf("expected fresh claim compacted to position 1, got %d", fresh.QueuePosition)
	}
}

func TestRunOnceIsIdempotent(t *testing.T) {
	st := memstore.New()
	ctx := context.Background()
	it := &model.Item{
		ID:        "itm-1",
		OwnerID:   "owner-1",
		Title:     "Box of books",
		Description: "A box of assorted paperbacks, good condition.",
		ZipCode:   "94110",
		Status:    model.ItemActive,
		CreatedAt: time.Now().Add(-20 * 24 * time.Hour),
		UpdatedAt: time.Now().Add(-20 * 24 * time.Hour),
		ExpiresAt: time.Now().Add(-1 * time.Hour),
	}
	if err := st.InsertItem(ctx, it); err != nil {
		t.Fatalf("InsertItem: %v", err)
	}

	cfg := config.Defaults()
	r := New(st, cfg, nil)
	first := r.RunOnce(ctx)
	second := r.RunOnce(ctx)

	if first.ItemsExpired != 1 {
		t.Fatalf("expected first sweep to expire 1 item, got %d", first.ItemsExpired)
	}
	if second.ItemsExpired != 0 || second.ClaimsExpired != 0 || second.ItemsArchived != 0 {
		t.Fatalf("expected second sweep to be a no-op, got %+v", second)
	}
}

func TestArchiveOldItems(t *testing.T) {
	st := memstore.New()
	ctx := context.Background()
	claimedAt := time.Now().Add(-100 * 24 * time.Hour)
	it := &model.Item{
		ID:        "itm-1",
		OwnerID:   "owner-1",
		Title:     "Box of books",
		Description: "A box of assorted paperbacks, good condition.",
		ZipCode:   "94110",
		Status:    model.ItemClaimed,
		CreatedAt: claimedAt,
		UpdatedAt: claimedAt,
		ExpiresAt: claimedAt.Add(14 * 24 * time.Hour),
		ClaimedAt: &claimedAt,
	}
	if err := st.InsertItem(ctx, it); err != nil {
		t.Fatalf("InsertItem: %v", err)
	}

	cfg := config.Defaults()
	r := New(st, cfg, nil)
	report := r.RunOnce(ctx)
	if report.ItemsArchived != 1 {
		t.Fatalf("expected 1 item archived, got %d (errors=%v)", report.ItemsArchived, report.Errors)
	}

	got, err := st.GetItem(ctx, "itm-1")
	if err != nil {
		t.Fatalf("GetItem: %v", err)
	}
	if got.ArchivedAt == nil {
		t.Error("expected archived_at to be stamped")
	}
}
