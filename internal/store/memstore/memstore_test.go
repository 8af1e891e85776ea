package memstore

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/giveaway/core/internal/apperr"
	"github.com/giveaway/core/internal/model"
	"github.com/giveaway/core/internal/store"
)

func seedItem(t *testing.T, s *Store, id string) *model.Item {
	t.Helper()
	it := &model.Item{
		ID:          id,
		OwnerID:     "owner-1",
		Title:       "Box of books",
		Description: "A box of assorted paperbacks, good condition.",
		ZipCode:     "94110",
		Status:      model.ItemActive,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		ExpiresAt:   time.Now().Add(14 * 24 * time.Hour),
	}
	if err := s.InsertItem(context.Background(), it); err != nil {
		t.Fatalf("InsertItem: %v", err)
	}
	return it
}

func TestInsertClaimAtNextPositionAssignsDensePositions(t *testing.T) {
	s := New()
	ctx := context.Background()
	seedItem(t, s, "itm-1")

	for i, user := range []string{"u1", "u2", "u3"} {
		c := &model.Claim{ID: "clm-" + user, ItemID: "itm-1", UserID: user, Status: model.ClaimPending, CreatedAt: time.Now()}
		if err := s.InsertClaimAtNextPosition(ctx, c); err != nil {
			t.Fatalf("insert %s: %v", user, err)
		}
		if c.QueuePosition != i+1 {
			t.Errorf("user %s: expected position %d, got %d", user, i+1, c.QueuePosition)
		}
	}
}

func TestInsertClaimAtNextPositionRejectsDuplicate(t *testing.T) {
	s := New()
	ctx := context.Background()
	seedItem(t, s, "itm-1")

	c1 := &model.Claim{ID: "clm-1", ItemID: "itm-1", UserID: "u1", Status: model.ClaimPending, CreatedAt: time.Now()}
	if err := s.InsertClaimAtNextPosition(ctx, c1); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	c2 := &model.Claim{ID: "clm-2", ItemID: "itm-1", UserID: "u1", Status: model.ClaimPending, CreatedAt: time.Now()}
	err := s.InsertClaimAtNextPosition(ctx, c2)
	if !apperr.Is(err, apperr.ErrDuplicateClaim) {
		t.Fatalf("expected ErrDuplicateClaim, got %v", err)
	}
}

func TestRenumberActiveSetClosesGaps(t *testing.T) {
	s := New()
	ctx := context.Background()
	seedItem(t, s, "itm-1")

	for _, user := range []string{"u1", "u2", "u3", "u4"} {
		c := &model.Claim{ID: "clm-" + user, ItemID: "itm-1", UserID: user, Status: model.ClaimPending, CreatedAt: time.Now()}
		if err := s.InsertClaimAtNextPosition(ctx, c); err != nil {
			t.Fatalf("insert %s: %v", user, err)
		}
	}

	cancelled := model.ClaimCancelled
	if err := s.UpdateClaim(ctx, "clm-u2", store.ClaimUpdate{Status: &cancelled}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := s.RenumberActiveSet(ctx, "itm-1"); err != nil {
		t.Fatalf("renumber: %v", err)
	}

	active, err := s.ListActiveClaims(ctx, "itm-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(active) != 3 {
		t.Fatalf("expected 3 active claims, got %d", len(active))
	}
	for i, c := range active {
		if c.QueuePosition != i+1 {
			t.Errorf("expected dense position %d, got %d for %s", i+1, c.QueuePosition, c.UserID)
		}
	}
}

func TestWithItemLockSerializesConcurrentEnqueues(t *testing.T) {
	s := New()
	ctx := context.Background()
	seedItem(t, s, "itm-1")

	const n = 20
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = s.WithItemLock(ctx, "itm-1", func(ctx context.Context) error {
				return s.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
					c := &model.Claim{
						ID:        fmt.Sprintf("clm-gen-%d", i),
						ItemID:    "itm-1",
						UserID:    fmt.Sprintf("user-%d", i),
						Status:    model.ClaimPending,
						CreatedAt: time.Now(),
					}
					return tx.InsertClaimAtNextPosition(ctx, c)
				})
			})
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("goroutine %d: %v", i, err)
		}
	}

	active, err := s.ListActiveClaims(ctx, "itm-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(active) != n {
		t.Fatalf("expected %d active claims, got %d", n, len(active))
	}
	seen := make(map[int]bool)
	for _, c := range active {
		if seen[c.QueuePosition] {
			t.Fatalf("duplicate queue position %d", c.QueuePosition)
		}
		seen[c.QueuePosition] = true
	}
	for i := 1; i <= n; i++ {
		if !seen[i] {
			t.Fatalf("missing dense position %d", i)
		}
	}
}
