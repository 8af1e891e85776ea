package items

import (
	"context"
	"testing"

	"github.com/giveaway/core/internal/apperr"
	"github.com/giveaway/core/internal/config"
	"github.com/giveaway/core/internal/model"
	"github.com/giveaway/core/internal/store"
	"github.com/giveaway/core/internal/store/memstore"
)

func newTestService() (*Service, *memstore.Store) {
	st := memstore.New()
	return New(st, config.Defaults()), st
}

func validCreateInput() CreateInput {
	return CreateInput{
		Title:       "Box of books",
		Description: "A box of assorted paperbacks, good condition.",
		ZipCode:     "94110",
	}
}

func TestCreateRejectsInvalidInput(t *testing.T) {
	svc, _ := newTestService()
	_, err := svc.Create(context.Background(), "owner-1", CreateInput{Title: "x", Description: "y", ZipCode: "bad"})
	if _, ok := apperr.AsInvalidInput(err); !ok {
		t.Fatalf("expected InvalidInputError, got %v", err)
	}
}

func TestCreateInsertsActiveItemAndOutboxEvent(t *testing.T) {
	svc, st := newTestService()
	item, err := svc.Create(context.Background(), "owner-1", validCreateInput())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if item.Status != model.ItemActive {
		t.Errorf("expected ACTIVE, got %s", item.Status)
	}
	events := st.Outbox()
	if len(events) != 1 || events[0].EventType != "item.created" {
		t.Fatalf("expected one item.created event, got %+v", events)
	}
}

func TestChangeStatusSuspendsAndUnsuspends(t *testing.T) {
	svc, _ := newTestService()
	item, err := svc.Create(context.Background(), "owner-1", validCreateInput())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	suspended, err := svc.ChangeStatus(context.Background(), "owner-1", item.ID, model.ItemSuspended)
	if err != nil {
		t.Fatalf("ChangeStatus(suspend): %v", err)
	}
	if suspended.Status != model.ItemSuspended {
		t.Errorf("expected SUSPENDED, got %s", suspended.Status)
	}
	restored, err := svc.ChangeStatus(context.Background(), "owner-1", item.ID, model.ItemActive)
	if err != nil {
		t.Fatalf("ChangeStatus(unsuspend): %v", err)
	}
	if restored.Status != model.ItemActive {
		t.Errorf("expected ACTIVE, got %s", restored.Status)
	}
}

func TestChangeStatusRejectsNonOwner(t *testing.T) {
	svc, _ := newTestService()
	item, err := svc.Create(context.Background(), "owner-1", validCreateInput())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	_, err = svc.ChangeStatus(context.Background(), "someone-else", item.ID, model.ItemSuspended)
	if !apperr.Is(err, apperr.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestChangeStatusRejectsDisallowedTransition(t *testing.T) {
	svc, _ := newTestService()
	item, err := svc.Create(context.Background(), "owner-1", validCreateInput())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	// ACTIVE -> CLAIMED is not reachable through ChangeStatus; only
	// internal/claims.Select may close an item.
	if _, err := svc.ChangeStatus(context.Background(), "owner-1", item.ID, model.ItemClaimed); !apperr.Is(err, apperr.ErrInvalidStateTransition) {
		t.Fatalf("expected ErrInvalidStateTransition, got %v", err)
	}
}

func TestUpdateRejectsEditAfterTerminal(t *testing.T) {
	svc, st := newTestService()
	item, err := svc.Create(context.Background(), "owner-1", validCreateInput())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	expired := model.ItemExpired
	if err := st.UpdateItem(context.Background(), item.ID, store.ItemUpdate{Status: &expired}); err != nil {
		t.Fatalf("force-expire: %v", err)
	}
	title := "New title here"
	_, err = svc.Update(context.Background(), "owner-1", item.ID, UpdateInput{Title: &title})
	if !apperr.Is(err, apperr.ErrInvalidStateTransition) {
		t.Fatalf("expected ErrInvalidStateTransition, got %v", err)
	}
}

func TestSearchRejectsInvalidSortKey(t *testing.T) {
	svc, _ := newTestService()
	_, _, err := svc.Search(context.Background(), model.ItemFilter{SortKey: "owner_id"}, model.Page{})
	if _, ok := apperr.AsInvalidInput(err); !ok {
		t.Fatalf("expected InvalidInputError, got %v", err)
	}
}

func TestSearchRejectsInvalidSortDir(t *testing.T) {
	svc, _ := newTestService()
	_, _, err := svc.Search(context.Background(), model.ItemFilter{SortDir: "UPWARD"}, model.Page{})
	if _, ok := apperr.AsInvalidInput(err); !ok {
		t.Fatalf("expected InvalidInputError, got %v", err)
	}
}

func TestSearchReturnsActiveUnexpiredItems(t *testing.T) {
	svc, st := newTestService()
	if _, err := svc.Create(context.Background(), "owner-1", validCreateInput()); err != nil {
		t.Fatalf("Create: %v", err)
	}
	expiredInput := validCreateInput()
	expiredInput.Title = "Old couch, free"
	expired, err := svc.Create(context.Background(), "owner-1", expiredInput)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	past := model.ItemExpired
	if err := st.UpdateItem(context.Background(), expired.ID, store.ItemUpdate{Status: &past}); err != nil {
		t.Fatalf("force-expire: %v", err)
	}

	results, total, err := svc.Search(context.Background(), model.ItemFilter{SortKey: model.SortByTitle, SortDir: model.SortAsc}, model.Page{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if total != 1 || len(results) != 1 {
		t.Fatalf("expected exactly 1 active result, got total=%d len=%d", total, len(results))
	}
	if results[0].Status != model.ItemActive {
		t.Errorf("expected ACTIVE item, got %s", results[0].Status)
	}
}

func TestFindNearbyRejectsInvalidSortKey(t *testing.T) {
	svc, _ := newTestService()
	_, _, err := svc.FindNearby(context.Background(), 37.0, -122.0, 10, model.ItemFilter{SortKey: "bogus"}, model.Page{})
	if _, ok := apperr.AsInvalidInput(err); !ok {
		t.Fatalf("expected InvalidInputError, got %v", err)
	}
}

func TestFindNearbyRejectsOutOfRangeCoordinates(t *testing.T) {
	svc, _ := newTestService()
	_, _, err := svc.FindNearby(context.Background(), 999, 0, 10, model.ItemFilter{}, model.Page{})
	if _, ok := apperr.AsInvalidInput(err); !ok {
		t.Fatalf("expected InvalidInputError, got %v", err)
	}
}

func TestFindNearbyExcludesItemsWithoutLocation(t *testing.T) {
	svc, _ := newTestService()
	if _, err := svc.Create(context.Background(), "owner-1", validCreateInput()); err != nil {
		t.Fatalf("Create: %v", err)
	}
	lat, lon := 37.7749, -122.4194
	located := validCreateInput()
	located.Title = "Couch near downtown"
	located.Lat, located.Lon = &lat, &lon
	if _, err := svc.Create(context.Background(), "owner-1", located); err != nil {
		t.Fatalf("Create: %v", err)
	}

	results, total, err := svc.FindNearby(context.Background(), lat, lon, 50, model.ItemFilter{}, model.Page{})
	if err != nil {
		t.Fatalf("FindNearby: %v", err)
	}
	if total != 1 || len(results) != 1 {
		t.Fatalf("expected exactly 1 located result, got total=%d len=%d", total, len(results))
	}
	if results[0].Title != "Couch near downtown" {
		t.Errorf("expected the located item, got %q", results[0].Title)
	}
}

func TestGetWithQueueReportsViewerPosition(t *testing.T) {
	svc, st := newTestService()
	item, err := svc.Create(context.Background(), "owner-1", validCreateInput())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	claim := &model.Claim{ID: "clm-1", ItemID: item.ID, UserID: "claimer-1", Status: model.ClaimPending}
	if err := st.InsertClaimAtNextPosition(context.Background(), claim); err != nil {
		t.Fatalf("insert claim: %v", err)
	}

	view, err := svc.GetWithQueue(context.Background(), "claimer-1", item.ID)
	if err != nil {
		t.Fatalf("GetWithQueue: %v", err)
	}
	if view.Summary.ViewerPosition == nil || *view.Summary.ViewerPosition != 1 {
		t.Fatalf("expected viewer position 1, got %+v", view.Summary.ViewerPosition)
	}
	if view.Summary.ActiveClaims != 1 {
		t.Errorf("expected 1 active claim, got %d", view.Summary.ActiveClaims)
	}
}
