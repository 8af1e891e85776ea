// Package claims implements the claim queue engine (spec section 4.2): the
// per-item FIFO of claim intents, its position-assignment and compaction
// rules, and the operations that move a claim through its lifecycle.
// Grounded on the teacher's withRetry pattern (internal/storage/dolt/store.go)
// for retrying a conflicted position assignment, and on
// internal/decision/iterate.go's package-local business-logic-over-a-
// storage-seam idiom.
package claims

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/giveaway/core/internal/apperr"
	"github.com/giveaway/core/internal/cache"
	"github.com/giveaway/core/internal/config"
	"github.com/giveaway/core/internal/idgen"
	"github.com/giveaway/core/internal/metrics"
	"github.com/giveaway/core/internal/model"
	"github.com/giveaway/core/internal/store"
)

// Service implements the claim queue engine operations.
type Service struct {
	store store.Store
	cfg   config.Options
	now   func() time.Time

	// Metrics records Enqueue conflict-retry counts via OTel, if set. A
	// nil Metrics is always safe to call (see internal/metrics); left
	// unset by New and wired only by cmd/giveaway-core's composition root.
	Metrics *metrics.Recorder

	// QueueCache is an advisory lookaside cache for the anonymous
	// GetQueueSummary view (see internal/cache). A nil QueueCache is
	// always safe to call; left unset by New.
	QueueCache *cache.QueueSummaryCache
}

// New builds a Service backed by st.
func New(st store.Store, cfg config.Options) *Service {
	return &Service{store: st, cfg: cfg, now: time.Now}
}

// Enqueue creates a new PENDING claim at the back of item_id's active
// queue (spec section 4.2.1, Enqueue). Preconditions: the item must be
// claimable, userID must not be the item's owner, and userID must not
// already hold an active claim on the item.
//
// Position assignment is serialized per item via store.WithItemLock; a
// racing insert that still collides on the uniqueness index is retried up
// to cfg.EnqueueRetryAttempts times (spec section 4.2.2).
func (s *Service) Enqueue(ctx context.Context, req EnqueueRequest) (*model.Claim, error) {
	if req.Prefs.ContactMethod != "" && !model.ValidContactMethod(req.Prefs.ContactMethod) {
		return nil, apperr.Invalid(apperr.FieldError{Field: "contact_method", Reason: "must be email, phone, or both"})
	}
	if !model.ValidPreferredPickupDate(req.Prefs.PreferredPickupDate, s.now()) {
		return nil, apperr.Invalid(apperr.FieldError{Field: "preferred_pickup_date", Reason: "must be in the future"})
	}

	var created *model.Claim
	err := s.withConflictRetry(ctx, func() error {
		return s.store.WithItemLock(ctx, req.ItemID, func(ctx context.Context) error {
			return s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
				item, err := tx.GetItem(ctx, req.ItemID)
				if err != nil {
					return err
				}
				if item.OwnerID == req.UserID {
					return apperr.ErrSelfClaimForbidden
				}
				if !item.IsClaimable(s.now()) {
					return apperr.InvalidTransition("item", string(item.Status), "enqueue")
				}
				if existing, err := tx.GetActiveClaimByUser(ctx, req.ItemID, req.UserID); err == nil && existing != nil {
					return apperr.ErrDuplicateClaim
				}

				now := s.now()
				claim := &model.Claim{
					ID:                  idgen.NewClaimID(req.ItemID, req.UserID, now, 0),
					ItemID:              req.ItemID,
					UserID:              req.UserID,
					Status:              model.ClaimPending,
					ContactMethod:       req.Prefs.ContactMethod,
					PreferredPickupDate: req.Prefs.PreferredPickupDate,
					ClaimerNote:         req.Prefs.ClaimerNote,
					CreatedAt:           now,
				}
				if err := tx.InsertClaimAtNextPosition(ctx, claim); err != nil {
					return err
				}
				if err := appendClaimEvent(ctx, tx, claim, "claim.enqueued"); err != nil {
					return err
				}
				created = claim
				return nil
			})
		})
	})
	if err != nil {
		return nil, err
	}
	if err := s.store.BumpClaimCount(ctx, req.ItemID, 1); err != nil {
		return nil, err
	}
	s.QueueCache.Invalidate(ctx, req.ItemID)
	return created, nil
}

// withConflictRetry retries op up to cfg.EnqueueRetryAttempts times while it
// returns apperr.ErrConflict, mirroring the teacher's withRetry(ctx, op)
// wrapper around a bounded backoff.Retry call.
func (s *Service) withConflictRetry(ctx context.Context, op func() error) error {
	retries := s.cfg.EnqueueRetryAttempts
	if retries < 0 {
		retries = 0
	}
	bo := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(retries))
	return backoff.Retry(func() error {
		err := op()
		if err != nil && apperr.Is(err, apperr.ErrConflict) {
			s.Metrics.RecordEnqueueRetry(ctx)
			return err // retryable — backoff will retry
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}, backoff.WithContext(bo, ctx))
}

// Cancel moves actorID's own claim to CANCELLED and compacts the item's
// active set (spec section 4.2.1, Cancel).
func (s *Service) Cancel(ctx context.Context, actorID, claimID, reason string) error {
	return s.terminalTransition(ctx, claimID, func(claim *model.Claim) error {
		if claim.UserID != actorID {
			return apperr.Forbidden("only the claimant may cancel this claim")
		}
		return nil
	}, model.ClaimCancelled, reason)
}

// Skip is the lister-initiated equivalent of Cancel (spec section 4.2.1,
// Skip): the item owner passes over a claimant without selecting them.
func (s *Service) Skip(ctx context.Context, actorID, claimID, reason string) error {
	return s.terminalTransition(ctx, claimID, func(claim *model.Claim) error {
		item, err := s.store.GetItem(ctx, claim.ItemID)
		if err != nil {
			return err
		}
		if item.OwnerID != actorID {
			return apperr.Forbidden("only the item owner may skip a claim")
		}
		return nil
	}, model.ClaimSkipped, reason)
}

// terminalTransition moves claim to a terminal status and compacts the
// active set, after authorize succeeds and the claim is confirmed active.
func (s *Service) terminalTransition(ctx context.Context, claimID string, authorize func(*model.Claim) error, to model.ClaimStatus, reason string) error {
	claim, err := s.store.GetClaim(ctx, claimID)
	if err != nil {
		return err
	}
	if err := authorize(claim); err != nil {
		return err
	}
	if !claim.Status.IsActive() {
		return apperr.InvalidTransition("claim", string(claim.Status), string(to))
	}

	err = s.store.WithItemLock(ctx, claim.ItemID, func(ctx context.Context) error {
		return s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
			now := s.now()
			status := to
			patch := store.ClaimUpdate{Status: &status, Reason: &reason}
			switch to {
			case model.ClaimCancelled:
				patch.CancelledAt = &now
			case model.ClaimSkipped:
				patch.SkippedAt = &now
			case model.ClaimExpired:
				patch.ExpiredAt = &now
			}
			if err := tx.UpdateClaim(ctx, claimID, patch); err != nil {
				return err
			}
			if err := tx.RenumberActiveSet(ctx, claim.ItemID); err != nil {
				return err
			}
			claim.Status = to
			return appendClaimEvent(ctx, tx, claim, "claim."+string(to))
		})
	})
	if err == nil {
		s.QueueCache.Invalidate(ctx, claim.ItemID)
	}
	return err
}

// Contact records lister outreach without changing the claim's position
// (spec section 4.2.1, Contact).
func (s *Service) Contact(ctx context.Context, actorID, claimID, listerNote string) error {
	claim, err := s.store.GetClaim(ctx, claimID)
	if err != nil {
		return err
	}
	item, err := s.store.GetItem(ctx, claim.ItemID)
	if err != nil {
		return err
	}
	if item.OwnerID != actorID {
		return apperr.Forbidden("only the item owner may contact a claimant")
	}
	if !claim.Status.IsActive() {
		return apperr.InvalidTransition("claim", string(claim.Status), "CONTACTED")
	}

	return s.store.WithItemLock(ctx, claim.ItemID, func(ctx context.Context) error {
		return s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
			now := s.now()
			status := model.ClaimContacted
			patch := store.ClaimUpdate{Status: &status, ContactedAt: &now}
			if listerNote != "" {
				patch.ListerNote = &listerNote
			}
			if err := tx.UpdateClaim(ctx, claimID, patch); err != nil {
				return err
			}
			claim.Status = model.ClaimContacted
			return appendClaimEvent(ctx, tx, claim, "claim.contacted")
		})
	})
}

// Select transitions claimID to SELECTED, the item to CLAIMED, and every
// other active claim on the item to EXPIRED, all in one transaction (spec
// sections 4.2.1 Select and 4.3 item 1). This is the only path that closes
// an item via a claim; internal/lifecycle has no separate select cascade.
func (s *Service) Select(ctx context.Context, actorID, claimID string) error {
	claim, err := s.store.GetClaim(ctx, claimID)
	if err != nil {
		return err
	}
	item, err := s.store.GetItem(ctx, claim.ItemID)
	if err != nil {
		return err
	}
	if item.OwnerID != actorID {
		return apperr.Forbidden("only the item owner may select a claim")
	}
	if !claim.Status.IsActive() {
		return apperr.InvalidTransition("claim", string(claim.Status), "SELECTED")
	}

	err = s.store.WithItemLock(ctx, claim.ItemID, func(ctx context.Context) error {
		return s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
			return selectClaimLocked(ctx, tx, s.now(), item, claim)
		})
	})
	if err == nil {
		s.QueueCache.Invalidate(ctx, claim.ItemID)
	}
	return err
}

// selectClaimLocked performs the Select cascade against tx: flip one claim
// to SELECTED, the item to CLAIMED, and every other active claim on the
// item to EXPIRED (spec section 4.3 item 1 — Select is the one Lifecycle
// Coordinator cascade that lives here rather than in internal/lifecycle,
// since it is also C2's own Select operation).
func selectClaimLocked(ctx context.Context, tx store.Tx, now time.Time, item *model.Item, selected *model.Claim) error {
	status := model.ClaimSelected
	if err := tx.UpdateClaim(ctx, selected.ID, store.ClaimUpdate{Status: &status, SelectedAt: &now}); err != nil {
		return err
	}
	selected.Status = model.ClaimSelected
	if err := appendClaimEvent(ctx, tx, selected, "claim.selected"); err != nil {
		return err
	}

	others, err := tx.ListActiveClaims(ctx, item.ID)
	if err != nil {
		return err
	}
	reason := ReasonAnotherSelected
	expiredStatus := model.ClaimExpired
	for _, other := range others {
		if other.ID == selected.ID {
			continue
		}
		if err := tx.UpdateClaim(ctx, other.ID, store.ClaimUpdate{
			Status:    &expiredStatus,
			ExpiredAt: &now,
			Reason:    &reason,
		}); err != nil {
			return err
		}
		other.Status = model.ClaimExpired
		if err := appendClaimEvent(ctx, tx, other, "claim.expired"); err != nil {
			return err
		}
	}

	claimedStatus := model.ItemClaimed
	if err := tx.UpdateItem(ctx, item.ID, store.ItemUpdate{Status: &claimedStatus, ClaimedAt: &now}); err != nil {
		return err
	}
	item.Status = model.ItemClaimed
	return appendItemEventTx(ctx, tx, item, "item.claimed")
}

// Complete moves a SELECTED claim to COMPLETED (spec section 4.2.1,
// Complete). Actor must be the claim's owner.
func (s *Service) Complete(ctx context.Context, actorID, claimID string) error {
	claim, err := s.store.GetClaim(ctx, claimID)
	if err != nil {
		return err
	}
	if claim.UserID != actorID {
		return apperr.Forbidden("only the claimant may complete this claim")
	}
	if claim.Status != model.ClaimSelected {
		return apperr.InvalidTransition("claim", string(claim.Status), "COMPLETED")
	}

	status := model.ClaimCompleted
	now := s.now()
	err = s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := tx.UpdateClaim(ctx, claimID, store.ClaimUpdate{Status: &status, CompletedAt: &now}); err != nil {
			return err
		}
		claim.Status = model.ClaimCompleted
		return appendClaimEvent(ctx, tx, claim, "claim.completed")
	})
	if err == nil {
		s.QueueCache.Invalidate(ctx, claim.ItemID)
	}
	return err
}

// MoveToPosition removes claimID from its current active-set position and
// reinserts it at newPos, renumbering the rest of the active set (spec
// section 4.2.3). Actor must be the item's owner.
func (s *Service) MoveToPosition(ctx context.Context, actorID, claimID string, newPos int) error {
	claim, err := s.store.GetClaim(ctx, claimID)
	if err != nil {
		return err
	}
	item, err := s.store.GetItem(ctx, claim.ItemID)
	if err != nil {
		return err
	}
	if item.OwnerID != actorID {
		return apperr.Forbidden("only the item owner may reorder the queue")
	}
	if !claim.Status.IsActive() {
		return apperr.InvalidTransition("claim", string(claim.Status), "reposition")
	}

	return s.store.WithItemLock(ctx, claim.ItemID, func(ctx context.Context) error {
		return s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
			active, err := tx.ListActiveClaims(ctx, claim.ItemID)
			if err != nil {
				return err
			}
			if newPos < 1 || newPos > len(active) {
				return apperr.Invalid(apperr.FieldError{Field: "new_pos", Reason: fmt.Sprintf("must be in [1, %d]", len(active))})
			}

			reordered := reorder(active, claimID, newPos)
			now := s.now()
			for i, c := range reordered {
				pos := i + 1
				if c.QueuePosition == pos {
					continue
				}
				if err := tx.UpdateClaim(ctx, c.ID, store.ClaimUpdate{QueuePosition: &pos, RepositionedAt: &now}); err != nil {
					return err
				}
			}
			return nil
		})
	})
}

// reorder removes the claim with id claimID from active (sorted by current
// position) and reinserts it so it lands at 1-based position newPos.
func reorder(active []*model.Claim, claimID string, newPos int) []*model.Claim {
	out := make([]*model.Claim, 0, len(active))
	var moved *model.Claim
	for _, c := range active {
		if c.ID == claimID {
			moved = c
			continue
		}
		out = append(out, c)
	}
	if moved == nil {
		return active
	}
	idx := newPos - 1
	if idx > len(out) {
		idx = len(out)
	}
	out = append(out[:idx], append([]*model.Claim{moved}, out[idx:]...)...)
	return out
}

// GetQueue returns item_id's claims, optionally including inactive/terminal
// claims, ordered by queue position (spec section 4.2.1, GetQueue).
func (s *Service) GetQueue(ctx context.Context, itemID string, includeInactive bool) ([]*model.Claim, error) {
	return s.store.ListClaims(ctx, itemID, includeInactive)
}

// GetNext returns the claim currently at the front of item_id's active
// queue, or apperr.ErrNotFound if the queue is empty.
func (s *Service) GetNext(ctx context.Context, itemID string) (*model.Claim, error) {
	active, err := s.store.ListActiveClaims(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if len(active) == 0 {
		return nil, apperr.NotFound("claim", "next:"+itemID)
	}
	return active[0], nil
}

// GetQueueSummary returns aggregate queue state for an item (spec section
// 4.2.5). When viewerID is empty, the viewer-independent counts may be
// served from QueueCache -- an anonymous caller (e.g. a search-results
// badge) never needs ViewerPosition, so a cache hit skips the full
// ListClaims scan entirely.
func (s *Service) GetQueueSummary(ctx context.Context, itemID, viewerID string) (model.QueueSummary, error) {
	if viewerID == "" {
		if cached, ok := s.QueueCache.Get(ctx, itemID); ok {
			return cached, nil
		}
	}

	all, err := s.store.ListClaims(ctx, itemID, true)
	if err != nil {
		return model.QueueSummary{}, err
	}
	var active int
	var viewerPos *int
	for _, c := range all {
		if c.Status.IsActive() {
			active++
			if viewerID != "" && c.UserID == viewerID {
				pos := c.QueuePosition
				viewerPos = &pos
			}
		}
	}
	summary := model.NewQueueSummary(len(all), active, viewerPos)
	if viewerID == "" {
		s.QueueCache.Set(ctx, itemID, summary)
	}
	return summary, nil
}

// ListByUser returns every claim userID has made, across all items.
func (s *Service) ListByUser(ctx context.Context, userID string) ([]*model.Claim, error) {
	return s.store.ListClaimsByUser(ctx, userID)
}

// ListForLister returns every claim made against any item listerID owns.
func (s *Service) ListForLister(ctx context.Context, listerID string) ([]*model.Claim, error) {
	return s.store.ListClaimsForLister(ctx, listerID)
}

type claimEventPayload struct {
	EventType  string    `json:"event_type"`
	ClaimID    string    `json:"claim_id"`
	ItemID     string    `json:"item_id"`
	UserID     string    `json:"user_id"`
	Status     string    `json:"status"`
	OccurredAt time.Time `json:"occurred_at"`
}

func appendClaimEvent(ctx context.Context, tx store.Tx, claim *model.Claim, eventType string) error {
	payload, err := json.Marshal(claimEventPayload{
		EventType:  eventType,
		ClaimID:    claim.ID,
		ItemID:     claim.ItemID,
		UserID:     claim.UserID,
		Status:     string(claim.Status),
		OccurredAt: time.Now(),
	})
	if err != nil {
		return fmt.Errorf("claims: marshal event: %w", err)
	}
	return tx.AppendOutboxEvent(ctx, store.OutboxEvent{
		AggregateType: "claim",
		AggregateID:   claim.ID,
		EventType:     eventType,
		Payload:       payload,
	})
}

type itemEventPayload struct {
	EventType  string    `json:"event_type"`
	ItemID     string    `json:"item_id"`
	OwnerID    string    `json:"owner_id"`
	Status     string    `json:"status"`
	OccurredAt time.Time `json:"occurred_at"`
}

func appendItemEventTx(ctx context.Context, tx store.Tx, item *model.Item, eventType string) error {
	payload, err := json.Marshal(itemEventPayload{
		EventType:  eventType,
		ItemID:     item.ID,
		OwnerID:    item.OwnerID,
		Status:     string(item.Status),
		OccurredAt: time.Now(),
	})
	if err != nil {
		return fmt.Errorf("claims: marshal event: %w", err)
	}
	return tx.AppendOutboxEvent(ctx, store.OutboxEvent{
		AggregateType: "item",
		AggregateID:   item.ID,
		EventType:     eventType,
		Payload:       payload,
	})
}
