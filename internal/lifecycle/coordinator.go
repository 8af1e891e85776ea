// Package lifecycle implements the two item-closing cascades that are not
// themselves a claim-queue operation: SoftDeleteItem and ExpireItem (spec
// section 4.3, items 2 and 3). Both flip the item to a terminal status and
// expire every non-terminal claim on it in the same transaction; Select's
// identical-shaped cascade lives in internal/claims since it is also C2's
// own Select operation (spec section 4.3, item 1 cross-reference).
package lifecycle

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/giveaway/core/internal/apperr"
	"github.com/giveaway/core/internal/claims"
	"github.com/giveaway/core/internal/model"
	"github.com/giveaway/core/internal/store"
)

// Coordinator implements the cross-table cascades.
type Coordinator struct {
	store store.Store
	now   func() time.Time
}

// New builds a Coordinator backed by st.
func New(st store.Store) *Coordinator {
	return &Coordinator{store: st, now: time.Now}
}

// SoftDeleteItem is owner-initiated removal (spec section 4.1 SoftDelete /
// section 4.3 item 2): flips the item to DELETED and every non-terminal
// claim on it to EXPIRED with reason "item removed".
func (c *Coordinator) SoftDeleteItem(ctx context.Context, actorID, itemID string) error {
	item, err := c.store.GetItem(ctx, itemID)
	if err != nil {
		return err
	}
	if item.OwnerID != actorID {
		return apperr.Forbidden("only the owner may delete this item")
	}
	if item.Status == model.ItemDeleted {
		return apperr.InvalidTransition("item", string(item.Status), "DELETED")
	}
	return c.cascade(ctx, item, model.ItemDeleted, claims.ReasonItemRemoved, "item.deleted")
}

// ExpireItem is the system-initiated equivalent, invoked by the
// reclamation loop (spec section 4.4 step 1 / section 4.3 item 3): flips
// the item to EXPIRED and cascades the same way, with reason
// "item expired".
func (c *Coordinator) ExpireItem(ctx context.Context, itemID string) error {
	item, err := c.store.GetItem(ctx, itemID)
	if err != nil {
		return err
	}
	if item.Status != model.ItemActive {
		return apperr.InvalidTransition("item", string(item.Status), "EXPIRED")
	}
	return c.cascade(ctx, item, model.ItemExpired, claims.ReasonItemExpired, "item.expired")
}

// cascade flips item to targetStatus and every non-terminal claim on it to
// EXPIRED with reason, all inside one item-locked transaction (spec
// section 4.3: "all-or-nothing").
func (c *Coordinator) cascade(ctx context.Context, item *model.Item, targetStatus model.ItemStatus, reason, eventType string) error {
	return c.store.WithItemLock(ctx, item.ID, func(ctx context.Context) error {
		return c.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
			now := c.now()

			all, err := tx.ListClaims(ctx, item.ID, true)
			if err != nil {
				return err
			}
			expiredStatus := model.ClaimExpired
			claimReason := reason
			for _, cl := range all {
				if cl.Status.IsTerminal() {
					continue
				}
				if err := tx.UpdateClaim(ctx, cl.ID, store.ClaimUpdate{
					Status:    &expiredStatus,
					ExpiredAt: &now,
					Reason:    &claimReason,
				}); err != nil {
					return err
				}
				cl.Status = model.ClaimExpired
				if err := appendClaimEvent(ctx, tx, cl, "claim.expired"); err != nil {
					return err
				}
			}

			var stamp *time.Time
			patch := store.ItemUpdate{Status: &targetStatus}
			switch targetStatus {
			case model.ItemDeleted:
				// DELETED has no dedicated timestamp column; expires_at already
				// marks when the listing would have lapsed on its own.
			case model.ItemExpired:
				stamp = &now
				patch.ExpiredAt = stamp
			}
			if err := tx.UpdateItem(ctx, item.ID, patch); err != nil {
				return err
			}
			item.Status = targetStatus
			return appendItemEvent(ctx, tx, item, eventType)
		})
	})
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
		return fmt.Errorf("lifecycle: marshal claim event: %w", err)
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

func appendItemEvent(ctx context.Context, tx store.Tx, item *model.Item, eventType string) error {
	payload, err := json.Marshal(itemEventPayload{
		EventType:  eventType,
		ItemID:     item.ID,
		OwnerID:    item.OwnerID,
		Status:     string(item.Status),
		OccurredAt: time.Now(),
	})
	if err != nil {
		return fmt.Errorf("lifecycle: marshal item event: %w", err)
	}
	return tx.AppendOutboxEvent(ctx, store.OutboxEvent{
		AggregateType: "item",
		AggregateID:   item.ID,
		EventType:     eventType,
		Payload:       payload,
	})
}
