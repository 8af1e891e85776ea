// Package outbox drains the transactional outbox (spec section 9) and
// publishes each event to NATS JetStream. Grounded on the teacher's
// internal/eventbus.Bus.publishToJetStream/PublishRaw fire-and-forget
// publish style and internal/eventbus/streams.go's stream-provisioning
// pattern, retargeted from hook events to item/claim lifecycle events.
package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/giveaway/core/internal/store"
)

const (
	// StreamGiveawayEvents is the JetStream stream holding every published
	// item/claim lifecycle event.
	StreamGiveawayEvents = "GIVEAWAY_EVENTS"

	subjectItemPrefix  = "items."
	subjectClaimPrefix = "claims."
)

// SubjectForEvent returns the NATS subject an outbox row publishes to,
// mirroring the teacher's SubjectForEvent(eventType) dispatch-by-prefix
// convention (internal/eventbus/streams.go).
func SubjectForEvent(aggregateType, eventType string) string {
	switch aggregateType {
	case "claim":
		return subjectClaimPrefix + eventType
	default:
		return subjectItemPrefix + eventType
	}
}

// EnsureStream creates the GIVEAWAY_EVENTS stream if it doesn't already
// exist.
func EnsureStream(js nats.JetStreamContext) error {
	if _, err := js.StreamInfo(StreamGiveawayEvents); err != nil {
		_, err = js.AddStream(&nats.StreamConfig{
			Name:     StreamGiveawayEvents,
			Subjects: []string{subjectItemPrefix + ">", subjectClaimPrefix + ">"},
			Storage:  nats.FileStorage,
			MaxMsgs:  1_000_000,
			MaxBytes: 1 << 30,
		})
		if err != nil {
			return fmt.Errorf("outbox: create %s stream: %w", StreamGiveawayEvents, err)
		}
	}
	return nil
}

// Publisher drains store.OutboxReader in a polling loop and publishes each
// unpublished row to JetStream, marking it published on success. A row left
// unpublished after a transient JetStream error is retried on the next
// tick — publishing is at-least-once, so downstream consumers must
// de-duplicate on (aggregate_type, aggregate_id, event_type, created_at).
type Publisher struct {
	store        store.OutboxReader
	js           nats.JetStreamContext
	pollInterval time.Duration
	batchSize    int
	log          *zap.Logger
}

// NewPublisher builds a Publisher. log may be nil, in which case a no-op
// logger is used.
func NewPublisher(st store.OutboxReader, js nats.JetStreamContext, pollInterval time.Duration, log *zap.Logger) *Publisher {
	if log == nil {
		log = zap.NewNop()
	}
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	return &Publisher{store: st, js: js, pollInterval: pollInterval, batchSize: 100, log: log}
}

// Run polls until ctx is cancelled, draining and publishing outbox events
// on each tick. Grounded on the teacher's ticker-driven sweep loop pattern
// (see internal/reclaim.Runner, adapted from the same decision-sweeper
// idiom used across the teacher's daemon).
func (p *Publisher) Run(ctx context.Context) {
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.DrainOnce(ctx); err != nil {
				p.log.Warn("outbox drain failed", zap.Error(err))
			}
		}
	}
}

// DrainOnce publishes all currently unpublished outbox events once, in
// insertion order. It returns an error only if listing fails or ctx is
// done; a failed publish is logged and left for the next drain.
func (p *Publisher) DrainOnce(ctx context.Context) error {
	events, err := p.store.ListUnpublishedOutboxEvents(ctx, p.batchSize)
	if err != nil {
		return fmt.Errorf("outbox: list unpublished: %w", err)
	}

	for _, e := range events {
		if err := ctx.Err(); err != nil {
			return err
		}
		subject := SubjectForEvent(e.AggregateType, e.EventType)
		ack, err := p.js.Publish(subject, e.Payload)
		if err != nil {
			p.log.Warn("outbox publish failed, will retry next tick",
				zap.String("subject", subject), zap.String("event_id", e.ID), zap.Error(err))
			continue
		}
		if err := p.store.MarkOutboxPublished(ctx, e.ID); err != nil {
			p.log.Warn("outbox mark-published failed", zap.String("event_id", e.ID), zap.Error(err))
			continue
		}
		p.log.Debug("outbox event published",
			zap.String("subject", subject), zap.Uint64("stream_seq", ack.Sequence))
	}
	return nil
}
