// Package metrics wires the ambient OTel instruments named in the core's
// config/observability stack -- a counter per component event plus a
// tracer for the operations worth a span -- grounded on the teacher's
// doltTracer/doltMetrics instruments (internal/storage/dolt/telemetry.go),
// which wrap otel.Tracer/otel.Meter the same way around its own store.
// A nil *Recorder is always safe to call: every method no-ops, so
// callers that never wire a MeterProvider (every unit test in this repo)
// pay nothing and need no test double.
package metrics

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/giveaway/core"

// Recorder holds the counters the core increments from internal/claims and
// internal/reclaim, plus a shared tracer for span-worthy operations
// (reclaim's RunOnce).
type Recorder struct {
	tracer trace.Tracer

	enqueueRetries metric.Int64Counter
	itemsExpired   metric.Int64Counter
	claimsExpired  metric.Int64Counter
	itemsArchived  metric.Int64Counter
}

// New builds a Recorder against the process-wide otel global providers
// (set by whatever main.go wires via otel.SetMeterProvider /
// otel.SetTracerProvider; if nothing was wired, otel's default no-op
// providers make every instrument below a safe no-op too).
func New() (*Recorder, error) {
	meter := otel.Meter(instrumentationName)

	enqueueRetries, err := meter.Int64Counter("claims.enqueue.retries",
		metric.WithDescription("Number of position-assignment conflicts retried during Enqueue"))
	if err != nil {
		return nil, err
	}
	itemsExpired, err := meter.Int64Counter("reclaim.items.expired",
		metric.WithDescription("Number of items transitioned ACTIVE->EXPIRED by the reclamation loop"))
	if err != nil {
		return nil, err
	}
	claimsExpired, err := meter.Int64Counter("reclaim.claims.expired",
		metric.WithDescription("Number of stale claims transitioned to EXPIRED by the reclamation loop"))
	if err != nil {
		return nil, err
	}
	itemsArchived, err := meter.Int64Counter("reclaim.items.archived",
		metric.WithDescription("Number of terminal items marked archived by the reclamation loop"))
	if err != nil {
		return nil, err
	}

	return &Recorder{
		tracer:         otel.Tracer(instrumentationName),
		enqueueRetries: enqueueRetries,
		itemsExpired:   itemsExpired,
		claimsExpired:  claimsExpired,
		itemsArchived:  itemsArchived,
	}, nil
}

// StartSpan opens a span named name, a no-op returning ctx unchanged when
// r is nil.
func (r *Recorder) StartSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	if r == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return r.tracer.Start(ctx, name)
}

// RecordEnqueueRetry increments the Enqueue conflict-retry counter.
func (r *Recorder) RecordEnqueueRetry(ctx context.Context) {
	if r == nil {
		return
	}
	r.enqueueRetries.Add(ctx, 1)
}

// RecordItemsExpired adds n to the items-expired counter.
func (r *Recorder) RecordItemsExpired(ctx context.Context, n int64) {
	if r == nil || n == 0 {
		return
	}
	r.itemsExpired.Add(ctx, n)
}

// RecordClaimsExpired adds n to the claims-expired counter.
func (r *Recorder) RecordClaimsExpired(ctx context.Context, n int64) {
	if r == nil || n == 0 {
		return
	}
	r.claimsExpired.Add(ctx, n)
}

// RecordItemsArchived adds n to the items-archived counter.
func (r *Recorder) RecordItemsArchived(ctx context.Context, n int64) {
	if r == nil || n == 0 {
		return
	}
	r.itemsArchived.Add(ctx, n)
}
