// Package reclaim implements the reclamation loop (spec section 4.4): a
// periodic, idempotent sweep that expires lapsed items, expires stale
// claims, and optionally archives old terminal items. Grounded on the
// teacher's ticker + shutdown-channel sweeper idiom
// (internal/rpc/server_decision_sweeper.go), generalized from a single
// decision-timeout sweep to three independent, individually-reported
// sub-steps.
package reclaim

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/giveaway/core/internal/claims"
	"github.com/giveaway/core/internal/config"
	"github.com/giveaway/core/internal/lifecycle"
	"github.com/giveaway/core/internal/metrics"
	"github.com/giveaway/core/internal/model"
	"github.com/giveaway/core/internal/store"
)

// Report counts each sub-step processed during one sweep, for
// observability (spec section 4.4: "each sub-step reports counts").
type Report struct {
	ItemsExpired  int
	ClaimsExpired int
	ItemsArchived int
	Errors        []error
}

// Runner drives the reclamation loop on a ticker.
type Runner struct {
	store      store.Store
	coord      *lifecycle.Coordinator
	cfg        config.Options
	archiveAge time.Duration
	now        func() time.Time
	log        *zap.Logger

	// Metrics records per-sweep counters via OTel, if set. A nil Metrics
	// is always safe to call (see internal/metrics), so it is left unset
	// by New and wired only by cmd/giveaway-core's composition root.
	Metrics *metrics.Recorder
}

// New builds a Runner backed by st and cfg. log may be nil.
func New(st store.Store, cfg config.Options, log *zap.Logger) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{
		store:      st,
		coord:      lifecycle.New(st),
		cfg:        cfg,
		archiveAge: cfg.ArchiveAge,
		now:        time.Now,
		log:        log,
	}
}

// Start runs the sweep on cfg.ReclamationInterval until stopCh is closed.
// The first sweep runs immediately rather than waiting a full interval, so
// a freshly started process doesn't leave hours of backlog unprocessed.
func (r *Runner) Start(ctx context.Context, stopCh <-chan struct{}) {
	r.runOnceLogged(ctx)

	ticker := time.NewTicker(r.cfg.ReclamationInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.runOnceLogged(ctx)
		}
	}
}

func (r *Runner) runOnceLogged(ctx context.Context) {
	report := r.RunOnce(ctx)
	r.log.Info("reclamation sweep complete",
		zap.Int("items_expired", report.ItemsExpired),
		zap.Int("claims_expired", report.ClaimsExpired),
		zap.Int("items_archived", report.ItemsArchived),
		zap.Int("errors", len(report.Errors)),
	)
	for _, err := range report.Errors {
		r.log.Warn("reclamation sweep error", zap.Error(err))
	}
}

// RunOnce performs one full sweep: expire lapsed items, expire stale
// claims, and (if configured) archive old terminal items. Each sub-step is
// best-effort — one item's failure doesn't abort the rest of the sweep
// (spec section 4.4: "must be idempotent").
func (r *Runner) RunOnce(ctx context.Context) Report {
	ctx, span := r.Metrics.StartSpan(ctx, "reclaim.run_once")
	defer span.End()

	now := r.now()
	var report Report

	report.ItemsExpired, report.Errors = r.expireLapsedItems(ctx, now, report.Errors)
	report.ClaimsExpired, report.Errors = r.expireStaleClaims(ctx, now, report.Errors)
	report.ItemsArchived, report.Errors = r.archiveOldItems(ctx, now, report.Errors)

	r.Metrics.RecordItemsExpired(ctx, int64(report.ItemsExpired))
	r.Metrics.RecordClaimsExpired(ctx, int64(report.ClaimsExpired))
	r.Metrics.RecordItemsArchived(ctx, int64(report.ItemsArchived))

	return report
}

// Preview reports what RunOnce would do without mutating anything, for
// operator dry-runs.
func (r *Runner) Preview(ctx context.Context) (Report, error) {
	now := r.now()
	var report Report

	expired, err := r.store.ListExpiredActiveItems(ctx, now, 0)
	if err != nil {
		return report, err
	}
	report.ItemsExpired = len(expired)

	stale, err := r.store.ListStaleActiveClaims(ctx, now.Add(-r.stalenessWindow()), 0)
	if err != nil {
		return report, err
	}
	report.ClaimsExpired = len(stale)

	archivable, err := r.store.ListArchivableItems(ctx, now.Add(-r.archiveAge), 0)
	if err != nil {
		return report, err
	}
	report.ItemsArchived = len(archivable)

	return report, nil
}

func (r *Runner) stalenessWindow() time.Duration {
	return time.Duration(r.cfg.ClaimStalenessHours) * time.Hour
}

// expireLapsedItems delegates each ACTIVE-but-lapsed item to ExpireItem
// (spec section 4.4 step 1).
func (r *Runner) expireLapsedItems(ctx context.Context, now time.Time, errs []error) (int, []error) {
	items, err := r.store.ListExpiredActiveItems(ctx, now, 0)
	if err != nil {
		return 0, append(errs, err)
	}
	count := 0
	for _, item := range items {
		if err := r.coord.ExpireItem(ctx, item.ID); err != nil {
			errs = append(errs, err)
			continue
		}
		count++
	}
	return count, errs
}

// expireStaleClaims moves each PENDING/CONTACTED claim older than the
// staleness window to EXPIRED with reason "inactivity", compacting the
// affected item's active set (spec section 4.4 step 2).
func (r *Runner) expireStaleClaims(ctx context.Context, now time.Time, errs []error) (int, []error) {
	stale, err := r.store.ListStaleActiveClaims(ctx, now.Add(-r.stalenessWindow()), 0)
	if err != nil {
		return 0, append(errs, err)
	}
	count := 0
	for _, claim := range stale {
		if err := r.expireOneStaleClaim(ctx, now, claim); err != nil {
			errs = append(errs, err)
			continue
		}
		count++
	}
	return count, errs
}

func (r *Runner) expireOneStaleClaim(ctx context.Context, now time.Time, claim *model.Claim) error {
	return r.store.WithItemLock(ctx, claim.ItemID, func(ctx context.Context) error {
		return r.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
			// Re-check under the lock: the claim may have left the active
			// set (cancel/select/skip) between the scan and this point.
			fresh, err := tx.GetClaim(ctx, claim.ID)
			if err != nil {
				return err
			}
			if !fresh.Status.IsActive() {
				return nil
			}
			status := model.ClaimExpired
			reason := claims.ReasonInactivity
			if err := tx.UpdateClaim(ctx, claim.ID, store.ClaimUpdate{
				Status:    &status,
				ExpiredAt: &now,
				Reason:    &reason,
			}); err != nil {
				return err
			}
			return tx.RenumberActiveSet(ctx, claim.ItemID)
		})
	})
}

// archiveOldItems marks terminal items older than archiveAge as archived
// (spec section 4.4 step 3, "orthogonal to the claim queue").
func (r *Runner) archiveOldItems(ctx context.Context, now time.Time, errs []error) (int, []error) {
	items, err := r.store.ListArchivableItems(ctx, now.Add(-r.archiveAge), 0)
	if err != nil {
		return 0, append(errs, err)
	}
	count := 0
	for _, item := range items {
		if err := r.store.UpdateItem(ctx, item.ID, store.ItemUpdate{ArchivedAt: &now}); err != nil {
			errs = append(errs, err)
			continue
		}
		count++
	}
	return count, errs
}
