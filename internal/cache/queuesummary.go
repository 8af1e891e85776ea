// Package cache is an advisory-only read cache in front of the claim
// queue engine's aggregate summary view. It exists purely to take load
// off repeated "how many people are interested in this item" reads (the
// public, viewer-independent QueueSummary shown alongside search
// results) and is never consulted for anything correctness-sensitive:
// per-viewer queue position, position assignment, and every write path
// always go straight to the store (spec section 4.2.5 and the ban on
// caching the active set). Grounded on jordigilh-kubernaut's go-redis/v9
// client usage for a similar best-effort lookaside cache.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/giveaway/core/internal/model"
)

// QueueSummaryCache is a lookaside cache for the anonymous (no viewerID)
// QueueSummary view: TotalClaims and ActiveClaims only. ViewerPosition and
// EstimatedWait are viewer-specific and never cached.
type QueueSummaryCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// New wraps rdb with ttl as the cache's per-entry expiry.
func New(rdb *redis.Client, ttl time.Duration) *QueueSummaryCache {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	return &QueueSummaryCache{rdb: rdb, ttl: ttl}
}

type cachedSummary struct {
	TotalClaims  int `json:"total_claims"`
	ActiveClaims int `json:"active_claims"`
}

func key(itemID string) string {
	return "giveaway:queue_summary:" + itemID
}

// Get returns the cached anonymous summary for itemID, if present and
// unexpired. A nil *QueueSummaryCache or any Redis error is treated as a
// miss -- the cache is advisory, so callers always fall back to the store.
func (c *QueueSummaryCache) Get(ctx context.Context, itemID string) (model.QueueSummary, bool) {
	if c == nil {
		return model.QueueSummary{}, false
	}
	raw, err := c.rdb.Get(ctx, key(itemID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			return model.QueueSummary{}, false
		}
		return model.QueueSummary{}, false
	}
	var cs cachedSummary
	if err := json.Unmarshal(raw, &cs); err != nil {
		return model.QueueSummary{}, false
	}
	return model.NewQueueSummary(cs.TotalClaims, cs.ActiveClaims, nil), true
}

// Set stores summary's viewer-independent fields for itemID. Failures are
// swallowed: a cache write that fails just means the next Get misses.
func (c *QueueSummaryCache) Set(ctx context.Context, itemID string, summary model.QueueSummary) {
	if c == nil {
		return
	}
	raw, err := json.Marshal(cachedSummary{TotalClaims: summary.TotalClaims, ActiveClaims: summary.ActiveClaims})
	if err != nil {
		return
	}
	_ = c.rdb.Set(ctx, key(itemID), raw, c.ttl).Err()
}

// Invalidate evicts itemID's cached summary, for write paths
// (Enqueue/Cancel/Skip/Select/Complete) that change the active-set size
// and would otherwise serve a stale count until ttl expires.
func (c *QueueSummaryCache) Invalidate(ctx context.Context, itemID string) {
	if c == nil {
		return
	}
	_ = c.rdb.Del(ctx, key(itemID)).Err()
}
