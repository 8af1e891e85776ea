// Package config loads the core's runtime options. It mirrors the
// teacher's split between a viper-backed loader for the common path
// (internal/config/yaml_config.go) and a direct yaml.Unmarshal fallback for
// call sites that need a config value before viper is wired up
// (internal/config/local_config.go).
package config

import "time"

// Options are the config keys recognized by the core (spec section 6).
type Options struct {
	// DefaultItemTTLDays sets the default expires_at horizon for new items.
	DefaultItemTTLDays int `yaml:"default_item_ttl_days" mapstructure:"default_item_ttl_days"`
	// MaxItemTTLDays clamps caller-supplied TTLs.
	MaxItemTTLDays int `yaml:"max_item_ttl_days" mapstructure:"max_item_ttl_days"`
	// ClaimStalenessHours is how long a non-terminal claim may sit idle
	// before reclamation considers it stale.
	ClaimStalenessHours int `yaml:"claim_staleness_hours" mapstructure:"claim_staleness_hours"`
	// ReclamationInterval is the reclamation loop's cadence.
	ReclamationInterval time.Duration `yaml:"reclamation_interval" mapstructure:"reclamation_interval"`
	// EnqueueRetryAttempts bounds position-assignment retries on index
	// conflict.
	EnqueueRetryAttempts int `yaml:"enqueue_retry_attempts" mapstructure:"enqueue_retry_attempts"`
	// SearchPageLimitMax clamps caller-supplied page sizes.
	SearchPageLimitMax int `yaml:"search_page_limit_max" mapstructure:"search_page_limit_max"`
	// ArchiveAge is how old a terminal item must be before the optional
	// archival sweep marks it archived (spec section 4.4 step 3).
	ArchiveAge time.Duration `yaml:"archive_age" mapstructure:"archive_age"`

	// DatabaseURL is the Postgres connection string for internal/store/pg.
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	// NATSUrl is the JetStream server internal/outbox publishes to.
	NATSUrl string `yaml:"nats_url" mapstructure:"nats_url"`
	// OutboxPollInterval is how often internal/outbox.Publisher drains the
	// outbox table.
	OutboxPollInterval time.Duration `yaml:"outbox_poll_interval" mapstructure:"outbox_poll_interval"`

	// RedisURL is the optional advisory cache backing
	// internal/cache.QueueSummaryCache. Empty disables the cache entirely
	// (GetQueueSummary always reads the store).
	RedisURL string `yaml:"redis_url" mapstructure:"redis_url"`
	// QueueSummaryCacheTTL is how long a cached anonymous QueueSummary is
	// served before the next read falls through to the store.
	QueueSummaryCacheTTL time.Duration `yaml:"queue_summary_cache_ttl" mapstructure:"queue_summary_cache_ttl"`
}

// Defaults returns the spec-mandated default Options (section 6).
func Defaults() Options {
	return Options{
		DefaultItemTTLDays:  14,
		MaxItemTTLDays:      90,
		ClaimStalenessHours: 48,
		ReclamationInterval: 24 * time.Hour,
		EnqueueRetryAttempts: 3,
		SearchPageLimitMax:  100,
		ArchiveAge:          90 * 24 * time.Hour,
		NATSUrl:             "nats://127.0.0.1:4222",
		OutboxPollInterval:  2 * time.Second,
		QueueSummaryCacheTTL: 5 * time.Second,
	}
}

// ClampTTLDays clamps a caller-supplied TTL (in days) to (0, MaxItemTTLDays],
// defaulting to DefaultItemTTLDays when days is zero (spec section 4.1).
func (o Options) ClampTTLDays(days int) int {
	if days <= 0 {
		days = o.DefaultItemTTLDays
	}
	if days > o.MaxItemTTLDays {
		days = o.MaxItemTTLDays
	}
	return days
}
