package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// envPrefix matches the teacher's BEADS_* convention, retargeted to this
// core's own namespace.
const envPrefix = "GIVEAWAY"

// Load reads options.yaml (if present) via viper, applies GIVEAWAY_* env
// overrides, and fills in any unset field with Defaults(). Grounded on the
// teacher's internal/config/yaml_config.go viper setup.
func Load(path string) (Options, error) {
	opts := Defaults()

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if !os.IsNotExist(err) {
				return opts, fmt.Errorf("config: read %s: %w", path, err)
			}
		} else if err := v.Unmarshal(&opts); err != nil {
			return opts, fmt.Errorf("config: unmarshal %s: %w", path, err)
		}
	}

	applyEnvOverrides(&opts)
	return opts, nil
}

// applyEnvOverrides applies GIVEAWAY_* environment variables directly,
// mirroring the teacher's LoadLocalConfigWithEnv precedence (env wins over
// file). viper.AutomaticEnv handles the common case during Unmarshal, but
// duration and env-only overrides (e.g. when no config file exists at all)
// are applied explicitly here so Load behaves the same with or without a
// file on disk.
func applyEnvOverrides(opts *Options) {
	if s := os.Getenv(envPrefix + "_DEFAULT_ITEM_TTL_DAYS"); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			opts.DefaultItemTTLDays = n
		}
	}
	if s := os.Getenv(envPrefix + "_MAX_ITEM_TTL_DAYS"); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			opts.MaxItemTTLDays = n
		}
	}
	if s := os.Getenv(envPrefix + "_CLAIM_STALENESS_HOURS"); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			opts.ClaimStalenessHours = n
		}
	}
	if s := os.Getenv(envPrefix + "_RECLAMATION_INTERVAL"); s != "" {
		if d, err := time.ParseDuration(s); err == nil {
			opts.ReclamationInterval = d
		}
	}
	if s := os.Getenv(envPrefix + "_ENQUEUE_RETRY_ATTEMPTS"); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			opts.EnqueueRetryAttempts = n
		}
	}
	if s := os.Getenv(envPrefix + "_SEARCH_PAGE_LIMIT_MAX"); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			opts.SearchPageLimitMax = n
		}
	}
	if s := os.Getenv(envPrefix + "_DATABASE_URL"); s != "" {
		opts.DatabaseURL = s
	}
	if s := os.Getenv(envPrefix + "_NATS_URL"); s != "" {
		opts.NATSUrl = s
	}
	if s := os.Getenv(envPrefix + "_OUTBOX_POLL_INTERVAL"); s != "" {
		if d, err := time.ParseDuration(s); err == nil {
			opts.OutboxPollInterval = d
		}
	}
}

// LoadFile reads options directly from a YAML file without going through
// viper, for call sites that need a value before the main config is wired
// up. Returns Defaults() (not an error) if the file doesn't exist, matching
// the teacher's LoadLocalConfig stance that a missing file is not fatal.
func LoadFile(path string) Options {
	opts := Defaults()
	data, err := os.ReadFile(path) // #nosec G304 - path supplied by caller, not user input
	if err != nil {
		return opts
	}
	_ = yaml.Unmarshal(data, &opts)
	return opts
}
