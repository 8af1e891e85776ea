package config

import (
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	d := Defaults()
	if d.DefaultItemTTLDays != 14 {
		t.Errorf("expected default TTL 14 days, got %d", d.DefaultItemTTLDays)
	}
	if d.MaxItemTTLDays != 90 {
		t.Errorf("expected max TTL 90 days, got %d", d.MaxItemTTLDays)
	}
	if d.ReclamationInterval != 24*time.Hour {
		t.Errorf("expected 24h reclamation interval, got %s", d.ReclamationInterval)
	}
}

func TestClampTTLDays(t *testing.T) {
	o := Defaults()
	if got := o.ClampTTLDays(0); got != 14 {
		t.Errorf("expected default 14 for zero input, got %d", got)
	}
	if got := o.ClampTTLDays(365); got != 90 {
		t.Errorf("expected clamp to 90, got %d", got)
	}
	if got := o.ClampTTLDays(30); got != 30 {
		t.Errorf("expected 30 to pass through, got %d", got)
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	opts, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts != Defaults() {
		t.Errorf("expected defaults, got %+v", opts)
	}
}

func TestLoadFileMissingReturnsDefaults(t *testing.T) {
	opts := LoadFile("/nonexistent/options.yaml")
	if opts != Defaults() {
		t.Errorf("expected defaults for missing file, got %+v", opts)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("GIVEAWAY_CLAIM_STALENESS_HOURS", "12")
	opts, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.ClaimStalenessHours != 12 {
		t.Errorf("expected env override to set 12, got %d", opts.ClaimStalenessHours)
	}
}
