package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Port)
	}
	if cfg.BookingHorizonDays != 30 {
		t.Errorf("expected default horizon 30, got %d", cfg.BookingHorizonDays)
	}
	if cfg.PendingTTL != 24*time.Hour {
		t.Errorf("expected default pending TTL 24h, got %s", cfg.PendingTTL)
	}
	if cfg.SweepInterval != time.Hour {
		t.Errorf("expected default sweep interval 1h, got %s", cfg.SweepInterval)
	}
	if cfg.RequireConfirmation {
		t.Error("expected immediate scheduling by default")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("BOOKING_HORIZON_DAYS", "14")
	t.Setenv("PENDING_TTL", "6h")
	t.Setenv("REQUIRE_CONFIRMATION", "true")
	t.Setenv("SLOT_LOCK_WAIT", "500ms")

	cfg := Load()

	if cfg.BookingHorizonDays != 14 {
		t.Errorf("expected horizon 14, got %d", cfg.BookingHorizonDays)
	}
	if cfg.PendingTTL != 6*time.Hour {
		t.Errorf("expected pending TTL 6h, got %s", cfg.PendingTTL)
	}
	if !cfg.RequireConfirmation {
		t.Error("expected confirmation required")
	}
	if cfg.SlotLockWait != 500*time.Millisecond {
		t.Errorf("expected lock wait 500ms, got %s", cfg.SlotLockWait)
	}
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("BOOKING_HORIZON_DAYS", "soon")
	t.Setenv("SWEEP_INTERVAL", "whenever")

	cfg := Load()

	if cfg.BookingHorizonDays != 30 {
		t.Errorf("malformed int should fall back to default, got %d", cfg.BookingHorizonDays)
	}
	if cfg.SweepInterval != time.Hour {
		t.Errorf("malformed duration should fall back to default, got %s", cfg.SweepInterval)
	}
}
