package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.GRPCListenAddr() != "0.0.0.0:50051" {
		t.Fatalf("grpc addr = %q", cfg.GRPCListenAddr())
	}
	if cfg.DefaultSlotGranularity != 30*time.Minute {
		t.Fatalf("granularity = %s, want 30m", cfg.DefaultSlotGranularity)
	}
	if cfg.DefaultMinLeadTime != 0 {
		t.Fatalf("lead time = %s, want 0", cfg.DefaultMinLeadTime)
	}
	if cfg.DefaultWaitPerParty != 15*time.Minute {
		t.Fatalf("wait per party = %s, want 15m", cfg.DefaultWaitPerParty)
	}
	if cfg.EventsSink != "log" {
		t.Fatalf("events sink = %q, want log", cfg.EventsSink)
	}
	if cfg.Location() != time.UTC {
		t.Fatalf("location = %s, want UTC", cfg.Location())
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("SALONSCHED_GRPC_ADDR", "127.0.0.1:6000")
	t.Setenv("SALONSCHED_SCHEDULING_DEFAULT_TIMEZONE", "America/Los_Angeles")
	t.Setenv("SALONSCHED_SCHEDULING_DEFAULT_MIN_LEAD_TIME", "2h")
	t.Setenv("SALONSCHED_EVENTS_SINK", "KAFKA")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("SALONSCHED_RATELIMIT_FAIL_OPEN", "false")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.GRPCListenAddr() != "127.0.0.1:6000" {
		t.Fatalf("grpc addr = %q", cfg.GRPCListenAddr())
	}
	if cfg.Location().String() != "America/Los_Angeles" {
		t.Fatalf("location = %s", cfg.Location())
	}
	if cfg.DefaultMinLeadTime != 2*time.Hour {
		t.Fatalf("lead time = %s, want 2h", cfg.DefaultMinLeadTime)
	}
	if cfg.EventsSink != "kafka" || cfg.KafkaBrokers != "k1:9092,k2:9092" {
		t.Fatalf("events = %q %q", cfg.EventsSink, cfg.KafkaBrokers)
	}
	if cfg.RateLimitFailOpen {
		t.Fatalf("fail open should be false")
	}
}

func TestLoadFileAndValidation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "salonsched.yaml")
	body := "scheduling:\n  default_slot_granularity: 15m\nwaitlist:\n  default_wait_per_party: 20m\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.DefaultSlotGranularity != 15*time.Minute || cfg.DefaultWaitPerParty != 20*time.Minute {
		t.Fatalf("file values not applied: %+v", cfg)
	}

	t.Setenv("SALONSCHED_SCHEDULING_DEFAULT_TIMEZONE", "Mars/Olympus")
	if _, err := Load(""); err == nil {
		t.Fatalf("expected error for unknown timezone")
	}
}

func TestLoadRejectsBadDuration(t *testing.T) {
	t.Setenv("SALONSCHED_SHUTDOWN_TIMEOUT", "soon")
	if _, err := Load(""); err == nil {
		t.Fatalf("expected error for bad duration")
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}
