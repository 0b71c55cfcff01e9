package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Profile != "user-visit" {
		t.Fatalf("profile = %q, want user-visit", cfg.Profile)
	}
	if cfg.TargetCount != 10000 {
		t.Fatalf("target = %v, want 10000", cfg.TargetCount)
	}
	if cfg.EventBackend != EventsMemory {
		t.Fatalf("events backend = %q", cfg.EventBackend)
	}
	if cfg.QueueEnabled() {
		t.Fatal("queue should be disabled without a DSN")
	}
	if cfg.LeaderLease != 15*time.Second {
		t.Fatalf("lease = %v", cfg.LeaderLease)
	}
}

func TestLoadReadsScheduleEnvKeys(t *testing.T) {
	t.Setenv("CADENCE_PROFILE", "staff-activity")
	t.Setenv("CADENCE_TARGET_COUNT", "250")
	t.Setenv("CADENCE_SEED", "1234")
	t.Setenv("CADENCE_DB_DSN", "file::memory:")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Profile != "staff-activity" || cfg.TargetCount != 250 {
		t.Fatalf("unexpected profile config: %q %v", cfg.Profile, cfg.TargetCount)
	}
	if !cfg.HasSeed || cfg.Seed != 1234 {
		t.Fatalf("seed = %d (set %v)", cfg.Seed, cfg.HasSeed)
	}
	if !cfg.QueueEnabled() {
		t.Fatal("queue should be enabled with a DSN")
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"unknown profile", "CADENCE_PROFILE", "weekend"},
		{"zero target", "CADENCE_TARGET_COUNT", "0"},
		{"bad seed", "CADENCE_SEED", "-4"},
		{"bad db backend", "CADENCE_DB_BACKEND", "oracle"},
		{"bad events backend", "CADENCE_EVENTS_BACKEND", "kafka"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			if _, err := Load(); err == nil {
				t.Fatalf("expected error for %s=%s", tt.key, tt.val)
			}
		})
	}
}

func TestResolveProfileFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.yaml")
	doc := "name: night-shift\nweights: [5,5,5,5,5,5,0,0,0,0,0,0,0,0,0,0,0,0,0,0,0,0,5,5]\n"
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CADENCE_PROFILE_FILE", path)
	t.Setenv("CADENCE_TARGET_COUNT", "80")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	p, target, err := cfg.ResolveProfile()
	if err != nil {
		t.Fatalf("resolve profile: %v", err)
	}
	if p.Name != "night-shift" {
		t.Fatalf("profile name = %q", p.Name)
	}
	if target != 80 {
		t.Fatalf("target = %v, want configured 80", target)
	}
}
