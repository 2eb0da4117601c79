package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.LiveClient.PollInterval != 2*time.Second {
		t.Errorf("expected 2s poll interval, got %s", cfg.LiveClient.PollInterval)
	}
	if cfg.Presence.GraceWindow != 15*time.Second {
		t.Errorf("expected 15s grace window, got %s", cfg.Presence.GraceWindow)
	}
	if cfg.Backend.MaxAttempts != 3 {
		t.Errorf("expected 3 attempts, got %d", cfg.Backend.MaxAttempts)
	}
}

func TestLoadYAMLThenEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "swell.yaml")
	yamlBody := []byte(`
backend:
  url: http://localhost:4000
presence:
  room_prefix: scrim
  grace_window: 30s
`)
	if err := os.WriteFile(path, yamlBody, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv(envRoomPrefix, "envprefix")
	t.Setenv(envPollInterval, "500ms")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Backend.URL != "http://localhost:4000" {
		t.Errorf("backend url from yaml not applied: %s", cfg.Backend.URL)
	}
	if cfg.Presence.GraceWindow != 30*time.Second {
		t.Errorf("grace window from yaml not applied: %s", cfg.Presence.GraceWindow)
	}
	if cfg.Presence.RoomPrefix != "envprefix" {
		t.Errorf("env should override yaml, got %s", cfg.Presence.RoomPrefix)
	}
	if cfg.LiveClient.PollInterval != 500*time.Millisecond {
		t.Errorf("expected env poll interval, got %s", cfg.LiveClient.PollInterval)
	}
}

func TestLoadRejectsBrokenYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	if err := os.WriteFile(path, []byte("backend: [unterminated"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestEnvHelpersFallBackOnGarbage(t *testing.T) {
	t.Setenv("SWELL_TEST_DURATION", "soon")
	t.Setenv("SWELL_TEST_INT", "-4")
	t.Setenv("SWELL_TEST_BOOL", "maybe")

	if got := durationEnvOrDefault("SWELL_TEST_DURATION", time.Second); got != time.Second {
		t.Errorf("expected default duration, got %s", got)
	}
	if got := intEnvOrDefault("SWELL_TEST_INT", 7); got != 7 {
		t.Errorf("expected default int, got %d", got)
	}
	if got := boolEnvOrDefault("SWELL_TEST_BOOL", true); !got {
		t.Error("expected default bool")
	}

	t.Setenv("SWELL_TEST_BOOL", "no")
	if got := boolEnvOrDefault("SWELL_TEST_BOOL", true); got {
		t.Error("expected false from 'no'")
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Presence.GraceWindow = 0
	if err := cfg.Validate(); err == nil {
		t.Error("expected zero grace window to be rejected")
	}

	cfg = Default()
	cfg.Backend.URL = ""
	if err := cfg.Validate(); err == nil {
		t.Error("expected empty backend url to be rejected")
	}
}
