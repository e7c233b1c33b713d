package config

import (
	"path/filepath"
	"testing"
)

func TestLoadDefaultsAndEnvOverrides(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("SLACK_BOT_TOKEN", "xoxb-test")
	t.Setenv("ADMIN_USER_ID", "UADMIN")
	t.Setenv("MESSAGE_THRESHOLD", "7")
	t.Setenv("TIME_WINDOW_SECONDS", "60")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Tracker.MessageThreshold != 7 {
		t.Fatalf("expected threshold 7, got %d", cfg.Tracker.MessageThreshold)
	}
	if cfg.Tracker.WindowSeconds != 60 {
		t.Fatalf("expected window 60, got %d", cfg.Tracker.WindowSeconds)
	}
	if cfg.Tracker.MaxTracked != 50 {
		t.Fatalf("expected default cap 50, got %d", cfg.Tracker.MaxTracked)
	}
	if cfg.SlackAPIURL != "https://slack.com/api/" {
		t.Fatalf("unexpected api url %q", cfg.SlackAPIURL)
	}
}

func TestLoadRequiresBotToken(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("SLACK_BOT_TOKEN", "")
	t.Setenv("ADMIN_USER_ID", "UADMIN")

	if _, err := Load(); err == nil {
		t.Fatalf("expected missing token error")
	}
}

func TestLoadNormalizesAPIURL(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("SLACK_BOT_TOKEN", "xoxb-test")
	t.Setenv("ADMIN_USER_ID", "UADMIN")
	t.Setenv("SLACK_API_URL", "http://localhost:4566/slack")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.SlackAPIURL != "http://localhost:4566/slack/" {
		t.Fatalf("expected trailing slash, got %q", cfg.SlackAPIURL)
	}
}
