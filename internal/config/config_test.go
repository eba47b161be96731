package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("TOKEN", "123:abc")
	t.Setenv("CHAT_ID", "-100200300")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Token != "123:abc" || cfg.ChatID != -100200300 {
		t.Fatalf("required fields mismatch: %+v", cfg)
	}
	if cfg.Local {
		t.Error("Local should default to false")
	}
	if cfg.MaxRunTime != 5*time.Minute {
		t.Errorf("MaxRunTime default = %v", cfg.MaxRunTime)
	}
	if cfg.StorePath != "./quakebot.db" || cfg.MapDir != "./map" {
		t.Errorf("path defaults mismatch: %+v", cfg)
	}
}

func TestLoadMissingRequired(t *testing.T) {
	t.Setenv("TOKEN", "")
	os.Unsetenv("TOKEN")
	os.Unsetenv("CHAT_ID")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for missing TOKEN/CHAT_ID")
	}
}

func TestLoadOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quakebot.yaml")
	data := `
logging:
  level: debug
  telegram:
    enabled: true
    min_level: error
    rate_per_sec: 2
prune:
  schedule: "0 4 * * *"
  retention: "168h"
send_rate_per_sec: 1
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	o, err := LoadOverrides(path)
	if err != nil {
		t.Fatalf("LoadOverrides: %v", err)
	}
	if o.Logging.Level != "debug" || !o.Logging.Telegram.Enabled || o.SendRatePerSec != 1 {
		t.Fatalf("overrides mismatch: %+v", o)
	}

	ret, err := o.Prune.RetentionDuration()
	if err != nil || ret != 168*time.Hour {
		t.Fatalf("RetentionDuration = (%v, %v)", ret, err)
	}

	lc := o.LogConfig("info")
	if lc.Level != "debug" || !lc.Console {
		t.Fatalf("LogConfig mismatch: %+v", lc)
	}
}

func TestLoadOverridesEmptyPath(t *testing.T) {
	o, err := LoadOverrides("")
	if err != nil {
		t.Fatalf("LoadOverrides: %v", err)
	}
	if ret, err := o.Prune.RetentionDuration(); err != nil || ret != 720*time.Hour {
		t.Fatalf("default retention = (%v, %v)", ret, err)
	}
	if lc := o.LogConfig("warn"); lc.Level != "warn" || !lc.Console {
		t.Fatalf("default LogConfig mismatch: %+v", lc)
	}
}

func TestLoadOverridesRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("loging:\n  level: debug\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadOverrides(path); err == nil {
		t.Fatal("expected unknown-key error")
	}
}
