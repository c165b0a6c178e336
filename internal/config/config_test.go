package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadFromMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "none.json"))
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if cfg.Server.URL != "http://localhost:8000" {
		t.Errorf("URL = %q", cfg.Server.URL)
	}
	if cfg.Review.PollInterval.Duration != time.Second {
		t.Errorf("PollInterval = %v", cfg.Review.PollInterval)
	}
}

func TestSaveThenLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.json")
	cfg := DefaultConfig()
	cfg.Server.URL = "https://annotate.example.com"
	cfg.Review.TaskID = "intents"
	cfg.Review.PollInterval = Duration{2500 * time.Millisecond}

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), `"poll_interval": "2.5s"`) {
		t.Errorf("durations should be written as text: %s", data)
	}

	got, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if got.Server.URL != cfg.Server.URL || got.Review.TaskID != "intents" || got.Review.PollInterval != cfg.Review.PollInterval {
		t.Errorf("round trip = %+v", got)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"server": {"url": "http://file:1"}, "review": {"task_id": "a"}}`), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("NLPANNO_SERVER_URL", "http://env:2")
	t.Setenv("NLPANNO_POLL_INTERVAL", "250ms")
	t.Setenv("NLPANNO_MAX_RETRIES", "5")

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if cfg.Server.URL != "http://env:2" {
		t.Errorf("URL = %q, want env value", cfg.Server.URL)
	}
	if cfg.Review.TaskID != "a" {
		t.Errorf("TaskID = %q, unset env must keep file value", cfg.Review.TaskID)
	}
	if cfg.Review.PollInterval.Duration != 250*time.Millisecond || cfg.Server.MaxRetries != 5 {
		t.Errorf("env overrides not applied: %+v", cfg)
	}
}

func TestParseEnvError(t *testing.T) {
	t.Setenv("NLPANNO_MAX_RETRIES", "lots")

	_, err := LoadFrom(filepath.Join(t.TempDir(), "none.json"))
	if err == nil || !strings.Contains(err.Error(), "parse env:") {
		t.Fatalf("err = %v, want parse env error", err)
	}
}

func TestLoadFromRejectsBadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"server":`), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFrom(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"defaults", func(*Config) {}, true},
		{"no scheme", func(c *Config) { c.Server.URL = "localhost:8000" }, false},
		{"negative rate", func(c *Config) { c.Server.RatePerSecond = -1 }, false},
		{"negative poll", func(c *Config) { c.Review.PollInterval = Duration{-time.Second} }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); (err == nil) != tt.ok {
				t.Errorf("Validate() error = %v, want ok=%v", err, tt.ok)
			}
		})
	}
}
