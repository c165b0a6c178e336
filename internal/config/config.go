// Package config loads the review client configuration: the JSON file under
// the data directory, then NLPANNO_* environment overrides.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the persistent application configuration
type Config struct {
	Server  ServerConfig  `json:"server"`
	Review  ReviewConfig  `json:"review"`
	Logging LoggingConfig `json:"logging"`
}

// ServerConfig holds the annotation service connection settings
type ServerConfig struct {
	URL            string   `json:"url" env:"NLPANNO_SERVER_URL"`
	RequestTimeout Duration `json:"request_timeout" env:"NLPANNO_REQUEST_TIMEOUT"`
	RatePerSecond  float64  `json:"rate_per_sec" env:"NLPANNO_RATE_PER_SEC"` // 0 = unlimited
	MaxRetries     uint64   `json:"max_retries" env:"NLPANNO_MAX_RETRIES"`   // reads only
}

// ReviewConfig holds review session settings
type ReviewConfig struct {
	TaskID       string   `json:"task_id" env:"NLPANNO_TASK_ID"` // empty = single-task server
	PollInterval Duration `json:"poll_interval" env:"NLPANNO_POLL_INTERVAL"`
}

// LoggingConfig holds log settings
type LoggingConfig struct {
	Level    string `json:"level" env:"NLPANNO_LOG_LEVEL"`
	EventLog string `json:"event_log" env:"NLPANNO_EVENT_LOG"` // JSONL event file; empty disables
}

// Duration is a time.Duration written as "1s" in JSON and env values.
type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			URL:            "http://localhost:8000",
			RequestTimeout: Duration{10 * time.Second},
			MaxRetries:     2,
		},
		Review: ReviewConfig{
			PollInterval: Duration{time.Second},
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// DataDir returns ~/.nlpanno.
func DataDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".nlpanno")
}

// ConfigPath returns the path to the config file
func ConfigPath() string {
	return filepath.Join(DataDir(), "config.json")
}

// Load reads config from ConfigPath and applies environment overrides.
func Load() (*Config, error) {
	return LoadFrom(ConfigPath())
}

// LoadFrom reads config from path, or starts from defaults when the file
// does not exist, then applies environment overrides.
func LoadFrom(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := ParseEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ParseEnv applies NLPANNO_* environment variables to target. Unset
// variables leave fields untouched.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Validate checks the values a session cannot start without.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Server.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("config: server url %q must be an http(s) URL", c.Server.URL)
	}
	if c.Server.RatePerSecond < 0 {
		return fmt.Errorf("config: rate_per_sec must not be negative")
	}
	if c.Review.PollInterval.Duration < 0 || c.Server.RequestTimeout.Duration < 0 {
		return fmt.Errorf("config: durations must not be negative")
	}
	return nil
}

// Save writes config to path, creating its directory.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}
