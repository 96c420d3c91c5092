// Package config holds the orchestrator configuration.
//
// Config is stored at /etc/bringup/config.yaml (override with the
// BRINGUP_CONFIG environment variable). A missing file yields the
// defaults, so the binary is usable before any site customization.
//
// All wait bounds are expressed as integer seconds: the waits here are
// coarse wall-clock settles on an already slow-booting database, and
// whole seconds keep operator-visible timing predictable.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const defaultPath = "/etc/bringup/config.yaml"

// Database describes the database tier: its control commands, the
// systemd unit hosting its control plane, and the wait bounds for
// bringing it online.
type Database struct {
	// StartCommand is the argv that asks the control interface to bring
	// the server online, e.g. [/opt/db/bin/dbctl, start].
	StartCommand []string `yaml:"start_command"`
	// ProbeCommand is the argv that prints the server's process list
	// report, e.g. [/opt/db/bin/dbstat, "-"].
	ProbeCommand []string `yaml:"probe_command"`
	// HealthToken is the case-sensitive substring of the probe report
	// that marks the server healthy.
	HealthToken string `yaml:"health_token"`
	// SupportUnit is the systemd unit the control interface depends on.
	// If inactive it is started, and SettleSeconds elapse before the
	// first probe — the interface takes time to become reachable after
	// its host process launches.
	SupportUnit   string `yaml:"support_unit"`
	SettleSeconds uint   `yaml:"settle_seconds"`
	// MaxRetries and RetryIntervalSeconds bound the post-start health
	// wait. Fixed interval, no backoff.
	MaxRetries           uint `yaml:"max_retries"`
	RetryIntervalSeconds uint `yaml:"retry_interval_seconds"`
}

// Watcher configures the persistent systemd registration.
type Watcher struct {
	Unit string `yaml:"unit"`
	// Mode selects what the registered unit runs: "oneshot" converges
	// once after boot, "watch" stays resident and re-inspects on a
	// schedule.
	Mode              string `yaml:"mode"`
	StartAfterInstall bool   `yaml:"start_after_install"`
	// IntervalSeconds is the re-inspection cadence in watch mode.
	IntervalSeconds uint `yaml:"interval_seconds"`
}

// ClockCheck configures the optional pre-start NTP offset warning.
// Never blocks convergence; boot networks may be down.
type ClockCheck struct {
	Enabled     bool   `yaml:"enabled"`
	Pool        string `yaml:"pool"`
	MaxOffsetMS uint   `yaml:"max_offset_ms"`
}

// Config is the full orchestrator configuration.
type Config struct {
	// LogPath is the append-only human-readable convergence trail.
	LogPath string `yaml:"log_path"`
	// Services is the ordered list of tracked units. Order matters:
	// later services may depend on earlier ones being up, and none may
	// start before the database is healthy.
	Services             []string   `yaml:"services"`
	Database             Database   `yaml:"database"`
	ServiceSettleSeconds uint       `yaml:"service_settle_seconds"`
	Watcher              Watcher    `yaml:"watcher"`
	ClockCheck           ClockCheck `yaml:"clock_check"`
}

// Default returns the stock configuration.
func Default() *Config {
	return &Config{
		LogPath:  "/var/log/bringup/convergence.log",
		Services: []string{"db-support", "app-core", "app-auth"},
		Database: Database{
			StartCommand:         []string{"/opt/db/bin/dbctl", "start"},
			ProbeCommand:         []string{"/opt/db/bin/dbstat", "-"},
			HealthToken:          "On-Line",
			SupportUnit:          "db-support",
			SettleSeconds:        10,
			MaxRetries:           12,
			RetryIntervalSeconds: 10,
		},
		ServiceSettleSeconds: 3,
		Watcher: Watcher{
			Unit:            "bringup.service",
			Mode:            "oneshot",
			IntervalSeconds: 300,
		},
		ClockCheck: ClockCheck{
			Pool:        "pool.ntp.org",
			MaxOffsetMS: 500,
		},
	}
}

// Path returns the config file location, honoring BRINGUP_CONFIG.
func Path() string {
	if p := os.Getenv("BRINGUP_CONFIG"); p != "" {
		return p
	}
	return defaultPath
}

// Load reads the config at path, or Path() when path is empty. A missing
// file returns the defaults (not an error); a present file is parsed
// over the defaults so partial configs stay valid.
func Load(path string) (*Config, error) {
	if path == "" {
		path = Path()
	}

	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the config to path, creating directories as needed.
func (c *Config) Save(path string) error {
	if path == "" {
		path = Path()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Validate rejects configurations the orchestrator cannot safely run with.
func (c *Config) Validate() error {
	if len(c.Services) == 0 {
		return fmt.Errorf("no tracked services configured")
	}
	seen := make(map[string]struct{}, len(c.Services))
	for _, name := range c.Services {
		if name == "" {
			return fmt.Errorf("empty service name in tracked list")
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("service %q listed twice", name)
		}
		seen[name] = struct{}{}
	}
	if len(c.Database.StartCommand) == 0 {
		return fmt.Errorf("database start_command is required")
	}
	if len(c.Database.ProbeCommand) == 0 {
		return fmt.Errorf("database probe_command is required")
	}
	if c.Database.HealthToken == "" {
		return fmt.Errorf("database health_token is required")
	}
	if c.Database.MaxRetries == 0 {
		return fmt.Errorf("database max_retries must be at least 1")
	}
	if c.Database.RetryIntervalSeconds == 0 {
		return fmt.Errorf("database retry_interval_seconds must be at least 1")
	}
	if c.Watcher.Unit == "" {
		return fmt.Errorf("watcher unit name is required")
	}
	switch c.Watcher.Mode {
	case "", "oneshot", "watch":
	default:
		return fmt.Errorf("watcher mode %q is not oneshot or watch", c.Watcher.Mode)
	}
	if c.Watcher.Mode == "watch" && c.Watcher.IntervalSeconds == 0 {
		return fmt.Errorf("watcher interval_seconds must be at least 1 in watch mode")
	}
	return nil
}
