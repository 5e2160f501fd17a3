// Package config loads relaunchd settings from YAML with sensible defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds watchdog settings.
type Config struct {
	// Target is the identity of the monitored application.
	Target string `yaml:"target"`

	// Interval between heartbeat ticks.
	Interval time.Duration `yaml:"interval"`

	// SettleDelay before relaunching after an abnormal teardown.
	SettleDelay time.Duration `yaml:"settle_delay"`

	// EntryPoint overrides entry point resolution (absolute binary path).
	EntryPoint string   `yaml:"entry_point"`
	LaunchArgs []string `yaml:"launch_args"`

	// Hook is a command run with each relaunch event as JSON on stdin.
	Hook string `yaml:"hook"`

	// MetricsAddr serves /metrics, /live and /ready. Empty disables it.
	MetricsAddr string `yaml:"metrics_addr"`

	LogFile string `yaml:"log_file"`
	DataDir string `yaml:"data_dir"`
}

// DefaultConfig returns default watchdog configuration.
func DefaultConfig() Config {
	return Config{
		Interval:    30 * time.Second,
		SettleDelay: 3 * time.Second,
	}
}

// Load reads a YAML file over the defaults. A missing file yields the defaults.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the config as YAML with 0600 permissions.
func Save(path string, cfg Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Validate rejects configs the watchdog cannot run with.
func (c Config) Validate() error {
	if c.Target == "" {
		return errors.New("target is required")
	}
	if c.Interval <= 0 {
		return fmt.Errorf("interval must be positive, got %s", c.Interval)
	}
	if c.SettleDelay <= 0 {
		return fmt.Errorf("settle_delay must be positive, got %s", c.SettleDelay)
	}
	return nil
}
