// Package config handles the service's YAML configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
	Plugins    PluginsConfig    `yaml:"plugins"`
	Taxonomy   TaxonomyConfig   `yaml:"taxonomy"`
	Collection CollectionConfig `yaml:"collection"`
	Log        LogConfig        `yaml:"log"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// StorageConfig holds catalog storage settings.
type StorageConfig struct {
	Dir        string `yaml:"dir"`
	JournalDir string `yaml:"journal_dir"`
}

// PluginsConfig holds external plugin discovery settings.
type PluginsConfig struct {
	Dir string `yaml:"dir"`
}

// TaxonomyConfig points at an optional taxonomy extension file merged
// over the built-in classification.
type TaxonomyConfig struct {
	File string `yaml:"file"`
}

// CollectionConfig holds run scheduling settings.
type CollectionConfig struct {
	RunTimeoutStr string        `yaml:"run_timeout"`
	RunTimeout    time.Duration `yaml:"-"`

	// IntervalStr schedules periodic full collections of every enabled
	// provider. Empty or "0" disables the scheduler.
	IntervalStr string        `yaml:"interval"`
	Interval    time.Duration `yaml:"-"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `yaml:"level"`
}

// TelemetryConfig holds telemetry settings.
type TelemetryConfig struct {
	ServiceName string `yaml:"service_name"`
	Environment string `yaml:"environment"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	if err := parseDurations(cfg); err != nil {
		panic(err) // defaults are constants
	}
	return cfg
}

// Load reads and parses a YAML config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- operator-supplied path
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyDefaults(cfg)
	if err := parseDurations(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Storage.Dir == "" {
		cfg.Storage.Dir = "./data"
	}
	if cfg.Storage.JournalDir == "" {
		cfg.Storage.JournalDir = cfg.Storage.Dir + "/journal"
	}
	if cfg.Collection.RunTimeoutStr == "" {
		cfg.Collection.RunTimeoutStr = "30m"
	}
	if cfg.Collection.IntervalStr == "" {
		cfg.Collection.IntervalStr = "0"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "varasto"
	}
}

func parseDurations(cfg *Config) error {
	timeout, err := time.ParseDuration(cfg.Collection.RunTimeoutStr)
	if err != nil {
		return fmt.Errorf("parse collection.run_timeout %q: %w", cfg.Collection.RunTimeoutStr, err)
	}
	cfg.Collection.RunTimeout = timeout

	if cfg.Collection.IntervalStr == "0" {
		cfg.Collection.Interval = 0
		return nil
	}
	interval, err := time.ParseDuration(cfg.Collection.IntervalStr)
	if err != nil {
		return fmt.Errorf("parse collection.interval %q: %w", cfg.Collection.IntervalStr, err)
	}
	cfg.Collection.Interval = interval
	return nil
}

// Validate checks the configuration is usable.
func (c *Config) Validate() error {
	if c.Collection.RunTimeout <= 0 {
		return fmt.Errorf("collection.run_timeout must be positive")
	}
	if c.Collection.Interval < 0 {
		return fmt.Errorf("collection.interval must not be negative")
	}
	if c.Taxonomy.File != "" {
		if _, err := os.Stat(c.Taxonomy.File); err != nil {
			return fmt.Errorf("taxonomy.file: %w", err)
		}
	}
	return nil
}
