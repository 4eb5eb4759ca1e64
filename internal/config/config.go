// Package config handles TOML and YAML configuration for birthmark.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	_ "time/tzdata" // display timezones must resolve on hosts without zoneinfo

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

const (
	DefaultRegion     = "ap-northeast-2"
	DefaultTimezone   = "Asia/Seoul"
	DefaultTimeFormat = "2006-01-02 15:04:05"

	// MaxRetryJitter bounds retry.max_jitter; a backoff delay never exceeds base*2^n + 1s.
	MaxRetryJitter = time.Second
)

// Config is the root configuration structure.
type Config struct {
	AWS     AWSConfig     `toml:"aws" yaml:"aws"`
	Display DisplayConfig `toml:"display" yaml:"display"`
	Retry   RetryConfig   `toml:"retry" yaml:"retry"`
	Fanout  FanoutConfig  `toml:"fanout" yaml:"fanout"`
	Query   QueryConfig   `toml:"query" yaml:"query"`
	Server  ServerConfig  `toml:"server" yaml:"server"`
	Delete  DeleteConfig  `toml:"delete" yaml:"delete"`
	OTEL    OTELConfig    `toml:"otel" yaml:"otel"`
	Log     LogConfig     `toml:"log" yaml:"log"`
}

// AWSConfig holds AWS provider settings.
type AWSConfig struct {
	Region  string `toml:"region" yaml:"region"`
	Profile string `toml:"profile" yaml:"profile"`
}

// DisplayConfig controls how descriptors and creator groups are rendered.
type DisplayConfig struct {
	Timezone   string `toml:"timezone" yaml:"timezone"`
	TimeFormat string `toml:"time_format" yaml:"time_format"`
	NameWidth  int    `toml:"name_width" yaml:"name_width"`
	IDWidth    int    `toml:"id_width" yaml:"id_width"`
}

// RetryConfig holds Backoff Controller settings.
type RetryConfig struct {
	MaxAttempts  int    `toml:"max_attempts" yaml:"max_attempts"`
	BaseDelayStr string `toml:"base_delay" yaml:"base_delay"`
	MaxDelayStr  string `toml:"max_delay" yaml:"max_delay"`
	MaxJitterStr string `toml:"max_jitter" yaml:"max_jitter"`

	BaseDelay time.Duration `toml:"-" yaml:"-"`
	MaxDelay  time.Duration `toml:"-" yaml:"-"`
	MaxJitter time.Duration `toml:"-" yaml:"-"`
}

// FanoutConfig bounds per-kind describe concurrency.
type FanoutConfig struct {
	Workers       int     `toml:"workers" yaml:"workers"`
	RatePerSecond float64 `toml:"rate_per_second" yaml:"rate_per_second"`
}

// QueryConfig holds request-level settings.
type QueryConfig struct {
	TimeoutStr      string   `toml:"timeout" yaml:"timeout"`
	Kinds           []string `toml:"kinds" yaml:"kinds"`
	ExcludeKinds    []string `toml:"exclude_kinds" yaml:"exclude_kinds"`
	ExcludeCreators []string `toml:"exclude_creators" yaml:"exclude_creators"`

	Timeout time.Duration `toml:"-" yaml:"-"`
}

// ServerConfig holds HTTP boundary settings.
type ServerConfig struct {
	Addr string `toml:"addr" yaml:"addr"`
}

// DeleteConfig gates the deletion interface.
type DeleteConfig struct {
	Enabled    bool   `toml:"enabled" yaml:"enabled"`
	PolicyFile string `toml:"policy_file" yaml:"policy_file"`
}

// OTELConfig holds OpenTelemetry settings.
type OTELConfig struct {
	Endpoint    string        `toml:"endpoint" yaml:"endpoint"`
	Insecure    bool          `toml:"insecure" yaml:"insecure"`
	ServiceName string        `toml:"service_name" yaml:"service_name"`
	Traces      TracesConfig  `toml:"traces" yaml:"traces"`
	Metrics     MetricsConfig `toml:"metrics" yaml:"metrics"`
}

// TracesConfig holds tracing settings.
type TracesConfig struct {
	Enabled    bool    `toml:"enabled" yaml:"enabled"`
	SampleRate float64 `toml:"sample_rate" yaml:"sample_rate"`
}

// MetricsConfig holds metrics settings.
type MetricsConfig struct {
	Enabled bool `toml:"enabled" yaml:"enabled"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `toml:"level" yaml:"level"`
	Format string `toml:"format" yaml:"format"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	applyEnv(cfg)
	// Default durations always parse.
	_ = parseDurations(cfg)
	return cfg
}

// Load reads a config file. The decoder is chosen by extension:
// .yaml/.yml use YAML, anything else TOML.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	default:
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyDefaults(cfg)
	applyEnv(cfg)

	if err := parseDurations(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.AWS.Region == "" {
		cfg.AWS.Region = DefaultRegion
	}
	if cfg.Display.Timezone == "" {
		cfg.Display.Timezone = DefaultTimezone
	}
	if cfg.Display.TimeFormat == "" {
		cfg.Display.TimeFormat = DefaultTimeFormat
	}
	if cfg.Display.NameWidth == 0 {
		cfg.Display.NameWidth = 30
	}
	if cfg.Display.IDWidth == 0 {
		cfg.Display.IDWidth = 30
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry.MaxAttempts = 10
	}
	if cfg.Retry.BaseDelayStr == "" {
		cfg.Retry.BaseDelayStr = "1s"
	}
	if cfg.Retry.MaxDelayStr == "" {
		cfg.Retry.MaxDelayStr = "30s"
	}
	if cfg.Retry.MaxJitterStr == "" {
		cfg.Retry.MaxJitterStr = "1s"
	}
	if cfg.Fanout.Workers == 0 {
		cfg.Fanout.Workers = 8
	}
	if cfg.Query.TimeoutStr == "" {
		cfg.Query.TimeoutStr = "5m"
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.OTEL.ServiceName == "" {
		cfg.OTEL.ServiceName = "birthmark"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
}

func applyEnv(cfg *Config) {
	if region := os.Getenv("AWS_REGION"); region != "" {
		cfg.AWS.Region = region
	}
}

func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"retry.base_delay", cfg.Retry.BaseDelayStr, &cfg.Retry.BaseDelay},
		{"retry.max_delay", cfg.Retry.MaxDelayStr, &cfg.Retry.MaxDelay},
		{"retry.max_jitter", cfg.Retry.MaxJitterStr, &cfg.Retry.MaxJitter},
		{"query.timeout", cfg.Query.TimeoutStr, &cfg.Query.Timeout},
	}
	for _, f := range fields {
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parse %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}
	return nil
}

// Location resolves the display timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Display.Timezone)
	if err != nil {
		return nil, fmt.Errorf("display: unknown timezone %q: %w", c.Display.Timezone, err)
	}
	return loc, nil
}

// Validate checks the configuration is valid.
func (c *Config) Validate() error {
	if c.AWS.Region == "" {
		return fmt.Errorf("aws: region required")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.Display.NameWidth < 4 || c.Display.IDWidth < 4 {
		return fmt.Errorf("display: name_width and id_width must be at least 4")
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry: max_attempts must be at least 1 (got %d)", c.Retry.MaxAttempts)
	}
	if c.Retry.BaseDelay <= 0 || c.Retry.MaxDelay <= 0 {
		return fmt.Errorf("retry: base_delay and max_delay must be positive")
	}
	if c.Retry.MaxJitter < 0 || c.Retry.MaxJitter > MaxRetryJitter {
		return fmt.Errorf("retry: max_jitter must be between 0 and %s (got %s)", MaxRetryJitter, c.Retry.MaxJitter)
	}
	if c.Fanout.Workers < 1 {
		return fmt.Errorf("fanout: workers must be at least 1 (got %d)", c.Fanout.Workers)
	}
	if c.Fanout.RatePerSecond < 0 {
		return fmt.Errorf("fanout: rate_per_second must not be negative")
	}
	if c.Query.Timeout <= 0 {
		return fmt.Errorf("query: timeout must be positive")
	}
	if c.OTEL.Traces.SampleRate < 0.0 || c.OTEL.Traces.SampleRate > 1.0 {
		return fmt.Errorf("otel: traces.sample_rate must be between 0.0 and 1.0 (got %v)", c.OTEL.Traces.SampleRate)
	}
	return nil
}
