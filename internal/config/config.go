// Package config provides configuration loading and validation for the GC
// daemon. Supports YAML files with environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the GC daemon.
type Config struct {
	GC            GCConfig            `yaml:"gc"`
	Storage       StorageConfig       `yaml:"storage"`
	Events        EventsConfig        `yaml:"events"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// GCConfig tunes the collection cycle.
type GCConfig struct {
	// MaxVersions caps stored roots and per-app / per-pod histories.
	MaxVersions int `yaml:"maxVersions" env:"MARATHON_GC_MAX_VERSIONS"`

	// ScanBatchSize is the pinning-root hydration batch size.
	ScanBatchSize int `yaml:"scanBatchSize" env:"MARATHON_GC_SCAN_BATCH_SIZE"`

	// CleaningIntervalMs is the resting delay between cycles in
	// milliseconds. Zero disables resting.
	CleaningIntervalMs int64 `yaml:"cleaningIntervalMs" env:"MARATHON_GC_CLEANING_INTERVAL_MS"`
}

// StorageConfig selects and configures the repository backend.
type StorageConfig struct {
	// Backend is "memory" or "oxia".
	Backend string `yaml:"backend" env:"MARATHON_STORAGE_BACKEND"`

	Oxia OxiaConfig `yaml:"oxia"`
}

// OxiaConfig configures the Oxia backend.
type OxiaConfig struct {
	ServiceAddress   string `yaml:"serviceAddress" env:"MARATHON_OXIA_SERVICE_ADDRESS"`
	Namespace        string `yaml:"namespace" env:"MARATHON_OXIA_NAMESPACE"`
	RequestTimeoutMs int64  `yaml:"requestTimeoutMs" env:"MARATHON_OXIA_REQUEST_TIMEOUT_MS"`
}

// EventsConfig configures cycle event publishing.
type EventsConfig struct {
	Enabled bool     `yaml:"enabled" env:"MARATHON_EVENTS_ENABLED"`
	Brokers []string `yaml:"brokers" env:"MARATHON_EVENTS_BROKERS"`
	Topic   string   `yaml:"topic" env:"MARATHON_EVENTS_TOPIC"`
}

// ObservabilityConfig configures metrics and logging.
type ObservabilityConfig struct {
	MetricsAddr string `yaml:"metricsAddr" env:"MARATHON_METRICS_ADDR"`
	LogLevel    string `yaml:"logLevel" env:"MARATHON_LOG_LEVEL"`
	LogFormat   string `yaml:"logFormat" env:"MARATHON_LOG_FORMAT"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		GC: GCConfig{
			MaxVersions:        25,
			ScanBatchSize:      32,
			CleaningIntervalMs: 30000,
		},
		Storage: StorageConfig{
			Backend: "memory",
			Oxia: OxiaConfig{
				ServiceAddress:   "localhost:6648",
				Namespace:        "marathon",
				RequestTimeoutMs: 30000,
			},
		},
		Events: EventsConfig{
			Topic: "marathon.persistence.gc",
		},
		Observability: ObservabilityConfig{
			MetricsAddr: ":9090",
			LogLevel:    "info",
			LogFormat:   "json",
		},
	}
}

// Load returns the defaults with environment overrides applied.
func Load() (*Config, error) {
	cfg := Default()
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromPath reads a YAML file over the defaults, then applies
// environment overrides.
func LoadFromPath(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	setInt(&c.GC.MaxVersions, "MARATHON_GC_MAX_VERSIONS")
	setInt(&c.GC.ScanBatchSize, "MARATHON_GC_SCAN_BATCH_SIZE")
	setInt64(&c.GC.CleaningIntervalMs, "MARATHON_GC_CLEANING_INTERVAL_MS")

	setString(&c.Storage.Backend, "MARATHON_STORAGE_BACKEND")
	setString(&c.Storage.Oxia.ServiceAddress, "MARATHON_OXIA_SERVICE_ADDRESS")
	setString(&c.Storage.Oxia.Namespace, "MARATHON_OXIA_NAMESPACE")
	setInt64(&c.Storage.Oxia.RequestTimeoutMs, "MARATHON_OXIA_REQUEST_TIMEOUT_MS")

	setBool(&c.Events.Enabled, "MARATHON_EVENTS_ENABLED")
	setStrings(&c.Events.Brokers, "MARATHON_EVENTS_BROKERS")
	setString(&c.Events.Topic, "MARATHON_EVENTS_TOPIC")

	setString(&c.Observability.MetricsAddr, "MARATHON_METRICS_ADDR")
	setString(&c.Observability.LogLevel, "MARATHON_LOG_LEVEL")
	setString(&c.Observability.LogFormat, "MARATHON_LOG_FORMAT")
}

// Validate checks the configuration for contradictions.
func (c *Config) Validate() error {
	if c.GC.MaxVersions <= 0 {
		return fmt.Errorf("config: gc.maxVersions must be positive, got %d", c.GC.MaxVersions)
	}
	if c.GC.ScanBatchSize <= 0 {
		return fmt.Errorf("config: gc.scanBatchSize must be positive, got %d", c.GC.ScanBatchSize)
	}
	if c.GC.CleaningIntervalMs < 0 {
		return fmt.Errorf("config: gc.cleaningIntervalMs must be non-negative, got %d", c.GC.CleaningIntervalMs)
	}
	switch c.Storage.Backend {
	case "memory":
	case "oxia":
		if c.Storage.Oxia.ServiceAddress == "" {
			return fmt.Errorf("config: storage.oxia.serviceAddress is required for the oxia backend")
		}
		if c.Storage.Oxia.Namespace == "" {
			return fmt.Errorf("config: storage.oxia.namespace is required for the oxia backend")
		}
	default:
		return fmt.Errorf("config: unknown storage backend %q", c.Storage.Backend)
	}
	if c.Events.Enabled && len(c.Events.Brokers) == 0 {
		return fmt.Errorf("config: events.brokers is required when events are enabled")
	}
	return nil
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func setStrings(dst *[]string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		parts := strings.Split(v, ",")
		out := parts[:0]
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		*dst = out
	}
}

func setInt(dst *int, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
