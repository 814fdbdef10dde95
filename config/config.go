package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Fieldtrack FieldtrackConfig `yaml:"fieldtrack"`
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Ingest     IngestConfig     `yaml:"ingest"`
	Analytics  AnalyticsConfig  `yaml:"analytics"`
	Live       LiveConfig       `yaml:"live"`
	Archive    ArchiveConfig    `yaml:"archive"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Logging    LoggingConfig    `yaml:"logging"`
}

type FieldtrackConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type ServerConfig struct {
	Address         string        `yaml:"address"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	SRID     int    `yaml:"srid"`
	MaxConns int    `yaml:"max_conns"`
}

type IngestConfig struct {
	MinSatellites int     `yaml:"min_satellites"`
	CenturyBase   int     `yaml:"century_base"`
	UTCOffset     string  `yaml:"utc_offset"`
	MaxBatchLines int     `yaml:"max_batch_lines"`
	RatePerDevice float64 `yaml:"rate_per_device"`
	RateBurst     int     `yaml:"rate_burst"`
}

type AnalyticsConfig struct {
	HoldThresholdKmh float64 `yaml:"hold_threshold_kmh"`
	SmoothingWindow  int     `yaml:"smoothing_window"`
	BaseStrategy     string  `yaml:"base_strategy"`
	MaxSpeedKmh      float64 `yaml:"max_speed_kmh"`
	DefaultHours     int     `yaml:"default_hours"`
}

type LiveConfig struct {
	Enabled    bool `yaml:"enabled"`
	SendBuffer int  `yaml:"send_buffer"`
}

type ArchiveConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Bucket          string        `yaml:"bucket"`
	Region          string        `yaml:"region"`
	Endpoint        string        `yaml:"endpoint"`
	PathStyle       bool          `yaml:"path_style"`
	AccessKeyID     string        `yaml:"access_key_id"`
	SecretAccessKey string        `yaml:"secret_access_key"`
	Prefix          string        `yaml:"prefix"`
	FlushInterval   time.Duration `yaml:"flush_interval"`
	Compression     string        `yaml:"compression"`
}

type MetricsConfig struct {
	Enabled    bool          `yaml:"enabled"`
	Namespace  string        `yaml:"namespace"`
	Region     string        `yaml:"region"`
	Interval   time.Duration `yaml:"interval"`
	Cloudwatch bool          `yaml:"cloudwatch"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	MaxAge int    `yaml:"max_age"`
}

// LoadConfig reads the YAML configuration file, applies defaults and
// environment overrides, and validates the result.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := defaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyEnvOverrides(config)

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Address:         ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			SRID:     2180,
			MaxConns: 8,
		},
		Ingest: IngestConfig{
			MinSatellites: 6,
			CenturyBase:   2000,
			UTCOffset:     "+00:00",
			MaxBatchLines: 2048,
			RatePerDevice: 20,
			RateBurst:     200,
		},
		Analytics: AnalyticsConfig{
			HoldThresholdKmh: 0.8,
			SmoothingWindow:  5,
			BaseStrategy:     "off",
			MaxSpeedKmh:      40,
			DefaultHours:     24,
		},
		Live: LiveConfig{
			SendBuffer: 64,
		},
		Archive: ArchiveConfig{
			FlushInterval: time.Minute,
			Compression:   "snappy",
			Prefix:        "fixes",
		},
		Metrics: MetricsConfig{
			Namespace: "Fieldtrack",
			Interval:  30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

func applyEnvOverrides(config *Config) {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		config.Database.URL = strings.TrimSpace(v)
	}
	if config.Archive.Enabled {
		if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
			config.Archive.AccessKeyID = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
			config.Archive.SecretAccessKey = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_REGION"); v != "" {
			config.Archive.Region = strings.TrimSpace(v)
		}
		if v := os.Getenv("S3_BUCKET"); v != "" {
			config.Archive.Bucket = strings.TrimSpace(v)
		}
	}
}

func validateConfig(cfg *Config) error {
	if cfg.Fieldtrack.Name == "" {
		return fmt.Errorf("fieldtrack.name is required")
	}

	if cfg.Fieldtrack.Version == "" {
		return fmt.Errorf("fieldtrack.version is required")
	}

	if cfg.Database.URL == "" {
		return fmt.Errorf("database.url is required (or DATABASE_URL)")
	}

	if cfg.Database.SRID <= 0 {
		return fmt.Errorf("database.srid must be a positive EPSG code")
	}

	if cfg.Ingest.MinSatellites < 0 {
		return fmt.Errorf("ingest.min_satellites must not be negative")
	}

	if _, err := ParseUTCOffset(cfg.Ingest.UTCOffset); err != nil {
		return fmt.Errorf("ingest.utc_offset: %w", err)
	}

	if cfg.Analytics.SmoothingWindow%2 == 0 {
		return fmt.Errorf("analytics.smoothing_window must be odd, got %d", cfg.Analytics.SmoothingWindow)
	}

	switch cfg.Analytics.BaseStrategy {
	case "off", "exact", "nearest":
	default:
		return fmt.Errorf("analytics.base_strategy must be off, exact or nearest, got %q", cfg.Analytics.BaseStrategy)
	}

	if cfg.Archive.Enabled && cfg.Archive.Bucket == "" {
		return fmt.Errorf("archive.bucket is required when archive.enabled")
	}

	return nil
}

// ParseUTCOffset parses a fixed offset of the form "+02:00" or "-05:30" into a
// time.Location. Device timestamps carry no zone, so the deployment chooses one.
func ParseUTCOffset(offset string) (*time.Location, error) {
	offset = strings.TrimSpace(offset)
	if offset == "" || offset == "+00:00" || offset == "Z" {
		return time.UTC, nil
	}
	if len(offset) != 6 || (offset[0] != '+' && offset[0] != '-') || offset[3] != ':' {
		return nil, fmt.Errorf("invalid offset %q, want e.g. +02:00", offset)
	}
	var hours, minutes int
	if _, err := fmt.Sscanf(offset[1:], "%02d:%02d", &hours, &minutes); err != nil {
		return nil, fmt.Errorf("invalid offset %q: %w", offset, err)
	}
	seconds := hours*3600 + minutes*60
	if offset[0] == '-' {
		seconds = -seconds
	}
	return time.FixedZone("UTC"+offset, seconds), nil
}
