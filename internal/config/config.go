// Package config defines service configuration and how it is loaded.
package config

import (
	"fmt"
	"runtime"
	"slices"
	"time"
)

// Store drivers understood by the repository layer.
var storeDrivers = []string{"memory", "postgres", "mongo"}

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the log handler: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":3000".
	Addr string `koanf:"addr"`

	// EventQueueSize bounds the in-memory ingest queue.
	EventQueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of recorder workers.
	WorkerCount int `koanf:"worker_count"`

	// DedupeSize sets the size of the deduplication cache.
	DedupeSize int `koanf:"dedupe_size"`

	StoreDriver   string `koanf:"store_driver"`
	PostgresDSN   string `koanf:"postgres_dsn"`
	MongoURI      string `koanf:"mongo_uri"`
	MongoDatabase string `koanf:"mongo_database"`

	// DefaultRangeDays is the look-back used when a query omits "from".
	DefaultRangeDays int `koanf:"default_range_days"`

	// MaxRecentSignupsLimit caps GET .../recent-signups?limit.
	MaxRecentSignupsLimit int `koanf:"max_recent_signups_limit"`

	// MaxBodyBytes bounds request bodies.
	MaxBodyBytes int64 `koanf:"max_body_bytes"`

	// CORSAllowedOrigins lists origins allowed by the CORS middleware. "*" allows any.
	CORSAllowedOrigins []string `koanf:"cors_allowed_origins"`

	// MetricsNamespace and MetricsSubsystem prefix every exported metric name.
	MetricsNamespace string `koanf:"metrics_namespace"`
	MetricsSubsystem string `koanf:"metrics_subsystem"`
	// MetricsLatencyBucketsMS overrides the request latency histogram buckets.
	// Empty keeps the built-in buckets.
	MetricsLatencyBucketsMS []float64 `koanf:"metrics_latency_buckets_ms"`
	// MetricsConstLabels are attached to every metric, e.g. region or instance.
	MetricsConstLabels map[string]string `koanf:"metrics_const_labels"`

	ReadTimeoutMS       int `koanf:"read_timeout_ms"`
	ReadHeaderTimeoutMS int `koanf:"read_header_timeout_ms"`
	WriteTimeoutMS      int `koanf:"write_timeout_ms"`
	IdleTimeoutMS       int `koanf:"idle_timeout_ms"`
	ShutdownTimeoutMS   int `koanf:"shutdown_timeout_ms"`
}

// New returns a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:              "info",
		LogFormat:             "text",
		Addr:                  ":3000",
		EventQueueSize:        10_000,
		WorkerCount:           runtime.NumCPU() * 2,
		DedupeSize:            100_000,
		StoreDriver:           "memory",
		MongoDatabase:         "dashboard",
		DefaultRangeDays:      30,
		MaxRecentSignupsLimit: 100,
		MaxBodyBytes:          1 << 20,
		CORSAllowedOrigins:    []string{"*"},
		MetricsNamespace:      "dashboard",
		MetricsSubsystem:      "api",
		ReadTimeoutMS:         10_000,
		ReadHeaderTimeoutMS:   5_000,
		WriteTimeoutMS:        15_000,
		IdleTimeoutMS:         60_000,
		ShutdownTimeoutMS:     10_000,
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case !slices.Contains(storeDrivers, c.StoreDriver):
		return fmt.Errorf("%w: unknown store_driver %q", ErrInvalidConfig, c.StoreDriver)
	case c.StoreDriver == "postgres" && c.PostgresDSN == "":
		return fmt.Errorf("%w: postgres_dsn is required for the postgres driver", ErrInvalidConfig)
	case c.StoreDriver == "mongo" && c.MongoURI == "":
		return fmt.Errorf("%w: mongo_uri is required for the mongo driver", ErrInvalidConfig)
	case c.EventQueueSize <= 0:
		return fmt.Errorf("%w: queue_size must be positive", ErrInvalidConfig)
	case c.DefaultRangeDays <= 0:
		return fmt.Errorf("%w: default_range_days must be positive", ErrInvalidConfig)
	case c.MaxRecentSignupsLimit <= 0:
		return fmt.Errorf("%w: max_recent_signups_limit must be positive", ErrInvalidConfig)
	case c.MaxBodyBytes <= 0:
		return fmt.Errorf("%w: max_body_bytes must be positive", ErrInvalidConfig)
	case c.MetricsNamespace == "":
		return fmt.Errorf("%w: metrics_namespace must not be empty", ErrInvalidConfig)
	}
	for i, b := range c.MetricsLatencyBucketsMS {
		if b <= 0 || (i > 0 && b <= c.MetricsLatencyBucketsMS[i-1]) {
			return fmt.Errorf("%w: metrics_latency_buckets_ms must be positive and increasing", ErrInvalidConfig)
		}
	}
	return nil
}

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }

// ReadTimeout returns ReadTimeoutMS as a duration.
func (c *Config) ReadTimeout() time.Duration { return ms(c.ReadTimeoutMS) }

// ReadHeaderTimeout returns ReadHeaderTimeoutMS as a duration.
func (c *Config) ReadHeaderTimeout() time.Duration { return ms(c.ReadHeaderTimeoutMS) }

// WriteTimeout returns WriteTimeoutMS as a duration.
func (c *Config) WriteTimeout() time.Duration { return ms(c.WriteTimeoutMS) }

// IdleTimeout returns IdleTimeoutMS as a duration.
func (c *Config) IdleTimeout() time.Duration { return ms(c.IdleTimeoutMS) }

// ShutdownTimeout returns ShutdownTimeoutMS as a duration.
func (c *Config) ShutdownTimeout() time.Duration { return ms(c.ShutdownTimeoutMS) }
