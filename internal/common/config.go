package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string            `toml:"environment"` // "development" or "production"
	Server      ServerConfig      `toml:"server"`
	Queue       QueueConfig       `toml:"queue"`
	Breaker     BreakerConfig     `toml:"breaker"`
	Backends    BackendsConfig    `toml:"backends"`
	Storage     StorageConfig     `toml:"storage"`
	Logging     LoggingConfig     `toml:"logging"`
	Admission   AdmissionConfig   `toml:"admission"`
	Maintenance MaintenanceConfig `toml:"maintenance"`
	WebSocket   WebSocketConfig   `toml:"websocket"`
}

type ServerConfig struct {
	Port int    `toml:"port" validate:"gt=0,lte=65535"`
	Host string `toml:"host" validate:"required"`
}

type QueueConfig struct {
	MaxSize      int    `toml:"max_size" validate:"gt=0"`          // Bounded admission capacity
	PollInterval string `toml:"poll_interval" validate:"required"` // e.g. "1s" - scheduler dequeue wait
}

// BreakerConfig configures the per-backend circuit breakers.
type BreakerConfig struct {
	FailureThreshold int    `toml:"failure_threshold" validate:"gt=0"` // Consecutive failures before Open
	SuccessThreshold int    `toml:"success_threshold" validate:"gt=0"` // Half-Open successes before Closed
	OpenTimeout      string `toml:"open_timeout" validate:"required"`  // e.g. "30s" - Open -> Half-Open delay
}

// BackendsConfig maps backend keys (the segment before the first "." in
// a work item category) to their processing endpoint.
type BackendsConfig struct {
	Entries map[string]BackendEntry `toml:"entries"`
}

// BackendEntry describes one processing backend.
type BackendEntry struct {
	Type    string `toml:"type" validate:"oneof=http echo"` // "http" or "echo"
	BaseURL string `toml:"base_url"`                        // Required for type="http"
	Timeout string `toml:"timeout"`                         // Per-request timeout, e.g. "30s"
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path" validate:"required"` // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"`         // Delete database on startup for clean test runs
}

type LoggingConfig struct {
	Level  string   `toml:"level"`  // "debug", "info", "warn", "error"
	Output []string `toml:"output"` // "stdout", "file"
}

// AdmissionConfig throttles work submission per backend key.
// A rate of 0 disables throttling for that key.
type AdmissionConfig struct {
	Rates map[string]float64 `toml:"rates"` // items/sec per backend key
	Burst int                `toml:"burst"` // token bucket burst size
}

// MaintenanceConfig controls outcome archive retention.
type MaintenanceConfig struct {
	Enabled   bool   `toml:"enabled"`
	Schedule  string `toml:"schedule"`  // Cron schedule format
	Retention string `toml:"retention"` // e.g. "24h" - outcomes older than this are purged
}

type WebSocketConfig struct {
	VisionThrottle string `toml:"vision_throttle"` // Min interval between vision result broadcasts, e.g. "100ms"
}

// NewDefaultConfig returns the configuration defaults. Files, env vars
// and CLI flags layer on top in that order.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8085,
			Host: "0.0.0.0",
		},
		Queue: QueueConfig{
			MaxSize:      100,
			PollInterval: "1s",
		},
		Breaker: BreakerConfig{
			FailureThreshold: 5,
			SuccessThreshold: 2,
			OpenTimeout:      "30s",
		},
		Backends: BackendsConfig{
			Entries: map[string]BackendEntry{},
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data/relay",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout"},
		},
		Admission: AdmissionConfig{
			Rates: map[string]float64{},
			Burst: 10,
		},
		Maintenance: MaintenanceConfig{
			Enabled:   true,
			Schedule:  "0 * * * *",
			Retention: "24h",
		},
		WebSocket: WebSocketConfig{
			VisionThrottle: "100ms",
		},
	}
}

// LoadFromFiles loads configuration with priority: defaults -> file1 ->
// file2 -> ... -> env. Later files override earlier ones.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("RELAY_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	// Server configuration
	if port := os.Getenv("RELAY_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("RELAY_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	// Queue configuration
	if maxSize := os.Getenv("RELAY_QUEUE_MAX_SIZE"); maxSize != "" {
		if n, err := strconv.Atoi(maxSize); err == nil {
			config.Queue.MaxSize = n
		}
	}
	if pollInterval := os.Getenv("RELAY_QUEUE_POLL_INTERVAL"); pollInterval != "" {
		config.Queue.PollInterval = pollInterval
	}

	// Circuit breaker configuration
	if threshold := os.Getenv("RELAY_BREAKER_FAILURE_THRESHOLD"); threshold != "" {
		if n, err := strconv.Atoi(threshold); err == nil {
			config.Breaker.FailureThreshold = n
		}
	}
	if threshold := os.Getenv("RELAY_BREAKER_SUCCESS_THRESHOLD"); threshold != "" {
		if n, err := strconv.Atoi(threshold); err == nil {
			config.Breaker.SuccessThreshold = n
		}
	}
	if timeout := os.Getenv("RELAY_BREAKER_OPEN_TIMEOUT"); timeout != "" {
		config.Breaker.OpenTimeout = timeout
	}

	// Storage configuration
	if badgerPath := os.Getenv("RELAY_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}

	// Logging configuration
	if level := os.Getenv("RELAY_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("RELAY_LOG_OUTPUT"); output != "" {
		outputs := []string{}
		for _, o := range strings.Split(output, ",") {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}
}

// ApplyFlagOverrides applies command-line flag overrides (highest priority)
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// Validate checks structural constraints and duration fields.
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	durations := map[string]string{
		"queue.poll_interval":  c.Queue.PollInterval,
		"breaker.open_timeout": c.Breaker.OpenTimeout,
	}
	if c.Maintenance.Enabled {
		durations["maintenance.retention"] = c.Maintenance.Retention
	}
	for name, value := range durations {
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid duration for %s: %w", name, err)
		}
	}

	for key, entry := range c.Backends.Entries {
		if entry.Type == "http" && entry.BaseURL == "" {
			return fmt.Errorf("backend %s: base_url is required for type=http", key)
		}
		if entry.Timeout != "" {
			if _, err := time.ParseDuration(entry.Timeout); err != nil {
				return fmt.Errorf("backend %s: invalid timeout: %w", key, err)
			}
		}
	}

	return nil
}

// PollInterval returns the parsed scheduler poll interval.
func (c *Config) PollInterval() time.Duration {
	d, err := time.ParseDuration(c.Queue.PollInterval)
	if err != nil {
		return time.Second
	}
	return d
}

// OpenTimeout returns the parsed breaker open timeout.
func (c *Config) OpenTimeout() time.Duration {
	d, err := time.ParseDuration(c.Breaker.OpenTimeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// Retention returns the parsed outcome archive retention window.
func (c *Config) Retention() time.Duration {
	d, err := time.ParseDuration(c.Maintenance.Retention)
	if err != nil {
		return 24 * time.Hour
	}
	return d
}
