// Package models - Service configuration and operational settings.
// This file defines the configuration structures for every service component.
//
// Configuration Philosophy:
// - Hierarchical configuration with logical grouping (server, storage, security, etc.)
// - Defaults that work out of the box for local development
// - Validation that catches misconfigurations before the server starts
// - Rate limit knobs never disable limiting: non-positive values fall back to defaults
package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/semver/v3"
)

// Storage type constants
const (
	StorageTypeMemory   = "memory"
	StorageTypePostgres = "postgres"
	StorageTypeSQLite   = "sqlite"
)

// Session rate limit store constants
const (
	SessionStoreStorage = "storage"
	SessionStoreRedis   = "redis"
)

// Rate limit fallbacks used when configured values are unset or non-positive.
const (
	DefaultRateLimitWindow        = time.Minute
	DefaultRateLimitMaxRequests   = 60
	DefaultSessionLimitWindow     = time.Minute
	DefaultSessionLimitMaxRequest = 120
	DefaultRateLimitCleanup       = 5 * time.Minute
)

// Config is the root configuration structure containing all service settings.
//
// Configuration Structure:
// - App: application identity reported by health endpoints and logs
// - Server: HTTP server and network settings
// - Storage: Database configuration
// - Security: Session cookie and rate limiting
// - Logging: Structured logging and output configuration
// - Metrics: Prometheus endpoint
// - Observability: Tracing and service naming
// - ErrorReporting: Error sink throttling
type Config struct {
	App            AppConfig            `yaml:"app" json:"app"`
	Server         ServerConfig         `yaml:"server" json:"server"`
	Storage        StorageConfig        `yaml:"storage" json:"storage"`
	Security       SecurityConfig       `yaml:"security" json:"security"`
	Logging        LoggingConfig        `yaml:"logging" json:"logging"`
	Metrics        MetricsConfig        `yaml:"metrics" json:"metrics"`
	Observability  ObservabilityConfig  `yaml:"observability" json:"observability"`
	ErrorReporting ErrorReportingConfig `yaml:"error_reporting" json:"error_reporting"`
}

type AppConfig struct {
	Name        string `yaml:"name" json:"name"`
	Version     string `yaml:"version" json:"version"`
	Environment string `yaml:"environment" json:"environment"`
}

type ServerConfig struct {
	Port         int           `yaml:"port" json:"port"`
	Host         string        `yaml:"host" json:"host"`
	ReadTimeout  time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" json:"idle_timeout"`
	MaxBodyBytes int64         `yaml:"max_body_bytes" json:"max_body_bytes"`
	TLSEnabled   bool          `yaml:"tls_enabled" json:"tls_enabled"`
	TLSCertFile  string        `yaml:"tls_cert_file" json:"tls_cert_file"`
	TLSKeyFile   string        `yaml:"tls_key_file" json:"tls_key_file"`
}

type StorageConfig struct {
	Type     string         `yaml:"type" json:"type"`
	Database DatabaseConfig `yaml:"database" json:"database"`
}

type DatabaseConfig struct {
	DSN             string        `yaml:"dsn" json:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns" json:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime"`
}

type SecurityConfig struct {
	SessionCookie string          `yaml:"session_cookie" json:"session_cookie"`
	RateLimit     RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`
}

// RateLimitConfig configures both limiter variants. IP limits are enforced
// in-process; session limits go through SessionStore ("storage" or "redis").
type RateLimitConfig struct {
	Enabled            bool          `yaml:"enabled" json:"enabled"`
	Window             time.Duration `yaml:"window" json:"window"`
	MaxRequests        int           `yaml:"max_requests" json:"max_requests"`
	SessionWindow      time.Duration `yaml:"session_window" json:"session_window"`
	SessionMaxRequests int           `yaml:"session_max_requests" json:"session_max_requests"`
	CleanupInterval    time.Duration `yaml:"cleanup_interval" json:"cleanup_interval"`
	SessionStore       string        `yaml:"session_store" json:"session_store"`
	Redis              RedisConfig   `yaml:"redis" json:"redis"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr" json:"addr"`
	Password string `yaml:"password" json:"password"`
	DB       int    `yaml:"db" json:"db"`
	Prefix   string `yaml:"prefix" json:"prefix"`
}

type LoggingConfig struct {
	Level    string `yaml:"level" json:"level"`
	Format   string `yaml:"format" json:"format"`
	Output   string `yaml:"output" json:"output"`
	FilePath string `yaml:"file_path" json:"file_path"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path" json:"path"`
	Port    int    `yaml:"port" json:"port"`
}

type ObservabilityConfig struct {
	ServiceName string        `yaml:"service_name" json:"service_name"`
	Tracing     TracingConfig `yaml:"tracing" json:"tracing"`
}

type TracingConfig struct {
	Enabled      bool    `yaml:"enabled" json:"enabled"`
	Exporter     string  `yaml:"exporter" json:"exporter"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" json:"otlp_endpoint"`
	SampleRate   float64 `yaml:"sample_rate" json:"sample_rate"`
}

// ErrorReportingConfig throttles the error sink so a failing dependency
// cannot flood logs and traces with identical reports.
type ErrorReportingConfig struct {
	Enabled      bool    `yaml:"enabled" json:"enabled"`
	MaxPerSecond float64 `yaml:"max_per_second" json:"max_per_second"`
	Burst        int     `yaml:"burst" json:"burst"`
}

// NewDefaultConfig creates a configuration with development-friendly defaults.
func NewDefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Name:        "opsportal",
			Version:     "0.1.0",
			Environment: "development",
		},
		Server: ServerConfig{
			Port:         8080,
			Host:         "0.0.0.0",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
			MaxBodyBytes: 1 << 20,
		},
		Storage: StorageConfig{
			Type: StorageTypeMemory,
			Database: DatabaseConfig{
				MaxOpenConns:    25,
				MaxIdleConns:    5,
				ConnMaxLifetime: 5 * time.Minute,
			},
		},
		Security: SecurityConfig{
			SessionCookie: "ops_session",
			RateLimit: RateLimitConfig{
				Enabled:            true,
				Window:             DefaultRateLimitWindow,
				MaxRequests:        DefaultRateLimitMaxRequests,
				SessionWindow:      DefaultSessionLimitWindow,
				SessionMaxRequests: DefaultSessionLimitMaxRequest,
				CleanupInterval:    DefaultRateLimitCleanup,
				SessionStore:       SessionStoreStorage,
				Redis: RedisConfig{
					Prefix: "opsportal:ratelimit",
				},
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
			Port:    9090,
		},
		Observability: ObservabilityConfig{
			ServiceName: "opsportal",
			Tracing: TracingConfig{
				Enabled:    false,
				Exporter:   "stdout",
				SampleRate: 1.0,
			},
		},
		ErrorReporting: ErrorReportingConfig{
			Enabled:      true,
			MaxPerSecond: 10,
			Burst:        20,
		},
	}
}

// ApplyDefaults replaces unset or non-positive rate limit values with the
// documented fallbacks. A zero window would otherwise disable limiting.
func (rl *RateLimitConfig) ApplyDefaults() {
	if rl.Window <= 0 {
		rl.Window = DefaultRateLimitWindow
	}
	if rl.MaxRequests <= 0 {
		rl.MaxRequests = DefaultRateLimitMaxRequests
	}
	if rl.SessionWindow <= 0 {
		rl.SessionWindow = DefaultSessionLimitWindow
	}
	if rl.SessionMaxRequests <= 0 {
		rl.SessionMaxRequests = DefaultSessionLimitMaxRequest
	}
	if rl.CleanupInterval <= 0 {
		rl.CleanupInterval = DefaultRateLimitCleanup
	}
	if rl.SessionStore == "" {
		rl.SessionStore = SessionStoreStorage
	}
}

func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return fmt.Errorf("invalid app config: %w", err)
	}

	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("invalid server config: %w", err)
	}

	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("invalid storage config: %w", err)
	}

	if err := c.Security.Validate(); err != nil {
		return fmt.Errorf("invalid security config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("invalid logging config: %w", err)
	}

	if err := c.Metrics.Validate(); err != nil {
		return fmt.Errorf("invalid metrics config: %w", err)
	}

	if err := c.Observability.Validate(); err != nil {
		return fmt.Errorf("invalid observability config: %w", err)
	}

	return nil
}

func (ac *AppConfig) Validate() error {
	if ac.Name == "" {
		return errors.New("app name cannot be empty")
	}
	if ac.Version == "" {
		return errors.New("app version cannot be empty")
	}
	if _, err := semver.NewVersion(ac.Version); err != nil {
		return fmt.Errorf("app version %q is not a semantic version: %w", ac.Version, err)
	}
	return nil
}

func (sc *ServerConfig) Validate() error {
	if sc.Port <= 0 || sc.Port > 65535 {
		return errors.New("port must be between 1 and 65535")
	}

	if sc.Host == "" {
		return errors.New("host cannot be empty")
	}

	if sc.ReadTimeout < 0 || sc.WriteTimeout < 0 || sc.IdleTimeout < 0 {
		return errors.New("timeouts cannot be negative")
	}

	if sc.MaxBodyBytes < 0 {
		return errors.New("max body bytes cannot be negative")
	}

	if sc.TLSEnabled {
		if sc.TLSCertFile == "" {
			return errors.New("TLS cert file is required when TLS is enabled")
		}
		if sc.TLSKeyFile == "" {
			return errors.New("TLS key file is required when TLS is enabled")
		}
	}

	return nil
}

func (stc *StorageConfig) Validate() error {
	switch stc.Type {
	case StorageTypeMemory:
		return nil
	case StorageTypePostgres, StorageTypeSQLite:
		if stc.Database.DSN == "" {
			return errors.New("database DSN is required for database storage")
		}
		return nil
	default:
		return fmt.Errorf("invalid storage type: %s", stc.Type)
	}
}

func (sec *SecurityConfig) Validate() error {
	if sec.SessionCookie == "" {
		return errors.New("session cookie name cannot be empty")
	}

	rl := sec.RateLimit
	if !rl.Enabled {
		return nil
	}
	switch rl.SessionStore {
	case SessionStoreStorage:
	case SessionStoreRedis:
		if rl.Redis.Addr == "" {
			return errors.New("redis address is required when session store is redis")
		}
	default:
		return fmt.Errorf("invalid session rate limit store: %s", rl.SessionStore)
	}
	return nil
}

func (lc *LoggingConfig) Validate() error {
	if !oneOf(lc.Level, "debug", "info", "warn", "error") {
		return fmt.Errorf("invalid log level: %s", lc.Level)
	}

	if !oneOf(lc.Format, "json", "text") {
		return fmt.Errorf("invalid log format: %s", lc.Format)
	}

	if !oneOf(lc.Output, "stdout", "stderr", "file") {
		return fmt.Errorf("invalid log output: %s", lc.Output)
	}

	if lc.Output == "file" && lc.FilePath == "" {
		return errors.New("file path is required when output is file")
	}

	return nil
}

func (mc *MetricsConfig) Validate() error {
	if !mc.Enabled {
		return nil
	}

	if mc.Path == "" {
		return errors.New("metrics path cannot be empty")
	}

	if mc.Port <= 0 || mc.Port > 65535 {
		return errors.New("metrics port must be between 1 and 65535")
	}

	return nil
}

func (oc *ObservabilityConfig) Validate() error {
	if oc.ServiceName == "" {
		return errors.New("service name cannot be empty")
	}
	if !oc.Tracing.Enabled {
		return nil
	}
	if !oneOf(oc.Tracing.Exporter, "stdout", "otlp") {
		return fmt.Errorf("invalid trace exporter: %s", oc.Tracing.Exporter)
	}
	if oc.Tracing.Exporter == "otlp" && oc.Tracing.OTLPEndpoint == "" {
		return errors.New("otlp endpoint is required for the otlp exporter")
	}
	return nil
}

func oneOf(value string, allowed ...string) bool {
	for _, a := range allowed {
		if value == a {
			return true
		}
	}
	return false
}
