// Package models - Service configuration and operational settings.
// This file defines the configuration tree for every service component.
//
// Configuration Philosophy:
// - Hierarchical configuration with logical grouping (server, storage, limits, etc.)
// - Defaults that work out of the box with in-memory storage
// - Validation that catches misconfigurations before the limiter is built
// - Quotas are plain data so new categories need no code change
package models

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/Masterminds/semver/v3"
)

// Storage type constants
const (
	StorageTypeJSON     = "json"
	StorageTypeMemory   = "memory"
	StorageTypePostgres = "postgres"
	StorageTypeSQLite   = "sqlite"
	StorageTypeRedis    = "redis"
)

// ConfigVersion is the configuration schema version written by this build.
const ConfigVersion = "1.0.0"

// supportedConfigVersions is the range of schema versions this build can read.
const supportedConfigVersions = "^1"

// Config is the root configuration structure containing all service settings.
//
// Configuration Structure:
// - Server: HTTP server and network settings
// - Storage: Timestamp log backend
// - Limits: Per-category quotas
// - Security: Admin access to destructive endpoints
// - Logging: Structured logging and output configuration
// - Metrics: Prometheus endpoint
// - Observability: Tracing
type Config struct {
	Version       string              `yaml:"version" json:"version"`             // Config schema version
	Server        ServerConfig        `yaml:"server" json:"server"`               // HTTP server configuration
	Storage       StorageConfig       `yaml:"storage" json:"storage"`             // Timestamp log backend
	Limits        LimitsConfig        `yaml:"limits" json:"limits"`               // Category quotas
	Security      SecurityConfig      `yaml:"security" json:"security"`          // Admin access
	Logging       LoggingConfig       `yaml:"logging" json:"logging"`             // Logging and output configuration
	Metrics       MetricsConfig       `yaml:"metrics" json:"metrics"`             // Monitoring and metrics
	Observability ObservabilityConfig `yaml:"observability" json:"observability"` // Tracing
}

type ServerConfig struct {
	Port         int           `yaml:"port" json:"port"`
	Host         string        `yaml:"host" json:"host"`
	ReadTimeout  time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" json:"idle_timeout"`
	TLSEnabled   bool          `yaml:"tls_enabled" json:"tls_enabled"`
	TLSCertFile  string        `yaml:"tls_cert_file" json:"tls_cert_file"`
	TLSKeyFile   string        `yaml:"tls_key_file" json:"tls_key_file"`
}

type StorageConfig struct {
	Type     string            `yaml:"type" json:"type"`
	Path     string            `yaml:"path" json:"path"`
	Database DatabaseConfig    `yaml:"database" json:"database"`
	Redis    RedisConfig       `yaml:"redis" json:"redis"`
	Options  map[string]string `yaml:"options" json:"options"`
}

type DatabaseConfig struct {
	DSN          string `yaml:"dsn" json:"dsn"`
	MaxOpenConns int    `yaml:"max_open_conns" json:"max_open_conns"`
}

type RedisConfig struct {
	Addr     string        `yaml:"addr" json:"addr"`
	Password string        `yaml:"password" json:"password"`
	DB       int           `yaml:"db" json:"db"`
	PoolSize int           `yaml:"pool_size" json:"pool_size"`
	KeyTTL   time.Duration `yaml:"key_ttl" json:"key_ttl"`
}

// LimitsConfig maps request categories to their per-minute quotas.
//
// Categories is the primary form. Domains accepts the older list layout
// where every item is a single-entry map, e.g.
//
//	domains:
//	  - Message: 10
//	  - Login: 2
//
// Both forms are merged by Quotas.
type LimitsConfig struct {
	Categories   map[string]int   `yaml:"categories" json:"categories"`
	Domains      []map[string]int `yaml:"domains,omitempty" json:"domains,omitempty"`
	APICategory  string           `yaml:"api_category" json:"api_category"`   // when set, the HTTP API itself is admitted under this category
	ClientHeader string           `yaml:"client_header" json:"client_header"` // header carrying the client id for the API guard
}

type SecurityConfig struct {
	AdminToken string `yaml:"admin_token" json:"admin_token"`
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
	Exporter     string  `yaml:"exporter" json:"exporter"` // stdout or otlp
	OTLPEndpoint string  `yaml:"otlp_endpoint" json:"otlp_endpoint"`
	SampleRate   float64 `yaml:"sample_rate" json:"sample_rate"`
}

// NewDefaultConfig creates a configuration with development-friendly defaults:
// in-memory storage, two example categories, JSON logs on stdout and metrics on 9090.
func NewDefaultConfig() *Config {
	return &Config{
		Version: ConfigVersion,
		Server: ServerConfig{
			Port:         8080,
			Host:         "0.0.0.0",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Storage: StorageConfig{
			Type: StorageTypeMemory,
			Path: "./data/request_log.json",
			Database: DatabaseConfig{
				MaxOpenConns: 25,
			},
			Redis: RedisConfig{
				Addr:     "localhost:6379",
				PoolSize: 10,
				KeyTTL:   2 * time.Minute,
			},
			Options: make(map[string]string),
		},
		Limits: LimitsConfig{
			Categories: map[string]int{
				"Login":   2,
				"Message": 5,
			},
			ClientHeader: "X-Client-ID",
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
			ServiceName: "ratelimiter",
			Tracing: TracingConfig{
				Enabled:    false,
				Exporter:   "stdout",
				SampleRate: 1.0,
			},
		},
	}
}

func (c *Config) Validate() error {
	if err := validateVersion(c.Version); err != nil {
		return fmt.Errorf("invalid config version: %w", err)
	}

	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("invalid server config: %w", err)
	}

	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("invalid storage config: %w", err)
	}

	if err := c.Limits.Validate(); err != nil {
		return fmt.Errorf("invalid limits config: %w", err)
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

func validateVersion(version string) error {
	if version == "" {
		return errors.New("version cannot be empty")
	}
	v, err := semver.NewVersion(version)
	if err != nil {
		return err
	}
	constraint, err := semver.NewConstraint(supportedConfigVersions)
	if err != nil {
		return err
	}
	if !constraint.Check(v) {
		return fmt.Errorf("version %s is not supported (want %s)", version, supportedConfigVersions)
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

	if sc.ReadTimeout < 0 {
		return errors.New("read timeout cannot be negative")
	}

	if sc.WriteTimeout < 0 {
		return errors.New("write timeout cannot be negative")
	}

	if sc.IdleTimeout < 0 {
		return errors.New("idle timeout cannot be negative")
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
	case StorageTypeJSON:
		if stc.Path == "" {
			return errors.New("path is required for JSON storage")
		}
	case StorageTypePostgres, StorageTypeSQLite:
		if stc.Database.DSN == "" {
			return errors.New("database DSN is required for database storage")
		}
	case StorageTypeRedis:
		if stc.Redis.Addr == "" {
			return errors.New("redis address is required for redis storage")
		}
		// A key must outlive the one-minute window its entries are counted in.
		if stc.Redis.KeyTTL != 0 && stc.Redis.KeyTTL < time.Minute {
			return fmt.Errorf("redis key TTL must be 0 (no expiry) or at least %s, got %s", time.Minute, stc.Redis.KeyTTL)
		}
	default:
		return fmt.Errorf("invalid storage type: %s", stc.Type)
	}
	return nil
}

// Quotas merges Categories and Domains into a single category -> quota map.
// It fails when the same category is given two different quotas.
func (lc *LimitsConfig) Quotas() (map[string]int, error) {
	merged := make(map[string]int, len(lc.Categories))
	for name, quota := range lc.Categories {
		merged[name] = quota
	}
	for _, domain := range lc.Domains {
		for name, quota := range domain {
			if existing, ok := merged[name]; ok && existing != quota {
				return nil, fmt.Errorf("category %q has conflicting quotas %d and %d", name, existing, quota)
			}
			merged[name] = quota
		}
	}
	return merged, nil
}

func (lc *LimitsConfig) Validate() error {
	quotas, err := lc.Quotas()
	if err != nil {
		return err
	}
	if len(quotas) == 0 {
		return errors.New("at least one category quota is required")
	}

	names := make([]string, 0, len(quotas))
	for name := range quotas {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if name == "" {
			return errors.New("category name cannot be empty")
		}
		if quotas[name] <= 0 {
			return fmt.Errorf("quota for category %q must be positive, got %d", name, quotas[name])
		}
	}

	if lc.APICategory != "" {
		if _, ok := quotas[lc.APICategory]; !ok {
			return fmt.Errorf("api category %q has no configured quota", lc.APICategory)
		}
	}

	return nil
}

func (lc *LoggingConfig) Validate() error {
	validLevels := []string{"debug", "info", "warn", "error"}
	found := false
	for _, vl := range validLevels {
		if lc.Level == vl {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("invalid log level: %s", lc.Level)
	}

	validFormats := []string{"json", "text"}
	found = false
	for _, vf := range validFormats {
		if lc.Format == vf {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("invalid log format: %s", lc.Format)
	}

	validOutputs := []string{"stdout", "stderr", "file"}
	found = false
	for _, vo := range validOutputs {
		if lc.Output == vo {
			found = true
			break
		}
	}
	if !found {
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
	if !oc.Tracing.Enabled {
		return nil
	}

	switch oc.Tracing.Exporter {
	case "stdout":
	case "otlp":
		if oc.Tracing.OTLPEndpoint == "" {
			return errors.New("OTLP endpoint is required when exporter is otlp")
		}
	default:
		return fmt.Errorf("invalid trace exporter: %s", oc.Tracing.Exporter)
	}

	if oc.Tracing.SampleRate < 0 || oc.Tracing.SampleRate > 1 {
		return errors.New("sample rate must be between 0 and 1")
	}

	return nil
}
