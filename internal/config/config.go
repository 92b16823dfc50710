// Package config assembles the service configuration from defaults, an
// optional YAML file, an optional .env file and RATELIMITER_* environment
// variables, in that order of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"ratelimiter/internal/models"
)

// EnvPrefix prefixes every environment variable the service reads.
const EnvPrefix = "RATELIMITER_"

// Load loads configuration from file and environment variables. A .env file in
// the working directory is applied to the process environment first without
// overriding variables that are already set. When configPath is empty,
// RATELIMITER_CONFIG names the file.
func Load(configPath string) (*models.Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	if configPath == "" {
		configPath = os.Getenv(EnvPrefix + "CONFIG")
	}

	// Start with default configuration
	config := models.NewDefaultConfig()

	if configPath != "" {
		if err := loadFromFile(config, configPath); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := loadFromEnvironment(config); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// loadDotEnv applies path to the environment if it exists.
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// legacyConfig mirrors the flat layout of the first deployment's YAML file:
//
//	domains:
//	  - Message: 10
//	  - Login: 2
type legacyConfig struct {
	Domains []map[string]int `yaml:"domains"`
}

// limitsProbe detects whether a file sets quotas at all.
type limitsProbe struct {
	Limits struct {
		Categories map[string]int   `yaml:"categories"`
		Domains    []map[string]int `yaml:"domains"`
	} `yaml:"limits"`
}

// loadFromFile loads configuration from a YAML file. Quotas from the file
// replace the default categories instead of being merged into them.
func loadFromFile(config *models.Config, filePath string) error {
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s", filePath)
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var probe limitsProbe
	if err := yaml.Unmarshal(data, &probe); err != nil {
		return fmt.Errorf("failed to parse YAML config: %w", err)
	}
	var legacy legacyConfig
	if err := yaml.Unmarshal(data, &legacy); err != nil {
		return fmt.Errorf("failed to parse YAML config: %w", err)
	}

	if probe.Limits.Categories != nil || probe.Limits.Domains != nil || legacy.Domains != nil {
		config.Limits.Categories = nil
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return fmt.Errorf("failed to parse YAML config: %w", err)
	}

	if len(legacy.Domains) > 0 {
		slog.Warn("Top-level domains key is deprecated; move the entries under limits.categories.", "config_key", "domains")
		config.Limits.Domains = append(config.Limits.Domains, legacy.Domains...)
	}
	return nil
}

// loadFromEnvironment overrides config with RATELIMITER_* variables. Malformed
// numbers and durations are ignored, except for quotas which fail loudly.
func loadFromEnvironment(config *models.Config) error {
	// Server configuration
	envInt("PORT", &config.Server.Port)
	envString("HOST", &config.Server.Host)
	envDuration("READ_TIMEOUT", &config.Server.ReadTimeout)
	envDuration("WRITE_TIMEOUT", &config.Server.WriteTimeout)
	envDuration("IDLE_TIMEOUT", &config.Server.IdleTimeout)
	envBool("TLS_ENABLED", &config.Server.TLSEnabled)
	envString("TLS_CERT_FILE", &config.Server.TLSCertFile)
	envString("TLS_KEY_FILE", &config.Server.TLSKeyFile)

	// Storage configuration
	envString("STORAGE_TYPE", &config.Storage.Type)
	envString("STORAGE_PATH", &config.Storage.Path)
	envString("DATABASE_DSN", &config.Storage.Database.DSN)
	envInt("DATABASE_MAX_OPEN_CONNS", &config.Storage.Database.MaxOpenConns)
	envString("REDIS_ADDR", &config.Storage.Redis.Addr)
	envString("REDIS_PASSWORD", &config.Storage.Redis.Password)
	envInt("REDIS_DB", &config.Storage.Redis.DB)
	envInt("REDIS_POOL_SIZE", &config.Storage.Redis.PoolSize)
	envDuration("REDIS_KEY_TTL", &config.Storage.Redis.KeyTTL)

	// Limits configuration
	if raw := os.Getenv(EnvPrefix + "QUOTAS"); raw != "" {
		quotas, err := ParseQuotas(raw)
		if err != nil {
			return fmt.Errorf("%sQUOTAS: %w", EnvPrefix, err)
		}
		config.Limits.Categories = quotas
		config.Limits.Domains = nil
	}
	envString("API_CATEGORY", &config.Limits.APICategory)
	envString("CLIENT_HEADER", &config.Limits.ClientHeader)

	// Security configuration
	envString("ADMIN_TOKEN", &config.Security.AdminToken)

	// Logging configuration
	envString("LOG_LEVEL", &config.Logging.Level)
	envString("LOG_FORMAT", &config.Logging.Format)
	envString("LOG_OUTPUT", &config.Logging.Output)
	envString("LOG_FILE_PATH", &config.Logging.FilePath)

	// Metrics configuration
	envBool("METRICS_ENABLED", &config.Metrics.Enabled)
	envString("METRICS_PATH", &config.Metrics.Path)
	envInt("METRICS_PORT", &config.Metrics.Port)

	// Observability configuration
	envString("SERVICE_NAME", &config.Observability.ServiceName)
	envBool("TRACING_ENABLED", &config.Observability.Tracing.Enabled)
	envString("TRACING_EXPORTER", &config.Observability.Tracing.Exporter)
	envString("OTLP_ENDPOINT", &config.Observability.Tracing.OTLPEndpoint)
	if rate := os.Getenv(EnvPrefix + "TRACING_SAMPLE_RATE"); rate != "" {
		if r, err := strconv.ParseFloat(rate, 64); err == nil {
			config.Observability.Tracing.SampleRate = r
		}
	}

	return nil
}

// ParseQuotas parses a comma-separated list of category=quota pairs, e.g.
// "Login=2,Message=5".
func ParseQuotas(raw string) (map[string]int, error) {
	quotas := make(map[string]int)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		name, value, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("quota %q is not in category=quota form", pair)
		}
		name = strings.TrimSpace(name)
		quota, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return nil, fmt.Errorf("quota for %q is not a number: %w", name, err)
		}
		if _, dup := quotas[name]; dup {
			return nil, fmt.Errorf("category %q listed twice", name)
		}
		quotas[name] = quota
	}
	if len(quotas) == 0 {
		return nil, errors.New("no quotas given")
	}
	return quotas, nil
}

func envString(name string, dst *string) {
	if v := os.Getenv(EnvPrefix + name); v != "" {
		*dst = v
	}
}

func envInt(name string, dst *int) {
	if v := os.Getenv(EnvPrefix + name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envBool(name string, dst *bool) {
	if v := os.Getenv(EnvPrefix + name); v != "" {
		*dst = strings.ToLower(v) == "true"
	}
}

func envDuration(name string, dst *time.Duration) {
	if v := os.Getenv(EnvPrefix + name); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

// SaveExample saves an example configuration file
func SaveExample(filePath string) error {
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	config := models.NewDefaultConfig()

	// Example production values
	config.Storage.Type = models.StorageTypeRedis
	config.Limits.APICategory = "Message"
	config.Security.AdminToken = "change-me"
	config.Server.TLSCertFile = "/path/to/cert.pem"
	config.Server.TLSKeyFile = "/path/to/key.pem"

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
