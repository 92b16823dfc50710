package storage

import (
	"fmt"
	"ratelimiter/internal/models"
)

// Factory provides a centralized way to create timestamp logs based on configuration.
// This allows swapping backends without code changes.
type Factory struct{}

// NewFactory creates a new storage factory
func NewFactory() *Factory {
	return &Factory{}
}

// Create instantiates a timestamp log based on the provided configuration.
// Supported providers:
//   - memory: In-memory lists (for testing/development)
//   - json: JSON file persisted after every mutation
//   - sqlite: SQLite database table
//   - postgres: PostgreSQL database table
//   - redis: One Redis list per key (the production default)
func (f *Factory) Create(config models.StorageConfig) (TimestampLog, error) {
	if err := f.ValidateConfig(config); err != nil {
		return nil, err
	}

	storageConfig := Config{
		Type:             config.Type,
		Path:             config.Path,
		ConnectionString: config.Database.DSN,
		Redis: RedisOptions{
			Addr:     config.Redis.Addr,
			Password: config.Redis.Password,
			DB:       config.Redis.DB,
			PoolSize: config.Redis.PoolSize,
			KeyTTL:   config.Redis.KeyTTL,
		},
		Options: convertOptions(config.Options),
	}
	if config.Database.MaxOpenConns > 0 {
		storageConfig.Options["max_open_conns"] = config.Database.MaxOpenConns
	}

	switch config.Type {
	case models.StorageTypeMemory:
		return NewMemoryLog(storageConfig)
	case models.StorageTypeJSON:
		return NewJSONLog(storageConfig)
	case models.StorageTypeSQLite:
		return NewSQLiteLog(storageConfig)
	case models.StorageTypePostgres:
		return NewPostgresLog(storageConfig)
	case models.StorageTypeRedis:
		return NewRedisLog(storageConfig)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", config.Type)
	}
}

// GetSupportedProviders returns a list of all supported storage provider types
func (f *Factory) GetSupportedProviders() []string {
	return []string{
		models.StorageTypeMemory,
		models.StorageTypeJSON,
		models.StorageTypeSQLite,
		models.StorageTypePostgres,
		models.StorageTypeRedis,
	}
}

// ValidateConfig validates that a storage configuration is valid for its type
func (f *Factory) ValidateConfig(config models.StorageConfig) error {
	switch config.Type {
	case models.StorageTypeMemory:
		// Memory storage requires no additional configuration
	case models.StorageTypeJSON:
		if config.Path == "" {
			return fmt.Errorf("path is required for JSON storage")
		}
	case models.StorageTypePostgres, models.StorageTypeSQLite:
		if config.Database.DSN == "" {
			return fmt.Errorf("database DSN is required for %s storage", config.Type)
		}
	case models.StorageTypeRedis:
		if config.Redis.Addr == "" {
			return fmt.Errorf("redis address is required for redis storage")
		}
	default:
		return fmt.Errorf("unsupported storage type: %s", config.Type)
	}
	return nil
}

// convertOptions converts map[string]string to map[string]interface{}
func convertOptions(options map[string]string) map[string]interface{} {
	converted := make(map[string]interface{})
	for k, v := range options {
		converted[k] = v
	}
	return converted
}
