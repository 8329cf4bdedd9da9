package storage

import (
	"fmt"

	"opsportal/internal/models"
)

// Factory provides a centralized way to create storage instances based on configuration.
type Factory struct{}

// NewFactory creates a new storage factory
func NewFactory() *Factory {
	return &Factory{}
}

// Create instantiates a storage provider based on the provided configuration.
// Supported providers:
//   - memory: In-memory storage (for testing/development)
//   - postgres: PostgreSQL database storage (production)
//   - sqlite: SQLite database storage (single instance)
//
// The configuration is validated first, so a bad type or a missing DSN is
// reported before any connection is attempted.
func (f *Factory) Create(config models.StorageConfig) (Storage, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("storage config: %w", err)
	}

	storageConfig := Config{
		Type:             config.Type,
		ConnectionString: config.Database.DSN,
		MaxOpenConns:     config.Database.MaxOpenConns,
		MaxIdleConns:     config.Database.MaxIdleConns,
		ConnMaxLifetime:  config.Database.ConnMaxLifetime,
	}

	// Each branch checks err so a typed nil never escapes as a non-nil Storage.
	switch config.Type {
	case models.StorageTypeMemory:
		return NewMemoryStorage(storageConfig)
	case models.StorageTypePostgres:
		s, err := NewPostgresStorage(storageConfig)
		if err != nil {
			return nil, err
		}
		return s, nil
	case models.StorageTypeSQLite:
		s, err := NewSQLiteStorage(storageConfig)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", config.Type)
	}
}
