package store

import "fmt"

// NewStore creates a Store based on the configuration.
func NewStore(config StoreConfig) (Store, error) {
	switch config.Type {
	case StoreTypeMemory, "":
		return NewMemoryStore(), nil
	case StoreTypeFile:
		return NewFileStore(config)
	case StoreTypeRedis:
		return NewRedisStore(config)
	case StoreTypeSQLite:
		return NewSQLiteStore(config)
	default:
		return nil, fmt.Errorf("unsupported store type: %s", config.Type)
	}
}
