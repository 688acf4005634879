// Package store provides the append-only record store backing the two
// adaptive controllers and the preferences surface.
//
// The interface is deliberately narrow: Append, Query, Latest. Controllers
// stay pure functions over whatever the store returns, and the
// serialize-updates-per-key concurrency requirement is a property of each
// backend instead of scattered locking code.
//
// Supported backends:
// - Memory: For development and testing (default)
// - File: For single-node production deployments (atomic replace per key)
// - Redis: For distributed production deployments
// - SQLite: For single-node deployments that want queryable history
package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Common errors
var (
	ErrNotFound     = errors.New("record not found")
	ErrStoreClosed  = errors.New("store is closed")
	ErrInvalidInput = errors.New("invalid input")
)

// StoreType represents the type of storage backend
type StoreType string

const (
	StoreTypeMemory StoreType = "memory"
	StoreTypeFile   StoreType = "file"
	StoreTypeRedis  StoreType = "redis"
	StoreTypeSQLite StoreType = "sqlite"
)

// Record is one appended entry. Kind groups records of the same shape
// (e.g. "task_outcome", "action_decision", "preference") and Key scopes
// them (domain, action type, preference name).
type Record struct {
	ID        string          `json:"id"`
	Kind      string          `json:"kind"`
	Key       string          `json:"key"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// NewRecord builds a Record with a fresh ID and timestamp, marshaling
// payload into Data.
func NewRecord(kind, key string, payload any) (Record, error) {
	if kind == "" {
		return Record{}, ErrInvalidInput
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Record{}, err
	}
	return Record{
		ID:        uuid.NewString(),
		Kind:      kind,
		Key:       key,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}, nil
}

// Decode unmarshals the record payload into v.
func (r Record) Decode(v any) error {
	return json.Unmarshal(r.Data, v)
}

// Filter selects records for Query. Kind is required; an empty Key matches
// every key of that kind. Limit > 0 keeps only the most recent entries
// (the result is still oldest-first).
type Filter struct {
	Kind  string
	Key   string
	Since time.Time
	Limit int
}

// Store is the append-only record store.
type Store interface {
	// Append persists one record. Appends for the same (kind, key) are
	// serialized by the backend.
	Append(ctx context.Context, rec Record) error

	// Query returns matching records in append order, oldest first.
	Query(ctx context.Context, filter Filter) ([]Record, error)

	// Latest returns the most recently appended record for (kind, key),
	// or ErrNotFound.
	Latest(ctx context.Context, kind, key string) (Record, error)

	// Cleanup removes records older than the given age across all kinds.
	// Returns the number of removed records.
	Cleanup(ctx context.Context, olderThan time.Duration) (int, error)

	// Ping checks if the store is healthy
	Ping(ctx context.Context) error

	// Close closes the store
	Close() error
}

// CleanupConfig defines cleanup behavior for aged records
type CleanupConfig struct {
	// Enabled determines if automatic cleanup is enabled
	Enabled bool `json:"enabled" yaml:"enabled" env:"ENABLED"`

	// Interval is how often cleanup runs (default: 1h)
	Interval time.Duration `json:"interval" yaml:"interval" env:"INTERVAL"`

	// Retention is how long records are kept (default: 720h)
	Retention time.Duration `json:"retention" yaml:"retention" env:"RETENTION"`
}

// DefaultCleanupConfig returns the default cleanup configuration
func DefaultCleanupConfig() CleanupConfig {
	return CleanupConfig{
		Enabled:   false,
		Interval:  1 * time.Hour,
		Retention: 30 * 24 * time.Hour,
	}
}

// StoreConfig is the base configuration for all store implementations
type StoreConfig struct {
	// Type is the storage backend type
	Type StoreType `json:"type" yaml:"type" env:"TYPE"`

	// BaseDir is the base directory for file-based storage
	BaseDir string `json:"base_dir" yaml:"base_dir" env:"BASE_DIR"`

	// Redis configuration (only used when Type is "redis")
	Redis RedisStoreConfig `json:"redis" yaml:"redis" env:"REDIS"`

	// SQLite configuration (only used when Type is "sqlite")
	SQLite SQLiteStoreConfig `json:"sqlite" yaml:"sqlite" env:"SQLITE"`

	// Cleanup configuration
	Cleanup CleanupConfig `json:"cleanup" yaml:"cleanup" env:"CLEANUP"`
}

// RedisStoreConfig contains Redis-specific configuration
type RedisStoreConfig struct {
	// Host is the Redis server host
	Host string `json:"host" yaml:"host" env:"HOST"`

	// Port is the Redis server port
	Port int `json:"port" yaml:"port" env:"PORT"`

	// Password is the Redis password (optional)
	Password string `json:"password" yaml:"password" env:"PASSWORD"`

	// DB is the Redis database number
	DB int `json:"db" yaml:"db" env:"DB"`

	// PoolSize is the connection pool size
	PoolSize int `json:"pool_size" yaml:"pool_size" env:"POOL_SIZE"`

	// KeyPrefix is the prefix for all Redis keys
	KeyPrefix string `json:"key_prefix" yaml:"key_prefix" env:"KEY_PREFIX"`
}

// SQLiteStoreConfig contains SQLite-specific configuration
type SQLiteStoreConfig struct {
	// Path is the database file path (":memory:" for in-memory)
	Path string `json:"path" yaml:"path" env:"PATH"`
}

// DefaultStoreConfig returns the default store configuration
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		Type:    StoreTypeMemory,
		BaseDir: "./data/store",
		Redis: RedisStoreConfig{
			Host:      "localhost",
			Port:      6379,
			DB:        0,
			PoolSize:  10,
			KeyPrefix: "hiveflow:",
		},
		SQLite: SQLiteStoreConfig{
			Path: "./data/store/hiveflow.db",
		},
		Cleanup: DefaultCleanupConfig(),
	}
}
