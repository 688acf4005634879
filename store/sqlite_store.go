package store

import (
	"context"
	"errors"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

// recordRow is the gorm model backing SQLiteStore.
type recordRow struct {
	ID        string    `gorm:"primaryKey;size:64"`
	Kind      string    `gorm:"index:idx_kind_key;size:128;not null"`
	Key       string    `gorm:"index:idx_kind_key;size:256"`
	Timestamp time.Time `gorm:"index"`
	Data      []byte
}

func (recordRow) TableName() string { return "records" }

// SQLiteStore is a SQLite-backed implementation of Store using gorm.
// Suitable for single-node deployments that want queryable history.
// SQLite serializes writers, which satisfies the per-key update rule.
type SQLiteStore struct {
	db *gorm.DB
}

// NewSQLiteStore creates a new SQLite-backed store
func NewSQLiteStore(config StoreConfig) (*SQLiteStore, error) {
	path := config.SQLite.Path
	if path == "" {
		path = "file::memory:?cache=shared"
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&recordRow{}); err != nil {
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

// Append persists one record
func (s *SQLiteStore) Append(ctx context.Context, rec Record) error {
	if rec.Kind == "" {
		return ErrInvalidInput
	}
	row := recordRow{
		ID:        rec.ID,
		Kind:      rec.Kind,
		Key:       rec.Key,
		Timestamp: rec.Timestamp,
		Data:      rec.Data,
	}
	return s.db.WithContext(ctx).Create(&row).Error
}

// Query returns matching records, oldest first
func (s *SQLiteStore) Query(ctx context.Context, filter Filter) ([]Record, error) {
	if filter.Kind == "" {
		return nil, ErrInvalidInput
	}

	q := s.db.WithContext(ctx).Model(&recordRow{}).Where("kind = ?", filter.Kind)
	if filter.Key != "" {
		q = q.Where("key = ?", filter.Key)
	}
	if !filter.Since.IsZero() {
		q = q.Where("timestamp >= ?", filter.Since)
	}

	var rows []recordRow
	if filter.Limit > 0 {
		// Fetch the most recent N, then restore oldest-first order.
		if err := q.Order("timestamp DESC").Limit(filter.Limit).Find(&rows).Error; err != nil {
			return nil, err
		}
		for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
			rows[i], rows[j] = rows[j], rows[i]
		}
	} else {
		if err := q.Order("timestamp ASC").Find(&rows).Error; err != nil {
			return nil, err
		}
	}

	results := make([]Record, 0, len(rows))
	for _, row := range rows {
		results = append(results, Record{
			ID:        row.ID,
			Kind:      row.Kind,
			Key:       row.Key,
			Timestamp: row.Timestamp,
			Data:      row.Data,
		})
	}
	return results, nil
}

// Latest returns the most recent record for (kind, key)
func (s *SQLiteStore) Latest(ctx context.Context, kind, key string) (Record, error) {
	var row recordRow
	err := s.db.WithContext(ctx).
		Where("kind = ? AND key = ?", kind, key).
		Order("timestamp DESC").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, err
	}
	return Record{
		ID:        row.ID,
		Kind:      row.Kind,
		Key:       row.Key,
		Timestamp: row.Timestamp,
		Data:      row.Data,
	}, nil
}

// Cleanup removes records older than the given age
func (s *SQLiteStore) Cleanup(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().Add(-olderThan)
	res := s.db.WithContext(ctx).Where("timestamp < ?", cutoff).Delete(&recordRow{})
	return int(res.RowsAffected), res.Error
}

// Ping checks if the store is healthy
func (s *SQLiteStore) Ping(ctx context.Context) error {
	db, err := s.db.DB()
	if err != nil {
		return err
	}
	return db.PingContext(ctx)
}

// Close closes the store
func (s *SQLiteStore) Close() error {
	db, err := s.db.DB()
	if err != nil {
		return err
	}
	return db.Close()
}
