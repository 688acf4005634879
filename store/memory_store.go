package store

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory implementation of Store.
// Suitable for development and testing.
type MemoryStore struct {
	records map[string][]Record // key: kind + "\x00" + key
	mu      sync.RWMutex
	closed  bool
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string][]Record),
	}
}

func bucketKey(kind, key string) string {
	return kind + "\x00" + key
}

// Append persists one record
func (s *MemoryStore) Append(ctx context.Context, rec Record) error {
	if rec.Kind == "" {
		return ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	bk := bucketKey(rec.Kind, rec.Key)
	s.records[bk] = append(s.records[bk], rec)
	return nil
}

// Query returns matching records, oldest first
func (s *MemoryStore) Query(ctx context.Context, filter Filter) ([]Record, error) {
	if filter.Kind == "" {
		return nil, ErrInvalidInput
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	var results []Record
	if filter.Key != "" {
		results = append(results, s.records[bucketKey(filter.Kind, filter.Key)]...)
	} else {
		prefix := filter.Kind + "\x00"
		for bk, recs := range s.records {
			if len(bk) >= len(prefix) && bk[:len(prefix)] == prefix {
				results = append(results, recs...)
			}
		}
		sortRecords(results)
	}

	return applyWindow(results, filter), nil
}

// Latest returns the most recent record for (kind, key)
func (s *MemoryStore) Latest(ctx context.Context, kind, key string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return Record{}, ErrStoreClosed
	}
	recs := s.records[bucketKey(kind, key)]
	if len(recs) == 0 {
		return Record{}, ErrNotFound
	}
	return recs[len(recs)-1], nil
}

// Cleanup removes records older than the given age
func (s *MemoryStore) Cleanup(ctx context.Context, olderThan time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrStoreClosed
	}

	cutoff := time.Now().Add(-olderThan)
	removed := 0
	for bk, recs := range s.records {
		kept := recs[:0]
		for _, rec := range recs {
			if rec.Timestamp.Before(cutoff) {
				removed++
				continue
			}
			kept = append(kept, rec)
		}
		s.records[bk] = kept
	}
	return removed, nil
}

// Ping checks if the store is healthy
func (s *MemoryStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}

// Close closes the store
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
