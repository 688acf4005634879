package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// FileStore is a file-based implementation of Store.
// Suitable for single-node production deployments.
//
// Each (kind, key) bucket lives in its own JSON file and every update is an
// atomic replace (write temp, rename), so concurrent processes updating
// different keys never touch the same file.
type FileStore struct {
	baseDir string
	buckets map[string][]Record // in-memory cache, key: kind + "\x00" + key
	mu      sync.Mutex
	closed  bool
	stopCh  chan struct{}
}

// NewFileStore creates a new file-based store
func NewFileStore(config StoreConfig) (*FileStore, error) {
	baseDir := filepath.Join(config.BaseDir, "records")
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	s := &FileStore{
		baseDir: baseDir,
		buckets: make(map[string][]Record),
		stopCh:  make(chan struct{}),
	}

	if err := s.loadFromDisk(); err != nil {
		return nil, fmt.Errorf("failed to load records from disk: %w", err)
	}

	if config.Cleanup.Enabled {
		go s.cleanupLoop(config.Cleanup.Interval, config.Cleanup.Retention)
	}

	return s, nil
}

func (s *FileStore) loadFromDisk() error {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.baseDir, entry.Name()))
		if err != nil {
			return err
		}
		var recs []Record
		if err := json.Unmarshal(data, &recs); err != nil {
			return fmt.Errorf("corrupt bucket file %s: %w", entry.Name(), err)
		}
		if len(recs) > 0 {
			s.buckets[bucketKey(recs[0].Kind, recs[0].Key)] = recs
		}
	}
	return nil
}

// bucketPath maps a (kind, key) bucket to its file. Key characters outside
// [A-Za-z0-9_-] are escaped so keys cannot traverse outside baseDir.
func (s *FileStore) bucketPath(kind, key string) string {
	return filepath.Join(s.baseDir, sanitizeName(kind)+"__"+sanitizeName(key)+".json")
}

func sanitizeName(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		default:
			fmt.Fprintf(&b, "%%%02x", r)
		}
	}
	return b.String()
}

// saveBucket atomically replaces the bucket file: write temp, rename.
func (s *FileStore) saveBucket(kind, key string, recs []Record) error {
	data, err := json.MarshalIndent(recs, "", "  ")
	if err != nil {
		return err
	}
	path := s.bucketPath(kind, key)
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tempPath, path)
}

// Append persists one record
func (s *FileStore) Append(ctx context.Context, rec Record) error {
	if rec.Kind == "" {
		return ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}

	bk := bucketKey(rec.Kind, rec.Key)
	recs := append(s.buckets[bk], rec)
	if err := s.saveBucket(rec.Kind, rec.Key, recs); err != nil {
		return err
	}
	s.buckets[bk] = recs
	return nil
}

// Query returns matching records, oldest first
func (s *FileStore) Query(ctx context.Context, filter Filter) ([]Record, error) {
	if filter.Kind == "" {
		return nil, ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	var results []Record
	if filter.Key != "" {
		results = append(results, s.buckets[bucketKey(filter.Kind, filter.Key)]...)
	} else {
		prefix := filter.Kind + "\x00"
		for bk, recs := range s.buckets {
			if strings.HasPrefix(bk, prefix) {
				results = append(results, recs...)
			}
		}
		sortRecords(results)
	}
	return applyWindow(results, filter), nil
}

// Latest returns the most recent record for (kind, key)
func (s *FileStore) Latest(ctx context.Context, kind, key string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Record{}, ErrStoreClosed
	}
	recs := s.buckets[bucketKey(kind, key)]
	if len(recs) == 0 {
		return Record{}, ErrNotFound
	}
	return recs[len(recs)-1], nil
}

// Cleanup removes records older than the given age
func (s *FileStore) Cleanup(ctx context.Context, olderThan time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrStoreClosed
	}

	cutoff := time.Now().Add(-olderThan)
	removed := 0
	for bk, recs := range s.buckets {
		kept := make([]Record, 0, len(recs))
		for _, rec := range recs {
			if rec.Timestamp.Before(cutoff) {
				removed++
				continue
			}
			kept = append(kept, rec)
		}
		if len(kept) == len(recs) {
			continue
		}
		var kind, key string
		if parts := strings.SplitN(bk, "\x00", 2); len(parts) == 2 {
			kind, key = parts[0], parts[1]
		}
		if err := s.saveBucket(kind, key, kept); err != nil {
			return removed, err
		}
		s.buckets[bk] = kept
	}
	return removed, nil
}

func (s *FileStore) cleanupLoop(interval, retention time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.Cleanup(context.Background(), retention)
		case <-s.stopCh:
			return
		}
	}
}

// Ping checks if the store is healthy
func (s *FileStore) Ping(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}

// Close closes the store
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.stopCh)
	return nil
}
