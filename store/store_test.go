package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	Value string `json:"value"`
}

func newTestStores(t *testing.T) map[string]Store {
	t.Helper()

	mr := miniredis.RunT(t)
	redisStore := NewRedisStoreWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "test:")

	fileCfg := DefaultStoreConfig()
	fileCfg.BaseDir = t.TempDir()
	fileCfg.Cleanup.Enabled = false
	fileStore, err := NewFileStore(fileCfg)
	require.NoError(t, err)

	sqliteCfg := DefaultStoreConfig()
	sqliteCfg.SQLite.Path = filepath.Join(t.TempDir(), "store.db")
	sqliteStore, err := NewSQLiteStore(sqliteCfg)
	require.NoError(t, err)

	return map[string]Store{
		"memory": NewMemoryStore(),
		"file":   fileStore,
		"redis":  redisStore,
		"sqlite": sqliteStore,
	}
}

func appendAt(t *testing.T, s Store, kind, key, value string, ts time.Time) Record {
	t.Helper()
	rec, err := NewRecord(kind, key, payload{Value: value})
	require.NoError(t, err)
	rec.Timestamp = ts
	require.NoError(t, s.Append(context.Background(), rec))
	return rec
}

func TestStore_AppendQueryLatest(t *testing.T) {
	for name, s := range newTestStores(t) {
		t.Run(name, func(t *testing.T) {
			defer s.Close()
			ctx := context.Background()

			require.NoError(t, s.Ping(ctx))

			base := time.Now().UTC().Add(-time.Hour)
			appendAt(t, s, "task_outcome", "general", "first", base)
			appendAt(t, s, "task_outcome", "general", "second", base.Add(time.Minute))
			appendAt(t, s, "task_outcome", "coding", "other", base.Add(2*time.Minute))
			appendAt(t, s, "action_decision", "deploy", "unrelated", base.Add(3*time.Minute))

			recs, err := s.Query(ctx, Filter{Kind: "task_outcome", Key: "general"})
			require.NoError(t, err)
			require.Len(t, recs, 2)
			var p payload
			require.NoError(t, recs[0].Decode(&p))
			assert.Equal(t, "first", p.Value)
			require.NoError(t, recs[1].Decode(&p))
			assert.Equal(t, "second", p.Value)

			// Kind-wide query spans keys, oldest first.
			recs, err = s.Query(ctx, Filter{Kind: "task_outcome"})
			require.NoError(t, err)
			require.Len(t, recs, 3)
			assert.True(t, recs[0].Timestamp.Before(recs[2].Timestamp))

			latest, err := s.Latest(ctx, "task_outcome", "general")
			require.NoError(t, err)
			require.NoError(t, latest.Decode(&p))
			assert.Equal(t, "second", p.Value)

			_, err = s.Latest(ctx, "task_outcome", "missing")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStore_QueryWindow(t *testing.T) {
	for name, s := range newTestStores(t) {
		t.Run(name, func(t *testing.T) {
			defer s.Close()
			ctx := context.Background()

			base := time.Now().UTC().Add(-time.Hour)
			for i := 0; i < 10; i++ {
				appendAt(t, s, "task_outcome", "general", "v", base.Add(time.Duration(i)*time.Minute))
			}

			recs, err := s.Query(ctx, Filter{Kind: "task_outcome", Key: "general", Limit: 3})
			require.NoError(t, err)
			require.Len(t, recs, 3)
			// Limit keeps the most recent entries, still oldest first.
			assert.Equal(t, base.Add(7*time.Minute).Unix(), recs[0].Timestamp.Unix())

			recs, err = s.Query(ctx, Filter{Kind: "task_outcome", Key: "general", Since: base.Add(8 * time.Minute)})
			require.NoError(t, err)
			assert.Len(t, recs, 2)
		})
	}
}

func TestStore_Cleanup(t *testing.T) {
	for name, s := range newTestStores(t) {
		t.Run(name, func(t *testing.T) {
			defer s.Close()
			ctx := context.Background()

			appendAt(t, s, "task_outcome", "general", "old", time.Now().UTC().Add(-48*time.Hour))
			appendAt(t, s, "task_outcome", "general", "fresh", time.Now().UTC())

			removed, err := s.Cleanup(ctx, 24*time.Hour)
			require.NoError(t, err)
			assert.Equal(t, 1, removed)

			recs, err := s.Query(ctx, Filter{Kind: "task_outcome", Key: "general"})
			require.NoError(t, err)
			require.Len(t, recs, 1)
			var p payload
			require.NoError(t, recs[0].Decode(&p))
			assert.Equal(t, "fresh", p.Value)
		})
	}
}

func TestStore_InvalidInput(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	ctx := context.Background()

	err := s.Append(ctx, Record{})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = s.Query(ctx, Filter{})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestStore_ClosedErrors(t *testing.T) {
	s := NewMemoryStore()
	require.NoError(t, s.Close())
	ctx := context.Background()

	rec, err := NewRecord("task_outcome", "general", payload{Value: "v"})
	require.NoError(t, err)
	assert.ErrorIs(t, s.Append(ctx, rec), ErrStoreClosed)
	assert.ErrorIs(t, s.Ping(ctx), ErrStoreClosed)
}

func TestFileStore_ReloadFromDisk(t *testing.T) {
	cfg := DefaultStoreConfig()
	cfg.BaseDir = t.TempDir()
	cfg.Cleanup.Enabled = false

	s, err := NewFileStore(cfg)
	require.NoError(t, err)
	appendAt(t, s, "preference", "handoffs_enabled", "true", time.Now().UTC())
	require.NoError(t, s.Close())

	reopened, err := NewFileStore(cfg)
	require.NoError(t, err)
	defer reopened.Close()

	rec, err := reopened.Latest(context.Background(), "preference", "handoffs_enabled")
	require.NoError(t, err)
	var p payload
	require.NoError(t, rec.Decode(&p))
	assert.Equal(t, "true", p.Value)
}

func TestNewStore_Factory(t *testing.T) {
	cfg := DefaultStoreConfig()
	s, err := NewStore(cfg)
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)
	s.Close()

	cfg.Type = "bogus"
	_, err = NewStore(cfg)
	assert.Error(t, err)
}
