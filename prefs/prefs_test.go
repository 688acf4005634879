package prefs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hiveflow/hiveflow/store"
)

func TestPrefs_DefaultFalse(t *testing.T) {
	p := New(store.NewMemoryStore(), zap.NewNop())
	assert.False(t, p.HandoffsEnabled(context.Background()))
	assert.True(t, p.Bool(context.Background(), "other_flag", true))
}

func TestPrefs_SetAndRead(t *testing.T) {
	ctx := context.Background()
	p := New(store.NewMemoryStore(), zap.NewNop())

	require.NoError(t, p.SetBool(ctx, KeyHandoffsEnabled, true))
	assert.True(t, p.HandoffsEnabled(ctx))

	// Latest write wins.
	require.NoError(t, p.SetBool(ctx, KeyHandoffsEnabled, false))
	assert.False(t, p.HandoffsEnabled(ctx))
}

type failingStore struct{ store.Store }

func (failingStore) Latest(ctx context.Context, kind, key string) (store.Record, error) {
	return store.Record{}, errors.New("backend down")
}

func TestPrefs_StoreUnavailableUsesDefault(t *testing.T) {
	p := New(failingStore{}, zap.NewNop())
	assert.False(t, p.HandoffsEnabled(context.Background()))
	assert.True(t, p.Bool(context.Background(), "x", true))
}

func TestPrefs_CorruptValueUsesDefault(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	require.NoError(t, s.Append(ctx, store.Record{
		ID:        "r1",
		Kind:      KindPreference,
		Key:       KeyHandoffsEnabled,
		Timestamp: time.Now().UTC(),
		Data:      []byte("not json"),
	}))

	p := New(s, zap.NewNop())
	assert.False(t, p.HandoffsEnabled(ctx))
}
