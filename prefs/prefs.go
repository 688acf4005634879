// Package prefs is a small preferences surface over the append-only store.
// Each preference is a keyed history of values; reads take the latest.
//
// The one preference the orchestrator depends on is handoffs_enabled,
// which defaults to false so a fresh deployment never chains agents until
// someone turns the feature on.
package prefs

import (
	"context"

	"go.uber.org/zap"

	"github.com/hiveflow/hiveflow/store"
)

// KindPreference is the record kind preferences are stored under.
const KindPreference = "preference"

// KeyHandoffsEnabled gates multi-agent chaining.
const KeyHandoffsEnabled = "handoffs_enabled"

type prefValue struct {
	Value bool `json:"value"`
}

// Prefs reads and writes boolean preferences.
type Prefs struct {
	store  store.Store
	logger *zap.Logger
}

// New creates a preferences surface over the given store.
func New(s store.Store, logger *zap.Logger) *Prefs {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Prefs{
		store:  s,
		logger: logger.With(zap.String("component", "prefs")),
	}
}

// Bool returns the latest value for key, or def when the key has never
// been set or the store is unreachable.
func (p *Prefs) Bool(ctx context.Context, key string, def bool) bool {
	rec, err := p.store.Latest(ctx, KindPreference, key)
	if err == store.ErrNotFound {
		return def
	}
	if err != nil {
		p.logger.Warn("preference store unavailable, using default",
			zap.String("key", key), zap.Bool("default", def), zap.Error(err))
		return def
	}
	var v prefValue
	if err := rec.Decode(&v); err != nil {
		p.logger.Warn("corrupt preference value, using default",
			zap.String("key", key), zap.Error(err))
		return def
	}
	return v.Value
}

// SetBool appends a new value for key.
func (p *Prefs) SetBool(ctx context.Context, key string, value bool) error {
	rec, err := store.NewRecord(KindPreference, key, prefValue{Value: value})
	if err != nil {
		return err
	}
	return p.store.Append(ctx, rec)
}

// HandoffsEnabled reports the handoff feature flag. Default false.
func (p *Prefs) HandoffsEnabled(ctx context.Context) bool {
	return p.Bool(ctx, KeyHandoffsEnabled, false)
}
