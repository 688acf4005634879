package hitl

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hiveflow/hiveflow/store"
)

func newTestGate(t *testing.T) *Gate {
	t.Helper()
	return NewGate(store.NewMemoryStore(), DefaultConfig(), zap.NewNop(), nil)
}

func TestClassifyAction(t *testing.T) {
	tests := []struct {
		actionType string
		want       Category
	}{
		{"read_file", CategorySafe},
		{"list_buckets", CategorySafe},
		{"update_config", CategoryModerate},
		{"deploy_service", CategoryModerate},
		{"delete_branch", CategoryDestructive},
		{"purge_cache", CategoryDestructive},
		{"database_drop", CategoryCritical},
		{"force_push", CategoryCritical},
		{"drop_table", CategoryCritical},
		{"unknown_thing", CategoryModerate},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ClassifyAction(Action{Type: tt.actionType}), tt.actionType)
	}
}

func TestShouldPause_CriticalAlwaysPauses(t *testing.T) {
	g := newTestGate(t)
	ctx := context.Background()

	// Even before any history exists.
	paused, reason := g.ShouldPause(ctx, Action{Type: "database_drop", Target: "prod_db"}, nil)
	assert.True(t, paused)
	assert.Contains(t, reason, "database_drop")
	assert.Contains(t, reason, "always requires confirmation")

	// A long approval history cannot override rule 1.
	for i := 0; i < 20; i++ {
		require.NoError(t, g.RecordDecision(ctx, Action{Type: "force_push"}, true, ""))
	}
	paused, reason = g.ShouldPause(ctx, Action{Type: "force_push"}, nil)
	assert.True(t, paused)
	assert.Contains(t, reason, "force_push")
}

func TestShouldPause_BulkTargets(t *testing.T) {
	g := newTestGate(t)
	ctx := context.Background()

	targets := []string{"a", "b", "c", "d", "e"}
	paused, reason := g.ShouldPause(ctx, Action{Type: "read_file", Targets: targets}, nil)
	assert.True(t, paused)
	assert.Contains(t, reason, "5")

	paused, _ = g.ShouldPause(ctx, Action{Type: "read_file", Targets: targets[:4]}, nil)
	assert.False(t, paused)
}

func TestShouldPause_RateLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RateLimit = 3
	cfg.RateWindow = time.Hour // no refill during the test
	g := NewGate(store.NewMemoryStore(), cfg, zap.NewNop(), nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		paused, _ := g.ShouldPause(ctx, Action{Type: "read_file"}, nil)
		require.False(t, paused, "action %d", i)
	}
	paused, reason := g.ShouldPause(ctx, Action{Type: "read_file"}, nil)
	assert.True(t, paused)
	assert.Contains(t, reason, "rate limit")

	// Other action types are unaffected.
	paused, _ = g.ShouldPause(ctx, Action{Type: "list_buckets"}, nil)
	assert.False(t, paused)
}

func TestShouldPause_ConfidenceFloor(t *testing.T) {
	g := newTestGate(t)
	ctx := context.Background()

	// Destructive prior 0.3 sits below the default 0.6 threshold.
	paused, reason := g.ShouldPause(ctx, Action{Type: "delete_branch"}, nil)
	assert.True(t, paused)
	assert.Contains(t, reason, "below threshold")

	// Safe prior 0.9 clears it.
	paused, _ = g.ShouldPause(ctx, Action{Type: "read_file"}, nil)
	assert.False(t, paused)
}

func TestCalculateConfidence_Idempotent(t *testing.T) {
	g := newTestGate(t)
	ctx := context.Background()
	action := Action{Type: "update_config", Environment: "staging"}

	first := g.CalculateConfidence(ctx, action, nil)
	second := g.CalculateConfidence(ctx, action, nil)
	assert.Equal(t, first, second)
}

func TestCalculateConfidence_ProductionLowerThanDevelopment(t *testing.T) {
	g := newTestGate(t)
	ctx := context.Background()

	for _, actionType := range []string{"read_file", "update_config", "delete_branch"} {
		dev := g.CalculateConfidence(ctx, Action{Type: actionType, Environment: "development"}, nil)
		prod := g.CalculateConfidence(ctx, Action{Type: actionType, Environment: "production"}, nil)
		assert.Less(t, prod, dev, actionType)
	}

	// Environment may also arrive through the extra context.
	dev := g.CalculateConfidence(ctx, Action{Type: "update_config"}, map[string]any{"environment": "development"})
	prod := g.CalculateConfidence(ctx, Action{Type: "update_config"}, map[string]any{"environment": "production"})
	assert.Less(t, prod, dev)
}

func TestLearnedConfidence_ApprovalsRaise(t *testing.T) {
	g := newTestGate(t)
	ctx := context.Background()

	assert.Equal(t, 0.5, g.GetLearnedConfidence(ctx, "custom_action"))

	for i := 0; i < 5; i++ {
		require.NoError(t, g.RecordDecision(ctx, Action{Type: "custom_action"}, true, ""))
	}
	assert.Greater(t, g.GetLearnedConfidence(ctx, "custom_action"), 0.5)

	for i := 0; i < 5; i++ {
		require.NoError(t, g.RecordDecision(ctx, Action{Type: "rejected_action"}, false, "too risky"))
	}
	assert.Less(t, g.GetLearnedConfidence(ctx, "rejected_action"), 0.5)
}

func TestLearnedConfidence_FeedsCalculateConfidence(t *testing.T) {
	g := newTestGate(t)
	ctx := context.Background()
	action := Action{Type: "update_config"}

	baseline := g.CalculateConfidence(ctx, action, nil)
	for i := 0; i < 8; i++ {
		require.NoError(t, g.RecordDecision(ctx, action, true, ""))
	}
	assert.Greater(t, g.CalculateConfidence(ctx, action, nil), baseline)

	rejected := Action{Type: "modify_schema"}
	baseline = g.CalculateConfidence(ctx, rejected, nil)
	for i := 0; i < 8; i++ {
		require.NoError(t, g.RecordDecision(ctx, rejected, false, ""))
	}
	assert.Less(t, g.CalculateConfidence(ctx, rejected, nil), baseline)
}

func TestLearnedConfidence_DecayFavorsRecent(t *testing.T) {
	g := newTestGate(t)
	ctx := context.Background()

	// Old approvals followed by recent rejections should land below 0.5.
	for i := 0; i < 3; i++ {
		require.NoError(t, g.RecordDecision(ctx, Action{Type: "custom_action"}, true, ""))
	}
	for i := 0; i < 3; i++ {
		require.NoError(t, g.RecordDecision(ctx, Action{Type: "custom_action"}, false, ""))
	}
	assert.Less(t, g.GetLearnedConfidence(ctx, "custom_action"), 0.5)
}

func TestGetStats(t *testing.T) {
	g := newTestGate(t)
	ctx := context.Background()

	require.NoError(t, g.RecordDecision(ctx, Action{Type: "update_config"}, true, ""))
	require.NoError(t, g.RecordDecision(ctx, Action{Type: "delete_branch"}, false, ""))
	require.NoError(t, g.RecordDecision(ctx, Action{Type: "update_config"}, true, ""))

	stats, err := g.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{TotalDecisions: 3, Approvals: 2, Rejections: 1}, stats)
}

type downStore struct{ store.Store }

func (downStore) Append(ctx context.Context, rec store.Record) error {
	return errors.New("backend down")
}

func (downStore) Query(ctx context.Context, f store.Filter) ([]store.Record, error) {
	return nil, errors.New("backend down")
}

func TestGate_DegradedStore(t *testing.T) {
	g := NewGate(downStore{}, DefaultConfig(), zap.NewNop(), nil)
	ctx := context.Background()

	// Critical actions still pause.
	paused, reason := g.ShouldPause(ctx, Action{Type: "database_drop"}, nil)
	assert.True(t, paused)
	assert.Contains(t, reason, "database_drop")

	// Safe actions still pass; the gate never hard-fails the caller.
	paused, _ = g.ShouldPause(ctx, Action{Type: "read_file"}, nil)
	assert.False(t, paused)

	// Recording degrades to a logged warning.
	assert.NoError(t, g.RecordDecision(ctx, Action{Type: "update_config"}, true, ""))
}

func TestShouldPause_PrecedenceOrder(t *testing.T) {
	g := newTestGate(t)
	ctx := context.Background()

	// A critical action with a bulk target list reports the critical
	// reason: rule 1 wins.
	targets := make([]string, 10)
	for i := range targets {
		targets[i] = fmt.Sprintf("db-%d", i)
	}
	_, reason := g.ShouldPause(ctx, Action{Type: "database_drop", Targets: targets}, nil)
	assert.Contains(t, reason, "always requires confirmation")
	assert.NotContains(t, reason, "bulk")

	// A destructive bulk action reports the bulk reason before the
	// confidence rule could fire.
	_, reason = g.ShouldPause(ctx, Action{Type: "delete_branch", Targets: targets}, nil)
	assert.Contains(t, reason, "10")
	assert.NotContains(t, reason, "confidence")
}
