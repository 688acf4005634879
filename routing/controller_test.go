package routing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"pgregory.net/rapid"

	"github.com/hiveflow/hiveflow/store"
	"github.com/hiveflow/hiveflow/types"
)

func newTestController(t *testing.T) *Controller {
	t.Helper()
	return NewController(store.NewMemoryStore(), DefaultConfig(), zap.NewNop(), nil)
}

func outcome(domain string, success, agentLoaded bool) types.TaskOutcome {
	return types.TaskOutcome{
		TaskID:      "task-" + domain,
		Timestamp:   time.Now().UTC(),
		Domain:      domain,
		Complexity:  3,
		Success:     success,
		AgentLoaded: agentLoaded,
	}
}

func TestShouldLoadAgent_DefaultThreshold(t *testing.T) {
	c := newTestController(t)
	ctx := context.Background()

	load, reason := c.ShouldLoadAgent(ctx, "general", 3)
	assert.True(t, load)
	assert.Contains(t, reason, "general")

	load, reason = c.ShouldLoadAgent(ctx, "general", 2)
	assert.False(t, load)
	assert.Contains(t, reason, "below")
}

func TestRecordOutcome_CheapPathFailuresLowerThreshold(t *testing.T) {
	c := newTestController(t)
	ctx := context.Background()

	before := c.GetThreshold(ctx, "general").CurrentThreshold
	for i := 0; i < 4; i++ {
		require.NoError(t, c.RecordOutcome(ctx, outcome("general", false, false)))
	}
	after := c.GetThreshold(ctx, "general").CurrentThreshold
	assert.Less(t, after, before)
}

func TestRecordOutcome_CheapPathSuccessesRaiseThreshold(t *testing.T) {
	c := newTestController(t)
	ctx := context.Background()

	before := c.GetThreshold(ctx, "general").CurrentThreshold
	for i := 0; i < 4; i++ {
		require.NoError(t, c.RecordOutcome(ctx, outcome("general", true, false)))
	}
	after := c.GetThreshold(ctx, "general").CurrentThreshold
	assert.Greater(t, after, before)
}

func TestRecordOutcome_ClampedAtBounds(t *testing.T) {
	c := newTestController(t)
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		require.NoError(t, c.RecordOutcome(ctx, outcome("general", false, false)))
	}
	assert.Equal(t, c.config.ThresholdMin, c.GetThreshold(ctx, "general").CurrentThreshold)

	for i := 0; i < 200; i++ {
		require.NoError(t, c.RecordOutcome(ctx, outcome("general", true, false)))
	}
	assert.Equal(t, c.config.ThresholdMax, c.GetThreshold(ctx, "general").CurrentThreshold)
}

// Monotonicity and bounds over arbitrary outcome sequences.
func TestRecordOutcome_MonotonicityProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		c := NewController(store.NewMemoryStore(), DefaultConfig(), zap.NewNop(), nil)
		ctx := context.Background()

		success := rapid.Bool().Draw(t, "success")
		n := rapid.IntRange(1, 40).Draw(t, "n")

		before := c.GetThreshold(ctx, "general").CurrentThreshold
		for i := 0; i < n; i++ {
			require.NoError(t, c.RecordOutcome(ctx, outcome("general", success, false)))
			th := c.GetThreshold(ctx, "general").CurrentThreshold
			assert.GreaterOrEqual(t, th, c.config.ThresholdMin)
			assert.LessOrEqual(t, th, c.config.ThresholdMax)
		}
		after := c.GetThreshold(ctx, "general").CurrentThreshold

		if success {
			// Successes without an agent can never lower the threshold.
			assert.GreaterOrEqual(t, after, before)
		} else {
			// Failures without an agent can never raise it.
			assert.LessOrEqual(t, after, before)
		}
	})
}

func TestResetDomain_RoundTrip(t *testing.T) {
	c := newTestController(t)
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		require.NoError(t, c.RecordOutcome(ctx, outcome("general", true, false)))
	}
	require.NotEqual(t, float64(c.config.BaseThreshold), c.GetThreshold(ctx, "general").CurrentThreshold)

	c.ResetDomain(ctx, "general")
	assert.Equal(t, float64(c.config.BaseThreshold), c.GetThreshold(ctx, "general").CurrentThreshold)
}

func TestGetDomainStats(t *testing.T) {
	c := newTestController(t)
	ctx := context.Background()

	require.NoError(t, c.RecordOutcome(ctx, outcome("general", true, false)))
	require.NoError(t, c.RecordOutcome(ctx, outcome("general", false, false)))

	stats := c.GetDomainStats(ctx, "general")
	assert.Equal(t, "general", stats.Domain)
	assert.Equal(t, 2, stats.TotalOutcomes)
	assert.Equal(t, 2, stats.WindowSize)
	assert.InDelta(t, 0.5, stats.SuccessRate, 1e-9)
}

func TestThreshold_RehydratedFromStore(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()

	c1 := NewController(s, DefaultConfig(), zap.NewNop(), nil)
	for i := 0; i < 4; i++ {
		require.NoError(t, c1.RecordOutcome(ctx, outcome("general", false, false)))
	}
	persisted := c1.GetThreshold(ctx, "general").CurrentThreshold

	// A fresh controller over the same store picks up the snapshot.
	c2 := NewController(s, DefaultConfig(), zap.NewNop(), nil)
	assert.Equal(t, persisted, c2.GetThreshold(ctx, "general").CurrentThreshold)
}

type downStore struct{ store.Store }

func (downStore) Append(ctx context.Context, rec store.Record) error {
	return errors.New("backend down")
}

func (downStore) Latest(ctx context.Context, kind, key string) (store.Record, error) {
	return store.Record{}, errors.New("backend down")
}

func TestController_DegradedStore(t *testing.T) {
	c := NewController(downStore{}, DefaultConfig(), zap.NewNop(), nil)
	ctx := context.Background()

	// Decisions still work from the base threshold.
	load, _ := c.ShouldLoadAgent(ctx, "general", 3)
	assert.True(t, load)

	// Recording never propagates a store failure.
	require.NoError(t, c.RecordOutcome(ctx, outcome("general", false, false)))
	assert.Less(t, c.GetThreshold(ctx, "general").CurrentThreshold, float64(c.config.BaseThreshold))
}
