// Package hitl gates risky agent-initiated actions behind a learned,
// confidence-based human-confirmation step.
//
// A candidate action is classified into a coarse risk category, scored
// with a confidence in [0,1] blending a static prior, the historical
// approve/reject ratio for its type, and context adjustments, and then
// run through a fixed-precedence rule chain to decide whether a human
// must confirm.
//
// Classification and the static priors never touch the learning store, so
// a store outage degrades the gate to static behavior: critical actions
// still always pause, and the caller never sees a hard failure.
package hitl

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/hiveflow/hiveflow/internal/metrics"
	"github.com/hiveflow/hiveflow/store"
	"github.com/hiveflow/hiveflow/types"
)

// KindActionDecision is the record kind resolved decisions are stored under.
const KindActionDecision = "action_decision"

// Action is one candidate side-effecting action to be checked.
type Action struct {
	Type        string         `json:"type"`
	Target      string         `json:"target,omitempty"`
	Environment string         `json:"environment,omitempty"`
	Targets     []string       `json:"targets,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Config holds the gate tuning knobs.
type Config struct {
	// PauseThreshold is the confidence floor below which actions pause.
	PauseThreshold float64 `json:"pause_threshold" yaml:"pause_threshold"`

	// BulkThreshold is the target-list size at which bulk actions
	// always pause.
	BulkThreshold int `json:"bulk_threshold" yaml:"bulk_threshold"`

	// RateLimit / RateWindow bound how many identical-type actions may
	// pass unpaused in a short window.
	RateLimit  int           `json:"rate_limit" yaml:"rate_limit"`
	RateWindow time.Duration `json:"rate_window" yaml:"rate_window"`

	// HistoryWindow is the trailing decision count feeding learned
	// confidence.
	HistoryWindow int `json:"history_window" yaml:"history_window"`

	// DecayFactor down-weights older decisions so learned confidence
	// favors recent dynamics.
	DecayFactor float64 `json:"decay_factor" yaml:"decay_factor"`
}

// DefaultConfig returns the default gate configuration.
func DefaultConfig() Config {
	return Config{
		PauseThreshold: 0.6,
		BulkThreshold:  5,
		RateLimit:      5,
		RateWindow:     time.Minute,
		HistoryWindow:  50,
		DecayFactor:    0.9,
	}
}

// Gate is the adaptive human-in-the-loop confirmation gate.
type Gate struct {
	store   store.Store
	config  Config
	logger  *zap.Logger
	metrics *metrics.Collector

	mu       sync.Mutex
	limiters map[string]*rate.Limiter // per action type
}

// NewGate creates a gate over the given learning store.
func NewGate(s store.Store, config Config, logger *zap.Logger, collector *metrics.Collector) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultConfig()
	if config.PauseThreshold <= 0 {
		config.PauseThreshold = def.PauseThreshold
	}
	if config.BulkThreshold <= 0 {
		config.BulkThreshold = def.BulkThreshold
	}
	if config.RateLimit <= 0 {
		config.RateLimit = def.RateLimit
	}
	if config.RateWindow <= 0 {
		config.RateWindow = def.RateWindow
	}
	if config.HistoryWindow <= 0 {
		config.HistoryWindow = def.HistoryWindow
	}
	if config.DecayFactor <= 0 || config.DecayFactor > 1 {
		config.DecayFactor = def.DecayFactor
	}
	return &Gate{
		store:    s,
		config:   config,
		logger:   logger.With(zap.String("component", "hitl_gate")),
		metrics:  collector,
		limiters: make(map[string]*rate.Limiter),
	}
}

// ShouldPause decides whether a human must confirm the action before it
// proceeds. Rules are evaluated in fixed precedence; later rules are not
// evaluated once an earlier one forces a pause.
func (g *Gate) ShouldPause(ctx context.Context, action Action, extra map[string]any) (bool, string) {
	category := ClassifyAction(action)

	paused, reason := g.decide(ctx, action, extra, category)
	g.metrics.PauseDecision(string(category), paused)
	if paused {
		g.logger.Info("pausing for confirmation",
			zap.String("action_type", action.Type),
			zap.String("category", string(category)),
			zap.String("reason", reason),
		)
	}
	return paused, reason
}

func (g *Gate) decide(ctx context.Context, action Action, extra map[string]any, category Category) (bool, string) {
	// 1. Critical actions pause unconditionally, confidence is not
	// consulted.
	if category == CategoryCritical {
		return true, fmt.Sprintf("action type %q is critical and always requires confirmation", action.Type)
	}

	// 2. Bulk actions above the threshold pause regardless of type.
	if len(action.Targets) >= g.config.BulkThreshold {
		return true, fmt.Sprintf("bulk action affects %d targets (threshold %d)", len(action.Targets), g.config.BulkThreshold)
	}

	// 3. Identical-type actions arriving faster than the short-window
	// limit pause.
	if !g.allow(action.Type) {
		return true, fmt.Sprintf("rate limit: more than %d %q actions within %s",
			g.config.RateLimit, action.Type, g.config.RateWindow)
	}

	// 4. Confidence floor.
	confidence := g.CalculateConfidence(ctx, action, extra)
	if confidence < g.config.PauseThreshold {
		return true, fmt.Sprintf("confidence %.2f below threshold %.2f", confidence, g.config.PauseThreshold)
	}
	return false, fmt.Sprintf("confidence %.2f meets threshold %.2f", confidence, g.config.PauseThreshold)
}

// allow consumes one slot from the per-type rate limiter.
func (g *Gate) allow(actionType string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	limiter, ok := g.limiters[actionType]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(g.config.RateWindow/time.Duration(g.config.RateLimit)), g.config.RateLimit)
		g.limiters[actionType] = limiter
	}
	return limiter.Allow()
}

// RecordDecision appends a resolved human decision for the action. The
// stored history feeds future learned confidence for the action's type.
func (g *Gate) RecordDecision(ctx context.Context, action Action, approved bool, feedback string) error {
	record := types.ActionRecord{
		ID:          uuid.NewString(),
		ActionType:  action.Type,
		Target:      action.Target,
		Environment: action.Environment,
		Targets:     action.Targets,
		Approved:    &approved,
		Feedback:    feedback,
		Timestamp:   time.Now().UTC(),
	}

	rec, err := store.NewRecord(KindActionDecision, action.Type, record)
	if err != nil {
		return err
	}
	if err := g.store.Append(ctx, rec); err != nil {
		// Learning is best effort: losing one decision must not fail
		// the confirmation flow that produced it.
		g.logger.Warn("learning store unavailable, decision not recorded",
			zap.String("action_type", action.Type), zap.Error(err))
		return nil
	}
	return nil
}

// Stats is the read-only decision aggregate.
type Stats struct {
	TotalDecisions int `json:"total_decisions"`
	Approvals      int `json:"approvals"`
	Rejections     int `json:"rejections"`
}

// GetStats aggregates all recorded decisions.
func (g *Gate) GetStats(ctx context.Context) (Stats, error) {
	recs, err := g.store.Query(ctx, store.Filter{Kind: KindActionDecision})
	if err != nil {
		return Stats{}, fmt.Errorf("failed to query decisions: %w", err)
	}

	var stats Stats
	for _, rec := range recs {
		var record types.ActionRecord
		if err := rec.Decode(&record); err != nil || record.Approved == nil {
			continue
		}
		stats.TotalDecisions++
		if *record.Approved {
			stats.Approvals++
		} else {
			stats.Rejections++
		}
	}
	return stats, nil
}
