// Package routing decides, per problem domain, whether loading a
// specialized agent is worth the overhead.
//
// Each domain carries an adaptive complexity threshold: a task is routed
// to an agent only when its complexity meets the threshold. Recorded task
// outcomes nudge the threshold with a small bounded linear step — the
// cheap path failing lowers it (load agents more readily), the cheap path
// sufficing raises it (load agents less readily) — always clamped to
// [ThresholdMin, ThresholdMax].
package routing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hiveflow/hiveflow/internal/metrics"
	"github.com/hiveflow/hiveflow/store"
	"github.com/hiveflow/hiveflow/types"
)

// Record kinds written by the controller.
const (
	KindTaskOutcome      = "task_outcome"
	KindRoutingThreshold = "routing_threshold"
)

// Config holds the routing controller tuning knobs.
type Config struct {
	// BaseThreshold is the complexity floor new domains start at.
	BaseThreshold int `json:"base_threshold" yaml:"base_threshold"`

	// ThresholdMin and ThresholdMax clamp every adjustment.
	ThresholdMin float64 `json:"threshold_min" yaml:"threshold_min"`
	ThresholdMax float64 `json:"threshold_max" yaml:"threshold_max"`

	// Window is the trailing outcome count used for the success rate.
	Window int `json:"window" yaml:"window"`

	// Step is the bounded linear adjustment applied per recorded outcome.
	Step float64 `json:"step" yaml:"step"`
}

// DefaultConfig returns the default routing configuration.
func DefaultConfig() Config {
	return Config{
		BaseThreshold: 3,
		ThresholdMin:  1,
		ThresholdMax:  10,
		Window:        10,
		Step:          0.25,
	}
}

// Threshold is one domain's adaptive routing state. Created lazily on
// first query, never deleted, only reset.
type Threshold struct {
	Domain           string    `json:"domain"`
	BaseThreshold    int       `json:"base_threshold"`
	CurrentThreshold float64   `json:"current_threshold"`
	SuccessRate      float64   `json:"success_rate"`
	TotalOutcomes    int       `json:"total_outcomes"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Controller is the adaptive routing controller.
//
// The store is the system of record for outcomes and threshold snapshots;
// a controller keeps a working copy in memory so a degraded store never
// propagates an error upward — decisions fall back to in-memory (or base)
// thresholds.
type Controller struct {
	store   store.Store
	config  Config
	logger  *zap.Logger
	metrics *metrics.Collector

	mu         sync.Mutex
	thresholds map[string]*Threshold
	recent     map[string][]types.TaskOutcome // trailing window per domain
}

// NewController creates a routing controller.
func NewController(s store.Store, config Config, logger *zap.Logger, collector *metrics.Collector) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Window <= 0 {
		config.Window = DefaultConfig().Window
	}
	if config.Step <= 0 {
		config.Step = DefaultConfig().Step
	}
	return &Controller{
		store:      s,
		config:     config,
		logger:     logger.With(zap.String("component", "routing_controller")),
		metrics:    collector,
		thresholds: make(map[string]*Threshold),
		recent:     make(map[string][]types.TaskOutcome),
	}
}

// ShouldLoadAgent reports whether a specialized agent is warranted for a
// task of the given complexity in the given domain.
func (c *Controller) ShouldLoadAgent(ctx context.Context, domain string, complexity int) (bool, string) {
	c.mu.Lock()
	th := c.thresholdLocked(ctx, domain)
	current := th.CurrentThreshold
	c.mu.Unlock()

	load := float64(complexity) >= current
	c.metrics.RoutingDecision(domain, load)

	if load {
		return true, fmt.Sprintf("complexity %d meets threshold %.2f for domain %q", complexity, current, domain)
	}
	return false, fmt.Sprintf("complexity %d below threshold %.2f for domain %q", complexity, current, domain)
}

// RecordOutcome appends a task outcome and adjusts the domain threshold.
// Store failures degrade to in-memory adaptation and are never returned
// to the caller as fatal.
func (c *Controller) RecordOutcome(ctx context.Context, outcome types.TaskOutcome) error {
	if outcome.Timestamp.IsZero() {
		outcome.Timestamp = time.Now().UTC()
	}

	if rec, err := store.NewRecord(KindTaskOutcome, outcome.Domain, outcome); err == nil {
		if err := c.store.Append(ctx, rec); err != nil {
			c.logger.Warn("learning store unavailable, adapting in memory only",
				zap.String("domain", outcome.Domain), zap.Error(err))
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	window := append(c.recent[outcome.Domain], outcome)
	if len(window) > c.config.Window {
		window = window[len(window)-c.config.Window:]
	}
	c.recent[outcome.Domain] = window

	th := c.thresholdLocked(ctx, outcome.Domain)
	th.TotalOutcomes++
	th.SuccessRate = successRate(window)
	th.CurrentThreshold = clamp(th.CurrentThreshold+c.stepFor(outcome), c.config.ThresholdMin, c.config.ThresholdMax)
	th.UpdatedAt = time.Now().UTC()

	c.metrics.SetRoutingThreshold(outcome.Domain, th.CurrentThreshold)
	c.persistLocked(ctx, th)

	c.logger.Debug("recorded outcome",
		zap.String("domain", outcome.Domain),
		zap.Bool("success", outcome.Success),
		zap.Bool("agent_loaded", outcome.AgentLoaded),
		zap.Float64("current_threshold", th.CurrentThreshold),
	)
	return nil
}

// stepFor returns the signed threshold adjustment for one outcome.
//
// Direction contract: the cheap path (no agent) failing moves the
// threshold down so agents load more readily; the cheap path sufficing
// moves it up. An agent-loaded outcome moves the opposite way: a success
// confirms the agent was worth loading, a failure suggests it was not.
func (c *Controller) stepFor(outcome types.TaskOutcome) float64 {
	switch {
	case !outcome.AgentLoaded && !outcome.Success:
		return -c.config.Step
	case !outcome.AgentLoaded && outcome.Success:
		return c.config.Step
	case outcome.AgentLoaded && outcome.Success:
		return -c.config.Step
	default: // agent loaded yet the task failed
		return c.config.Step
	}
}

// GetThreshold returns a copy of the domain's routing threshold, creating
// it at base if unseen.
func (c *Controller) GetThreshold(ctx context.Context, domain string) Threshold {
	c.mu.Lock()
	defer c.mu.Unlock()
	return *c.thresholdLocked(ctx, domain)
}

// DomainStats is the read-only report for one domain.
type DomainStats struct {
	Threshold
	WindowSize int `json:"window_size"`
}

// GetDomainStats returns the current state of one domain.
func (c *Controller) GetDomainStats(ctx context.Context, domain string) DomainStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return DomainStats{
		Threshold:  *c.thresholdLocked(ctx, domain),
		WindowSize: len(c.recent[domain]),
	}
}

// ResetDomain returns a domain's threshold to its base. This is the only
// path back to BaseThreshold.
func (c *Controller) ResetDomain(ctx context.Context, domain string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	th := c.thresholdLocked(ctx, domain)
	th.CurrentThreshold = float64(th.BaseThreshold)
	th.SuccessRate = 0
	th.UpdatedAt = time.Now().UTC()
	c.recent[domain] = nil

	c.metrics.SetRoutingThreshold(domain, th.CurrentThreshold)
	c.persistLocked(ctx, th)
	c.logger.Info("reset domain threshold", zap.String("domain", domain))
}

// thresholdLocked returns the domain's threshold, rehydrating the last
// persisted snapshot or creating one at base. Caller holds c.mu.
func (c *Controller) thresholdLocked(ctx context.Context, domain string) *Threshold {
	if th, ok := c.thresholds[domain]; ok {
		return th
	}

	th := &Threshold{
		Domain:           domain,
		BaseThreshold:    c.config.BaseThreshold,
		CurrentThreshold: float64(c.config.BaseThreshold),
		UpdatedAt:        time.Now().UTC(),
	}
	if rec, err := c.store.Latest(ctx, KindRoutingThreshold, domain); err == nil {
		var snapshot Threshold
		if decodeErr := rec.Decode(&snapshot); decodeErr == nil {
			snapshot.CurrentThreshold = clamp(snapshot.CurrentThreshold, c.config.ThresholdMin, c.config.ThresholdMax)
			*th = snapshot
		}
	} else if err != store.ErrNotFound {
		c.logger.Warn("learning store unavailable, starting domain at base threshold",
			zap.String("domain", domain), zap.Error(err))
	}

	c.thresholds[domain] = th
	return th
}

// persistLocked snapshots a threshold to the store, best effort.
func (c *Controller) persistLocked(ctx context.Context, th *Threshold) {
	rec, err := store.NewRecord(KindRoutingThreshold, th.Domain, th)
	if err != nil {
		return
	}
	if err := c.store.Append(ctx, rec); err != nil {
		c.logger.Warn("failed to persist threshold snapshot",
			zap.String("domain", th.Domain), zap.Error(err))
	}
}

func successRate(window []types.TaskOutcome) float64 {
	if len(window) == 0 {
		return 0
	}
	succeeded := 0
	for _, o := range window {
		if o.Success {
			succeeded++
		}
	}
	return float64(succeeded) / float64(len(window))
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
