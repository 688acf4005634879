// Package swarm drives the bounded multi-agent execution loop.
//
// A run starts at one agent and follows parsed handoff declarations from
// agent to agent, carrying an additively merged context, until an agent
// produces terminal output, the cycle guard trips, or the hard handoff
// cap is reached. The loop is a plain synchronous iteration: each hop
// fully completes before the next begins, and the cap is the only
// cancellation mechanism.
package swarm

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/hiveflow/hiveflow/eventlog"
	"github.com/hiveflow/hiveflow/handoff"
	"github.com/hiveflow/hiveflow/internal/metrics"
	"github.com/hiveflow/hiveflow/registry"
	"github.com/hiveflow/hiveflow/types"
)

// State is the execution state machine position.
type State string

const (
	StateIdle     State = "idle"
	StateRunning  State = "running"
	StateComplete State = "complete"
	StateAborted  State = "aborted"
)

// Invoker executes one agent prompt and returns the raw output. This is
// the external collaborator boundary: the orchestrator never talks to a
// model directly.
type Invoker interface {
	Invoke(ctx context.Context, agentName, prompt string) (string, error)
}

// FlagSource reports the handoff feature flag. A nil FlagSource reads as
// disabled, the safe rollout posture.
type FlagSource interface {
	HandoffsEnabled(ctx context.Context) bool
}

// Config holds the orchestrator bounds.
type Config struct {
	// MaxHandoffs is the hard cap on accepted handoffs per execution.
	MaxHandoffs int `json:"max_handoffs" yaml:"max_handoffs"`

	// RepeatTolerance is how many times a directed agent pair (or its
	// back-edge) may be walked before the cycle guard completes the
	// execution.
	RepeatTolerance int `json:"repeat_tolerance" yaml:"repeat_tolerance"`
}

// DefaultConfig returns the default orchestrator bounds.
func DefaultConfig() Config {
	return Config{
		MaxHandoffs:     10,
		RepeatTolerance: 1,
	}
}

// HandoffHistoryEntry records one accepted handoff.
type HandoffHistoryEntry struct {
	FromAgent   string    `json:"from_agent"`
	ToAgent     string    `json:"to_agent"`
	Reason      string    `json:"reason,omitempty"`
	ContextSize int       `json:"context_size"`
	Timestamp   time.Time `json:"timestamp"`
}

// Result is a finished execution.
type Result struct {
	ExecutionID string                `json:"execution_id"`
	State       State                 `json:"state"`
	FinalAgent  string                `json:"final_agent"`
	FinalOutput string                `json:"final_output"`
	Chain       []HandoffHistoryEntry `json:"chain,omitempty"`
	Context     map[string]any        `json:"context,omitempty"`
	Reason      string                `json:"reason,omitempty"`
}

// Orchestrator runs bounded multi-agent executions. Mutable per-run state
// lives in the run, never on the orchestrator, so concurrent runs are
// isolated; the orchestrator only accumulates finished chains for stats.
type Orchestrator struct {
	registry *registry.Registry
	invoker  Invoker
	flags    FlagSource
	config   Config
	logger   *zap.Logger
	tracer   trace.Tracer

	events   *eventlog.Logger
	sessions *SessionStore
	metrics  *metrics.Collector

	mu     sync.Mutex
	chains [][]HandoffHistoryEntry
}

// NewOrchestrator creates an orchestrator.
func NewOrchestrator(reg *registry.Registry, invoker Invoker, flags FlagSource, config Config, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.MaxHandoffs <= 0 {
		config.MaxHandoffs = DefaultConfig().MaxHandoffs
	}
	if config.RepeatTolerance <= 0 {
		config.RepeatTolerance = DefaultConfig().RepeatTolerance
	}
	return &Orchestrator{
		registry: reg,
		invoker:  invoker,
		flags:    flags,
		config:   config,
		logger:   logger.With(zap.String("component", "swarm_orchestrator")),
		tracer:   otel.Tracer("hiveflow/swarm"),
	}
}

// WithEventLog attaches the append-only handoff event log.
func (o *Orchestrator) WithEventLog(l *eventlog.Logger) *Orchestrator {
	o.events = l
	return o
}

// WithSessions attaches the per-execution session artifact store.
func (o *Orchestrator) WithSessions(s *SessionStore) *Orchestrator {
	o.sessions = s
	return o
}

// WithMetrics attaches the metrics collector.
func (o *Orchestrator) WithMetrics(c *metrics.Collector) *Orchestrator {
	o.metrics = c
	return o
}

// Run executes a task starting at initialAgent and follows handoffs until
// a terminal condition. The returned Result always carries the accepted
// chain; fatal errors (unknown target, cap exceeded, failed invocation)
// additionally carry it on the error for postmortems.
func (o *Orchestrator) Run(ctx context.Context, initialAgent, task string, initialContext map[string]any) (*Result, error) {
	run := &run{
		id:         uuid.NewString(),
		current:    initialAgent,
		context:    mergeContext(nil, initialContext),
		pairCounts: make(map[pair]int),
		startedAt:  time.Now().UTC(),
	}

	o.logger.Info("starting execution",
		zap.String("execution_id", run.id),
		zap.String("initial_agent", initialAgent),
	)

	result, err := o.loop(ctx, run, task)
	if result != nil {
		o.finish(run, result.State)
	}
	return result, err
}

type pair struct{ from, to string }

// run is the per-execution mutable state.
type run struct {
	id         string
	current    string
	lastReason string
	context    map[string]any
	chain      []HandoffHistoryEntry
	pairCounts map[pair]int
	startedAt  time.Time
}

func (o *Orchestrator) loop(ctx context.Context, run *run, task string) (*Result, error) {
	for {
		o.saveSession(run, StateRunning)

		descriptor, err := o.registry.Load(run.current)
		if err != nil {
			// Handoff targets are validated before the hop, so this
			// only fires for an unknown initial agent.
			return nil, err
		}

		prompt := buildPrompt(descriptor, task, run.context, run.lastReason)

		hopCtx, span := o.tracer.Start(ctx, "swarm.hop", trace.WithAttributes(
			attribute.String("agent", run.current),
			attribute.Int("hop", len(run.chain)),
		))
		output, err := o.invoker.Invoke(hopCtx, run.current, prompt)
		span.End()
		if err != nil {
			o.logger.Error("agent invocation failed",
				zap.String("execution_id", run.id),
				zap.String("agent", run.current),
				zap.Error(err),
			)
			return o.abort(run, output), &InvocationError{Agent: run.current, Chain: run.chain, Cause: err}
		}

		parsed := handoff.Parse(output)
		switch parsed.Status {
		case handoff.StatusAbsent:
			return o.complete(run, output, "no handoff declared"), nil
		case handoff.StatusMalformed:
			// Tolerant by contract: a broken block reads as final output.
			o.logger.Debug("malformed handoff declaration treated as final",
				zap.String("execution_id", run.id),
				zap.String("agent", run.current),
				zap.String("detail", parsed.Reason),
			)
			return o.complete(run, output, "malformed handoff declaration treated as final"), nil
		}

		decl := parsed.Declaration
		o.emit(types.EventHandoffTriggered, run, decl.ToAgent, decl.Reason)

		if o.flags == nil || !o.flags.HandoffsEnabled(ctx) {
			reason := "handoff suppressed: handoffs_enabled is false"
			o.emit(types.EventHandoffSuppressed, run, decl.ToAgent, reason)
			o.logger.Info("handoff suppressed by feature flag",
				zap.String("execution_id", run.id),
				zap.String("from", run.current),
				zap.String("to", decl.ToAgent),
			)
			return o.complete(run, output, reason), nil
		}

		if !o.registry.Has(decl.ToAgent) {
			_, err := o.registry.Descriptor(decl.ToAgent)
			notFound, _ := err.(*registry.AgentNotFoundError)
			return o.abort(run, output), &TargetNotFoundError{
				NotFound:   notFound,
				FromAgent:  run.current,
				Chain:      run.chain,
				LastOutput: output,
			}
		}

		if len(run.chain) >= o.config.MaxHandoffs {
			o.emit(types.EventCapExceeded, run, decl.ToAgent, "")
			return o.abort(run, output), &MaxHandoffsError{
				Limit:      o.config.MaxHandoffs,
				Chain:      run.chain,
				LastAgent:  run.current,
				LastOutput: output,
			}
		}

		hop := pair{from: run.current, to: decl.ToAgent}
		if o.cycleGuardTripped(run, hop) {
			reason := "cycle guard: agent pair " + hop.from + "->" + hop.to + " repeated beyond tolerance"
			o.emit(types.EventCycleDetected, run, decl.ToAgent, reason)
			return o.complete(run, output, reason), nil
		}

		// Accept the handoff.
		run.pairCounts[hop]++
		run.chain = append(run.chain, HandoffHistoryEntry{
			FromAgent:   run.current,
			ToAgent:     decl.ToAgent,
			Reason:      decl.Reason,
			ContextSize: len(decl.Context),
			Timestamp:   time.Now().UTC(),
		})
		run.context = mergeContext(run.context, decl.Context)
		run.lastReason = decl.Reason

		o.emit(types.EventHandoffCompleted, run, decl.ToAgent, decl.Reason)
		o.logger.Info("handoff accepted",
			zap.String("execution_id", run.id),
			zap.String("from", run.current),
			zap.String("to", decl.ToAgent),
			zap.Int("hop", len(run.chain)),
		)

		run.current = decl.ToAgent
	}
}

// cycleGuardTripped reports whether walking hop again would repeat a
// directed pair, or the back-edge of one, beyond the tolerance. Covering
// the back-edge blocks the immediate A->B->A oscillation and its longer
// A->B->C->B cousin.
func (o *Orchestrator) cycleGuardTripped(run *run, hop pair) bool {
	if run.pairCounts[hop] >= o.config.RepeatTolerance {
		return true
	}
	reverse := pair{from: hop.to, to: hop.from}
	return run.pairCounts[reverse] >= o.config.RepeatTolerance
}

func (o *Orchestrator) complete(run *run, output, reason string) *Result {
	return &Result{
		ExecutionID: run.id,
		State:       StateComplete,
		FinalAgent:  run.current,
		FinalOutput: output,
		Chain:       run.chain,
		Context:     run.context,
		Reason:      reason,
	}
}

func (o *Orchestrator) abort(run *run, output string) *Result {
	return &Result{
		ExecutionID: run.id,
		State:       StateAborted,
		FinalAgent:  run.current,
		FinalOutput: output,
		Chain:       run.chain,
		Context:     run.context,
	}
}

// finish records the execution for stats and persists the terminal
// session state.
func (o *Orchestrator) finish(run *run, state State) {
	o.mu.Lock()
	if len(run.chain) > 0 {
		chain := make([]HandoffHistoryEntry, len(run.chain))
		copy(chain, run.chain)
		o.chains = append(o.chains, chain)
	}
	o.mu.Unlock()

	o.metrics.ExecutionFinished(string(state))
	o.saveSession(run, state)
	o.logger.Info("execution finished",
		zap.String("execution_id", run.id),
		zap.String("state", string(state)),
		zap.Int("handoffs", len(run.chain)),
	)
}

func (o *Orchestrator) saveSession(run *run, state State) {
	if o.sessions == nil {
		return
	}
	err := o.sessions.Save(Session{
		ExecutionID:  run.id,
		CurrentAgent: run.current,
		State:        state,
		Handoffs:     len(run.chain),
		StartedAt:    run.startedAt,
	})
	if err != nil {
		o.logger.Warn("failed to save session artifact",
			zap.String("execution_id", run.id), zap.Error(err))
	}
}

func (o *Orchestrator) emit(eventType types.HandoffEventType, run *run, toAgent, reason string) {
	o.metrics.HandoffEvent(string(eventType))
	if o.events == nil {
		return
	}
	o.events.Append(types.HandoffEvent{
		EventType:   eventType,
		ExecutionID: run.id,
		FromAgent:   run.current,
		ToAgent:     toAgent,
		Reason:      reason,
	})
}

// mergeContext returns a new map holding base overlaid with overlay; the
// overlay wins on conflicts. Neither input is modified.
func mergeContext(base, overlay map[string]any) map[string]any {
	merged := make(map[string]any, len(base)+len(overlay))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range overlay {
		merged[k] = v
	}
	return merged
}

// buildPrompt assembles the invocable prompt: descriptor text, the task,
// then the delimited context block.
func buildPrompt(descriptor, task string, context map[string]any, handoffReason string) string {
	var b strings.Builder
	b.WriteString(descriptor)
	if task != "" {
		b.WriteString("\n\n## Task\n")
		b.WriteString(task)
	}
	return registry.InjectContext(b.String(), context, handoffReason)
}
