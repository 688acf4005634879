// Package hiveflow provides a top-level convenience entry point for
// assembling the swarm orchestration components with minimal boilerplate.
//
// Usage:
//
//	import "github.com/hiveflow/hiveflow"
//
//	s, err := hiveflow.New(myInvoker,
//	    hiveflow.WithAgentDir("agents"),
//	    hiveflow.WithStore(st),
//	)
//	result, err := s.Orchestrator.Run(ctx, "planner", task, nil)
//
// Use this package when you want the wired graph without the service
// binary; each component can still be constructed directly from its own
// package.
package hiveflow

import (
	"go.uber.org/zap"

	"github.com/hiveflow/hiveflow/hitl"
	"github.com/hiveflow/hiveflow/prefs"
	"github.com/hiveflow/hiveflow/registry"
	"github.com/hiveflow/hiveflow/routing"
	"github.com/hiveflow/hiveflow/store"
	"github.com/hiveflow/hiveflow/swarm"
)

// Swarm is the assembled component graph.
type Swarm struct {
	Store        store.Store
	Registry     *registry.Registry
	Prefs        *prefs.Prefs
	Orchestrator *swarm.Orchestrator
	Routing      *routing.Controller
	Gate         *hitl.Gate
}

type options struct {
	agentDir string
	store    store.Store
	logger   *zap.Logger
	swarmCfg swarm.Config
	routeCfg routing.Config
	gateCfg  hitl.Config
}

// Option configures the graph created by [New].
type Option func(*options)

// WithAgentDir sets the descriptor directory scanned by the registry.
func WithAgentDir(dir string) Option {
	return func(o *options) { o.agentDir = dir }
}

// WithStore sets the learning store. Defaults to the in-memory store.
func WithStore(s store.Store) Option {
	return func(o *options) { o.store = s }
}

// WithLogger sets a custom zap logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithSwarmConfig overrides the orchestrator bounds.
func WithSwarmConfig(cfg swarm.Config) Option {
	return func(o *options) { o.swarmCfg = cfg }
}

// WithRoutingConfig overrides the routing controller configuration.
func WithRoutingConfig(cfg routing.Config) Option {
	return func(o *options) { o.routeCfg = cfg }
}

// WithGateConfig overrides the HITL gate configuration.
func WithGateConfig(cfg hitl.Config) Option {
	return func(o *options) { o.gateCfg = cfg }
}

// New assembles the full orchestration graph around the given invoker.
func New(invoker swarm.Invoker, opts ...Option) (*Swarm, error) {
	o := options{
		agentDir: "agents",
		logger:   zap.NewNop(),
		swarmCfg: swarm.DefaultConfig(),
		routeCfg: routing.DefaultConfig(),
		gateCfg:  hitl.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.store == nil {
		o.store = store.NewMemoryStore()
	}

	reg, err := registry.New(o.agentDir, o.logger)
	if err != nil {
		return nil, err
	}

	preferences := prefs.New(o.store, o.logger)
	return &Swarm{
		Store:        o.store,
		Registry:     reg,
		Prefs:        preferences,
		Orchestrator: swarm.NewOrchestrator(reg, invoker, preferences, o.swarmCfg, o.logger),
		Routing:      routing.NewController(o.store, o.routeCfg, o.logger, nil),
		Gate:         hitl.NewGate(o.store, o.gateCfg, o.logger, nil),
	}, nil
}
