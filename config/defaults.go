package config

import (
	"time"

	"github.com/hiveflow/hiveflow/hitl"
	"github.com/hiveflow/hiveflow/routing"
	"github.com/hiveflow/hiveflow/store"
	"github.com/hiveflow/hiveflow/swarm"
)

// Default returns the default configuration.
func Default() *Config {
	swarmDefaults := swarm.DefaultConfig()
	routingDefaults := routing.DefaultConfig()
	hitlDefaults := hitl.DefaultConfig()

	return &Config{
		Server: ServerConfig{
			HTTPPort:        8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			MetricsEnabled:  true,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Registry: RegistryConfig{
			Dir: "agents",
		},
		Swarm: SwarmConfig{
			MaxHandoffs:      swarmDefaults.MaxHandoffs,
			RepeatTolerance:  swarmDefaults.RepeatTolerance,
			SessionDir:       "sessions",
			SessionRetention: 24 * time.Hour,
			EventLogPath:     "handoff_events.log",
			InvokerTimeout:   5 * time.Minute,
		},
		Routing: RoutingConfig{
			BaseThreshold: routingDefaults.BaseThreshold,
			ThresholdMin:  routingDefaults.ThresholdMin,
			ThresholdMax:  routingDefaults.ThresholdMax,
			Window:        routingDefaults.Window,
			Step:          routingDefaults.Step,
		},
		HITL: HITLConfig{
			PauseThreshold: hitlDefaults.PauseThreshold,
			BulkThreshold:  hitlDefaults.BulkThreshold,
			RateLimit:      hitlDefaults.RateLimit,
			RateWindow:     hitlDefaults.RateWindow,
			HistoryWindow:  hitlDefaults.HistoryWindow,
			DecayFactor:    hitlDefaults.DecayFactor,
			Environment:    "development",
		},
		Store: store.DefaultStoreConfig(),
	}
}
