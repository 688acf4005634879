// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector holds the orchestration-layer Prometheus metrics. A nil
// *Collector is valid and records nothing, so wiring metrics stays
// optional for callers and tests.
type Collector struct {
	handoffEvents    *prometheus.CounterVec
	executionsTotal  *prometheus.CounterVec
	pauseDecisions   *prometheus.CounterVec
	routingDecisions *prometheus.CounterVec
	routingThreshold *prometheus.GaugeVec
}

// NewCollector creates a collector registered against reg. A nil reg uses
// the default registerer.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Collector{
		handoffEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hiveflow",
			Subsystem: "swarm",
			Name:      "handoff_events_total",
			Help:      "Handoff events by type (triggered, completed, suppressed, cycle_detected, cap_exceeded)",
		}, []string{"event_type"}),

		executionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hiveflow",
			Subsystem: "swarm",
			Name:      "executions_total",
			Help:      "Finished executions by terminal state",
		}, []string{"state"}),

		pauseDecisions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hiveflow",
			Subsystem: "hitl",
			Name:      "pause_decisions_total",
			Help:      "HITL gate decisions by action category and result",
		}, []string{"category", "result"}),

		routingDecisions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hiveflow",
			Subsystem: "routing",
			Name:      "decisions_total",
			Help:      "Routing decisions by domain and whether an agent was warranted",
		}, []string{"domain", "load_agent"}),

		routingThreshold: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "hiveflow",
			Subsystem: "routing",
			Name:      "current_threshold",
			Help:      "Current adaptive complexity threshold per domain",
		}, []string{"domain"}),
	}
}

// HandoffEvent counts one handoff event.
func (c *Collector) HandoffEvent(eventType string) {
	if c == nil {
		return
	}
	c.handoffEvents.WithLabelValues(eventType).Inc()
}

// ExecutionFinished counts one finished execution.
func (c *Collector) ExecutionFinished(state string) {
	if c == nil {
		return
	}
	c.executionsTotal.WithLabelValues(state).Inc()
}

// PauseDecision counts one HITL gate decision.
func (c *Collector) PauseDecision(category string, paused bool) {
	if c == nil {
		return
	}
	result := "allowed"
	if paused {
		result = "paused"
	}
	c.pauseDecisions.WithLabelValues(category, result).Inc()
}

// RoutingDecision counts one routing decision.
func (c *Collector) RoutingDecision(domain string, loadAgent bool) {
	if c == nil {
		return
	}
	load := "false"
	if loadAgent {
		load = "true"
	}
	c.routingDecisions.WithLabelValues(domain, load).Inc()
}

// SetRoutingThreshold records a domain's current threshold.
func (c *Collector) SetRoutingThreshold(domain string, threshold float64) {
	if c == nil {
		return
	}
	c.routingThreshold.WithLabelValues(domain).Set(threshold)
}
