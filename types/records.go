package types

import "time"

// TaskOutcome is the write-once record of a completed task, appended by the
// caller and consumed by the routing controller to recompute thresholds.
type TaskOutcome struct {
	TaskID          string    `json:"task_id"`
	Timestamp       time.Time `json:"timestamp"`
	Domain          string    `json:"domain"`
	Complexity      int       `json:"complexity"`
	AgentUsed       string    `json:"agent_used,omitempty"`
	AgentLoaded     bool      `json:"agent_loaded"`
	Success         bool      `json:"success"`
	QualityScore    float64   `json:"quality_score"`
	UserCorrections int       `json:"user_corrections"`
}

// ActionRecord is one resolved HITL decision: the action that was checked
// and whether a human approved it. Approved stays nil until resolved.
type ActionRecord struct {
	ID          string    `json:"id"`
	ActionType  string    `json:"action_type"`
	Target      string    `json:"target,omitempty"`
	Environment string    `json:"environment,omitempty"`
	Targets     []string  `json:"targets,omitempty"`
	Approved    *bool     `json:"approved"`
	Feedback    string    `json:"feedback,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// HandoffEventType labels one entry in the append-only handoff event log.
type HandoffEventType string

const (
	EventHandoffTriggered  HandoffEventType = "handoff_triggered"
	EventHandoffCompleted  HandoffEventType = "handoff_completed"
	EventHandoffSuppressed HandoffEventType = "handoff_suppressed"
	EventCycleDetected     HandoffEventType = "cycle_detected"
	EventCapExceeded       HandoffEventType = "cap_exceeded"
)

// HandoffEvent is the line format of the handoff event log. Used for
// monitoring only, never for control decisions.
type HandoffEvent struct {
	Timestamp   time.Time        `json:"timestamp"`
	EventType   HandoffEventType `json:"event_type"`
	ExecutionID string           `json:"execution_id,omitempty"`
	FromAgent   string           `json:"from_agent,omitempty"`
	ToAgent     string           `json:"to_agent,omitempty"`
	Reason      string           `json:"reason,omitempty"`
}
