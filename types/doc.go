// Package types defines the shared data records and the structured error
// type used across the hiveflow orchestration layer.
//
// Records that cross package boundaries live here: TaskOutcome is written
// by callers and consumed by the routing controller, ActionRecord is
// written by the HITL gate and consumed by its learned-confidence
// computation, HandoffEvent is the wire shape of the append-only event log.
package types
