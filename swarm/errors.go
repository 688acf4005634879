package swarm

import (
	"fmt"

	"github.com/hiveflow/hiveflow/registry"
)

// MaxHandoffsError reports an execution whose chain reached the hard cap
// with the last agent still requesting another handoff. Fatal, not
// retried. It carries the full chain and the last raw output so a human
// can resume or diagnose without re-running the chain.
type MaxHandoffsError struct {
	Limit      int
	Chain      []HandoffHistoryEntry
	LastAgent  string
	LastOutput string
}

// Error implements the error interface.
func (e *MaxHandoffsError) Error() string {
	return fmt.Sprintf("handoff chain reached the cap of %d with agent %q still requesting a handoff",
		e.Limit, e.LastAgent)
}

// TargetNotFoundError reports a handoff declared to an agent the registry
// does not know. Fatal to the execution; the chain and last output ride
// along for diagnosis.
type TargetNotFoundError struct {
	NotFound   *registry.AgentNotFoundError
	FromAgent  string
	Chain      []HandoffHistoryEntry
	LastOutput string
}

// Error implements the error interface.
func (e *TargetNotFoundError) Error() string {
	return fmt.Sprintf("handoff from %q targets an unknown agent: %v", e.FromAgent, e.NotFound)
}

// Unwrap exposes the underlying registry error.
func (e *TargetNotFoundError) Unwrap() error {
	return e.NotFound
}

// InvocationError reports a failed agent invocation mid-chain.
type InvocationError struct {
	Agent string
	Chain []HandoffHistoryEntry
	Cause error
}

// Error implements the error interface.
func (e *InvocationError) Error() string {
	return fmt.Sprintf("invocation of agent %q failed: %v", e.Agent, e.Cause)
}

// Unwrap exposes the underlying cause.
func (e *InvocationError) Unwrap() error {
	return e.Cause
}
