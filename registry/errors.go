package registry

import (
	"fmt"
	"strings"
)

// AgentNotFoundError reports a lookup for an unknown agent, naming the
// closest available candidates to aid debugging.
type AgentNotFoundError struct {
	Name       string
	Candidates []string
}

// Error implements the error interface.
func (e *AgentNotFoundError) Error() string {
	if len(e.Candidates) == 0 {
		return fmt.Sprintf("agent %q not found (registry is empty)", e.Name)
	}
	return fmt.Sprintf("agent %q not found; available agents include: %s",
		e.Name, strings.Join(e.Candidates, ", "))
}
