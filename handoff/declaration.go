// Package handoff extracts structured transfer-of-control requests from
// otherwise free-form agent output.
//
// The protocol is a labeled block inside the text:
//
//	HANDOFF DECLARATION:
//	To: security
//	Reason: needs a deep audit
//	Context:
//	  - Work completed: initial scan
//	  - Key data: {"endpoints": 14}
//
// Only To: is strictly required. Parsing is tolerant and never fails the
// caller: a missing or malformed block simply means the agent's output is
// final.
package handoff

import "time"

// HeaderToken opens a declaration block. Case-sensitive.
const HeaderToken = "HANDOFF DECLARATION:"

// KeyDataKey is the context key whose value is parsed as inline JSON when
// well-formed.
const KeyDataKey = "Key data"

// Declaration is one parsed transfer-of-control request. Consumed
// immediately by the orchestrator; never persisted.
type Declaration struct {
	ToAgent   string         `json:"to_agent"`
	Reason    string         `json:"reason,omitempty"`
	Context   map[string]any `json:"context,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Status tags a parse result so failure modes are enumerable instead of
// buried in control flow.
type Status string

const (
	// StatusOK means a well-formed declaration was extracted.
	StatusOK Status = "ok"
	// StatusAbsent means the output carries no header token.
	StatusAbsent Status = "absent"
	// StatusMalformed means a header was present but no block was
	// well-formed (e.g. missing To:).
	StatusMalformed Status = "malformed"
)

// Result is the tagged outcome of parsing one agent output.
type Result struct {
	Status      Status
	Declaration *Declaration // set only when Status is StatusOK
	Reason      string       // diagnostic, set when Status is StatusMalformed
}
