package types

import "fmt"

// ErrorCode represents a unified error code across the orchestration layer.
type ErrorCode string

// Orchestration error codes
const (
	ErrAgentNotFound       ErrorCode = "AGENT_NOT_FOUND"
	ErrMaxHandoffsExceeded ErrorCode = "MAX_HANDOFFS_EXCEEDED"
	ErrCycleDetected       ErrorCode = "CYCLE_DETECTED"
	ErrDescriptorConflict  ErrorCode = "DESCRIPTOR_CONFLICT"
	ErrInvocationFailed    ErrorCode = "INVOCATION_FAILED"
)

// Store error codes
const (
	ErrStoreUnavailable ErrorCode = "STORE_UNAVAILABLE"
	ErrStoreClosed      ErrorCode = "STORE_CLOSED"
	ErrRecordNotFound   ErrorCode = "RECORD_NOT_FOUND"
)

// Config error codes
const (
	ErrInvalidConfig ErrorCode = "INVALID_CONFIG"
)

// Error represents a structured error with code, message, and cause.
type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Cause   error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	if e, ok := err.(*Error); ok {
		return e.Code
	}
	return ""
}
