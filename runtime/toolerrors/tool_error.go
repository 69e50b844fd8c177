// Package toolerrors provides a structured error type for tool-boundary
// failures. ToolError preserves causal chains and supports errors.Is/As
// while remaining trivial to serialize into a tool result's {error: ...}
// field.
package toolerrors

import (
	"errors"
	"fmt"
)

// ToolError represents a structured tool failure that preserves a
// human-readable message and causal context while still implementing the
// standard error interface. Tool errors nest via Cause so retries and
// fallback paths keep the full diagnostic chain.
type ToolError struct {
	// Message is the human-readable summary of the failure.
	Message string
	// Kind classifies the failure for callers that branch on it (e.g. the
	// Task Runner's stall detector groups by Kind+Message).
	Kind string
	// Cause links to the underlying tool error, enabling error chains with
	// errors.Is/As.
	Cause *ToolError
}

// New constructs a ToolError with the given message and no cause.
func New(message string) *ToolError {
	if message == "" {
		message = "tool error"
	}
	return &ToolError{Message: message}
}

// NewKind constructs a ToolError with an explicit classification kind.
func NewKind(kind, message string) *ToolError {
	e := New(message)
	e.Kind = kind
	return e
}

// NewWithCause constructs a ToolError that wraps an underlying error. The
// cause is converted into a ToolError chain so error metadata survives
// serialization while still supporting errors.Is/As through Unwrap.
func NewWithCause(message string, cause error) *ToolError {
	if message == "" && cause != nil {
		message = cause.Error()
	}
	return &ToolError{
		Message: message,
		Cause:   FromError(cause),
	}
}

// FromError converts an arbitrary error into a ToolError chain, reusing an
// existing ToolError if one is already present anywhere in the chain.
func FromError(err error) *ToolError {
	if err == nil {
		return nil
	}
	var te *ToolError
	if errors.As(err, &te) {
		return te
	}
	return &ToolError{
		Message: err.Error(),
		Cause:   FromError(errors.Unwrap(err)),
	}
}

// Errorf formats according to a format specifier and returns the result as
// a ToolError.
func Errorf(format string, args ...any) *ToolError {
	return New(fmt.Sprintf(format, args...))
}

// Error implements the error interface.
func (e *ToolError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

// Unwrap returns the underlying tool error to support errors.Is/As.
func (e *ToolError) Unwrap() error {
	if e == nil || e.Cause == nil {
		return nil
	}
	return e.Cause
}

// Signature returns a short, stable string combining Kind and Message,
// suitable for the Task Runner's stall-detection window (spec.md §4.1,
// "rolling window of the last 3 (tool_name, error_signature) pairs").
func (e *ToolError) Signature() string {
	if e == nil {
		return ""
	}
	if e.Kind == "" {
		return e.Message
	}
	return e.Kind + ": " + e.Message
}
