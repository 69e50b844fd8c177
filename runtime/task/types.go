// Package task implements the Task Runner: the bounded plan-act-observe
// loop that bridges the Hierarchical Planner, the Tool Registry, and the
// live page (spec.md §4.1).
package task

import "fmt"

type (
	// ErrorKind classifies a terminal task failure into one of the five
	// kinds the Task Runner distinguishes at the result boundary (spec.md
	// §7 "Taxonomy").
	ErrorKind string

	// Error is a terminal task failure, returned alongside the
	// best-known-good partial Result.
	Error struct {
		Kind       ErrorKind
		Message    string
		Suggestion string
		Cause      error
	}

	// Result is run_task's public return shape (spec.md §6 "Result
	// shape").
	Result struct {
		Success     bool
		Result      any
		StepsTaken  int
		RunLogPath  string
		Screenshots []string
		Error       *Error
		Reason      string
	}
)

const (
	// ErrorConfiguration marks missing required options or an unknown
	// tool name in a registered plan. Terminal, surfaced at call site.
	ErrorConfiguration ErrorKind = "ConfigurationError"
	// ErrorExternal marks a browser crash, an unreachable LLM endpoint
	// after retries, or impossible navigation. Terminal for the task.
	ErrorExternal ErrorKind = "ExternalFailure"
	// ErrorTransient marks an individual LLM/tool timeout or a DOM query
	// race, recovered locally via retry; only escalated after the retry
	// budget is exhausted.
	ErrorTransient ErrorKind = "TransientFailure"
	// ErrorPlanner marks an unparseable LLM reply, unknown tool_name, or
	// schema-violating args, recovered locally by re-prompting with a
	// repair hint.
	ErrorPlanner ErrorKind = "PlannerFailure"
	// ErrorPartialSuccess marks a task that finished with incomplete
	// data; reported as success with an informative reason, not as a
	// terminal Error.
	ErrorPartialSuccess ErrorKind = "PartialSuccess"
)

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func newError(kind ErrorKind, message, suggestion string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Suggestion: suggestion, Cause: cause}
}
