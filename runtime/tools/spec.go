// Package tools defines the metadata, schemas, and execution contract
// shared by every tool the Task Runner can invoke (spec.md §3 "Tool",
// §4.6 "Tool Registry"). Concrete tool implementations and the registry
// that resolves them live in runtime/toolregistry.
package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

type (
	// ArgConstraint describes one argument's type and optionality for a
	// tool's input_schema (spec.md §3).
	ArgConstraint struct {
		// Type is the JSON-schema-ish primitive type: "string", "number",
		// "boolean", "object", "array".
		Type string
		// Required marks the argument as mandatory.
		Required bool
		// Description documents the argument for planner prompts.
		Description string
	}

	// Spec enumerates a tool's identity, argument/result schemas, and
	// execution function. Every tool in the registry is described by
	// exactly one Spec (spec.md §4.6, "Registered tools").
	Spec struct {
		// Name is the dotted tool identifier.
		Name Ident
		// Description is human-readable context surfaced in planner
		// prompts.
		Description string
		// Args enumerates the accepted/required arguments by name.
		Args map[string]ArgConstraint
		// InputSchema is the compiled JSON schema used to validate
		// arguments before Execute runs. May be nil for tools with no
		// meaningful schema beyond Args (e.g. extract.links).
		InputSchema *jsonschema.Schema
		// Execute performs the tool's side effect against the bound
		// page and returns a JSON-serializable result or a ToolError.
		// Implementations must never panic past this boundary
		// (spec.md §4.6 "never raise past the boundary").
		Execute func(ctx context.Context, args map[string]any) (any, error)
		// IdempotentTranscript marks the tool as safe to skip when an
		// identical call already succeeded earlier in the same run
		// (SPEC_FULL.md "Idempotency tagging"; grounded on
		// runtime/agent/tools/idempotency.go's IdempotencyScope).
		IdempotentTranscript bool
	}
)

// CompileSchema compiles a JSON schema document (as a Go map, the shape
// produced by encoding/json) into a *jsonschema.Schema for use as
// Spec.InputSchema.
func CompileSchema(name string, schema map[string]any) (*jsonschema.Schema, error) {
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("tools: marshal schema %q: %w", name, err)
	}
	doc, err := jsonschema.UnmarshalJSON(bytesReader(raw))
	if err != nil {
		return nil, fmt.Errorf("tools: unmarshal schema %q: %w", name, err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(name, doc); err != nil {
		return nil, fmt.Errorf("tools: add schema resource %q: %w", name, err)
	}
	compiled, err := c.Compile(name)
	if err != nil {
		return nil, fmt.Errorf("tools: compile schema %q: %w", name, err)
	}
	return compiled, nil
}

// Validate checks args against spec's InputSchema, returning a
// *FieldIssue slice describing every violation. A nil InputSchema is
// always valid.
func (s *Spec) Validate(args map[string]any) ([]*FieldIssue, error) {
	if s.InputSchema == nil {
		return nil, nil
	}
	if err := s.InputSchema.Validate(args); err != nil {
		ve, ok := err.(*jsonschema.ValidationError)
		if !ok {
			return nil, err
		}
		return issuesFromValidationError(ve), nil
	}
	return nil, nil
}
