package tools

import (
	"bytes"
	"io"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// FieldIssue represents a single validation issue surfaced from a tool's
// InputSchema. The Tool Registry attaches these to a failed call's
// RetryHint (SPEC_FULL.md "Retry-hint protocol").
type FieldIssue struct {
	// Field is the JSON-pointer-ish path of the offending argument.
	Field string
	// Constraint names the violated schema constraint: "missing_field",
	// "type", "enum", or "schema" for any other kind.
	Constraint string
	// Message is the human-readable description of the violation.
	Message string
}

func issuesFromValidationError(ve *jsonschema.ValidationError) []*FieldIssue {
	var out []*FieldIssue
	var walk func(e *jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if e == nil {
			return
		}
		field := "/"
		if len(e.InstanceLocation) > 0 {
			field = "/" + joinPath(e.InstanceLocation)
		}
		out = append(out, &FieldIssue{
			Field:      field,
			Constraint: constraintName(e),
			Message:    e.Error(),
		})
		for _, cause := range e.Causes {
			walk(cause)
		}
	}
	walk(ve)
	return out
}

func joinPath(parts []string) string {
	var b bytes.Buffer
	for i, p := range parts {
		if i > 0 {
			b.WriteByte('/')
		}
		b.WriteString(p)
	}
	return b.String()
}

// constraintName best-effort classifies a validation error by the keyword
// the underlying ErrorKind models; the library does not expose a stable
// enum, so this degrades gracefully to "schema" when unrecognized.
func constraintName(e *jsonschema.ValidationError) string {
	if e == nil || e.ErrorKind == nil {
		return "schema"
	}
	switch e.ErrorKind.(type) {
	case *jsonschema.Required:
		return "missing_field"
	case *jsonschema.Enum:
		return "enum"
	case *jsonschema.Type:
		return "type"
	default:
		return "schema"
	}
}

func bytesReader(b []byte) io.Reader { return bytes.NewReader(b) }
