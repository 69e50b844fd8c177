package toolregistry

import (
	"fmt"
	"sort"
	"strings"

	"github.com/webpilot-ai/webpilot/runtime/tools"
)

// RetryReason classifies why a tool call needs a revised PlanStep before
// retrying, so the Hierarchical Planner's repair prompt can target the
// actual problem instead of re-deriving the schema from scratch
// (SPEC_FULL.md "Retry-hint protocol"; grounded on
// toolregistry/executor.go's RetryHint construction in the teacher).
type RetryReason string

const (
	RetryReasonMissingFields    RetryReason = "missing_fields"
	RetryReasonInvalidArguments RetryReason = "invalid_arguments"
)

// RetryHint carries structured guidance attached to a failed Invocation.
type RetryHint struct {
	Reason             RetryReason
	Tool               tools.Ident
	MissingFields      []string
	ExampleInput       map[string]any
	ClarifyingQuestion string
}

func buildRetryHint(name tools.Ident, spec *tools.Spec, issues []*tools.FieldIssue) *RetryHint {
	if len(issues) == 0 {
		return nil
	}
	var fields, missing []string
	for _, is := range issues {
		if is == nil || is.Field == "" {
			continue
		}
		fields = append(fields, is.Field)
		if is.Constraint == "missing_field" {
			missing = append(missing, is.Field)
		}
	}
	if len(fields) == 0 {
		return nil
	}
	fields = uniqueSorted(fields)
	missing = uniqueSorted(missing)

	reason := RetryReasonInvalidArguments
	if len(missing) > 0 {
		reason = RetryReasonMissingFields
	}
	return &RetryHint{
		Reason:             reason,
		Tool:               name,
		MissingFields:      missing,
		ExampleInput:       exampleInput(spec),
		ClarifyingQuestion: clarifyingQuestion(name, missing, fields),
	}
}

func exampleInput(spec *tools.Spec) map[string]any {
	if spec == nil || len(spec.Args) == 0 {
		return nil
	}
	out := make(map[string]any, len(spec.Args))
	for name, c := range spec.Args {
		switch c.Type {
		case "number":
			out[name] = 0
		case "boolean":
			out[name] = false
		case "array":
			out[name] = []any{}
		case "object":
			out[name] = map[string]any{}
		default:
			out[name] = ""
		}
	}
	return out
}

func clarifyingQuestion(name tools.Ident, missing, fields []string) string {
	if len(missing) > 0 {
		return fmt.Sprintf("I need additional information to run %s. Please provide: %s.", name, strings.Join(missing, ", "))
	}
	return fmt.Sprintf("I could not run %s due to invalid arguments: %s.", name, strings.Join(fields, ", "))
}

func uniqueSorted(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
