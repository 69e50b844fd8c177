// Package toolregistry resolves tool names to executable operations and
// enforces their argument schemas (spec.md §4.6 "Tool Registry"). The
// registry is immutable after startup and process-wide (spec.md §5
// "Shared-resource policy"): callers register every tool once, then share
// the Registry read-only across concurrent tasks.
package toolregistry

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/webpilot-ai/webpilot/runtime/toolerrors"
	"github.com/webpilot-ai/webpilot/runtime/tools"
)

// Registry resolves tools.Ident to a tools.Spec and executes calls against
// it, converting panics and argument-schema violations into structured
// results instead of propagating them to the caller.
type Registry struct {
	mu    sync.RWMutex
	specs map[tools.Ident]*tools.Spec
	// closed prevents registration once Close has been called, matching
	// the teacher's registrationClosed guard against registering handlers
	// on a running system (runtime/agent/runtime/runtime.go).
	closed bool
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{specs: make(map[tools.Ident]*tools.Spec)}
}

// Register adds spec to the registry. It panics if called after Close,
// or if the name is already
// registered — both are configuration errors that should fail at process
// startup, not at task runtime (spec.md §7 "ConfigurationError").
func (r *Registry) Register(spec *tools.Spec) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		panic(fmt.Sprintf("toolregistry: Register(%q) called after Close", spec.Name))
	}
	if _, exists := r.specs[spec.Name]; exists {
		panic(fmt.Sprintf("toolregistry: tool %q already registered", spec.Name))
	}
	r.specs[spec.Name] = spec
}

// Spec returns the registered spec for name, if any.
func (r *Registry) Spec(name tools.Ident) (*tools.Spec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.specs[name]
	return s, ok
}

// Names returns every registered tool name, sorted.
func (r *Registry) Names() []tools.Ident {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]tools.Ident, 0, len(r.specs))
	for n := range r.specs {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Invocation is the result of a Call, carrying either a result payload or
// a structured error plus any RetryHint the Registry could derive from a
// schema violation (SPEC_FULL.md "Retry-hint protocol").
type Invocation struct {
	Result    any
	Error     *toolerrors.ToolError
	RetryHint *RetryHint
}

// Call resolves name, validates args against its schema, and executes it.
// Call never panics past this boundary (spec.md §4.6 contract (ii));
// a panicking Execute implementation is recovered and converted into an
// Invocation.Error.
func (r *Registry) Call(ctx context.Context, name tools.Ident, args map[string]any) (inv Invocation) {
	spec, ok := r.Spec(name)
	if !ok {
		inv.Error = toolerrors.NewKind("unknown_tool", fmt.Sprintf("unknown tool %q", name))
		return inv
	}

	if issues, err := spec.Validate(args); err != nil {
		inv.Error = toolerrors.NewWithCause("schema validation failed", err)
		return inv
	} else if len(issues) > 0 {
		inv.Error = toolerrors.NewKind("invalid_arguments", fmt.Sprintf("invalid arguments for %q", name))
		inv.RetryHint = buildRetryHint(name, spec, issues)
		return inv
	}

	defer func() {
		if p := recover(); p != nil {
			inv.Result = nil
			inv.Error = toolerrors.NewKind("panic", fmt.Sprintf("tool %q panicked: %v", name, p))
		}
	}()

	result, err := spec.Execute(ctx, args)
	if err != nil {
		inv.Error = toolerrors.FromError(err)
		return inv
	}
	inv.Result = result
	return inv
}

// Close locks the registry against further Register calls. Callers invoke
// this once after wiring every built-in and application-specific tool,
// before the first task starts (spec.md §5 "Tool Registry is immutable
// after startup").
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
}
