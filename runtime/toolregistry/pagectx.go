package toolregistry

import (
	"context"

	"github.com/webpilot-ai/webpilot/runtime/browser"
)

// pageCtxKey stashes the live browser.Page a tool call should act against
// inside the Go context passed to Registry.Call. The Registry stays
// process-wide and immutable (spec.md §5 "Tool Registry is immutable after
// startup"); the page is the one piece of state that's scoped to a single
// task, so it travels through ctx rather than through the Registry itself —
// grounded on runtime/agent/engine/context.go's WithWorkflowContext.
type pageCtxKey struct{}

// WithPage returns a child context carrying page for tool Execute functions
// to retrieve via PageFromContext.
func WithPage(ctx context.Context, page browser.Page) context.Context {
	return context.WithValue(ctx, pageCtxKey{}, page)
}

// PageFromContext extracts the page attached by WithPage, if any.
func PageFromContext(ctx context.Context) (browser.Page, bool) {
	p, ok := ctx.Value(pageCtxKey{}).(browser.Page)
	return p, ok
}
