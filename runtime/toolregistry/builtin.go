package toolregistry

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/webpilot-ai/webpilot/runtime/extract"
	"github.com/webpilot-ai/webpilot/runtime/formfill"
	"github.com/webpilot-ai/webpilot/runtime/model"
	"github.com/webpilot-ai/webpilot/runtime/pagecontext"
	"github.com/webpilot-ai/webpilot/runtime/tools"
)

// RegisterBuiltins installs the tool table spec.md §4.6 names: direct DOM
// manipulation, the per-field form filler, and the two extraction
// entrypoints. client is used for the form filler's per-field LLM
// decisions and the extractor's optional semantic validation pass; a nil
// client disables both (the extractor falls back to its statistical
// ranking alone, and form.fill fails with a "no model client configured"
// error).
func RegisterBuiltins(r *Registry, client model.Client) {
	r.Register(domNavigateSpec())
	r.Register(domClickSpec())
	r.Register(domWaitSpec())
	r.Register(domScreenshotSpec())
	r.Register(formFillSpec(client))
	r.Register(extractProductsSpec(client))
	r.Register(extractLinksSpec())
}

func domNavigateSpec() *tools.Spec {
	schema := map[string]any{
		"type":       "object",
		"properties": map[string]any{"url": map[string]any{"type": "string"}},
		"required":   []any{"url"},
	}
	compiled, err := tools.CompileSchema("dom.navigate", schema)
	if err != nil {
		panic(err)
	}
	return &tools.Spec{
		Name:        "dom.navigate",
		Description: "Navigate the current page to a URL.",
		Args:        map[string]tools.ArgConstraint{"url": {Type: "string", Required: true, Description: "destination URL"}},
		InputSchema: compiled,
		Execute: func(ctx context.Context, args map[string]any) (any, error) {
			page, ok := PageFromContext(ctx)
			if !ok {
				return nil, fmt.Errorf("dom.navigate: no page bound to context")
			}
			url, _ := args["url"].(string)
			if err := page.Goto(ctx, url); err != nil {
				return nil, fmt.Errorf("dom.navigate: %w", err)
			}
			return map[string]any{"url": page.URL()}, nil
		},
	}
}

func domClickSpec() *tools.Spec {
	schema := map[string]any{
		"type":       "object",
		"properties": map[string]any{"selector": map[string]any{"type": "string"}},
		"required":   []any{"selector"},
	}
	compiled, err := tools.CompileSchema("dom.click", schema)
	if err != nil {
		panic(err)
	}
	return &tools.Spec{
		Name:        "dom.click",
		Description: "Click the element matching a CSS selector.",
		Args:        map[string]tools.ArgConstraint{"selector": {Type: "string", Required: true, Description: "CSS selector, typically taken from interactive.buttons/links"}},
		InputSchema: compiled,
		Execute: func(ctx context.Context, args map[string]any) (any, error) {
			page, ok := PageFromContext(ctx)
			if !ok {
				return nil, fmt.Errorf("dom.click: no page bound to context")
			}
			selector, _ := args["selector"].(string)
			if err := page.Click(ctx, selector); err != nil {
				return nil, fmt.Errorf("dom.click: %w", err)
			}
			return map[string]any{"clicked": selector}, nil
		},
	}
}

func domWaitSpec() *tools.Spec {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"selector":   map[string]any{"type": "string"},
			"timeout_ms": map[string]any{"type": "number"},
		},
	}
	compiled, err := tools.CompileSchema("dom.wait", schema)
	if err != nil {
		panic(err)
	}
	return &tools.Spec{
		Name:        "dom.wait",
		Description: "Wait for a selector to appear, or a fixed duration if no selector is given.",
		Args: map[string]tools.ArgConstraint{
			"selector":   {Type: "string", Description: "optional CSS selector to wait for"},
			"timeout_ms": {Type: "number", Description: "wait/timeout duration in milliseconds, default 5000"},
		},
		InputSchema: compiled,
		Execute: func(ctx context.Context, args map[string]any) (any, error) {
			page, ok := PageFromContext(ctx)
			if !ok {
				return nil, fmt.Errorf("dom.wait: no page bound to context")
			}
			timeout := 5000
			if ms, ok := args["timeout_ms"].(float64); ok && ms > 0 {
				timeout = int(ms)
			}
			selector, _ := args["selector"].(string)
			var err error
			if selector != "" {
				err = page.WaitForSelector(ctx, selector, timeout)
			} else {
				err = page.WaitForTimeout(ctx, timeout)
			}
			if err != nil {
				return nil, fmt.Errorf("dom.wait: %w", err)
			}
			return map[string]any{"waited_ms": timeout}, nil
		},
	}
}

func domScreenshotSpec() *tools.Spec {
	schema := map[string]any{
		"type":       "object",
		"properties": map[string]any{"path": map[string]any{"type": "string"}},
		"required":   []any{"path"},
	}
	compiled, err := tools.CompileSchema("dom.screenshot", schema)
	if err != nil {
		panic(err)
	}
	return &tools.Spec{
		Name:        "dom.screenshot",
		Description: "Capture a full-page screenshot to a path.",
		Args:        map[string]tools.ArgConstraint{"path": {Type: "string", Required: true, Description: "destination file path"}},
		InputSchema: compiled,
		Execute: func(ctx context.Context, args map[string]any) (any, error) {
			page, ok := PageFromContext(ctx)
			if !ok {
				return nil, fmt.Errorf("dom.screenshot: no page bound to context")
			}
			path, _ := args["path"].(string)
			if err := page.Screenshot(ctx, path, true); err != nil {
				return nil, fmt.Errorf("dom.screenshot: %w", err)
			}
			return map[string]any{"path": path}, nil
		},
	}
}

// formFillSpec wraps formfill.Filler. args is untyped and not validated
// (an empty map is accepted and yields an instruction with no values):
// the planner's fast path supplies field
// name/value pairs directly ({"email": "a@b.com"}), while the hierarchical
// and standard planners supply {"instruction": "<natural language>"}. Both
// shapes flow into one natural-language instruction string so the filler's
// single per-field LLM decision path handles both uniformly (SPEC_FULL.md
// "one per-field filler, not a deterministic/LLM split").
func formFillSpec(client model.Client) *tools.Spec {
	return &tools.Spec{
		Name:        "form.fill",
		Description: "Fill and submit the page's form. Accepts either {instruction: \"...\"} or direct field=value pairs.",
		Args:        map[string]tools.ArgConstraint{},
		// A form already submitted earlier in the run stays submitted;
		// re-running it would just resubmit against a page that has moved
		// on (spec.md §8 idempotence property).
		IdempotentTranscript: true,
		Execute: func(ctx context.Context, args map[string]any) (any, error) {
			if client == nil {
				return nil, fmt.Errorf("form.fill: no model client configured")
			}
			page, ok := PageFromContext(ctx)
			if !ok {
				return nil, fmt.Errorf("form.fill: no page bound to context")
			}
			pc, err := pagecontext.NewCollector().Collect(ctx, page, 60000, true)
			if err != nil {
				return nil, fmt.Errorf("form.fill: capture page context: %w", err)
			}
			if len(pc.Forms) == 0 {
				return nil, fmt.Errorf("form.fill: no form found on the current page")
			}
			form := largestForm(pc.Forms)

			instruction := instructionFromArgs(args)
			filler := formfill.New(client)
			result, err := filler.Fill(ctx, page, instruction, form.Fields)
			if err != nil {
				return nil, fmt.Errorf("form.fill: %w", err)
			}
			return result, nil
		},
	}
}

func largestForm(forms []pagecontext.FormOutline) pagecontext.FormOutline {
	best := forms[0]
	for _, f := range forms[1:] {
		if len(f.Fields) > len(best.Fields) {
			best = f
		}
	}
	return best
}

func instructionFromArgs(args map[string]any) string {
	if v, ok := args["instruction"].(string); ok && v != "" {
		return v
	}
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var parts []string
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, args[k]))
	}
	return "Fill the form using these exact values: " + strings.Join(parts, ", ")
}

func extractProductsSpec(client model.Client) *tools.Spec {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"instruction": map[string]any{"type": "string"},
		},
	}
	compiled, err := tools.CompileSchema("extract.products", schema)
	if err != nil {
		panic(err)
	}
	detector := extract.NewDetector()
	if client != nil {
		detector = detector.WithValidator(client)
	}
	return &tools.Spec{
		Name:        "extract.products",
		Description: "Locate the repeated product/listing container on the page and extract name/price/url/image per item, without any site-specific selector.",
		Args:        map[string]tools.ArgConstraint{"instruction": {Type: "string", Description: "original task instruction, used to derive a price filter"}},
		InputSchema: compiled,
		Execute: func(ctx context.Context, args map[string]any) (any, error) {
			page, ok := PageFromContext(ctx)
			if !ok {
				return nil, fmt.Errorf("extract.products: no page bound to context")
			}
			instruction, _ := args["instruction"].(string)
			filter := extract.ParseFilter(instruction)
			result, err := detector.Detect(ctx, page, filter)
			if err != nil {
				return nil, fmt.Errorf("extract.products: %w", err)
			}
			return result, nil
		},
	}
}

func extractLinksSpec() *tools.Spec {
	return &tools.Spec{
		Name:        "extract.links",
		Description: "Collect the page's visible links (text, href), for article-listing and navigation tasks.",
		Args:        map[string]tools.ArgConstraint{},
		Execute: func(ctx context.Context, args map[string]any) (any, error) {
			page, ok := PageFromContext(ctx)
			if !ok {
				return nil, fmt.Errorf("extract.links: no page bound to context")
			}
			pc, err := pagecontext.NewCollector().Collect(ctx, page, 60000, false)
			if err != nil {
				return nil, fmt.Errorf("extract.links: capture page context: %w", err)
			}
			return pc.Interactive.Links, nil
		},
	}
}
