package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/webpilot-ai/webpilot/runtime/model"
	"github.com/webpilot-ai/webpilot/runtime/pagecontext"
)

// Options tunes when the hierarchical protocol activates.
type Options struct {
	// HierarchicalThresholdChars triggers hierarchical mode once the
	// serialized PageContext exceeds this size. Default 25000.
	HierarchicalThresholdChars int
	// ForceHierarchical overrides the automatic size/intent heuristic
	// when non-nil (spec.md §4.2 "a request-level boolean may override").
	ForceHierarchical *bool
}

func (o Options) resolve() Options {
	if o.HierarchicalThresholdChars <= 0 {
		o.HierarchicalThresholdChars = 25000
	}
	return o
}

// Planner produces the next PlanStep from the current PageContext, the
// instruction, and ToolHistory (spec.md §4.2).
type Planner struct {
	Model   model.Client
	Tools   ToolCatalog
	Options Options
}

// New returns a Planner backed by client and catalog.
func New(client model.Client, catalog ToolCatalog) *Planner {
	return &Planner{Model: client, Tools: catalog, Options: Options{}.resolve()}
}

// Decide implements the full protocol for one Task Runner iteration.
func (p *Planner) Decide(ctx context.Context, instruction string, pc pagecontext.PageContext, history ToolHistory, stepIndex int) (PlanStep, error) {
	return p.decide(ctx, instruction, pc, history, nil)
}

// DecideWithOverride behaves like Decide but lets the caller force
// hierarchical or standard mode for this call only, without mutating the
// shared, process-wide Planner (spec.md §6 "hierarchical_planner": force
// on/off per task, default auto based on size).
func (p *Planner) DecideWithOverride(ctx context.Context, instruction string, pc pagecontext.PageContext, history ToolHistory, stepIndex int, forceHierarchical *bool) (PlanStep, error) {
	return p.decide(ctx, instruction, pc, history, forceHierarchical)
}

func (p *Planner) decide(ctx context.Context, instruction string, pc pagecontext.PageContext, history ToolHistory, override *bool) (PlanStep, error) {
	var trace []Exchange
	var step PlanStep
	var err error
	if !p.useHierarchical(instruction, pc, override) {
		step, err = p.standardPlan(ctx, instruction, pc, history, &trace)
	} else {
		step, err = p.hierarchicalPlan(ctx, instruction, pc, history, &trace)
	}
	if err != nil {
		return PlanStep{}, &TraceError{Err: err, Trace: trace}
	}
	step.Trace = trace
	return step, nil
}

// TraceError wraps a planner failure with every raw prompt/reply this
// Decide call made before failing, so a malformed LLM response still
// reaches the run log instead of being swallowed into an error string
// (spec.md §8: "the run log contains all raw responses").
type TraceError struct {
	Err   error
	Trace []Exchange
}

func (e *TraceError) Error() string { return e.Err.Error() }
func (e *TraceError) Unwrap() error { return e.Err }

func (p *Planner) useHierarchical(instruction string, pc pagecontext.PageContext, override *bool) bool {
	if override != nil {
		return *override
	}
	opts := p.Options.resolve()
	if opts.ForceHierarchical != nil {
		return *opts.ForceHierarchical
	}
	if serializedSize(pc) > opts.HierarchicalThresholdChars {
		return true
	}
	return formOrientedIntent(instruction)
}

var formIntentRE = regexp.MustCompile(`(?i)\b(fill|submit|form|sign\s*up|register|contact|subscribe)\b`)

func formOrientedIntent(instruction string) bool {
	return formIntentRE.MatchString(instruction)
}

func serializedSize(pc pagecontext.PageContext) int {
	b, err := json.Marshal(pc)
	if err != nil {
		return 0
	}
	return len(b)
}

// hierarchicalPlan runs the three-level protocol.
func (p *Planner) hierarchicalPlan(ctx context.Context, instruction string, pc pagecontext.PageContext, history ToolHistory, trace *[]Exchange) (PlanStep, error) {
	l1, err := p.level1(ctx, instruction, pc, history, trace)
	if err != nil {
		return p.standardPlan(ctx, instruction, pc, history, trace)
	}

	if l1.Decision == decisionComplete {
		return PlanStep{Kind: StepComplete, Reason: l1.Reason}, nil
	}

	// When Level 1 reports need_details=null, it already has enough to
	// act: dispatch straight from its coarse decision without a Level-2
	// call at all (spec.md §8 "if Level-1 returned need_details=null, no
	// Level-2 LLM call was made").
	if len(l1.NeedDetails) == 0 {
		if toolName, ok := directDispatch[l1.Decision]; ok {
			args := map[string]any{"instruction": instruction}
			// The fast path (spec.md §4.2) only licenses skipping Level 2,
			// never Level 1: the key=value parse substitutes for the
			// Level-2 call's args once Level 1 has already said it needs
			// no further detail.
			if toolName == "form.fill" {
				if fields := parseFastPathFields(instruction); len(fields) > 0 {
					args = fields
				}
			}
			return PlanStep{Kind: StepTool, ToolName: toolName, Args: args, Reason: l1.Reason}, nil
		}
	}

	detail := extractDetails(pc, l1.NeedDetails)
	l2, err := p.level2(ctx, instruction, l1, detail, history, trace)
	if err != nil {
		return PlanStep{Kind: StepError, Error: err.Error(), Reason: "level-2 planning failed"}, nil
	}

	return PlanStep{Kind: StepTool, ToolName: l2.ToolName, Args: l2.Args, Reason: l2.Reason}, nil
}

// directDispatch maps a Level-1 decision straight to its canonical tool
// when no further detail is needed to invoke it.
var directDispatch = map[level1Decision]string{
	decisionUseForm:         "form.fill",
	decisionExtractArticles: "extract.links",
	decisionExtractProducts: "extract.products",
}

func (p *Planner) level1(ctx context.Context, instruction string, pc pagecontext.PageContext, history ToolHistory, trace *[]Exchange) (level1Reply, error) {
	outline := pageContextOutline{
		Title: pc.Title, URL: pc.URL, PageType: pc.InferPageType(),
		Headings: pc.Headings,
	}
	for _, f := range pc.Forms {
		outline.Forms = append(outline.Forms, f.Outline())
	}

	outlineJSON, _ := json.Marshal(outline)
	prompt := fmt.Sprintf(`Instruction: %s

Page outline:
%s

Recent history: %s

Reply with JSON only: {"decision": "use_form"|"extract_articles"|"extract_products"|"navigate"|"complete"|"other", "need_details": [<path strings>]|null, "reason": "<brief>"}. The need_details paths may name: "forms[N].fields", "interactive", "headings", "dom_preview[range]". Use null when you already have enough information to act.`,
		instruction, string(outlineJSON), summarizeHistory(history))

	reply, err := p.invokeJSON(ctx, prompt, trace)
	if err != nil {
		return level1Reply{}, err
	}
	var l1 level1Reply
	if err := json.Unmarshal([]byte(reply), &l1); err != nil {
		repaired, rerr := p.repair(ctx, prompt, reply, err, trace)
		if rerr != nil {
			return level1Reply{}, rerr
		}
		if err := json.Unmarshal([]byte(repaired), &l1); err != nil {
			return level1Reply{}, fmt.Errorf("planner: level-1 reply unparseable after repair: %w", err)
		}
	}
	return l1, nil
}

func (p *Planner) level2(ctx context.Context, instruction string, l1 level1Reply, detail map[string]any, history ToolHistory, trace *[]Exchange) (level2Reply, error) {
	detailJSON, _ := json.Marshal(detail)
	prompt := fmt.Sprintf(`Instruction: %s
Level-1 decision: %s (%s)

Requested detail:
%s

Available tools: %s

Recent history: %s

Reply with JSON only: {"tool_name": "<registered tool>", "args": {...}, "reason": "<brief>"}.`,
		instruction, l1.Decision, l1.Reason, string(detailJSON), strings.Join(p.Tools.Names(), ", "), summarizeHistory(history))

	reply, err := p.invokeJSON(ctx, prompt, trace)
	if err != nil {
		return level2Reply{}, err
	}
	var l2 level2Reply
	if err := json.Unmarshal([]byte(reply), &l2); err != nil {
		repaired, rerr := p.repair(ctx, prompt, reply, err, trace)
		if rerr != nil {
			return level2Reply{}, rerr
		}
		if err := json.Unmarshal([]byte(repaired), &l2); err != nil {
			return level2Reply{}, fmt.Errorf("planner: level-2 reply unparseable after repair: %w", err)
		}
	}
	if l2.ToolName == "" {
		return level2Reply{}, fmt.Errorf("planner: level-2 reply missing tool_name")
	}
	return l2, nil
}

// standardPlan issues one LLM call with the full PageContext when the page
// is small enough or the instruction has no form-oriented intent (spec.md
// §4.2 "the standard single-shot planner is used").
func (p *Planner) standardPlan(ctx context.Context, instruction string, pc pagecontext.PageContext, history ToolHistory, trace *[]Exchange) (PlanStep, error) {
	pcJSON, _ := json.Marshal(pc)
	prompt := fmt.Sprintf(`Instruction: %s

Page context:
%s

Available tools: %s

Recent history: %s

Reply with JSON only: {"decision": "tool"|"navigate"|"complete", "tool_name": "<registered tool, if decision=tool>", "args": {...}, "url": "<if decision=navigate>", "reason": "<brief>"}.`,
		instruction, string(pcJSON), strings.Join(p.Tools.Names(), ", "), summarizeHistory(history))

	reply, err := p.invokeJSON(ctx, prompt, trace)
	if err != nil {
		return PlanStep{}, fmt.Errorf("planner: standard plan call: %w", err)
	}

	var out struct {
		Decision string         `json:"decision"`
		ToolName string         `json:"tool_name"`
		Args     map[string]any `json:"args"`
		URL      string         `json:"url"`
		Reason   string         `json:"reason"`
	}
	if err := json.Unmarshal([]byte(reply), &out); err != nil {
		repaired, rerr := p.repair(ctx, prompt, reply, err, trace)
		if rerr != nil {
			return PlanStep{}, rerr
		}
		if err := json.Unmarshal([]byte(repaired), &out); err != nil {
			return PlanStep{}, fmt.Errorf("planner: standard plan reply unparseable after repair: %w", err)
		}
	}

	switch out.Decision {
	case "complete":
		return PlanStep{Kind: StepComplete, Reason: out.Reason}, nil
	case "navigate":
		return PlanStep{Kind: StepNavigate, URL: out.URL, Reason: out.Reason}, nil
	default:
		if out.ToolName == "" {
			return PlanStep{}, fmt.Errorf("planner: standard plan reply missing tool_name")
		}
		return PlanStep{Kind: StepTool, ToolName: out.ToolName, Args: out.Args, Reason: out.Reason}, nil
	}
}

func (p *Planner) invokeJSON(ctx context.Context, prompt string, trace *[]Exchange) (string, error) {
	resp, err := p.Model.Invoke(ctx, model.Request{Prompt: prompt, MaxTokens: 500, Temperature: 0, JSONMode: true})
	if err != nil {
		return "", err
	}
	if trace != nil {
		*trace = append(*trace, Exchange{Prompt: prompt, Reply: resp.Text})
	}
	return extractJSONObject(resp.Text), nil
}

// repair re-prompts once with the parse error, per spec.md §4.2 "retry
// once with a repair prompt".
func (p *Planner) repair(ctx context.Context, originalPrompt, badReply string, parseErr error, trace *[]Exchange) (string, error) {
	prompt := fmt.Sprintf(`Your previous reply could not be parsed as JSON (%v):

%s

Re-send ONLY a valid JSON object satisfying the original request below. Do not add commentary or code fences.

%s`, parseErr, badReply, originalPrompt)
	return p.invokeJSON(ctx, prompt, trace)
}

func summarizeHistory(history ToolHistory) string {
	if len(history) == 0 {
		return "(none)"
	}
	n := len(history)
	start := 0
	if n > 3 {
		start = n - 3
	}
	var parts []string
	for _, h := range history[start:] {
		status := "ok"
		if h.Error != "" {
			status = "error: " + h.Error
		}
		parts = append(parts, fmt.Sprintf("step %d: %s -> %s", h.StepIndex, h.ToolName, status))
	}
	return strings.Join(parts, "; ")
}

// extractDetails pulls the requested substructures out of pc, returning an
// empty map entry for any path that does not exist (spec.md §4.2 "return
// an empty substructure and continue"). A dom_preview[...] path returns the
// whole dom_preview; the bracketed range is not applied.
func extractDetails(pc pagecontext.PageContext, paths []string) map[string]any {
	out := map[string]any{}
	for _, path := range paths {
		switch {
		case path == "interactive":
			out["interactive"] = pc.Interactive
		case path == "headings":
			out["headings"] = pc.Headings
		case strings.HasPrefix(path, "forms["):
			idx := indexFromBracket(path)
			if idx >= 0 && idx < len(pc.Forms) {
				out[path] = pc.Forms[idx]
			} else {
				out[path] = nil
			}
		case strings.HasPrefix(path, "dom_preview["):
			out[path] = pc.DOMPreview
		default:
			out[path] = nil
		}
	}
	return out
}

func indexFromBracket(path string) int {
	start := strings.IndexByte(path, '[')
	end := strings.IndexByte(path, ']')
	if start == -1 || end == -1 || end < start {
		return -1
	}
	n, err := strconv.Atoi(path[start+1 : end])
	if err != nil {
		return -1
	}
	return n
}

var kvSplitRE = regexp.MustCompile(`[,\n]`)

// parseFastPathFields implements spec.md §4.2's fast path: a tolerant
// parser for "(name, email, phone, message, …)" key=value pairs so the
// common form-filling case skips Level 2 entirely.
func parseFastPathFields(instruction string) map[string]any {
	out := map[string]any{}
	for _, part := range kvSplitRE.Split(instruction, -1) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		var key, val string
		if i := strings.IndexByte(part, '='); i >= 0 {
			key, val = part[:i], part[i+1:]
		} else if i := strings.IndexByte(part, ':'); i >= 0 {
			key, val = part[:i], part[i+1:]
		} else {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		// Drop any leading prose ("fill form: a=1" -> "a").
		if j := strings.LastIndexAny(key, ": \t"); j >= 0 {
			key = strings.TrimSpace(key[j+1:])
		}
		val = strings.TrimSpace(val)
		if key == "" || val == "" || !isFieldKey(key) {
			continue
		}
		out[key] = val
	}
	return out
}

var knownFieldKeys = map[string]bool{
	"name": true, "email": true, "phone": true, "message": true,
	"subject": true, "company": true, "address": true,
}

func isFieldKey(key string) bool {
	if knownFieldKeys[key] {
		return true
	}
	// Accept short, identifier-shaped keys so arbitrary custom field
	// names still flow through (spec.md's "…" in the key list).
	return len(key) > 0 && len(key) < 30 && !strings.ContainsAny(key, " \t")
}

func extractJSONObject(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start == -1 || end == -1 || end < start {
		return text
	}
	return text[start : end+1]
}
