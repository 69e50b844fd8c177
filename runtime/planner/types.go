// Package planner implements the Hierarchical Planner (spec.md §4.2): a
// three-level protocol that keeps the LLM's input context minimal by
// sending a compressed outline first and requesting detail only when the
// model asks for it.
package planner

import "github.com/webpilot-ai/webpilot/runtime/pagecontext"

type (
	// StepKind classifies a PlanStep's disposition.
	StepKind string

	// PlanStep is the planner's output for one Task Runner iteration.
	PlanStep struct {
		Kind     StepKind
		ToolName string
		Args     map[string]any
		URL      string // for Kind == StepNavigate
		Reason   string
		Error    string // for Kind == StepError
		// Trace carries every raw prompt/reply round trip this Decide call
		// made, in order, for the run log (spec.md §4.7 "planner prompt,
		// planner reply").
		Trace []Exchange
	}

	// Exchange is one raw prompt/reply round trip with the model client.
	Exchange struct {
		Prompt string
		Reply  string
	}

	// HistoryEntry records one completed step for the next planning call.
	HistoryEntry struct {
		StepIndex int
		ToolName  string
		Args      map[string]any
		Result    any
		Error     string
	}

	// ToolHistory is the chronological record threaded through a task,
	// replacing conversational memory with explicit state (spec.md §4.2
	// "The Planner is stateless across steps; state lives in
	// ToolHistory").
	ToolHistory []HistoryEntry
)

const (
	StepTool     StepKind = "tool"
	StepNavigate StepKind = "navigate"
	StepComplete StepKind = "complete"
	StepError    StepKind = "error"
)

// level1Decision names the coarse action the Level 1 prompt asks for.
type level1Decision string

const (
	decisionUseForm         level1Decision = "use_form"
	decisionExtractArticles level1Decision = "extract_articles"
	decisionExtractProducts level1Decision = "extract_products"
	decisionNavigate        level1Decision = "navigate"
	decisionComplete        level1Decision = "complete"
	decisionOther           level1Decision = "other"
)

type level1Reply struct {
	Decision     level1Decision `json:"decision"`
	NeedDetails  []string       `json:"need_details"`
	Reason       string         `json:"reason"`
}

type level2Reply struct {
	ToolName string         `json:"tool_name"`
	Args     map[string]any `json:"args"`
	Reason   string         `json:"reason"`
}

// ToolCatalog is the minimal view of the Tool Registry the planner needs:
// it must know what tools exist and how to describe them in prompts, but
// never executes them (spec.md §4.1 owns execution).
type ToolCatalog interface {
	Names() []string
	Describe(name string) string
}

// pageContextOutline is what the Level 1 prompt actually sees (spec.md
// §4.2 "a compressed outline").
type pageContextOutline struct {
	Title    string
	URL      string
	PageType pagecontext.PageType
	Forms    []pagecontext.FormOutline // Fields always nil here
	Headings []string
}
