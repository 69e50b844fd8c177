package planner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webpilot-ai/webpilot/runtime/model"
	"github.com/webpilot-ai/webpilot/runtime/pagecontext"
)

// scriptedClient replies with the next entry in Replies on every Invoke
// call, recording every prompt it was given.
type scriptedClient struct {
	Replies []string
	Calls   int
	Prompts []string
}

func (c *scriptedClient) Invoke(_ context.Context, req model.Request) (model.Response, error) {
	c.Prompts = append(c.Prompts, req.Prompt)
	i := c.Calls
	c.Calls++
	if i >= len(c.Replies) {
		return model.Response{}, assertNoMoreCallsErr
	}
	return model.Response{Text: c.Replies[i]}, nil
}

func (c *scriptedClient) InvokeWithImage(ctx context.Context, req model.Request) (model.Response, error) {
	return c.Invoke(ctx, req)
}

var assertNoMoreCallsErr = errAssertion("scriptedClient: no more scripted replies")

type errAssertion string

func (e errAssertion) Error() string { return string(e) }

type fakeCatalog struct{}

func (fakeCatalog) Names() []string        { return []string{"form.fill", "extract.links", "extract.products", "dom.click"} }
func (fakeCatalog) Describe(string) string { return "" }

func largePageContext() pagecontext.PageContext {
	// Force hierarchical mode via size rather than intent, independent of
	// the instruction text under test.
	headings := make([]string, 0, 2000)
	for i := 0; i < 2000; i++ {
		headings = append(headings, "a sufficiently long heading to inflate the serialized page context size")
	}
	return pagecontext.PageContext{Title: "Listing", URL: "https://example.com", Headings: headings}
}

func TestHierarchicalFastPathMakesExactlyOneLevel1CallAndZeroLevel2Calls(t *testing.T) {
	client := &scriptedClient{Replies: []string{
		`{"decision": "use_form", "need_details": null, "reason": "one form on page"}`,
	}}
	p := New(client, fakeCatalog{})

	pc := largePageContext()
	pc.Forms = []pagecontext.FormOutline{{ID: "contact", FieldCount: 14}}
	step, err := p.Decide(context.Background(), "Fill form: a=1, b=2", pc, nil, 0)

	require.NoError(t, err)
	assert.Equal(t, StepTool, step.Kind)
	assert.Equal(t, "form.fill", step.ToolName)
	assert.Equal(t, "1", step.Args["a"])
	assert.Equal(t, "2", step.Args["b"])
	assert.Equal(t, 1, client.Calls, "the fast path substitutes for Level 2 only, Level 1 always runs")
}

func TestHierarchicalPlanSkipsLevel2WhenNeedDetailsIsNil(t *testing.T) {
	client := &scriptedClient{Replies: []string{
		`{"decision": "extract_products", "need_details": null, "reason": "listing page"}`,
	}}
	p := New(client, fakeCatalog{})

	step, err := p.Decide(context.Background(), "list every product", largePageContext(), nil, 0)

	require.NoError(t, err)
	assert.Equal(t, StepTool, step.Kind)
	assert.Equal(t, "extract.products", step.ToolName)
	assert.Equal(t, 1, client.Calls, "need_details=null must short-circuit before any level-2 call")
}

func TestHierarchicalPlanCallsLevel2WhenDetailIsRequested(t *testing.T) {
	client := &scriptedClient{Replies: []string{
		`{"decision": "use_form", "need_details": ["forms[0].fields"], "reason": "needs field list"}`,
		`{"tool_name": "form.fill", "args": {"instruction": "fill the form"}, "reason": "go"}`,
	}}
	p := New(client, fakeCatalog{})

	pc := largePageContext()
	pc.Forms = []pagecontext.FormOutline{{ID: "contact", FieldCount: 3}}
	step, err := p.Decide(context.Background(), "fill out the contact form", pc, nil, 0)

	require.NoError(t, err)
	assert.Equal(t, StepTool, step.Kind)
	assert.Equal(t, "form.fill", step.ToolName)
	assert.Equal(t, 2, client.Calls, "an explicit need_details entry must still reach level-2")
}

func TestHierarchicalPlanNavigateAlwaysReachesLevel2(t *testing.T) {
	client := &scriptedClient{Replies: []string{
		`{"decision": "navigate", "need_details": null, "reason": "need the next page URL"}`,
		`{"tool_name": "dom.click", "args": {"selector": "a.next"}, "reason": "paginate"}`,
	}}
	p := New(client, fakeCatalog{})

	step, err := p.Decide(context.Background(), "go to the next page of results", largePageContext(), nil, 0)

	require.NoError(t, err)
	// navigate has no entry in directDispatch, so even a nil need_details
	// must fall through to level-2 rather than erroring immediately.
	assert.Equal(t, 2, client.Calls)
	assert.Equal(t, StepTool, step.Kind)
	assert.Equal(t, "dom.click", step.ToolName)
}

func TestHierarchicalPlanCompleteNeverCallsLevel2(t *testing.T) {
	client := &scriptedClient{Replies: []string{
		`{"decision": "complete", "need_details": null, "reason": "done"}`,
	}}
	p := New(client, fakeCatalog{})

	step, err := p.Decide(context.Background(), "extract all products", largePageContext(), nil, 0)

	require.NoError(t, err)
	assert.Equal(t, StepComplete, step.Kind)
	assert.Equal(t, 1, client.Calls)
}

func TestExtractJSONObjectStripsCodeFences(t *testing.T) {
	in := "```json\n{\"a\": 1}\n```"
	assert.Equal(t, `{"a": 1}`, extractJSONObject(in))
}

func TestExtractDetailsReturnsNilForOutOfRangeForm(t *testing.T) {
	pc := pagecontext.PageContext{Forms: []pagecontext.FormOutline{{ID: "only"}}}
	out := extractDetails(pc, []string{"forms[5].fields"})
	assert.Contains(t, out, "forms[5].fields")
	assert.Nil(t, out["forms[5].fields"])
}

func TestDecideUsesStandardPlanForSmallNonFormPage(t *testing.T) {
	client := &scriptedClient{Replies: []string{
		`{"decision": "tool", "tool_name": "extract.links", "args": {}, "reason": "grab links"}`,
	}}
	p := New(client, fakeCatalog{})

	step, err := p.Decide(context.Background(), "list the links on this page", pagecontext.PageContext{Title: "Home"}, nil, 0)

	require.NoError(t, err)
	assert.Equal(t, StepTool, step.Kind)
	assert.Equal(t, "extract.links", step.ToolName)
	assert.Equal(t, 1, client.Calls)
}

func TestStandardPlanRepairsOnceOnUnparseableReply(t *testing.T) {
	client := &scriptedClient{Replies: []string{
		"not json at all",
		`{"decision": "complete", "reason": "done after repair"}`,
	}}
	p := New(client, fakeCatalog{})

	step, err := p.Decide(context.Background(), "list the links on this page", pagecontext.PageContext{}, nil, 0)

	require.NoError(t, err)
	assert.Equal(t, StepComplete, step.Kind)
	assert.Equal(t, 2, client.Calls)
}

func TestStandardPlanReturnsErrorWhenRepairAlsoFails(t *testing.T) {
	client := &scriptedClient{Replies: []string{
		"still not json",
		"also not json",
	}}
	p := New(client, fakeCatalog{})

	_, err := p.Decide(context.Background(), "list the links on this page", pagecontext.PageContext{}, nil, 0)
	assert.Error(t, err)
}

func TestStandardPlanRequiresToolNameForToolDecision(t *testing.T) {
	client := &scriptedClient{Replies: []string{
		`{"decision": "tool", "args": {}, "reason": "missing name"}`,
	}}
	p := New(client, fakeCatalog{})

	_, err := p.Decide(context.Background(), "list the links on this page", pagecontext.PageContext{}, nil, 0)
	assert.Error(t, err)
}

func TestUseHierarchicalForcedOptionOverridesHeuristics(t *testing.T) {
	no := false
	p := &Planner{Options: Options{ForceHierarchical: &no}.resolve()}
	assert.False(t, p.useHierarchical("fill out the contact form", largePageContext(), nil))

	yes := true
	p = &Planner{Options: Options{ForceHierarchical: &yes}.resolve()}
	assert.True(t, p.useHierarchical("click the button", pagecontext.PageContext{}, nil))
}

func TestUseHierarchicalTriggersOnFormIntentEvenForSmallPages(t *testing.T) {
	p := &Planner{Options: Options{}.resolve()}
	assert.True(t, p.useHierarchical("please subscribe to our newsletter", pagecontext.PageContext{}, nil))
	assert.False(t, p.useHierarchical("show me the page title", pagecontext.PageContext{}, nil))
}

func TestDecideWithOverrideForcesStandardPlanRegardlessOfOptionsOrHeuristics(t *testing.T) {
	client := &scriptedClient{Replies: []string{
		`{"decision": "complete", "reason": "forced standard path"}`,
	}}
	p := New(client, fakeCatalog{})

	no := false
	step, err := p.DecideWithOverride(context.Background(), "please fill out the contact form", largePageContext(), nil, 0, &no)

	require.NoError(t, err)
	assert.Equal(t, StepComplete, step.Kind)
	assert.Equal(t, 1, client.Calls)
}

func TestDecideWithOverrideForcesHierarchicalPlanRegardlessOfHeuristics(t *testing.T) {
	client := &scriptedClient{Replies: []string{
		`{"decision": "complete", "need_details": null, "reason": "forced hierarchical path"}`,
	}}
	p := New(client, fakeCatalog{})

	yes := true
	step, err := p.DecideWithOverride(context.Background(), "show me the page title", pagecontext.PageContext{}, nil, 0, &yes)

	require.NoError(t, err)
	assert.Equal(t, StepComplete, step.Kind)
	assert.Equal(t, 1, client.Calls)
}

func TestDecideWithOverrideNilDefersToOptionsAndHeuristics(t *testing.T) {
	client := &scriptedClient{Replies: []string{
		`{"decision": "tool", "tool_name": "extract.links", "args": {}, "reason": "grab links"}`,
	}}
	p := New(client, fakeCatalog{})

	step, err := p.DecideWithOverride(context.Background(), "list the links on this page", pagecontext.PageContext{Title: "Home"}, nil, 0, nil)

	require.NoError(t, err)
	assert.Equal(t, "extract.links", step.ToolName)
}

func TestSummarizeHistoryKeepsLastThreeEntriesAndFlagsErrors(t *testing.T) {
	history := ToolHistory{
		{StepIndex: 0, ToolName: "dom.click"},
		{StepIndex: 1, ToolName: "dom.click", Error: "selector not found"},
		{StepIndex: 2, ToolName: "form.fill"},
		{StepIndex: 3, ToolName: "extract.links"},
	}
	summary := summarizeHistory(history)
	assert.NotContains(t, summary, "step 0")
	assert.Contains(t, summary, "step 1: dom.click -> error: selector not found")
	assert.Contains(t, summary, "step 3: extract.links -> ok")
}

func TestSummarizeHistoryEmptyReturnsPlaceholder(t *testing.T) {
	assert.Equal(t, "(none)", summarizeHistory(nil))
}

func TestDecideRecordsPromptAndReplyTraceOnSuccess(t *testing.T) {
	client := &scriptedClient{Replies: []string{
		`{"decision": "complete", "reason": "done"}`,
	}}
	p := New(client, fakeCatalog{})

	step, err := p.Decide(context.Background(), "list the links on this page", pagecontext.PageContext{}, nil, 0)

	require.NoError(t, err)
	require.Len(t, step.Trace, 1)
	assert.Contains(t, step.Trace[0].Prompt, "list the links on this page")
	assert.Equal(t, `{"decision": "complete", "reason": "done"}`, step.Trace[0].Reply)
}

func TestDecideWrapsUnparseableReplyWithFullTrace(t *testing.T) {
	client := &scriptedClient{Replies: []string{
		"not json at all",
		"still not json",
	}}
	p := New(client, fakeCatalog{})

	_, err := p.Decide(context.Background(), "list the links on this page", pagecontext.PageContext{}, nil, 0)

	require.Error(t, err)
	var traceErr *TraceError
	require.ErrorAs(t, err, &traceErr)
	require.Len(t, traceErr.Trace, 2)
	assert.Equal(t, "not json at all", traceErr.Trace[0].Reply)
	assert.Equal(t, "still not json", traceErr.Trace[1].Reply)
}

func TestHierarchicalPlanTraceIncludesBothLevelCalls(t *testing.T) {
	client := &scriptedClient{Replies: []string{
		`{"decision": "use_form", "need_details": ["forms[0].fields"], "reason": "needs field list"}`,
		`{"tool_name": "form.fill", "args": {"instruction": "fill the form"}, "reason": "go"}`,
	}}
	p := New(client, fakeCatalog{})

	pc := largePageContext()
	pc.Forms = []pagecontext.FormOutline{{ID: "contact", FieldCount: 3}}
	step, err := p.Decide(context.Background(), "fill out the contact form", pc, nil, 0)

	require.NoError(t, err)
	require.Len(t, step.Trace, 2)
	assert.Contains(t, step.Trace[1].Prompt, "Requested detail")
}

func TestParseFastPathFieldsAcceptsColonAndEquals(t *testing.T) {
	fields := parseFastPathFields("name: Ada, email=ada@example.com, unrelated sentence")
	assert.Equal(t, "Ada", fields["name"])
	assert.Equal(t, "ada@example.com", fields["email"])
}
