package formfill

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webpilot-ai/webpilot/runtime/pagecontext"
)

func TestFieldSelectorPrefersIDThenName(t *testing.T) {
	assert.Equal(t, "#email", fieldSelector(pagecontext.FieldDescriptor{ID: "email", Name: "ignored"}, 0))
	assert.Equal(t, `[name="email"]`, fieldSelector(pagecontext.FieldDescriptor{Name: "email"}, 0))
	assert.Equal(t, `input[type="text"]:nth-of-type(3)`, fieldSelector(pagecontext.FieldDescriptor{}, 2))
	assert.Equal(t, `input[type="email"]:nth-of-type(1)`, fieldSelector(pagecontext.FieldDescriptor{Type: "email"}, 0))
}

func TestJSStringLiteralEscapesQuotesAndSpecialChars(t *testing.T) {
	// jsStringLiteral delegates to encoding/json.Marshal, which HTML-escapes
	// '<', '>', and '&' by default, so a literal "<script>" never reaches
	// the generated expression intact.
	got := jsStringLiteral(`O'Brien "quoted" <script>`)
	assert.Equal(t, "\"O'Brien \\\"quoted\\\" \\u003cscript\\u003e\"", got)
}

// fakeNoopPage implements browser.Page with no-op defaults so tests only
// need to override the handful of methods they exercise.
type fakeNoopPage struct{}

func (fakeNoopPage) Goto(context.Context, string) error            { return nil }
func (fakeNoopPage) Evaluate(context.Context, string) (any, error) { return nil, nil }
func (fakeNoopPage) QuerySelectorAll(context.Context, string) ([]map[string]string, error) {
	return nil, nil
}
func (fakeNoopPage) Fill(context.Context, string, string) error         { return nil }
func (fakeNoopPage) Type(context.Context, string, string) error         { return nil }
func (fakeNoopPage) Click(context.Context, string) error                { return nil }
func (fakeNoopPage) WaitForSelector(context.Context, string, int) error { return nil }
func (fakeNoopPage) WaitForTimeout(context.Context, int) error          { return nil }
func (fakeNoopPage) Screenshot(context.Context, string, bool) error     { return nil }
func (fakeNoopPage) Content(context.Context) (string, error)            { return "", nil }
func (fakeNoopPage) URL() string                                        { return "" }
func (fakeNoopPage) Title(context.Context) (string, error)              { return "", nil }
func (fakeNoopPage) Close(context.Context) error                        { return nil }

// fakePage exercises attemptFill's three-tier fallback: Fill, then Type,
// then a manual Evaluate-based assignment.
type fakePage struct {
	fakeNoopPage
	fillErr     error
	typeErr     error
	evaluated   []string
	evaluateErr error
}

func (p *fakePage) Fill(_ context.Context, _, _ string) error { return p.fillErr }
func (p *fakePage) Type(_ context.Context, _, _ string) error { return p.typeErr }
func (p *fakePage) Evaluate(_ context.Context, js string) (any, error) {
	p.evaluated = append(p.evaluated, js)
	return true, p.evaluateErr
}

func TestAttemptFillUsesDriverFillWhenItSucceeds(t *testing.T) {
	page := &fakePage{}
	err := attemptFill(context.Background(), page, "#email", "a@b.com")
	require.NoError(t, err)
	assert.Empty(t, page.evaluated, "Evaluate must not run when Fill already succeeded")
}

func TestAttemptFillFallsBackToType(t *testing.T) {
	page := &fakePage{fillErr: errors.New("fill unsupported")}
	err := attemptFill(context.Background(), page, "#email", "a@b.com")
	require.NoError(t, err)
	assert.Empty(t, page.evaluated)
}

func TestAttemptFillFallsBackToManualAssignment(t *testing.T) {
	page := &fakePage{fillErr: errors.New("x"), typeErr: errors.New("y")}
	err := attemptFill(context.Background(), page, "#email", "a@b.com")
	require.NoError(t, err)
	require.Len(t, page.evaluated, 1)
	assert.Contains(t, page.evaluated[0], `"#email"`)
	assert.Contains(t, page.evaluated[0], `"a@b.com"`)
}

func TestAttemptFillReturnsErrorWhenEveryTierFails(t *testing.T) {
	page := &fakePage{
		fillErr:     errors.New("x"),
		typeErr:     errors.New("y"),
		evaluateErr: errors.New("z"),
	}
	err := attemptFill(context.Background(), page, "#email", "a@b.com")
	assert.Error(t, err)
}
