package pagecontext

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEvaluatePage returns a fixed JSON payload from Evaluate, as if it were
// domWalkScript's result, and ignores every other browser.Page method.
type fakeEvaluatePage struct {
	json string
	url  string
	err  error
}

func (p fakeEvaluatePage) Goto(context.Context, string) error { return nil }
func (p fakeEvaluatePage) Evaluate(context.Context, string) (any, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.json, nil
}
func (p fakeEvaluatePage) QuerySelectorAll(context.Context, string) ([]map[string]string, error) {
	return nil, nil
}
func (p fakeEvaluatePage) Fill(context.Context, string, string) error         { return nil }
func (p fakeEvaluatePage) Type(context.Context, string, string) error         { return nil }
func (p fakeEvaluatePage) Click(context.Context, string) error                { return nil }
func (p fakeEvaluatePage) WaitForSelector(context.Context, string, int) error { return nil }
func (p fakeEvaluatePage) WaitForTimeout(context.Context, int) error          { return nil }
func (p fakeEvaluatePage) Screenshot(context.Context, string, bool) error     { return nil }
func (p fakeEvaluatePage) Content(context.Context) (string, error)            { return "", nil }
func (p fakeEvaluatePage) URL() string                                        { return p.url }
func (p fakeEvaluatePage) Title(context.Context) (string, error)              { return "", nil }
func (p fakeEvaluatePage) Close(context.Context) error                        { return nil }

const samplePayload = `{
	"title": "Contact us",
	"headings": ["Contact us"],
	"forms": [{"id": "contact", "action": "/submit", "method": "POST", "fields": [
		{"name": "email", "id": "email", "type": "email", "required": true}
	]}],
	"interactiveButtons": [{"text": "Send", "selector": "#send"}],
	"interactiveLinks": [{"text": "Home", "href": "/", "selector": "a.home"}],
	"iframes": [{"name": "", "src": "https://recaptcha.net/abc"}],
	"elements": [
		{"tag": "form", "class": "", "depth": 1, "text": ""},
		{"tag": "input", "class": "", "depth": 2, "text": ""},
		{"tag": "div", "class": "price", "depth": 2, "text": "$19.99"}
	],
	"bodyText": "Contact us using the form below."
}`

func TestCollectParsesFormsAndLowercasesMethod(t *testing.T) {
	c := NewCollector()
	page := fakeEvaluatePage{json: samplePayload, url: "https://example.com/contact"}

	pc, err := c.Collect(context.Background(), page, 5000, false)
	require.NoError(t, err)

	assert.Equal(t, "Contact us", pc.Title)
	assert.Equal(t, "https://example.com/contact", pc.URL)
	require.Len(t, pc.Forms, 1)
	assert.Equal(t, "post", pc.Forms[0].Method)
	assert.Equal(t, 1, pc.Forms[0].FieldCount)
	assert.Equal(t, 1, pc.Forms[0].FieldTypes["email"])
}

func TestCollectDefaultsBodyTextCapTo5000(t *testing.T) {
	c := NewCollector()
	page := fakeEvaluatePage{json: samplePayload, url: "https://example.com"}

	pc, err := c.Collect(context.Background(), page, 5000, false)
	require.NoError(t, err)
	assert.Equal(t, "Contact us using the form below.", pc.Text)
}

func TestCollectHonorsCustomBodyTextMaxChars(t *testing.T) {
	c := NewCollector()
	c.BodyTextMaxChars = 10
	page := fakeEvaluatePage{json: samplePayload, url: "https://example.com"}

	pc, err := c.Collect(context.Background(), page, 5000, false)
	require.NoError(t, err)
	assert.Equal(t, "Contact us", pc.Text)
}

func TestCollectFlagsCaptchaIframes(t *testing.T) {
	c := NewCollector()
	page := fakeEvaluatePage{json: samplePayload, url: "https://example.com"}

	pc, err := c.Collect(context.Background(), page, 5000, false)
	require.NoError(t, err)
	require.Len(t, pc.Iframes, 1)
	assert.True(t, pc.Iframes[0].IsCaptcha)
	assert.Equal(t, "recaptcha", pc.Iframes[0].CaptchaHint)
}

func TestCollectFormOrientedTrimsNonFormElements(t *testing.T) {
	c := NewCollector()
	page := fakeEvaluatePage{json: samplePayload, url: "https://example.com"}

	pc, err := c.Collect(context.Background(), page, 5000, true)
	require.NoError(t, err)
	for _, el := range pc.DOMPreview {
		assert.Contains(t, []string{"form", "input", "select", "textarea", "label", "button"}, el.Tag)
	}
}

func TestCollectPropagatesEvaluateError(t *testing.T) {
	c := NewCollector()
	page := fakeEvaluatePage{err: assertErr("boom")}
	_, err := c.Collect(context.Background(), page, 5000, false)
	assert.Error(t, err)
}

type assertErr string

func (e assertErr) Error() string { return string(e) }

func TestDOMBudgetShrinksEachCallWithFloor(t *testing.T) {
	c := &Collector{DOMPreviewFloor: 10, ReductionFactor: 0.5}
	c.step++
	first := c.domBudget(12000)
	c.step++
	second := c.domBudget(12000)
	c.step++
	third := c.domBudget(12000)

	assert.Greater(t, first, second)
	assert.GreaterOrEqual(t, second, third)
	assert.GreaterOrEqual(t, third, 10)
}

func TestCaptchaSignalMatchesKnownProviders(t *testing.T) {
	ok, hint := captchaSignal("", "https://www.google.com/recaptcha/api2/anchor")
	assert.True(t, ok)
	assert.Equal(t, "recaptcha", hint)

	ok, _ = captchaSignal("", "https://example.com/checkout")
	assert.False(t, ok)
}

func TestDedupeIframesCollapsesBySrc(t *testing.T) {
	out := dedupeIframes([]rawIframe{
		{Src: "https://a.example/x"},
		{Src: "https://a.example/x"},
		{Src: "https://b.example/y"},
	})
	assert.Len(t, out, 2)
}

func TestInferPageType(t *testing.T) {
	assert.Equal(t, PageTypeForm, PageContext{Forms: []FormOutline{{ID: "f"}}}.InferPageType())

	listing := PageContext{DOMPreview: []DOMElement{
		{HasPrice: true}, {HasPrice: true}, {HasPrice: true},
		{HasLink: true}, {HasLink: true}, {HasLink: true},
	}}
	assert.Equal(t, PageTypeProductListing, listing.InferPageType())

	article := PageContext{Headings: []string{"Title"}, Text: string(make([]byte, 1200))}
	assert.Equal(t, PageTypeArticle, article.InferPageType())

	assert.Equal(t, PageTypeOther, PageContext{}.InferPageType())
}

func TestFormOutlineOutlineStripsFields(t *testing.T) {
	f := FormOutline{ID: "contact", FieldCount: 2, Fields: []FieldDescriptor{{Name: "email"}}}
	o := f.Outline()
	assert.Nil(t, o.Fields)
	assert.Equal(t, 2, o.FieldCount)
}
