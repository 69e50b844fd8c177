package pagecontext

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/webpilot-ai/webpilot/runtime/browser"
)

// domWalkScript is evaluated once per Collect call. It walks the live DOM
// and returns a single JSON payload covering headings, forms, interactive
// elements, iframes, and a depth-tagged element list, so the collector
// never issues more than one page.Evaluate round trip per snapshot
// (spec.md §4.3 "a single bulk DOM query").
const domWalkScript = `(() => {
  function text(el) { return (el.innerText || el.textContent || '').trim(); }
  const headings = Array.from(document.querySelectorAll('h1,h2,h3,h4,h5,h6'))
    .map(text).filter(Boolean).slice(0, 20);
  const forms = Array.from(document.forms).map(f => {
    const fields = Array.from(f.elements).map(el => ({
      name: el.name || '', id: el.id || '',
      type: (el.type || el.tagName || '').toLowerCase(),
      required: !!el.required,
      placeholder: el.placeholder || '',
      label: (() => {
        if (el.labels && el.labels.length) return text(el.labels[0]);
        const byFor = el.id && document.querySelector('label[for="' + el.id + '"]');
        return byFor ? text(byFor) : '';
      })(),
      options: el.options ? Array.from(el.options).map(o => o.value) : [],
    }));
    return { id: f.id || '', action: f.action || '', method: (f.method || 'get'), fields };
  });
  const interactiveButtons = Array.from(document.querySelectorAll('button, input[type=submit], input[type=button]'))
    .map(el => ({ text: text(el), selector: cssPath(el) }));
  const interactiveLinks = Array.from(document.querySelectorAll('a[href]'))
    .map(el => ({ text: text(el), href: el.href, selector: cssPath(el) }));
  const iframes = Array.from(document.querySelectorAll('iframe')).map(f => ({
    name: f.name || '', src: f.src || '',
  }));
  function cssPath(el) {
    if (el.id) return '#' + el.id;
    let path = el.tagName.toLowerCase();
    if (el.className && typeof el.className === 'string') path += '.' + el.className.trim().split(/\s+/).join('.');
    return path;
  }
  function depthOf(el) { let d = 0; let n = el; while (n && n.parentElement) { n = n.parentElement; d++; } return d; }
  const elements = Array.from(document.body ? document.body.querySelectorAll('*') : [])
    .map(el => ({
      tag: el.tagName.toLowerCase(),
      class: (el.className && typeof el.className === 'string') ? el.className : '',
      depth: depthOf(el),
      text: text(el).slice(0, 120),
    }));
  return JSON.stringify({
    title: document.title || '',
    headings, forms, interactiveButtons, interactiveLinks, iframes, elements,
    bodyText: (document.body ? text(document.body) : '').slice(0, 20000),
  });
})()`

var priceLikeRE = regexp.MustCompile(`[$£€¥]\s?\d[\d,.]*|\d[\d,.]*\s?(?:USD|EUR|GBP)`)

type rawWalk struct {
	Title              string              `json:"title"`
	Headings           []string            `json:"headings"`
	Forms              []rawForm           `json:"forms"`
	InteractiveButtons []rawInteractive    `json:"interactiveButtons"`
	InteractiveLinks   []rawInteractive    `json:"interactiveLinks"`
	Iframes            []rawIframe         `json:"iframes"`
	Elements           []rawElement        `json:"elements"`
	BodyText           string              `json:"bodyText"`
}

type rawForm struct {
	ID     string        `json:"id"`
	Action string        `json:"action"`
	Method string        `json:"method"`
	Fields []rawFieldRow `json:"fields"`
}

type rawFieldRow struct {
	Name        string   `json:"name"`
	ID          string   `json:"id"`
	Type        string   `json:"type"`
	Required    bool     `json:"required"`
	Placeholder string   `json:"placeholder"`
	Label       string   `json:"label"`
	Options     []string `json:"options"`
}

type rawInteractive struct {
	Text     string `json:"text"`
	Href     string `json:"href"`
	Selector string `json:"selector"`
}

type rawIframe struct {
	Name string `json:"name"`
	Src  string `json:"src"`
}

type rawElement struct {
	Tag   string `json:"tag"`
	Class string `json:"class"`
	Depth int    `json:"depth"`
	Text  string `json:"text"`
}

// Collector produces bounded PageContext snapshots from a live page
// (spec.md §4.3).
type Collector struct {
	// DOMPreviewFloor is the minimum dom_preview size the reduction
	// schedule will not go below.
	DOMPreviewFloor int
	// ReductionFactor shrinks the dom_preview budget after the first step
	// (e.g. 0.6 keeps 60% of the prior budget each call).
	ReductionFactor float64
	// BodyTextMaxChars hard-caps the captured page body text regardless of
	// the dom_preview reduction schedule above. Unlike DOMPreviewFloor this
	// never shrinks across steps; it corresponds to the task's
	// dom_max_chars setting.
	BodyTextMaxChars int

	step int
}

// NewCollector returns a Collector with spec.md §3's stated defaults
// (budget 500, floor 50, reduction factor 0.6).
func NewCollector() *Collector {
	return &Collector{DOMPreviewFloor: 50, ReductionFactor: 0.6, BodyTextMaxChars: 5000}
}

// Collect captures a PageContext bounded by budgetChars/K dom_preview
// elements, where K is a fixed average-bytes-per-element estimate. Collect
// is safe to call repeatedly across a task's lifetime; each call after the
// first shrinks the dom_preview budget per the reduction schedule
// (spec.md §4.3 "Size discipline").
func (c *Collector) Collect(ctx context.Context, page browser.Page, budgetChars int, formOriented bool) (PageContext, error) {
	c.step++
	budget := c.domBudget(budgetChars)

	raw, err := page.Evaluate(ctx, domWalkScript)
	if err != nil {
		return PageContext{}, fmt.Errorf("pagecontext: evaluate dom walk: %w", err)
	}
	var w rawWalk
	if err := decodeEvalResult(raw, &w); err != nil {
		return PageContext{}, fmt.Errorf("pagecontext: decode dom walk result: %w", err)
	}

	pc := PageContext{
		Title:      w.Title,
		URL:        page.URL(),
		CapturedAt: time.Now(),
		Headings:   w.Headings,
		Text:       truncate(w.BodyText, c.bodyTextMaxChars()),
	}
	pc.Forms = buildForms(w.Forms)
	pc.DOMPreview = buildDOMPreview(w.Elements, budget)
	pc.Iframes = dedupeIframes(w.Iframes)
	pc.Interactive = InteractiveSummary{
		Buttons: buildInteractive(w.InteractiveButtons),
		Links:   buildInteractive(w.InteractiveLinks),
	}

	if formOriented {
		// Form-oriented tasks don't need the listing/article signal data;
		// dropping it keeps the serialized size well under the
		// hierarchical threshold for typical contact-form pages.
		pc.DOMPreview = trimNonFormElements(pc.DOMPreview)
	}
	return pc, nil
}

func (c *Collector) bodyTextMaxChars() int {
	if c.BodyTextMaxChars <= 0 {
		return 5000
	}
	return c.BodyTextMaxChars
}

// domBudget applies the monotonic reduction schedule: budgetChars/K on the
// first call, shrinking by ReductionFactor on each subsequent call, with a
// floor of DOMPreviewFloor.
func (c *Collector) domBudget(budgetChars int) int {
	const bytesPerElement = 120
	base := budgetChars / bytesPerElement
	if base <= 0 {
		base = 500
	}
	if c.step <= 1 {
		if base < c.DOMPreviewFloor {
			return c.DOMPreviewFloor
		}
		return base
	}
	factor := c.ReductionFactor
	if factor <= 0 || factor >= 1 {
		factor = 0.6
	}
	for i := 1; i < c.step; i++ {
		base = int(float64(base) * factor)
	}
	if base < c.DOMPreviewFloor {
		return c.DOMPreviewFloor
	}
	return base
}

func buildForms(raw []rawForm) []FormOutline {
	out := make([]FormOutline, 0, len(raw))
	for _, f := range raw {
		types := map[string]int{}
		fields := make([]FieldDescriptor, 0, len(f.Fields))
		for _, fr := range f.Fields {
			t := fr.Type
			if t == "" {
				t = "text"
			}
			types[t]++
			fields = append(fields, FieldDescriptor{
				Name: fr.Name, ID: fr.ID, Type: t, Required: fr.Required,
				Label: fr.Label, Placeholder: fr.Placeholder, Options: fr.Options,
			})
		}
		out = append(out, FormOutline{
			ID: f.ID, Action: f.Action, Method: strings.ToLower(f.Method),
			FieldCount: len(fields), FieldTypes: types, Fields: fields,
		})
	}
	return out
}

// Outline strips a FormOutline's detailed Fields slice, leaving only the
// count/type summary the Level 1 planner is allowed to see (spec.md §4.2
// "FormOutline records without the fields detail").
func (f FormOutline) Outline() FormOutline {
	o := f
	o.Fields = nil
	return o
}

func buildDOMPreview(raw []rawElement, budget int) []DOMElement {
	out := make([]DOMElement, 0, min(len(raw), budget))
	for _, el := range raw {
		if len(out) >= budget {
			break
		}
		out = append(out, DOMElement{
			Tag: el.Tag, Class: el.Class, Depth: el.Depth, Text: el.Text,
			HasPrice: priceLikeRE.MatchString(el.Text),
			HasLink:  el.Tag == "a",
			HasImage: el.Tag == "img",
		})
	}
	return out
}

func buildInteractive(raw []rawInteractive) []InteractiveElement {
	out := make([]InteractiveElement, 0, len(raw))
	for _, r := range raw {
		out = append(out, InteractiveElement{Text: strings.TrimSpace(r.Text), Href: r.Href, Selector: r.Selector})
	}
	return out
}

func dedupeIframes(raw []rawIframe) []IframeInfo {
	seen := map[string]bool{}
	out := make([]IframeInfo, 0, len(raw))
	for _, r := range raw {
		key := r.Src
		if key == "" {
			key = r.Name
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		isCaptcha, hint := captchaSignal(r.Name, r.Src)
		out = append(out, IframeInfo{Name: r.Name, Src: r.Src, IsCaptcha: isCaptcha, CaptchaHint: hint})
	}
	return out
}

var captchaMarkers = []string{"recaptcha", "hcaptcha", "turnstile", "captcha", "funcaptcha", "arkose"}

func captchaSignal(name, src string) (bool, string) {
	lower := strings.ToLower(name + " " + src)
	for _, m := range captchaMarkers {
		if strings.Contains(lower, m) {
			return true, m
		}
	}
	return false, ""
}

func trimNonFormElements(els []DOMElement) []DOMElement {
	out := els[:0:0]
	for _, el := range els {
		if el.Tag == "form" || el.Tag == "input" || el.Tag == "select" || el.Tag == "textarea" || el.Tag == "label" || el.Tag == "button" {
			out = append(out, el)
		}
	}
	if len(out) == 0 {
		return els
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// decodeEvalResult accepts either a JSON string (the common case, since
// domWalkScript returns JSON.stringify(...)) or an already-decoded value
// from drivers that auto-unmarshal page.Evaluate results.
func decodeEvalResult(raw any, out *rawWalk) error {
	switch v := raw.(type) {
	case string:
		return json.Unmarshal([]byte(v), out)
	case []byte:
		return json.Unmarshal(v, out)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		return json.Unmarshal(b, out)
	}
}
