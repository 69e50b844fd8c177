package formfill

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/webpilot-ai/webpilot/runtime/browser"
	"github.com/webpilot-ai/webpilot/runtime/pagecontext"
)

// fieldSelector builds an element-type selector for fd, preferring an id
// or name attribute (when present on the page) and falling back to a
// positional selector among same-typed fields — never a site-specific
// class (spec.md §4.4/§4.5 invariant: "no site-specific selectors appear
// in the code path").
func fieldSelector(fd pagecontext.FieldDescriptor, idx int) string {
	switch {
	case fd.ID != "":
		return "#" + fd.ID
	case fd.Name != "":
		return fmt.Sprintf(`[name="%s"]`, fd.Name)
	default:
		t := fd.Type
		if t == "" {
			t = "text"
		}
		return fmt.Sprintf(`input[type="%s"]:nth-of-type(%d)`, t, idx+1)
	}
}

// attemptFill implements step 3's three-tier fallback: the driver's
// high-level fill primitive, then character-by-character typing, then a
// manual value assignment plus dispatched events via page-evaluate.
func attemptFill(ctx context.Context, page browser.Page, selector, value string) error {
	if err := page.Fill(ctx, selector, value); err == nil {
		return nil
	}
	if err := page.Type(ctx, selector, value); err == nil {
		return nil
	}
	selLit, valLit := jsStringLiteral(selector), jsStringLiteral(value)
	script := fmt.Sprintf(manualAssignScript, selLit, valLit, valLit)
	if _, err := page.Evaluate(ctx, script); err != nil {
		return fmt.Errorf("formfill: all fill strategies failed for %q: %w", selector, err)
	}
	return nil
}

const manualAssignScript = `(() => {
  const el = document.querySelector(%s);
  if (!el) return false;
  const proto = Object.getPrototypeOf(el);
  const setter = Object.getOwnPropertyDescriptor(proto, 'value');
  if (setter && setter.set) { setter.set.call(el, %s); } else { el.value = %s; }
  el.dispatchEvent(new Event('input', { bubbles: true }));
  el.dispatchEvent(new Event('change', { bubbles: true }));
  el.dispatchEvent(new Event('blur', { bubbles: true }));
  return true;
})()`

func jsStringLiteral(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
