package formfill

import (
	"context"
	"fmt"
	"strings"

	"github.com/webpilot-ai/webpilot/runtime/browser"
)

// invalidCheckScript inspects selector for aria-invalid, a small set of
// common framework error-class prefixes used only as signals (not
// site-specific selectors), and an adjacent text node matching a generic
// invalid/required pattern (spec.md §4.5 step 4).
const invalidCheckScript = `(() => {
  const el = document.querySelector(%s);
  if (!el) return { invalid: false, reason: '' };
  if (el.getAttribute('aria-invalid') === 'true') return { invalid: true, reason: 'aria-invalid' };
  const errorPrefixes = ['is-invalid', 'error', 'has-error', 'field-error', 'input-error'];
  const cls = (el.className || '') + '';
  for (const p of errorPrefixes) {
    if (cls.split(/\s+/).some(c => c.toLowerCase().includes(p))) return { invalid: true, reason: 'error-class:' + p };
  }
  const sibling = el.parentElement;
  if (sibling) {
    const text = (sibling.innerText || '').toLowerCase();
    if (/\b(invalid|required|must (be|contain)|please enter|this field)\b/.test(text)) {
      return { invalid: true, reason: 'adjacent-text' };
    }
  }
  return { invalid: false, reason: '' };
})()`

func checkInvalid(ctx context.Context, page browser.Page, selector string) (bool, string) {
	script := fmt.Sprintf(invalidCheckScript, jsStringLiteral(selector))
	raw, err := page.Evaluate(ctx, script)
	if err != nil {
		return false, ""
	}
	var result struct {
		Invalid bool   `json:"invalid"`
		Reason  string `json:"reason"`
	}
	if err := decodeEval(raw, &result); err != nil {
		return false, ""
	}
	return result.Invalid, result.Reason
}

// consentCheckboxScript finds an unchecked checkbox that is either marked
// required or whose associated label text matches a generic consent
// pattern, and returns a selector for it.
const consentCheckboxScript = `(() => {
  function labelText(el) {
    if (el.labels && el.labels.length) return el.labels[0].innerText || '';
    if (el.id) {
      const l = document.querySelector('label[for="' + el.id + '"]');
      if (l) return l.innerText || '';
    }
    return el.closest('label') ? el.closest('label').innerText || '' : '';
  }
  const boxes = Array.from(document.querySelectorAll('input[type="checkbox"]'));
  for (let i = 0; i < boxes.length; i++) {
    const b = boxes[i];
    if (b.checked) continue;
    const required = b.required;
    const text = labelText(b);
    if (required || %s.test(text)) {
      if (b.id) return '#' + b.id;
      if (b.name) return '[name="' + b.name + '"]';
      return 'input[type="checkbox"]:nth-of-type(' + (i + 1) + ')';
    }
  }
  return '';
})()`

// jsConsentPattern is the generic consent-label pattern, written as a
// JavaScript regex literal since it's spliced into consentCheckboxScript.
const jsConsentPattern = `/\b(i agree|i accept|terms (and|&) conditions|privacy policy|gdpr|subscribe)\b/i`

func (f *Filler) tickConsent(ctx context.Context, page browser.Page) error {
	script := fmt.Sprintf(consentCheckboxScript, jsConsentPattern)
	raw, err := page.Evaluate(ctx, script)
	if err != nil {
		return err
	}
	selector, _ := raw.(string)
	if selector == "" {
		return nil
	}
	return page.Click(ctx, selector)
}

var submitVerbs = []string{"submit", "send", "continue", "next", "confirm", "sign up", "register", "order"}

// submitScript finds the form's submit control, preferring
// button[type=submit], falling back to any visible button whose label
// matches a generic submit verb.
const submitScript = `(() => {
  const form = document.querySelector('form');
  const scope = form || document;
  let btn = scope.querySelector('button[type="submit"], input[type="submit"]');
  if (btn) return btn.id ? '#' + btn.id : 'button[type="submit"], input[type="submit"]';
  const buttons = Array.from(scope.querySelectorAll('button, input[type="button"]'));
  for (let i = 0; i < buttons.length; i++) {
    const b = buttons[i];
    if (!(b.offsetWidth || b.offsetHeight || b.getClientRects().length)) continue;
    const text = (b.innerText || b.value || '').toLowerCase();
    if (%s.some(v => text.includes(v))) {
      if (b.id) return '#' + b.id;
      if (b.name) return '[name="' + b.name + '"]';
      return b.tagName.toLowerCase() + ':nth-of-type(' + (i + 1) + ')';
    }
  }
  return '';
})()`

func (f *Filler) submit(ctx context.Context, page browser.Page, opts Options) (bool, []string) {
	beforeURL := page.URL()

	script := fmt.Sprintf(submitScript, jsonMarshalStrings(submitVerbs))
	raw, err := page.Evaluate(ctx, script)
	if err != nil {
		return false, []string{fmt.Sprintf("locate submit control: %v", err)}
	}
	selector, _ := raw.(string)
	if selector == "" {
		return false, []string{"no submit control found"}
	}
	if err := page.Click(ctx, selector); err != nil {
		return false, []string{fmt.Sprintf("click submit: %v", err)}
	}
	_ = page.WaitForTimeout(ctx, opts.SubmitWaitMS)

	return detectSuccess(ctx, page, beforeURL), nil
}

// successBannerRE recognizes a generic confirmation message, not tied to
// any site's wording (spec.md §4.5 step 8).
var successBannerRE = "thank you|success|submitted|we.?ll be in touch|sent|received your|confirmation"

const successCheckScript = `(() => {
  const text = (document.body ? document.body.innerText : '').toLowerCase();
  return { hasForm: !!document.querySelector('form'), bannerMatch: %s.test(text) };
})()`

func detectSuccess(ctx context.Context, page browser.Page, beforeURL string) bool {
	if page.URL() != "" && beforeURL != "" && page.URL() != beforeURL {
		return true
	}
	script := fmt.Sprintf(successCheckScript, "/"+successBannerRE+"/i")
	raw, err := page.Evaluate(ctx, script)
	if err != nil {
		return false
	}
	var result struct {
		HasForm     bool `json:"hasForm"`
		BannerMatch bool `json:"bannerMatch"`
	}
	if err := decodeEval(raw, &result); err != nil {
		return false
	}
	return result.BannerMatch || !result.HasForm
}

func jsonMarshalStrings(ss []string) string {
	quoted := make([]string, len(ss))
	for i, s := range ss {
		quoted[i] = jsStringLiteral(s)
	}
	return "[" + strings.Join(quoted, ",") + "]"
}
