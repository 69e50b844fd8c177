package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/webpilot-ai/webpilot/runtime/browser"
)

// priceLikeRE recognizes locale-tolerant decimal price text: an optional
// currency symbol or code, digits, and an optional grouping/decimal
// separator (spec.md §4.4 step 1 "a locale-tolerant regex for decimals
// with optional currency symbols").
var priceLikeRE = regexp.MustCompile(`[$£€¥]\s?\d[\d,.\s]*\d|\d[\d,.\s]*\d\s?(?:USD|EUR|GBP|PLN|CHF)\b`)

// productHrefRE recognizes anchor hrefs shaped like a product detail page:
// a numeric id segment, or a path segment containing "product"/"item"/"p"
// followed by a slug. These are HTML-semantics-agnostic URL shapes, not
// site-specific selectors.
var productHrefRE = regexp.MustCompile(`/(?:p|product|products|item|items|dp)/[\w-]+|/[\w-]+-\d{4,}(?:[/?]|$)|\d{5,}`)

// signalWalkScript enumerates every element under <body> once and reports,
// for each, enough structural data for the detector's statistics: tag,
// class, depth, parent index, own-text signal flags, and subtree signal
// flags (computed via innerText/querySelector, which already aggregate
// descendants — so no explicit recursion is needed client-side).
const signalWalkScript = `(() => {
  function ownText(el) {
    let s = '';
    for (const n of el.childNodes) {
      if (n.nodeType === 3) s += n.textContent;
    }
    return s.trim().slice(0, 200);
  }
  function cssPath(el) {
    if (el.id) return '#' + el.id;
    let p = el.tagName.toLowerCase();
    if (el.className && typeof el.className === 'string' && el.className.trim()) {
      p += '.' + el.className.trim().split(/\s+/).join('.');
    }
    return p;
  }
  const all = document.body ? Array.from(document.body.querySelectorAll('*')) : [];
  const index = new Map();
  all.forEach((el, i) => index.set(el, i));
  const out = all.map((el, i) => {
    let depth = 0, n = el;
    while (n && n.parentElement) { n = n.parentElement; depth++; }
    const parentIdx = el.parentElement && index.has(el.parentElement) ? index.get(el.parentElement) : -1;
    const cls = (el.className && typeof el.className === 'string') ? el.className.trim() : '';
    return {
      idx: i,
      parentIdx,
      tag: el.tagName.toLowerCase(),
      cls,
      classCount: cls ? cls.split(/\s+/).length : 0,
      depth,
      ownText: ownText(el),
      innerTextLen: (el.innerText || el.textContent || '').trim().length,
      isAnchor: el.tagName === 'A' && !!el.getAttribute('href'),
      href: el.tagName === 'A' ? (el.getAttribute('href') || '') : '',
      isImg: el.tagName === 'IMG' && !!(el.getAttribute('src') || el.getAttribute('data-src')),
      src: el.tagName === 'IMG' ? (el.getAttribute('src') || el.getAttribute('data-src') || '') : '',
      hasPriceSub: priceLikeHint(el),
      hasLinkSub: !!el.querySelector('a[href]'),
      hasImageSub: !!el.querySelector('img[src], img[data-src]'),
      selector: cssPath(el),
    };
  });
  function priceLikeHint(el) {
    const t = (el.innerText || el.textContent || '');
    return /[$£€¥]\s?\d|\d\s?(?:USD|EUR|GBP|PLN|CHF)\b/.test(t);
  }
  return JSON.stringify(out);
})()`

type rawNode struct {
	Idx          int    `json:"idx"`
	ParentIdx    int    `json:"parentIdx"`
	Tag          string `json:"tag"`
	Class        string `json:"cls"`
	ClassCount   int    `json:"classCount"`
	Depth        int    `json:"depth"`
	OwnText      string `json:"ownText"`
	InnerTextLen int    `json:"innerTextLen"`
	IsAnchor     bool   `json:"isAnchor"`
	Href         string `json:"href"`
	IsImg        bool   `json:"isImg"`
	Src          string `json:"src"`
	HasPriceSub  bool   `json:"hasPriceSub"`
	HasLinkSub   bool   `json:"hasLinkSub"`
	HasImageSub  bool   `json:"hasImageSub"`
	Selector     string `json:"selector"`
}

func (n rawNode) hasPriceSelf() bool { return priceLikeRE.MatchString(n.OwnText) }
func (n rawNode) hasProductHref() bool {
	return n.IsAnchor && productHrefRE.MatchString(n.Href)
}

func walkSignals(ctx context.Context, page browser.Page) ([]rawNode, error) {
	raw, err := page.Evaluate(ctx, signalWalkScript)
	if err != nil {
		return nil, fmt.Errorf("extract: evaluate signal walk: %w", err)
	}
	var nodes []rawNode
	if err := decodeEval(raw, &nodes); err != nil {
		return nil, fmt.Errorf("extract: decode signal walk result: %w", err)
	}
	return nodes, nil
}

func decodeEval(raw any, out any) error {
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
