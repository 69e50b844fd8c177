package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/webpilot-ai/webpilot/runtime/browser"
)

// extractScriptTemplate re-derives each container's field locations
// independently using the same element-type heuristics described in
// spec.md §4.4 step 7 (longest anchor, first heading, first price-shaped
// own-text node, first non-trivial image), rather than reusing one
// fixed relative selector string across every container. Real listing
// pages frequently interleave ads, lazy-load placeholders, and sponsored
// cards among otherwise-identical siblings; re-running the heuristic per
// container is more robust to that than trusting one selector to match
// every sibling, while remaining exactly as selector-agnostic (see
// DESIGN.md).
const extractScriptTemplate = `(function(containerSelector){
  function text(el) { return (el.innerText || el.textContent || '').trim(); }
  var priceRE = /[$£€¥]\s?\d[\d,.\s]*\d|\d[\d,.\s]*\d\s?(?:USD|EUR|GBP|PLN|CHF)\b/;
  var containers = Array.from(document.querySelectorAll(containerSelector));
  function extractOne(c) {
    var priceText = '', url = '', imageUrl = '', name = '';
    var all = Array.from(c.querySelectorAll('*'));
    for (var i = 0; i < all.length && !priceText; i++) {
      var el = all[i], own = '';
      for (var j = 0; j < el.childNodes.length; j++) {
        if (el.childNodes[j].nodeType === 3) own += el.childNodes[j].textContent;
      }
      own = own.trim();
      if (priceRE.test(own)) priceText = own;
    }
    if (!priceText) {
      var m = text(c).match(priceRE);
      if (m) priceText = m[0];
    }
    var bestAnchor = null, bestLen = -1;
    var anchors = c.querySelectorAll('a[href]');
    for (var k = 0; k < anchors.length; k++) {
      var len = text(anchors[k]).length;
      if (len > bestLen) { bestLen = len; bestAnchor = anchors[k]; }
    }
    if (bestAnchor) url = bestAnchor.href;
    var heading = c.querySelector('h1,h2,h3,h4,h5,h6');
    if (heading) name = text(heading);
    if (!name) {
      var bestEl = null, bestTextLen = -1;
      for (var n = 0; n < all.length; n++) {
        var t = text(all[n]);
        if (t.length > 20 && t.length < 200 && t.length > bestTextLen && !priceRE.test(t)) {
          bestTextLen = t.length; bestEl = all[n];
        }
      }
      if (bestEl) name = text(bestEl);
    }
    var img = c.querySelector('img[src], img[data-src]');
    if (img) imageUrl = img.getAttribute('src') || img.getAttribute('data-src') || '';
    return { name: name, priceText: priceText, url: url, imageUrl: imageUrl };
  }
  return JSON.stringify(containers.map(extractOne));
})(%s)`

type rawProduct struct {
	Name      string `json:"name"`
	PriceText string `json:"priceText"`
	URL       string `json:"url"`
	ImageURL  string `json:"imageUrl"`
}

// buildContainerSelector implements step 4's "most specific selector
// shared by all elements in the cluster": the exact class string shared by
// the largest sub-group of members, combined with the tag. Falls back to a
// bare tag selector when no class string is shared by at least half of
// the members.
func buildContainerSelector(members []rawNode) string {
	tag := members[0].Tag
	counts := map[string]int{}
	for _, m := range members {
		counts[m.Class]++
	}
	bestClass, bestN := "", 0
	for cls, n := range counts {
		if n > bestN {
			bestN, bestClass = n, cls
		}
	}
	if bestClass == "" || bestN*2 < len(members) {
		return tag
	}
	classes := strings.Fields(bestClass)
	sel := tag
	for _, c := range classes {
		sel += "." + cssEscape(c)
	}
	return sel
}

func cssEscape(class string) string {
	// Class names from the live DOM rarely need escaping; guard the
	// characters that would break a querySelectorAll string literal.
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`, `'`, `\'`).Replace(class)
}

// extractFrom implements steps 7-8: locate and extract fields from every
// container sharing winner's structural signature, parse prices, and
// apply filter. Returns products plus the fraction of extracted records
// with all three of name/price/url populated.
func (d *Detector) extractFrom(ctx context.Context, page browser.Page, winner *candidate, filter Filter) ([]ProductRecord, float64, error) {
	selector := buildContainerSelector(winner.members)
	selJSON, err := json.Marshal(selector)
	if err != nil {
		return nil, 0, fmt.Errorf("extract: encode container selector: %w", err)
	}
	script := fmt.Sprintf(extractScriptTemplate, string(selJSON))

	raw, err := page.Evaluate(ctx, script)
	if err != nil {
		return nil, 0, fmt.Errorf("extract: evaluate extraction script: %w", err)
	}
	var rawProducts []rawProduct
	if err := decodeEval(raw, &rawProducts); err != nil {
		return nil, 0, fmt.Errorf("extract: decode extraction result: %w", err)
	}

	complete := 0
	products := make([]ProductRecord, 0, len(rawProducts))
	for _, rp := range rawProducts {
		price, currency := parsePrice(rp.PriceText)
		rec := ProductRecord{
			Name: strings.TrimSpace(rp.Name), Price: price, Currency: currency,
			URL: rp.URL, ImageURL: rp.ImageURL, RawPrice: rp.PriceText,
		}
		if rec.Name != "" && rec.Price > 0 && rec.URL != "" {
			complete++
		}
		if !passesFilter(rec, filter) {
			continue
		}
		products = append(products, rec)
	}

	completeness := 0.0
	if len(rawProducts) > 0 {
		completeness = float64(complete) / float64(len(rawProducts))
	}
	return products, completeness, nil
}

// parsePrice extracts a numeric value and currency hint from raw price
// text, detecting the locale's decimal separator from the final
// punctuation mark before at most two trailing digits (spec.md §4.4 step 8
// "locale-aware decimal separator detection").
func parsePrice(raw string) (float64, string) {
	currency := currencyOf(raw)
	digits := make([]rune, 0, len(raw))
	for _, r := range raw {
		if (r >= '0' && r <= '9') || r == '.' || r == ',' {
			digits = append(digits, r)
		}
	}
	s := string(digits)
	if s == "" {
		return 0, currency
	}
	// Determine the decimal separator: the last '.'/',' is the decimal
	// point when at most two digits follow it; everything
	// else (including the other separator) is a grouping mark to strip.
	decSep := byte(0)
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '.' || s[i] == ',' {
			if len(s)-i-1 <= 2 {
				decSep = s[i]
			}
			break
		}
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '.' || c == ',' {
			if decSep != 0 && c == decSep && strings.IndexByte(s[i+1:], decSep) == -1 {
				b.WriteByte('.')
			}
			continue
		}
		b.WriteByte(c)
	}
	v, err := strconv.ParseFloat(b.String(), 64)
	if err != nil {
		return 0, currency
	}
	return v, currency
}

func currencyOf(raw string) string {
	switch {
	case strings.ContainsAny(raw, "$"):
		return "USD"
	case strings.ContainsAny(raw, "£"):
		return "GBP"
	case strings.ContainsAny(raw, "€"):
		return "EUR"
	case strings.ContainsAny(raw, "¥"):
		return "JPY"
	case strings.Contains(raw, "USD"):
		return "USD"
	case strings.Contains(raw, "EUR"):
		return "EUR"
	case strings.Contains(raw, "GBP"):
		return "GBP"
	case strings.Contains(raw, "PLN"):
		return "PLN"
	case strings.Contains(raw, "CHF"):
		return "CHF"
	default:
		return ""
	}
}

func passesFilter(rec ProductRecord, f Filter) bool {
	if f.Under != nil && rec.Price >= *f.Under {
		return false
	}
	if f.Above != nil && rec.Price <= *f.Above {
		return false
	}
	if f.Currency != "" && rec.Currency != "" && !strings.EqualFold(f.Currency, rec.Currency) {
		return false
	}
	return true
}
