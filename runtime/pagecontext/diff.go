package pagecontext

import "fmt"

// Diff describes what changed between two PageContext snapshots, line by
// line, for the Run Logger's "changes only" invariant (spec.md §4.7:
// "only changes in PageContext are logged verbatim; unchanged sections
// emit a one-line 'unchanged' note").
type Diff struct {
	Lines []string
}

// DiffPageContext compares prev against cur and returns a human-readable
// diff. prev may be the zero value for the first step, in which case every
// section that is non-empty in cur is reported as changed and every empty
// one as unchanged.
func DiffPageContext(prev, cur PageContext) Diff {
	var d Diff
	note := func(name string, changed bool, detail string) {
		if changed {
			d.Lines = append(d.Lines, fmt.Sprintf("- %s: %s", name, detail))
		} else {
			d.Lines = append(d.Lines, fmt.Sprintf("- %s: unchanged", name))
		}
	}

	note("title", prev.Title != cur.Title, fmt.Sprintf("%q -> %q", prev.Title, cur.Title))
	note("url", prev.URL != cur.URL, fmt.Sprintf("%q -> %q", prev.URL, cur.URL))
	note("headings", !equalStrings(prev.Headings, cur.Headings), fmt.Sprintf("%d -> %d", len(prev.Headings), len(cur.Headings)))
	note("forms", len(prev.Forms) != len(cur.Forms), fmt.Sprintf("%d -> %d", len(prev.Forms), len(cur.Forms)))
	note("dom_preview", len(prev.DOMPreview) != len(cur.DOMPreview), fmt.Sprintf("%d -> %d elements", len(prev.DOMPreview), len(cur.DOMPreview)))
	note("iframes", len(prev.Iframes) != len(cur.Iframes), fmt.Sprintf("%d -> %d", len(prev.Iframes), len(cur.Iframes)))
	note("text", prev.Text != cur.Text, fmt.Sprintf("%d -> %d chars", len(prev.Text), len(cur.Text)))
	return d
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
