// Package extract implements the Dynamic Pattern Detector and Iterative
// Extractor: zero-hardcoded-selector discovery of repeated product
// containers on an arbitrary listing page, followed by field-level
// extraction and instruction-derived filtering (spec.md §4.4). No step in
// this package names a CSS class or id known only to a specific site;
// every selector it builds is composed from element-type semantics
// (tag, attribute presence) and structural position.
package extract

import "context"

type (
	// ProductRecord is one extracted listing entry.
	ProductRecord struct {
		Name     string
		Price    float64
		Currency string
		URL      string
		ImageURL string
		RawPrice string
	}

	// Result is the Detector's full output, including the statistics it
	// used to reach its decision (spec.md §4.4 "stored in the result's
	// metadata for transparency and for the Run Logger").
	Result struct {
		Products []ProductRecord
		Reason   string
		Metadata map[string]any
	}

	// Filter narrows extracted products by price, derived from the
	// instruction text (spec.md §4.4 step 8).
	Filter struct {
		Under    *float64
		Above    *float64
		Currency string
	}
)

const (
	ReasonPageTypeMismatch  = "page_type_mismatch"
	ReasonNoViableContainer = "no_viable_container"
	ReasonPartialFields     = "partial_fields"
	ReasonOK                = ""
)

// SemanticValidator is the optional LLM-backed check used to break ties
// among the top statistical candidates (spec.md §4.4 step 6). Detector
// falls back to the pure statistical winner when Validator is nil or every
// call errors.
type SemanticValidator interface {
	Validate(ctx context.Context, sampleText string) (isValid bool, confidence float64, err error)
}
