// Package formfill implements the Per-Field Form Filler with Adaptive
// Retry (spec.md §4.5): fills a form one field at a time, validating and
// retrying as needed, with an LLM choosing each field's value.
package formfill

type (
	// FieldStatus is the terminal disposition of one field fill attempt.
	FieldStatus string

	// FieldResult records what happened to one field.
	FieldResult struct {
		Name      string
		Status    FieldStatus
		Value     string
		Attempts  int
		LastError string
	}

	// Result is the Filler's full outcome for one form (spec.md §4.5
	// "Entry contract").
	Result struct {
		FieldsFilled []FieldResult
		FilledCount  int
		Submitted    bool
		Errors       []string
		// Reason explains a Submitted result that did not come from a fresh
		// submission, e.g. "no-op" when the Task Runner skipped re-running
		// an already-succeeded idempotent form.fill call (spec.md §8
		// "re-invoking the same task after success yields submitted=true
		// with a 'no-op' reason").
		Reason string
	}

	// Options tunes retry and submission behavior; the zero value applies
	// spec.md §4.5's stated defaults via Options.resolve.
	Options struct {
		// MaxSameError bounds remediation attempts for one field after it
		// first fails validation. Default 2.
		MaxSameError int
		// SubmitWaitMS bounds how long Fill waits after submit for success
		// signals to appear. Default 2000.
		SubmitWaitMS int
	}
)

const (
	StatusFilled  FieldStatus = "filled"
	StatusFailed  FieldStatus = "failed"
	StatusSkipped FieldStatus = "skipped"
)

func (o Options) resolve() Options {
	if o.MaxSameError <= 0 {
		o.MaxSameError = 2
	}
	if o.SubmitWaitMS <= 0 {
		o.SubmitWaitMS = 2000
	}
	return o
}

// fieldDecision is the LLM's per-field reply (spec.md §4.5 step 2).
type fieldDecision struct {
	Value      string  `json:"value"`
	Skip       bool    `json:"skip"`
	Reason     string  `json:"reason"`
	Confidence float64 `json:"confidence"`
}
