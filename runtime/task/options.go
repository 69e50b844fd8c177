package task

import "time"

// Options mirrors spec.md §6's recognized option keys. The zero value is
// not directly usable; call resolve (or construct via DefaultOptions) to
// apply defaults.
type Options struct {
	VisualMode                bool
	StealthMode               bool
	Headless                  *bool // nil defaults to true
	MaxSteps                  int
	StepTimeout               time.Duration
	LLMTimeout                time.Duration
	LLMMaxRetries             int
	ContextMaxChars           int
	HierarchicalPlanner       *bool // nil means auto
	HierarchicalThresholdChars int
	SessionKey                string
	// DOMMaxChars hard-caps the captured page body text independent of the
	// dom_preview reduction schedule ContextMaxChars drives. Zero keeps the
	// pagecontext.Collector default (5000).
	DOMMaxChars               int
	MaxSameError              int
	// TaskTimeout bounds the task's total wall-clock budget. Not named in
	// spec.md's option table directly but implied by §5's "wall-clock
	// deadline"; defaults to MaxSteps*StepTimeout*2 when zero.
	TaskTimeout time.Duration
}

// DefaultOptions returns Options with every spec.md §6 default applied.
func DefaultOptions() Options {
	return Options{}.resolve()
}

func (o Options) resolve() Options {
	if o.MaxSteps <= 0 {
		o.MaxSteps = 20
	}
	if o.StepTimeout <= 0 {
		o.StepTimeout = 25 * time.Second
	}
	if o.LLMTimeout <= 0 {
		o.LLMTimeout = 300 * time.Second
	}
	if o.LLMMaxRetries <= 0 {
		o.LLMMaxRetries = 3
	}
	if o.ContextMaxChars <= 0 {
		o.ContextMaxChars = 60000
	}
	if o.HierarchicalThresholdChars <= 0 {
		o.HierarchicalThresholdChars = 25000
	}
	if o.MaxSameError <= 0 {
		o.MaxSameError = 2
	}
	if o.TaskTimeout <= 0 {
		o.TaskTimeout = time.Duration(o.MaxSteps) * o.StepTimeout * 2
	}
	return o
}

func (o Options) headless() bool {
	if o.Headless == nil {
		return true
	}
	return *o.Headless
}
