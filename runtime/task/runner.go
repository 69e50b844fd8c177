package task

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/webpilot-ai/webpilot/runtime/browser"
	"github.com/webpilot-ai/webpilot/runtime/formfill"
	"github.com/webpilot-ai/webpilot/runtime/pagecontext"
	"github.com/webpilot-ai/webpilot/runtime/planner"
	"github.com/webpilot-ai/webpilot/runtime/runlog"
	"github.com/webpilot-ai/webpilot/runtime/session"
	"github.com/webpilot-ai/webpilot/runtime/telemetry"
	"github.com/webpilot-ai/webpilot/runtime/tools"
	"github.com/webpilot-ai/webpilot/runtime/toolregistry"
)

// Runner executes run_task against a shared Launcher, Tool Registry, and
// Planner (spec.md §4.1, §5 "Shared-resource policy": these collaborators
// are process-wide and read-only; everything else here is per-task).
type Runner struct {
	Launcher browser.Launcher
	Tools    *toolregistry.Registry
	Planner  *planner.Planner
	RunLog   runlog.Store

	// SessionStore and SessionLock are optional; when SessionKey is set
	// in Options, both must be non-nil.
	SessionStore session.Store
	SessionLock  session.Lock

	HostLimiter *toolregistry.HostLimiter
	Logger      telemetry.Logger
	Metrics     telemetry.Metrics
	Tracer      telemetry.Tracer

	ScreenshotDir string
}

// stallWindow is the rolling window size over which repeated
// (tool, error_signature) pairs are detected (spec.md §4.1 step 5).
const stallWindow = 3

// Run executes one task end to end.
func (r *Runner) Run(ctx context.Context, url, instruction string, opts Options) Result {
	opts = opts.resolve()
	runID := uuid.NewString()
	logger := r.loggerOrNoop()
	tracer := r.tracerOrNoop()

	ctx, span := tracer.Start(ctx, "task.run")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, opts.TaskTimeout)
	defer cancel()

	logger.Info(ctx, "task started", "run_id", runID, "url", url)
	r.logEvent(ctx, runID, runlog.SectionHeader, -1, "task started", fmt.Sprintf("instruction: %s\nurl: %s\nmax_steps: %d", instruction, url, opts.MaxSteps), nil)

	start := time.Now()
	defer func() { r.metricsOrNoop().RecordTimer("task.duration", time.Since(start)) }()

	launched, sess, page, closeAll, err := r.openPage(ctx, opts)
	if err != nil {
		logger.Error(ctx, "could not open browser page", "run_id", runID, "error", err)
		e := newError(ErrorExternal, "could not open browser page", "verify the browser driver is reachable", err)
		return r.finish(ctx, runID, false, nil, 0, e, "", nil)
	}
	defer closeAll()
	_, _ = launched, sess

	if err := r.navigateWithRetry(ctx, page, url); err != nil {
		e := newError(ErrorExternal, fmt.Sprintf("navigation to %q failed after retries", url), "verify the URL is reachable", err)
		return r.finish(ctx, runID, false, nil, 0, e, "", nil)
	}

	collector := pagecontext.NewCollector()
	if opts.DOMMaxChars > 0 {
		collector.BodyTextMaxChars = opts.DOMMaxChars
	}
	var history planner.ToolHistory
	var screenshots []string
	abandoned := map[string]bool{}
	type signatureKey struct {
		tool string
		sig  string
	}
	var window []signatureKey
	var lastResult any
	var plannerFailures int
	var prevPC pagecontext.PageContext

	for step := 0; step < opts.MaxSteps; step++ {
		select {
		case <-ctx.Done():
			return r.finish(ctx, runID, false, lastResult, step, newError(ErrorExternal, "task wall-clock deadline exceeded", "", ctx.Err()), "", screenshots)
		default:
		}

		pc, err := r.observe(ctx, page, collector, opts, dominantlyFormOriented(instruction))
		if err != nil {
			return r.finish(ctx, runID, false, lastResult, step, newError(ErrorTransient, "page context capture failed", "", err), "", screenshots)
		}
		diff := pagecontext.DiffPageContext(prevPC, pc)
		r.logEvent(ctx, runID, runlog.SectionStep, step, "page context diff", strings.Join(diff.Lines, "\n"), nil)
		prevPC = pc

		stepCtx, stepCancel := context.WithTimeout(ctx, opts.StepTimeout)
		plan, err := r.Planner.DecideWithOverride(stepCtx, instruction, pc, history, step, opts.HierarchicalPlanner)
		stepCancel()
		if err != nil {
			plannerFailures++
			r.logEvent(ctx, runID, runlog.SectionStep, step, "planner error", err.Error(), nil)
			r.logPlannerTrace(ctx, runID, step, plannerTrace(err))
			history = append(history, planner.HistoryEntry{StepIndex: step, ToolName: "planner", Error: err.Error()})
			if plannerFailures > opts.LLMMaxRetries {
				e := newError(ErrorPlanner, "planner reply unparseable after retry budget exhausted", "inspect the run log for raw LLM replies", err)
				return r.finish(ctx, runID, false, lastResult, step, e, "", screenshots)
			}
			continue
		}
		plannerFailures = 0
		r.logPlannerTrace(ctx, runID, step, plan.Trace)

		switch plan.Kind {
		case planner.StepComplete:
			r.logEvent(ctx, runID, runlog.SectionStep, step, "complete", plan.Reason, nil)
			return r.finish(ctx, runID, true, lastResult, step+1, nil, "", screenshots)

		case planner.StepNavigate:
			if err := r.navigateWithRetry(ctx, page, plan.URL); err != nil {
				history = append(history, planner.HistoryEntry{StepIndex: step, ToolName: "navigate", Error: err.Error()})
				r.logEvent(ctx, runID, runlog.SectionStep, step, "navigate failed", err.Error(), nil)
				continue
			}
			history = append(history, planner.HistoryEntry{StepIndex: step, ToolName: "navigate", Result: plan.URL})
			r.logEvent(ctx, runID, runlog.SectionStep, step, "navigate", plan.URL, nil)

		case planner.StepError:
			history = append(history, planner.HistoryEntry{StepIndex: step, ToolName: "planner", Error: plan.Error})
			r.logEvent(ctx, runID, runlog.SectionStep, step, "planner surfaced error", plan.Error, nil)

		case planner.StepTool:
			if abandoned[plan.ToolName] {
				history = append(history, planner.HistoryEntry{StepIndex: step, ToolName: plan.ToolName, Error: "tool abandoned after repeated failures"})
				continue
			}
			if err := r.pace(ctx, plan); err != nil {
				history = append(history, planner.HistoryEntry{StepIndex: step, ToolName: plan.ToolName, Error: err.Error()})
				continue
			}

			if result, ok := r.idempotentNoOp(plan.ToolName, plan.Args, history); ok {
				history = append(history, planner.HistoryEntry{StepIndex: step, ToolName: plan.ToolName, Args: plan.Args, Result: result})
				lastResult = aggregate(lastResult, plan.ToolName, result)
				r.logEvent(ctx, runID, runlog.SectionStep, step, "tool no-op", fmt.Sprintf("%s: identical call already succeeded earlier in this run", plan.ToolName), nil)
				continue
			}

			toolCtx, toolCancel := context.WithTimeout(toolregistry.WithPage(ctx, page), opts.StepTimeout)
			inv := r.Tools.Call(toolCtx, toolIdent(plan.ToolName), plan.Args)
			toolCancel()

			entry := planner.HistoryEntry{StepIndex: step, ToolName: plan.ToolName, Args: plan.Args}
			if inv.Error != nil {
				entry.Error = inv.Error.Error()
				if inv.RetryHint != nil {
					entry.Error += " (" + inv.RetryHint.ClarifyingQuestion + ")"
				}
				sig := signatureKey{tool: plan.ToolName, sig: inv.Error.Signature()}
				window = append(window, sig)
				if len(window) > stallWindow {
					window = window[len(window)-stallWindow:]
				}
				if repeatsAtLeast(window, sig, opts.MaxSameError) {
					abandoned[plan.ToolName] = true
					r.logEvent(ctx, runID, runlog.SectionStep, step, "tool abandoned", fmt.Sprintf("%s repeated error: %s", plan.ToolName, sig.sig), nil)
				}
				r.logEvent(ctx, runID, runlog.SectionStep, step, "tool error", fmt.Sprintf("%s: %s", plan.ToolName, inv.Error.Error()), nil)
			} else {
				entry.Result = inv.Result
				lastResult = aggregate(lastResult, plan.ToolName, inv.Result)
				r.logEvent(ctx, runID, runlog.SectionStep, step, "tool ok", plan.ToolName, nil)
			}
			history = append(history, entry)

			if opts.VisualMode {
				if p, err := r.screenshot(ctx, page, runID, step); err == nil {
					screenshots = append(screenshots, p)
				}
			}
		}
	}

	return r.finish(ctx, runID, lastResult != nil, lastResult, opts.MaxSteps, nil, "max_steps exceeded", screenshots)
}

func (r *Runner) openPage(ctx context.Context, opts Options) (browser.Launched, browser.Session, browser.Page, func(), error) {
	launched, err := r.Launcher.Launch(ctx, opts.headless())
	if err != nil {
		return nil, nil, nil, func() {}, fmt.Errorf("task: launch browser: %w", err)
	}

	var sess browser.Session = launched
	if opts.SessionKey != "" {
		if r.SessionLock != nil {
			ok, err := r.SessionLock.Acquire(ctx, opts.SessionKey, opts.TaskTimeout)
			if err != nil {
				return nil, nil, nil, func() { _ = launched.Close(ctx) }, fmt.Errorf("task: acquire session lock: %w", err)
			}
			if !ok {
				return nil, nil, nil, func() { _ = launched.Close(ctx) }, session.ErrLocked
			}
		}
		resumed, err := launched.Resume(ctx, opts.SessionKey)
		if err != nil {
			return nil, nil, nil, func() { _ = launched.Close(ctx) }, fmt.Errorf("task: resume session %q: %w", opts.SessionKey, err)
		}
		sess = resumed
		if r.SessionStore != nil {
			if _, err := r.SessionStore.Touch(ctx, opts.SessionKey, "", time.Now()); err != nil {
				return nil, nil, nil, func() { _ = launched.Close(ctx) }, fmt.Errorf("task: touch session %q: %w", opts.SessionKey, err)
			}
		}
	}

	page, err := sess.NewPage(ctx, opts.StealthMode)
	if err != nil {
		return nil, nil, nil, func() { _ = launched.Close(ctx) }, fmt.Errorf("task: open page: %w", err)
	}

	closeAll := func() {
		_ = page.Close(ctx)
		if opts.SessionKey != "" {
			_ = sess.Persist(ctx)
			if r.SessionLock != nil {
				_ = r.SessionLock.Release(ctx, opts.SessionKey)
			}
		}
		_ = launched.Close(ctx)
	}
	return launched, sess, page, closeAll, nil
}

// navigateWithRetry implements spec.md §4.1's navigation retry policy:
// exponential backoff, at most 3 attempts.
func (r *Runner) navigateWithRetry(ctx context.Context, page browser.Page, url string) error {
	const maxAttempts = 3
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt))) * time.Second
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}
		if err := page.Goto(ctx, url); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return fmt.Errorf("task: goto %q failed after %d attempts: %w", url, maxAttempts, lastErr)
}

// observe captures a fresh PageContext and makes a best-effort attempt to
// dismiss a cookie-consent banner first (spec.md §4.1 step 1).
func (r *Runner) observe(ctx context.Context, page browser.Page, collector *pagecontext.Collector, opts Options, formOriented bool) (pagecontext.PageContext, error) {
	dismissCookieBanner(ctx, page)
	return collector.Collect(ctx, page, opts.ContextMaxChars, formOriented)
}

var cookieBannerVerbs = []string{"accept", "agree", "got it", "allow all", "i understand", "ok"}

const cookieBannerScript = `(() => {
  const candidates = Array.from(document.querySelectorAll('button, a[role="button"]'));
  for (const el of candidates) {
    const text = (el.innerText || '').trim().toLowerCase();
    if (!text || text.length > 30) continue;
    for (const v of %s) {
      if (text.includes(v)) { el.click(); return true; }
    }
  }
  return false;
})()`

func dismissCookieBanner(ctx context.Context, page browser.Page) {
	verbs := make([]string, len(cookieBannerVerbs))
	copy(verbs, cookieBannerVerbs)
	quoted := "["
	for i, v := range verbs {
		if i > 0 {
			quoted += ","
		}
		quoted += `"` + v + `"`
	}
	quoted += "]"
	// Best-effort: errors (including "no such banner") are non-fatal.
	_, _ = page.Evaluate(ctx, fmt.Sprintf(cookieBannerScript, quoted))
}

func (r *Runner) pace(ctx context.Context, plan planner.PlanStep) error {
	if r.HostLimiter == nil || plan.ToolName != "dom.navigate" {
		return nil
	}
	target, _ := plan.Args["url"].(string)
	if target == "" {
		return nil
	}
	return r.HostLimiter.Wait(ctx, target)
}

func (r *Runner) screenshot(ctx context.Context, page browser.Page, runID string, step int) (string, error) {
	dir := r.ScreenshotDir
	if dir == "" {
		dir = "screenshots"
	}
	path := filepath.Join(dir, runID, fmt.Sprintf("step-%03d.png", step))
	if err := page.Screenshot(ctx, path, true); err != nil {
		return "", err
	}
	return path, nil
}

func (r *Runner) finish(ctx context.Context, runID string, success bool, result any, steps int, taskErr *Error, reason string, screenshots []string) Result {
	footer := "success"
	if taskErr != nil {
		footer = taskErr.Error()
	} else if reason != "" {
		footer = reason
	}
	r.logEvent(ctx, runID, runlog.SectionFooter, -1, "task finished", fmt.Sprintf("steps taken: %d, outcome: %s", steps, footer), nil)
	_ = r.RunLog.Close(ctx, runID)
	return Result{
		Success: success, Result: result, StepsTaken: steps,
		RunLogPath: r.RunLog.Path(runID), Screenshots: screenshots,
		Error: taskErr, Reason: reason,
	}
}

func (r *Runner) logEvent(ctx context.Context, runID string, section runlog.Section, step int, title, body string, sidecars []string) {
	_ = r.RunLog.Append(ctx, runlog.Event{
		RunID: runID, Section: section, Timestamp: time.Now(),
		StepIndex: step, Title: title, Body: body, Sidecars: sidecars,
	})
}

// logPlannerTrace appends every raw prompt/reply round trip behind one
// planning decision to the run log (spec.md §4.7: the log must show the
// planner prompt and planner reply for each step, not just the outcome).
func (r *Runner) logPlannerTrace(ctx context.Context, runID string, step int, trace []planner.Exchange) {
	if len(trace) == 0 {
		return
	}
	var b strings.Builder
	for i, ex := range trace {
		fmt.Fprintf(&b, "--- exchange %d ---\nprompt:\n%s\n\nreply:\n%s\n\n", i, ex.Prompt, ex.Reply)
	}
	r.logEvent(ctx, runID, runlog.SectionStep, step, "planner exchange", b.String(), nil)
}

// plannerTrace extracts the raw prompt/reply trail from a planner failure,
// if any was captured before the failure occurred.
func plannerTrace(err error) []planner.Exchange {
	var traceErr *planner.TraceError
	if errors.As(err, &traceErr) {
		return traceErr.Trace
	}
	return nil
}

func (r *Runner) loggerOrNoop() telemetry.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return telemetry.NoopLogger{}
}

func (r *Runner) tracerOrNoop() telemetry.Tracer {
	if r.Tracer != nil {
		return r.Tracer
	}
	return telemetry.NoopTracer{}
}

func (r *Runner) metricsOrNoop() telemetry.Metrics {
	if r.Metrics != nil {
		return r.Metrics
	}
	return telemetry.NoopMetrics{}
}

func repeatsAtLeast[T comparable](window []T, key T, n int) bool {
	count := 0
	for _, w := range window {
		if w == key {
			count++
		}
	}
	return count >= n
}

func toolIdent(name string) tools.Ident { return tools.Ident(name) }

// idempotentNoOp reports whether toolName/args already succeeded earlier in
// history and is tagged tools.Spec.IdempotentTranscript, in which case it
// returns a synthesized result instead of making the Task Runner execute
// the call again (spec.md §8: "re-invoking the same task after success
// yields submitted=true with a 'no-op' reason").
func (r *Runner) idempotentNoOp(toolName string, args map[string]any, history planner.ToolHistory) (any, bool) {
	spec, ok := r.Tools.Spec(toolIdent(toolName))
	if !ok || !spec.IdempotentTranscript {
		return nil, false
	}
	for _, h := range history {
		if h.ToolName == toolName && h.Error == "" && reflect.DeepEqual(h.Args, args) {
			return noOpResult(h.Result), true
		}
	}
	return nil, false
}

// noOpResult marks prior's result as a no-op repeat of an already-succeeded
// call. form.fill is the only built-in tool currently tagged
// IdempotentTranscript; a future one not carrying a Reason field is
// returned unchanged.
func noOpResult(prior any) any {
	if fr, ok := prior.(formfill.Result); ok {
		fr.Reason = "no-op"
		fr.Submitted = true
		return fr
	}
	return prior
}

// aggregate implements the Result Aggregator (spec.md §4.1 "Aggregation"):
// extraction tools overwrite the running result, navigation tools don't
// contribute data, form tools contribute a submission status.
func aggregate(prior any, toolName string, result any) any {
	if strings.HasPrefix(toolName, "dom.navigate") || strings.HasPrefix(toolName, "dom.wait") {
		return prior
	}
	if result == nil {
		return prior
	}
	return result
}

func dominantlyFormOriented(instruction string) bool {
	lower := strings.ToLower(instruction)
	for _, v := range []string{"fill", "form", "submit", "sign up", "register", "subscribe"} {
		if strings.Contains(lower, v) {
			return true
		}
	}
	return false
}
