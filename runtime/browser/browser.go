// Package browser declares the page-automation contract the core consumes
// (spec.md §6 "Browser-driver contract (consumed)"). The concrete driver
// (a headless-Chrome automation library) is an explicit external
// collaborator and out of scope for this module; Page is satisfied by a
// real driver adapter in the owning application, or by a test double here.
package browser

import "context"

type (
	// Page is the subset of a page-automation library's per-page API the
	// core depends on. Implementations suspend the calling goroutine for
	// the duration of the underlying I/O (spec.md §5 "Suspension points").
	Page interface {
		// Goto navigates to url, waiting for load, and returns once
		// navigation settles or ctx's deadline elapses.
		Goto(ctx context.Context, url string) error
		// Evaluate runs js in the page and returns its JSON-encodable
		// result.
		Evaluate(ctx context.Context, js string) (any, error)
		// QuerySelectorAll returns serialized attributes for every element
		// matching sel.
		QuerySelectorAll(ctx context.Context, sel string) ([]map[string]string, error)
		// Fill sets an input's value via the driver's high-level fill
		// primitive (sets value, dispatches input/change/blur events).
		Fill(ctx context.Context, sel, value string) error
		// Type enters value into the element matching sel one character at
		// a time, for frameworks that require real keystroke events.
		Type(ctx context.Context, sel, value string) error
		// Click clicks the element matching sel.
		Click(ctx context.Context, sel string) error
		// WaitForSelector blocks until sel appears or timeout elapses.
		WaitForSelector(ctx context.Context, sel string, timeout int) error
		// WaitForTimeout blocks for ms milliseconds, suspending the calling
		// goroutine without busy-waiting.
		WaitForTimeout(ctx context.Context, ms int) error
		// Screenshot writes a screenshot to path. full requests a
		// full-page capture rather than the current viewport.
		Screenshot(ctx context.Context, path string, full bool) error
		// Content returns the full serialized HTML document.
		Content(ctx context.Context) (string, error)
		// URL returns the page's current (post-redirect) URL.
		URL() string
		// Title returns the page's <title> text.
		Title(ctx context.Context) (string, error)
		// Close releases the page and any resources it holds.
		Close(ctx context.Context) error
	}

	// Session abstracts persisted browser state (cookies, localStorage)
	// keyed by a caller-chosen session_key (spec.md §3 "session_key",
	// §5 "Session state ... persisted to disk between tasks").
	Session interface {
		// NewPage opens a page that restores this session's storage state
		// when one exists, and installs stealth settings when requested.
		NewPage(ctx context.Context, stealth bool) (Page, error)
		// Persist saves the current storage state for future reuse.
		Persist(ctx context.Context) error
		// Close releases the underlying browser context.
		Close(ctx context.Context) error
	}

	// Launcher opens Session instances, typically backed by a single
	// shared browser process.
	Launcher interface {
		// Launch opens a new Session. headless controls whether the
		// underlying browser runs without a visible window.
		Launch(ctx context.Context, headless bool) (Launched, error)
	}

	// Launched pairs a Session with the ability to resume one by key.
	Launched interface {
		Session
		// Resume opens (or creates) a Session bound to sessionKey, loading
		// any persisted storage state for that key.
		Resume(ctx context.Context, sessionKey string) (Session, error)
	}
)
