// Package runlog provides an append-only, markdown-formatted run log
// (spec.md §3 "Run log", §4.7 "Run Logger"). One log file is created per
// task; large payloads (full PageContext, raw model responses) are
// written to sibling sidecar files and referenced by path so the log
// itself stays readable.
package runlog

import (
	"context"
	"time"
)

type (
	// Section identifies a block type within the log.
	Section string

	// Event is one appended record. The Store renders it as a markdown
	// block; SectionHeader and SectionFooter render once, SectionStep
	// renders once per Task Runner iteration.
	Event struct {
		// RunID is the identifier of the run this event belongs to.
		RunID string
		// Section classifies the event for rendering.
		Section Section
		// Timestamp records when the event occurred.
		Timestamp time.Time
		// StepIndex is the Task Runner iteration this event belongs to,
		// or -1 for header/footer events.
		StepIndex int
		// Title is a short one-line summary rendered as a heading.
		Title string
		// Body is the verbatim markdown body for this event.
		Body string
		// Sidecars names sidecar files written alongside this event
		// (full PageContext dumps, raw model responses > 4KB,
		// screenshots), referenced by relative path from the log file.
		Sidecars []string
	}

	// Store is the append-only sink for run log events.
	Store interface {
		// Append writes e to the run log for its RunID, creating the log
		// file on first use.
		Append(ctx context.Context, e Event) error
		// Path returns the run log's file path for RunID, for inclusion
		// in the task Result (spec.md §6 "run_log").
		Path(runID string) string
		// Close flushes and closes the log file for RunID.
		Close(ctx context.Context, runID string) error
	}
)

const (
	SectionHeader Section = "header"
	SectionStep   Section = "step"
	SectionFooter Section = "footer"
)
