// Package filestore implements runlog.Store as one markdown file per run
// plus a sidecar directory for large payloads, matching the persisted
// state layout in spec.md §6:
//
//	logs/run-YYYYMMDD-HHMMSS.md
//	logs/run-YYYYMMDD-HHMMSS/   (sidecar files)
package filestore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/webpilot-ai/webpilot/runtime/runlog"
)

// SidecarThreshold is the body-length threshold above which Append writes
// the body to a sidecar file and references it by path instead of
// inlining it (spec.md §4.7: "model responses > 4 KB" go to sidecar
// files).
const SidecarThreshold = 4096

type (
	// Store writes run logs to a directory tree rooted at Dir.
	Store struct {
		// Dir is the root logs/ directory.
		Dir string

		mu    sync.Mutex
		files map[string]*os.File
	}
)

// New returns a Store rooted at dir, creating the directory if needed.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("runlog/filestore: create log dir: %w", err)
	}
	return &Store{Dir: dir, files: make(map[string]*os.File)}, nil
}

// Path implements runlog.Store.
func (s *Store) Path(runID string) string {
	return filepath.Join(s.Dir, "run-"+runID+".md")
}

func (s *Store) sidecarDir(runID string) string {
	return filepath.Join(s.Dir, "run-"+runID)
}

// Append implements runlog.Store. It opens the run's markdown file on
// first use (writing nothing else until an event actually arrives) and
// appends one rendered block per call.
func (s *Store) Append(_ context.Context, e runlog.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.files[e.RunID]
	if !ok {
		var err error
		f, err = os.OpenFile(s.Path(e.RunID), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("runlog/filestore: open log file: %w", err)
		}
		s.files[e.RunID] = f
	}

	body := e.Body
	if len(body) > SidecarThreshold {
		path, err := s.writeSidecar(e.RunID, e.StepIndex, e.Section, body)
		if err != nil {
			return err
		}
		body = fmt.Sprintf("(payload written to sidecar file: %s)", path)
		e.Sidecars = append(e.Sidecars, path)
	}

	block := render(e, body)
	if _, err := f.WriteString(block); err != nil {
		return fmt.Errorf("runlog/filestore: write log block: %w", err)
	}
	return nil
}

func (s *Store) writeSidecar(runID string, step int, section runlog.Section, body string) (string, error) {
	dir := s.sidecarDir(runID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("runlog/filestore: create sidecar dir: %w", err)
	}
	name := fmt.Sprintf("step-%03d-%s.txt", step, section)
	full := filepath.Join(dir, name)
	if err := os.WriteFile(full, []byte(body), 0o644); err != nil {
		return "", fmt.Errorf("runlog/filestore: write sidecar: %w", err)
	}
	rel, err := filepath.Rel(s.Dir, full)
	if err != nil {
		return full, nil
	}
	return rel, nil
}

// Close implements runlog.Store.
func (s *Store) Close(_ context.Context, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.files[runID]
	if !ok {
		return nil
	}
	delete(s.files, runID)
	return f.Close()
}

func render(e runlog.Event, body string) string {
	heading := "##"
	if e.Section == runlog.SectionHeader || e.Section == runlog.SectionFooter {
		heading = "#"
	}
	out := fmt.Sprintf("\n%s %s\n\n%s\n", heading, e.Title, body)
	for _, s := range e.Sidecars {
		out += fmt.Sprintf("\n_sidecar: %s_\n", s)
	}
	return out
}
