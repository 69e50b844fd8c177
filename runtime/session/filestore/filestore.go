// Package filestore implements session.Store on top of a YAML index file
// under workspace/sessions/ (spec.md §6 persisted-state layout). Each
// session's browser storage state is written separately by the browser
// Launcher; this store only tracks lifecycle metadata.
package filestore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/webpilot-ai/webpilot/runtime/session"
)

type index struct {
	Sessions map[string]session.Session `yaml:"sessions"`
}

// Store is a YAML-file-backed session.Store, safe for concurrent use
// within one process. It is not itself a cross-process lock; pair it with
// session.Lock (e.g. redislock.Lock) when multiple processes may share a
// workspace directory.
type Store struct {
	path string
	mu   sync.Mutex
}

// New returns a Store backed by <dir>/index.yaml, creating dir if needed.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("session/filestore: create dir: %w", err)
	}
	return &Store{path: filepath.Join(dir, "index.yaml")}, nil
}

func (s *Store) load() (index, error) {
	idx := index{Sessions: map[string]session.Session{}}
	b, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return idx, nil
	}
	if err != nil {
		return idx, err
	}
	if err := yaml.Unmarshal(b, &idx); err != nil {
		return idx, err
	}
	if idx.Sessions == nil {
		idx.Sessions = map[string]session.Session{}
	}
	return idx, nil
}

func (s *Store) save(idx index) error {
	b, err := yaml.Marshal(idx)
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, b, 0o644)
}

// Touch implements session.Store.
func (s *Store) Touch(_ context.Context, key, storagePath string, at time.Time) (session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, err := s.load()
	if err != nil {
		return session.Session{}, err
	}
	sess, ok := idx.Sessions[key]
	if ok && sess.Status == session.StatusEnded {
		return session.Session{}, session.ErrSessionEnded
	}
	if !ok {
		sess = session.Session{Key: key, Status: session.StatusActive, CreatedAt: at}
	}
	sess.LastUsedAt = at
	if storagePath != "" {
		sess.StoragePath = storagePath
	}
	idx.Sessions[key] = sess
	if err := s.save(idx); err != nil {
		return session.Session{}, err
	}
	return sess, nil
}

// Load implements session.Store.
func (s *Store) Load(_ context.Context, key string) (session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, err := s.load()
	if err != nil {
		return session.Session{}, err
	}
	sess, ok := idx.Sessions[key]
	if !ok {
		return session.Session{}, session.ErrSessionNotFound
	}
	return sess, nil
}

// End implements session.Store.
func (s *Store) End(_ context.Context, key string, at time.Time) (session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, err := s.load()
	if err != nil {
		return session.Session{}, err
	}
	sess, ok := idx.Sessions[key]
	if !ok {
		return session.Session{}, session.ErrSessionNotFound
	}
	sess.Status = session.StatusEnded
	sess.LastUsedAt = at
	idx.Sessions[key] = sess
	if err := s.save(idx); err != nil {
		return session.Session{}, err
	}
	return sess, nil
}
