// Package session defines persisted browser-session lifecycle state keyed
// by the caller-supplied session_key (spec.md §3 "session_key", §5
// "Session state ... persisted to disk between tasks and reloaded on
// request; concurrent tasks sharing the same session_key is disallowed").
package session

import (
	"context"
	"errors"
	"time"
)

type (
	// Status is the lifecycle state of a persisted session.
	Status string

	// Session captures durable session lifecycle state for one
	// session_key.
	Session struct {
		// Key is the durable identifier supplied by the caller.
		Key string
		// Status is the current lifecycle state.
		Status Status
		// CreatedAt records when the session was first used.
		CreatedAt time.Time
		// LastUsedAt records the most recent task that touched this
		// session.
		LastUsedAt time.Time
		// StoragePath is the on-disk path to the persisted browser storage
		// state (cookies, localStorage), relative to workspace/sessions/.
		StoragePath string
	}

	// Store persists session lifecycle state across tasks. It does not
	// store the storage-state bytes themselves (that's the Launcher's
	// responsibility via browser.Session.Persist); it tracks which
	// session_keys exist and whether they're in use.
	Store interface {
		// Touch creates (if absent) or updates a session's LastUsedAt.
		// Returns ErrSessionEnded if the session was explicitly ended.
		Touch(ctx context.Context, key string, storagePath string, at time.Time) (Session, error)
		// Load returns the session for key, or ErrSessionNotFound.
		Load(ctx context.Context, key string) (Session, error)
		// End marks a session terminal; future Touch calls for the same
		// key fail with ErrSessionEnded.
		End(ctx context.Context, key string, at time.Time) (Session, error)
	}

	// Lock provides best-effort mutual exclusion on a session_key across
	// processes sharing the same Redis instance (SPEC_FULL.md "Session
	// lifecycle as a first-class type"; spec.md §5 explicitly leaves
	// enforcement to the caller — Lock is the optional mechanism a caller
	// can use to honor that contract).
	Lock interface {
		// Acquire attempts to take the lock for key, returning false if
		// another process already holds it.
		Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
		// Release gives up the lock for key. Releasing a lock not held by
		// the caller is a no-op.
		Release(ctx context.Context, key string) error
	}
)

const (
	StatusActive Status = "active"
	StatusEnded  Status = "ended"
)

var (
	// ErrSessionNotFound indicates the session_key has never been used.
	ErrSessionNotFound = errors.New("session: not found")
	// ErrSessionEnded indicates the session_key exists but was ended.
	ErrSessionEnded = errors.New("session: ended")
	// ErrLocked indicates another process currently holds the session_key
	// lock (spec.md §5: "concurrent tasks sharing the same session_key is
	// disallowed").
	ErrLocked = errors.New("session: locked by another task")
)
