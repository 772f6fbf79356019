package session

import (
	"context"
	"slices"
	"time"

	"github.com/google/uuid"
)

// Session is the live, in-memory view of one session. It wraps the loaded
// record and accumulates a delta of changes for the repository to persist.
//
// A Session is owned by a single caller: the design assumes at most one
// in-flight mutation per session per owner, so there is no internal
// locking. Two callers that share a Session must synchronize themselves.
type Session struct {
	record *Record
	delta  Delta
	codec  Codec

	// flush is set under FlushModeImmediate; every mutation pushes the
	// pending delta through it.
	flush func(ctx context.Context, s *Session) error

	originalID        string
	originalPrincipal string
	saveMode          SaveMode
	isNew             bool
}

// ID returns the session's current identity.
func (s *Session) ID() string { return s.record.ID }

// CreationTime returns the instant the session was created.
func (s *Session) CreationTime() time.Time { return s.record.CreationTime }

// LastAccessedTime returns the instant the session was last touched.
func (s *Session) LastAccessedTime() time.Time { return s.record.LastAccessedTime }

// MaxInactiveInterval returns the idle timeout. Negative means the session
// never expires.
func (s *Session) MaxInactiveInterval() time.Duration { return s.record.MaxInactiveInterval }

// IsNew reports whether the session has never been persisted.
func (s *Session) IsNew() bool { return s.isNew }

// IsExpired reports whether the session is expired at the given instant.
func (s *Session) IsExpired(now time.Time) bool { return s.record.IsExpired(now) }

// Attr returns the raw attribute payload. Under SaveModeOnGetAttribute and
// SaveModeAlways a successful read also marks the attribute dirty, so it is
// re-persisted on the next save even if its value never changes.
func (s *Session) Attr(name string) ([]byte, bool) {
	data, ok := s.record.Attributes[name]
	if !ok {
		return nil, false
	}
	if s.saveMode == SaveModeOnGetAttribute || s.saveMode == SaveModeAlways {
		s.delta.set(name, data)
	}
	return data, true
}

// AttrNames returns a sorted copy of the attribute names.
func (s *Session) AttrNames() []string {
	names := make([]string, 0, len(s.record.Attributes))
	for name := range s.record.Attributes {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// SetAttr stores a raw attribute payload and marks it dirty. A nil value is
// equivalent to RemoveAttr: the key is removed, not stored as nil. Setting
// an attribute to the value it already holds still marks it dirty.
func (s *Session) SetAttr(ctx context.Context, name string, value []byte) error {
	if value == nil {
		return s.RemoveAttr(ctx, name)
	}
	s.record.Attributes[name] = value
	s.delta.set(name, value)
	return s.flushIfImmediate(ctx)
}

// RemoveAttr removes an attribute and records a tombstone in the delta.
func (s *Session) RemoveAttr(ctx context.Context, name string) error {
	delete(s.record.Attributes, name)
	s.delta.remove(name)
	return s.flushIfImmediate(ctx)
}

// SetLastAccessedTime updates the last-accessed timestamp.
func (s *Session) SetLastAccessedTime(ctx context.Context, t time.Time) error {
	s.record.LastAccessedTime = t
	s.delta.lastAccessedChanged = true
	return s.flushIfImmediate(ctx)
}

// SetMaxInactiveInterval updates the idle timeout. A negative interval
// means the session never expires.
func (s *Session) SetMaxInactiveInterval(ctx context.Context, d time.Duration) error {
	s.record.MaxInactiveInterval = d
	s.delta.intervalChanged = true
	return s.flushIfImmediate(ctx)
}

// ChangeID regenerates the session's identity without destroying its
// attributes and returns the new id. The rebinding of the stored record
// happens on the next save.
func (s *Session) ChangeID(ctx context.Context) (string, error) {
	id := uuid.NewString()
	s.record.ID = id
	return id, s.flushIfImmediate(ctx)
}

// Record returns a snapshot of the session's current state.
func (s *Session) Record() *Record { return s.record.Clone() }

// idChanged reports whether the identity differs from the persisted one.
func (s *Session) idChanged() bool { return s.record.ID != s.originalID }

// hasChanges reports whether there is anything to persist besides identity.
func (s *Session) hasChanges() bool { return !s.delta.Empty() }

// markSaved resets the dirty state after a successful persist.
func (s *Session) markSaved(principal string) {
	s.delta.reset()
	s.isNew = false
	s.originalID = s.record.ID
	s.originalPrincipal = principal
}

func (s *Session) flushIfImmediate(ctx context.Context) error {
	if s.flush == nil {
		return nil
	}
	return s.flush(ctx, s)
}
