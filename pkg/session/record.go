package session

import (
	"slices"
	"time"
)

// DefaultMaxInactiveInterval is the idle timeout applied to new sessions
// when no other default is configured (30 minutes).
const DefaultMaxInactiveInterval = 30 * time.Minute

// Record is the raw persisted form of a session: identity, timestamps and
// the opaque attribute payloads. Stores read and write Records; callers
// work with the Session wrapper returned by the Repository.
type Record struct {
	CreationTime     time.Time
	LastAccessedTime time.Time

	Attributes map[string][]byte
	ID         string

	// MaxInactiveInterval is the idle timeout. A negative value means the
	// session never expires.
	MaxInactiveInterval time.Duration
}

// IsExpired reports whether the record has been idle for at least its
// max-inactive interval at the given instant. It never mutates state;
// expiry handling is the repository's job.
func (r *Record) IsExpired(now time.Time) bool {
	if r.MaxInactiveInterval < 0 {
		return false
	}
	return now.Sub(r.LastAccessedTime) >= r.MaxInactiveInterval
}

// ExpiresAt returns the instant at which the record expires.
// The second return value is false when the record never expires.
func (r *Record) ExpiresAt() (time.Time, bool) {
	if r.MaxInactiveInterval < 0 {
		return time.Time{}, false
	}
	return r.LastAccessedTime.Add(r.MaxInactiveInterval), true
}

// Clone returns a deep copy of the record, payload bytes included. Stores
// clone on both read and write so no caller shares attribute state with the
// store's own copy, not even the backing arrays.
func (r *Record) Clone() *Record {
	clone := *r
	clone.Attributes = make(map[string][]byte, len(r.Attributes))
	for name, value := range r.Attributes {
		clone.Attributes[name] = slices.Clone(value)
	}
	return &clone
}
