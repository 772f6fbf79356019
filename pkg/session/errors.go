package session

import "errors"

// Sentinel errors for session operations.
var (
	// ErrNotFound is returned when a session does not exist or has expired.
	// Callers cannot distinguish the two conditions by design.
	ErrNotFound = errors.New("session: not found")

	// ErrStoreUnavailable wraps transport or driver failures from the backing store.
	ErrStoreUnavailable = errors.New("session: store unavailable")

	// ErrClosed is returned when an operation is attempted on a closed store.
	ErrClosed = errors.New("session: store closed")

	// ErrEncode is returned when attribute value serialization fails.
	ErrEncode = errors.New("session: failed to encode value")

	// ErrDecode is returned when attribute value deserialization fails.
	ErrDecode = errors.New("session: failed to decode value")

	// ErrInvalidSaveMode is returned when parsing an unknown save mode.
	ErrInvalidSaveMode = errors.New("session: invalid save mode")

	// ErrInvalidFlushMode is returned when parsing an unknown flush mode.
	ErrInvalidFlushMode = errors.New("session: invalid flush mode")

	// ErrInvalidSchedule is returned when the sweeper schedule cannot be parsed.
	ErrInvalidSchedule = errors.New("session: invalid sweep schedule")

	// ErrAlreadyStarted is returned when Start is called on a running sweeper.
	ErrAlreadyStarted = errors.New("session: sweeper already started")

	// ErrNotStarted is returned when Stop is called on a stopped sweeper.
	ErrNotStarted = errors.New("session: sweeper not started")
)
