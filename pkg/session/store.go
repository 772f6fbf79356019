package session

import (
	"context"
	"time"
)

// Store is the narrow capability interface a storage backend implements.
// The repository owns all lifecycle logic (save modes, flush modes, delta
// dispatch, expiry, index reconciliation); a backend only moves records and
// index entries in and out of its medium.
//
// TTL semantics mirror the usual cache convention: a positive ttl asks the
// backend to expire the record natively after that duration, a non-positive
// ttl means the record never expires on its own. Backends without native
// expiry ignore the ttl and report expired records through ExpiredIDs.
//
// All driver failures are reported wrapped in ErrStoreUnavailable. Absence
// is reported as ErrNotFound and is never a driver failure.
type Store interface {
	// Load returns the record for the given id, or ErrNotFound.
	// Load does not check expiry; the repository does.
	Load(ctx context.Context, id string) (*Record, error)

	// Save writes the complete record, replacing any previous state.
	Save(ctx context.Context, rec *Record, ttl time.Duration) error

	// Update applies a partial update: only the fields and attributes named
	// by the delta are touched. rec is the post-change state, provided so
	// backends can read the new timestamp values and recompute TTLs.
	Update(ctx context.Context, rec *Record, delta *Delta, ttl time.Duration) error

	// Rename atomically rebinds a record to a new id. Returns ErrNotFound
	// when no record exists under oldID. Backends that cannot rename
	// atomically must insert under the new id before deleting the old one.
	Rename(ctx context.Context, oldID, newID string) error

	// Delete removes the record and reports whether anything was removed.
	// Deleting an absent id is not an error.
	Delete(ctx context.Context, id string) (bool, error)

	// IndexAdd binds a session id to a principal name.
	IndexAdd(ctx context.Context, principal, id string) error

	// IndexRemove unbinds a session id from a principal name.
	// Removing an absent binding is a no-op.
	IndexRemove(ctx context.Context, principal, id string) error

	// IndexMembers returns the session ids currently bound to a principal.
	IndexMembers(ctx context.Context, principal string) ([]string, error)

	// ExpiredIDs returns ids of records due for expiry at or before the
	// given cutoff. The result may over-approximate (backends may return
	// ids that were renewed since being recorded); the repository
	// re-checks expiry before removing anything. An id keeps being
	// reported until its record is gone, so a caller that fails to
	// process one sees it again on the next call.
	ExpiredIDs(ctx context.Context, cutoff time.Time) ([]string, error)

	// SupportsNativeTTL reports whether the backend evicts records on its
	// own once their TTL passes.
	SupportsNativeTTL() bool

	// Close releases backend resources owned by the store itself. It never
	// closes connections or pools that were handed in by the caller.
	Close() error
}
