package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Clock returns the current instant. Injectable for testability.
type Clock func() time.Time

// Repository orchestrates the session lifecycle on top of a Store: creation,
// retrieval with lazy expiration, delta-based saving, deletion, and the
// principal index. One Repository serves any number of concurrent callers;
// per-session ordering is the owning caller's responsibility.
type Repository struct {
	store     Store
	clock     Clock
	codec     Codec
	publisher Publisher
	resolver  PrincipalResolver
	log       *slog.Logger

	saveMode        SaveMode
	flushMode       FlushMode
	defaultInterval time.Duration
}

// NewRepository creates a repository over the given store.
//
// Defaults: 30 minute max-inactive interval, SaveModeOnSetAttribute,
// FlushModeOnSave, JSON codec, principal resolution via the dedicated
// PRINCIPAL_NAME attribute, no event publishing, no logging.
func NewRepository(store Store, opts ...Option) *Repository {
	r := &Repository{
		store:           store,
		clock:           time.Now,
		codec:           JSONCodec{},
		publisher:       NopPublisher{},
		log:             slog.New(slog.NewTextHandler(io.Discard, nil)),
		saveMode:        SaveModeOnSetAttribute,
		flushMode:       FlushModeOnSave,
		defaultInterval: DefaultMaxInactiveInterval,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.resolver == nil {
		r.resolver = principalFromAttribute(r.codec)
	}
	return r
}

// New creates a session with a fresh id, both timestamps set to now, and
// the configured default max-inactive interval. No I/O is performed; the
// session exists in the store only after its first save.
func (r *Repository) New(context.Context) *Session {
	now := r.clock()
	rec := &Record{
		ID:                  uuid.NewString(),
		CreationTime:        now,
		LastAccessedTime:    now,
		MaxInactiveInterval: r.defaultInterval,
		Attributes:          make(map[string][]byte),
	}
	return r.wrap(rec, true)
}

// FindByID returns the live session for the given id, touching its
// last-accessed time. An expired record is removed, its index entry pruned
// and an ExpiredEvent published, and the caller observes the same
// ErrNotFound as for an id that never existed.
func (r *Repository) FindByID(ctx context.Context, id string) (*Session, error) {
	rec, err := r.store.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.IsExpired(r.clock()) {
		if err := r.expire(ctx, id); err != nil {
			return nil, err
		}
		return nil, ErrNotFound
	}

	s := r.wrap(rec, false)
	if err := s.SetLastAccessedTime(ctx, r.clock()); err != nil {
		return nil, err
	}
	return s, nil
}

// Save persists the session's pending changes, choosing the cheapest write
// strategy the state allows: full insert for new sessions, an atomic
// rebind for identity changes, a partial update for plain deltas, and no
// I/O at all when nothing changed. The record is always written before the
// index so a failure in between leaves the index merely stale.
//
// On failure the delta is kept intact; a retried Save re-attempts the same
// write.
func (r *Repository) Save(ctx context.Context, s *Session) error {
	switch {
	case s.isNew:
		return r.saveNew(ctx, s)
	case s.idChanged():
		return r.saveRenamed(ctx, s)
	case s.hasChanges():
		return r.saveDelta(ctx, s)
	default:
		return nil
	}
}

func (r *Repository) saveNew(ctx context.Context, s *Session) error {
	rec := s.record.Clone()
	if err := r.store.Save(ctx, rec, r.storeTTL(rec)); err != nil {
		return err
	}

	principal, _ := r.resolver(s.record)
	if principal != "" {
		if err := r.store.IndexAdd(ctx, principal, s.record.ID); err != nil {
			return err
		}
	}

	s.markSaved(principal)
	r.log.DebugContext(ctx, "session created", slog.String("session_id", s.record.ID))
	r.publish(ctx, CreatedEvent{ID: s.record.ID, Record: rec})
	return nil
}

func (r *Repository) saveRenamed(ctx context.Context, s *Session) error {
	oldID, newID := s.originalID, s.record.ID

	err := r.store.Rename(ctx, oldID, newID)
	switch {
	case errors.Is(err, ErrNotFound):
		// The old record vanished underneath us (concurrent delete or
		// expiry). Insert the full state under the new id so the caller's
		// session survives.
		if err := r.store.Save(ctx, s.record.Clone(), r.storeTTL(s.record)); err != nil {
			return err
		}
	case err != nil:
		return err
	default:
		if s.hasChanges() {
			if err := r.store.Update(ctx, s.record.Clone(), &s.delta, r.storeTTL(s.record)); err != nil {
				return err
			}
		}
	}

	// Rebind the index: old name loses the old id first so observers may
	// see a momentary absence, never a duplicate.
	if s.originalPrincipal != "" {
		if err := r.store.IndexRemove(ctx, s.originalPrincipal, oldID); err != nil {
			return err
		}
	}
	principal, _ := r.resolver(s.record)
	if principal != "" {
		if err := r.store.IndexAdd(ctx, principal, newID); err != nil {
			return err
		}
	}

	s.markSaved(principal)
	r.log.DebugContext(ctx, "session id changed",
		slog.String("old_session_id", oldID),
		slog.String("session_id", newID),
	)
	return nil
}

func (r *Repository) saveDelta(ctx context.Context, s *Session) error {
	if err := r.store.Update(ctx, s.record.Clone(), &s.delta, r.storeTTL(s.record)); err != nil {
		return err
	}

	principal, _ := r.resolver(s.record)
	if principal != s.originalPrincipal {
		if s.originalPrincipal != "" {
			if err := r.store.IndexRemove(ctx, s.originalPrincipal, s.record.ID); err != nil {
				return err
			}
		}
		if principal != "" {
			if err := r.store.IndexAdd(ctx, principal, s.record.ID); err != nil {
				return err
			}
		}
	}

	s.markSaved(principal)
	return nil
}

// DeleteByID removes a session, prunes its index entry and publishes a
// DeletedEvent. Deleting an id that does not exist is a no-op.
func (r *Repository) DeleteByID(ctx context.Context, id string) error {
	rec, err := r.store.Load(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	deleted, err := r.store.Delete(ctx, id)
	if err != nil {
		return err
	}

	if principal, ok := r.resolver(rec); ok {
		if err := r.store.IndexRemove(ctx, principal, id); err != nil {
			return err
		}
	}

	if deleted {
		r.log.DebugContext(ctx, "session deleted", slog.String("session_id", id))
		r.publish(ctx, DeletedEvent{ID: id, Record: rec})
	}
	return nil
}

// FindByPrincipal returns all live sessions bound to the given principal
// name, keyed by session id. Stale index entries discovered along the way
// are pruned and expired members are routed through the shared expiry path.
func (r *Repository) FindByPrincipal(ctx context.Context, principal string) (map[string]*Session, error) {
	ids, err := r.store.IndexMembers(ctx, principal)
	if err != nil {
		return nil, err
	}

	var (
		mu       sync.Mutex
		sessions = make(map[string]*Session, len(ids))
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for _, id := range ids {
		g.Go(func() error {
			rec, err := r.store.Load(gctx, id)
			switch {
			case errors.Is(err, ErrNotFound):
				// The index referenced an id with no backing record.
				// Prune silently; never fail the caller's read over it.
				r.log.WarnContext(gctx, "pruning stale principal index entry",
					slog.String("principal", principal),
					slog.String("session_id", id),
				)
				return r.store.IndexRemove(gctx, principal, id)
			case err != nil:
				return err
			}

			if rec.IsExpired(r.clock()) {
				return r.expire(gctx, id)
			}

			mu.Lock()
			sessions[rec.ID] = r.wrap(rec, false)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return sessions, nil
}

// expire removes an expired session, prunes its index entry and publishes
// an ExpiredEvent. It is the single expiry code path shared by lazy
// expiration in FindByID and the sweeper, so event semantics are identical
// regardless of which mechanism caught the expiry first.
//
// expire is idempotent: when two callers race, the store's Delete decides
// the winner and exactly one ExpiredEvent is published.
func (r *Repository) expire(ctx context.Context, id string) error {
	rec, err := r.store.Load(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if !rec.IsExpired(r.clock()) {
		// Renewed since it was marked for expiry (over-approximated
		// ExpiredIDs or a racing touch). Leave it alone.
		return nil
	}

	deleted, err := r.store.Delete(ctx, id)
	if err != nil {
		return err
	}

	if principal, ok := r.resolver(rec); ok {
		if err := r.store.IndexRemove(ctx, principal, id); err != nil {
			return err
		}
	}

	if deleted {
		r.log.DebugContext(ctx, "session expired", slog.String("session_id", id))
		r.publish(ctx, ExpiredEvent{ID: id, Record: rec})
	}
	return nil
}

// wrap builds the live session view over a record.
func (r *Repository) wrap(rec *Record, isNew bool) *Session {
	s := &Session{
		record:     rec,
		codec:      r.codec,
		saveMode:   r.saveMode,
		isNew:      isNew,
		originalID: rec.ID,
	}
	if principal, ok := r.resolver(rec); ok {
		s.originalPrincipal = principal
	}
	if r.saveMode == SaveModeAlways && !isNew {
		for name, value := range rec.Attributes {
			s.delta.set(name, value)
		}
	}
	if r.flushMode == FlushModeImmediate {
		s.flush = func(ctx context.Context, s *Session) error {
			return r.Save(ctx, s)
		}
	}
	return s
}

// storeTTL converts a record's idle timeout into the native TTL handed to
// the store. Non-expiring sessions and backends without native expiry get
// a negative TTL (never expire).
func (r *Repository) storeTTL(rec *Record) time.Duration {
	if !r.store.SupportsNativeTTL() || rec.MaxInactiveInterval <= 0 {
		return -1
	}
	return rec.MaxInactiveInterval
}

func (r *Repository) publish(ctx context.Context, event Event) {
	defer func() {
		if p := recover(); p != nil {
			r.log.ErrorContext(ctx, "event publisher panicked",
				slog.String("session_id", event.SessionID()),
				slog.Any("panic", p),
			)
		}
	}()
	r.publisher.Publish(ctx, event)
}
