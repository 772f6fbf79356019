// Package session implements a backend-agnostic session lifecycle: change
// tracking, configurable save/flush policies, expiration, a principal
// (user) index, and lifecycle events, all on top of a narrow Store
// interface with in-memory, Redis and Postgres implementations.
//
// # Repository
//
// All lifecycle logic lives in [Repository]; a [Store] only moves raw
// [Record] values and index entries in and out of its medium:
//
//	store := session.NewRedisStore(client, session.WithRedisPrefix("myapp"))
//	repo := session.NewRepository(store,
//	    session.WithDefaultMaxInactiveInterval(30*time.Minute),
//	    session.WithPublisher(publisher),
//	    session.WithLogger(log),
//	)
//
//	s := repo.New(ctx)
//	if err := session.SetValue(ctx, s, "cart", cart); err != nil { ... }
//	if err := repo.Save(ctx, s); err != nil { ... }
//
// Save picks the cheapest write strategy the session's state allows: a full
// insert for new sessions, an atomic rebind for identity changes, a partial
// update touching only the accumulated delta, or no I/O at all when nothing
// changed.
//
// # Save and flush modes
//
// [SaveMode] decides which attribute accesses enter the delta (writes only
// by default; reads too under SaveModeOnGetAttribute; everything under
// SaveModeAlways). [FlushMode] decides when the delta is pushed: on an
// explicit Save call by default, or after every mutation under
// FlushModeImmediate.
//
// # Expiration
//
// A session is expired once it has been idle for its max-inactive interval;
// a negative interval means it never expires. Expiry is enforced two ways,
// both funneling through the same code path and publishing exactly one
// [ExpiredEvent] per session:
//
//   - lazily: FindByID on an expired record removes it and reports
//     ErrNotFound, indistinguishable from an id that never existed
//   - proactively: a [Sweeper] runs on a cron schedule and removes records
//     the store reports as due
//
// # Principal index
//
// Sessions whose records resolve to a principal name (by default via the
// PRINCIPAL_NAME attribute; pluggable with [WithPrincipalResolver]) are
// tracked in a secondary index queried with [Repository.FindByPrincipal].
// The record is authoritative: index entries found without a backing live
// record are pruned on discovery, never surfaced as errors.
//
// # Stores
//
//   - [Memory]: mutex-guarded maps, for single-process use and tests
//   - [RedisStore]: hash per record with native TTL, set-based index,
//     minute-bucketed expiration sets for the sweeper
//   - [PostgresStore]: relational rows with goose migrations in
//     [PostgresMigrations]
//
// # Error handling
//
// Absence (including expiry) is [ErrNotFound]; driver failures are wrapped
// in [ErrStoreUnavailable] and never swallowed. A failed or timed-out save
// keeps the delta intact so a retry re-attempts the same write.
package session
