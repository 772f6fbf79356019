package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Sweeper periodically removes expired sessions for stores without native
// TTL, and for stores with native TTL it drives index cleanup and event
// publication deterministically instead of waiting on the backend's own
// eviction timing. It shares the repository's expiry path, so a session
// caught by the sweep produces exactly the same ExpiredEvent as one caught
// lazily on lookup.
//
// The sweeper holds no lock shared with the request path; overlap between a
// sweep and concurrent FindByID/Save calls is resolved by the idempotent
// expiry path, not by mutual exclusion.
type Sweeper struct {
	repo     *Repository
	schedule cron.Schedule
	log      *slog.Logger

	mu      sync.Mutex
	done    chan struct{}
	started bool
}

// SweeperOption configures a Sweeper.
type SweeperOption func(*Sweeper)

// WithSweeperLogger sets the logger. Default: discard.
func WithSweeperLogger(log *slog.Logger) SweeperOption {
	return func(s *Sweeper) {
		if log != nil {
			s.log = log
		}
	}
}

// NewSweeper creates a sweeper for the given repository. The schedule is a
// cron expression ("*/5 * * * *") or an interval descriptor ("@every 1m");
// an empty schedule defaults to once per minute.
func NewSweeper(repo *Repository, schedule string, opts ...SweeperOption) (*Sweeper, error) {
	if schedule == "" {
		schedule = "@every 1m"
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	parsed, err := parser.Parse(schedule)
	if err != nil {
		return nil, errors.Join(ErrInvalidSchedule, err)
	}

	s := &Sweeper{
		repo:     repo,
		schedule: parsed,
		log:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Start launches the background sweep loop. It returns immediately; sweeps
// run until Stop is called or the context is canceled.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return ErrAlreadyStarted
	}
	s.started = true
	s.done = make(chan struct{})

	go s.run(ctx, s.done)

	s.log.InfoContext(ctx, "session sweeper started",
		slog.Bool("native_ttl", s.repo.store.SupportsNativeTTL()),
	)
	return nil
}

// Stop terminates the sweep loop. A sweep already in progress finishes.
func (s *Sweeper) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return ErrNotStarted
	}
	s.started = false
	close(s.done)

	s.log.Info("session sweeper stopped")
	return nil
}

// Shutdown returns a shutdown hook for the sweeper.
func (s *Sweeper) Shutdown() func(context.Context) error {
	return func(context.Context) error {
		return s.Stop()
	}
}

func (s *Sweeper) run(ctx context.Context, done chan struct{}) {
	for {
		next := s.schedule.Next(s.repo.clock())
		timer := time.NewTimer(time.Until(next))

		select {
		case <-done:
			timer.Stop()
			return
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			if err := s.Sweep(ctx); err != nil {
				s.log.ErrorContext(ctx, "session sweep failed", slog.Any("error", err))
			}
		}
	}
}

// Sweep runs a single pass: collect the ids due for expiry at or before the
// current minute and route each through the shared expiry path. Ids already
// removed by lazy expiration or native TTL are silently skipped; a renewed
// session reported by an over-approximating store is left alone.
//
// A failing id does not abort the batch: the remaining ids are still
// processed and the per-id errors are returned joined. Stores keep
// reporting an id until its record is actually gone, so a failed expiry is
// retried on the next sweep.
//
// The cutoff is truncated to the sweep granularity so a record is never
// deleted seconds before a racing touch would have renewed it.
func (s *Sweeper) Sweep(ctx context.Context) error {
	cutoff := s.repo.clock().Truncate(time.Minute)

	ids, err := s.repo.store.ExpiredIDs(ctx, cutoff)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	var (
		swept int
		errs  []error
	)
	for _, id := range ids {
		if err := s.repo.expire(ctx, id); err != nil {
			errs = append(errs, err)
			continue
		}
		swept++
	}

	s.log.DebugContext(ctx, "session sweep completed",
		slog.Time("cutoff", cutoff),
		slog.Int("candidates", len(ids)),
		slog.Int("processed", swept),
	)
	return errors.Join(errs...)
}
