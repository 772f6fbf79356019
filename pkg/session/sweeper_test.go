package session_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/sessionstore/pkg/session"
)

// failingDeleteStore fails a set number of Delete calls for one id.
type failingDeleteStore struct {
	session.Store

	mu       sync.Mutex
	failID   string
	failures int
}

func (f *failingDeleteStore) Delete(ctx context.Context, id string) (bool, error) {
	f.mu.Lock()
	if id == f.failID && f.failures > 0 {
		f.failures--
		f.mu.Unlock()
		return false, session.ErrStoreUnavailable
	}
	f.mu.Unlock()
	return f.Store.Delete(ctx, id)
}

func TestNewSweeper_Schedules(t *testing.T) {
	t.Parallel()

	repo := session.NewRepository(session.NewMemory())

	t.Run("cron expression", func(t *testing.T) {
		t.Parallel()
		_, err := session.NewSweeper(repo, "*/5 * * * *")
		require.NoError(t, err)
	})

	t.Run("interval descriptor", func(t *testing.T) {
		t.Parallel()
		_, err := session.NewSweeper(repo, "@every 30s")
		require.NoError(t, err)
	})

	t.Run("empty defaults to every minute", func(t *testing.T) {
		t.Parallel()
		_, err := session.NewSweeper(repo, "")
		require.NoError(t, err)
	})

	t.Run("invalid", func(t *testing.T) {
		t.Parallel()
		_, err := session.NewSweeper(repo, "not a schedule")
		require.ErrorIs(t, err, session.ErrInvalidSchedule)
	})
}

func TestSweeper_Sweep(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	clock := newFakeClock()
	pub := &recordingPublisher{}
	repo := session.NewRepository(session.NewMemory(),
		session.WithClock(clock.Now),
		session.WithPublisher(pub),
	)

	sess := repo.New(ctx)
	require.NoError(t, session.SetValue(ctx, sess, session.PrincipalNameAttribute, "alice"))
	require.NoError(t, repo.Save(ctx, sess))

	survivor := repo.New(ctx)
	require.NoError(t, survivor.SetMaxInactiveInterval(ctx, 2*time.Hour))
	require.NoError(t, repo.Save(ctx, survivor))

	sweeper, err := session.NewSweeper(repo, "@every 1m")
	require.NoError(t, err)

	clock.Advance(session.DefaultMaxInactiveInterval)
	require.NoError(t, sweeper.Sweep(ctx))

	// The idle session is gone, the long-lived one survives.
	_, err = repo.FindByID(ctx, sess.ID())
	require.ErrorIs(t, err, session.ErrNotFound)
	_, err = repo.FindByID(ctx, survivor.ID())
	require.NoError(t, err)

	byAlice, err := repo.FindByPrincipal(ctx, "alice")
	require.NoError(t, err)
	require.Empty(t, byAlice)

	events := pub.all()
	require.Len(t, events, 3)
	expired, ok := events[2].(session.ExpiredEvent)
	require.True(t, ok)
	require.Equal(t, sess.ID(), expired.SessionID())

	// Sweeping again finds nothing and publishes nothing.
	require.NoError(t, sweeper.Sweep(ctx))
	require.Len(t, pub.all(), 3)
}

func TestSweeper_SweepContinuesPastFailures(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	clock := newFakeClock()
	pub := &recordingPublisher{}
	store := &failingDeleteStore{Store: session.NewMemory()}
	repo := session.NewRepository(store,
		session.WithClock(clock.Now),
		session.WithPublisher(pub),
	)

	flaky := repo.New(ctx)
	require.NoError(t, repo.Save(ctx, flaky))
	healthy := repo.New(ctx)
	require.NoError(t, repo.Save(ctx, healthy))

	store.mu.Lock()
	store.failID = flaky.ID()
	store.failures = 1
	store.mu.Unlock()

	sweeper, err := session.NewSweeper(repo, "")
	require.NoError(t, err)

	countExpired := func() map[string]int {
		counts := make(map[string]int)
		for _, e := range pub.all() {
			if ev, ok := e.(session.ExpiredEvent); ok {
				counts[ev.SessionID()]++
			}
		}
		return counts
	}

	// One failing id must not starve the rest of the batch: the sweep
	// reports the failure but still expires the healthy session.
	clock.Advance(session.DefaultMaxInactiveInterval)
	err = sweeper.Sweep(ctx)
	require.ErrorIs(t, err, session.ErrStoreUnavailable)
	require.Equal(t, map[string]int{healthy.ID(): 1}, countExpired())

	// The store keeps reporting the unexpired id, so the next sweep picks
	// it up; exactly one event per session overall.
	require.NoError(t, sweeper.Sweep(ctx))
	require.Equal(t, map[string]int{flaky.ID(): 1, healthy.ID(): 1}, countExpired())

	_, err = repo.FindByID(ctx, flaky.ID())
	require.ErrorIs(t, err, session.ErrNotFound)
}

func TestExpiry_ExactlyOneEventAcrossPaths(t *testing.T) {
	t.Parallel()

	countExpired := func(events []session.Event) int {
		var n int
		for _, e := range events {
			if _, ok := e.(session.ExpiredEvent); ok {
				n++
			}
		}
		return n
	}

	t.Run("lazy lookup first, sweep second", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()

		clock := newFakeClock()
		pub := &recordingPublisher{}
		repo := session.NewRepository(session.NewMemory(),
			session.WithClock(clock.Now),
			session.WithPublisher(pub),
		)

		sess := repo.New(ctx)
		require.NoError(t, repo.Save(ctx, sess))
		sweeper, err := session.NewSweeper(repo, "")
		require.NoError(t, err)

		clock.Advance(session.DefaultMaxInactiveInterval)
		_, err = repo.FindByID(ctx, sess.ID())
		require.ErrorIs(t, err, session.ErrNotFound)
		require.NoError(t, sweeper.Sweep(ctx))

		require.Equal(t, 1, countExpired(pub.all()))
	})

	t.Run("sweep first, lazy lookup second", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()

		clock := newFakeClock()
		pub := &recordingPublisher{}
		repo := session.NewRepository(session.NewMemory(),
			session.WithClock(clock.Now),
			session.WithPublisher(pub),
		)

		sess := repo.New(ctx)
		require.NoError(t, repo.Save(ctx, sess))
		sweeper, err := session.NewSweeper(repo, "")
		require.NoError(t, err)

		clock.Advance(session.DefaultMaxInactiveInterval)
		require.NoError(t, sweeper.Sweep(ctx))
		_, err = repo.FindByID(ctx, sess.ID())
		require.ErrorIs(t, err, session.ErrNotFound)

		require.Equal(t, 1, countExpired(pub.all()))
	})
}

func TestSweeper_StartStop(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	repo := session.NewRepository(session.NewMemory())
	sweeper, err := session.NewSweeper(repo, "@every 1m")
	require.NoError(t, err)

	require.NoError(t, sweeper.Start(ctx))
	require.ErrorIs(t, sweeper.Start(ctx), session.ErrAlreadyStarted)

	require.NoError(t, sweeper.Stop())
	require.ErrorIs(t, sweeper.Stop(), session.ErrNotStarted)

	// Restart after a clean stop works.
	require.NoError(t, sweeper.Start(ctx))
	require.NoError(t, sweeper.Shutdown()(ctx))
}
