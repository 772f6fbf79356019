package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestRedisStore(t *testing.T) (*miniredis.Miniredis, *RedisStore) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return mr, NewRedisStore(client)
}

func redisRecord(id string, lastAccessed time.Time, interval time.Duration) *Record {
	return &Record{
		ID:                  id,
		CreationTime:        lastAccessed,
		LastAccessedTime:    lastAccessed,
		MaxInactiveInterval: interval,
		Attributes: map[string][]byte{
			"cart": []byte(`["sku-1"]`),
		},
	}
}

func TestRedisStore_SaveLoad(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	mr, store := newTestRedisStore(t)
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	rec := redisRecord("s1", base, 30*time.Minute)

	require.NoError(t, store.Save(ctx, rec, rec.MaxInactiveInterval))

	loaded, err := store.Load(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, "s1", loaded.ID)
	require.Equal(t, rec.CreationTime.UnixMilli(), loaded.CreationTime.UnixMilli())
	require.Equal(t, rec.LastAccessedTime.UnixMilli(), loaded.LastAccessedTime.UnixMilli())
	require.Equal(t, 30*time.Minute, loaded.MaxInactiveInterval)
	require.Equal(t, []byte(`["sku-1"]`), loaded.Attributes["cart"])

	// The record key carries the TTL plus the grace window.
	require.Equal(t, 35*time.Minute, mr.TTL("session:sessions:s1"))

	_, err = store.Load(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStore_SaveReplacesPreviousState(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	_, store := newTestRedisStore(t)
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	rec := redisRecord("s1", base, 30*time.Minute)
	require.NoError(t, store.Save(ctx, rec, rec.MaxInactiveInterval))

	// A full save wipes attributes absent from the new state.
	replacement := &Record{
		ID:                  "s1",
		CreationTime:        base,
		LastAccessedTime:    base,
		MaxInactiveInterval: 30 * time.Minute,
		Attributes:          map[string][]byte{"theme": []byte("dark")},
	}
	require.NoError(t, store.Save(ctx, replacement, 30*time.Minute))

	loaded, err := store.Load(ctx, "s1")
	require.NoError(t, err)
	require.NotContains(t, loaded.Attributes, "cart")
	require.Equal(t, []byte("dark"), loaded.Attributes["theme"])
}

func TestRedisStore_NonExpiringRecordPersists(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	mr, store := newTestRedisStore(t)
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	rec := redisRecord("s1", base, -1)

	require.NoError(t, store.Save(ctx, rec, -1))
	require.Equal(t, time.Duration(0), mr.TTL("session:sessions:s1"))
}

func TestRedisStore_Update(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	_, store := newTestRedisStore(t)
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	rec := redisRecord("s1", base, 30*time.Minute)
	require.NoError(t, store.Save(ctx, rec, rec.MaxInactiveInterval))

	rec.Attributes["theme"] = []byte("dark")
	delete(rec.Attributes, "cart")
	rec.LastAccessedTime = base.Add(time.Minute)
	rec.MaxInactiveInterval = time.Hour

	var delta Delta
	delta.set("theme", []byte("dark"))
	delta.remove("cart")
	delta.lastAccessedChanged = true
	delta.intervalChanged = true

	require.NoError(t, store.Update(ctx, rec, &delta, rec.MaxInactiveInterval))

	loaded, err := store.Load(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, []byte("dark"), loaded.Attributes["theme"])
	require.NotContains(t, loaded.Attributes, "cart")
	require.Equal(t, base.Add(time.Minute).UnixMilli(), loaded.LastAccessedTime.UnixMilli())
	require.Equal(t, time.Hour, loaded.MaxInactiveInterval)
}

func TestRedisStore_Rename(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	_, store := newTestRedisStore(t)
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.Save(ctx, redisRecord("old", base, 30*time.Minute), 30*time.Minute))

	require.NoError(t, store.Rename(ctx, "old", "new"))

	_, err := store.Load(ctx, "old")
	require.ErrorIs(t, err, ErrNotFound)

	loaded, err := store.Load(ctx, "new")
	require.NoError(t, err)
	require.Equal(t, []byte(`["sku-1"]`), loaded.Attributes["cart"])

	require.ErrorIs(t, store.Rename(ctx, "ghost", "x"), ErrNotFound)
}

func TestRedisStore_RenameRebindsExpirationBucket(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	_, store := newTestRedisStore(t)
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	rec := redisRecord("old", base, 30*time.Minute)
	require.NoError(t, store.Save(ctx, rec, rec.MaxInactiveInterval))

	expiresAt, ok := rec.ExpiresAt()
	require.True(t, ok)
	bucketMinute := expiresAt.Truncate(time.Minute).Add(time.Minute)

	require.NoError(t, store.Rename(ctx, "old", "new"))

	// The sweeper sees the new id, not the stale one.
	ids, err := store.ExpiredIDs(ctx, bucketMinute)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"new"}, ids)
}

func TestRedisStore_Delete(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	_, store := newTestRedisStore(t)
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.Save(ctx, redisRecord("s1", base, 30*time.Minute), 30*time.Minute))

	deleted, err := store.Delete(ctx, "s1")
	require.NoError(t, err)
	require.True(t, deleted)

	deleted, err = store.Delete(ctx, "s1")
	require.NoError(t, err)
	require.False(t, deleted)
}

func TestRedisStore_Index(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	_, store := newTestRedisStore(t)

	require.NoError(t, store.IndexAdd(ctx, "alice", "s1"))
	require.NoError(t, store.IndexAdd(ctx, "alice", "s2"))

	ids, err := store.IndexMembers(ctx, "alice")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"s1", "s2"}, ids)

	require.NoError(t, store.IndexRemove(ctx, "alice", "s1"))

	ids, err = store.IndexMembers(ctx, "alice")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"s2"}, ids)

	ids, err = store.IndexMembers(ctx, "unknown")
	require.NoError(t, err)
	require.Empty(t, ids)
}

func TestRedisStore_ExpiredIDs(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	_, store := newTestRedisStore(t)
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	rec := redisRecord("s1", base, 30*time.Minute)
	require.NoError(t, store.Save(ctx, rec, rec.MaxInactiveInterval))

	// The id was filed into the bucket for the minute after its expiry.
	expiresAt, ok := rec.ExpiresAt()
	require.True(t, ok)
	bucketMinute := expiresAt.Truncate(time.Minute).Add(time.Minute)

	// Reads are non-destructive and reach back across the grace window, so
	// an id whose expiry failed mid-sweep is reported again on later passes.
	for _, cutoff := range []time.Time{
		bucketMinute,
		bucketMinute,
		bucketMinute.Add(time.Minute),
		bucketMinute.Add(4 * time.Minute),
	} {
		ids, err := store.ExpiredIDs(ctx, cutoff)
		require.NoError(t, err)
		require.ElementsMatch(t, []string{"s1"}, ids, "cutoff %v", cutoff)
	}

	// Before the bucket minute, and once the grace window has passed,
	// nothing is reported.
	ids, err := store.ExpiredIDs(ctx, bucketMinute.Add(-time.Minute))
	require.NoError(t, err)
	require.Empty(t, ids)

	ids, err = store.ExpiredIDs(ctx, bucketMinute.Add(5*time.Minute))
	require.NoError(t, err)
	require.Empty(t, ids)
}

func TestRepository_RedisStoreEndToEnd(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	_, store := newTestRedisStore(t)

	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	advance := func(d time.Duration) {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(d)
	}

	var events []Event
	repo := NewRepository(store,
		WithClock(clock),
		WithPublisher(PublisherFunc(func(_ context.Context, e Event) {
			mu.Lock()
			defer mu.Unlock()
			events = append(events, e)
		})),
	)

	sess := repo.New(ctx)
	require.NoError(t, SetValue(ctx, sess, PrincipalNameAttribute, "alice"))
	require.NoError(t, repo.Save(ctx, sess))

	byAlice, err := repo.FindByPrincipal(ctx, "alice")
	require.NoError(t, err)
	require.Contains(t, byAlice, sess.ID())

	// Past the idle deadline the record is still physically present thanks
	// to the TTL grace window, so the lazy expiry path can clean the index
	// and publish the event itself.
	advance(DefaultMaxInactiveInterval)
	_, err = repo.FindByID(ctx, sess.ID())
	require.ErrorIs(t, err, ErrNotFound)

	byAlice, err = repo.FindByPrincipal(ctx, "alice")
	require.NoError(t, err)
	require.Empty(t, byAlice)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, events, 2)
	_, ok := events[0].(CreatedEvent)
	require.True(t, ok)
	expired, ok := events[1].(ExpiredEvent)
	require.True(t, ok)
	require.Equal(t, sess.ID(), expired.SessionID())
}

func TestRedisStore_KeyPrefix(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := NewRedisStore(client, WithRedisPrefix("myapp"))
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.Save(ctx, redisRecord("s1", base, 30*time.Minute), 30*time.Minute))

	require.True(t, mr.Exists("myapp:sessions:s1"))
}
