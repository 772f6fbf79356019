package session

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisCreatedField      = "created_at"
	redisLastAccessedField = "last_accessed_at"
	redisIntervalField     = "max_inactive"
	redisAttrPrefix        = "attr:"

	// Records outlive their logical expiry by this grace period so the
	// expiry path can still read them for index cleanup and event
	// publication. The repository never returns a record inside the grace
	// window as live; IsExpired is derived from the stored timestamps.
	redisTTLGrace = 5 * time.Minute
)

// deleteIfExists removes the record key and reports whether it was present,
// so racing expiry paths can decide a single winner.
var deleteIfExists = redis.NewScript(`
local existed = redis.call("EXISTS", KEYS[1])
if existed == 1 then
  redis.call("DEL", KEYS[1])
end
return existed
`)

// RedisStore persists session records as Redis hashes with native TTL, the
// principal index as sets, and expiration buckets as minute-keyed sets the
// sweeper consults to fire expiry deterministically instead of waiting on
// Redis' own lazy eviction.
type RedisStore struct {
	client redis.UniversalClient
	opts   *redisStoreOptions
}

// NewRedisStore creates a Redis-backed store. The client's lifecycle is
// owned by the caller; Close on the store never closes it.
func NewRedisStore(client redis.UniversalClient, opts ...RedisStoreOption) *RedisStore {
	o := defaultRedisStoreOptions()
	for _, opt := range opts {
		opt(o)
	}
	return &RedisStore{client: client, opts: o}
}

func (s *RedisStore) Load(ctx context.Context, id string) (*Record, error) {
	entries, err := s.client.HGetAll(ctx, s.recordKey(id)).Result()
	if err != nil {
		return nil, errors.Join(ErrStoreUnavailable, err)
	}
	if len(entries) == 0 {
		return nil, ErrNotFound
	}
	return s.parseRecord(id, entries)
}

func (s *RedisStore) Save(ctx context.Context, rec *Record, ttl time.Duration) error {
	fields := make(map[string]any, len(rec.Attributes)+3)
	fields[redisCreatedField] = rec.CreationTime.UnixMilli()
	fields[redisLastAccessedField] = rec.LastAccessedTime.UnixMilli()
	fields[redisIntervalField] = int64(rec.MaxInactiveInterval / time.Second)
	for name, value := range rec.Attributes {
		fields[redisAttrPrefix+name] = value
	}

	key := s.recordKey(rec.ID)
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key, fields)
	s.applyExpiry(ctx, pipe, key, rec, ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Join(ErrStoreUnavailable, err)
	}
	return nil
}

func (s *RedisStore) Update(ctx context.Context, rec *Record, delta *Delta, ttl time.Duration) error {
	key := s.recordKey(rec.ID)
	pipe := s.client.TxPipeline()

	sets := make(map[string]any)
	var dels []string
	for name, change := range delta.Attrs() {
		if change.Removed {
			dels = append(dels, redisAttrPrefix+name)
			continue
		}
		sets[redisAttrPrefix+name] = change.Value
	}
	if delta.LastAccessedChanged() {
		sets[redisLastAccessedField] = rec.LastAccessedTime.UnixMilli()
	}
	if delta.IntervalChanged() {
		sets[redisIntervalField] = int64(rec.MaxInactiveInterval / time.Second)
	}

	if len(sets) > 0 {
		pipe.HSet(ctx, key, sets)
	}
	if len(dels) > 0 {
		pipe.HDel(ctx, key, dels...)
	}
	s.applyExpiry(ctx, pipe, key, rec, ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Join(ErrStoreUnavailable, err)
	}
	return nil
}

func (s *RedisStore) Rename(ctx context.Context, oldID, newID string) error {
	err := s.client.Rename(ctx, s.recordKey(oldID), s.recordKey(newID)).Err()
	if err != nil {
		if strings.Contains(err.Error(), "no such key") {
			return ErrNotFound
		}
		return errors.Join(ErrStoreUnavailable, err)
	}
	return s.rebindBucket(ctx, oldID, newID)
}

// rebindBucket moves the expiration bucket entry from the old id to the new
// one after a rename, so the renamed session stays visible to the sweeper
// without waiting for the next write to re-file it.
func (s *RedisStore) rebindBucket(ctx context.Context, oldID, newID string) error {
	fields, err := s.client.HMGet(ctx, s.recordKey(newID), redisLastAccessedField, redisIntervalField).Result()
	if err != nil {
		return errors.Join(ErrStoreUnavailable, err)
	}
	lastAccessed, ok := fields[0].(string)
	if !ok {
		return nil
	}
	interval, ok := fields[1].(string)
	if !ok {
		return nil
	}

	ms, err := strconv.ParseInt(lastAccessed, 10, 64)
	if err != nil {
		return errors.Join(ErrDecode, err)
	}
	secs, err := strconv.ParseInt(interval, 10, 64)
	if err != nil {
		return errors.Join(ErrDecode, err)
	}
	if secs <= 0 {
		return nil
	}

	bucket := s.bucketKey(nextMinute(time.UnixMilli(ms).Add(time.Duration(secs) * time.Second)))
	pipe := s.client.TxPipeline()
	pipe.SRem(ctx, bucket, oldID)
	pipe.SAdd(ctx, bucket, newID)
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Join(ErrStoreUnavailable, err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) (bool, error) {
	existed, err := deleteIfExists.Run(ctx, s.client, []string{s.recordKey(id)}).Int64()
	if err != nil {
		return false, errors.Join(ErrStoreUnavailable, err)
	}
	return existed == 1, nil
}

func (s *RedisStore) IndexAdd(ctx context.Context, principal, id string) error {
	if err := s.client.SAdd(ctx, s.principalKey(principal), id).Err(); err != nil {
		return errors.Join(ErrStoreUnavailable, err)
	}
	return nil
}

func (s *RedisStore) IndexRemove(ctx context.Context, principal, id string) error {
	if err := s.client.SRem(ctx, s.principalKey(principal), id).Err(); err != nil {
		return errors.Join(ErrStoreUnavailable, err)
	}
	return nil
}

func (s *RedisStore) IndexMembers(ctx context.Context, principal string) ([]string, error) {
	ids, err := s.client.SMembers(ctx, s.principalKey(principal)).Result()
	if err != nil {
		return nil, errors.Join(ErrStoreUnavailable, err)
	}
	return ids, nil
}

// ExpiredIDs collects the expiration buckets for the cutoff minute and the
// grace window behind it. Buckets are never drained here: their keys carry
// their own TTL, so an id whose expiry failed mid-sweep is reported again on
// the next pass for as long as its record can still be read. Entries may
// therefore repeat across sweeps and may name renewed or already-removed
// sessions; the repository re-checks every id from the stored timestamps
// before removing anything.
func (s *RedisStore) ExpiredIDs(ctx context.Context, cutoff time.Time) ([]string, error) {
	minute := cutoff.Truncate(time.Minute)
	oldest := minute.Add(-redisTTLGrace)

	pipe := s.client.TxPipeline()
	var buckets []*redis.StringSliceCmd
	for m := minute; m.After(oldest); m = m.Add(-time.Minute) {
		buckets = append(buckets, pipe.SMembers(ctx, s.bucketKey(m)))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, errors.Join(ErrStoreUnavailable, err)
	}

	seen := make(map[string]struct{})
	var ids []string
	for _, bucket := range buckets {
		for _, id := range bucket.Val() {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (s *RedisStore) SupportsNativeTTL() bool { return true }

// Close is a no-op: the Redis client is owned and closed by the caller.
func (s *RedisStore) Close() error { return nil }

// applyExpiry sets the record key's TTL (with grace) and files the id into
// the expiration bucket for the minute its logical expiry rounds up to.
func (s *RedisStore) applyExpiry(ctx context.Context, pipe redis.Pipeliner, key string, rec *Record, ttl time.Duration) {
	if ttl <= 0 {
		pipe.Persist(ctx, key)
		return
	}

	pipe.Expire(ctx, key, ttl+redisTTLGrace)

	if expiresAt, ok := rec.ExpiresAt(); ok {
		bucket := s.bucketKey(nextMinute(expiresAt))
		pipe.SAdd(ctx, bucket, rec.ID)
		pipe.Expire(ctx, bucket, ttl+redisTTLGrace)
	}
}

func (s *RedisStore) parseRecord(id string, entries map[string]string) (*Record, error) {
	rec := &Record{
		ID:         id,
		Attributes: make(map[string][]byte),
	}
	for field, value := range entries {
		switch {
		case field == redisCreatedField:
			ms, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return nil, errors.Join(ErrDecode, err)
			}
			rec.CreationTime = time.UnixMilli(ms)
		case field == redisLastAccessedField:
			ms, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return nil, errors.Join(ErrDecode, err)
			}
			rec.LastAccessedTime = time.UnixMilli(ms)
		case field == redisIntervalField:
			secs, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return nil, errors.Join(ErrDecode, err)
			}
			rec.MaxInactiveInterval = time.Duration(secs) * time.Second
		case strings.HasPrefix(field, redisAttrPrefix):
			rec.Attributes[strings.TrimPrefix(field, redisAttrPrefix)] = []byte(value)
		}
	}
	return rec, nil
}

func (s *RedisStore) recordKey(id string) string {
	return s.opts.prefix + ":sessions:" + id
}

func (s *RedisStore) principalKey(principal string) string {
	return s.opts.prefix + ":index:principal:" + principal
}

func (s *RedisStore) bucketKey(minute time.Time) string {
	return s.opts.prefix + ":expirations:" + strconv.FormatInt(minute.Unix(), 10)
}

// nextMinute rounds an instant up to the next whole minute, so a record is
// never filed into a bucket the sweeper processes before the record has
// actually expired.
func nextMinute(t time.Time) time.Time {
	return t.Truncate(time.Minute).Add(time.Minute)
}

var _ Store = (*RedisStore)(nil)
