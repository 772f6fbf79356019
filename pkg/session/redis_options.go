package session

// RedisStoreOption configures the Redis store.
type RedisStoreOption func(*redisStoreOptions)

type redisStoreOptions struct {
	prefix string
}

func defaultRedisStoreOptions() *redisStoreOptions {
	return &redisStoreOptions{
		prefix: "session",
	}
}

// WithRedisPrefix sets the key namespace for all session keys. Keys are
// stored as "{prefix}:sessions:{id}". Useful when multiple applications
// share the same Redis instance.
// Default: "session".
func WithRedisPrefix(prefix string) RedisStoreOption {
	return func(o *redisStoreOptions) {
		if prefix != "" {
			o.prefix = prefix
		}
	}
}
