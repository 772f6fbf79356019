// Package redis provides the Redis client plumbing used by the Redis
// session store: connection opening with retry and sensible pool defaults,
// and a health check closure.
//
// The returned client is what [github.com/dmitrymomot/sessionstore/pkg/session.NewRedisStore]
// expects; its lifecycle stays with the caller:
//
//	client, err := redis.Open(ctx, os.Getenv("REDIS_URL"))
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	store := session.NewRedisStore(client)
//
// Errors are wrapped with [errors.Join] so sentinels remain matchable with
// [errors.Is] while preserving the driver cause.
package redis
