package middleware

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRateLimitStore is a distributed `RateLimitStore` backed by
// `github.com/redis/go-redis/v9`, so a rate limit survives past a single
// process and is shared across replicas. Grounded on the go-redis/v9
// dependency pulled in by `pgollucci-loom`'s go.mod (the only repo in the
// retrieved corpus that carries a Redis client at all); the corpus has no
// call-site to copy idiom from, so the INCR-then-conditionally-EXPIRE
// sequence below follows go-redis's own documented rate-limit recipe.
type RedisRateLimitStore struct {
	client *redis.Client
	prefix string
}

// NewRedisRateLimitStore returns a store that namespaces every key under
// prefix (so multiple rate limiters can share one Redis database).
func NewRedisRateLimitStore(client *redis.Client, prefix string) *RedisRateLimitStore {
	return &RedisRateLimitStore{client: client, prefix: prefix}
}

func (s *RedisRateLimitStore) fullKey(key string) string {
	return s.prefix + ":" + key
}

// Get reads the current count and TTL-derived reset time for key without
// mutating it.
func (s *RedisRateLimitStore) Get(key string) (int, time.Time, bool) {
	ctx := context.Background()
	fk := s.fullKey(key)

	count, err := s.client.Get(ctx, fk).Int()
	if err != nil {
		return 0, time.Time{}, false
	}

	ttl, err := s.client.TTL(ctx, fk).Result()
	if err != nil || ttl <= 0 {
		return 0, time.Time{}, false
	}

	return count, time.Now().Add(ttl), true
}

// Increment runs INCR on key's Redis counter, setting its expiry to window
// only the first time the key is created in the current period (i.e. when
// INCR returns 1), so the window doesn't slide forward on every request.
func (s *RedisRateLimitStore) Increment(key string, window time.Duration) (int, time.Time) {
	ctx := context.Background()
	fk := s.fullKey(key)

	count, err := s.client.Incr(ctx, fk).Result()
	if err != nil {
		return 0, time.Now().Add(window)
	}

	if count == 1 {
		s.client.Expire(ctx, fk, window)
	}

	ttl, err := s.client.TTL(ctx, fk).Result()
	if err != nil || ttl <= 0 {
		ttl = window
	}

	return int(count), time.Now().Add(ttl)
}

// Decrement runs DECR on key's counter, leaving its expiry untouched.
func (s *RedisRateLimitStore) Decrement(key string) {
	ctx := context.Background()
	s.client.Decr(ctx, s.fullKey(key))
}

// Reset deletes key's counter outright.
func (s *RedisRateLimitStore) Reset(key string) {
	ctx := context.Background()
	s.client.Del(ctx, s.fullKey(key))
}

// Clear deletes every key under this store's prefix. Uses `SCAN` rather
// than `KEYS` so it doesn't block a shared Redis instance under load.
func (s *RedisRateLimitStore) Clear() {
	ctx := context.Background()

	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, s.prefix+":*", 100).Result()
		if err != nil {
			return
		}

		if len(keys) > 0 {
			s.client.Del(ctx, keys...)
		}

		if next == 0 {
			return
		}
		cursor = next
	}
}
