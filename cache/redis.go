package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis is a shared ValidationCache for multi-instance deployments. It keeps
// the same bounded-staleness contract as Local; Redis enforces the TTL.
// All failures degrade to cache misses, never to request failures.
type Redis struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

// NewRedis builds a Redis-backed cache under the given key prefix.
func NewRedis(client redis.UniversalClient, prefix string, ttl time.Duration) *Redis {
	if prefix == "" {
		prefix = "av"
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Redis{client: client, prefix: prefix, ttl: ttl, now: time.Now}
}

func (c *Redis) key(token string) string {
	return c.prefix + ":" + tokenKey(token)
}

func (c *Redis) Get(ctx context.Context, token string) (Entry, bool) {
	val, err := c.client.Get(ctx, c.key(token)).Result()
	if err != nil {
		return Entry{}, false
	}
	return Entry{Valid: val == "1", CachedAt: c.now()}, true
}

func (c *Redis) Put(ctx context.Context, token string, valid bool) {
	val := "0"
	if valid {
		val = "1"
	}
	_ = c.client.Set(ctx, c.key(token), val, c.ttl).Err()
}

func (c *Redis) Invalidate(ctx context.Context, tokens ...string) {
	if len(tokens) > 0 {
		keys := make([]string, 0, len(tokens))
		for _, token := range tokens {
			keys = append(keys, c.key(token))
		}
		_ = c.client.Del(ctx, keys...).Err()
		return
	}

	// Global clear: scan the prefix namespace. Revocation is rare enough
	// that the O(n) walk is acceptable.
	var cursor uint64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, c.prefix+":*", 1000).Result()
		if err != nil {
			return
		}
		if len(keys) > 0 {
			_ = c.client.Del(ctx, keys...).Err()
		}
		cursor = next
		if cursor == 0 {
			return
		}
	}
}

var _ ValidationCache = (*Redis)(nil)
