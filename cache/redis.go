package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/mmcloughlin/geohash"
)

// Query coordinates are keyed by geohash so equivalent clamped/wrapped
// queries share a cache entry. Precision 9 cells are ~5m across.
const keyPrecision = 9

// QueryCache is an optional redis read-through cache for serialized
// nearest-query responses. A zero QueryCache (no client) disables caching;
// all methods stay safe to call.
type QueryCache struct {
	client *redis.Client
	ttl    time.Duration
}

// New connects to redis at addr. An empty addr or a failed ping yields a
// disabled cache rather than an error; the service works without redis.
func New(addr, password string, db int, ttl time.Duration, log *slog.Logger) *QueryCache {
	if log == nil {
		log = slog.Default()
	}
	if addr == "" {
		return &QueryCache{}
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		log.Warn("redis unreachable, query cache disabled", "addr", addr, "error", err)
		return &QueryCache{}
	}
	log.Info("query cache connected", "addr", addr, "ttl", ttl)
	return &QueryCache{client: client, ttl: ttl}
}

// Enabled reports whether a redis client is connected.
func (c *QueryCache) Enabled() bool {
	return c != nil && c.client != nil
}

// Key builds the cache key for a normalized query coordinate and limit.
func Key(lat, lng float64, limit int) string {
	return fmt.Sprintf("nearest:%s:%d", geohash.EncodeWithPrecision(lat, lng, keyPrecision), limit)
}

// Get returns the cached payload for key, if present.
func (c *QueryCache) Get(ctx context.Context, key string) ([]byte, bool) {
	if !c.Enabled() {
		return nil, false
	}
	payload, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	return payload, true
}

// Set stores payload under key for the configured TTL. Failures are
// ignored; the cache is best-effort.
func (c *QueryCache) Set(ctx context.Context, key string, payload []byte) {
	if !c.Enabled() {
		return
	}
	c.client.Set(ctx, key, payload, c.ttl)
}
