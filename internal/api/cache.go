/**
 * @description
 * Redis-backed response caching for hot read endpoints. The public event
 * listing is read far more often than it changes, so successful responses
 * are cached under a fixed key with a short TTL and invalidated whenever an
 * admin mutates events. A Redis outage degrades to uncached reads.
 *
 * @dependencies
 * - bytes, net/http, time: Standard Go libraries.
 * - github.com/redis/go-redis/v9: The Redis client library.
 */

package api

import (
	"bytes"
	"context"
	"log"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
)

// eventListCacheKey is the cache key for the public event listing.
const eventListCacheKey = "cache:events:list"

// ResponseCache caches whole JSON response bodies in Redis.
type ResponseCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewResponseCache creates a cache. A nil client disables caching entirely.
func NewResponseCache(client *redis.Client, ttl time.Duration) *ResponseCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &ResponseCache{client: client, ttl: ttl}
}

type cacheRecorder struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (r *cacheRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *cacheRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

// Middleware serves GET responses from Redis under the given key, recording
// and storing misses that complete with 200.
func (c *ResponseCache) Middleware(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if c.client == nil || r.Method != http.MethodGet {
				next.ServeHTTP(w, r)
				return
			}

			if cached, err := c.client.Get(r.Context(), key).Bytes(); err == nil {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("X-Cache", "HIT")
				w.WriteHeader(http.StatusOK)
				w.Write(cached)
				return
			} else if err != redis.Nil {
				log.Printf("level=warn component=api_cache msg=\"redis get failed; serving uncached\" key=%s err=%v", key, err)
			}

			rec := &cacheRecorder{ResponseWriter: w}
			w.Header().Set("X-Cache", "MISS")
			next.ServeHTTP(rec, r)

			if rec.status == http.StatusOK && rec.body.Len() > 0 {
				if err := c.client.Set(r.Context(), key, rec.body.Bytes(), c.ttl).Err(); err != nil {
					log.Printf("level=warn component=api_cache msg=\"redis set failed\" key=%s err=%v", key, err)
				}
			}
		})
	}
}

// Invalidate drops a cached key. Called after admin event mutations.
func (c *ResponseCache) Invalidate(ctx context.Context, key string) {
	if c.client == nil {
		return
	}
	if err := c.client.Del(ctx, key).Err(); err != nil {
		log.Printf("level=warn component=api_cache msg=\"redis del failed\" key=%s err=%v", key, err)
	}
}
