// Package cache keeps rendered API responses for a short time so repeated
// operator requests do not spend provider calls. Entries live in process
// memory; an optional Redis tier shares them between API instances.
package cache

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/albapepper/cricket-livestats/internal/metrics"
)

// Lifetimes of cached provider responses.
const (
	TTLListing   = 60 * time.Second // live/recent/upcoming listings
	TTLScorecard = 5 * time.Minute
	TTLPlayer    = time.Hour // profiles, search results, career stats
)

type entry struct {
	data      []byte
	etag      string
	expiresAt time.Time
}

// Cache is a mutex-guarded TTL map of response bodies.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]entry
	enabled bool
	now     func() time.Time

	rdb    *redis.Client
	prefix string
}

// Stats describes the cache contents.
type Stats struct {
	Enabled bool `json:"enabled"`
	Shared  bool `json:"shared"`
	Keys    int  `json:"total_keys"`
	Active  int  `json:"active_keys"`
	Expired int  `json:"expired_keys"`
}

// New creates a cache. A disabled cache misses on every Get and stores
// nothing.
func New(enabled bool) *Cache {
	return &Cache{entries: make(map[string]entry), enabled: enabled, now: time.Now}
}

// WithRedis adds a shared tier. Keys are stored under prefix.
func (c *Cache) WithRedis(rdb *redis.Client, prefix string) *Cache {
	c.rdb = rdb
	c.prefix = prefix
	return c
}

// Get returns the body and ETag stored under key, if still fresh. A memory
// miss falls through to Redis, and a Redis hit is kept in memory for the
// rest of its lifetime. Redis errors count as misses.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, string, bool) {
	if !c.enabled {
		return nil, "", false
	}
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if ok && c.now().Before(e.expiresAt) {
		metrics.CacheHitsTotal.Inc()
		return e.data, e.etag, true
	}

	if c.rdb != nil {
		if data, ttl, ok := c.getShared(ctx, key); ok {
			metrics.CacheHitsTotal.Inc()
			return data, c.store(key, data, ttl), true
		}
	}
	metrics.CacheMissesTotal.Inc()
	return nil, "", false
}

func (c *Cache) getShared(ctx context.Context, key string) ([]byte, time.Duration, bool) {
	pipe := c.rdb.Pipeline()
	get := pipe.Get(ctx, c.prefix+key)
	pttl := pipe.PTTL(ctx, c.prefix+key)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, 0, false
	}
	data, err := get.Bytes()
	if err != nil || pttl.Val() <= 0 {
		return nil, 0, false
	}
	return data, pttl.Val(), true
}

// Set stores data under key for ttl and returns its ETag. The ETag is
// computed even when the cache is disabled.
func (c *Cache) Set(ctx context.Context, key string, data []byte, ttl time.Duration) string {
	if !c.enabled {
		return ETag(data)
	}
	if c.rdb != nil {
		_ = c.rdb.Set(ctx, c.prefix+key, data, ttl).Err()
	}
	return c.store(key, data, ttl)
}

func (c *Cache) store(key string, data []byte, ttl time.Duration) string {
	etag := ETag(data)
	c.mu.Lock()
	c.entries[key] = entry{data: data, etag: etag, expiresAt: c.now().Add(ttl)}
	c.mu.Unlock()
	return etag
}

// Stats counts live and expired keys.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s := Stats{Enabled: c.enabled, Shared: c.rdb != nil, Keys: len(c.entries)}
	now := c.now()
	for _, e := range c.entries {
		if now.Before(e.expiresAt) {
			s.Active++
		}
	}
	s.Expired = s.Keys - s.Active
	return s
}

// Run evicts expired entries every interval until ctx is done.
func (c *Cache) Run(ctx context.Context, interval time.Duration) {
	if !c.enabled {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.evict()
		}
	}
}

func (c *Cache) evict() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	n := 0
	for key, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, key)
			n++
		}
	}
	return n
}

// ETag returns a weak validator for data.
func ETag(data []byte) string {
	sum := sha256.Sum256(data)
	return fmt.Sprintf(`W/"%x"`, sum[:8])
}

// Matches reports whether an If-None-Match header value accepts etag.
func Matches(ifNoneMatch, etag string) bool {
	return ifNoneMatch != "" && (ifNoneMatch == "*" || ifNoneMatch == etag)
}
