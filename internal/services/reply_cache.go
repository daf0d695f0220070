// internal/services/reply_cache.go
package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ReplyCache caches serialized beats keyed by a request fingerprint so
// identical generation requests within the TTL skip the backend.
type ReplyCache interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key, value string, ttl time.Duration)
}

// ---- in-memory implementation ----

type memoryCacheEntry struct {
	value     string
	expiresAt time.Time
}

// MemoryReplyCache 进程内回复缓存
type MemoryReplyCache struct {
	mu      sync.RWMutex
	entries map[string]memoryCacheEntry
}

// NewMemoryReplyCache 创建进程内缓存
func NewMemoryReplyCache() *MemoryReplyCache {
	return &MemoryReplyCache{entries: make(map[string]memoryCacheEntry)}
}

func (c *MemoryReplyCache) Get(ctx context.Context, key string) (string, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return "", false
	}
	if time.Now().After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return "", false
	}
	return entry.value, true
}

func (c *MemoryReplyCache) Set(ctx context.Context, key, value string, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Opportunistic sweep keeps the map from growing without bound.
	if len(c.entries) > 4096 {
		now := time.Now()
		for k, e := range c.entries {
			if now.After(e.expiresAt) {
				delete(c.entries, k)
			}
		}
	}
	c.entries[key] = memoryCacheEntry{value: value, expiresAt: time.Now().Add(ttl)}
}

// ---- redis implementation ----

// RedisReplyCache 基于Redis的回复缓存，供多实例部署共享
type RedisReplyCache struct {
	client *redis.Client
	prefix string
}

// NewRedisReplyCache 创建Redis缓存
func NewRedisReplyCache(addr string) *RedisReplyCache {
	return &RedisReplyCache{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		prefix: "reply:",
	}
}

// NewRedisReplyCacheWithClient wires an existing client, used in tests.
func NewRedisReplyCacheWithClient(client *redis.Client) *RedisReplyCache {
	return &RedisReplyCache{client: client, prefix: "reply:"}
}

func (c *RedisReplyCache) Get(ctx context.Context, key string) (string, bool) {
	value, err := c.client.Get(ctx, c.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false
	}
	if err != nil {
		// Cache misses on transport errors; generation still works.
		return "", false
	}
	return value, true
}

func (c *RedisReplyCache) Set(ctx context.Context, key, value string, ttl time.Duration) {
	c.client.Set(ctx, c.prefix+key, value, ttl)
}
