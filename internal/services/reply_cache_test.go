// internal/services/reply_cache_test.go
package services

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestMemoryReplyCacheRoundTrip(t *testing.T) {
	cache := NewMemoryReplyCache()
	ctx := context.Background()

	if _, ok := cache.Get(ctx, "missing"); ok {
		t.Fatal("expected miss for unknown key")
	}

	cache.Set(ctx, "k1", "v1", time.Minute)
	value, ok := cache.Get(ctx, "k1")
	if !ok || value != "v1" {
		t.Fatalf("expected v1, got %q (hit=%v)", value, ok)
	}
}

func TestMemoryReplyCacheExpiry(t *testing.T) {
	cache := NewMemoryReplyCache()
	ctx := context.Background()

	cache.Set(ctx, "k1", "v1", -time.Second)
	if _, ok := cache.Get(ctx, "k1"); ok {
		t.Fatal("expired entry must miss")
	}
}

func TestRedisReplyCacheRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	cache := NewRedisReplyCacheWithClient(client)
	ctx := context.Background()

	if _, ok := cache.Get(ctx, "missing"); ok {
		t.Fatal("expected miss for unknown key")
	}

	cache.Set(ctx, "k1", "v1", time.Minute)
	value, ok := cache.Get(ctx, "k1")
	if !ok || value != "v1" {
		t.Fatalf("expected v1, got %q (hit=%v)", value, ok)
	}

	// TTL expiry via miniredis clock.
	mr.FastForward(2 * time.Minute)
	if _, ok := cache.Get(ctx, "k1"); ok {
		t.Fatal("expired entry must miss")
	}
}
