package cache

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedisCacheForTest(t *testing.T) (*miniredis.Miniredis, *RedisCache) {
	t.Helper()
	m := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
	})
	return m, NewRedisCache(client, "test")
}

func TestRedisCacheRoundTrip(t *testing.T) {
	m, c := newRedisCacheForTest(t)
	ctx := context.Background()

	if _, ok, err := c.Get(ctx, "dark-mode"); ok || err != nil {
		t.Fatalf("expected clean miss, ok=%v err=%v", ok, err)
	}
	if err := c.Set(ctx, "dark-mode", []byte(`{"enabled":true}`), time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	val, ok, err := c.Get(ctx, "dark-mode")
	if err != nil || !ok {
		t.Fatalf("expected hit, ok=%v err=%v", ok, err)
	}
	if string(val) != `{"enabled":true}` {
		t.Fatalf("unexpected payload: %s", val)
	}

	m.FastForward(2 * time.Minute)
	if _, ok, _ := c.Get(ctx, "dark-mode"); ok {
		t.Fatal("expected miss after ttl expiry")
	}
}

func TestRedisCacheDelete(t *testing.T) {
	_, c := newRedisCacheForTest(t)
	ctx := context.Background()
	if err := c.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := c.Delete(ctx, "k"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := c.Get(ctx, "k"); ok {
		t.Fatal("expected miss after delete")
	}
	// Deleting an absent key is not an error.
	if err := c.Delete(ctx, "missing"); err != nil {
		t.Fatalf("delete absent: %v", err)
	}
}

func TestRedisCacheNilClientDegradesToNoop(t *testing.T) {
	c := NewRedisCache(nil, "")
	ctx := context.Background()
	if err := c.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	if _, ok, err := c.Get(ctx, "k"); ok || err != nil {
		t.Fatalf("expected miss, ok=%v err=%v", ok, err)
	}
	if err := c.Delete(ctx, "k"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := c.Ping(ctx); err == nil {
		t.Fatal("ping must fail with nil client")
	}
}

func TestRedisCacheUnreachableBackendReturnsError(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:         "127.0.0.1:1",
		DialTimeout:  20 * time.Millisecond,
		ReadTimeout:  20 * time.Millisecond,
		WriteTimeout: 20 * time.Millisecond,
	})
	t.Cleanup(func() { _ = client.Close() })
	c := NewRedisCache(client, "test")
	ctx := context.Background()

	if _, _, err := c.Get(ctx, "k"); err == nil {
		t.Fatal("expected error from unreachable backend")
	}
	if err := c.Ping(ctx); err == nil {
		t.Fatal("expected ping failure")
	}
}
