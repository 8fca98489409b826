// Package cache provides the keyed TTL cache the flag service reads through.
// Implementations are best-effort: a failed Get is a miss, a failed Set or
// Delete is reported to the caller but must never fail the surrounding
// operation.
package cache

import (
	"context"
	"time"
)

type Cache interface {
	// Get returns the cached payload and whether the key was present.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	// Ping reports backend reachability for health checks.
	Ping(ctx context.Context) error
}

// NoopCache is the implementation selected when caching is disabled: every
// lookup misses and every write succeeds without effect.
type NoopCache struct{}

func NewNoopCache() *NoopCache { return &NoopCache{} }

func (*NoopCache) Get(context.Context, string) ([]byte, bool, error) { return nil, false, nil }

func (*NoopCache) Set(context.Context, string, []byte, time.Duration) error { return nil }

func (*NoopCache) Delete(context.Context, string) error { return nil }

func (*NoopCache) Ping(context.Context) error { return nil }
