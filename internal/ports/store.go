package ports

import (
	"context"
	"errors"
	"time"
)

// ErrKeyNotFound is returned by KeyValueStore.Get for missing or expired keys.
var ErrKeyNotFound = errors.New("key not found")

// KeyValueStore is the ephemeral, TTL-based store backing the session
// registry, blacklist, rotation grace markers and rate counters. Every
// operation touches a single key and must be atomic for that key.
type KeyValueStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	// IncrWithExpiry increments key and sets ttl when the counter is created.
	IncrWithExpiry(ctx context.Context, key string, ttl time.Duration) (int64, error)
	// Scan calls fn for every key starting with prefix. Iteration stops at the first error.
	Scan(ctx context.Context, prefix string, fn func(key string) error) error
}
