// Package redis provides Redis-backed adapters for the session registry and audit log.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/wallmag/wallmag-api/internal/ports"
)

// scanBatch is the COUNT hint passed to SCAN.
const scanBatch = 200

// incrWithExpiry increments KEYS[1] and sets its TTL only when the counter was just created,
// so a window is never extended by later hits.
var incrWithExpiry = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return n
`)

// Store implements ports.KeyValueStore on a Redis client.
type Store struct {
	client redis.UniversalClient
}

var _ ports.KeyValueStore = (*Store)(nil)

// NewStore creates a new Redis-backed key/value store.
func NewStore(client redis.UniversalClient) *Store {
	return &Store{client: client}
}

// Get returns the value stored at key or ports.ErrKeyNotFound.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	if key == "" {
		return "", ports.ErrKeyNotFound
	}

	val, err := s.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ports.ErrKeyNotFound
		}
		return "", fmt.Errorf("redis get: %w", err)
	}
	return val, nil
}

// Set stores value at key with the given TTL. A non-positive TTL is rejected;
// every key this store writes must expire.
func (s *Store) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if key == "" {
		return errors.New("key cannot be empty")
	}
	if ttl <= 0 {
		return fmt.Errorf("redis set %s: ttl must be positive", key)
	}

	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Delete removes keys. Missing keys are not an error.
func (s *Store) Delete(ctx context.Context, keys ...string) error {
	filtered := keys[:0:0]
	for _, k := range keys {
		if k != "" {
			filtered = append(filtered, k)
		}
	}
	if len(filtered) == 0 {
		return nil
	}

	if err := s.client.Del(ctx, filtered...).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// IncrWithExpiry atomically increments key, setting ttl on first increment.
func (s *Store) IncrWithExpiry(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	if key == "" {
		return 0, errors.New("key cannot be empty")
	}
	if ttl <= 0 {
		ttl = time.Second
	}

	n, err := incrWithExpiry.Run(ctx, s.client, []string{key}, ttl.Milliseconds()).Int64()
	if err != nil {
		return 0, fmt.Errorf("redis incr: %w", err)
	}
	return n, nil
}

// Scan walks every key with the given prefix.
func (s *Store) Scan(ctx context.Context, prefix string, fn func(key string) error) error {
	if prefix == "" {
		return errors.New("scan prefix cannot be empty")
	}

	iter := s.client.Scan(ctx, 0, prefix+"*", scanBatch).Iterator()
	for iter.Next(ctx) {
		if err := fn(iter.Val()); err != nil {
			return err
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan: %w", err)
	}
	return nil
}

// Health pings the Redis server.
func (s *Store) Health(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
