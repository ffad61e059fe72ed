package testutil

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisDBLockTTL = 30 * time.Minute

// redisCandidates lists where a test Redis may listen: REDIS_ADDR, the CI
// service name, a local default install, then the compose test profile.
func redisCandidates() []string {
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		return []string{addr}
	}
	return []string{"redis:6379", "localhost:6379", "localhost:56379"}
}

func pingRedis(addr string, db int) (*redis.Client, error) {
	c := redis.NewClient(&redis.Options{Addr: addr, DB: db})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.Ping(ctx).Err(); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

// SetupTestRedis returns a client on an empty logical DB reserved for t.
// The DB is TEST_REDIS_DB when set; otherwise the first of 1..15 whose lock
// key in DB 0 is free, so packages tested in parallel do not flush each other.
func SetupTestRedis(t testing.TB) *redis.Client {
	t.Helper()

	var (
		meta *redis.Client
		addr string
		err  error
	)
	for _, addr = range redisCandidates() {
		if meta, err = pingRedis(addr, 0); err == nil {
			break
		}
	}
	if meta == nil {
		if requireRedis() {
			t.Fatalf("redis not available: %v", err)
		}
		t.Skipf("redis not available: %v", err)
	}
	defer func() { _ = meta.Close() }()

	db := reserveRedisDB(t, meta, addr)
	client, err := pingRedis(addr, db)
	if err != nil {
		t.Fatalf("redis db %d at %s: %v", db, addr, err)
	}
	t.Cleanup(func() { _ = client.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("flush redis db %d: %v", db, err)
	}
	return client
}

func reserveRedisDB(t testing.TB, meta *redis.Client, addr string) int {
	t.Helper()
	if v := os.Getenv("TEST_REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			return n
		}
		t.Logf("ignoring invalid TEST_REDIS_DB=%q", v)
	}

	owner := fmt.Sprintf("%d:%d", os.Getpid(), time.Now().UnixNano())
	for db := 1; db <= 15; db++ {
		key := fmt.Sprintf("wallmag:testutil:db_lock:%d", db)
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		ok, err := meta.SetNX(ctx, key, owner, redisDBLockTTL).Result()
		cancel()
		if err != nil || !ok {
			continue
		}
		t.Cleanup(func() {
			c := redis.NewClient(&redis.Options{Addr: addr})
			defer func() { _ = c.Close() }()
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := c.Del(ctx, key).Err(); err != nil {
				t.Logf("release %s: %v", key, err)
			}
		})
		return db
	}
	t.Logf("all redis test DBs locked at %s; sharing DB 1", addr)
	return 1
}
