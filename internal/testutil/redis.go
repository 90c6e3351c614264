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

// redisCandidates are tried in order when REDIS_ADDR is unset.
var redisCandidates = []string{"redis:6379", "localhost:6379", "localhost:56379"}

const redisLockTTL = 30 * time.Minute

// TestRedisAddr returns the first reachable Redis address, preferring REDIS_ADDR.
func TestRedisAddr(t testing.TB) (string, bool) {
	t.Helper()
	candidates := redisCandidates
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		candidates = []string{addr}
	}
	for _, addr := range candidates {
		if pingRedis(addr, 0) == nil {
			return addr, true
		}
	}
	return "", false
}

// SetupTestRedis returns a client on an empty logical database reserved for t.
// Packages run in parallel by `go test ./...` each reserve a different database.
func SetupTestRedis(t testing.TB) *redis.Client {
	t.Helper()
	addr, ok := TestRedisAddr(t)
	if !ok {
		unavailable(t, requireRedis(), "redis not available for testing")
	}

	db := reserveRedisDB(t, addr)
	client := redis.NewClient(&redis.Options{Addr: addr, DB: db})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.FlushDB(ctx).Err(); err != nil {
		_ = client.Close()
		unavailable(t, requireRedis(), "redis at %s db %d: %v", addr, db, err)
	}
	return client
}

// reserveRedisDB picks TEST_REDIS_DB when set, otherwise claims one of databases 1..15 with
// a lock key in database 0. The lock is released in t.Cleanup.
func reserveRedisDB(t testing.TB, addr string) int {
	t.Helper()
	if v := os.Getenv("TEST_REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			return n
		}
		t.Logf("ignoring invalid TEST_REDIS_DB=%q", v)
	}

	meta := redis.NewClient(&redis.Options{Addr: addr})
	owner := fmt.Sprintf("%d:%d", os.Getpid(), time.Now().UnixNano())
	for db := 1; db <= 15; db++ {
		key := fmt.Sprintf("jobqueue:testutil:db_lock:%d", db)
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		ok, err := meta.SetNX(ctx, key, owner, redisLockTTL).Result()
		cancel()
		if err != nil || !ok {
			continue
		}
		t.Cleanup(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := meta.Del(ctx, key).Err(); err != nil {
				t.Logf("release redis db lock %s: %v", key, err)
			}
			_ = meta.Close()
		})
		return db
	}
	_ = meta.Close()
	t.Logf("no free redis db, sharing db 1")
	return 1
}

func pingRedis(addr string, db int) error {
	c := redis.NewClient(&redis.Options{Addr: addr, DB: db})
	defer c.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return c.Ping(ctx).Err()
}
