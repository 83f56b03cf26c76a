package store

import (
	"context"
	"errors"
	"testing"
	"time"

	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
)

// setupTestRedis connects to a local Redis on DB 15 and skips the test when
// none is running. tests/integration covers the same paths with a container.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15,
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available for testing: %v", err)
	}

	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("Failed to flush test DB: %v", err)
	}

	t.Cleanup(func() {
		client.FlushDB(context.Background())
		client.Close()
	})

	return client
}

func TestNewRedisStore_Panic(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("NewRedisStore should panic with nil redis client")
		}
	}()
	NewRedisStore(nil)
}

func TestConnect_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := Connect(ctx, RedisConfig{Addr: "127.0.0.1:1"})
	if err == nil {
		t.Fatal("Connect to closed port should fail")
	}
}

func TestRedisStore_Incr(t *testing.T) {
	s := NewRedisStore(setupTestRedis(t))
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		got, err := s.Incr(ctx, "count:http://x")
		if err != nil {
			t.Fatalf("Incr failed: %v", err)
		}
		if got != want {
			t.Errorf("Incr() = %d, want %d", got, want)
		}
	}
}

func TestRedisStore_GetSetEx(t *testing.T) {
	client := setupTestRedis(t)
	s := NewRedisStore(client)
	ctx := context.Background()

	if _, err := s.Get(ctx, "cache:http://x"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}

	if err := s.SetEx(ctx, "cache:http://x", "<html>A</html>", time.Minute); err != nil {
		t.Fatalf("SetEx failed: %v", err)
	}

	v, err := s.Get(ctx, "cache:http://x")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if v != "<html>A</html>" {
		t.Errorf("Get() = %q, want %q", v, "<html>A</html>")
	}

	ttl, err := client.TTL(ctx, "cache:http://x").Result()
	if err != nil {
		t.Fatalf("TTL failed: %v", err)
	}
	if ttl <= 0 || ttl > time.Minute {
		t.Errorf("TTL = %v, want (0, 1m]", ttl)
	}
}

func TestRedisStore_SetEx_Expires(t *testing.T) {
	s := NewRedisStore(setupTestRedis(t))
	ctx := context.Background()

	if err := s.SetEx(ctx, "cache:short", "v", 100*time.Millisecond); err != nil {
		t.Fatalf("SetEx failed: %v", err)
	}

	time.Sleep(250 * time.Millisecond)

	if _, err := s.Get(ctx, "cache:short"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound after expiry, got %v", err)
	}
}

func TestRedisStore_SetEx_InvalidTTL(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	defer client.Close()

	s := NewRedisStore(client)
	failures := Operations.WithLabelValues(backendRedis, "setex", resultError)
	before := promtestutil.ToFloat64(failures)

	if err := s.SetEx(context.Background(), "k", "v", 0); !errors.Is(err, ErrInvalidTTL) {
		t.Errorf("SetEx(0) error = %v, want ErrInvalidTTL", err)
	}

	if got := promtestutil.ToFloat64(failures) - before; got != 1 {
		t.Errorf("setex error metric increased by %v, want 1", got)
	}
}
