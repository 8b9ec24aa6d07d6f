package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedisLimiter(t *testing.T, limit int) (*FixedWindowLimiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	limiter, err := NewFixedWindowLimiter(client, "test:ratelimit", limit, time.Minute)
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}
	return limiter, mr
}

func TestFixedWindowLimiterRedis(t *testing.T) {
	ctx := context.Background()
	limiter, _ := newRedisLimiter(t, 2)
	if d := limiter.Allow(ctx, "user-1"); !d.Allowed || d.Remaining != 1 {
		t.Fatalf("first request should pass with 1 remaining, got %+v", d)
	}
	if !limiter.Allow(ctx, "user-1").Allowed {
		t.Fatalf("second request should pass")
	}
	d := limiter.Allow(ctx, "user-1")
	if d.Allowed {
		t.Fatalf("third request should be blocked")
	}
	if d.RetryAfter <= 0 || d.RetryAfter > time.Minute {
		t.Fatalf("unexpected retry-after %v", d.RetryAfter)
	}
	if !limiter.Allow(ctx, "user-2").Allowed {
		t.Fatalf("other keys have their own quota")
	}
}

func TestFixedWindowLimiterRedisFailClosed(t *testing.T) {
	limiter, mr := newRedisLimiter(t, 1)
	mr.Close()
	if limiter.Allow(context.Background(), "user-1").Allowed {
		t.Fatalf("limiter should fail closed on redis errors")
	}
}

func TestFixedWindowLimiterValidatesArgs(t *testing.T) {
	if _, err := NewFixedWindowLimiter(nil, "", 1, time.Second); err == nil {
		t.Fatalf("expected error for nil client")
	}
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer client.Close()
	if _, err := NewFixedWindowLimiter(client, "", 0, time.Second); err == nil {
		t.Fatalf("expected error for zero limit")
	}
}

func TestLocalLimiterBurstThenBlock(t *testing.T) {
	ctx := context.Background()
	l := NewLocalLimiter(2, time.Minute)
	if !l.Allow(ctx, "k").Allowed || !l.Allow(ctx, "k").Allowed {
		t.Fatalf("burst of two should pass")
	}
	d := l.Allow(ctx, "k")
	if d.Allowed || d.RetryAfter <= 0 {
		t.Fatalf("third request should be blocked with retry-after, got %+v", d)
	}
	if !l.Allow(ctx, "other").Allowed {
		t.Fatalf("separate key should pass")
	}
}

func TestLocalLimiterDropsIdleBuckets(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 11, 1, 9, 0, 0, 0, time.UTC)
	l := NewLocalLimiter(1, time.Minute)
	l.now = func() time.Time { return now }

	for i := 0; i < 50; i++ {
		l.Allow(ctx, "user-"+string(rune('a'+i%26))+string(rune('a'+i/26)))
	}
	if l.Len() != 50 {
		t.Fatalf("expected 50 buckets, got %d", l.Len())
	}
	if l.Allow(ctx, "user-aa").Allowed {
		t.Fatalf("exhausted key should stay blocked within the window")
	}

	now = now.Add(time.Minute)
	if !l.Allow(ctx, "fresh").Allowed {
		t.Fatalf("new key should pass")
	}
	if l.Len() != 1 {
		t.Fatalf("idle buckets should be swept, got %d", l.Len())
	}
	if !l.Allow(ctx, "user-aa").Allowed {
		t.Fatalf("swept key should start with a full bucket")
	}
}
