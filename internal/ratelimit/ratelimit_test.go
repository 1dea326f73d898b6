package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestWait_UnknownHost(t *testing.T) {
	l := NewLimiter(nil)
	if err := l.Wait(context.Background(), "nope"); err == nil {
		t.Error("Wait() on unknown host should error")
	}
}

func TestWait_LocalIntervalEnforced(t *testing.T) {
	l := NewLimiter(nil)
	ctx := context.Background()

	start := time.Now()
	if err := l.Wait(ctx, "pinterest-pin"); err != nil {
		t.Fatalf("Wait() error: %v", err)
	}
	if err := l.Wait(ctx, "pinterest-pin"); err != nil {
		t.Fatalf("Wait() error: %v", err)
	}
	elapsed := time.Since(start)

	// Second call must respect the 500ms pin-creation interval
	if elapsed < 450*time.Millisecond {
		t.Errorf("two pin waits completed in %v, want >= ~500ms", elapsed)
	}
}

func TestWait_RedisWindow(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	l := NewLimiter(client)
	ctx := context.Background()

	limit := HostLimits["shopify"]

	allowed, _, err := l.checkRedis(ctx, "shopify", limit)
	if err != nil {
		t.Fatalf("checkRedis() error: %v", err)
	}
	if !allowed {
		t.Fatal("first request should be allowed")
	}

	// Exhaust the per-second window
	l.checkRedis(ctx, "shopify", limit)
	allowed, wait, err := l.checkRedis(ctx, "shopify", limit)
	if err != nil {
		t.Fatalf("checkRedis() error: %v", err)
	}
	if allowed {
		t.Error("third request within one second should be denied")
	}
	if wait <= 0 {
		t.Error("denied request should carry a positive wait")
	}
}

func TestWait_ContextCancellation(t *testing.T) {
	l := NewLimiter(nil)
	ctx, cancel := context.WithCancel(context.Background())

	// Prime the interval so the next call must wait, then cancel.
	if err := l.Wait(ctx, "openai"); err != nil {
		t.Fatalf("Wait() error: %v", err)
	}
	cancel()
	if err := l.Wait(ctx, "openai"); err == nil {
		t.Error("Wait() with canceled context should error")
	}
}
