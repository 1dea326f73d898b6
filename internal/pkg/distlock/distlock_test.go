package distlock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func setupRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func TestRedisLock_AcquireRelease(t *testing.T) {
	client := setupRedis(t)
	ctx := context.Background()

	lock := NewRedisLock(client, JobLockKey("sales_tracker"), time.Minute)

	ok, err := lock.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire() error: %v", err)
	}
	if !ok {
		t.Fatal("first Acquire() should succeed")
	}

	// Second holder is rejected while the lock is held
	other := NewRedisLock(client, JobLockKey("sales_tracker"), time.Minute)
	ok, err = other.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire() error: %v", err)
	}
	if ok {
		t.Error("second Acquire() should fail while lock held")
	}

	if err := lock.Release(ctx); err != nil {
		t.Fatalf("Release() error: %v", err)
	}

	ok, err = other.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire() after release error: %v", err)
	}
	if !ok {
		t.Error("Acquire() should succeed after release")
	}
}

func TestRedisLock_ReleaseDoesNotStealOtherOwner(t *testing.T) {
	client := setupRedis(t)
	ctx := context.Background()

	a := NewRedisLock(client, TenantRefreshKey("tenant-1"), time.Minute)
	b := NewRedisLock(client, TenantRefreshKey("tenant-1"), time.Minute)

	if ok, _ := a.Acquire(ctx); !ok {
		t.Fatal("a.Acquire() should succeed")
	}

	// b never acquired; its Release must not delete a's lock
	if err := b.Release(ctx); err != nil {
		t.Fatalf("b.Release() error: %v", err)
	}

	if ok, _ := b.Acquire(ctx); ok {
		t.Error("a's lock should still be held after b.Release()")
	}
}

func TestRedisLock_Extend(t *testing.T) {
	client := setupRedis(t)
	ctx := context.Background()

	lock := NewRedisLock(client, JobLockKey("ad_sync"), time.Second)
	if ok, _ := lock.Acquire(ctx); !ok {
		t.Fatal("Acquire() should succeed")
	}

	if err := lock.Extend(ctx, time.Minute); err != nil {
		t.Fatalf("Extend() error: %v", err)
	}
}

func TestLockKeys(t *testing.T) {
	if got := JobLockKey("ad_sync"); got != "podpilot:job:ad_sync" {
		t.Errorf("JobLockKey = %q", got)
	}
	if got := TenantRefreshKey("t1"); got != "podpilot:token-refresh:t1" {
		t.Errorf("TenantRefreshKey = %q", got)
	}
}
