package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
)

func setupTestRedis(t *testing.T) (*goredis.Client, func()) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	return client, func() {
		client.Close()
		mr.Close()
	}
}

func TestLock_AcquireThenReleaseAllowsReacquire(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	l := NewLock(client)
	ctx := context.Background()

	ok, err := l.Acquire(ctx, "sync:group-1", time.Minute)
	if err != nil || !ok {
		t.Fatalf("expected acquire to succeed, got ok=%v err=%v", ok, err)
	}

	other := NewLock(client)
	ok, err = other.Acquire(ctx, "sync:group-1", time.Minute)
	if err != nil || ok {
		t.Fatalf("expected second acquire to fail while held, got ok=%v err=%v", ok, err)
	}

	if err := l.Release(ctx, "sync:group-1"); err != nil {
		t.Fatalf("release: %v", err)
	}

	ok, err = other.Acquire(ctx, "sync:group-1", time.Minute)
	if err != nil || !ok {
		t.Fatalf("expected reacquire after release, got ok=%v err=%v", ok, err)
	}
}

func TestLock_ReleaseByNonOwnerIsNoOp(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()
	ctx := context.Background()

	l := NewLock(client)
	if _, err := l.Acquire(ctx, "sync:group-2", time.Minute); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	intruder := NewLock(client)
	if err := intruder.Release(ctx, "sync:group-2"); err != nil {
		t.Fatalf("release by non-owner should not error: %v", err)
	}

	// still held by the original owner
	other := NewLock(client)
	ok, err := other.Acquire(ctx, "sync:group-2", time.Minute)
	if err != nil || ok {
		t.Fatalf("expected lock to still be held, got ok=%v err=%v", ok, err)
	}
}
