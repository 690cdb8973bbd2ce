// Package redis adapts go-redis as a driven.DistributedLock, used for
// single-writer election across sync-loop replicas.
package redis

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"github.com/custodia-labs/ragcore/internal/core/ports/driven"
	goredis "github.com/redis/go-redis/v9"
)

var _ driven.DistributedLock = (*Lock)(nil)

const keyPrefix = "ragcore:lock:"

// Lock implements driven.DistributedLock with Redis SETNX plus a Lua
// compare-and-delete so only the holder that set a key can clear it.
type Lock struct {
	client  *goredis.Client
	ownerID string
}

// NewLock wraps an existing go-redis client. ownerID is derived from the
// host and process so two replicas never collide.
func NewLock(client *goredis.Client) *Lock {
	return &Lock{client: client, ownerID: generateOwnerID()}
}

func generateOwnerID() string {
	hostname, _ := os.Hostname()
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return fmt.Sprintf("%s:%d:%s", hostname, os.Getpid(), hex.EncodeToString(buf))
}

func (l *Lock) Acquire(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	ok, err := l.client.SetNX(ctx, keyPrefix+name, l.ownerID, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire lock %s: %w", name, err)
	}
	return ok, nil
}

var releaseScript = goredis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	end
	return 0
`)

func (l *Lock) Release(ctx context.Context, name string) error {
	_, err := releaseScript.Run(ctx, l.client, []string{keyPrefix + name}, l.ownerID).Result()
	if err != nil && err != goredis.Nil {
		return fmt.Errorf("release lock %s: %w", name, err)
	}
	return nil
}

var extendScript = goredis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("pexpire", KEYS[1], ARGV[2])
	end
	return 0
`)

func (l *Lock) Extend(ctx context.Context, name string, ttl time.Duration) error {
	res, err := extendScript.Run(ctx, l.client, []string{keyPrefix + name}, l.ownerID, ttl.Milliseconds()).Result()
	if err != nil {
		return fmt.Errorf("extend lock %s: %w", name, err)
	}
	if n, ok := res.(int64); ok && n == 0 {
		return fmt.Errorf("lock %s not held by this owner", name)
	}
	return nil
}
