package driven

import (
	"context"
	"time"
)

// DistributedLock coordinates single-writer election across process
// instances, used by the sync loop so only one replica runs a sync pass
// for a given group at a time.
type DistributedLock interface {
	// Acquire attempts to take a named lock, returning false (no error) if
	// another holder already owns it.
	Acquire(ctx context.Context, name string, ttl time.Duration) (bool, error)

	// Release gives up a named lock. Safe to call even if not held.
	Release(ctx context.Context, name string) error

	// Extend refreshes a held lock's TTL so a long-running holder isn't
	// preempted mid-operation.
	Extend(ctx context.Context, name string, ttl time.Duration) error
}
