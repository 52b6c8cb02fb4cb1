// Package lock serializes proposers working on the same escrow.
//
// The ledger is the final authority: two proposers spending the same escrow
// output cannot both succeed. A Locker avoids the wasted build, sign and
// submit round trip of the loser. MemoryLocker covers a single process;
// RedisLocker covers replicas sharing a Redis instance.
package lock

import (
	"context"
	"errors"
	"time"
)

// ErrLockAcquire is returned when the backend fails while acquiring a lock.
var ErrLockAcquire = errors.New("failed to acquire escrow lock")

// UnlockFunc releases a lock. Calling it more than once is harmless.
type UnlockFunc func(ctx context.Context) error

// Locker acquires exclusive locks by key.
type Locker interface {
	// Lock blocks until the lock for key is held or ctx is done. The lock
	// expires after ttl if the backend supports expiry.
	Lock(ctx context.Context, key string, ttl time.Duration) (UnlockFunc, error)
}

// DefaultTTL bounds how long a crashed proposer can hold an escrow.
const DefaultTTL = 2 * time.Minute
