package locker

import (
	"context"
	"errors"
	"time"
)

// ErrNotAcquired is returned when the lock is held elsewhere and the
// acquisition window ran out.
var ErrNotAcquired = errors.New("lock not acquired")

// Locker provides mutual exclusion on a string key across service instances.
type Locker interface {
	// Acquire blocks until the key lock is obtained, the wait budget is
	// spent, or ctx is cancelled. The returned release func is safe to call
	// exactly once.
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(ctx context.Context), err error)
}
