// internal/domain/locker.go
package domain

import (
	"context"
	"errors"
)

// ErrLockNotAcquired is returned when a lock is already held by another process.
var ErrLockNotAcquired = errors.New("lock not acquired")

// Lock represents an acquired distributed lock.
type Lock interface {
	// Unlock releases the lock.
	Unlock(ctx context.Context) error
}

// Locker guards work that must not run twice at once across dispatchers,
// such as writing a checkpoint.
type Locker interface {
	// Lock is non-blocking: if the lock is already held it returns
	// ErrLockNotAcquired.
	Lock(ctx context.Context, name string) (Lock, error)
}
