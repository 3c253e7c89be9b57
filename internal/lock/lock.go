// Package lock provides run-level mutual exclusion for sync runs.
package lock

import (
	"context"
	"errors"
)

// ErrHeld is returned when another run holds the lock.
var ErrHeld = errors.New("lock held by another run")

// ReleaseFunc releases an acquired lock.
type ReleaseFunc func(ctx context.Context) error

// Locker acquires a named lock.
type Locker interface {
	Acquire(ctx context.Context, name string) (ReleaseFunc, error)
}

// Noop never blocks. Runs are not mutually excluded.
type Noop struct{}

// Acquire always succeeds.
func (Noop) Acquire(context.Context, string) (ReleaseFunc, error) {
	return func(context.Context) error { return nil }, nil
}
