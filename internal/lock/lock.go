// Package lock serializes enrichment runs per product so that an interactive
// refresh and a batch backfill never reconcile the same record at once.
package lock

import (
	"context"
	"errors"
	"sync"
)

// ErrLocked is returned when another run already holds the key.
var ErrLocked = errors.New("lock: key is held")

// Locker hands out non-blocking exclusive locks keyed by product id.
type Locker interface {
	// Acquire returns a release func, or ErrLocked if the key is taken.
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// LocalLocker is an in-process Locker for single-instance deployments.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]struct{})}
}

func (l *LocalLocker) Acquire(ctx context.Context, key string) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[key]; ok {
		return nil, ErrLocked
	}
	l.held[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
		})
	}, nil
}
