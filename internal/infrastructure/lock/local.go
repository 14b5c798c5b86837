// Package lock provides the non-blocking guards that keep two closes of the
// same count session from running at once.
package lock

import (
	"context"
	"sync"

	"storecount/internal/domain/counting"
)

var _ counting.Locker = (*Local)(nil)

// Local is an in-process Locker for single-instance deployments.
type Local struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewLocal creates an in-process locker.
func NewLocal() *Local {
	return &Local{held: make(map[string]struct{})}
}

// TryLock implements counting.Locker.
func (l *Local) TryLock(_ context.Context, key string) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, busy := l.held[key]; busy {
		return nil, false, nil
	}
	l.held[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
		})
	}, true, nil
}
