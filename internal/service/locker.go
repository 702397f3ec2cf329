package service

import (
	"context"
	"sync"
)

// stackLocker serializes operations per stack name. Waiters give up when
// their context ends.
type stackLocker struct {
	mu    sync.Mutex
	locks map[string]*stackLock
}

type stackLock struct {
	sem  chan struct{}
	refs int
}

func newStackLocker() *stackLocker {
	return &stackLocker{locks: make(map[string]*stackLock)}
}

// Lock blocks until the stack is free or ctx is done. The returned function
// releases the lock and must be called exactly once.
func (l *stackLocker) Lock(ctx context.Context, stackName string) (func(), error) {
	l.mu.Lock()
	lk, ok := l.locks[stackName]
	if !ok {
		lk = &stackLock{sem: make(chan struct{}, 1)}
		l.locks[stackName] = lk
	}
	lk.refs++
	l.mu.Unlock()

	select {
	case lk.sem <- struct{}{}:
		return func() {
			<-lk.sem
			l.release(stackName, lk)
		}, nil
	case <-ctx.Done():
		l.release(stackName, lk)
		return nil, ctx.Err()
	}
}

func (l *stackLocker) release(stackName string, lk *stackLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	lk.refs--
	if lk.refs == 0 {
		delete(l.locks, stackName)
	}
}
