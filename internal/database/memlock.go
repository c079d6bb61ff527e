package database

import (
	"context"
	"sync"
)

// InMemoryLocker serializes per-key critical sections within a single
// process. It satisfies Locker for single-replica deployments where a
// Postgres row lock would be unnecessary overhead.
type InMemoryLocker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewInMemoryLocker() *InMemoryLocker {
	return &InMemoryLocker{locks: make(map[string]*sync.Mutex)}
}

func (l *InMemoryLocker) lockFor(key string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.locks[key]
	if !ok {
		m = &sync.Mutex{}
		l.locks[key] = m
	}
	return m
}

func (l *InMemoryLocker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	m := l.lockFor(key)
	m.Lock()
	defer m.Unlock()
	return fn(ctx)
}
