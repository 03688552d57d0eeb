package shared

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// KeyedLimiter hands out exclusive critical sections per key with a
// bounded wait. Two callers with different keys never contend; callers
// with the same key queue until the holder releases or their context
// expires.
type KeyedLimiter struct {
	mu      sync.Mutex
	entries map[string]*limiterEntry
}

type limiterEntry struct {
	sem  *semaphore.Weighted
	refs int
}

// NewKeyedLimiter constructs the limiter.
func NewKeyedLimiter() *KeyedLimiter {
	return &KeyedLimiter{entries: make(map[string]*limiterEntry)}
}

// Acquire blocks until the key's section is free or ctx is done. The
// returned release function must be called exactly once.
func (l *KeyedLimiter) Acquire(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	entry, ok := l.entries[key]
	if !ok {
		entry = &limiterEntry{sem: semaphore.NewWeighted(1)}
		l.entries[key] = entry
	}
	entry.refs++
	l.mu.Unlock()

	if err := entry.sem.Acquire(ctx, 1); err != nil {
		l.drop(key, entry)
		return nil, err
	}

	var once sync.Once
	release := func() {
		once.Do(func() {
			entry.sem.Release(1)
			l.drop(key, entry)
		})
	}
	return release, nil
}

// drop decrements the refcount and frees the entry once idle.
func (l *KeyedLimiter) drop(key string, entry *limiterEntry) {
	l.mu.Lock()
	entry.refs--
	if entry.refs <= 0 {
		delete(l.entries, key)
	}
	l.mu.Unlock()
}
