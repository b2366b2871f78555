package dedup

import (
	"context"
	"sync"
	"time"
)

// MemoryLocker is a single-process locker for sqlite mode and local
// development, where no Redis is available. Expired keys are reaped
// lazily on the next Acquire.
type MemoryLocker struct {
	mu    sync.Mutex
	held  map[string]time.Time
	now   func() time.Time
	sweep time.Time
}

// NewMemoryLocker creates an in-memory locker.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{held: make(map[string]time.Time), now: time.Now}
}

// Acquire claims the key for ttl. Returns false while a live claim exists.
func (l *MemoryLocker) Acquire(_ context.Context, key string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.After(l.sweep) {
		for k, exp := range l.held {
			if now.After(exp) {
				delete(l.held, k)
			}
		}
		l.sweep = now.Add(time.Minute)
	}

	if exp, ok := l.held[key]; ok && now.Before(exp) {
		return false, nil
	}
	l.held[key] = now.Add(ttl)
	return true, nil
}
