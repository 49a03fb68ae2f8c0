// Package syncutil provides keyed synchronization primitives.
package syncutil

import (
	"context"
	"sync"
)

// KeyMutex provides one channel-based mutex per key. Locks for distinct
// keys never contend; waiters park on the key's channel instead of
// polling, and the channel handoff orders a release before the next
// acquisition. Entries are reference counted and removed once the last
// holder or waiter is gone, so the map does not grow with key churn.
type KeyMutex struct {
	mu      sync.Mutex
	entries map[string]*keyLock
}

type keyLock struct {
	ch   chan struct{}
	refs int
}

// NewKeyMutex creates an empty keyed mutex.
func NewKeyMutex() *KeyMutex {
	return &KeyMutex{entries: make(map[string]*keyLock)}
}

// Lock acquires the mutex for key, respecting context cancellation while
// waiting. On success it returns an idempotent unlock function which the
// caller must invoke on every exit path. On cancellation it returns the
// context error and leaves the lock state untouched.
func (m *KeyMutex) Lock(ctx context.Context, key string) (func(), error) {
	m.mu.Lock()
	e, ok := m.entries[key]
	if !ok {
		e = &keyLock{ch: make(chan struct{}, 1)}
		e.ch <- struct{}{} // start unlocked
		m.entries[key] = e
	}
	e.refs++
	m.mu.Unlock()

	select {
	case <-e.ch:
		var once sync.Once
		unlock := func() {
			once.Do(func() {
				e.ch <- struct{}{}
				m.unref(key, e)
			})
		}
		return unlock, nil
	case <-ctx.Done():
		m.unref(key, e)
		return nil, ctx.Err()
	}
}

func (m *KeyMutex) unref(key string, e *keyLock) {
	m.mu.Lock()
	e.refs--
	if e.refs == 0 {
		delete(m.entries, key)
	}
	m.mu.Unlock()
}
