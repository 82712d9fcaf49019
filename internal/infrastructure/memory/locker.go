// Package memory provides single-process implementations of the storage and
// coordination ports. They back the scripted demo binary and the end-to-end
// tests; production deployments use the postgres implementations, which are
// safe across instances.
package memory

import (
	"context"
	"sync"
	"time"
)

// Locker is an in-process lock.Locker with the same semantics as the
// postgres implementation: atomic set-if-absent-with-expiry, token-checked
// release.
type Locker struct {
	mu      sync.Mutex
	entries map[string]lockEntry
}

type lockEntry struct {
	holder    string
	expiresAt time.Time
}

func NewLocker() *Locker {
	return &Locker{entries: make(map[string]lockEntry)}
}

func (l *Locker) TryAcquire(_ context.Context, key, holderToken string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now()
	if e, ok := l.entries[key]; ok && e.expiresAt.After(now) && e.holder != holderToken {
		return false, nil
	}
	l.entries[key] = lockEntry{holder: holderToken, expiresAt: now.Add(ttl)}
	return true, nil
}

func (l *Locker) Release(_ context.Context, key, holderToken string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if e, ok := l.entries[key]; ok && e.holder == holderToken {
		delete(l.entries, key)
	}
	return nil
}

func (l *Locker) DeleteExpired(_ context.Context, now time.Time, limit int) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if limit <= 0 {
		limit = 100
	}
	n := 0
	for key, e := range l.entries {
		if n >= limit {
			break
		}
		if !e.expiresAt.After(now) {
			delete(l.entries, key)
			n++
		}
	}
	return n, nil
}
