// Package coordination provides the cross-replica primitives of the engine:
// a leader lock for the expiration sweeper, idempotency keys for Reserve and
// cancellation flags for bulk jobs. None of them guard ledger state, which
// is protected by the store alone.
package coordination

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Lock is a held lease.
type Lock interface {
	Release(ctx context.Context) error
}

type Locker interface {
	// TryLock returns (nil, false, nil) when another holder owns name.
	TryLock(ctx context.Context, name string, ttl time.Duration) (Lock, bool, error)
}

type IdempotencyStore interface {
	// Claim stores value under key unless the key exists. It returns the
	// value now stored and whether this call stored it.
	Claim(ctx context.Context, key, value string, ttl time.Duration) (string, bool, error)
	// Forget deletes key only while it still holds value.
	Forget(ctx context.Context, key, value string) error
}

type CancelRegistry interface {
	RequestCancel(ctx context.Context, jobID string) error
	IsCancelled(ctx context.Context, jobID string) (bool, error)
}

type entry struct {
	value     string
	expiresAt time.Time
}

func (e entry) live(now time.Time) bool {
	return e.expiresAt.IsZero() || now.Before(e.expiresAt)
}

// pruneInterval spaces the full scans for expired entries.
const pruneInterval = time.Minute

// Memory implements every primitive for a single process. Expired entries
// are dropped when they are next read and by a periodic scan.
type Memory struct {
	mu       sync.Mutex
	entries  map[string]entry
	now      func() time.Time
	prunedAt time.Time
}

func NewMemory() *Memory {
	return &Memory{entries: make(map[string]entry), now: time.Now}
}

type memoryLock struct {
	m     *Memory
	key   string
	token string
}

func (l *memoryLock) Release(context.Context) error {
	l.m.mu.Lock()
	defer l.m.mu.Unlock()
	if e, ok := l.m.entries[l.key]; ok && e.value == l.token {
		delete(l.m.entries, l.key)
	}
	return nil
}

func (m *Memory) TryLock(_ context.Context, name string, ttl time.Duration) (Lock, bool, error) {
	key := lockKeyPrefix + name
	token := uuid.New().String()
	if _, claimed := m.claim(key, token, ttl); !claimed {
		return nil, false, nil
	}
	return &memoryLock{m: m, key: key, token: token}, true, nil
}

func (m *Memory) Claim(_ context.Context, key, value string, ttl time.Duration) (string, bool, error) {
	stored, claimed := m.claim(idempotencyKeyPrefix+key, value, ttl)
	return stored, claimed, nil
}

func (m *Memory) Forget(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := idempotencyKeyPrefix + key
	if e, ok := m.lookup(k, m.now()); ok && e.value == value {
		delete(m.entries, k)
	}
	return nil
}

func (m *Memory) RequestCancel(_ context.Context, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	m.prune(now)
	m.entries[cancelKeyPrefix+jobID] = entry{value: "1", expiresAt: now.Add(cancelFlagTTL)}
	return nil
}

func (m *Memory) IsCancelled(_ context.Context, jobID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.lookup(cancelKeyPrefix+jobID, m.now())
	return ok, nil
}

// lookup returns the live entry under key and deletes it once expired.
// The caller holds mu.
func (m *Memory) lookup(key string, now time.Time) (entry, bool) {
	e, ok := m.entries[key]
	if !ok {
		return entry{}, false
	}
	if !e.live(now) {
		delete(m.entries, key)
		return entry{}, false
	}
	return e, true
}

// prune drops every expired entry at most once per pruneInterval.
// The caller holds mu.
func (m *Memory) prune(now time.Time) {
	if now.Sub(m.prunedAt) < pruneInterval {
		return
	}
	m.prunedAt = now
	for key, e := range m.entries {
		if !e.live(now) {
			delete(m.entries, key)
		}
	}
}

func (m *Memory) claim(key, value string, ttl time.Duration) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.prune(now)
	if e, ok := m.lookup(key, now); ok {
		return e.value, false
	}
	e := entry{value: value}
	if ttl > 0 {
		e.expiresAt = now.Add(ttl)
	}
	m.entries[key] = e
	return value, true
}

// NoopLocker always grants the lock. Used when a single replica runs.
type NoopLocker struct{}

type noopLock struct{}

func (noopLock) Release(context.Context) error { return nil }

func (NoopLocker) TryLock(context.Context, string, time.Duration) (Lock, bool, error) {
	return noopLock{}, true, nil
}
