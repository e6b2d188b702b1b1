package lock

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is a process-local Store for deployments without Redis.
// Locks held here do not survive restarts and are invisible to other
// instances.
type MemoryStore struct {
	mu    sync.Mutex
	locks map[string]memoryEntry
}

type memoryEntry struct {
	lock    Lock
	expires time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{locks: map[string]memoryEntry{}}
}

func (m *MemoryStore) Get(ctx context.Context, documentID string) (*Lock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.locks[documentID]
	if !ok || time.Now().After(e.expires) {
		delete(m.locks, documentID)
		return nil, nil
	}
	l := e.lock
	return &l, nil
}

func (m *MemoryStore) Acquire(ctx context.Context, l *Lock, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.locks[l.DocumentID] = memoryEntry{lock: *l, expires: time.Now().Add(ttl)}
	return nil
}

func (m *MemoryStore) Refresh(ctx context.Context, documentID string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.locks[documentID]
	if !ok {
		return nil
	}
	e.expires = time.Now().Add(ttl)
	m.locks[documentID] = e
	return nil
}

func (m *MemoryStore) Release(ctx context.Context, documentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.locks, documentID)
	return nil
}
