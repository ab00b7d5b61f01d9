package store

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps snapshots in a map.
type MemoryStore struct {
	mu        sync.RWMutex
	snapshots map[string]*Snapshot
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{snapshots: make(map[string]*Snapshot)}
}

func (m *MemoryStore) Put(ctx context.Context, s *Snapshot) error {
	if s.ID == "" {
		return ErrInvalidID
	}
	c := *s
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[s.ID] = &c
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.snapshots[id]
	if !ok || s.IsExpired() {
		return nil, ErrNotFound
	}
	c := *s
	return &c, nil
}

func (m *MemoryStore) List(ctx context.Context, opts ListOptions) ([]*Snapshot, error) {
	m.mu.RLock()
	all := make([]*Snapshot, 0, len(m.snapshots))
	for _, s := range m.snapshots {
		if !s.IsExpired() {
			all = append(all, withoutData(s))
		}
	}
	m.mu.RUnlock()
	return page(all, opts), nil
}

func (m *MemoryStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.snapshots[id]; !ok {
		return ErrNotFound
	}
	delete(m.snapshots, id)
	return nil
}

// Cleanup removes expired snapshots.
func (m *MemoryStore) Cleanup(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	for id, s := range m.snapshots {
		if s.ExpiresAt != nil && now.After(*s.ExpiresAt) {
			delete(m.snapshots, id)
		}
	}
	return nil
}

func (m *MemoryStore) Close() error { return nil }

var _ Store = (*MemoryStore)(nil)
