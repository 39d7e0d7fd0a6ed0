package cache

import (
	"context"
	"sync"
	"time"

	"voice-gateway/internal/domain"
)

// Memory is an in-process Store. Expired entries are dropped on read.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]domain.CacheEntry
	now     func() time.Time
}

// NewMemory creates an empty in-process store.
func NewMemory() *Memory {
	return &Memory{
		entries: make(map[string]domain.CacheEntry),
		now:     time.Now,
	}
}

func (m *Memory) Get(_ context.Context, key string) (domain.CacheEntry, bool, error) {
	m.mu.RLock()
	entry, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return domain.CacheEntry{}, false, nil
	}
	if entry.Expired(m.now()) {
		m.mu.Lock()
		// Re-check: a concurrent Set may have replaced the entry.
		if cur, ok := m.entries[key]; ok && cur.Expired(m.now()) {
			delete(m.entries, key)
		}
		m.mu.Unlock()
		return domain.CacheEntry{}, false, nil
	}
	return entry, true, nil
}

func (m *Memory) Set(_ context.Context, key string, entry domain.CacheEntry, ttl time.Duration) error {
	if ttl > 0 {
		entry.ExpiresAt = m.now().Add(ttl)
	}
	m.mu.Lock()
	m.entries[key] = entry
	m.mu.Unlock()
	return nil
}

// Len returns the number of stored entries, expired ones included.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func (m *Memory) Close() error { return nil }
