package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// Cache stores JSON-encoded values. A miss is (false, nil).
type Cache interface {
	GetJSON(ctx context.Context, key string, out any) (bool, error)
	SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error
}

type memoryEntry struct {
	raw     []byte
	expires time.Time
}

// Memory is an in-process Cache used when Redis is not configured.
type Memory struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	max     int
	now     func() time.Time
}

func NewMemory(maxEntries int) *Memory {
	if maxEntries <= 0 {
		maxEntries = 1024
	}
	return &Memory{entries: make(map[string]memoryEntry), max: maxEntries, now: time.Now}
}

func (m *Memory) GetJSON(ctx context.Context, key string, out any) (bool, error) {
	m.mu.Lock()
	e, ok := m.entries[key]
	if ok && !e.expires.IsZero() && m.now().After(e.expires) {
		delete(m.entries, key)
		ok = false
	}
	m.mu.Unlock()
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(e.raw, out); err != nil {
		return false, err
	}
	return true, nil
}

func (m *Memory) SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.entries[key]; !exists && len(m.entries) >= m.max {
		m.evictLocked()
	}
	var expires time.Time
	if ttl > 0 {
		expires = m.now().Add(ttl)
	}
	m.entries[key] = memoryEntry{raw: raw, expires: expires}
	return nil
}

// evictLocked drops expired entries, or an arbitrary one when none expired.
func (m *Memory) evictLocked() {
	now := m.now()
	evicted := false
	for k, e := range m.entries {
		if !e.expires.IsZero() && now.After(e.expires) {
			delete(m.entries, k)
			evicted = true
		}
	}
	if evicted {
		return
	}
	for k := range m.entries {
		delete(m.entries, k)
		return
	}
}

// Nop never stores anything.
type Nop struct{}

func (Nop) GetJSON(ctx context.Context, key string, out any) (bool, error) { return false, nil }
func (Nop) SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	return nil
}
