package dedup

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// MemoryClient is a bounded, TTL-bound set of claimed identities kept in
// claim order, so with a fixed TTL the tail always expires first. It is safe
// for concurrent use but only dedups within one process.
type MemoryClient struct {
	mu    sync.Mutex
	cap   int
	ll    *list.List               // newest claim at front
	items map[string]*list.Element // id -> element
}

type memEntry struct {
	id  string
	exp time.Time
}

// NewMemoryClient returns a MemoryClient holding at most maxKeys identities.
func NewMemoryClient(maxKeys int) *MemoryClient {
	if maxKeys <= 0 {
		maxKeys = 100000
	}
	return &MemoryClient{cap: maxKeys, ll: list.New(), items: make(map[string]*list.Element)}
}

func (m *MemoryClient) Exists(_ context.Context, id string, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	el, ok := m.items[id]
	if !ok {
		return false, nil
	}
	if now.Before(el.Value.(memEntry).exp) {
		return true, nil
	}
	m.ll.Remove(el)
	delete(m.items, id)
	return false, nil
}

func (m *MemoryClient) Claim(_ context.Context, id string, expiresAt, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if el, ok := m.items[id]; ok {
		if now.Before(el.Value.(memEntry).exp) {
			return ErrAlreadyClaimed
		}
		el.Value = memEntry{id: id, exp: expiresAt}
		m.ll.MoveToFront(el)
		return nil
	}
	m.items[id] = m.ll.PushFront(memEntry{id: id, exp: expiresAt})
	for m.ll.Len() > m.cap {
		m.evict(m.ll.Back())
	}
	// drop expired entries from the tail
	for t := m.ll.Back(); t != nil && !now.Before(t.Value.(memEntry).exp); t = m.ll.Back() {
		m.evict(t)
	}
	return nil
}

func (m *MemoryClient) evict(el *list.Element) {
	m.ll.Remove(el)
	delete(m.items, el.Value.(memEntry).id)
}

// Len returns the number of tracked identities, live or not yet evicted.
func (m *MemoryClient) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ll.Len()
}

func (m *MemoryClient) Close() error { return nil }
