package ratelimit

import (
	"sync"
	"time"
)

// Entry is the per-client limiter state.
type Entry struct {
	Count       int
	WindowStart time.Time
	BanUntil    time.Time
}

// Store keeps entries by client key. The Limiter serialises its own
// read-modify-write cycles, so a Store only needs per-call safety.
type Store interface {
	Get(key string) (Entry, bool)
	Put(key string, e Entry)
	Delete(key string)
	Range(fn func(key string, e Entry) bool)
	Len() int
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]Entry)}
}

func (s *MemoryStore) Get(key string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[key]
	return e, ok
}

func (s *MemoryStore) Put(key string, e Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = e
}

func (s *MemoryStore) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
}

// Range iterates over a snapshot so fn may call back into the store.
func (s *MemoryStore) Range(fn func(key string, e Entry) bool) {
	s.mu.RLock()
	snapshot := make(map[string]Entry, len(s.entries))
	for k, v := range s.entries {
		snapshot[k] = v
	}
	s.mu.RUnlock()

	for k, v := range snapshot {
		if !fn(k, v) {
			return
		}
	}
}

func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
