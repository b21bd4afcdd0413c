package ratelimit

import (
	"sync"
	"time"
)

// Store tracks fixed-window counters. Implementations must be safe for
// concurrent use; a distributed deployment substitutes one backed by an
// atomic-increment KV store without touching the governor logic.
type Store interface {
	Get(key string) (count int, resetTime time.Time, exists bool)
	Set(key string, count int, resetTime time.Time)

	// IncrementIfBelow admits one request atomically: the count grows only
	// while it is below limit, under a single lock, so concurrent requests
	// can never push a window past its limit. resetTime seeds a new window;
	// an existing window keeps its own reset.
	IncrementIfBelow(key string, limit int, resetTime time.Time) (count int, resetAt time.Time, allowed bool)

	Reset(key string)
}

type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]*entry
}

type entry struct {
	count     int
	resetTime time.Time
}

func NewMemoryStore() *MemoryStore {
	store := &MemoryStore{
		data: make(map[string]*entry),
	}

	go store.cleanup()

	return store
}

func (s *MemoryStore) Get(key string) (count int, resetTime time.Time, exists bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if e, exists := s.data[key]; exists && time.Now().Before(e.resetTime) {
		return e.count, e.resetTime, true
	}

	return 0, time.Time{}, false
}

func (s *MemoryStore) Set(key string, count int, resetTime time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[key] = &entry{
		count:     count,
		resetTime: resetTime,
	}
}

func (s *MemoryStore) IncrementIfBelow(key string, limit int, resetTime time.Time) (int, time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, exists := s.data[key]; exists && time.Now().Before(e.resetTime) {
		if e.count >= limit {
			return e.count, e.resetTime, false
		}
		e.count++
		return e.count, e.resetTime, true
	}

	if limit < 1 {
		return 0, resetTime, false
	}

	s.data[key] = &entry{
		count:     1,
		resetTime: resetTime,
	}

	return 1, resetTime, true
}

func (s *MemoryStore) Reset(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data, key)
}

func (s *MemoryStore) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		s.mu.Lock()
		now := time.Now()

		for key, entry := range s.data {
			if now.After(entry.resetTime) {
				delete(s.data, key)
			}
		}

		s.mu.Unlock()
	}
}
