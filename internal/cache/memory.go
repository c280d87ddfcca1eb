package cache

import (
	"context"
	"strconv"
	"sync"
	"time"
)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

type memoryStore struct {
	mu     sync.RWMutex
	items  map[string]memoryEntry
	hashes map[string]map[string]int64
}

// NewMemoryStore returns a process-local Store with TTL semantics.
func NewMemoryStore() Store {
	return &memoryStore{
		items:  make(map[string]memoryEntry),
		hashes: make(map[string]map[string]int64),
	}
}

func (s *memoryStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	entry, ok := s.items[key]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrMiss
	}
	if !entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt) {
		s.mu.Lock()
		delete(s.items, key)
		s.mu.Unlock()
		return nil, ErrMiss
	}
	value := append([]byte(nil), entry.value...)
	return value, nil
}

func (s *memoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	entry := memoryEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		entry.expiresAt = time.Now().Add(ttl)
	}
	s.mu.Lock()
	s.items[key] = entry
	s.mu.Unlock()
	return nil
}

func (s *memoryStore) Delete(_ context.Context, keys ...string) error {
	s.mu.Lock()
	for _, key := range keys {
		delete(s.items, key)
	}
	s.mu.Unlock()
	return nil
}

func (s *memoryStore) HIncrBy(_ context.Context, key, field string, incr int64) error {
	s.mu.Lock()
	hash, ok := s.hashes[key]
	if !ok {
		hash = make(map[string]int64)
		s.hashes[key] = hash
	}
	hash[field] += incr
	s.mu.Unlock()
	return nil
}

func (s *memoryStore) HGetAll(_ context.Context, key string) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.hashes[key]))
	for field, count := range s.hashes[key] {
		out[field] = strconv.FormatInt(count, 10)
	}
	return out, nil
}
