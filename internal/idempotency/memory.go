package idempotency

import (
	"context"
	"sync"
	"time"

	"OrderPipeline/internal/domain/models/transport"
)

type memoryEntry struct {
	resp      transport.OrderResponse
	expiresAt time.Time
}

// MemoryStore is an in-process idempotency store with the same contract as
// RedisStore. Used in tests and single-node deployments.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemory() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (s *MemoryStore) Get(_ context.Context, key string) (transport.OrderResponse, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return transport.OrderResponse{}, false, nil
	}
	if s.now().After(e.expiresAt) {
		delete(s.entries, key)
		return transport.OrderResponse{}, false, nil
	}
	return e.resp, true, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, resp transport.OrderResponse, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = memoryEntry{resp: resp, expiresAt: s.now().Add(ttl)}
	return nil
}
