package secretstore

import (
	"context"
	"sync"
)

// MemoryStore is a process-local Store.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: make(map[string][]byte),
	}
}

func (s *MemoryStore) Save(_ context.Context, service, account string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key(service, account)] = append([]byte(nil), data...)
	return nil
}

func (s *MemoryStore) Read(_ context.Context, service, account string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, exists := s.data[key(service, account)]
	if !exists {
		return nil, ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

func (s *MemoryStore) Delete(_ context.Context, service, account string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key(service, account))
	return nil
}
