package session

import (
	"context"
	"sync"
)

// MemoryStore keeps values for the lifetime of the process.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[Key]string
}

// NewMemoryStore returns an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[Key]string, 3)}
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, k Key) (string, error) {
	if err := checkKey(k); err != nil {
		return "", err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[k]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

// Set implements Store.
func (s *MemoryStore) Set(_ context.Context, k Key, value string) error {
	if err := checkKey(k); err != nil {
		return err
	}
	s.mu.Lock()
	s.values[k] = value
	s.mu.Unlock()
	return nil
}

// Clear implements Store.
func (s *MemoryStore) Clear(_ context.Context, k Key) error {
	if err := checkKey(k); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.values, k)
	s.mu.Unlock()
	return nil
}
