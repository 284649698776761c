package credstore

import (
	"context"
	"sync"
)

// MemoryStore is an in-process credential store used in tests and
// single-process deployments.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string][]byte)}
}

// Add persists a blob under the identifier.
func (s *MemoryStore) Add(ctx context.Context, id string, blob []byte) Status {
	if id == "" {
		return StatusParamError
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.blobs[id]; exists {
		return StatusDuplicate
	}
	s.blobs[id] = append([]byte(nil), blob...)
	return StatusSuccess
}

// Put persists a blob under the identifier, replacing any existing blob.
func (s *MemoryStore) Put(ctx context.Context, id string, blob []byte) Status {
	if id == "" {
		return StatusParamError
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[id] = append([]byte(nil), blob...)
	return StatusSuccess
}

// Get retrieves the blob stored under the identifier.
func (s *MemoryStore) Get(ctx context.Context, id string) ([]byte, Status) {
	if id == "" {
		return nil, StatusParamError
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	blob, exists := s.blobs[id]
	if !exists {
		return nil, StatusNotFound
	}
	return append([]byte(nil), blob...), StatusSuccess
}

// Delete removes the blob stored under the identifier.
func (s *MemoryStore) Delete(ctx context.Context, id string) Status {
	if id == "" {
		return StatusParamError
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.blobs[id]; !exists {
		return StatusNotFound
	}
	delete(s.blobs, id)
	return StatusSuccess
}

// DeleteAll removes every record.
func (s *MemoryStore) DeleteAll(ctx context.Context) Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs = make(map[string][]byte)
	return StatusSuccess
}

var _ Store = (*MemoryStore)(nil)
