package offset

import (
	"context"
	"sync"
)

// Store persists offsets between capture runs. Load returns nil when no
// offset has been stored for the server yet.
type Store interface {
	Load(ctx context.Context, serverName string) (*Context, error)
	Save(ctx context.Context, offset *Context) error
	Close(ctx context.Context) error
}

// MemoryStore keeps offsets in process memory. Useful for tests and for
// embedders that manage durability themselves.
type MemoryStore struct {
	// Synchronization (always last)
	mu      sync.RWMutex
	offsets map[string]*Context
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		offsets: make(map[string]*Context),
	}
}

func (s *MemoryStore) Load(_ context.Context, serverName string) (*Context, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored, ok := s.offsets[serverName]
	if !ok {
		return nil, nil
	}

	return stored.Copy(), nil
}

func (s *MemoryStore) Save(_ context.Context, offset *Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.offsets[offset.ServerName()] = offset.Copy()
	return nil
}

func (s *MemoryStore) Close(context.Context) error {
	return nil
}
