package generation

import (
	"context"
	"sync"
)

// MemoryStore keeps generation records in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Generation
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Generation)}
}

func (s *MemoryStore) Create(_ context.Context, gen Generation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[gen.MessageID]; ok {
		return ErrGenerationExists
	}
	s.records[gen.MessageID] = gen
	return nil
}

func (s *MemoryStore) Get(_ context.Context, messageID string) (Generation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	gen, ok := s.records[messageID]
	if !ok {
		return Generation{}, ErrNotFound
	}
	return gen, nil
}

func (s *MemoryStore) SetCancelled(_ context.Context, messageID string) error {
	s.update(messageID, func(g *Generation) { g.Cancelled = true })
	return nil
}

func (s *MemoryStore) SetSearching(_ context.Context, messageID string, searching bool) error {
	s.update(messageID, func(g *Generation) { g.Searching = searching })
	return nil
}

func (s *MemoryStore) SetError(_ context.Context, messageID, errName string) error {
	s.update(messageID, func(g *Generation) { g.Error = errName })
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, messageID)
	return nil
}

func (s *MemoryStore) update(messageID string, fn func(*Generation)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	gen, ok := s.records[messageID]
	if !ok {
		return
	}
	fn(&gen)
	s.records[messageID] = gen
}
