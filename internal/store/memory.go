package store

import (
	"context"
	"fmt"
	"sync"

	"wheel-tracker/internal/models"
)

// MemoryStore implements EventStore with an in-memory slice. Used for
// testing and throwaway sessions; nothing survives the process.
type MemoryStore struct {
	mu     sync.RWMutex
	events []models.TradeEvent
	ids    map[int64]bool
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{ids: make(map[int64]bool)}
}

func (s *MemoryStore) Save(_ context.Context, ev models.TradeEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ids[ev.ID] {
		return fmt.Errorf("trade event %d already stored", ev.ID)
	}
	s.ids[ev.ID] = true
	s.events = append(s.events, ev)
	return nil
}

func (s *MemoryStore) LoadAll(_ context.Context) ([]models.TradeEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.TradeEvent(nil), s.events...), nil
}

func (s *MemoryStore) Close() error {
	return nil
}
