package store

import (
	"context"
	"sort"
	"sync"

	"github.com/atmx/vault-engine/internal/model"
)

// MemoryStore implements Store with in-memory slices. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu       sync.RWMutex
	entries  []model.Entry
	stranded map[string]model.StrandedFunds
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		stranded: make(map[string]model.StrandedFunds),
	}
}

func (s *MemoryStore) InsertEntry(_ context.Context, entry *model.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Store a copy to avoid external mutation.
	e := *entry
	e.Receipts = append([]model.BlockIndex(nil), entry.Receipts...)
	s.entries = append(s.entries, e)
	return nil
}

func (s *MemoryStore) GetEntriesByAccount(_ context.Context, acct model.Account) ([]model.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Entry
	for _, e := range s.entries {
		if e.Account == acct {
			result = append(result, e)
		}
	}
	return result, nil
}

func (s *MemoryStore) ListRecentEntries(_ context.Context, limit int) ([]model.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 || limit > len(s.entries) {
		limit = len(s.entries)
	}
	result := make([]model.Entry, 0, limit)
	for i := len(s.entries) - 1; i >= 0 && len(result) < limit; i-- {
		result = append(result, s.entries[i])
	}
	return result, nil
}

func (s *MemoryStore) SaveStranded(_ context.Context, sf *model.StrandedFunds) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stranded[sf.ID] = *sf
	return nil
}

func (s *MemoryStore) ListStranded(_ context.Context) ([]model.StrandedFunds, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]model.StrandedFunds, 0, len(s.stranded))
	for _, sf := range s.stranded {
		result = append(result, sf)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}
