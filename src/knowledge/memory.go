package knowledge

import (
	"context"
	"sort"
	"sync"

	"nightwatch-agent/src/contracts"
)

// MemoryStore is an in-memory Store, used in tests and dry runs.
type MemoryStore struct {
	mu      sync.RWMutex
	results map[string][]contracts.PriorResult // fingerprint -> prior analyses
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{results: make(map[string][]contracts.PriorResult)}
}

// Search returns prior analyses for the item's fingerprint, highest
// confidence first, most recent breaking ties.
func (s *MemoryStore) Search(ctx context.Context, item contracts.ErrorReport) ([]contracts.PriorResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored := s.results[item.Fingerprint]
	out := make([]contracts.PriorResult, len(stored))
	copy(out, stored)

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Confidence.Rank() != out[j].Confidence.Rank() {
			return out[i].Confidence.Rank() > out[j].Confidence.Rank()
		}
		return out[i].AnalyzedAt.After(out[j].AnalyzedAt)
	})
	if len(out) > MaxSearchResults {
		out = out[:MaxSearchResults]
	}
	return out, nil
}

// Write records one prior analysis.
func (s *MemoryStore) Write(ctx context.Context, result contracts.PriorResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[result.Fingerprint] = append(s.results[result.Fingerprint], result)
	return nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error {
	return nil
}
