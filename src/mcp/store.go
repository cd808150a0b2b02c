package mcp

import (
	"sync"

	"nightwatch-agent/src/contracts"
)

// ResultStore holds finished reports for drill-down. analyze_errors returns
// a lightweight manifest; get_item_analysis reads the full item back from
// the store.
type ResultStore interface {
	// Store saves a finished report under its run id.
	Store(report *contracts.AnalysisReport)
	// Get retrieves a full report.
	Get(runID string) (*contracts.AnalysisReport, bool)
	// GetItem retrieves one item's report by item id.
	GetItem(runID, itemID string) (contracts.ItemReport, bool)
}

// InMemoryStore is a thread-safe in-memory ResultStore.
type InMemoryStore struct {
	mu      sync.RWMutex
	reports map[string]*contracts.AnalysisReport
	items   map[string]map[string]contracts.ItemReport // run id -> item id
}

// NewInMemoryStore creates an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		reports: make(map[string]*contracts.AnalysisReport),
		items:   make(map[string]map[string]contracts.ItemReport),
	}
}

// Store saves the report and indexes its items for drill-down.
func (s *InMemoryStore) Store(report *contracts.AnalysisReport) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.reports[report.RunID] = report

	index := make(map[string]contracts.ItemReport, len(report.Items))
	for _, item := range report.Items {
		index[item.Item.ID] = item
	}
	s.items[report.RunID] = index
}

// Get retrieves a full report by run id.
func (s *InMemoryStore) Get(runID string) (*contracts.AnalysisReport, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.reports[runID]
	return r, ok
}

// GetItem retrieves one item's report.
func (s *InMemoryStore) GetItem(runID, itemID string) (contracts.ItemReport, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if index, ok := s.items[runID]; ok {
		item, found := index[itemID]
		return item, found
	}
	return contracts.ItemReport{}, false
}
