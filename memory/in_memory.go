// Package memory provides core.MemoryStore implementations for
// conversational memory snippets.
package memory

import (
	"fmt"
	"strings"
	"sync"

	"github.com/hupe1980/agentrun/core"
)

// StoredMemory is the internal representation persisted by InMemoryStore.
// It mirrors the core.SearchResult shape without a score field since scoring
// is trivial here.
type StoredMemory struct {
	ID       string
	Content  string
	Metadata map[string]any
}

// InMemoryStore is a naive process-local MemoryStore: append-only stored
// memories with substring Search. The linear scan assigns a constant score
// of 1.0 to every hit. Suitable only for tests and demos; swap for a vector
// DB or semantic index for production retrieval.
type InMemoryStore struct {
	mu      sync.RWMutex
	storage map[string]map[string]StoredMemory // sessionID -> memoryID -> stored memory
}

// NewInMemoryStore creates a new in-memory memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{storage: make(map[string]map[string]StoredMemory)}
}

// Store appends a new stored memory generating a simple incremental id.
func (m *InMemoryStore) Store(sessionID string, content string, metadata map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.storage[sessionID]; !exists {
		m.storage[sessionID] = make(map[string]StoredMemory)
	}
	memoryID := fmt.Sprintf("mem_%d", len(m.storage[sessionID]))
	m.storage[sessionID][memoryID] = StoredMemory{ID: memoryID, Content: content, Metadata: metadata}
	return nil
}

// Search performs a simple substring match over stored memories. Results are
// returned in unspecified order up to the provided limit.
func (m *InMemoryStore) Search(sessionID string, query string, limit int) ([]core.SearchResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sessionStorage, exists := m.storage[sessionID]
	if !exists {
		return []core.SearchResult{}, nil
	}

	results := make([]core.SearchResult, 0, limit)
	for _, stored := range sessionStorage {
		if limit > 0 && len(results) >= limit {
			break
		}
		if query == "" || strings.Contains(stored.Content, query) {
			md := make(map[string]any, len(stored.Metadata))
			for k, v := range stored.Metadata {
				md[k] = v
			}
			results = append(results, core.SearchResult{ID: stored.ID, Content: stored.Content, Score: 1.0, Metadata: md})
		}
	}
	return results, nil
}

// Delete removes a stored memory entry by id. Deleting an absent entry is a
// no-op.
func (m *InMemoryStore) Delete(sessionID string, memoryID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if sessionStorage, exists := m.storage[sessionID]; exists {
		delete(sessionStorage, memoryID)
	}
	return nil
}
