// Package artifact provides core.ArtifactStore implementations for
// versioned, session scoped binary artifacts.
package artifact

import (
	"fmt"
	"sync"
)

// InMemoryStore is an in-process ArtifactStore useful for tests, examples
// and single-process prototypes. Artifacts are versioned per name; Save
// appends a new version and Get returns the latest. Data is copied on save
// and retrieval to avoid accidental external mutation of internal buffers.
//
// This implementation does not enforce retention limits, size quotas, or
// eviction. For production, prefer a durable implementation that survives
// process restarts.
type InMemoryStore struct {
	mu        sync.RWMutex
	artifacts map[string]map[string][][]byte // scope key -> name -> versions
}

// NewInMemoryStore returns an empty in-memory artifact store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{artifacts: make(map[string]map[string][][]byte)}
}

func scopeKey(appName, userID, sessionID string) string {
	return fmt.Sprintf("%s/%s/%s", appName, userID, sessionID)
}

// Save appends a new version of the named artifact and returns its version
// number. Versions start at 0. The input slice is copied before storage.
func (a *InMemoryStore) Save(appName, userID, sessionID, name string, data []byte) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	key := scopeKey(appName, userID, sessionID)
	byName, ok := a.artifacts[key]
	if !ok {
		byName = make(map[string][][]byte)
		a.artifacts[key] = byName
	}

	cp := make([]byte, len(data))
	copy(cp, data)
	byName[name] = append(byName[name], cp)

	return len(byName[name]) - 1, nil
}

// Get returns a copy of the latest version of the named artifact or
// ErrNotFound.
func (a *InMemoryStore) Get(appName, userID, sessionID, name string) ([]byte, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	versions, ok := a.artifacts[scopeKey(appName, userID, sessionID)][name]
	if !ok || len(versions) == 0 {
		return nil, ErrNotFound
	}

	data := versions[len(versions)-1]
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp, nil
}

// List returns the artifact names stored for the session. The slice is a
// snapshot and safe for caller mutation.
func (a *InMemoryStore) List(appName, userID, sessionID string) ([]string, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	byName, ok := a.artifacts[scopeKey(appName, userID, sessionID)]
	if !ok {
		return []string{}, nil
	}
	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	return names, nil
}

// Delete removes all versions of the named artifact if present or returns
// ErrNotFound.
func (a *InMemoryStore) Delete(appName, userID, sessionID, name string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	byName, ok := a.artifacts[scopeKey(appName, userID, sessionID)]
	if !ok {
		return ErrNotFound
	}
	if _, ok := byName[name]; !ok {
		return ErrNotFound
	}
	delete(byName, name)
	return nil
}
