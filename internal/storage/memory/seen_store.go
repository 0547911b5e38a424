// Package memory provides an in-process SeenStore for development and tests.
package memory

import (
	"context"
	"sync"
)

// SeenStore keeps seen link sets in a map. It survives tracker rebuilds within one
// process, which is enough to exercise restart priming in tests.
type SeenStore struct {
	mu   sync.RWMutex
	sets map[string][]string
}

// NewSeenStore constructs an empty SeenStore.
func NewSeenStore() *SeenStore {
	return &SeenStore{sets: make(map[string][]string)}
}

// Load returns the stored links for source.
func (s *SeenStore) Load(_ context.Context, source string) ([]string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	links, ok := s.sets[source]
	if !ok {
		return nil, false, nil
	}
	return append([]string(nil), links...), true, nil
}

// Replace overwrites the stored links for source.
func (s *SeenStore) Replace(_ context.Context, source string, links []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sets[source] = append([]string(nil), links...)
	return nil
}

// Delete drops the stored links for source.
func (s *SeenStore) Delete(_ context.Context, source string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sets, source)
	return nil
}
