// Package memory keeps widget documents in process memory. The server falls
// back to it when DATABASE_URL is unset.
package memory

import (
	"context"
	"maps"
	"sync"
)

// Store implements docstore.Store on nested maps.
type Store struct {
	mu   sync.RWMutex
	docs map[string]map[string]map[string]any // uid -> widget -> config
}

// New creates an empty store.
func New() *Store {
	return &Store{docs: make(map[string]map[string]map[string]any)}
}

func (s *Store) Widget(_ context.Context, uid, widgetID string) (map[string]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]any)
	maps.Copy(out, s.docs[uid][widgetID])
	return out, nil
}

func (s *Store) MergeWidget(_ context.Context, uid, widgetID string, partial map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	widgets, ok := s.docs[uid]
	if !ok {
		widgets = make(map[string]map[string]any)
		s.docs[uid] = widgets
	}
	cfg, ok := widgets[widgetID]
	if !ok {
		cfg = make(map[string]any)
		widgets[widgetID] = cfg
	}
	maps.Copy(cfg, partial)
	return nil
}

func (s *Store) Close() error { return nil }
