// Package store persists family registrations. RegisterFamily is the one
// operation with a transactional boundary in the system; both
// implementations key it by session id so a retried commit after a transient
// failure returns the already-created parent instead of duplicating records.
package store

import (
	"context"
	"sync"

	"crecheflow/internal/family/models"
	"crecheflow/pkg/domain"
	"crecheflow/pkg/platform/sentinel"
)

// InMemory is a mutex-guarded family store.
type InMemory struct {
	mu        sync.RWMutex
	parents   map[domain.ParentID]*models.Parent
	children  map[domain.ChildID]*models.Child
	bySession map[domain.SessionID]domain.ParentID
}

// NewInMemory creates an empty in-memory family store.
func NewInMemory() *InMemory {
	return &InMemory{
		parents:   make(map[domain.ParentID]*models.Parent),
		children:  make(map[domain.ChildID]*models.Child),
		bySession: make(map[domain.SessionID]domain.ParentID),
	}
}

// RegisterFamily creates the parent and child records as one unit. A repeat
// call for the same session id is a no-op returning the existing parent id.
func (s *InMemory) RegisterFamily(_ context.Context, reg *models.Registration) (domain.ParentID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, done := s.bySession[reg.SessionID]; done {
		return existing, nil
	}

	parent := reg.Parent
	s.parents[parent.ID] = &parent
	for _, child := range reg.Children {
		clone := child
		s.children[clone.ID] = &clone
	}
	s.bySession[reg.SessionID] = parent.ID
	return parent.ID, nil
}

// FindParent returns a parent record or sentinel.ErrNotFound.
func (s *InMemory) FindParent(_ context.Context, parentID domain.ParentID) (*models.Parent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	parent, exists := s.parents[parentID]
	if !exists {
		return nil, sentinel.ErrNotFound
	}
	clone := *parent
	return &clone, nil
}

// ListChildrenByParent returns all children registered under a parent.
func (s *InMemory) ListChildrenByParent(_ context.Context, parentID domain.ParentID) ([]*models.Child, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Child
	for _, child := range s.children {
		if child.ParentID == parentID {
			clone := *child
			out = append(out, &clone)
		}
	}
	return out, nil
}
