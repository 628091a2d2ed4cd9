// Package session persists onboarding sessions, keyed by (tenant, channel
// identity). Three implementations satisfy the one contract: in-memory for
// tests and single-node development, Redis for the per-turn hot path, and
// Postgres for durable deployments.
package session

import (
	"context"
	"sync"

	"crecheflow/internal/onboarding/models"
	"crecheflow/pkg/domain"
	"crecheflow/pkg/platform/sentinel"
)

type identity struct {
	tenantID  domain.TenantID
	channelID string
}

// InMemory is a mutex-guarded session store.
type InMemory struct {
	mu       sync.RWMutex
	sessions map[domain.SessionID]*models.Session
	active   map[identity]domain.SessionID
}

// NewInMemory creates an empty in-memory session store.
func NewInMemory() *InMemory {
	return &InMemory{
		sessions: make(map[domain.SessionID]*models.Session),
		active:   make(map[identity]domain.SessionID),
	}
}

// FindActiveByIdentity returns the IN_PROGRESS session for the identity, or
// sentinel.ErrNotFound. Terminal sessions never match.
func (s *InMemory) FindActiveByIdentity(_ context.Context, tenantID domain.TenantID, channelID string) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sessionID, exists := s.active[identity{tenantID, channelID}]
	if !exists {
		return nil, sentinel.ErrNotFound
	}
	return cloneSession(s.sessions[sessionID]), nil
}

// cloneSession copies the session including the children slice, so callers
// can mutate the result without aliasing stored state.
func cloneSession(sess *models.Session) *models.Session {
	clone := *sess
	if len(sess.Data.Children) > 0 {
		clone.Data.Children = make([]models.ChildDetails, len(sess.Data.Children))
		copy(clone.Data.Children, sess.Data.Children)
	}
	return &clone
}

// Create stores a new session and, while it is IN_PROGRESS, indexes it as the
// identity's active session.
func (s *InMemory) Create(_ context.Context, sess *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[sess.ID]; exists {
		return sentinel.ErrConflict
	}
	s.sessions[sess.ID] = cloneSession(sess)
	if sess.Status == models.SessionStatusInProgress {
		s.active[identity{sess.TenantID, sess.ChannelID}] = sess.ID
	}
	return nil
}

// Update overwrites a session; a transition to a terminal status drops the
// active index so the identity can start over.
func (s *InMemory) Update(_ context.Context, sess *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[sess.ID]; !exists {
		return sentinel.ErrNotFound
	}
	s.sessions[sess.ID] = cloneSession(sess)

	key := identity{sess.TenantID, sess.ChannelID}
	if sess.Status == models.SessionStatusInProgress {
		s.active[key] = sess.ID
	} else if s.active[key] == sess.ID {
		delete(s.active, key)
	}
	return nil
}

// FindByID returns a session regardless of status, or sentinel.ErrNotFound.
func (s *InMemory) FindByID(_ context.Context, sessionID domain.SessionID) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, exists := s.sessions[sessionID]
	if !exists {
		return nil, sentinel.ErrNotFound
	}
	return cloneSession(sess), nil
}
