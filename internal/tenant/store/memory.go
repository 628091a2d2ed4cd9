// Package store persists tenants. The in-memory implementation backs tests
// and single-node development; Postgres backs production.
package store

import (
	"context"
	"sync"

	"crecheflow/internal/tenant/models"
	"crecheflow/pkg/domain"
	"crecheflow/pkg/platform/sentinel"
)

// InMemory is a mutex-guarded tenant store.
type InMemory struct {
	mu        sync.RWMutex
	tenants   map[domain.TenantID]*models.Tenant
	byPhoneID map[string]domain.TenantID
}

// NewInMemory creates an empty in-memory tenant store.
func NewInMemory() *InMemory {
	return &InMemory{
		tenants:   make(map[domain.TenantID]*models.Tenant),
		byPhoneID: make(map[string]domain.TenantID),
	}
}

// Create stores a tenant, rejecting duplicate IDs and duplicate WhatsApp
// phone-number ids.
func (s *InMemory) Create(_ context.Context, tenant *models.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tenants[tenant.ID]; exists {
		return sentinel.ErrConflict
	}
	if tenant.WhatsAppPhoneID != "" {
		if _, exists := s.byPhoneID[tenant.WhatsAppPhoneID]; exists {
			return sentinel.ErrConflict
		}
		s.byPhoneID[tenant.WhatsAppPhoneID] = tenant.ID
	}
	clone := *tenant
	s.tenants[tenant.ID] = &clone
	return nil
}

// FindByID returns the tenant or sentinel.ErrNotFound.
func (s *InMemory) FindByID(_ context.Context, tenantID domain.TenantID) (*models.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tenant, exists := s.tenants[tenantID]
	if !exists {
		return nil, sentinel.ErrNotFound
	}
	clone := *tenant
	return &clone, nil
}

// FindByWhatsAppPhoneID resolves the tenant owning a WhatsApp business number.
func (s *InMemory) FindByWhatsAppPhoneID(_ context.Context, phoneID string) (*models.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tenantID, exists := s.byPhoneID[phoneID]
	if !exists {
		return nil, sentinel.ErrNotFound
	}
	clone := *s.tenants[tenantID]
	return &clone, nil
}

// Update overwrites an existing tenant or returns sentinel.ErrNotFound.
func (s *InMemory) Update(_ context.Context, tenant *models.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.tenants[tenant.ID]
	if !exists {
		return sentinel.ErrNotFound
	}
	if existing.WhatsAppPhoneID != tenant.WhatsAppPhoneID {
		delete(s.byPhoneID, existing.WhatsAppPhoneID)
		if tenant.WhatsAppPhoneID != "" {
			s.byPhoneID[tenant.WhatsAppPhoneID] = tenant.ID
		}
	}
	clone := *tenant
	s.tenants[tenant.ID] = &clone
	return nil
}
