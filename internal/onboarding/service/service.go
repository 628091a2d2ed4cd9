// Package service orchestrates the onboarding conversation: triage, per-turn
// execution against the flow table, and the completion commit.
package service

import (
	"context"
	"log/slog"

	"crecheflow/internal/audit"
	familymodels "crecheflow/internal/family/models"
	"crecheflow/internal/onboarding/models"
	"crecheflow/internal/platform/metrics"
	tenantmodels "crecheflow/internal/tenant/models"
	"crecheflow/pkg/domain"
)

// SessionStore is the session persistence contract. Implementations return
// sentinel.ErrNotFound when no IN_PROGRESS session exists for the identity.
type SessionStore interface {
	FindActiveByIdentity(ctx context.Context, tenantID domain.TenantID, channelID string) (*models.Session, error)
	Create(ctx context.Context, session *models.Session) error
	Update(ctx context.Context, session *models.Session) error
}

// TenantDirectory resolves tenant branding for outbound copy.
type TenantDirectory interface {
	FindByID(ctx context.Context, tenantID domain.TenantID) (*tenantmodels.Tenant, error)
}

// Registrar materializes a registration into durable parent/child records.
// It must be idempotent on the registration's session id: a retried commit
// returns the parent created by the first call.
type Registrar interface {
	RegisterFamily(ctx context.Context, reg *familymodels.Registration) (domain.ParentID, error)
}

// QuickReplyOption is one tappable choice on an outbound quick reply.
type QuickReplyOption struct {
	ID    string
	Title string
}

// Messenger is the outbound channel. Two primitives carry the whole flow.
type Messenger interface {
	SendText(ctx context.Context, tenantID domain.TenantID, channelID, text string) error
	SendQuickReply(ctx context.Context, tenantID domain.TenantID, channelID, prompt string, options []QuickReplyOption) error
}

// Service is the conversation engine.
type Service struct {
	sessions  SessionStore
	tenants   TenantDirectory
	registrar Registrar
	messenger Messenger
	logger    *slog.Logger
	metrics   *metrics.Metrics
	audit     audit.Publisher
}

// Option configures optional service collaborators.
type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithAuditPublisher(publisher audit.Publisher) Option {
	return func(s *Service) {
		s.audit = publisher
	}
}

// New constructs the engine.
func New(sessions SessionStore, tenants TenantDirectory, registrar Registrar, messenger Messenger, opts ...Option) *Service {
	s := &Service{
		sessions:  sessions,
		tenants:   tenants,
		registrar: registrar,
		messenger: messenger,
		logger:    slog.Default(),
		audit:     audit.NopPublisher{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}
