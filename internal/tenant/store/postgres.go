package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"crecheflow/internal/tenant/models"
	"crecheflow/pkg/domain"
	"crecheflow/pkg/platform/sentinel"
)

// Postgres persists tenants in PostgreSQL.
type Postgres struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed tenant store.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

const tenantColumns = `id, legal_name, trading_name, whatsapp_phone_id, status, created_at, updated_at`

func (s *Postgres) Create(ctx context.Context, tenant *models.Tenant) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tenants (`+tenantColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		uuid.UUID(tenant.ID), tenant.LegalName, tenant.TradingName, tenant.WhatsAppPhoneID,
		string(tenant.Status), tenant.CreatedAt, tenant.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create tenant: %w", err)
	}
	return nil
}

func (s *Postgres) FindByID(ctx context.Context, tenantID domain.TenantID) (*models.Tenant, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+tenantColumns+` FROM tenants WHERE id = $1`,
		uuid.UUID(tenantID),
	)
	return scanTenant(row)
}

func (s *Postgres) FindByWhatsAppPhoneID(ctx context.Context, phoneID string) (*models.Tenant, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+tenantColumns+` FROM tenants WHERE whatsapp_phone_id = $1`,
		phoneID,
	)
	return scanTenant(row)
}

func (s *Postgres) Update(ctx context.Context, tenant *models.Tenant) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE tenants
		SET legal_name = $2, trading_name = $3, whatsapp_phone_id = $4, status = $5, updated_at = $6
		WHERE id = $1`,
		uuid.UUID(tenant.ID), tenant.LegalName, tenant.TradingName, tenant.WhatsAppPhoneID,
		string(tenant.Status), tenant.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update tenant: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update tenant: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func scanTenant(row *sql.Row) (*models.Tenant, error) {
	var tenant models.Tenant
	var id uuid.UUID
	var status string
	err := row.Scan(&id, &tenant.LegalName, &tenant.TradingName, &tenant.WhatsAppPhoneID,
		&status, &tenant.CreatedAt, &tenant.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan tenant: %w", err)
	}
	tenant.ID = domain.TenantID(id)
	tenant.Status = models.TenantStatus(status)
	return &tenant, nil
}
