package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"crecheflow/internal/family/models"
	"crecheflow/pkg/domain"
	"crecheflow/pkg/platform/sentinel"
)

// Postgres persists family registrations in PostgreSQL.
type Postgres struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed family store.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// RegisterFamily writes the parent, children, and the session idempotency row
// in one transaction. A repeat call for the same session id rolls back its
// own writes and returns the parent created by the first call.
func (s *Postgres) RegisterFamily(ctx context.Context, reg *models.Registration) (domain.ParentID, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.ParentID{}, fmt.Errorf("begin registration: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// The unique session_id row is the idempotency guard; take it first so a
	// concurrent or retried commit short-circuits before creating records.
	res, err := tx.ExecContext(ctx, `
		INSERT INTO registrations (session_id, parent_id)
		VALUES ($1, $2)
		ON CONFLICT (session_id) DO NOTHING`,
		uuid.UUID(reg.SessionID), uuid.UUID(reg.Parent.ID),
	)
	if err != nil {
		return domain.ParentID{}, fmt.Errorf("claim registration: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return s.existingParent(ctx, reg.SessionID)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO parents (id, tenant_id, first_name, last_name, email, phone, whatsapp,
			id_number, whatsapp_opt_in, preferred_contact, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		uuid.UUID(reg.Parent.ID), uuid.UUID(reg.TenantID), reg.Parent.FirstName, reg.Parent.LastName,
		reg.Parent.Email, reg.Parent.Phone, reg.Parent.WhatsApp, nullString(reg.Parent.IDNumber),
		reg.Parent.WhatsAppOptIn, string(reg.Parent.PreferredContact), reg.Parent.CreatedAt,
	)
	if err != nil {
		return domain.ParentID{}, fmt.Errorf("create parent: %w", err)
	}

	for _, child := range reg.Children {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO children (id, tenant_id, parent_id, first_name, last_name, date_of_birth,
				medical_notes, emergency_contact_name, emergency_contact_phone, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			uuid.UUID(child.ID), uuid.UUID(child.TenantID), uuid.UUID(child.ParentID),
			child.FirstName, child.LastName, child.DateOfBirth, child.MedicalNotes,
			child.EmergencyContactName, child.EmergencyContactPhone, child.CreatedAt,
		)
		if err != nil {
			return domain.ParentID{}, fmt.Errorf("create child %s: %w", child.FirstName, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return domain.ParentID{}, fmt.Errorf("commit registration: %w", err)
	}
	return reg.Parent.ID, nil
}

func (s *Postgres) existingParent(ctx context.Context, sessionID domain.SessionID) (domain.ParentID, error) {
	var parentID uuid.UUID
	err := s.db.QueryRowContext(ctx, `
		SELECT parent_id FROM registrations WHERE session_id = $1`,
		uuid.UUID(sessionID),
	).Scan(&parentID)
	if err != nil {
		return domain.ParentID{}, fmt.Errorf("find existing registration: %w", err)
	}
	return domain.ParentID(parentID), nil
}

// FindParent returns a parent record or sentinel.ErrNotFound.
func (s *Postgres) FindParent(ctx context.Context, parentID domain.ParentID) (*models.Parent, error) {
	var parent models.Parent
	var id, tenantID uuid.UUID
	var idNumber sql.NullString
	var preferred string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, first_name, last_name, email, phone, whatsapp,
			id_number, whatsapp_opt_in, preferred_contact, created_at
		FROM parents WHERE id = $1`,
		uuid.UUID(parentID),
	).Scan(&id, &tenantID, &parent.FirstName, &parent.LastName, &parent.Email, &parent.Phone,
		&parent.WhatsApp, &idNumber, &parent.WhatsAppOptIn, &preferred, &parent.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find parent: %w", err)
	}
	parent.ID = domain.ParentID(id)
	parent.TenantID = domain.TenantID(tenantID)
	parent.IDNumber = idNumber.String
	parent.PreferredContact = models.PreferredContact(preferred)
	return &parent, nil
}

// ListChildrenByParent returns all children registered under a parent.
func (s *Postgres) ListChildrenByParent(ctx context.Context, parentID domain.ParentID) ([]*models.Child, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, parent_id, first_name, last_name, date_of_birth,
			medical_notes, emergency_contact_name, emergency_contact_phone, created_at
		FROM children WHERE parent_id = $1 ORDER BY created_at`,
		uuid.UUID(parentID),
	)
	if err != nil {
		return nil, fmt.Errorf("list children: %w", err)
	}
	defer rows.Close()

	var out []*models.Child
	for rows.Next() {
		var child models.Child
		var id, tenantID, pid uuid.UUID
		if err := rows.Scan(&id, &tenantID, &pid, &child.FirstName, &child.LastName,
			&child.DateOfBirth, &child.MedicalNotes, &child.EmergencyContactName,
			&child.EmergencyContactPhone, &child.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan child: %w", err)
		}
		child.ID = domain.ChildID(id)
		child.TenantID = domain.TenantID(tenantID)
		child.ParentID = domain.ParentID(pid)
		out = append(out, &child)
	}
	return out, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
