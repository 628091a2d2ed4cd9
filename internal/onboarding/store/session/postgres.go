package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"crecheflow/internal/onboarding/models"
	"crecheflow/pkg/domain"
	"crecheflow/pkg/platform/sentinel"
)

// Postgres persists sessions durably. Collected data rides in a JSONB column:
// its shape changes with the flow, and nothing queries inside it.
type Postgres struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed session store.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (s *Postgres) FindActiveByIdentity(ctx context.Context, tenantID domain.TenantID, channelID string) (*models.Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, channel_id, current_step, status, collected_data,
			started_at, last_message_at, completed_at, parent_id
		FROM onboarding_sessions
		WHERE tenant_id = $1 AND channel_id = $2 AND status = $3
		ORDER BY started_at DESC
		LIMIT 1`,
		uuid.UUID(tenantID), channelID, string(models.SessionStatusInProgress),
	)
	return scanSession(row)
}

func (s *Postgres) Create(ctx context.Context, sess *models.Session) error {
	data, err := json.Marshal(sess.Data)
	if err != nil {
		return fmt.Errorf("encode collected data: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO onboarding_sessions
			(id, tenant_id, channel_id, current_step, status, collected_data,
			started_at, last_message_at, completed_at, parent_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		uuid.UUID(sess.ID), uuid.UUID(sess.TenantID), sess.ChannelID,
		sess.CurrentStep.String(), string(sess.Status), data,
		sess.StartedAt, sess.LastMessageAt, sess.CompletedAt, nullParentID(sess.ParentID),
	)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (s *Postgres) Update(ctx context.Context, sess *models.Session) error {
	data, err := json.Marshal(sess.Data)
	if err != nil {
		return fmt.Errorf("encode collected data: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE onboarding_sessions
		SET current_step = $2, status = $3, collected_data = $4,
			last_message_at = $5, completed_at = $6, parent_id = $7
		WHERE id = $1`,
		uuid.UUID(sess.ID), sess.CurrentStep.String(), string(sess.Status), data,
		sess.LastMessageAt, sess.CompletedAt, nullParentID(sess.ParentID),
	)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

// FindByID returns a session regardless of status, or sentinel.ErrNotFound.
func (s *Postgres) FindByID(ctx context.Context, sessionID domain.SessionID) (*models.Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, channel_id, current_step, status, collected_data,
			started_at, last_message_at, completed_at, parent_id
		FROM onboarding_sessions WHERE id = $1`,
		uuid.UUID(sessionID),
	)
	return scanSession(row)
}

func scanSession(row *sql.Row) (*models.Session, error) {
	var sess models.Session
	var id, tenantID uuid.UUID
	var step, status string
	var data []byte
	var completedAt sql.NullTime
	var parentID uuid.NullUUID

	err := row.Scan(&id, &tenantID, &sess.ChannelID, &step, &status, &data,
		&sess.StartedAt, &sess.LastMessageAt, &completedAt, &parentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan session: %w", err)
	}

	sess.ID = domain.SessionID(id)
	sess.TenantID = domain.TenantID(tenantID)
	sess.CurrentStep = models.Step(step)
	sess.Status = models.SessionStatus(status)
	if completedAt.Valid {
		t := completedAt.Time
		sess.CompletedAt = &t
	}
	if parentID.Valid {
		sess.ParentID = domain.ParentID(parentID.UUID)
	}
	if err := json.Unmarshal(data, &sess.Data); err != nil {
		return nil, fmt.Errorf("decode collected data: %w", err)
	}
	return &sess, nil
}

func nullParentID(id domain.ParentID) uuid.NullUUID {
	return uuid.NullUUID{UUID: uuid.UUID(id), Valid: !id.IsNil()}
}
