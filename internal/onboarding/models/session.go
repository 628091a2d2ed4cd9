package models

import (
	"time"

	"crecheflow/pkg/domain"
)

// SessionStatus is the lifecycle state of an onboarding session.
type SessionStatus string

const (
	SessionStatusInProgress SessionStatus = "IN_PROGRESS"
	SessionStatusCompleted  SessionStatus = "COMPLETED"
	SessionStatusAbandoned  SessionStatus = "ABANDONED"
)

// Session binds one channel identity to one onboarding attempt for one tenant.
//
// Invariants:
//   - IN_PROGRESS implies CurrentStep is non-terminal
//   - COMPLETED implies ParentID is set and CurrentStep is COMPLETE
//   - ABANDONED sessions are frozen forever
//   - At most one IN_PROGRESS session per (tenant, channel identity),
//     enforced by triage lookup order rather than a hard store constraint
type Session struct {
	ID            domain.SessionID `json:"id"`
	TenantID      domain.TenantID  `json:"tenant_id"`
	ChannelID     string           `json:"channel_id"`
	CurrentStep   Step             `json:"current_step"`
	Status        SessionStatus    `json:"status"`
	Data          CollectedData    `json:"collected_data"`
	StartedAt     time.Time        `json:"started_at"`
	LastMessageAt time.Time        `json:"last_message_at"`
	CompletedAt   *time.Time       `json:"completed_at,omitempty"`
	ParentID      domain.ParentID  `json:"parent_id,omitempty"`
}

// NewSession starts a fresh onboarding attempt at WELCOME.
func NewSession(tenantID domain.TenantID, channelID string, now time.Time) *Session {
	return &Session{
		ID:            domain.NewSessionID(),
		TenantID:      tenantID,
		ChannelID:     channelID,
		CurrentStep:   StepWelcome,
		Status:        SessionStatusInProgress,
		StartedAt:     now,
		LastMessageAt: now,
	}
}

// IsTerminal reports whether the session can still accept turns.
func (s *Session) IsTerminal() bool {
	return s.Status != SessionStatusInProgress
}

// Advance moves the session to the given step and stamps the turn time.
func (s *Session) Advance(step Step, now time.Time) {
	s.CurrentStep = step
	s.LastMessageAt = now
}

// Restart wipes all collected answers and rewinds to WELCOME. The session row
// persists so the attempt keeps its identity and start time.
func (s *Session) Restart(now time.Time) {
	s.Data = CollectedData{}
	s.CurrentStep = StepWelcome
	s.LastMessageAt = now
}

// Abandon freezes the session. Only a cancellation notice is sent thereafter.
func (s *Session) Abandon(now time.Time) {
	s.Status = SessionStatusAbandoned
	s.LastMessageAt = now
}

// Complete finalizes the session against the created parent record.
func (s *Session) Complete(parentID domain.ParentID, now time.Time) {
	s.Status = SessionStatusCompleted
	s.CurrentStep = StepComplete
	s.ParentID = parentID
	s.CompletedAt = &now
	s.LastMessageAt = now
}
