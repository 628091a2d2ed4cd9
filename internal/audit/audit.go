// Package audit emits onboarding lifecycle events. Downstream consumers
// (billing, enrolment, ops dashboards) subscribe to the Kafka topic; tests
// and dev use the in-memory and nop publishers.
package audit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"crecheflow/pkg/domain"
)

// Action names one lifecycle event.
type Action string

const (
	ActionSessionStarted     Action = "onboarding.session_started"
	ActionSessionCompleted   Action = "onboarding.session_completed"
	ActionSessionAbandoned   Action = "onboarding.session_abandoned"
	ActionSessionRestarted   Action = "onboarding.session_restarted"
	ActionRegistrationFailed Action = "onboarding.registration_failed"
)

// Event is one lifecycle fact about an onboarding session.
type Event struct {
	ID         uuid.UUID         `json:"id"`
	TenantID   domain.TenantID   `json:"tenant_id"`
	SessionID  domain.SessionID  `json:"session_id"`
	ChannelID  string            `json:"channel_id"`
	Action     Action            `json:"action"`
	OccurredAt time.Time         `json:"occurred_at"`
	Detail     map[string]string `json:"detail,omitempty"`
}

// NewEvent stamps an event with a fresh id and the given time.
func NewEvent(action Action, tenantID domain.TenantID, sessionID domain.SessionID, channelID string, now time.Time) Event {
	return Event{
		ID:         uuid.New(),
		TenantID:   tenantID,
		SessionID:  sessionID,
		ChannelID:  channelID,
		Action:     action,
		OccurredAt: now,
	}
}

// Publisher delivers events. Emit must never block a turn on downstream
// availability; implementations log-and-drop rather than fail the engine.
type Publisher interface {
	Emit(ctx context.Context, event Event) error
}

// NopPublisher discards events.
type NopPublisher struct{}

func (NopPublisher) Emit(context.Context, Event) error { return nil }

// MemoryPublisher collects events for assertions in tests.
type MemoryPublisher struct {
	mu     sync.Mutex
	events []Event
}

// NewMemoryPublisher creates an empty in-memory publisher.
func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{}
}

func (p *MemoryPublisher) Emit(_ context.Context, event Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

// Events returns a snapshot of everything emitted so far.
func (p *MemoryPublisher) Events() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Event, len(p.events))
	copy(out, p.events)
	return out
}

// Actions returns the emitted actions in order, for compact assertions.
func (p *MemoryPublisher) Actions() []Action {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Action, len(p.events))
	for i, e := range p.events {
		out[i] = e.Action
	}
	return out
}
