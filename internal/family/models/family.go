// Package models defines the durable family records an onboarding session
// materializes into.
package models

import (
	"time"

	"crecheflow/pkg/domain"
)

// PreferredContact is how the parent asked to be reached.
type PreferredContact string

const (
	PreferredContactWhatsApp PreferredContact = "WHATSAPP"
	PreferredContactEmail    PreferredContact = "EMAIL"
	PreferredContactBoth     PreferredContact = "BOTH"
)

// Parent is the registering guardian's durable record.
type Parent struct {
	ID        domain.ParentID `json:"id"`
	TenantID  domain.TenantID `json:"tenant_id"`
	FirstName string          `json:"first_name"`
	LastName  string          `json:"last_name"`
	Email     string          `json:"email"`
	// Phone and WhatsApp both carry the originating channel identity.
	Phone            string           `json:"phone"`
	WhatsApp         string           `json:"whatsapp"`
	IDNumber         string           `json:"id_number,omitempty"`
	WhatsAppOptIn    bool             `json:"whatsapp_opt_in"`
	PreferredContact PreferredContact `json:"preferred_contact"`
	CreatedAt        time.Time        `json:"created_at"`
}

// Child is one enrolled child. LastName is inherited from the parent's
// surname; the emergency contact is shared across siblings.
type Child struct {
	ID                    domain.ChildID  `json:"id"`
	TenantID              domain.TenantID `json:"tenant_id"`
	ParentID              domain.ParentID `json:"parent_id"`
	FirstName             string          `json:"first_name"`
	LastName              string          `json:"last_name"`
	DateOfBirth           time.Time       `json:"date_of_birth"`
	MedicalNotes          string          `json:"medical_notes,omitempty"`
	EmergencyContactName  string          `json:"emergency_contact_name"`
	EmergencyContactPhone string          `json:"emergency_contact_phone"`
	CreatedAt             time.Time       `json:"created_at"`
}

// Registration is the atomic unit the completion committer writes: one
// parent plus their children, keyed by the onboarding session as an
// idempotency key so a retried commit never duplicates the family.
type Registration struct {
	SessionID domain.SessionID
	TenantID  domain.TenantID
	Parent    Parent
	Children  []Child
}
