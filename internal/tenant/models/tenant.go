package models

import (
	"time"

	"crecheflow/pkg/domain"
)

// TenantStatus is active or inactive; no other states.
type TenantStatus string

const (
	TenantStatusActive   TenantStatus = "active"
	TenantStatusInactive TenantStatus = "inactive"
)

// Tenant is one creche on the platform.
//
// Invariants:
//   - LegalName is non-empty and at most 128 characters
//   - Status is either active or inactive
//
// An inactive tenant is treated as unresolvable by the onboarding engine:
// inbound messages for it are dropped silently, the same as a misrouted
// delivery. This keeps suspension a single-point check rather than a cascade.
type Tenant struct {
	ID              domain.TenantID `json:"id"`
	LegalName       string          `json:"legal_name"`
	TradingName     string          `json:"trading_name,omitempty"`
	WhatsAppPhoneID string          `json:"whatsapp_phone_id,omitempty"`
	Status          TenantStatus    `json:"status"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// NewTenant constructs an active tenant.
func NewTenant(legalName, tradingName, whatsappPhoneID string, now time.Time) (*Tenant, error) {
	if legalName == "" {
		return nil, errEmptyLegalName
	}
	if len(legalName) > 128 {
		return nil, errLegalNameTooLong
	}
	return &Tenant{
		ID:              domain.NewTenantID(),
		LegalName:       legalName,
		TradingName:     tradingName,
		WhatsAppPhoneID: whatsappPhoneID,
		Status:          TenantStatusActive,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// Branding returns the name used in outbound messages: the trading name,
// falling back to the legal name.
func (t *Tenant) Branding() string {
	if t.TradingName != "" {
		return t.TradingName
	}
	return t.LegalName
}

func (t *Tenant) IsActive() bool {
	return t.Status == TenantStatusActive
}
