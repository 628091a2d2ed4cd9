// Package domain defines typed identifiers shared across the platform.
//
// IDs are distinct named types over uuid.UUID so a TenantID can never be
// passed where a SessionID is expected. Construct them from external input
// via the Parse* functions, which enforce the invariant that IDs are valid,
// non-empty, non-nil UUIDs; direct casting bypasses validation and is only
// appropriate for values minted in-process via uuid.New().
package domain

import (
	"fmt"

	"github.com/google/uuid"
)

type (
	// TenantID identifies a tenant organization (a creche).
	TenantID uuid.UUID

	// SessionID identifies one onboarding conversation attempt.
	SessionID uuid.UUID

	// ParentID identifies a parent record.
	ParentID uuid.UUID

	// ChildID identifies a child record.
	ChildID uuid.UUID
)

// NewTenantID mints a fresh tenant ID.
func NewTenantID() TenantID { return TenantID(uuid.New()) }

// NewSessionID mints a fresh session ID.
func NewSessionID() SessionID { return SessionID(uuid.New()) }

// NewParentID mints a fresh parent ID.
func NewParentID() ParentID { return ParentID(uuid.New()) }

// NewChildID mints a fresh child ID.
func NewChildID() ChildID { return ChildID(uuid.New()) }

func (id TenantID) String() string  { return uuid.UUID(id).String() }
func (id SessionID) String() string { return uuid.UUID(id).String() }
func (id ParentID) String() string  { return uuid.UUID(id).String() }
func (id ChildID) String() string   { return uuid.UUID(id).String() }

func (id TenantID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }
func (id SessionID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id ParentID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }
func (id ChildID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }

// ParseTenantID validates and returns a TenantID from its string form.
func ParseTenantID(s string) (TenantID, error) {
	u, err := parseUUID(s, "tenant id")
	return TenantID(u), err
}

// ParseSessionID validates and returns a SessionID from its string form.
func ParseSessionID(s string) (SessionID, error) {
	u, err := parseUUID(s, "session id")
	return SessionID(u), err
}

// ParseParentID validates and returns a ParentID from its string form.
func ParseParentID(s string) (ParentID, error) {
	u, err := parseUUID(s, "parent id")
	return ParentID(u), err
}

// ParseChildID validates and returns a ChildID from its string form.
func ParseChildID(s string) (ChildID, error) {
	u, err := parseUUID(s, "child id")
	return ChildID(u), err
}

// Text marshalling keeps IDs as canonical UUID strings in JSON and store
// encodings; named types do not inherit uuid.UUID's methods.

func (id TenantID) MarshalText() ([]byte, error)  { return marshalID(uuid.UUID(id)) }
func (id SessionID) MarshalText() ([]byte, error) { return marshalID(uuid.UUID(id)) }
func (id ParentID) MarshalText() ([]byte, error)  { return marshalID(uuid.UUID(id)) }
func (id ChildID) MarshalText() ([]byte, error)   { return marshalID(uuid.UUID(id)) }

func (id *TenantID) UnmarshalText(text []byte) error {
	return unmarshalID(text, (*uuid.UUID)(id))
}

func (id *SessionID) UnmarshalText(text []byte) error {
	return unmarshalID(text, (*uuid.UUID)(id))
}

func (id *ParentID) UnmarshalText(text []byte) error {
	return unmarshalID(text, (*uuid.UUID)(id))
}

func (id *ChildID) UnmarshalText(text []byte) error {
	return unmarshalID(text, (*uuid.UUID)(id))
}

func marshalID(u uuid.UUID) ([]byte, error) {
	return []byte(u.String()), nil
}

func unmarshalID(text []byte, out *uuid.UUID) error {
	u, err := uuid.Parse(string(text))
	if err != nil {
		return err
	}
	*out = u
	return nil
}

func parseUUID(s, label string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, fmt.Errorf("%s is required", label)
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid %s: %w", label, err)
	}
	if u == uuid.Nil {
		return uuid.Nil, fmt.Errorf("%s must not be the nil UUID", label)
	}
	return u, nil
}
