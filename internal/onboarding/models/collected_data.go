package models

import "time"

// CollectedData accumulates chat answers field by field. It is materialized
// into parent/child records only at completion.
type CollectedData struct {
	Parent             ParentDetails      `json:"parent"`
	Children           []ChildDetails     `json:"children,omitempty"`
	EmergencyContact   EmergencyContact   `json:"emergency_contact"`
	PopiaConsent       bool               `json:"popia_consent"`
	PopiaConsentAt     *time.Time         `json:"popia_consent_at,omitempty"`
	FeeAcknowledged    bool               `json:"fee_acknowledged"`
	CommunicationPrefs CommunicationPrefs `json:"communication_prefs"`
}

// ParentDetails holds the registering parent's answers. IDNumber is "skip"
// when the parent bypassed optional collection.
type ParentDetails struct {
	FirstName string `json:"first_name"`
	Surname   string `json:"surname"`
	Email     string `json:"email"`
	IDNumber  string `json:"id_number,omitempty"`
	Phone     string `json:"phone,omitempty"`
}

// ChildDetails holds one child's answers. DateOfBirth is the ISO YYYY-MM-DD
// form produced by the date validator.
type ChildDetails struct {
	FirstName   string `json:"first_name"`
	DateOfBirth string `json:"date_of_birth"`
	Allergies   string `json:"allergies"`
}

// EmergencyContact is shared across all children in the registration.
type EmergencyContact struct {
	Name         string `json:"name"`
	Phone        string `json:"phone"`
	Relationship string `json:"relationship"`
}

// CommunicationPrefs records which channels the parent opted into.
type CommunicationPrefs struct {
	WhatsApp bool `json:"whatsapp"`
	Email    bool `json:"email"`
}

// AppendChild starts a new child entry; subsequent child steps write the
// fields of this entry.
func (d *CollectedData) AppendChild(firstName string) {
	d.Children = append(d.Children, ChildDetails{FirstName: firstName})
}

// LastChild returns the child entry currently being collected, or nil when no
// child has been started yet.
func (d *CollectedData) LastChild() *ChildDetails {
	if len(d.Children) == 0 {
		return nil
	}
	return &d.Children[len(d.Children)-1]
}
