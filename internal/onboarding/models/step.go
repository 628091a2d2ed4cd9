package models

// Step is a named position in the onboarding state machine. Each step owns at
// most one collected-data field; no step writes another step's field.
type Step string

const (
	StepWelcome                  Step = "WELCOME"
	StepConsent                  Step = "CONSENT"
	StepParentName               Step = "PARENT_NAME"
	StepParentSurname            Step = "PARENT_SURNAME"
	StepParentEmail              Step = "PARENT_EMAIL"
	StepParentIDNumber           Step = "PARENT_ID_NUMBER"
	StepChildName                Step = "CHILD_NAME"
	StepChildDOB                 Step = "CHILD_DOB"
	StepChildAllergies           Step = "CHILD_ALLERGIES"
	StepChildAnother             Step = "CHILD_ANOTHER"
	StepEmergencyContactName     Step = "EMERGENCY_CONTACT_NAME"
	StepEmergencyContactPhone    Step = "EMERGENCY_CONTACT_PHONE"
	StepEmergencyContactRelation Step = "EMERGENCY_CONTACT_RELATION"
	StepIDDocument               Step = "ID_DOCUMENT"
	StepFeeAgreement             Step = "FEE_AGREEMENT"
	StepCommunicationPrefs       Step = "COMMUNICATION_PREFS"
	StepConfirmation             Step = "CONFIRMATION"
	StepComplete                 Step = "COMPLETE"
)

// IsTerminal reports whether the step ends the state machine.
func (s Step) IsTerminal() bool {
	return s == StepComplete
}

func (s Step) String() string {
	return string(s)
}
