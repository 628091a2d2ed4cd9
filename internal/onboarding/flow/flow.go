// Package flow defines the onboarding step transition table.
//
// The table is a pure mapping from (step, normalized input) to (next step,
// data mutation, outbound prompt). Steps come in a closed set of kinds so the
// table is exhaustively checkable:
//
//   - PromptOnly steps send a fixed prompt and advance unconditionally
//   - ValidateAndAdvance steps run a validator; only a valid result writes
//     the step's owned field and advances
//   - Branch steps send a quick reply and advance only on a known option id
//
// The engine in onboarding/service drives the table; nothing here touches
// stores or transports.
package flow

import (
	"strings"
	"time"

	"crecheflow/internal/onboarding/models"
	"crecheflow/internal/onboarding/validate"
)

// Kind classifies how a step consumes input.
type Kind int

const (
	PromptOnly Kind = iota
	ValidateAndAdvance
	Branch
)

// Branch option identifiers, delivered by the transport as plain text when
// the user taps a quick-reply button.
const (
	OptionAddAnotherChild = "child_add_another"
	OptionContinue        = "child_continue"
)

// Option is one quick-reply choice on a Branch step.
type Option struct {
	ID    string
	Title string
	Next  models.Step
}

// Definition describes one step of the state machine.
type Definition struct {
	Step models.Step
	Kind Kind

	// Next is the step after a successful advance. Unset for Branch steps,
	// whose options carry their own targets.
	Next models.Step

	// Validate maps raw input to a validation result. Only set on
	// ValidateAndAdvance steps.
	Validate func(raw string, now time.Time) validate.Result

	// Apply writes the normalized value into the one field this step owns.
	// Nil when the step owns no field (WELCOME, ID_DOCUMENT).
	Apply func(data *models.CollectedData, normalized string, now time.Time)

	// Declines reports whether the input is an explicit refusal that
	// abandons the whole onboarding. Only set on CONSENT and FEE_AGREEMENT.
	Declines func(raw string) bool

	// Options are the quick-reply choices of a Branch step.
	Options []Option
}

var table = map[models.Step]Definition{
	models.StepWelcome: {
		Step: models.StepWelcome,
		Kind: PromptOnly,
		Next: models.StepConsent,
	},
	models.StepConsent: {
		Step:     models.StepConsent,
		Kind:     ValidateAndAdvance,
		Next:     models.StepParentName,
		Validate: validateAffirmation("Please reply YES to consent and continue, or NO to cancel."),
		Declines: isDecline,
		Apply: func(data *models.CollectedData, _ string, now time.Time) {
			data.PopiaConsent = true
			data.PopiaConsentAt = &now
		},
	},
	models.StepParentName: {
		Step:     models.StepParentName,
		Kind:     ValidateAndAdvance,
		Next:     models.StepParentSurname,
		Validate: noNow(validate.Name),
		Apply: func(data *models.CollectedData, normalized string, _ time.Time) {
			data.Parent.FirstName = normalized
		},
	},
	models.StepParentSurname: {
		Step:     models.StepParentSurname,
		Kind:     ValidateAndAdvance,
		Next:     models.StepParentEmail,
		Validate: noNow(validate.Name),
		Apply: func(data *models.CollectedData, normalized string, _ time.Time) {
			data.Parent.Surname = normalized
		},
	},
	models.StepParentEmail: {
		Step:     models.StepParentEmail,
		Kind:     ValidateAndAdvance,
		Next:     models.StepParentIDNumber,
		Validate: noNow(validate.Email),
		Apply: func(data *models.CollectedData, normalized string, _ time.Time) {
			data.Parent.Email = normalized
		},
	},
	models.StepParentIDNumber: {
		Step:     models.StepParentIDNumber,
		Kind:     ValidateAndAdvance,
		Next:     models.StepChildName,
		Validate: noNow(validate.IDNumber),
		Apply: func(data *models.CollectedData, normalized string, _ time.Time) {
			data.Parent.IDNumber = normalized
		},
	},
	models.StepChildName: {
		Step:     models.StepChildName,
		Kind:     ValidateAndAdvance,
		Next:     models.StepChildDOB,
		Validate: noNow(validate.Name),
		Apply: func(data *models.CollectedData, normalized string, _ time.Time) {
			data.AppendChild(normalized)
		},
	},
	models.StepChildDOB: {
		Step:     models.StepChildDOB,
		Kind:     ValidateAndAdvance,
		Next:     models.StepChildAllergies,
		Validate: validate.DateOfBirth,
		Apply: func(data *models.CollectedData, normalized string, _ time.Time) {
			if child := data.LastChild(); child != nil {
				child.DateOfBirth = normalized
			}
		},
	},
	models.StepChildAllergies: {
		Step:     models.StepChildAllergies,
		Kind:     ValidateAndAdvance,
		Next:     models.StepChildAnother,
		Validate: noNow(validate.FreeText),
		Apply: func(data *models.CollectedData, normalized string, _ time.Time) {
			if child := data.LastChild(); child != nil {
				child.Allergies = normalized
			}
		},
	},
	models.StepChildAnother: {
		Step: models.StepChildAnother,
		Kind: Branch,
		Options: []Option{
			{ID: OptionAddAnotherChild, Title: "Add another child", Next: models.StepChildName},
			{ID: OptionContinue, Title: "Continue", Next: models.StepEmergencyContactName},
		},
	},
	models.StepEmergencyContactName: {
		Step:     models.StepEmergencyContactName,
		Kind:     ValidateAndAdvance,
		Next:     models.StepEmergencyContactPhone,
		Validate: noNow(validate.Name),
		Apply: func(data *models.CollectedData, normalized string, _ time.Time) {
			data.EmergencyContact.Name = normalized
		},
	},
	models.StepEmergencyContactPhone: {
		Step:     models.StepEmergencyContactPhone,
		Kind:     ValidateAndAdvance,
		Next:     models.StepEmergencyContactRelation,
		Validate: noNow(validate.Phone),
		Apply: func(data *models.CollectedData, normalized string, _ time.Time) {
			data.EmergencyContact.Phone = normalized
		},
	},
	models.StepEmergencyContactRelation: {
		Step:     models.StepEmergencyContactRelation,
		Kind:     ValidateAndAdvance,
		Next:     models.StepIDDocument,
		Validate: noNow(validate.Name),
		Apply: func(data *models.CollectedData, normalized string, _ time.Time) {
			data.EmergencyContact.Relationship = normalized
		},
	},
	models.StepIDDocument: {
		// Owns no collected field: any non-empty input (a media placeholder
		// from the transport, or "skip") acknowledges and advances.
		Step:     models.StepIDDocument,
		Kind:     ValidateAndAdvance,
		Next:     models.StepFeeAgreement,
		Validate: noNow(validate.FreeText),
	},
	models.StepFeeAgreement: {
		Step:     models.StepFeeAgreement,
		Kind:     ValidateAndAdvance,
		Next:     models.StepCommunicationPrefs,
		Validate: validateAffirmation("Please reply YES to accept the fee schedule, or NO to cancel."),
		Declines: isDecline,
		Apply: func(data *models.CollectedData, _ string, _ time.Time) {
			data.FeeAcknowledged = true
		},
	},
	models.StepCommunicationPrefs: {
		Step: models.StepCommunicationPrefs,
		Kind: ValidateAndAdvance,
		Next: models.StepConfirmation,
		// Every answer maps to a preference; unrecognized input defaults to
		// both channels.
		Validate: func(raw string, _ time.Time) validate.Result {
			return validate.Result{Valid: true, Normalized: raw}
		},
		Apply: func(data *models.CollectedData, normalized string, _ time.Time) {
			whatsapp, email := validate.CommunicationPrefs(normalized)
			data.CommunicationPrefs = models.CommunicationPrefs{WhatsApp: whatsapp, Email: email}
		},
	},
	models.StepConfirmation: {
		Step:     models.StepConfirmation,
		Kind:     ValidateAndAdvance,
		Next:     models.StepComplete,
		Validate: validateAffirmation("Please reply YES to finish your registration, or send onboard_restart to start over."),
	},
}

// Lookup returns the definition for a step. The second return is false for
// COMPLETE and unknown steps, which have no definition.
func Lookup(step models.Step) (Definition, bool) {
	def, exists := table[step]
	return def, exists
}

// noNow adapts a time-independent validator to the table's signature.
func noNow(fn func(string) validate.Result) func(string, time.Time) validate.Result {
	return func(raw string, _ time.Time) validate.Result {
		return fn(raw)
	}
}

var affirmTokens = map[string]struct{}{
	"yes": {}, "y": {}, "agree": {}, "i agree": {}, "accept": {}, "ok": {}, "confirm": {}, "yebo": {},
}

var declineTokens = map[string]struct{}{
	"no": {}, "n": {}, "decline": {}, "cancel": {}, "refuse": {},
}

func isAffirmation(raw string) bool {
	_, affirmed := affirmTokens[normalizeToken(raw)]
	return affirmed
}

func isDecline(raw string) bool {
	_, declined := declineTokens[normalizeToken(raw)]
	return declined
}

func validateAffirmation(reprompt string) func(string, time.Time) validate.Result {
	return func(raw string, _ time.Time) validate.Result {
		if isAffirmation(raw) {
			return validate.Result{Valid: true, Normalized: "yes"}
		}
		return validate.Result{Err: reprompt}
	}
}

func normalizeToken(raw string) string {
	return strings.ToLower(strings.Join(strings.Fields(raw), " "))
}
