package flow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crecheflow/internal/onboarding/models"
)

// spine is the linear order of steps outside the child loop and terminal.
var spine = []models.Step{
	models.StepWelcome,
	models.StepConsent,
	models.StepParentName,
	models.StepParentSurname,
	models.StepParentEmail,
	models.StepParentIDNumber,
	models.StepChildName,
	models.StepChildDOB,
	models.StepChildAllergies,
	models.StepChildAnother,
	models.StepEmergencyContactName,
	models.StepEmergencyContactPhone,
	models.StepEmergencyContactRelation,
	models.StepIDDocument,
	models.StepFeeAgreement,
	models.StepCommunicationPrefs,
	models.StepConfirmation,
}

func TestTableCoversEverySpineStep(t *testing.T) {
	for _, step := range spine {
		def, exists := Lookup(step)
		require.True(t, exists, "no definition for %s", step)
		assert.Equal(t, step, def.Step)
	}

	_, exists := Lookup(models.StepComplete)
	assert.False(t, exists, "COMPLETE is terminal and must have no definition")
}

func TestSpineTransitions(t *testing.T) {
	for i, step := range spine {
		def, _ := Lookup(step)
		if def.Kind == Branch {
			continue
		}
		if step == models.StepConfirmation {
			assert.Equal(t, models.StepComplete, def.Next)
			continue
		}
		assert.Equal(t, spine[i+1], def.Next, "wrong successor for %s", step)
	}
}

func TestStepKindsAreConsistent(t *testing.T) {
	for _, step := range spine {
		def, _ := Lookup(step)
		switch def.Kind {
		case PromptOnly:
			assert.Nil(t, def.Validate, "%s: prompt-only steps take no input", step)
			assert.NotEmpty(t, def.Next, "%s: prompt-only steps must advance", step)
		case ValidateAndAdvance:
			assert.NotNil(t, def.Validate, "%s: validate steps need a validator", step)
			assert.NotEmpty(t, def.Next, "%s", step)
		case Branch:
			assert.NotEmpty(t, def.Options, "%s: branch steps need options", step)
			assert.Empty(t, def.Next, "%s: branch targets live on the options", step)
		default:
			t.Fatalf("%s: unknown step kind %d", step, def.Kind)
		}
	}
}

func TestChildAnotherBranch(t *testing.T) {
	def, _ := Lookup(models.StepChildAnother)
	require.Len(t, def.Options, 2)

	byID := map[string]Option{}
	for _, opt := range def.Options {
		byID[opt.ID] = opt
	}
	assert.Equal(t, models.StepChildName, byID[OptionAddAnotherChild].Next)
	assert.Equal(t, models.StepEmergencyContactName, byID[OptionContinue].Next)
}

func TestDeclineOnlyOnConsentAndFees(t *testing.T) {
	for _, step := range spine {
		def, _ := Lookup(step)
		declinable := step == models.StepConsent || step == models.StepFeeAgreement
		if declinable {
			assert.NotNil(t, def.Declines, "%s must support declining", step)
			assert.True(t, def.Declines("no"))
			assert.False(t, def.Declines("maybe"))
		} else {
			assert.Nil(t, def.Declines, "%s must not support declining", step)
		}
	}
}

func TestAffirmationValidator(t *testing.T) {
	def, _ := Lookup(models.StepConsent)
	now := time.Now()

	for _, yes := range []string{"yes", "YES", " Yes ", "agree", "I Agree"} {
		assert.True(t, def.Validate(yes, now).Valid, "%q should affirm", yes)
	}
	res := def.Validate("what does POPIA mean", now)
	assert.False(t, res.Valid)
	assert.NotEmpty(t, res.Err)
}

func TestApplyWritesOwnedFieldsOnly(t *testing.T) {
	now := time.Now()

	t.Run("consent stamps popia fields", func(t *testing.T) {
		var data models.CollectedData
		def, _ := Lookup(models.StepConsent)
		def.Apply(&data, "yes", now)
		assert.True(t, data.PopiaConsent)
		require.NotNil(t, data.PopiaConsentAt)
		assert.Equal(t, now, *data.PopiaConsentAt)
		assert.Empty(t, data.Parent.FirstName)
	})

	t.Run("child name appends a draft entry", func(t *testing.T) {
		var data models.CollectedData
		def, _ := Lookup(models.StepChildName)
		def.Apply(&data, "Lwazi", now)
		def.Apply(&data, "Naledi", now)
		require.Len(t, data.Children, 2)
		assert.Equal(t, "Naledi", data.LastChild().FirstName)
	})

	t.Run("child dob and allergies write the last entry", func(t *testing.T) {
		var data models.CollectedData
		data.AppendChild("Lwazi")
		data.AppendChild("Naledi")

		dob, _ := Lookup(models.StepChildDOB)
		dob.Apply(&data, "2023-02-11", now)
		allergies, _ := Lookup(models.StepChildAllergies)
		allergies.Apply(&data, "peanuts", now)

		assert.Empty(t, data.Children[0].DateOfBirth)
		assert.Equal(t, "2023-02-11", data.Children[1].DateOfBirth)
		assert.Equal(t, "peanuts", data.Children[1].Allergies)
	})

	t.Run("communication prefs map the permissive default", func(t *testing.T) {
		var data models.CollectedData
		def, _ := Lookup(models.StepCommunicationPrefs)
		def.Apply(&data, "whatsapp only", now)
		assert.Equal(t, models.CommunicationPrefs{WhatsApp: true}, data.CommunicationPrefs)
		def.Apply(&data, "surprise me", now)
		assert.Equal(t, models.CommunicationPrefs{WhatsApp: true, Email: true}, data.CommunicationPrefs)
	})

	t.Run("id document owns no field", func(t *testing.T) {
		def, _ := Lookup(models.StepIDDocument)
		assert.Nil(t, def.Apply)
	})
}

func TestPromptsExistForEverySpineStep(t *testing.T) {
	var data models.CollectedData
	data.AppendChild("Lwazi")
	for _, step := range spine {
		assert.NotEmpty(t, Prompt(step, "Sunny Days", &data), "missing prompt for %s", step)
	}
}

func TestConfirmationPromptSummarizesAnswers(t *testing.T) {
	data := models.CollectedData{
		Parent: models.ParentDetails{FirstName: "Thandi", Surname: "Mokoena", Email: "thandi@example.com"},
		Children: []models.ChildDetails{
			{FirstName: "Lwazi", DateOfBirth: "2023-02-11"},
			{FirstName: "Naledi", DateOfBirth: "2021-06-30"},
		},
		EmergencyContact: models.EmergencyContact{Name: "Gogo Dlamini", Phone: "+27831234567"},
	}
	prompt := Prompt(models.StepConfirmation, "Sunny Days", &data)
	assert.Contains(t, prompt, "Thandi Mokoena")
	assert.Contains(t, prompt, "Lwazi")
	assert.Contains(t, prompt, "Naledi")
	assert.Contains(t, prompt, "Gogo Dlamini")
}
