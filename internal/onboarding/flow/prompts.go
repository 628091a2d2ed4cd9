package flow

import (
	"fmt"
	"strings"

	"crecheflow/internal/onboarding/models"
)

// Prompt returns the outbound text sent when the conversation arrives at a
// step. Branding is the tenant's trading name (falling back to legal name);
// data supplies interpolated answers for the later steps.
func Prompt(step models.Step, branding string, data *models.CollectedData) string {
	switch step {
	case models.StepWelcome:
		return fmt.Sprintf("Welcome to %s! I'll help you register yourself and your children. It only takes a few minutes, and you can pause any time and pick up where you left off by sending onboard_resume.", branding)
	case models.StepConsent:
		return fmt.Sprintf("Before we start: %s processes your personal information under the Protection of Personal Information Act (POPIA) to manage your enrolment. Reply YES to consent, or NO to cancel.", branding)
	case models.StepParentName:
		return "Great! What is your first name?"
	case models.StepParentSurname:
		return "And your surname?"
	case models.StepParentEmail:
		return "What email address should we use for you?"
	case models.StepParentIDNumber:
		return "Please enter your 13-digit SA ID number, or type skip."
	case models.StepChildName:
		return "Now let's add your child. What is their first name?"
	case models.StepChildDOB:
		return childPrompt(data, "What is %s's date of birth? (DD/MM/YYYY)", "What is the child's date of birth? (DD/MM/YYYY)")
	case models.StepChildAllergies:
		return childPrompt(data, "Does %s have any allergies or medical conditions we should know about? Type \"none\" if not.", "Any allergies or medical conditions we should know about? Type \"none\" if not.")
	case models.StepChildAnother:
		return "Would you like to add another child?"
	case models.StepEmergencyContactName:
		return "Nearly there. Who should we contact in an emergency? Please give their full name."
	case models.StepEmergencyContactPhone:
		return "What is their phone number?"
	case models.StepEmergencyContactRelation:
		return "What is their relationship to the children? (e.g. gogo, uncle, neighbour)"
	case models.StepIDDocument:
		return "Please send a photo of your ID document, or type skip to provide it at the school later."
	case models.StepFeeAgreement:
		return fmt.Sprintf("%s's fee schedule will be emailed to you with your welcome pack. Reply YES to acknowledge the fees, or NO to cancel.", branding)
	case models.StepCommunicationPrefs:
		return "How would you like to receive updates from us? Reply \"whatsapp only\", \"email only\", or \"both\"."
	case models.StepConfirmation:
		return confirmationPrompt(data)
	default:
		return ""
	}
}

// CancellationNotice is sent when the user abandons the onboarding.
func CancellationNotice(branding string) string {
	return fmt.Sprintf("No problem, your registration with %s has been cancelled. Send \"register\" any time to start again.", branding)
}

// CompletionNotice is sent once records have been created.
func CompletionNotice(branding string, data *models.CollectedData) string {
	return fmt.Sprintf("All done! Welcome to %s, %s. We've registered %s and will be in touch with your welcome pack shortly.",
		branding, data.Parent.FirstName, childNames(data))
}

// CompletionFailureNotice is the generic apology sent when record creation
// fails. The session stays retriable, so the user can simply answer again.
func CompletionFailureNotice() string {
	return "Sorry, something went wrong on our side while finishing your registration. Please reply YES again in a moment to retry."
}

func confirmationPrompt(data *models.CollectedData) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Please check your details:\n")
	fmt.Fprintf(&b, "Parent: %s %s (%s)\n", data.Parent.FirstName, data.Parent.Surname, data.Parent.Email)
	for _, child := range data.Children {
		fmt.Fprintf(&b, "Child: %s, born %s\n", child.FirstName, child.DateOfBirth)
	}
	fmt.Fprintf(&b, "Emergency contact: %s (%s)\n", data.EmergencyContact.Name, data.EmergencyContact.Phone)
	b.WriteString("Reply YES to confirm and finish.")
	return b.String()
}

func childPrompt(data *models.CollectedData, withName, fallback string) string {
	if child := data.LastChild(); child != nil {
		return fmt.Sprintf(withName, child.FirstName)
	}
	return fallback
}

func childNames(data *models.CollectedData) string {
	names := make([]string, 0, len(data.Children))
	for _, child := range data.Children {
		names = append(names, child.FirstName)
	}
	switch len(names) {
	case 0:
		return "your family"
	case 1:
		return names[0]
	default:
		return strings.Join(names[:len(names)-1], ", ") + " and " + names[len(names)-1]
	}
}
