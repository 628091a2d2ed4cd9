package service

import (
	"context"
	"fmt"
	"time"

	"crecheflow/internal/audit"
	familymodels "crecheflow/internal/family/models"
	"crecheflow/internal/onboarding/flow"
	"crecheflow/internal/onboarding/models"
	"crecheflow/internal/onboarding/validate"
	tenantmodels "crecheflow/internal/tenant/models"
	"crecheflow/pkg/domain"
)

// commit materializes the accumulated answers into durable records, exactly
// once. On registrar failure the session is left at CONFIRMATION so the next
// affirming reply retries; the registrar's session-id idempotency makes the
// retry safe even if the failure happened after records were written.
func (s *Service) commit(ctx context.Context, tenant *tenantmodels.Tenant, sess *models.Session, now time.Time) error {
	reg := buildRegistration(sess, now)

	parentID, err := s.registrar.RegisterFamily(ctx, reg)
	if err != nil {
		// A lost registration is a system fault, unlike ordinary validation
		// failures.
		s.log(ctx).Error("registration commit failed",
			"tenant_id", sess.TenantID.String(),
			"session_id", sess.ID.String(),
			"error", err)
		s.countRegistrationError()
		s.emit(ctx, audit.ActionRegistrationFailed, sess, now)
		s.send(ctx, tenant.ID, sess.ChannelID, []outbound{{text: flow.CompletionFailureNotice()}})
		return nil
	}

	sess.Complete(parentID, now)
	if err := s.sessions.Update(ctx, sess); err != nil {
		// Records exist but the session still says IN_PROGRESS. The user's
		// next affirming reply re-runs the idempotent registrar and retries
		// this update.
		return fmt.Errorf("finalize session: %w", err)
	}

	s.countCompleted()
	s.emit(ctx, audit.ActionSessionCompleted, sess, now)
	s.send(ctx, tenant.ID, sess.ChannelID, []outbound{{text: flow.CompletionNotice(tenant.Branding(), &sess.Data)}})
	return nil
}

// buildRegistration maps collected answers onto family records. The phone and
// whatsapp numbers are the originating channel identity; children inherit the
// parent's surname and share the emergency contact.
func buildRegistration(sess *models.Session, now time.Time) *familymodels.Registration {
	data := &sess.Data

	idNumber := data.Parent.IDNumber
	if idNumber == validate.Skip {
		idNumber = ""
	}

	parent := familymodels.Parent{
		ID:               domain.NewParentID(),
		TenantID:         sess.TenantID,
		FirstName:        data.Parent.FirstName,
		LastName:         data.Parent.Surname,
		Email:            data.Parent.Email,
		Phone:            sess.ChannelID,
		WhatsApp:         sess.ChannelID,
		IDNumber:         idNumber,
		WhatsAppOptIn:    true,
		PreferredContact: preferredContact(data.CommunicationPrefs),
		CreatedAt:        now,
	}

	children := make([]familymodels.Child, 0, len(data.Children))
	for _, entry := range data.Children {
		dob, _ := time.Parse("2006-01-02", entry.DateOfBirth)
		children = append(children, familymodels.Child{
			ID:                    domain.NewChildID(),
			TenantID:              sess.TenantID,
			ParentID:              parent.ID,
			FirstName:             entry.FirstName,
			LastName:              data.Parent.Surname,
			DateOfBirth:           dob,
			MedicalNotes:          entry.Allergies,
			EmergencyContactName:  data.EmergencyContact.Name,
			EmergencyContactPhone: data.EmergencyContact.Phone,
			CreatedAt:             now,
		})
	}

	return &familymodels.Registration{
		SessionID: sess.ID,
		TenantID:  sess.TenantID,
		Parent:    parent,
		Children:  children,
	}
}

func preferredContact(prefs models.CommunicationPrefs) familymodels.PreferredContact {
	switch {
	case prefs.WhatsApp && prefs.Email:
		return familymodels.PreferredContactBoth
	case prefs.Email:
		return familymodels.PreferredContactEmail
	default:
		return familymodels.PreferredContactWhatsApp
	}
}
