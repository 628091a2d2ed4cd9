package service_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crecheflow/internal/audit"
	familymodels "crecheflow/internal/family/models"
	familystore "crecheflow/internal/family/store"
	"crecheflow/internal/onboarding/models"
	"crecheflow/internal/onboarding/service"
	sessionstore "crecheflow/internal/onboarding/store/session"
	tenantmodels "crecheflow/internal/tenant/models"
	tenantstore "crecheflow/internal/tenant/store"
	"crecheflow/pkg/domain"
	"crecheflow/pkg/requestcontext"
)

const channel = "+27821234567"

var fixedNow = time.Date(2026, time.August, 30, 9, 0, 0, 0, time.UTC)

type sent struct {
	channelID  string
	text       string
	quickReply bool
	options    []service.QuickReplyOption
}

type fakeMessenger struct {
	sent []sent
	err  error
}

func (m *fakeMessenger) SendText(_ context.Context, _ domain.TenantID, channelID, text string) error {
	m.sent = append(m.sent, sent{channelID: channelID, text: text})
	return m.err
}

func (m *fakeMessenger) SendQuickReply(_ context.Context, _ domain.TenantID, channelID, prompt string, options []service.QuickReplyOption) error {
	m.sent = append(m.sent, sent{channelID: channelID, text: prompt, quickReply: true, options: options})
	return m.err
}

func (m *fakeMessenger) drain() []sent {
	out := m.sent
	m.sent = nil
	return out
}

// flakyRegistrar fails on demand, delegating to the real store otherwise.
type flakyRegistrar struct {
	inner service.Registrar
	fail  bool
}

func (r *flakyRegistrar) RegisterFamily(ctx context.Context, reg *familymodels.Registration) (domain.ParentID, error) {
	if r.fail {
		return domain.ParentID{}, errors.New("records unavailable")
	}
	return r.inner.RegisterFamily(ctx, reg)
}

type harness struct {
	svc       *service.Service
	sessions  *sessionstore.InMemory
	families  *familystore.InMemory
	tenants   *tenantstore.InMemory
	messenger *fakeMessenger
	registrar *flakyRegistrar
	events    *audit.MemoryPublisher
	tenantID  domain.TenantID
	ctx       context.Context
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	tenants := tenantstore.NewInMemory()
	tenant, err := tenantmodels.NewTenant("Sunny Days Creche (Pty) Ltd", "Sunny Days", "phone-1", fixedNow)
	require.NoError(t, err)
	require.NoError(t, tenants.Create(context.Background(), tenant))

	families := familystore.NewInMemory()
	registrar := &flakyRegistrar{inner: families}
	sessions := sessionstore.NewInMemory()
	messenger := &fakeMessenger{}
	events := audit.NewMemoryPublisher()

	svc := service.New(sessions, tenants, registrar, messenger,
		service.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		service.WithAuditPublisher(events),
	)

	return &harness{
		svc:       svc,
		sessions:  sessions,
		families:  families,
		tenants:   tenants,
		messenger: messenger,
		registrar: registrar,
		events:    events,
		tenantID:  tenant.ID,
		ctx:       requestcontext.WithTime(context.Background(), fixedNow),
	}
}

// send runs one turn and returns the outbound messages it produced.
func (h *harness) send(t *testing.T, text string) []sent {
	t.Helper()
	require.NoError(t, h.svc.HandleMessage(h.ctx, h.tenantID, channel, text))
	return h.messenger.drain()
}

func (h *harness) activeSession(t *testing.T) *models.Session {
	t.Helper()
	sess, err := h.sessions.FindActiveByIdentity(h.ctx, h.tenantID, channel)
	require.NoError(t, err)
	return sess
}

type childAnswers struct {
	name, dob, allergies string
}

// walkToConfirmation drives a complete conversation up to the confirmation
// prompt.
func (h *harness) walkToConfirmation(t *testing.T, children []childAnswers) {
	t.Helper()
	h.send(t, "Hi, I'd like to register my kids")
	h.send(t, "yes")
	h.send(t, "Thandi")
	h.send(t, "Mokoena")
	h.send(t, "Thandi@Example.com")
	h.send(t, "8801015009080")
	for i, child := range children {
		if i > 0 {
			h.send(t, "child_add_another")
		}
		h.send(t, child.name)
		h.send(t, child.dob)
		h.send(t, child.allergies)
	}
	h.send(t, "child_continue")
	h.send(t, "Gogo Dlamini")
	h.send(t, "083 123 4567")
	h.send(t, "Grandmother")
	h.send(t, "skip")
	h.send(t, "yes")
	h.send(t, "both")
}

func TestTriggerStartsSession(t *testing.T) {
	h := newHarness(t)

	msgs := h.send(t, "I want to REGISTER my child")
	require.Len(t, msgs, 2, "welcome plus consent prompt")
	assert.Contains(t, msgs[0].text, "Sunny Days")
	assert.Contains(t, msgs[1].text, "POPIA")

	sess := h.activeSession(t)
	assert.Equal(t, models.StepConsent, sess.CurrentStep)
	assert.Equal(t, models.SessionStatusInProgress, sess.Status)
	assert.Equal(t, []audit.Action{audit.ActionSessionStarted}, h.events.Actions())
}

func TestNonTriggerWithoutSessionIsIgnored(t *testing.T) {
	h := newHarness(t)

	msgs := h.send(t, "hello?")
	assert.Empty(t, msgs)
	_, err := h.sessions.FindActiveByIdentity(h.ctx, h.tenantID, channel)
	assert.Error(t, err)
}

func TestUnresolvableTenantIsSilentlyDropped(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.svc.HandleMessage(h.ctx, domain.NewTenantID(), channel, "register"))
	assert.Empty(t, h.messenger.drain(), "misrouted delivery must send nothing")
}

func TestInactiveTenantIsSilentlyDropped(t *testing.T) {
	h := newHarness(t)

	tenant, err := h.tenants.FindByID(h.ctx, h.tenantID)
	require.NoError(t, err)
	tenant.Status = tenantmodels.TenantStatusInactive
	require.NoError(t, h.tenants.Update(h.ctx, tenant))

	msgs := h.send(t, "register")
	assert.Empty(t, msgs)
}

func TestShouldHandle(t *testing.T) {
	h := newHarness(t)

	t.Run("trigger phrases claim the turn with no session", func(t *testing.T) {
		for _, text := range []string{"register", "please ENROLL us", "sign up", "signup now", "can we join"} {
			owned, err := h.svc.ShouldHandle(h.ctx, h.tenantID, channel, text)
			require.NoError(t, err)
			assert.True(t, owned, "%q should trigger", text)
		}
	})

	t.Run("ordinary text is not owned without a session", func(t *testing.T) {
		owned, err := h.svc.ShouldHandle(h.ctx, h.tenantID, channel, "what are your hours?")
		require.NoError(t, err)
		assert.False(t, owned)
	})

	t.Run("any content is owned while a session is in progress", func(t *testing.T) {
		h.send(t, "register")
		owned, err := h.svc.ShouldHandle(h.ctx, h.tenantID, channel, "what are your hours?")
		require.NoError(t, err)
		assert.True(t, owned)
	})

	t.Run("terminal sessions do not claim ordinary text", func(t *testing.T) {
		h.send(t, "onboard_cancel")
		owned, err := h.svc.ShouldHandle(h.ctx, h.tenantID, channel, "what are your hours?")
		require.NoError(t, err)
		assert.False(t, owned)
	})
}

func TestValidInputAdvancesExactlyOneStep(t *testing.T) {
	h := newHarness(t)
	h.send(t, "register")
	h.send(t, "yes")
	require.Equal(t, models.StepParentName, h.activeSession(t).CurrentStep)

	msgs := h.send(t, "  Thandi  ")
	require.Len(t, msgs, 1)

	sess := h.activeSession(t)
	assert.Equal(t, models.StepParentSurname, sess.CurrentStep)
	assert.Equal(t, "Thandi", sess.Data.Parent.FirstName, "normalized value lands in the owned field")
}

func TestInvalidInputIsANoOpOnState(t *testing.T) {
	h := newHarness(t)
	h.send(t, "register")
	h.send(t, "yes")
	h.send(t, "Thandi")
	h.send(t, "Mokoena")
	before := h.activeSession(t)
	require.Equal(t, models.StepParentEmail, before.CurrentStep)

	msgs := h.send(t, "not-an-email")
	require.Len(t, msgs, 1, "exactly one re-prompt")
	assert.Contains(t, msgs[0].text, "valid email")

	after := h.activeSession(t)
	assert.Equal(t, before.CurrentStep, after.CurrentStep)
	assert.Equal(t, before.Data, after.Data)
}

func TestControlCommandsBeatStepValidation(t *testing.T) {
	h := newHarness(t)
	h.send(t, "register")
	h.send(t, "yes")
	h.send(t, "Thandi")
	h.send(t, "Mokoena")
	require.Equal(t, models.StepParentEmail, h.activeSession(t).CurrentStep)

	// Typed at PARENT_EMAIL, this must cancel, not fail email validation.
	msgs := h.send(t, "onboard_cancel")
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].text, "cancelled")

	_, err := h.sessions.FindActiveByIdentity(h.ctx, h.tenantID, channel)
	assert.Error(t, err, "abandoned session no longer matches the identity")
	assert.Contains(t, h.events.Actions(), audit.ActionSessionAbandoned)
}

func TestRestartResetsToWelcome(t *testing.T) {
	h := newHarness(t)
	h.send(t, "register")
	h.send(t, "yes")
	h.send(t, "Thandi")
	h.send(t, "Mokoena")
	h.send(t, "thandi@example.com")
	h.send(t, "skip")
	h.send(t, "Lwazi")
	sessionID := h.activeSession(t).ID

	msgs := h.send(t, "onboard_restart")
	require.Len(t, msgs, 2, "welcome plus consent prompt again")

	sess := h.activeSession(t)
	assert.Equal(t, sessionID, sess.ID, "the session row persists")
	assert.Equal(t, models.StepConsent, sess.CurrentStep)
	assert.Equal(t, models.CollectedData{}, sess.Data, "collected data wiped regardless of depth")
}

func TestResumeIsIdempotent(t *testing.T) {
	h := newHarness(t)
	h.send(t, "register")
	h.send(t, "yes")
	h.send(t, "Thandi")
	before := h.activeSession(t)

	first := h.send(t, "onboard_resume")
	second := h.send(t, "onboard_resume")
	require.Len(t, first, 1)
	assert.Equal(t, first, second, "repeated resumes produce identical prompts")
	assert.Contains(t, first[0].text, "surname")

	after := h.activeSession(t)
	assert.Equal(t, before, after, "resume makes no state change at all")
}

func TestResumeAtBranchReofffersQuickReply(t *testing.T) {
	h := newHarness(t)
	h.send(t, "register")
	h.send(t, "yes")
	h.send(t, "Thandi")
	h.send(t, "Mokoena")
	h.send(t, "thandi@example.com")
	h.send(t, "skip")
	h.send(t, "Lwazi")
	h.send(t, "11/02/2023")
	h.send(t, "none")
	require.Equal(t, models.StepChildAnother, h.activeSession(t).CurrentStep)

	msgs := h.send(t, "onboard_resume")
	require.Len(t, msgs, 1)
	assert.True(t, msgs[0].quickReply)
	require.Len(t, msgs[0].options, 2)
}

func TestDecliningConsentAbandons(t *testing.T) {
	h := newHarness(t)
	h.send(t, "register")

	msgs := h.send(t, "no")
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].text, "cancelled")
	_, err := h.sessions.FindActiveByIdentity(h.ctx, h.tenantID, channel)
	assert.Error(t, err)
}

func TestDecliningFeesAbandons(t *testing.T) {
	h := newHarness(t)
	h.send(t, "register")
	h.send(t, "yes")
	h.send(t, "Thandi")
	h.send(t, "Mokoena")
	h.send(t, "thandi@example.com")
	h.send(t, "skip")
	h.send(t, "Lwazi")
	h.send(t, "11/02/2023")
	h.send(t, "none")
	h.send(t, "child_continue")
	h.send(t, "Gogo Dlamini")
	h.send(t, "0831234567")
	h.send(t, "Grandmother")
	h.send(t, "skip")
	require.Equal(t, models.StepFeeAgreement, h.activeSession(t).CurrentStep)

	msgs := h.send(t, "no")
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].text, "cancelled")
	_, err := h.sessions.FindActiveByIdentity(h.ctx, h.tenantID, channel)
	assert.Error(t, err)
}

func TestChildLoop(t *testing.T) {
	h := newHarness(t)
	h.send(t, "register")
	h.send(t, "yes")
	h.send(t, "Thandi")
	h.send(t, "Mokoena")
	h.send(t, "thandi@example.com")
	h.send(t, "skip")
	h.send(t, "Lwazi")
	h.send(t, "11/02/2023")
	h.send(t, "peanuts")

	t.Run("allergies answer lands on a quick reply", func(t *testing.T) {
		sess := h.activeSession(t)
		require.Equal(t, models.StepChildAnother, sess.CurrentStep)
	})

	t.Run("free text at the branch re-offers choices without advancing", func(t *testing.T) {
		msgs := h.send(t, "um, yes please?")
		require.Len(t, msgs, 1)
		assert.True(t, msgs[0].quickReply)
		assert.Equal(t, models.StepChildAnother, h.activeSession(t).CurrentStep)
	})

	t.Run("add another loops to CHILD_NAME preserving children", func(t *testing.T) {
		h.send(t, "child_add_another")
		sess := h.activeSession(t)
		assert.Equal(t, models.StepChildName, sess.CurrentStep)
		require.Len(t, sess.Data.Children, 1)
		assert.Equal(t, "Lwazi", sess.Data.Children[0].FirstName)
	})

	t.Run("continue advances to the emergency contact", func(t *testing.T) {
		h.send(t, "Naledi")
		h.send(t, "05/06/2021")
		h.send(t, "none")
		h.send(t, "child_continue")
		sess := h.activeSession(t)
		assert.Equal(t, models.StepEmergencyContactName, sess.CurrentStep)
		assert.Len(t, sess.Data.Children, 2)
	})
}

func TestEndToEndCompletion(t *testing.T) {
	h := newHarness(t)
	h.walkToConfirmation(t, []childAnswers{
		{"Lwazi", "11/02/2023", "peanuts"},
		{"Naledi", "05/06/2021", "none"},
	})

	sess := h.activeSession(t)
	require.Equal(t, models.StepConfirmation, sess.CurrentStep)
	require.Len(t, sess.Data.Children, 2)
	sessionID := sess.ID

	msgs := h.send(t, "yes")
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].text, "Sunny Days", "confirmation references the trading name")

	completed, err := h.sessions.FindByID(h.ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusCompleted, completed.Status)
	assert.Equal(t, models.StepComplete, completed.CurrentStep)
	require.NotNil(t, completed.CompletedAt)
	require.False(t, completed.ParentID.IsNil())

	parent, err := h.families.FindParent(h.ctx, completed.ParentID)
	require.NoError(t, err)
	assert.Equal(t, "Thandi", parent.FirstName)
	assert.Equal(t, "Mokoena", parent.LastName)
	assert.Equal(t, "thandi@example.com", parent.Email, "email stored lowercased")
	assert.Equal(t, channel, parent.Phone, "phone is the channel identity")
	assert.Equal(t, channel, parent.WhatsApp)
	assert.Equal(t, "8801015009080", parent.IDNumber)
	assert.True(t, parent.WhatsAppOptIn)
	assert.Equal(t, familymodels.PreferredContactBoth, parent.PreferredContact)

	children, err := h.families.ListChildrenByParent(h.ctx, parent.ID)
	require.NoError(t, err)
	require.Len(t, children, 2)
	for _, child := range children {
		assert.Equal(t, "Mokoena", child.LastName, "children inherit the parent surname")
		assert.Equal(t, "Gogo Dlamini", child.EmergencyContactName)
		assert.Equal(t, "+27831234567", child.EmergencyContactPhone)
	}

	assert.Contains(t, h.events.Actions(), audit.ActionSessionCompleted)
}

func TestSkippedIDNumberIsAbsentFromRecord(t *testing.T) {
	h := newHarness(t)
	h.send(t, "register")
	h.send(t, "yes")
	h.send(t, "Thandi")
	h.send(t, "Mokoena")
	h.send(t, "thandi@example.com")
	h.send(t, "Skip")
	h.send(t, "Lwazi")
	h.send(t, "11/02/2023")
	h.send(t, "none")
	h.send(t, "child_continue")
	h.send(t, "Gogo Dlamini")
	h.send(t, "0831234567")
	h.send(t, "Grandmother")
	h.send(t, "skip")
	h.send(t, "yes")
	h.send(t, "whatsapp only")
	h.send(t, "yes")

	sess, err := h.sessions.FindByID(h.ctx, h.events.Events()[0].SessionID)
	require.NoError(t, err)
	parent, err := h.families.FindParent(h.ctx, sess.ParentID)
	require.NoError(t, err)
	assert.Empty(t, parent.IDNumber)
	assert.Equal(t, familymodels.PreferredContactWhatsApp, parent.PreferredContact)
}

func TestCompletionFailureLeavesSessionRetriable(t *testing.T) {
	h := newHarness(t)
	h.walkToConfirmation(t, []childAnswers{{"Lwazi", "11/02/2023", "none"}})
	h.registrar.fail = true

	msgs := h.send(t, "yes")
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].text, "went wrong")

	sess := h.activeSession(t)
	assert.Equal(t, models.SessionStatusInProgress, sess.Status)
	assert.Equal(t, models.StepConfirmation, sess.CurrentStep)
	assert.Contains(t, h.events.Actions(), audit.ActionRegistrationFailed)

	t.Run("retry succeeds once the fault clears", func(t *testing.T) {
		h.registrar.fail = false
		msgs := h.send(t, "yes")
		require.Len(t, msgs, 1)
		assert.Contains(t, msgs[0].text, "Sunny Days")

		completed, err := h.sessions.FindByID(h.ctx, sess.ID)
		require.NoError(t, err)
		assert.Equal(t, models.SessionStatusCompleted, completed.Status)
	})
}

func TestOutboundFailureDoesNotLoseAcceptedInput(t *testing.T) {
	h := newHarness(t)
	h.send(t, "register")
	h.send(t, "yes")

	h.messenger.err = errors.New("delivery timeout")
	require.NoError(t, h.svc.HandleMessage(h.ctx, h.tenantID, channel, "Thandi"))
	h.messenger.drain()
	h.messenger.err = nil

	sess := h.activeSession(t)
	assert.Equal(t, models.StepParentSurname, sess.CurrentStep, "state was durable before the failed send")
	assert.Equal(t, "Thandi", sess.Data.Parent.FirstName)
}

func TestTriggerAfterCompletionStartsFresh(t *testing.T) {
	h := newHarness(t)
	h.walkToConfirmation(t, []childAnswers{{"Lwazi", "11/02/2023", "none"}})
	h.send(t, "yes")

	msgs := h.send(t, "I'd like to register another child")
	require.Len(t, msgs, 2, "a fresh trigger starts over a completed session")

	sess := h.activeSession(t)
	assert.Equal(t, models.StepConsent, sess.CurrentStep)
	assert.Empty(t, sess.Data.Children)
}
