package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"crecheflow/internal/audit"
	"crecheflow/internal/onboarding/flow"
	"crecheflow/internal/onboarding/models"
	tenantmodels "crecheflow/internal/tenant/models"
	"crecheflow/pkg/domain"
	"crecheflow/pkg/platform/sentinel"
	"crecheflow/pkg/requestcontext"
)

// Reserved control commands, recognized at any non-terminal step ahead of
// step-specific validation so that e.g. "onboard_cancel" typed at
// PARENT_EMAIL is never misread as an email value.
const (
	CommandCancel  = "onboard_cancel"
	CommandRestart = "onboard_restart"
	CommandResume  = "onboard_resume"
)

// outbound is one queued message for the turn. A nil options slice means
// plain text; otherwise it is a quick reply.
type outbound struct {
	text    string
	options []QuickReplyOption
}

// HandleMessage executes one turn. The transport has already resolved the
// tenant id and decoded button selections into plain text.
//
// Ordering guarantee: all session mutation is durably persisted before any
// outbound send, so a delivery failure never loses accepted input.
func (s *Service) HandleMessage(ctx context.Context, tenantID domain.TenantID, channelID, text string) error {
	now := requestcontext.Now(ctx)
	s.countTurn()

	tenant, err := s.tenants.FindByID(ctx, tenantID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			// Misrouted delivery, not a user-facing condition: no session
			// work, nothing sent.
			s.log(ctx).Debug("dropping message for unresolvable tenant",
				"tenant_id", tenantID.String(), "channel_id", channelID)
			return nil
		}
		return fmt.Errorf("resolve tenant: %w", err)
	}
	if !tenant.IsActive() {
		s.log(ctx).Debug("dropping message for inactive tenant",
			"tenant_id", tenantID.String(), "channel_id", channelID)
		return nil
	}

	sess, err := s.sessions.FindActiveByIdentity(ctx, tenantID, channelID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			if !ContainsTrigger(text) {
				// Triage should have filtered this; drop rather than invent
				// a session off arbitrary text.
				return nil
			}
			return s.startSession(ctx, tenant, channelID, now)
		}
		return fmt.Errorf("load session: %w", err)
	}

	switch strings.ToLower(strings.TrimSpace(text)) {
	case CommandCancel:
		return s.abandon(ctx, tenant, sess, now)
	case CommandRestart:
		return s.restart(ctx, tenant, sess, now)
	case CommandResume:
		return s.resume(ctx, tenant, sess)
	}

	return s.advance(ctx, tenant, sess, text, now)
}

// startSession lazily creates a session on the first owned turn and walks the
// prompt-only prefix of the flow.
func (s *Service) startSession(ctx context.Context, tenant *tenantmodels.Tenant, channelID string, now time.Time) error {
	sess := models.NewSession(tenant.ID, channelID, now)
	msgs := s.promptsFrom(sess, tenant.Branding(), now)

	if err := s.sessions.Create(ctx, sess); err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	s.countStarted()
	s.emit(ctx, audit.ActionSessionStarted, sess, now)
	s.send(ctx, tenant.ID, channelID, msgs)
	return nil
}

// advance runs the current step's definition against the input.
func (s *Service) advance(ctx context.Context, tenant *tenantmodels.Tenant, sess *models.Session, text string, now time.Time) error {
	def, exists := flow.Lookup(sess.CurrentStep)
	if !exists {
		// An IN_PROGRESS session can only sit at a defined step; a miss here
		// means corrupted state, not user error.
		s.log(ctx).Error("session at undefined step",
			"session_id", sess.ID.String(), "step", sess.CurrentStep.String())
		return nil
	}
	branding := tenant.Branding()

	switch def.Kind {
	case flow.PromptOnly:
		msgs := s.promptsFrom(sess, branding, now)
		if err := s.sessions.Update(ctx, sess); err != nil {
			return fmt.Errorf("persist session: %w", err)
		}
		s.send(ctx, tenant.ID, sess.ChannelID, msgs)
		return nil

	case flow.Branch:
		selected := strings.ToLower(strings.TrimSpace(text))
		for _, opt := range def.Options {
			if opt.ID != selected {
				continue
			}
			sess.Advance(opt.Next, now)
			msgs := s.promptsFrom(sess, branding, now)
			if err := s.sessions.Update(ctx, sess); err != nil {
				return fmt.Errorf("persist session: %w", err)
			}
			s.send(ctx, tenant.ID, sess.ChannelID, msgs)
			return nil
		}
		// Free text at a branch step is not validated; re-offer the choices
		// and leave state untouched.
		s.send(ctx, tenant.ID, sess.ChannelID, []outbound{stepPrompt(def, branding, &sess.Data)})
		return nil

	case flow.ValidateAndAdvance:
		if def.Declines != nil && def.Declines(text) {
			return s.abandon(ctx, tenant, sess, now)
		}
		res := def.Validate(text, now)
		if !res.Valid {
			// Recovered locally: re-prompt, no state mutation, no fault log.
			s.countValidationFailure(sess.CurrentStep)
			s.send(ctx, tenant.ID, sess.ChannelID, []outbound{{text: res.Err}})
			return nil
		}
		if def.Apply != nil {
			def.Apply(&sess.Data, res.Normalized, now)
		}
		if sess.CurrentStep == models.StepConfirmation {
			return s.commit(ctx, tenant, sess, now)
		}
		sess.Advance(def.Next, now)
		msgs := s.promptsFrom(sess, branding, now)
		if err := s.sessions.Update(ctx, sess); err != nil {
			return fmt.Errorf("persist session: %w", err)
		}
		s.send(ctx, tenant.ID, sess.ChannelID, msgs)
		return nil
	}
	return nil
}

// abandon freezes the session; only the cancellation notice goes out.
func (s *Service) abandon(ctx context.Context, tenant *tenantmodels.Tenant, sess *models.Session, now time.Time) error {
	sess.Abandon(now)
	if err := s.sessions.Update(ctx, sess); err != nil {
		return fmt.Errorf("persist session: %w", err)
	}
	s.countAbandoned()
	s.emit(ctx, audit.ActionSessionAbandoned, sess, now)
	s.send(ctx, tenant.ID, sess.ChannelID, []outbound{{text: flow.CancellationNotice(tenant.Branding())}})
	return nil
}

// restart wipes collected data and rewinds to WELCOME; the session row
// persists.
func (s *Service) restart(ctx context.Context, tenant *tenantmodels.Tenant, sess *models.Session, now time.Time) error {
	sess.Restart(now)
	msgs := s.promptsFrom(sess, tenant.Branding(), now)
	if err := s.sessions.Update(ctx, sess); err != nil {
		return fmt.Errorf("persist session: %w", err)
	}
	s.countRestarted()
	s.emit(ctx, audit.ActionSessionRestarted, sess, now)
	s.send(ctx, tenant.ID, sess.ChannelID, msgs)
	return nil
}

// resume re-emits the current step's prompt with no state change at all, so
// repeated resumes are idempotent.
func (s *Service) resume(ctx context.Context, tenant *tenantmodels.Tenant, sess *models.Session) error {
	def, exists := flow.Lookup(sess.CurrentStep)
	if !exists {
		return nil
	}
	s.send(ctx, tenant.ID, sess.ChannelID, []outbound{stepPrompt(def, tenant.Branding(), &sess.Data)})
	return nil
}

// promptsFrom walks the prompt-only prefix starting at the session's current
// step, advancing through it, and ends with the prompt of the first step that
// waits for input.
func (s *Service) promptsFrom(sess *models.Session, branding string, now time.Time) []outbound {
	var msgs []outbound
	for {
		def, exists := flow.Lookup(sess.CurrentStep)
		if !exists {
			return msgs
		}
		if def.Kind == flow.PromptOnly {
			msgs = append(msgs, outbound{text: flow.Prompt(def.Step, branding, &sess.Data)})
			sess.Advance(def.Next, now)
			continue
		}
		msgs = append(msgs, stepPrompt(def, branding, &sess.Data))
		return msgs
	}
}

// stepPrompt renders one step's prompt, as a quick reply for branch steps.
func stepPrompt(def flow.Definition, branding string, data *models.CollectedData) outbound {
	msg := outbound{text: flow.Prompt(def.Step, branding, data)}
	if def.Kind == flow.Branch {
		msg.options = make([]QuickReplyOption, len(def.Options))
		for i, opt := range def.Options {
			msg.options[i] = QuickReplyOption{ID: opt.ID, Title: opt.Title}
		}
	}
	return msg
}

// log returns the engine logger with the inbound provider message id attached
// when the transport recorded one, for cross-system correlation.
func (s *Service) log(ctx context.Context) *slog.Logger {
	if id := requestcontext.MessageID(ctx); id != "" {
		return s.logger.With("message_id", id)
	}
	return s.logger
}

// send delivers queued messages after state is durable. A failed send is
// logged, not returned: the user recovers with onboard_resume.
func (s *Service) send(ctx context.Context, tenantID domain.TenantID, channelID string, msgs []outbound) {
	for _, msg := range msgs {
		var err error
		if msg.options != nil {
			err = s.messenger.SendQuickReply(ctx, tenantID, channelID, msg.text, msg.options)
		} else {
			err = s.messenger.SendText(ctx, tenantID, channelID, msg.text)
		}
		if err != nil {
			s.log(ctx).Warn("outbound send failed",
				"tenant_id", tenantID.String(), "channel_id", channelID, "error", err)
		}
	}
}

func (s *Service) emit(ctx context.Context, action audit.Action, sess *models.Session, now time.Time) {
	event := audit.NewEvent(action, sess.TenantID, sess.ID, sess.ChannelID, now)
	if err := s.audit.Emit(ctx, event); err != nil {
		s.logger.Warn("audit emit failed", "action", string(action), "error", err)
	}
}

func (s *Service) countTurn() {
	if s.metrics != nil {
		s.metrics.TurnsHandled.Inc()
	}
}

func (s *Service) countStarted() {
	if s.metrics != nil {
		s.metrics.SessionsStarted.Inc()
	}
}

func (s *Service) countAbandoned() {
	if s.metrics != nil {
		s.metrics.SessionsAbandoned.Inc()
	}
}

func (s *Service) countRestarted() {
	if s.metrics != nil {
		s.metrics.SessionsRestarted.Inc()
	}
}

func (s *Service) countCompleted() {
	if s.metrics != nil {
		s.metrics.SessionsCompleted.Inc()
	}
}

func (s *Service) countValidationFailure(step models.Step) {
	if s.metrics != nil {
		s.metrics.ValidationFailures.WithLabelValues(step.String()).Inc()
	}
}

func (s *Service) countRegistrationError() {
	if s.metrics != nil {
		s.metrics.RegistrationErrors.Inc()
	}
}
