// Package whatsapp is the WhatsApp Cloud API transport: the inbound webhook
// that turns deliveries into engine turns, and the outbound sender. It should
// delegate to the onboarding engine without embedding business logic so
// transport concerns remain isolated.
package whatsapp

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	tenantmodels "crecheflow/internal/tenant/models"
	"crecheflow/pkg/domain"
	"crecheflow/pkg/requestcontext"
)

// Engine is the conversation engine the webhook hands decoded turns to.
type Engine interface {
	ShouldHandle(ctx context.Context, tenantID domain.TenantID, channelID, text string) (bool, error)
	HandleMessage(ctx context.Context, tenantID domain.TenantID, channelID, text string) error
}

// TenantResolver maps the delivery's phone number id onto a tenant.
type TenantResolver interface {
	FindByWhatsAppPhoneID(ctx context.Context, phoneID string) (*tenantmodels.Tenant, error)
}

// Webhook receives Cloud API deliveries.
type Webhook struct {
	engine      Engine
	tenants     TenantResolver
	verifyToken string
	logger      *slog.Logger
}

// NewWebhook constructs the inbound webhook handler.
func NewWebhook(engine Engine, tenants TenantResolver, verifyToken string, logger *slog.Logger) *Webhook {
	return &Webhook{
		engine:      engine,
		tenants:     tenants,
		verifyToken: verifyToken,
		logger:      logger,
	}
}

// Register mounts the webhook routes.
func (h *Webhook) Register(r chi.Router) {
	r.Get("/webhook", h.handleVerify)
	r.Post("/webhook", h.handleInbound)
}

// handleVerify answers Meta's subscription handshake by echoing the challenge
// when the verify token matches.
func (h *Webhook) handleVerify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("hub.mode") != "subscribe" || q.Get("hub.verify_token") != h.verifyToken {
		w.WriteHeader(http.StatusForbidden)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(q.Get("hub.challenge")))
}

// inboundPayload is the slice of the Cloud API webhook envelope this service
// reads. Everything else is ignored.
type inboundPayload struct {
	Entry []struct {
		Changes []struct {
			Value struct {
				Metadata struct {
					PhoneNumberID string `json:"phone_number_id"`
				} `json:"metadata"`
				Messages []inboundMessage `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

type inboundMessage struct {
	ID   string `json:"id"`
	From string `json:"from"`
	Type string `json:"type"`
	Text struct {
		Body string `json:"body"`
	} `json:"text"`
	Interactive struct {
		ButtonReply struct {
			ID string `json:"id"`
		} `json:"button_reply"`
	} `json:"interactive"`
	Image struct {
		ID string `json:"id"`
	} `json:"image"`
}

// handleInbound decodes deliveries and dispatches each message as one turn.
// It always answers 200: Meta retries non-2xx responses, and a redelivery
// storm is worse than a dropped turn the user can resend.
func (h *Webhook) handleInbound(w http.ResponseWriter, r *http.Request) {
	var payload inboundPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.logger.Warn("undecodable webhook payload", "error", err)
		w.WriteHeader(http.StatusOK)
		return
	}

	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			phoneID := change.Value.Metadata.PhoneNumberID
			for _, msg := range change.Value.Messages {
				h.dispatch(r.Context(), phoneID, msg)
			}
		}
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Webhook) dispatch(ctx context.Context, phoneID string, msg inboundMessage) {
	tenant, err := h.tenants.FindByWhatsAppPhoneID(ctx, phoneID)
	if err != nil {
		// Deliveries for unprovisioned numbers are dropped without a reply.
		h.logger.Debug("delivery for unknown phone number id", "phone_number_id", phoneID)
		return
	}

	text, ok := messageText(msg)
	if !ok {
		return
	}
	channelID := channelIdentity(msg.From)
	ctx = requestcontext.WithMessageID(ctx, msg.ID)

	owned, err := h.engine.ShouldHandle(ctx, tenant.ID, channelID, text)
	if err != nil {
		h.logger.Error("triage failed",
			"tenant_id", tenant.ID.String(), "channel_id", channelID, "error", err)
		return
	}
	if !owned {
		return
	}

	if err := h.engine.HandleMessage(ctx, tenant.ID, channelID, text); err != nil {
		h.logger.Error("turn failed",
			"tenant_id", tenant.ID.String(), "channel_id", channelID, "error", err)
	}
}

// messageText flattens the supported message shapes into the plain text the
// engine consumes. Tapped quick-reply buttons arrive as their option id, and
// an ID document photo satisfies the upload step as a non-empty answer.
func messageText(msg inboundMessage) (string, bool) {
	switch msg.Type {
	case "text":
		return msg.Text.Body, msg.Text.Body != ""
	case "interactive":
		return msg.Interactive.ButtonReply.ID, msg.Interactive.ButtonReply.ID != ""
	case "image":
		return "media:" + msg.Image.ID, msg.Image.ID != ""
	default:
		return "", false
	}
}

// channelIdentity normalizes the Cloud API sender (digits only, e.g.
// "27821234567") to the E.164 form sessions are keyed by.
func channelIdentity(from string) string {
	if strings.HasPrefix(from, "+") {
		return from
	}
	return "+" + from
}
