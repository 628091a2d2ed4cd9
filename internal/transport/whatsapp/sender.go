package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"crecheflow/internal/onboarding/service"
	tenantmodels "crecheflow/internal/tenant/models"
	"crecheflow/pkg/domain"
)

const defaultGraphBaseURL = "https://graph.facebook.com/v19.0"

// SenderDirectory resolves the tenant whose phone number id an outbound
// message must be sent from.
type SenderDirectory interface {
	FindByID(ctx context.Context, tenantID domain.TenantID) (*tenantmodels.Tenant, error)
}

// Sender delivers outbound messages through the Cloud API. It implements the
// engine's Messenger contract.
type Sender struct {
	client      *http.Client
	directory   SenderDirectory
	accessToken string
	baseURL     string
	logger      *slog.Logger
}

// SenderOption configures the sender.
type SenderOption func(s *Sender)

// WithBaseURL overrides the Graph API base URL, for tests and stubs.
func WithBaseURL(baseURL string) SenderOption {
	return func(s *Sender) {
		s.baseURL = baseURL
	}
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) SenderOption {
	return func(s *Sender) {
		s.client = client
	}
}

// NewSender constructs a Cloud API sender.
func NewSender(directory SenderDirectory, accessToken string, logger *slog.Logger, opts ...SenderOption) *Sender {
	s := &Sender{
		client:      &http.Client{Timeout: 10 * time.Second},
		directory:   directory,
		accessToken: accessToken,
		baseURL:     defaultGraphBaseURL,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SendText delivers a plain text message.
func (s *Sender) SendText(ctx context.Context, tenantID domain.TenantID, channelID, text string) error {
	return s.deliver(ctx, tenantID, map[string]any{
		"messaging_product": "whatsapp",
		"to":                channelID,
		"type":              "text",
		"text":              map[string]any{"body": text},
	})
}

// SendQuickReply delivers an interactive button message. The Cloud API caps
// button messages at three choices, which covers every branch in the flow.
func (s *Sender) SendQuickReply(ctx context.Context, tenantID domain.TenantID, channelID, prompt string, options []service.QuickReplyOption) error {
	buttons := make([]map[string]any, 0, len(options))
	for _, opt := range options {
		buttons = append(buttons, map[string]any{
			"type":  "reply",
			"reply": map[string]any{"id": opt.ID, "title": opt.Title},
		})
	}
	return s.deliver(ctx, tenantID, map[string]any{
		"messaging_product": "whatsapp",
		"to":                channelID,
		"type":              "interactive",
		"interactive": map[string]any{
			"type":   "button",
			"body":   map[string]any{"text": prompt},
			"action": map[string]any{"buttons": buttons},
		},
	})
}

func (s *Sender) deliver(ctx context.Context, tenantID domain.TenantID, payload map[string]any) error {
	tenant, err := s.directory.FindByID(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("resolve sender tenant: %w", err)
	}
	if tenant.WhatsAppPhoneID == "" {
		return fmt.Errorf("tenant %s has no whatsapp phone number id", tenantID.String())
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode outbound payload: %w", err)
	}

	url := fmt.Sprintf("%s/%s/messages", s.baseURL, tenant.WhatsAppPhoneID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build outbound request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.accessToken)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("deliver message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		s.logger.Warn("cloud api rejected message",
			"status", resp.StatusCode, "phone_number_id", tenant.WhatsAppPhoneID)
		return fmt.Errorf("cloud api status %d: %s", resp.StatusCode, string(detail))
	}
	return nil
}
