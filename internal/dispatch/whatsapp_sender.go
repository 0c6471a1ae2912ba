package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/cobrefacil/lembra/internal/db"
)

// WhatsAppSender delivers WhatsApp reminders through the provider's HTTP API.
type WhatsAppSender struct {
	client  *http.Client
	baseURL string
	token   string
	logger  *zap.Logger
}

type WhatsAppConfig struct {
	APIURL  string
	Token   string
	Timeout time.Duration
}

// NewWhatsAppSender creates a new WhatsApp sender
func NewWhatsAppSender(logger *zap.Logger, cfg WhatsAppConfig) *WhatsAppSender {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}

	return &WhatsAppSender{
		client:  &http.Client{Timeout: timeout},
		baseURL: cfg.APIURL,
		token:   cfg.Token,
		logger:  logger,
	}
}

type whatsappRequest struct {
	To   string `json:"to"`
	Body string `json:"body"`
}

type whatsappResponse struct {
	MessageID string `json:"message_id"`
	Error     string `json:"error,omitempty"`
}

// Enviar posts one message to the provider and returns its message id.
func (s *WhatsAppSender) Enviar(ctx context.Context, envio *Envio) (string, error) {
	if envio.Canal != db.CanalWhatsApp {
		return "", Permanente("", fmt.Errorf("whatsapp sender only supports whatsapp, got: %s", envio.Canal))
	}

	body, err := json.Marshal(whatsappRequest{
		To:   envio.Destinatario,
		Body: envio.Corpo,
	})
	if err != nil {
		return "", Permanente("", fmt.Errorf("marshal whatsapp request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return "", Permanente("", fmt.Errorf("create whatsapp request: %w", err))
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.token)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", Transitorio(fmt.Errorf("whatsapp request failed: %w", err))
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var parsed whatsappResponse
	_ = json.Unmarshal(respBody, &parsed)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		s.logger.Info("whatsapp message sent",
			zap.String("cobranca_id", envio.CobrancaID.String()),
			zap.String("destinatario", envio.Destinatario),
			zap.String("message_id", parsed.MessageID),
		)
		return parsed.MessageID, nil

	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return "", Transitorio(fmt.Errorf("whatsapp provider returned %d: %s", resp.StatusCode, parsed.Error))

	default:
		// Remaining 4xx: invalid recipient or rejected content.
		return "", Permanente(fmt.Sprintf("HTTP_%d", resp.StatusCode),
			fmt.Errorf("whatsapp provider rejected message: %s", parsed.Error))
	}
}

// SupportsChannel checks if this sender supports the WhatsApp channel
func (s *WhatsAppSender) SupportsChannel(canal string) bool {
	return canal == db.CanalWhatsApp
}
