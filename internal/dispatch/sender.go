package dispatch

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Envio is a rendered message ready for a channel provider.
type Envio struct {
	TenantID     uuid.UUID
	CobrancaID   uuid.UUID
	Canal        string
	Destinatario string // e-mail address or E.164 phone, per channel
	Assunto      string // email only
	Corpo        string
}

// Sender is the uniform contract over channel providers: it delivers one
// rendered message and returns the provider message id used later to match
// delivery callbacks. Implementations classify failures with Permanente /
// Transitorio so the scheduler can decide whether to retry.
type Sender interface {
	Enviar(ctx context.Context, envio *Envio) (string, error)
	SupportsChannel(canal string) bool
}

// MultiSender routes each message to the first sender supporting its channel.
type MultiSender struct {
	senders []Sender
	logger  *zap.Logger
}

// NewMultiSender creates a router over multiple underlying senders
func NewMultiSender(logger *zap.Logger, senders ...Sender) *MultiSender {
	return &MultiSender{
		senders: senders,
		logger:  logger,
	}
}

// Enviar routes the message to the appropriate sender based on channel
func (m *MultiSender) Enviar(ctx context.Context, envio *Envio) (string, error) {
	for _, sender := range m.senders {
		if sender.SupportsChannel(envio.Canal) {
			m.logger.Debug("routing message to sender",
				zap.String("canal", envio.Canal),
				zap.String("cobranca_id", envio.CobrancaID.String()),
			)
			return sender.Enviar(ctx, envio)
		}
	}

	// A channel nobody handles is a configuration problem, not worth retrying.
	return "", Permanente("", fmt.Errorf("no sender found for channel: %s", envio.Canal))
}

// SupportsChannel checks if any underlying sender supports the channel
func (m *MultiSender) SupportsChannel(canal string) bool {
	for _, sender := range m.senders {
		if sender.SupportsChannel(canal) {
			return true
		}
	}
	return false
}

// LogSender logs messages instead of delivering them (development mode).
type LogSender struct {
	logger *zap.Logger
}

func NewLogSender(logger *zap.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Enviar(ctx context.Context, envio *Envio) (string, error) {
	s.logger.Info("logging message (development mode)",
		zap.String("canal", envio.Canal),
		zap.String("destinatario", envio.Destinatario),
		zap.String("assunto", envio.Assunto),
		zap.String("cobranca_id", envio.CobrancaID.String()),
	)
	return "log-" + uuid.NewString(), nil
}

func (s *LogSender) SupportsChannel(canal string) bool {
	return true
}
