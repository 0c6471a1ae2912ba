package circuitbreaker

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/cobrefacil/lembra/internal/dispatch"
)

// ProtectedSender wraps a channel sender with a CircuitBreaker. When the
// provider behind it starts failing, the circuit opens and sends fail fast
// as transient errors, so the scheduler re-queues the charges instead of
// burning its dispatch timeout on a dead provider.
type ProtectedSender struct {
	sender  dispatch.Sender
	breaker *CircuitBreaker
	logger  *zap.Logger
}

// NewProtectedSender wraps a sender with circuit breaker protection.
func NewProtectedSender(sender dispatch.Sender, breaker *CircuitBreaker, logger *zap.Logger) *ProtectedSender {
	return &ProtectedSender{
		sender:  sender,
		breaker: breaker,
		logger:  logger,
	}
}

// Enviar attempts one send through the circuit breaker. An open circuit
// returns ErrCircuitOpen wrapped as a transient failure: the provider being
// down says nothing about the recipient, so the charge stays retryable.
// Permanent provider failures (rejected recipient, invalid number) do not
// count against the breaker; they are not a provider outage.
func (p *ProtectedSender) Enviar(ctx context.Context, envio *dispatch.Envio) (string, error) {
	if !p.breaker.Allow() {
		p.logger.Warn("circuit breaker rejected send - failing fast",
			zap.String("breaker", p.breaker.config.Name),
			zap.String("cobranca_id", envio.CobrancaID.String()),
			zap.String("canal", envio.Canal),
			zap.String("state", p.breaker.GetState().String()),
		)
		return "", dispatch.Transitorio(fmt.Errorf("%w: %s sender unavailable", ErrCircuitOpen, p.breaker.config.Name))
	}

	mensagemID, err := p.sender.Enviar(ctx, envio)
	if err != nil {
		if dispatch.EhPermanente(err) {
			return "", err
		}
		p.breaker.RecordFailure()
		p.logger.Debug("circuit breaker recorded failure",
			zap.String("breaker", p.breaker.config.Name),
			zap.Error(err),
		)
		return "", err
	}

	p.breaker.RecordSuccess()
	return mensagemID, nil
}

// SupportsChannel delegates to the underlying sender.
func (p *ProtectedSender) SupportsChannel(canal string) bool {
	return p.sender.SupportsChannel(canal)
}

// Breaker returns the underlying circuit breaker for metrics/monitoring.
func (p *ProtectedSender) Breaker() *CircuitBreaker {
	return p.breaker
}
