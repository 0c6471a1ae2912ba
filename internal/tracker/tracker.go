package tracker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cobrefacil/lembra/internal/db"
	"github.com/cobrefacil/lembra/internal/metrics"
)

// Repositorio is the slice of the repository the tracker needs.
type Repositorio interface {
	AtualizarHistoricoComLock(ctx context.Context, tenantID uuid.UUID, mensagemProvedorID string, fn func(*db.HistoricoNotificacao) (bool, error)) (*db.HistoricoNotificacao, error)
	CriarSupressao(ctx context.Context, s *db.Supressao) error
}

// Dedup filters redelivered callback events by id. Satisfied by
// *redis.DedupService.
type Dedup interface {
	Primeira(ctx context.Context, tenantID, eventoID string) (bool, error)
	Liberar(ctx context.Context, tenantID, eventoID string) error
}

// Tracker applies provider callbacks to delivery records.
type Tracker struct {
	repo   Repositorio
	dedup  Dedup // optional
	logger *zap.Logger
}

func New(repo Repositorio, dedup Dedup, logger *zap.Logger) *Tracker {
	return &Tracker{
		repo:   repo,
		dedup:  dedup,
		logger: logger,
	}
}

// Processar applies one callback event. Redelivered events (same id) and
// events for unknown provider message ids are dropped without error: both
// are routine on webhook paths, and a non-2xx response would only make the
// provider redeliver them forever.
func (t *Tracker) Processar(ctx context.Context, tenantID uuid.UUID, ev *Evento) error {
	tipo, err := NormalizarTipo(ev.Tipo, ev.CodigoErro)
	if err != nil {
		metrics.RecordCallback(ev.Tipo, "desconhecido")
		return err
	}

	reservado := false
	if t.dedup != nil && ev.ID != "" {
		primeira, err := t.dedup.Primeira(ctx, tenantID.String(), ev.ID)
		if err != nil {
			// Redis being down must not drop engagement data; the row lock
			// still serializes concurrent updates, only counter dedup is lost.
			t.logger.Warn("callback dedup unavailable, processing anyway",
				zap.Error(err),
				zap.String("evento_id", ev.ID),
			)
		} else if !primeira {
			metrics.RecordCallback(tipo, "duplicado")
			t.logger.Debug("duplicate callback dropped",
				zap.String("evento_id", ev.ID),
				zap.String("tipo", tipo),
			)
			return nil
		} else {
			reservado = true
		}
	}

	h, err := t.repo.AtualizarHistoricoComLock(ctx, tenantID, ev.MensagemProvedorID, func(h *db.HistoricoNotificacao) (bool, error) {
		return AplicarEvento(h, ev)
	})
	if errors.Is(err, db.ErrNaoEncontrado) {
		metrics.RecordCallback(tipo, "nao_encontrado")
		t.logger.Warn("callback for unknown provider message id",
			zap.String("mensagem_provedor_id", ev.MensagemProvedorID),
			zap.String("tipo", tipo),
		)
		return nil
	}
	if err != nil {
		// The event never landed; give the reservation back so the
		// provider's redelivery is not dropped as a duplicate.
		if reservado {
			if delErr := t.dedup.Liberar(ctx, tenantID.String(), ev.ID); delErr != nil {
				t.logger.Error("failed to release dedup reservation",
					zap.Error(delErr),
					zap.String("evento_id", ev.ID),
				)
			}
		}
		metrics.RecordCallback(tipo, "erro")
		return fmt.Errorf("aplicar evento: %w", err)
	}

	metrics.RecordCallback(tipo, "aplicado")

	if tipo == EventoReclamacao || tipo == EventoDescadastrado {
		if err := t.suprimir(ctx, h, tipo); err != nil {
			t.logger.Error("failed to create suppression",
				zap.Error(err),
				zap.String("destinatario", h.Destinatario),
			)
		}
	}

	t.logger.Info("callback applied",
		zap.String("mensagem_provedor_id", ev.MensagemProvedorID),
		zap.String("tipo", tipo),
		zap.String("status", h.Status.String()),
	)

	return nil
}

// suprimir blocks future sends to the recipient. Complaints and unsubscribes
// express a choice about the recipient, not about one message.
func (t *Tracker) suprimir(ctx context.Context, h *db.HistoricoNotificacao, motivo string) error {
	return t.repo.CriarSupressao(ctx, &db.Supressao{
		ID:           uuid.New(),
		TenantID:     h.TenantID,
		Destinatario: h.Destinatario,
		Canal:        h.Canal,
		Motivo:       motivo,
		CreatedAt:    time.Now(),
	})
}
