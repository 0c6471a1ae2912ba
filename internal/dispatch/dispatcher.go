// Package dispatch turns a claimed charge into a provider send: it resolves
// the channel from the owning rule, renders the rule's template with the
// charge payload and records one delivery row per resolved attempt.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cobrefacil/lembra/internal/db"
	"github.com/cobrefacil/lembra/internal/metrics"
	"github.com/cobrefacil/lembra/internal/template"
)

// Repositorio is the slice of the repository the dispatcher needs.
type Repositorio interface {
	BuscarRegra(ctx context.Context, tenantID, id uuid.UUID) (*db.RegraCobranca, error)
	CriarHistoricoNotificacao(ctx context.Context, h *db.HistoricoNotificacao) error
	EstaSuprimido(ctx context.Context, tenantID uuid.UUID, destinatario, canal string) (bool, error)
}

type Dispatcher struct {
	repo     Repositorio
	sender   Sender
	renderer *template.Renderer
	logger   *zap.Logger
}

func New(repo Repositorio, sender Sender, renderer *template.Renderer, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		repo:     repo,
		sender:   sender,
		renderer: renderer,
		logger:   logger,
	}
}

// Processar renders and sends one claimed charge. On success the delivery
// record is created with status enviado and nil is returned. On failure the
// returned error carries the retry classification (EhPermanente); permanent
// failures also get a terminal erro_envio delivery record. Transient
// failures leave no delivery row; the next attempt will create one.
func (d *Dispatcher) Processar(ctx context.Context, c *db.Cobranca) error {
	regra, err := d.repo.BuscarRegra(ctx, c.TenantID, c.RegraID)
	if err != nil {
		if errors.Is(err, db.ErrNaoEncontrado) {
			return Permanente("", fmt.Errorf("regra %s não existe: %w", c.RegraID, err))
		}
		return Transitorio(fmt.Errorf("buscar regra: %w", err))
	}

	destinatario, err := resolverDestinatario(c, regra.Canal)
	if err != nil {
		return Permanente("", err)
	}

	suprimido, err := d.repo.EstaSuprimido(ctx, c.TenantID, destinatario, regra.Canal)
	if err != nil {
		return Transitorio(fmt.Errorf("consultar supressão: %w", err))
	}
	if suprimido {
		sendErr := Permanente("Suprimido", fmt.Errorf("destinatário suprimido por reclamação ou descadastro"))
		d.registrarFalhaPermanente(ctx, c, regra, destinatario, "", sendErr)
		metrics.RecordDisparo(regra.Canal, "permanente")
		return sendErr
	}

	vars, err := variaveisDoPayload(c)
	if err != nil {
		return Permanente("", err)
	}

	corpo, err := d.renderer.Render(regra.Modelo, vars)
	if err != nil {
		return Permanente("", fmt.Errorf("renderizar modelo: %w", err))
	}

	var assunto string
	if regra.Canal == db.CanalEmail {
		if assunto, err = d.renderer.Render(regra.Assunto, vars); err != nil {
			return Permanente("", fmt.Errorf("renderizar assunto: %w", err))
		}
	}

	envio := &Envio{
		TenantID:     c.TenantID,
		CobrancaID:   c.ID,
		Canal:        regra.Canal,
		Destinatario: destinatario,
		Assunto:      assunto,
		Corpo:        corpo,
	}

	inicio := time.Now()
	mensagemID, err := d.sender.Enviar(ctx, envio)
	metrics.RecordDisparoLatency(regra.Canal, time.Since(inicio))

	if err != nil {
		if EhTimeout(err) {
			err = Transitorio(fmt.Errorf("tempo de envio esgotado: %w", err))
		}
		if EhPermanente(err) {
			d.registrarFalhaPermanente(ctx, c, regra, destinatario, assunto, err)
			metrics.RecordDisparo(regra.Canal, "permanente")
			return err
		}
		metrics.RecordDisparo(regra.Canal, "transitorio")
		return err
	}

	agora := time.Now()
	historico := &db.HistoricoNotificacao{
		ID:                 uuid.New(),
		TenantID:           c.TenantID,
		CobrancaID:         c.ID,
		RegraID:            c.RegraID,
		Canal:              regra.Canal,
		Status:             db.NotifEnviado,
		Destinatario:       destinatario,
		Assunto:            assunto,
		EnviadoEm:          &agora,
		MensagemProvedorID: &mensagemID,
		CriadoPorUsuarioID: c.CriadaPorUsuarioID,
	}

	if err := d.repo.CriarHistoricoNotificacao(ctx, historico); err != nil {
		// The provider accepted the message; failing the charge now would
		// resend it. Surface the inconsistency in the log instead.
		d.logger.Error("message sent but delivery record not persisted",
			zap.Error(err),
			zap.String("cobranca_id", c.ID.String()),
			zap.String("mensagem_provedor_id", mensagemID),
		)
	}

	metrics.RecordDisparo(regra.Canal, "enviado")

	d.logger.Info("charge dispatched",
		zap.String("cobranca_id", c.ID.String()),
		zap.String("tenant_id", c.TenantID.String()),
		zap.String("canal", regra.Canal),
		zap.String("mensagem_provedor_id", mensagemID),
	)

	return nil
}

func (d *Dispatcher) registrarFalhaPermanente(ctx context.Context, c *db.Cobranca, regra *db.RegraCobranca, destinatario, assunto string, sendErr error) {
	msg := sendErr.Error()
	historico := &db.HistoricoNotificacao{
		ID:                 uuid.New(),
		TenantID:           c.TenantID,
		CobrancaID:         c.ID,
		RegraID:            c.RegraID,
		Canal:              regra.Canal,
		Status:             db.NotifErroEnvio,
		Destinatario:       destinatario,
		Assunto:            assunto,
		MensagemErro:       &msg,
		CriadoPorUsuarioID: c.CriadaPorUsuarioID,
	}
	if codigo := CodigoProvedor(sendErr); codigo != "" {
		historico.CodigoErroProvedor = &codigo
	}

	if err := d.repo.CriarHistoricoNotificacao(ctx, historico); err != nil {
		d.logger.Error("failed to persist permanent-failure record",
			zap.Error(err),
			zap.String("cobranca_id", c.ID.String()),
		)
	}
}

// resolverDestinatario picks the recipient identity the channel requires.
func resolverDestinatario(c *db.Cobranca, canal string) (string, error) {
	switch canal {
	case db.CanalEmail:
		if c.EmailDestinatario == nil || *c.EmailDestinatario == "" {
			return "", fmt.Errorf("cobrança %s sem e-mail para canal email", c.ID)
		}
		return *c.EmailDestinatario, nil
	case db.CanalSMS, db.CanalWhatsApp:
		if c.TelefoneDestinatario == nil || *c.TelefoneDestinatario == "" {
			return "", fmt.Errorf("cobrança %s sem telefone para canal %s", c.ID, canal)
		}
		return *c.TelefoneDestinatario, nil
	default:
		return "", fmt.Errorf("canal desconhecido: %s", canal)
	}
}

// variaveisDoPayload merges the charge's custom payload with the variables
// every template can rely on.
func variaveisDoPayload(c *db.Cobranca) (map[string]interface{}, error) {
	vars := map[string]interface{}{}
	if len(c.Payload) > 0 {
		if err := json.Unmarshal(c.Payload, &vars); err != nil {
			return nil, fmt.Errorf("payload da cobrança inválido: %w", err)
		}
	}

	vars["nome"] = c.NomeDestinatario
	vars["vencimento"] = c.DataVencimento.Format("02/01/2006")

	return vars, nil
}
