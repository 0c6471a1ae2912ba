package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cobrefacil/lembra/internal/db"
	"github.com/cobrefacil/lembra/internal/domain"
	"github.com/cobrefacil/lembra/internal/importer"
)

// CobrancaRequest is the body of a manual charge creation.
type CobrancaRequest struct {
	RegraID          string                 `json:"regra_id"`
	NomeDestinatario string                 `json:"nome_destinatario"`
	Email            string                 `json:"email,omitempty"`
	Telefone         string                 `json:"telefone,omitempty"`
	DataVencimento   string                 `json:"data_vencimento"`
	Payload          map[string]interface{} `json:"payload,omitempty"`
	UsuarioID        string                 `json:"usuario_id,omitempty"`
	DisparoImediato  bool                   `json:"disparo_imediato,omitempty"`
}

// CriarCobranca handles POST /v1/cobrancas: a manual charge, queued for the
// scheduler like any imported one.
func (h *Handler) CriarCobranca(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := TenantID(ctx)

	var req CobrancaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return
	}

	if req.RegraID == "" || req.NomeDestinatario == "" || req.DataVencimento == "" {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Missing required fields",
			"regra_id, nome_destinatario and data_vencimento are required")
		return
	}

	regraID, err := uuid.Parse(req.RegraID)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid regra_id", "regra_id must be a valid UUID")
		return
	}

	regra, err := h.repo.BuscarRegra(ctx, tenantID, regraID)
	if errors.Is(err, db.ErrNaoEncontrado) {
		h.writeError(w, http.StatusNotFound, "not_found", "Billing rule not found", "")
		return
	}
	if err != nil {
		h.logger.Error("failed to fetch rule", zap.Error(err), zap.String("regra_id", req.RegraID))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to fetch billing rule", "")
		return
	}
	if !regra.Ativa {
		h.writeError(w, http.StatusUnprocessableEntity, "inactive_rule", "Billing rule is inactive", "")
		return
	}

	cobranca := &db.Cobranca{
		ID:               uuid.New(),
		TenantID:         tenantID,
		RegraID:          regra.ID,
		NomeDestinatario: req.NomeDestinatario,
		Status:           db.CobrancaPendente,
	}

	switch regra.Canal {
	case db.CanalEmail:
		email, err := domain.NovoEmail(req.Email)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid recipient",
				"an email channel rule requires a valid email")
			return
		}
		s := email.String()
		cobranca.EmailDestinatario = &s
	case db.CanalSMS, db.CanalWhatsApp:
		telefone, err := domain.NovoTelefone(req.Telefone)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid recipient",
				"an sms/whatsapp channel rule requires a valid E.164 phone")
			return
		}
		s := telefone.String()
		cobranca.TelefoneDestinatario = &s
	}

	vencimento, err := importer.ParseDataVencimento(req.DataVencimento)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid due date", err.Error())
		return
	}
	agora := time.Now()
	cobranca.DataVencimento = vencimento
	if req.DisparoImediato {
		cobranca.DataDisparo = agora
	} else {
		cobranca.DataDisparo = db.CalcularDataDisparo(vencimento, regra.DiasAntes, agora)
	}

	if req.UsuarioID != "" {
		usuarioID, err := uuid.Parse(req.UsuarioID)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid usuario_id", "usuario_id must be a valid UUID")
			return
		}
		cobranca.CriadaPorUsuarioID = &usuarioID
	}

	if len(req.Payload) > 0 {
		raw, err := json.Marshal(req.Payload)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid payload", "")
			return
		}
		cobranca.Payload = raw
	}

	if err := h.repo.CriarCobranca(ctx, cobranca); err != nil {
		h.logger.Error("failed to create charge",
			zap.Error(err),
			zap.String("tenant_id", tenantID.String()),
		)
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to create charge", "")
		return
	}

	h.logger.Info("charge created",
		zap.String("id", cobranca.ID.String()),
		zap.String("tenant_id", tenantID.String()),
		zap.Time("data_disparo", cobranca.DataDisparo),
	)

	h.writeJSON(w, http.StatusCreated, cobranca)
}

// BuscarCobranca handles GET /v1/cobrancas/{id}.
func (h *Handler) BuscarCobranca(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := TenantID(ctx)

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid charge ID", "ID must be a valid UUID")
		return
	}

	cobranca, err := h.repo.BuscarCobranca(ctx, tenantID, id)
	if errors.Is(err, db.ErrNaoEncontrado) {
		h.writeError(w, http.StatusNotFound, "not_found", "Charge not found", "")
		return
	}
	if err != nil {
		h.logger.Error("failed to get charge", zap.Error(err), zap.String("id", id.String()))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to fetch charge", "")
		return
	}

	h.writeJSON(w, http.StatusOK, cobranca)
}

// ListarCobrancas handles GET /v1/cobrancas?limit=20&offset=0.
func (h *Handler) ListarCobrancas(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := TenantID(ctx)
	limit, offset := paginacao(r)

	cobrancas, err := h.repo.ListarCobrancasPorTenant(ctx, tenantID, limit, offset)
	if err != nil {
		h.logger.Error("failed to list charges", zap.Error(err), zap.String("tenant_id", tenantID.String()))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to list charges", "")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data":   cobrancas,
		"limit":  limit,
		"offset": offset,
		"count":  len(cobrancas),
	})
}

// CancelarCobranca handles POST /v1/cobrancas/{id}/cancelar. Only pending
// charges can be cancelled: anything the scheduler already touched stays.
func (h *Handler) CancelarCobranca(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := TenantID(ctx)

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid charge ID", "ID must be a valid UUID")
		return
	}

	cancelada, err := h.repo.CancelarCobranca(ctx, tenantID, id)
	if errors.Is(err, db.ErrNaoEncontrado) {
		h.writeError(w, http.StatusNotFound, "not_found", "Charge not found", "")
		return
	}
	if err != nil {
		h.logger.Error("failed to cancel charge", zap.Error(err), zap.String("id", id.String()))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to cancel charge", "")
		return
	}
	if !cancelada {
		h.writeError(w, http.StatusConflict, "not_cancellable",
			"Charge is not pending", "only pending charges can be cancelled")
		return
	}

	h.logger.Info("charge cancelled",
		zap.String("id", id.String()),
		zap.String("tenant_id", tenantID.String()),
	)

	h.writeJSON(w, http.StatusOK, map[string]string{
		"id":     id.String(),
		"status": db.CobrancaCancelada,
	})
}
