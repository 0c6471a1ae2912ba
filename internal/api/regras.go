package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cobrefacil/lembra/internal/db"
)

// RegraRequest is the body of a billing rule creation.
type RegraRequest struct {
	Nome      string `json:"nome"`
	Canal     string `json:"canal"`
	DiasAntes int    `json:"dias_antes"`
	Assunto   string `json:"assunto,omitempty"`
	Modelo    string `json:"modelo"`
}

// CriarRegra handles POST /v1/regras.
func (h *Handler) CriarRegra(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := TenantID(ctx)

	var req RegraRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return
	}

	if req.Nome == "" || req.Modelo == "" {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Missing required fields", "nome and modelo are required")
		return
	}
	if req.Canal != db.CanalEmail && req.Canal != db.CanalSMS && req.Canal != db.CanalWhatsApp {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid channel", "canal must be email, sms or whatsapp")
		return
	}
	if req.Canal == db.CanalEmail && req.Assunto == "" {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Missing subject", "email rules require assunto")
		return
	}
	if req.DiasAntes < 0 {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid offset", "dias_antes must be >= 0")
		return
	}

	regra := &db.RegraCobranca{
		ID:        uuid.New(),
		TenantID:  tenantID,
		Nome:      req.Nome,
		Canal:     req.Canal,
		DiasAntes: req.DiasAntes,
		Assunto:   req.Assunto,
		Modelo:    req.Modelo,
		Ativa:     true,
	}

	if err := h.repo.CriarRegra(ctx, regra); err != nil {
		h.logger.Error("failed to create rule", zap.Error(err), zap.String("tenant_id", tenantID.String()))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to create rule", "")
		return
	}

	h.logger.Info("billing rule created",
		zap.String("id", regra.ID.String()),
		zap.String("tenant_id", tenantID.String()),
		zap.String("canal", regra.Canal),
	)

	h.writeJSON(w, http.StatusCreated, regra)
}

// BuscarRegra handles GET /v1/regras/{id}.
func (h *Handler) BuscarRegra(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := TenantID(ctx)

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid rule ID", "ID must be a valid UUID")
		return
	}

	regra, err := h.repo.BuscarRegra(ctx, tenantID, id)
	if errors.Is(err, db.ErrNaoEncontrado) {
		h.writeError(w, http.StatusNotFound, "not_found", "Billing rule not found", "")
		return
	}
	if err != nil {
		h.logger.Error("failed to get rule", zap.Error(err), zap.String("id", id.String()))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to fetch rule", "")
		return
	}

	h.writeJSON(w, http.StatusOK, regra)
}

// ListarRegras handles GET /v1/regras?ativas=true.
func (h *Handler) ListarRegras(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := TenantID(ctx)
	somenteAtivas := r.URL.Query().Get("ativas") == "true"

	regras, err := h.repo.ListarRegrasPorTenant(ctx, tenantID, somenteAtivas)
	if err != nil {
		h.logger.Error("failed to list rules", zap.Error(err), zap.String("tenant_id", tenantID.String()))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to list rules", "")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data":  regras,
		"count": len(regras),
	})
}
