package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cobrefacil/lembra/internal/db"
)

// BuscarNotificacao handles GET /v1/notificacoes/{id}: one delivery record
// with its full engagement detail.
func (h *Handler) BuscarNotificacao(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := TenantID(ctx)

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid notification ID", "ID must be a valid UUID")
		return
	}

	historico, err := h.repo.BuscarHistorico(ctx, tenantID, id)
	if errors.Is(err, db.ErrNaoEncontrado) {
		h.writeError(w, http.StatusNotFound, "not_found", "Notification not found", "")
		return
	}
	if err != nil {
		h.logger.Error("failed to get notification", zap.Error(err), zap.String("id", id.String()))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to fetch notification", "")
		return
	}

	h.writeJSON(w, http.StatusOK, historico)
}

// ListarNotificacoes handles GET /v1/notificacoes.
func (h *Handler) ListarNotificacoes(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := TenantID(ctx)
	limit, offset := paginacao(r)

	historicos, err := h.repo.ListarHistoricosPorTenant(ctx, tenantID, limit, offset)
	if err != nil {
		h.logger.Error("failed to list notifications", zap.Error(err), zap.String("tenant_id", tenantID.String()))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to list notifications", "")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data":   historicos,
		"limit":  limit,
		"offset": offset,
		"count":  len(historicos),
	})
}
