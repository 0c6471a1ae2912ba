package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cobrefacil/lembra/internal/db"
	"github.com/cobrefacil/lembra/internal/importer"
)

const maxPlanilhaBytes = 10 << 20 // 10 MiB upload cap

// ImportarJSON handles POST /v1/importacoes/json: an ordered array of rows.
func (h *Handler) ImportarJSON(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := TenantID(ctx)

	linhas, err := importer.LerJSON(r.Body)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON batch", err.Error())
		return
	}
	if len(linhas) == 0 {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Empty batch", "at least one row is required")
		return
	}

	historico, err := h.importador.Processar(ctx, tenantID, db.OrigemJSON, "", linhas)
	if err != nil {
		h.logger.Error("json import failed", zap.Error(err), zap.String("tenant_id", tenantID.String()))
		h.writeError(w, http.StatusInternalServerError, "import_error", "Import failed", "")
		return
	}

	h.writeJSON(w, http.StatusCreated, historico)
}

// ImportarPlanilha handles POST /v1/importacoes/planilha: a multipart upload
// with the spreadsheet under the "arquivo" field.
func (h *Handler) ImportarPlanilha(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := TenantID(ctx)

	if err := r.ParseMultipartForm(maxPlanilhaBytes); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed multipart body", err.Error())
		return
	}

	file, header, err := r.FormFile("arquivo")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Missing file", `multipart field "arquivo" is required`)
		return
	}
	defer file.Close()

	linhas, err := importer.LerPlanilha(file)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Unreadable spreadsheet", err.Error())
		return
	}
	if len(linhas) == 0 {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Empty spreadsheet", "no data rows found")
		return
	}

	historico, err := h.importador.Processar(ctx, tenantID, db.OrigemExcel, header.Filename, linhas)
	if err != nil {
		h.logger.Error("spreadsheet import failed",
			zap.Error(err),
			zap.String("tenant_id", tenantID.String()),
			zap.String("arquivo", header.Filename),
		)
		h.writeError(w, http.StatusInternalServerError, "import_error", "Import failed", "")
		return
	}

	h.writeJSON(w, http.StatusCreated, historico)
}

// ImportarWebhook handles POST /v1/importacoes/webhook: one row per call,
// for systems pushing charges as they are issued.
func (h *Handler) ImportarWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := TenantID(ctx)

	var linha importer.LinhaImportacao
	if err := json.NewDecoder(r.Body).Decode(&linha); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return
	}
	linha.Numero = 1

	historico, err := h.importador.Processar(ctx, tenantID, db.OrigemWebhook, "", []importer.LinhaImportacao{linha})
	if err != nil {
		h.logger.Error("webhook import failed", zap.Error(err), zap.String("tenant_id", tenantID.String()))
		h.writeError(w, http.StatusInternalServerError, "import_error", "Import failed", "")
		return
	}

	// A single-row import either fully succeeded or fully failed.
	status := http.StatusCreated
	if historico.Status == db.ImportacaoErro {
		status = http.StatusUnprocessableEntity
	}
	h.writeJSON(w, status, historico)
}

// BuscarImportacao handles GET /v1/importacoes/{id}.
func (h *Handler) BuscarImportacao(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := TenantID(ctx)

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid import ID", "ID must be a valid UUID")
		return
	}

	historico, err := h.repo.BuscarImportacao(ctx, tenantID, id)
	if errors.Is(err, db.ErrNaoEncontrado) {
		h.writeError(w, http.StatusNotFound, "not_found", "Import not found", "")
		return
	}
	if err != nil {
		h.logger.Error("failed to get import", zap.Error(err), zap.String("id", id.String()))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to fetch import", "")
		return
	}

	h.writeJSON(w, http.StatusOK, historico)
}

// ListarImportacoes handles GET /v1/importacoes.
func (h *Handler) ListarImportacoes(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := TenantID(ctx)
	limit, offset := paginacao(r)

	historicos, err := h.repo.ListarImportacoesPorTenant(ctx, tenantID, limit, offset)
	if err != nil {
		h.logger.Error("failed to list imports", zap.Error(err), zap.String("tenant_id", tenantID.String()))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to list imports", "")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data":   historicos,
		"limit":  limit,
		"offset": offset,
		"count":  len(historicos),
	})
}
