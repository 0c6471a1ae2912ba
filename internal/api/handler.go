// Package api exposes the HTTP surface: charge management, imports,
// provider callbacks and read-only delivery history, all tenant-scoped via
// the X-Tenant-ID header.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cobrefacil/lembra/internal/db"
	"github.com/cobrefacil/lembra/internal/importer"
	"github.com/cobrefacil/lembra/internal/tracker"
)

// Repositorio is the repository surface the handlers need.
type Repositorio interface {
	CriarCobranca(ctx context.Context, c *db.Cobranca) error
	BuscarCobranca(ctx context.Context, tenantID, id uuid.UUID) (*db.Cobranca, error)
	ListarCobrancasPorTenant(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]*db.Cobranca, error)
	CancelarCobranca(ctx context.Context, tenantID, id uuid.UUID) (bool, error)

	CriarRegra(ctx context.Context, regra *db.RegraCobranca) error
	BuscarRegra(ctx context.Context, tenantID, id uuid.UUID) (*db.RegraCobranca, error)
	ListarRegrasPorTenant(ctx context.Context, tenantID uuid.UUID, somenteAtivas bool) ([]*db.RegraCobranca, error)

	BuscarHistorico(ctx context.Context, tenantID, id uuid.UUID) (*db.HistoricoNotificacao, error)
	ListarHistoricosPorTenant(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]*db.HistoricoNotificacao, error)

	BuscarImportacao(ctx context.Context, tenantID, id uuid.UUID) (*db.HistoricoImportacao, error)
	ListarImportacoesPorTenant(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]*db.HistoricoImportacao, error)
}

// Importador runs import batches. Satisfied by *importer.Pipeline.
type Importador interface {
	Processar(ctx context.Context, tenantID uuid.UUID, origem, nomeArquivo string, linhas []importer.LinhaImportacao) (*db.HistoricoImportacao, error)
}

// Rastreador applies provider callbacks. Satisfied by *tracker.Tracker.
type Rastreador interface {
	Processar(ctx context.Context, tenantID uuid.UUID, ev *tracker.Evento) error
}

// Saude reports dependency health. Satisfied by *db.DB.
type Saude interface {
	Health(ctx context.Context) error
}

// ErrorResponse represents an error in problem+json format.
type ErrorResponse struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// Handler holds dependencies for API handlers.
type Handler struct {
	logger     *zap.Logger
	repo       Repositorio
	importador Importador
	rastreador Rastreador
	saude      Saude
}

// NewHandler creates a new API handler.
func NewHandler(logger *zap.Logger, repo Repositorio, importador Importador, rastreador Rastreador, saude Saude) *Handler {
	return &Handler{
		logger:     logger,
		repo:       repo,
		importador: importador,
		rastreador: rastreador,
		saude:      saude,
	}
}

// Health handles GET /health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.saude != nil {
		if err := h.saude.Health(r.Context()); err != nil {
			h.writeError(w, http.StatusServiceUnavailable, "unhealthy", "Database unavailable", "")
			return
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (h *Handler) writeError(w http.ResponseWriter, status int, errType, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Type:   errType,
		Title:  title,
		Status: status,
		Detail: detail,
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// paginacao parses limit/offset query parameters with defaults.
func paginacao(r *http.Request) (limit, offset int) {
	limit, offset = 20, 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 100 {
			limit = l
		}
	}
	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if o, err := strconv.Atoi(offsetStr); err == nil && o >= 0 {
			offset = o
		}
	}
	return limit, offset
}
