package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cobrefacil/lembra/internal/db"
	"github.com/cobrefacil/lembra/internal/importer"
	"github.com/cobrefacil/lembra/internal/tracker"
)

type fakeRepo struct {
	mu        sync.Mutex
	regras    map[uuid.UUID]*db.RegraCobranca
	cobrancas map[uuid.UUID]*db.Cobranca
	imports   map[uuid.UUID]*db.HistoricoImportacao
	falha     error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		regras:    make(map[uuid.UUID]*db.RegraCobranca),
		cobrancas: make(map[uuid.UUID]*db.Cobranca),
		imports:   make(map[uuid.UUID]*db.HistoricoImportacao),
	}
}

func (f *fakeRepo) CriarCobranca(_ context.Context, c *db.Cobranca) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.falha != nil {
		return f.falha
	}
	c.CreatedAt = time.Now()
	c.UpdatedAt = c.CreatedAt
	f.cobrancas[c.ID] = c
	return nil
}

func (f *fakeRepo) BuscarCobranca(_ context.Context, tenantID, id uuid.UUID) (*db.Cobranca, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.cobrancas[id]
	if !ok || c.TenantID != tenantID {
		return nil, db.ErrNaoEncontrado
	}
	return c, nil
}

func (f *fakeRepo) ListarCobrancasPorTenant(_ context.Context, tenantID uuid.UUID, limit, offset int) ([]*db.Cobranca, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*db.Cobranca
	for _, c := range f.cobrancas {
		if c.TenantID == tenantID {
			out = append(out, c)
		}
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeRepo) CancelarCobranca(_ context.Context, tenantID, id uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.cobrancas[id]
	if !ok || c.TenantID != tenantID {
		return false, nil
	}
	if c.Status != db.CobrancaPendente {
		return false, nil
	}
	c.Status = db.CobrancaCancelada
	return true, nil
}

func (f *fakeRepo) CriarRegra(_ context.Context, regra *db.RegraCobranca) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.falha != nil {
		return f.falha
	}
	f.regras[regra.ID] = regra
	return nil
}

func (f *fakeRepo) BuscarRegra(_ context.Context, tenantID, id uuid.UUID) (*db.RegraCobranca, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	regra, ok := f.regras[id]
	if !ok || regra.TenantID != tenantID {
		return nil, db.ErrNaoEncontrado
	}
	return regra, nil
}

func (f *fakeRepo) ListarRegrasPorTenant(_ context.Context, tenantID uuid.UUID, somenteAtivas bool) ([]*db.RegraCobranca, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*db.RegraCobranca
	for _, regra := range f.regras {
		if regra.TenantID != tenantID {
			continue
		}
		if somenteAtivas && !regra.Ativa {
			continue
		}
		out = append(out, regra)
	}
	return out, nil
}

func (f *fakeRepo) BuscarHistorico(_ context.Context, _, _ uuid.UUID) (*db.HistoricoNotificacao, error) {
	return nil, db.ErrNaoEncontrado
}

func (f *fakeRepo) ListarHistoricosPorTenant(_ context.Context, _ uuid.UUID, _, _ int) ([]*db.HistoricoNotificacao, error) {
	return nil, nil
}

func (f *fakeRepo) BuscarImportacao(_ context.Context, tenantID, id uuid.UUID) (*db.HistoricoImportacao, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	h, ok := f.imports[id]
	if !ok || h.TenantID != tenantID {
		return nil, db.ErrNaoEncontrado
	}
	return h, nil
}

func (f *fakeRepo) ListarImportacoesPorTenant(_ context.Context, tenantID uuid.UUID, _, _ int) ([]*db.HistoricoImportacao, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*db.HistoricoImportacao
	for _, h := range f.imports {
		if h.TenantID == tenantID {
			out = append(out, h)
		}
	}
	return out, nil
}

// fakeImportador counts every row as processed unless its email is "bad".
type fakeImportador struct {
	ultimo *db.HistoricoImportacao
}

func (f *fakeImportador) Processar(_ context.Context, tenantID uuid.UUID, origem, nomeArquivo string, linhas []importer.LinhaImportacao) (*db.HistoricoImportacao, error) {
	h := &db.HistoricoImportacao{
		ID:          uuid.New(),
		TenantID:    tenantID,
		NomeArquivo: nomeArquivo,
		Origem:      origem,
		Total:       len(linhas),
	}
	for _, l := range linhas {
		if l.Email == "bad" {
			h.ComErro++
			h.Erros = append(h.Erros, db.ErroImportacao{Linha: l.Numero, Tipo: "destinatario", Descricao: "email invalido"})
			continue
		}
		h.Processados++
	}
	switch {
	case h.ComErro == 0:
		h.Status = db.ImportacaoSucesso
	case h.Processados == 0:
		h.Status = db.ImportacaoErro
	default:
		h.Status = db.ImportacaoParcial
	}
	f.ultimo = h
	return h, nil
}

// fakeRastreador treats tipo "unknown" as unrecognized and tipo "boom" as an
// internal failure.
type fakeRastreador struct {
	aplicados []tracker.Evento
}

func (f *fakeRastreador) Processar(_ context.Context, _ uuid.UUID, ev *tracker.Evento) error {
	switch ev.Tipo {
	case "unknown":
		return fmt.Errorf("tipo %q: %w", ev.Tipo, tracker.ErrEventoDesconhecido)
	case "boom":
		return errors.New("database gone")
	}
	f.aplicados = append(f.aplicados, *ev)
	return nil
}

type fakeSaude struct{ err error }

func (f *fakeSaude) Health(context.Context) error { return f.err }

func novoRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Get("/health", h.Health)
	r.Route("/v1", func(r chi.Router) {
		r.Use(RequireTenant)
		r.Post("/regras", h.CriarRegra)
		r.Get("/regras", h.ListarRegras)
		r.Get("/regras/{id}", h.BuscarRegra)
		r.Post("/cobrancas", h.CriarCobranca)
		r.Get("/cobrancas", h.ListarCobrancas)
		r.Get("/cobrancas/{id}", h.BuscarCobranca)
		r.Post("/cobrancas/{id}/cancelar", h.CancelarCobranca)
		r.Post("/importacoes/json", h.ImportarJSON)
		r.Post("/importacoes/webhook", h.ImportarWebhook)
		r.Get("/importacoes", h.ListarImportacoes)
		r.Get("/importacoes/{id}", h.BuscarImportacao)
		r.Post("/callbacks/provedor", h.ReceberCallbacks)
		r.Get("/notificacoes", h.ListarNotificacoes)
		r.Get("/notificacoes/{id}", h.BuscarNotificacao)
	})
	return r
}

type testEnv struct {
	repo       *fakeRepo
	importador *fakeImportador
	rastreador *fakeRastreador
	saude      *fakeSaude
	router     http.Handler
	tenantID   uuid.UUID
}

func novoTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		repo:       newFakeRepo(),
		importador: &fakeImportador{},
		rastreador: &fakeRastreador{},
		saude:      &fakeSaude{},
		tenantID:   uuid.New(),
	}
	h := NewHandler(zap.NewNop(), env.repo, env.importador, env.rastreador, env.saude)
	env.router = novoRouter(h)
	return env
}

func (e *testEnv) request(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("X-Tenant-ID", e.tenantID.String())
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) regraEmail(t *testing.T, diasAntes int, ativa bool) *db.RegraCobranca {
	t.Helper()
	regra := &db.RegraCobranca{
		ID:        uuid.New(),
		TenantID:  e.tenantID,
		Nome:      "Lembrete padrão",
		Canal:     db.CanalEmail,
		DiasAntes: diasAntes,
		Assunto:   "Fatura a vencer",
		Modelo:    "Olá {{ nome }}",
		Ativa:     ativa,
	}
	e.repo.regras[regra.ID] = regra
	return regra
}

func TestRequireTenant(t *testing.T) {
	env := novoTestEnv(t)

	t.Run("missing header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/cobrancas", nil)
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))

		var resp ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "missing_tenant", resp.Type)
	})

	t.Run("invalid uuid", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/cobrancas", nil)
		req.Header.Set("X-Tenant-ID", "not-a-uuid")
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)

		var resp ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "invalid_tenant", resp.Type)
	})

	t.Run("valid header passes through", func(t *testing.T) {
		rec := env.request(t, http.MethodGet, "/v1/cobrancas", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestHealth(t *testing.T) {
	env := novoTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	env.saude.err = errors.New("connection refused")
	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestCriarRegra(t *testing.T) {
	env := novoTestEnv(t)

	t.Run("success", func(t *testing.T) {
		rec := env.request(t, http.MethodPost, "/v1/regras", RegraRequest{
			Nome:      "Aviso 3 dias antes",
			Canal:     db.CanalEmail,
			DiasAntes: 3,
			Assunto:   "Sua fatura vence em breve",
			Modelo:    "Olá {{ nome }}, sua fatura vence dia {{ vencimento }}.",
		})
		require.Equal(t, http.StatusCreated, rec.Code)

		var regra db.RegraCobranca
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &regra))
		assert.Equal(t, env.tenantID, regra.TenantID)
		assert.True(t, regra.Ativa)
		assert.NotEqual(t, uuid.Nil, regra.ID)
	})

	t.Run("invalid channel", func(t *testing.T) {
		rec := env.request(t, http.MethodPost, "/v1/regras", RegraRequest{
			Nome: "Pombo-correio", Canal: "pombo", Modelo: "x",
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("email without subject", func(t *testing.T) {
		rec := env.request(t, http.MethodPost, "/v1/regras", RegraRequest{
			Nome: "Sem assunto", Canal: db.CanalEmail, Modelo: "x",
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("sms does not need subject", func(t *testing.T) {
		rec := env.request(t, http.MethodPost, "/v1/regras", RegraRequest{
			Nome: "SMS curto", Canal: db.CanalSMS, Modelo: "Fatura vence {{ vencimento }}",
		})
		assert.Equal(t, http.StatusCreated, rec.Code)
	})

	t.Run("negative offset", func(t *testing.T) {
		rec := env.request(t, http.MethodPost, "/v1/regras", RegraRequest{
			Nome: "Ontem", Canal: db.CanalSMS, DiasAntes: -1, Modelo: "x",
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestCriarCobranca(t *testing.T) {
	env := novoTestEnv(t)
	regra := env.regraEmail(t, 3, true)

	t.Run("success schedules before due date", func(t *testing.T) {
		rec := env.request(t, http.MethodPost, "/v1/cobrancas", CobrancaRequest{
			RegraID:          regra.ID.String(),
			NomeDestinatario: "Maria Silva",
			Email:            "maria@example.com",
			DataVencimento:   "2030-06-15",
			Payload:          map[string]interface{}{"valor": "150.00"},
		})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var c db.Cobranca
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &c))
		assert.Equal(t, db.CobrancaPendente, c.Status)
		require.NotNil(t, c.EmailDestinatario)
		assert.Equal(t, "maria@example.com", *c.EmailDestinatario)
		assert.Equal(t, time.Date(2030, 6, 12, 0, 0, 0, 0, time.UTC), c.DataDisparo.UTC())
	})

	t.Run("disparo imediato overrides offset", func(t *testing.T) {
		rec := env.request(t, http.MethodPost, "/v1/cobrancas", CobrancaRequest{
			RegraID:          regra.ID.String(),
			NomeDestinatario: "Maria Silva",
			Email:            "maria@example.com",
			DataVencimento:   "2030-06-15",
			DisparoImediato:  true,
		})
		require.Equal(t, http.StatusCreated, rec.Code)

		var c db.Cobranca
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &c))
		assert.WithinDuration(t, time.Now(), c.DataDisparo, 5*time.Second)
	})

	t.Run("unknown rule", func(t *testing.T) {
		rec := env.request(t, http.MethodPost, "/v1/cobrancas", CobrancaRequest{
			RegraID:          uuid.NewString(),
			NomeDestinatario: "Maria Silva",
			Email:            "maria@example.com",
			DataVencimento:   "2030-06-15",
		})
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("inactive rule", func(t *testing.T) {
		inativa := env.regraEmail(t, 0, false)
		rec := env.request(t, http.MethodPost, "/v1/cobrancas", CobrancaRequest{
			RegraID:          inativa.ID.String(),
			NomeDestinatario: "Maria Silva",
			Email:            "maria@example.com",
			DataVencimento:   "2030-06-15",
		})
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("email rule requires email", func(t *testing.T) {
		rec := env.request(t, http.MethodPost, "/v1/cobrancas", CobrancaRequest{
			RegraID:          regra.ID.String(),
			NomeDestinatario: "Maria Silva",
			Telefone:         "+5511999998888",
			DataVencimento:   "2030-06-15",
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("invalid due date", func(t *testing.T) {
		rec := env.request(t, http.MethodPost, "/v1/cobrancas", CobrancaRequest{
			RegraID:          regra.ID.String(),
			NomeDestinatario: "Maria Silva",
			Email:            "maria@example.com",
			DataVencimento:   "15-06-2030",
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestCancelarCobranca(t *testing.T) {
	env := novoTestEnv(t)
	regra := env.regraEmail(t, 0, true)

	criar := func(t *testing.T, status string) uuid.UUID {
		t.Helper()
		email := "jose@example.com"
		c := &db.Cobranca{
			ID:                uuid.New(),
			TenantID:          env.tenantID,
			RegraID:           regra.ID,
			NomeDestinatario:  "José",
			EmailDestinatario: &email,
			Status:            status,
		}
		env.repo.cobrancas[c.ID] = c
		return c.ID
	}

	t.Run("pending charge is cancelled", func(t *testing.T) {
		id := criar(t, db.CobrancaPendente)
		rec := env.request(t, http.MethodPost, "/v1/cobrancas/"+id.String()+"/cancelar", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, db.CobrancaCancelada, env.repo.cobrancas[id].Status)
	})

	t.Run("sent charge conflicts", func(t *testing.T) {
		id := criar(t, db.CobrancaEnviada)
		rec := env.request(t, http.MethodPost, "/v1/cobrancas/"+id.String()+"/cancelar", nil)
		assert.Equal(t, http.StatusConflict, rec.Code)

		var resp ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "not_cancellable", resp.Type)
		assert.Equal(t, db.CobrancaEnviada, env.repo.cobrancas[id].Status)
	})

	t.Run("invalid id", func(t *testing.T) {
		rec := env.request(t, http.MethodPost, "/v1/cobrancas/abc/cancelar", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestListarCobrancasPaginacao(t *testing.T) {
	env := novoTestEnv(t)
	regra := env.regraEmail(t, 0, true)
	for i := 0; i < 30; i++ {
		email := fmt.Sprintf("c%d@example.com", i)
		c := &db.Cobranca{
			ID: uuid.New(), TenantID: env.tenantID, RegraID: regra.ID,
			NomeDestinatario: "Cliente", EmailDestinatario: &email,
			Status: db.CobrancaPendente,
		}
		env.repo.cobrancas[c.ID] = c
	}

	var resp struct {
		Data  []db.Cobranca `json:"data"`
		Limit int           `json:"limit"`
		Count int           `json:"count"`
	}

	rec := env.request(t, http.MethodGet, "/v1/cobrancas", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 20, resp.Limit)
	assert.Equal(t, 20, resp.Count)

	rec = env.request(t, http.MethodGet, "/v1/cobrancas?limit=500", nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 20, resp.Limit, "limits above 100 fall back to the default")

	rec = env.request(t, http.MethodGet, "/v1/cobrancas?limit=100", nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 30, resp.Count)
}

func TestImportarJSON(t *testing.T) {
	env := novoTestEnv(t)

	t.Run("partial batch", func(t *testing.T) {
		rec := env.request(t, http.MethodPost, "/v1/importacoes/json", []map[string]interface{}{
			{"regra_id": uuid.NewString(), "nome_destinatario": "A", "email": "a@example.com", "data_vencimento": "2030-01-10"},
			{"regra_id": uuid.NewString(), "nome_destinatario": "B", "email": "bad", "data_vencimento": "2030-01-10"},
		})
		require.Equal(t, http.StatusCreated, rec.Code)

		var h db.HistoricoImportacao
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &h))
		assert.Equal(t, db.OrigemJSON, h.Origem)
		assert.Equal(t, 2, h.Total)
		assert.Equal(t, 1, h.Processados)
		assert.Equal(t, 1, h.ComErro)
		assert.Equal(t, db.ImportacaoParcial, h.Status)
	})

	t.Run("empty batch", func(t *testing.T) {
		rec := env.request(t, http.MethodPost, "/v1/importacoes/json", []map[string]interface{}{})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("malformed body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/v1/importacoes/json", bytes.NewBufferString("{not json"))
		req.Header.Set("X-Tenant-ID", env.tenantID.String())
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestImportarWebhook(t *testing.T) {
	env := novoTestEnv(t)

	t.Run("valid row", func(t *testing.T) {
		rec := env.request(t, http.MethodPost, "/v1/importacoes/webhook", map[string]interface{}{
			"regra_id": uuid.NewString(), "nome_destinatario": "A",
			"email": "a@example.com", "data_vencimento": "2030-01-10",
		})
		require.Equal(t, http.StatusCreated, rec.Code)

		var h db.HistoricoImportacao
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &h))
		assert.Equal(t, db.OrigemWebhook, h.Origem)
		assert.Equal(t, db.ImportacaoSucesso, h.Status)
	})

	t.Run("failed row returns 422", func(t *testing.T) {
		rec := env.request(t, http.MethodPost, "/v1/importacoes/webhook", map[string]interface{}{
			"regra_id": uuid.NewString(), "nome_destinatario": "B",
			"email": "bad", "data_vencimento": "2030-01-10",
		})
		require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

		var h db.HistoricoImportacao
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &h))
		assert.Equal(t, db.ImportacaoErro, h.Status)
		require.Len(t, h.Erros, 1)
		assert.Equal(t, 1, h.Erros[0].Linha)
	})
}

func TestReceberCallbacks(t *testing.T) {
	env := novoTestEnv(t)

	t.Run("mixed batch counts applied and invalid", func(t *testing.T) {
		rec := env.request(t, http.MethodPost, "/v1/callbacks/provedor", []tracker.Evento{
			{MensagemProvedorID: "msg-1", Tipo: "delivered", Timestamp: time.Now()},
			{MensagemProvedorID: "msg-2", Tipo: "unknown", Timestamp: time.Now()},
			{Tipo: "delivered", Timestamp: time.Now()}, // no provider message id
		})
		require.Equal(t, http.StatusOK, rec.Code)

		var resp CallbackResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, 3, resp.Recebidos)
		assert.Equal(t, 1, resp.Aplicados)
		assert.Equal(t, 2, resp.Invalidos)
		require.Len(t, env.rastreador.aplicados, 1)
		assert.Equal(t, "msg-1", env.rastreador.aplicados[0].MensagemProvedorID)
	})

	t.Run("internal failure is 500", func(t *testing.T) {
		rec := env.request(t, http.MethodPost, "/v1/callbacks/provedor", []tracker.Evento{
			{MensagemProvedorID: "msg-3", Tipo: "boom", Timestamp: time.Now()},
		})
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})

	t.Run("empty batch", func(t *testing.T) {
		rec := env.request(t, http.MethodPost, "/v1/callbacks/provedor", []tracker.Evento{})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestBuscarImportacao(t *testing.T) {
	env := novoTestEnv(t)
	h := &db.HistoricoImportacao{
		ID: uuid.New(), TenantID: env.tenantID,
		Origem: db.OrigemExcel, Total: 5, Processados: 5,
		Status: db.ImportacaoSucesso,
	}
	env.repo.imports[h.ID] = h

	rec := env.request(t, http.MethodGet, "/v1/importacoes/"+h.ID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.request(t, http.MethodGet, "/v1/importacoes/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTenantIsolamento(t *testing.T) {
	env := novoTestEnv(t)
	regra := env.regraEmail(t, 0, true)

	email := "x@example.com"
	c := &db.Cobranca{
		ID: uuid.New(), TenantID: env.tenantID, RegraID: regra.ID,
		NomeDestinatario: "X", EmailDestinatario: &email, Status: db.CobrancaPendente,
	}
	env.repo.cobrancas[c.ID] = c

	// Another tenant cannot see or cancel the charge.
	outro := uuid.New()
	req := httptest.NewRequest(http.MethodGet, "/v1/cobrancas/"+c.ID.String(), nil)
	req.Header.Set("X-Tenant-ID", outro.String())
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
