// Package importer turns batches of raw rows (spreadsheet, JSON, webhook)
// into charges. Validation is per row: a bad row is recorded and skipped,
// never aborting the batch.
package importer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cobrefacil/lembra/internal/db"
	"github.com/cobrefacil/lembra/internal/domain"
	"github.com/cobrefacil/lembra/internal/metrics"
)

// Row error kinds recorded in HistoricoImportacao.
const (
	ErroValidacao    = "validacao"
	ErroRegra        = "regra"
	ErroDestinatario = "destinatario"
	ErroData         = "data"
	ErroValor        = "valor"
	ErroDocumento    = "documento"
	ErroPersistencia = "persistencia"
)

// LinhaImportacao is one raw import row before validation.
type LinhaImportacao struct {
	Numero           int                    `json:"-"`
	RegraID          string                 `json:"regra_id" validate:"required,uuid"`
	NomeDestinatario string                 `json:"nome_destinatario" validate:"required"`
	Email            string                 `json:"email" validate:"omitempty,email"`
	Telefone         string                 `json:"telefone" validate:"omitempty,e164"`
	Documento        string                 `json:"documento"`
	Valor            string                 `json:"valor"`
	DataVencimento   string                 `json:"data_vencimento" validate:"required"`
	Payload          map[string]interface{} `json:"payload"`
}

// Repositorio is the slice of the repository the pipeline needs.
type Repositorio interface {
	BuscarRegra(ctx context.Context, tenantID, id uuid.UUID) (*db.RegraCobranca, error)
	CriarCobranca(ctx context.Context, c *db.Cobranca) error
	CriarHistoricoImportacao(ctx context.Context, h *db.HistoricoImportacao) error
}

// Pipeline validates rows and creates charges.
type Pipeline struct {
	repo     Repositorio
	validate *validator.Validate
	logger   *zap.Logger
}

func New(repo Repositorio, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		repo:     repo,
		validate: validator.New(),
		logger:   logger,
	}
}

// Processar runs one import batch. Each valid row becomes a pending charge;
// each invalid row becomes a structured error with its 1-based line number.
// The batch is not atomic: rows already persisted stay when later rows fail.
func (p *Pipeline) Processar(ctx context.Context, tenantID uuid.UUID, origem, nomeArquivo string, linhas []LinhaImportacao) (*db.HistoricoImportacao, error) {
	historico := &db.HistoricoImportacao{
		ID:          uuid.New(),
		TenantID:    tenantID,
		NomeArquivo: nomeArquivo,
		Origem:      origem,
		Total:       len(linhas),
	}

	regras := map[uuid.UUID]*db.RegraCobranca{}

	for _, linha := range linhas {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if erroLinha := p.processarLinha(ctx, tenantID, regras, &linha); erroLinha != nil {
			historico.ComErro++
			historico.Erros = append(historico.Erros, *erroLinha)
			metrics.RecordImportRow(origem, "erro")
			continue
		}
		historico.Processados++
		metrics.RecordImportRow(origem, "sucesso")
	}

	switch {
	case historico.Processados == 0:
		historico.Status = db.ImportacaoErro
	case historico.ComErro == 0:
		historico.Status = db.ImportacaoSucesso
	default:
		historico.Status = db.ImportacaoParcial
	}

	if err := p.repo.CriarHistoricoImportacao(ctx, historico); err != nil {
		return nil, fmt.Errorf("registrar importação: %w", err)
	}

	p.logger.Info("import finished",
		zap.String("tenant_id", tenantID.String()),
		zap.String("origem", origem),
		zap.String("arquivo", nomeArquivo),
		zap.Int("total", historico.Total),
		zap.Int("processados", historico.Processados),
		zap.Int("com_erro", historico.ComErro),
		zap.String("status", historico.Status),
	)

	return historico, nil
}

func (p *Pipeline) processarLinha(ctx context.Context, tenantID uuid.UUID, regras map[uuid.UUID]*db.RegraCobranca, linha *LinhaImportacao) *db.ErroImportacao {
	if err := p.validate.Struct(linha); err != nil {
		return erroLinha(linha.Numero, ErroValidacao, descreverValidacao(err), "")
	}

	regraID, err := uuid.Parse(linha.RegraID)
	if err != nil {
		return erroLinha(linha.Numero, ErroValidacao, "regra_id não é um UUID válido", linha.RegraID)
	}

	regra, ok := regras[regraID]
	if !ok {
		regra, err = p.repo.BuscarRegra(ctx, tenantID, regraID)
		if errors.Is(err, db.ErrNaoEncontrado) {
			return erroLinha(linha.Numero, ErroRegra, "regra de cobrança não existe", linha.RegraID)
		}
		if err != nil {
			return erroLinha(linha.Numero, ErroRegra, fmt.Sprintf("falha ao buscar regra: %v", err), linha.RegraID)
		}
		regras[regraID] = regra
	}
	if !regra.Ativa {
		return erroLinha(linha.Numero, ErroRegra, "regra de cobrança inativa", linha.RegraID)
	}

	cobranca := &db.Cobranca{
		ID:               uuid.New(),
		TenantID:         tenantID,
		RegraID:          regra.ID,
		NomeDestinatario: linha.NomeDestinatario,
		Status:           db.CobrancaPendente,
	}

	switch regra.Canal {
	case db.CanalEmail:
		email, err := domain.NovoEmail(linha.Email)
		if err != nil {
			return erroLinha(linha.Numero, ErroDestinatario, "canal email exige um e-mail válido", linha.Email)
		}
		s := email.String()
		cobranca.EmailDestinatario = &s
	case db.CanalSMS, db.CanalWhatsApp:
		telefone, err := domain.NovoTelefone(linha.Telefone)
		if err != nil {
			return erroLinha(linha.Numero, ErroDestinatario, fmt.Sprintf("canal %s exige um telefone E.164 válido", regra.Canal), linha.Telefone)
		}
		s := telefone.String()
		cobranca.TelefoneDestinatario = &s
	}

	vencimento, err := ParseDataVencimento(linha.DataVencimento)
	if err != nil {
		return erroLinha(linha.Numero, ErroData, err.Error(), linha.DataVencimento)
	}
	agora := time.Now()
	cobranca.DataVencimento = vencimento
	cobranca.DataDisparo = db.CalcularDataDisparo(vencimento, regra.DiasAntes, agora)

	payload := map[string]interface{}{}
	for k, v := range linha.Payload {
		payload[k] = v
	}

	if linha.Valor != "" {
		valor, err := domain.NovoDinheiro(linha.Valor)
		if err != nil {
			return erroLinha(linha.Numero, ErroValor, "valor monetário inválido", linha.Valor)
		}
		payload["valor"] = valor.Formatado()
	}

	if linha.Documento != "" {
		doc, err := domain.NovoDocumento(linha.Documento)
		if err != nil {
			return erroLinha(linha.Numero, ErroDocumento, "CPF/CNPJ inválido", linha.Documento)
		}
		payload["documento"] = doc.String()
	}

	if len(payload) > 0 {
		raw, err := json.Marshal(payload)
		if err != nil {
			return erroLinha(linha.Numero, ErroValidacao, "payload não serializável", "")
		}
		cobranca.Payload = raw
	}

	if err := p.repo.CriarCobranca(ctx, cobranca); err != nil {
		return erroLinha(linha.Numero, ErroPersistencia, fmt.Sprintf("falha ao criar cobrança: %v", err), "")
	}

	return nil
}

func erroLinha(numero int, tipo, descricao, valor string) *db.ErroImportacao {
	return &db.ErroImportacao{
		Linha:         numero,
		Tipo:          tipo,
		Descricao:     descricao,
		ValorOriginal: valor,
	}
}

func descreverValidacao(err error) string {
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) || len(errs) == 0 {
		return err.Error()
	}
	fe := errs[0]
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("campo %s é obrigatório", fe.Field())
	case "email":
		return "e-mail inválido"
	case "e164":
		return "telefone deve estar no formato E.164 (+5511999990000)"
	case "uuid":
		return fmt.Sprintf("campo %s não é um UUID válido", fe.Field())
	default:
		return fmt.Sprintf("campo %s inválido", fe.Field())
	}
}
