package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

const historicoColunas = `
	id, tenant_id, cobranca_id, regra_id, canal, status, destinatario,
	assunto, enviado_em, entregue_em, mensagem_erro, motivo_erro,
	codigo_erro_provedor, quantidade_aberturas, data_primeira_abertura,
	data_ultima_abertura, ip_abertura, agente_abertura, quantidade_cliques,
	data_primeiro_clique, data_ultimo_clique, ultimo_link_clicado,
	mensagem_provedor_id, criado_por_usuario_id, created_at, updated_at`

func scanHistorico(row pgx.Row) (*HistoricoNotificacao, error) {
	var h HistoricoNotificacao
	err := row.Scan(
		&h.ID,
		&h.TenantID,
		&h.CobrancaID,
		&h.RegraID,
		&h.Canal,
		&h.Status,
		&h.Destinatario,
		&h.Assunto,
		&h.EnviadoEm,
		&h.EntregueEm,
		&h.MensagemErro,
		&h.MotivoErro,
		&h.CodigoErroProvedor,
		&h.QuantidadeAberturas,
		&h.DataPrimeiraAbertura,
		&h.DataUltimaAbertura,
		&h.IPAbertura,
		&h.AgenteAbertura,
		&h.QuantidadeCliques,
		&h.DataPrimeiroClique,
		&h.DataUltimoClique,
		&h.UltimoLinkClicado,
		&h.MensagemProvedorID,
		&h.CriadoPorUsuarioID,
		&h.CreatedAt,
		&h.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &h, nil
}

// CriarHistoricoNotificacao inserts one delivery record for a dispatch attempt
func (r *Repository) CriarHistoricoNotificacao(ctx context.Context, h *HistoricoNotificacao) error {
	query := `
		INSERT INTO historico_notificacoes (
			id, tenant_id, cobranca_id, regra_id, canal, status, destinatario,
			assunto, enviado_em, mensagem_erro, motivo_erro, codigo_erro_provedor,
			mensagem_provedor_id, criado_por_usuario_id
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14
		)
		RETURNING created_at, updated_at
	`

	err := r.db.Pool().QueryRow(ctx, query,
		h.ID,
		h.TenantID,
		h.CobrancaID,
		h.RegraID,
		h.Canal,
		h.Status,
		h.Destinatario,
		h.Assunto,
		h.EnviadoEm,
		h.MensagemErro,
		h.MotivoErro,
		h.CodigoErroProvedor,
		h.MensagemProvedorID,
		h.CriadoPorUsuarioID,
	).Scan(&h.CreatedAt, &h.UpdatedAt)

	if err != nil {
		r.logger.Error("failed to create delivery record",
			zap.Error(err),
			zap.String("cobranca_id", h.CobrancaID.String()),
		)
		return fmt.Errorf("insert historico: %w", err)
	}

	return nil
}

// BuscarHistorico retrieves one delivery record scoped to a tenant
func (r *Repository) BuscarHistorico(ctx context.Context, tenantID, id uuid.UUID) (*HistoricoNotificacao, error) {
	query := `SELECT` + historicoColunas + `
		FROM historico_notificacoes
		WHERE tenant_id = $1 AND id = $2`

	h, err := scanHistorico(r.db.Pool().QueryRow(ctx, query, tenantID, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNaoEncontrado
	}
	if err != nil {
		return nil, fmt.Errorf("query historico: %w", err)
	}

	return h, nil
}

// ListarHistoricosPorTenant retrieves delivery records for a tenant with pagination
func (r *Repository) ListarHistoricosPorTenant(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]*HistoricoNotificacao, error) {
	query := `SELECT` + historicoColunas + `
		FROM historico_notificacoes
		WHERE tenant_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.db.Pool().Query(ctx, query, tenantID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query historicos: %w", err)
	}
	defer rows.Close()

	var historicos []*HistoricoNotificacao
	for rows.Next() {
		h, err := scanHistorico(rows)
		if err != nil {
			return nil, fmt.Errorf("scan historico: %w", err)
		}
		historicos = append(historicos, h)
	}

	return historicos, rows.Err()
}

// AtualizarHistoricoComLock applies fn to the delivery record identified by
// provider message id, inside a transaction holding a row lock. Concurrent
// callbacks for the same message serialize here, which is what keeps the
// monotonic status invariant safe under the unordered callback path.
// fn returns false to signal a no-op (nothing is written).
func (r *Repository) AtualizarHistoricoComLock(
	ctx context.Context,
	tenantID uuid.UUID,
	mensagemProvedorID string,
	fn func(*HistoricoNotificacao) (bool, error),
) (*HistoricoNotificacao, error) {
	tx, err := r.db.Pool().Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	query := `SELECT` + historicoColunas + `
		FROM historico_notificacoes
		WHERE tenant_id = $1 AND mensagem_provedor_id = $2
		FOR UPDATE`

	h, err := scanHistorico(tx.QueryRow(ctx, query, tenantID, mensagemProvedorID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNaoEncontrado
	}
	if err != nil {
		return nil, fmt.Errorf("lock historico: %w", err)
	}

	mudou, err := fn(h)
	if err != nil {
		return nil, err
	}
	if !mudou {
		return h, nil
	}

	update := `
		UPDATE historico_notificacoes SET
			status = $2, entregue_em = $3, mensagem_erro = $4, motivo_erro = $5,
			codigo_erro_provedor = $6, quantidade_aberturas = $7,
			data_primeira_abertura = $8, data_ultima_abertura = $9,
			ip_abertura = $10, agente_abertura = $11, quantidade_cliques = $12,
			data_primeiro_clique = $13, data_ultimo_clique = $14,
			ultimo_link_clicado = $15, updated_at = NOW()
		WHERE id = $1
	`

	_, err = tx.Exec(ctx, update,
		h.ID,
		h.Status,
		h.EntregueEm,
		h.MensagemErro,
		h.MotivoErro,
		h.CodigoErroProvedor,
		h.QuantidadeAberturas,
		h.DataPrimeiraAbertura,
		h.DataUltimaAbertura,
		h.IPAbertura,
		h.AgenteAbertura,
		h.QuantidadeCliques,
		h.DataPrimeiroClique,
		h.DataUltimoClique,
		h.UltimoLinkClicado,
	)
	if err != nil {
		return nil, fmt.Errorf("update historico: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	return h, nil
}

// CriarHistoricoImportacao inserts one import batch record
func (r *Repository) CriarHistoricoImportacao(ctx context.Context, h *HistoricoImportacao) error {
	erros, err := json.Marshal(h.Erros)
	if err != nil {
		return fmt.Errorf("marshal erros: %w", err)
	}

	query := `
		INSERT INTO historico_importacoes (
			id, tenant_id, nome_arquivo, origem, total, processados,
			com_erro, status, erros
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at
	`

	err = r.db.Pool().QueryRow(ctx, query,
		h.ID,
		h.TenantID,
		h.NomeArquivo,
		h.Origem,
		h.Total,
		h.Processados,
		h.ComErro,
		h.Status,
		erros,
	).Scan(&h.CreatedAt)

	if err != nil {
		return fmt.Errorf("insert historico importacao: %w", err)
	}

	return nil
}

// BuscarImportacao retrieves one import batch record scoped to a tenant
func (r *Repository) BuscarImportacao(ctx context.Context, tenantID, id uuid.UUID) (*HistoricoImportacao, error) {
	query := `
		SELECT id, tenant_id, nome_arquivo, origem, total, processados,
		       com_erro, status, erros, created_at
		FROM historico_importacoes
		WHERE tenant_id = $1 AND id = $2
	`

	var h HistoricoImportacao
	var erros []byte
	err := r.db.Pool().QueryRow(ctx, query, tenantID, id).Scan(
		&h.ID,
		&h.TenantID,
		&h.NomeArquivo,
		&h.Origem,
		&h.Total,
		&h.Processados,
		&h.ComErro,
		&h.Status,
		&erros,
		&h.CreatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNaoEncontrado
	}
	if err != nil {
		return nil, fmt.Errorf("query importacao: %w", err)
	}

	if len(erros) > 0 {
		if err := json.Unmarshal(erros, &h.Erros); err != nil {
			return nil, fmt.Errorf("unmarshal erros: %w", err)
		}
	}

	return &h, nil
}

// ListarImportacoesPorTenant retrieves import batch records for a tenant
func (r *Repository) ListarImportacoesPorTenant(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]*HistoricoImportacao, error) {
	query := `
		SELECT id, tenant_id, nome_arquivo, origem, total, processados,
		       com_erro, status, erros, created_at
		FROM historico_importacoes
		WHERE tenant_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.Pool().Query(ctx, query, tenantID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query importacoes: %w", err)
	}
	defer rows.Close()

	var historicos []*HistoricoImportacao
	for rows.Next() {
		var h HistoricoImportacao
		var erros []byte
		err := rows.Scan(
			&h.ID,
			&h.TenantID,
			&h.NomeArquivo,
			&h.Origem,
			&h.Total,
			&h.Processados,
			&h.ComErro,
			&h.Status,
			&erros,
			&h.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan importacao: %w", err)
		}
		if len(erros) > 0 {
			if err := json.Unmarshal(erros, &h.Erros); err != nil {
				return nil, fmt.Errorf("unmarshal erros: %w", err)
			}
		}
		historicos = append(historicos, &h)
	}

	return historicos, rows.Err()
}

// CriarSupressao records a recipient suppression. Duplicate entries for the
// same tenant/recipient/channel are ignored.
func (r *Repository) CriarSupressao(ctx context.Context, s *Supressao) error {
	query := `
		INSERT INTO supressoes (id, tenant_id, destinatario, canal, motivo)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (tenant_id, destinatario, canal) DO NOTHING
	`

	_, err := r.db.Pool().Exec(ctx, query, s.ID, s.TenantID, s.Destinatario, s.Canal, s.Motivo)
	if err != nil {
		return fmt.Errorf("insert supressao: %w", err)
	}

	r.logger.Info("recipient suppressed",
		zap.String("tenant_id", s.TenantID.String()),
		zap.String("canal", s.Canal),
		zap.String("motivo", s.Motivo),
	)

	return nil
}

// EstaSuprimido reports whether a recipient is suppressed for a channel
func (r *Repository) EstaSuprimido(ctx context.Context, tenantID uuid.UUID, destinatario, canal string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM supressoes
			WHERE tenant_id = $1 AND destinatario = $2 AND canal = $3
		)
	`

	var suprimido bool
	if err := r.db.Pool().QueryRow(ctx, query, tenantID, destinatario, canal).Scan(&suprimido); err != nil {
		return false, fmt.Errorf("query supressao: %w", err)
	}

	return suprimido, nil
}
