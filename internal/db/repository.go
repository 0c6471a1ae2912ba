package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// ErrNaoEncontrado is returned when a tenant-scoped lookup matches no row.
var ErrNaoEncontrado = errors.New("registro não encontrado")

// Repository handles database operations for billing rules, charges,
// delivery records and import batches.
type Repository struct {
	db     *DB
	logger *zap.Logger
}

// NewRepository creates a new repository
func NewRepository(db *DB, logger *zap.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

const cobrancaColunas = `
	id, tenant_id, regra_id, nome_destinatario, email_destinatario,
	telefone_destinatario, payload, data_vencimento, data_disparo,
	status, tentativas, processada_em, ultimo_erro, criada_por_usuario_id,
	created_at, updated_at`

func scanCobranca(row pgx.Row) (*Cobranca, error) {
	var c Cobranca
	err := row.Scan(
		&c.ID,
		&c.TenantID,
		&c.RegraID,
		&c.NomeDestinatario,
		&c.EmailDestinatario,
		&c.TelefoneDestinatario,
		&c.Payload,
		&c.DataVencimento,
		&c.DataDisparo,
		&c.Status,
		&c.Tentativas,
		&c.ProcessadaEm,
		&c.UltimoErro,
		&c.CriadaPorUsuarioID,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// CriarCobranca inserts a new charge
func (r *Repository) CriarCobranca(ctx context.Context, c *Cobranca) error {
	query := `
		INSERT INTO cobrancas (
			id, tenant_id, regra_id, nome_destinatario, email_destinatario,
			telefone_destinatario, payload, data_vencimento, data_disparo,
			status, tentativas, criada_por_usuario_id
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12
		)
		RETURNING created_at, updated_at
	`

	err := r.db.Pool().QueryRow(
		ctx,
		query,
		c.ID,
		c.TenantID,
		c.RegraID,
		c.NomeDestinatario,
		c.EmailDestinatario,
		c.TelefoneDestinatario,
		c.Payload,
		c.DataVencimento,
		c.DataDisparo,
		c.Status,
		c.Tentativas,
		c.CriadaPorUsuarioID,
	).Scan(&c.CreatedAt, &c.UpdatedAt)

	if err != nil {
		r.logger.Error("failed to create charge",
			zap.Error(err),
			zap.String("cobranca_id", c.ID.String()),
		)
		return fmt.Errorf("insert cobranca: %w", err)
	}

	return nil
}

// BuscarCobranca retrieves one charge scoped to a tenant
func (r *Repository) BuscarCobranca(ctx context.Context, tenantID, id uuid.UUID) (*Cobranca, error) {
	query := `SELECT` + cobrancaColunas + `
		FROM cobrancas
		WHERE tenant_id = $1 AND id = $2`

	c, err := scanCobranca(r.db.Pool().QueryRow(ctx, query, tenantID, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNaoEncontrado
	}
	if err != nil {
		return nil, fmt.Errorf("query cobranca: %w", err)
	}

	return c, nil
}

// ListarCobrancasPorTenant retrieves charges for a tenant with pagination
func (r *Repository) ListarCobrancasPorTenant(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]*Cobranca, error) {
	query := `SELECT` + cobrancaColunas + `
		FROM cobrancas
		WHERE tenant_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.db.Pool().Query(ctx, query, tenantID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query cobrancas: %w", err)
	}
	defer rows.Close()

	var cobrancas []*Cobranca
	for rows.Next() {
		c, err := scanCobranca(rows)
		if err != nil {
			return nil, fmt.Errorf("scan cobranca: %w", err)
		}
		cobrancas = append(cobrancas, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return cobrancas, nil
}

// BuscarCobrancasDevidas returns pending charges whose trigger time has
// passed, across all tenants, oldest trigger first. Cancelled and terminal
// charges never match.
func (r *Repository) BuscarCobrancasDevidas(ctx context.Context, limit int) ([]*Cobranca, error) {
	query := `SELECT` + cobrancaColunas + `
		FROM cobrancas
		WHERE status = 'pendente' AND data_disparo <= NOW()
		ORDER BY data_disparo ASC
		LIMIT $1`

	rows, err := r.db.Pool().Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query due cobrancas: %w", err)
	}
	defer rows.Close()

	var cobrancas []*Cobranca
	for rows.Next() {
		c, err := scanCobranca(rows)
		if err != nil {
			return nil, fmt.Errorf("scan cobranca: %w", err)
		}
		cobrancas = append(cobrancas, c)
	}

	return cobrancas, rows.Err()
}

// ReivindicarCobranca atomically claims a pending charge for dispatch and
// counts the attempt in the same statement. Returns the live attempt counter
// so callers never carry one from a stale scan snapshot; a concurrent worker
// may have burned attempts between the scan and this claim. Returns false
// when another worker won the race, which is the only synchronization
// between scheduler instances.
func (r *Repository) ReivindicarCobranca(ctx context.Context, id uuid.UUID) (int, bool, error) {
	query := `
		UPDATE cobrancas
		SET status = 'processando', tentativas = tentativas + 1,
		    processada_em = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = 'pendente'
		RETURNING tentativas
	`

	var tentativas int
	err := r.db.Pool().QueryRow(ctx, query, id).Scan(&tentativas)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("claim cobranca: %w", err)
	}

	return tentativas, true, nil
}

// DevolverCobranca releases a claimed charge back to pending after a
// transient dispatch failure. The attempt was already counted by the claim.
func (r *Repository) DevolverCobranca(ctx context.Context, id uuid.UUID, ultimoErro string) error {
	query := `
		UPDATE cobrancas
		SET status = 'pendente', ultimo_erro = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'processando'
	`

	result, err := r.db.Pool().Exec(ctx, query, id, ultimoErro)
	if err != nil {
		return fmt.Errorf("release cobranca: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("release cobranca %s: %w", id, ErrNaoEncontrado)
	}

	return nil
}

// FinalizarCobranca moves a claimed charge to a terminal state
// (enviada or erro).
func (r *Repository) FinalizarCobranca(ctx context.Context, id uuid.UUID, status string, ultimoErro *string) error {
	query := `
		UPDATE cobrancas
		SET status = $2, ultimo_erro = $3, updated_at = NOW()
		WHERE id = $1 AND status = 'processando'
	`

	result, err := r.db.Pool().Exec(ctx, query, id, status, ultimoErro)
	if err != nil {
		return fmt.Errorf("finish cobranca: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("finish cobranca %s: %w", id, ErrNaoEncontrado)
	}

	return nil
}

// CancelarCobranca marks a pending charge as cancelled. A charge already
// claimed or finished is left untouched and false is returned; in-flight
// dispatch is never aborted.
func (r *Repository) CancelarCobranca(ctx context.Context, tenantID, id uuid.UUID) (bool, error) {
	query := `
		UPDATE cobrancas
		SET status = 'cancelada', updated_at = NOW()
		WHERE tenant_id = $1 AND id = $2 AND status = 'pendente'
	`

	result, err := r.db.Pool().Exec(ctx, query, tenantID, id)
	if err != nil {
		return false, fmt.Errorf("cancel cobranca: %w", err)
	}

	cancelled := result.RowsAffected() == 1
	if cancelled {
		r.logger.Info("charge cancelled",
			zap.String("cobranca_id", id.String()),
			zap.String("tenant_id", tenantID.String()),
		)
	}

	return cancelled, nil
}

// CriarRegra inserts a new billing rule
func (r *Repository) CriarRegra(ctx context.Context, regra *RegraCobranca) error {
	query := `
		INSERT INTO regras_cobranca (
			id, tenant_id, nome, canal, dias_antes, assunto, modelo, ativa
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`

	err := r.db.Pool().QueryRow(ctx, query,
		regra.ID,
		regra.TenantID,
		regra.Nome,
		regra.Canal,
		regra.DiasAntes,
		regra.Assunto,
		regra.Modelo,
		regra.Ativa,
	).Scan(&regra.CreatedAt, &regra.UpdatedAt)

	if err != nil {
		return fmt.Errorf("insert regra: %w", err)
	}

	return nil
}

// BuscarRegra retrieves one billing rule scoped to a tenant
func (r *Repository) BuscarRegra(ctx context.Context, tenantID, id uuid.UUID) (*RegraCobranca, error) {
	query := `
		SELECT id, tenant_id, nome, canal, dias_antes, assunto, modelo, ativa,
		       created_at, updated_at
		FROM regras_cobranca
		WHERE tenant_id = $1 AND id = $2
	`

	var regra RegraCobranca
	err := r.db.Pool().QueryRow(ctx, query, tenantID, id).Scan(
		&regra.ID,
		&regra.TenantID,
		&regra.Nome,
		&regra.Canal,
		&regra.DiasAntes,
		&regra.Assunto,
		&regra.Modelo,
		&regra.Ativa,
		&regra.CreatedAt,
		&regra.UpdatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNaoEncontrado
	}
	if err != nil {
		return nil, fmt.Errorf("query regra: %w", err)
	}

	return &regra, nil
}

// ListarRegrasPorTenant retrieves billing rules for a tenant
func (r *Repository) ListarRegrasPorTenant(ctx context.Context, tenantID uuid.UUID, somenteAtivas bool) ([]*RegraCobranca, error) {
	query := `
		SELECT id, tenant_id, nome, canal, dias_antes, assunto, modelo, ativa,
		       created_at, updated_at
		FROM regras_cobranca
		WHERE tenant_id = $1 AND ($2 = false OR ativa)
		ORDER BY created_at DESC
	`

	rows, err := r.db.Pool().Query(ctx, query, tenantID, somenteAtivas)
	if err != nil {
		return nil, fmt.Errorf("query regras: %w", err)
	}
	defer rows.Close()

	var regras []*RegraCobranca
	for rows.Next() {
		var regra RegraCobranca
		err := rows.Scan(
			&regra.ID,
			&regra.TenantID,
			&regra.Nome,
			&regra.Canal,
			&regra.DiasAntes,
			&regra.Assunto,
			&regra.Modelo,
			&regra.Ativa,
			&regra.CreatedAt,
			&regra.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan regra: %w", err)
		}
		regras = append(regras, &regra)
	}

	return regras, rows.Err()
}

// CalcularDataDisparo derives the trigger timestamp for a charge: midnight
// of the due date minus the rule offset, never before the creation instant.
func CalcularDataDisparo(dataVencimento time.Time, diasAntes int, criadaEm time.Time) time.Time {
	meiaNoite := time.Date(
		dataVencimento.Year(), dataVencimento.Month(), dataVencimento.Day(),
		0, 0, 0, 0, dataVencimento.Location(),
	)
	disparo := meiaNoite.AddDate(0, 0, -diasAntes)
	if disparo.Before(criadaEm) {
		return criadaEm
	}
	return disparo
}
