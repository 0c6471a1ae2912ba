package db

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Channel constants
const (
	CanalEmail    = "email"
	CanalSMS      = "sms"
	CanalWhatsApp = "whatsapp"
)

// Cobranca status constants
const (
	CobrancaPendente    = "pendente"
	CobrancaProcessando = "processando"
	CobrancaEnviada     = "enviada"
	CobrancaErro        = "erro"
	CobrancaCancelada   = "cancelada"
)

// Import origin constants
const (
	OrigemExcel   = "excel"
	OrigemWebhook = "webhook"
	OrigemManual  = "manual"
	OrigemJSON    = "json"
)

// Import status constants
const (
	ImportacaoSucesso = "sucesso"
	ImportacaoParcial = "parcial"
	ImportacaoErro    = "erro"
)

// StatusNotificacao is the lifecycle state of one delivery record. The
// numeric codes are the wire/storage values; ordering and transition rules
// live in the tracker package.
type StatusNotificacao int

const (
	NotifPendente      StatusNotificacao = 0
	NotifEnviado       StatusNotificacao = 1
	NotifEntregue      StatusNotificacao = 2
	NotifAberto        StatusNotificacao = 3
	NotifClicado       StatusNotificacao = 4
	NotifSoftBounce    StatusNotificacao = 10
	NotifAdiado        StatusNotificacao = 11
	NotifHardBounce    StatusNotificacao = 20
	NotifEmailInvalido StatusNotificacao = 21
	NotifBloqueado     StatusNotificacao = 22
	NotifReclamacao    StatusNotificacao = 30
	NotifDescadastrado StatusNotificacao = 31
	NotifErroEnvio     StatusNotificacao = 40
)

func (s StatusNotificacao) String() string {
	switch s {
	case NotifPendente:
		return "pendente"
	case NotifEnviado:
		return "enviado"
	case NotifEntregue:
		return "entregue"
	case NotifAberto:
		return "aberto"
	case NotifClicado:
		return "clicado"
	case NotifSoftBounce:
		return "soft_bounce"
	case NotifAdiado:
		return "adiado"
	case NotifHardBounce:
		return "hard_bounce"
	case NotifEmailInvalido:
		return "email_invalido"
	case NotifBloqueado:
		return "bloqueado"
	case NotifReclamacao:
		return "reclamacao"
	case NotifDescadastrado:
		return "descadastrado"
	case NotifErroEnvio:
		return "erro_envio"
	default:
		return "desconhecido"
	}
}

// RegraCobranca defines when a charge triggers relative to its due date and
// which template/channel it uses. Charges snapshot the rule id; edits only
// affect charges created afterwards.
type RegraCobranca struct {
	ID        uuid.UUID `json:"id"`
	TenantID  uuid.UUID `json:"tenant_id"`
	Nome      string    `json:"nome"`
	Canal     string    `json:"canal"`
	DiasAntes int       `json:"dias_antes"` // trigger offset: days before the due date
	Assunto   string    `json:"assunto"`    // subject template (email only)
	Modelo    string    `json:"modelo"`     // Liquid body template
	Ativa     bool      `json:"ativa"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Cobranca is a scheduled reminder job tied to a due date.
type Cobranca struct {
	ID                   uuid.UUID       `json:"id"`
	TenantID             uuid.UUID       `json:"tenant_id"`
	RegraID              uuid.UUID       `json:"regra_id"`
	NomeDestinatario     string          `json:"nome_destinatario"`
	EmailDestinatario    *string         `json:"email_destinatario,omitempty"`
	TelefoneDestinatario *string         `json:"telefone_destinatario,omitempty"`
	Payload              json.RawMessage `json:"payload"` // template variables
	DataVencimento       time.Time       `json:"data_vencimento"`
	DataDisparo          time.Time       `json:"data_disparo"`
	Status               string          `json:"status"`
	Tentativas           int             `json:"tentativas"`
	ProcessadaEm         *time.Time      `json:"processada_em,omitempty"`
	UltimoErro           *string         `json:"ultimo_erro,omitempty"`
	CriadaPorUsuarioID   *uuid.UUID      `json:"criada_por_usuario_id,omitempty"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
}

// HistoricoNotificacao is one row per dispatch attempt of a charge through a
// specific channel, advanced by provider callbacks after the send.
type HistoricoNotificacao struct {
	ID                   uuid.UUID         `json:"id"`
	TenantID             uuid.UUID         `json:"tenant_id"`
	CobrancaID           uuid.UUID         `json:"cobranca_id"`
	RegraID              uuid.UUID         `json:"regra_id"`
	Canal                string            `json:"canal"`
	Status               StatusNotificacao `json:"status"`
	Destinatario         string            `json:"destinatario"`
	Assunto              string            `json:"assunto,omitempty"`
	EnviadoEm            *time.Time        `json:"enviado_em,omitempty"`
	EntregueEm           *time.Time        `json:"entregue_em,omitempty"`
	MensagemErro         *string           `json:"mensagem_erro,omitempty"`
	MotivoErro           *string           `json:"motivo_erro,omitempty"`
	CodigoErroProvedor   *string           `json:"codigo_erro_provedor,omitempty"`
	QuantidadeAberturas  int               `json:"quantidade_aberturas"`
	DataPrimeiraAbertura *time.Time        `json:"data_primeira_abertura,omitempty"`
	DataUltimaAbertura   *time.Time        `json:"data_ultima_abertura,omitempty"`
	IPAbertura           *string           `json:"ip_abertura,omitempty"`
	AgenteAbertura       *string           `json:"agente_abertura,omitempty"`
	QuantidadeCliques    int               `json:"quantidade_cliques"`
	DataPrimeiroClique   *time.Time        `json:"data_primeiro_clique,omitempty"`
	DataUltimoClique     *time.Time        `json:"data_ultimo_clique,omitempty"`
	UltimoLinkClicado    *string           `json:"ultimo_link_clicado,omitempty"`
	MensagemProvedorID   *string           `json:"mensagem_provedor_id,omitempty"`
	CriadoPorUsuarioID   *uuid.UUID        `json:"criado_por_usuario_id,omitempty"`
	CreatedAt            time.Time         `json:"created_at"`
	UpdatedAt            time.Time         `json:"updated_at"`
}

// ErroImportacao is one structured row error inside an import batch.
type ErroImportacao struct {
	Linha         int    `json:"linha"`
	Tipo          string `json:"tipo"`
	Descricao     string `json:"descricao"`
	ValorOriginal string `json:"valor_original,omitempty"`
}

// HistoricoImportacao summarizes one import operation.
// Invariant: Processados + ComErro == Total.
type HistoricoImportacao struct {
	ID          uuid.UUID        `json:"id"`
	TenantID    uuid.UUID        `json:"tenant_id"`
	NomeArquivo string           `json:"nome_arquivo"`
	Origem      string           `json:"origem"`
	Total       int              `json:"total"`
	Processados int              `json:"processados"`
	ComErro     int              `json:"com_erro"`
	Status      string           `json:"status"`
	Erros       []ErroImportacao `json:"erros,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
}

// Supressao blocks future dispatch to a recipient after a complaint or
// unsubscribe callback.
type Supressao struct {
	ID           uuid.UUID `json:"id"`
	TenantID     uuid.UUID `json:"tenant_id"`
	Destinatario string    `json:"destinatario"`
	Canal        string    `json:"canal"`
	Motivo       string    `json:"motivo"`
	CreatedAt    time.Time `json:"created_at"`
}
