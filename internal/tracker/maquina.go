// Package tracker advances delivery records from provider callbacks. The
// transition rules live in pure functions here; persistence, locking and
// deduplication are layered on top by the Tracker service.
package tracker

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cobrefacil/lembra/internal/db"
)

// Canonical event types after normalization.
const (
	EventoEntregue      = "entregue"
	EventoAberto        = "aberto"
	EventoClicado       = "clicado"
	EventoSoftBounce    = "soft_bounce"
	EventoHardBounce    = "hard_bounce"
	EventoAdiado        = "adiado"
	EventoEmailInvalido = "email_invalido"
	EventoBloqueado     = "bloqueado"
	EventoReclamacao    = "reclamacao"
	EventoDescadastrado = "descadastrado"
	EventoErroEnvio     = "erro_envio"
)

// ErrEventoDesconhecido is returned for event types no provider we integrate
// with emits.
var ErrEventoDesconhecido = errors.New("tipo de evento desconhecido")

// Evento is one normalized provider callback.
type Evento struct {
	ID                 string    `json:"id"`
	MensagemProvedorID string    `json:"mensagem_provedor_id"`
	Tipo               string    `json:"tipo"`
	Timestamp          time.Time `json:"timestamp"`
	URL                string    `json:"url,omitempty"`
	CodigoErro         string    `json:"codigo_erro,omitempty"`
	Motivo             string    `json:"motivo,omitempty"`
	IP                 string    `json:"ip,omitempty"`
	UserAgent          string    `json:"user_agent,omitempty"`
}

// NormalizarTipo maps the aliases providers use onto the canonical event
// types. A bare "bounce" is classified by its error code: 5xx codes are
// permanent mailbox failures, everything else is treated as soft.
func NormalizarTipo(tipo, codigoErro string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(tipo)) {
	case "delivered", "delivery", EventoEntregue:
		return EventoEntregue, nil
	case "open", "opened", "abertura", EventoAberto:
		return EventoAberto, nil
	case "click", "clicked", "clique", EventoClicado:
		return EventoClicado, nil
	case "deferred", "delayed", EventoAdiado:
		return EventoAdiado, nil
	case EventoSoftBounce:
		return EventoSoftBounce, nil
	case EventoHardBounce:
		return EventoHardBounce, nil
	case "bounce", "bounced":
		if strings.HasPrefix(codigoErro, "5") {
			return EventoHardBounce, nil
		}
		return EventoSoftBounce, nil
	case "invalid_email", "invalid_recipient", EventoEmailInvalido:
		return EventoEmailInvalido, nil
	case "blocked", EventoBloqueado:
		return EventoBloqueado, nil
	case "complaint", "spam_complaint", "spam", EventoReclamacao:
		return EventoReclamacao, nil
	case "unsubscribe", "unsubscribed", EventoDescadastrado:
		return EventoDescadastrado, nil
	case "error", "failed", EventoErroEnvio:
		return EventoErroEnvio, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrEventoDesconhecido, tipo)
	}
}

// EhTerminal reports whether the status accepts no further transitions.
func EhTerminal(s db.StatusNotificacao) bool {
	return s >= db.NotifHardBounce
}

// engajamento orders the engagement progression. Transient failure states
// rank alongside "sent": a deferred message that later gets delivered must
// still advance.
func engajamento(s db.StatusNotificacao) int {
	switch s {
	case db.NotifPendente:
		return 0
	case db.NotifEnviado, db.NotifSoftBounce, db.NotifAdiado:
		return 1
	case db.NotifEntregue:
		return 2
	case db.NotifAberto:
		return 3
	case db.NotifClicado:
		return 4
	default:
		return -1
	}
}

func statusTerminalDoEvento(tipo string) db.StatusNotificacao {
	switch tipo {
	case EventoHardBounce:
		return db.NotifHardBounce
	case EventoEmailInvalido:
		return db.NotifEmailInvalido
	case EventoBloqueado:
		return db.NotifBloqueado
	case EventoReclamacao:
		return db.NotifReclamacao
	case EventoDescadastrado:
		return db.NotifDescadastrado
	default:
		return db.NotifErroEnvio
	}
}

// AplicarEvento mutates h according to one normalized event and reports
// whether anything changed. The rules:
//
//   - Terminal states absorb every later event.
//   - Engagement only moves forward: a delivered callback arriving after an
//     open reconciles the delivery timestamp but never demotes the status.
//   - Opens and clicks increment counters on every occurrence; first/last
//     timestamps track the extremes.
//   - A click on a record that never reported an open backfills one open,
//     since clicking requires the message to have been opened.
//   - Soft bounces and deferrals are transient: they only apply before
//     delivery is confirmed.
func AplicarEvento(h *db.HistoricoNotificacao, ev *Evento) (bool, error) {
	tipo, err := NormalizarTipo(ev.Tipo, ev.CodigoErro)
	if err != nil {
		return false, err
	}

	if EhTerminal(h.Status) {
		return false, nil
	}

	ts := ev.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	switch tipo {
	case EventoEntregue:
		mudou := false
		if h.EntregueEm == nil {
			h.EntregueEm = &ts
			mudou = true
		}
		if engajamento(h.Status) < engajamento(db.NotifEntregue) {
			h.Status = db.NotifEntregue
			mudou = true
		}
		return mudou, nil

	case EventoAberto:
		h.QuantidadeAberturas++
		if h.DataPrimeiraAbertura == nil {
			h.DataPrimeiraAbertura = &ts
		}
		h.DataUltimaAbertura = &ts
		if ev.IP != "" {
			h.IPAbertura = &ev.IP
		}
		if ev.UserAgent != "" {
			h.AgenteAbertura = &ev.UserAgent
		}
		if h.EntregueEm == nil {
			// An open proves delivery even when the delivered callback
			// was lost or is still in flight.
			h.EntregueEm = &ts
		}
		if engajamento(h.Status) < engajamento(db.NotifAberto) {
			h.Status = db.NotifAberto
		}
		return true, nil

	case EventoClicado:
		h.QuantidadeCliques++
		if h.DataPrimeiroClique == nil {
			h.DataPrimeiroClique = &ts
		}
		h.DataUltimoClique = &ts
		if ev.URL != "" {
			h.UltimoLinkClicado = &ev.URL
		}
		if h.QuantidadeAberturas == 0 {
			h.QuantidadeAberturas = 1
			h.DataPrimeiraAbertura = &ts
			h.DataUltimaAbertura = &ts
		}
		if h.EntregueEm == nil {
			h.EntregueEm = &ts
		}
		if engajamento(h.Status) < engajamento(db.NotifClicado) {
			h.Status = db.NotifClicado
		}
		return true, nil

	case EventoSoftBounce, EventoAdiado:
		if engajamento(h.Status) >= engajamento(db.NotifEntregue) {
			// Delivery already confirmed; a stale bounce changes nothing.
			return false, nil
		}
		if tipo == EventoSoftBounce {
			h.Status = db.NotifSoftBounce
		} else {
			h.Status = db.NotifAdiado
		}
		aplicarDetalheErro(h, ev)
		return true, nil

	default:
		// Terminal failure events override any non-terminal state, including
		// confirmed delivery: a complaint after an open still suppresses.
		h.Status = statusTerminalDoEvento(tipo)
		aplicarDetalheErro(h, ev)
		return true, nil
	}
}

func aplicarDetalheErro(h *db.HistoricoNotificacao, ev *Evento) {
	if ev.Motivo != "" {
		h.MotivoErro = &ev.Motivo
	}
	if ev.CodigoErro != "" {
		h.CodigoErroProvedor = &ev.CodigoErro
	}
}
