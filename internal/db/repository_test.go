package db

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCalcularDataDisparo(t *testing.T) {
	criadaEm := time.Date(2025, 12, 1, 10, 30, 0, 0, time.UTC)

	t.Run("midnight of due date minus offset", func(t *testing.T) {
		vencimento := time.Date(2025, 12, 31, 14, 45, 0, 0, time.UTC)
		disparo := CalcularDataDisparo(vencimento, 3, criadaEm)
		assert.Equal(t, time.Date(2025, 12, 28, 0, 0, 0, 0, time.UTC), disparo)
	})

	t.Run("zero offset triggers at due date midnight", func(t *testing.T) {
		vencimento := time.Date(2025, 12, 31, 23, 59, 0, 0, time.UTC)
		disparo := CalcularDataDisparo(vencimento, 0, criadaEm)
		assert.Equal(t, time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC), disparo)
	})

	t.Run("trigger in the past clamps to creation time", func(t *testing.T) {
		// Due tomorrow with a 30-day offset: the computed trigger is long
		// gone, so the charge fires immediately instead of never.
		vencimento := criadaEm.AddDate(0, 0, 1)
		disparo := CalcularDataDisparo(vencimento, 30, criadaEm)
		assert.Equal(t, criadaEm, disparo)
	})

	t.Run("trigger exactly at creation is kept", func(t *testing.T) {
		vencimento := time.Date(2025, 12, 4, 8, 0, 0, 0, time.UTC)
		meiaNoite := time.Date(2025, 12, 4, 0, 0, 0, 0, time.UTC)
		disparo := CalcularDataDisparo(vencimento, 0, meiaNoite)
		assert.Equal(t, meiaNoite, disparo)
	})

	t.Run("preserves the due date location", func(t *testing.T) {
		sp, err := time.LoadLocation("America/Sao_Paulo")
		if err != nil {
			t.Skip("tzdata unavailable")
		}
		vencimento := time.Date(2026, 1, 15, 9, 0, 0, 0, sp)
		disparo := CalcularDataDisparo(vencimento, 5, criadaEm)
		assert.Equal(t, time.Date(2026, 1, 10, 0, 0, 0, 0, sp), disparo)
	})
}

func TestStatusNotificacaoString(t *testing.T) {
	casos := map[StatusNotificacao]string{
		NotifPendente:      "pendente",
		NotifEnviado:       "enviado",
		NotifEntregue:      "entregue",
		NotifAberto:        "aberto",
		NotifClicado:       "clicado",
		NotifSoftBounce:    "soft_bounce",
		NotifAdiado:        "adiado",
		NotifHardBounce:    "hard_bounce",
		NotifEmailInvalido: "email_invalido",
		NotifBloqueado:     "bloqueado",
		NotifReclamacao:    "reclamacao",
		NotifDescadastrado: "descadastrado",
		NotifErroEnvio:     "erro_envio",
		StatusNotificacao(99): "desconhecido",
	}
	for status, want := range casos {
		assert.Equal(t, want, status.String())
	}
}
