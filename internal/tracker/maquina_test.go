package tracker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cobrefacil/lembra/internal/db"
)

func historicoEnviado() *db.HistoricoNotificacao {
	enviado := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
	return &db.HistoricoNotificacao{
		Status:    db.NotifEnviado,
		Canal:     db.CanalEmail,
		EnviadoEm: &enviado,
	}
}

func evento(tipo string, ts time.Time) *Evento {
	return &Evento{Tipo: tipo, Timestamp: ts}
}

func TestNormalizarTipo(t *testing.T) {
	casos := []struct {
		tipo   string
		codigo string
		want   string
	}{
		{"delivered", "", EventoEntregue},
		{"Delivery", "", EventoEntregue},
		{"open", "", EventoAberto},
		{"OPENED", "", EventoAberto},
		{"click", "", EventoClicado},
		{"deferred", "", EventoAdiado},
		{"delayed", "", EventoAdiado},
		{"bounce", "550", EventoHardBounce},
		{"bounce", "421", EventoSoftBounce},
		{"bounce", "", EventoSoftBounce},
		{"hard_bounce", "", EventoHardBounce},
		{"invalid_email", "", EventoEmailInvalido},
		{"blocked", "", EventoBloqueado},
		{"spam_complaint", "", EventoReclamacao},
		{"complaint", "", EventoReclamacao},
		{"unsubscribed", "", EventoDescadastrado},
		{"failed", "", EventoErroEnvio},
	}
	for _, c := range casos {
		got, err := NormalizarTipo(c.tipo, c.codigo)
		require.NoError(t, err, c.tipo)
		assert.Equal(t, c.want, got, c.tipo)
	}

	_, err := NormalizarTipo("telepathy", "")
	assert.ErrorIs(t, err, ErrEventoDesconhecido)
}

func TestEntregueAvancaStatus(t *testing.T) {
	h := historicoEnviado()
	ts := time.Date(2026, 1, 10, 9, 5, 0, 0, time.UTC)

	mudou, err := AplicarEvento(h, evento("delivered", ts))
	require.NoError(t, err)
	assert.True(t, mudou)
	assert.Equal(t, db.NotifEntregue, h.Status)
	require.NotNil(t, h.EntregueEm)
	assert.Equal(t, ts, *h.EntregueEm)
}

func TestEntregueDepoisDeAbertoNaoRegride(t *testing.T) {
	// Providers deliver callbacks out of order: the open may arrive first.
	h := historicoEnviado()
	abertura := time.Date(2026, 1, 10, 9, 10, 0, 0, time.UTC)
	entrega := time.Date(2026, 1, 10, 9, 5, 0, 0, time.UTC)

	_, err := AplicarEvento(h, evento("open", abertura))
	require.NoError(t, err)
	assert.Equal(t, db.NotifAberto, h.Status)

	mudou, err := AplicarEvento(h, evento("delivered", entrega))
	require.NoError(t, err)
	assert.False(t, mudou, "delivery timestamp was already backfilled by the open")
	assert.Equal(t, db.NotifAberto, h.Status, "status must never move backwards")
}

func TestEntregueAtrasadoPreencheTimestamp(t *testing.T) {
	h := historicoEnviado()
	h.Status = db.NotifAberto // opened, but EntregueEm never recorded
	h.QuantidadeAberturas = 1

	entrega := time.Date(2026, 1, 10, 9, 5, 0, 0, time.UTC)
	mudou, err := AplicarEvento(h, evento("delivered", entrega))
	require.NoError(t, err)
	assert.True(t, mudou)
	assert.Equal(t, db.NotifAberto, h.Status)
	require.NotNil(t, h.EntregueEm)
	assert.Equal(t, entrega, *h.EntregueEm)
}

func TestAberturasAcumulam(t *testing.T) {
	h := historicoEnviado()
	t1 := time.Date(2026, 1, 10, 10, 0, 0, 0, time.UTC)
	t2 := time.Date(2026, 1, 11, 8, 0, 0, 0, time.UTC)
	t3 := time.Date(2026, 1, 12, 7, 0, 0, 0, time.UTC)

	for _, ts := range []time.Time{t1, t2, t3} {
		ev := evento("open", ts)
		ev.IP = "200.1.2.3"
		ev.UserAgent = "Mozilla/5.0"
		mudou, err := AplicarEvento(h, ev)
		require.NoError(t, err)
		assert.True(t, mudou)
	}

	assert.Equal(t, 3, h.QuantidadeAberturas)
	assert.Equal(t, t1, *h.DataPrimeiraAbertura)
	assert.Equal(t, t3, *h.DataUltimaAbertura)
	assert.Equal(t, db.NotifAberto, h.Status)
	assert.Equal(t, "200.1.2.3", *h.IPAbertura)
}

func TestCliquePreencheAberturaImplicita(t *testing.T) {
	// A click without a prior open still proves the message was opened.
	h := historicoEnviado()
	ts := time.Date(2026, 1, 10, 10, 0, 0, 0, time.UTC)
	ev := evento("click", ts)
	ev.URL = "https://example.com/fatura/123"

	mudou, err := AplicarEvento(h, ev)
	require.NoError(t, err)
	assert.True(t, mudou)
	assert.Equal(t, db.NotifClicado, h.Status)
	assert.Equal(t, 1, h.QuantidadeCliques)
	assert.Equal(t, 1, h.QuantidadeAberturas)
	assert.Equal(t, ts, *h.DataPrimeiraAbertura)
	assert.Equal(t, "https://example.com/fatura/123", *h.UltimoLinkClicado)
	require.NotNil(t, h.EntregueEm)
}

func TestAberturaDepoisDeCliqueNaoRegride(t *testing.T) {
	h := historicoEnviado()
	ts := time.Date(2026, 1, 10, 10, 0, 0, 0, time.UTC)

	_, err := AplicarEvento(h, evento("click", ts))
	require.NoError(t, err)

	mudou, err := AplicarEvento(h, evento("open", ts.Add(time.Minute)))
	require.NoError(t, err)
	assert.True(t, mudou, "counter still accumulates")
	assert.Equal(t, db.NotifClicado, h.Status)
	assert.Equal(t, 2, h.QuantidadeAberturas)
}

func TestSoftBounceEhTransitorio(t *testing.T) {
	h := historicoEnviado()
	ev := evento("bounce", time.Now())
	ev.CodigoErro = "421"
	ev.Motivo = "mailbox temporarily full"

	mudou, err := AplicarEvento(h, ev)
	require.NoError(t, err)
	assert.True(t, mudou)
	assert.Equal(t, db.NotifSoftBounce, h.Status)
	assert.Equal(t, "mailbox temporarily full", *h.MotivoErro)

	// A later delivery recovers from the transient state.
	mudou, err = AplicarEvento(h, evento("delivered", time.Now()))
	require.NoError(t, err)
	assert.True(t, mudou)
	assert.Equal(t, db.NotifEntregue, h.Status)
}

func TestSoftBounceDepoisDeEntregaEhIgnorado(t *testing.T) {
	h := historicoEnviado()
	_, err := AplicarEvento(h, evento("delivered", time.Now()))
	require.NoError(t, err)

	mudou, err := AplicarEvento(h, evento("deferred", time.Now()))
	require.NoError(t, err)
	assert.False(t, mudou)
	assert.Equal(t, db.NotifEntregue, h.Status)
}

func TestHardBounceEhTerminal(t *testing.T) {
	h := historicoEnviado()
	ev := evento("bounce", time.Now())
	ev.CodigoErro = "550"
	ev.Motivo = "user unknown"

	mudou, err := AplicarEvento(h, ev)
	require.NoError(t, err)
	assert.True(t, mudou)
	assert.Equal(t, db.NotifHardBounce, h.Status)
	assert.Equal(t, "550", *h.CodigoErroProvedor)

	// Nothing moves a terminal record, not even engagement.
	for _, tipo := range []string{"delivered", "open", "click", "complaint"} {
		mudou, err := AplicarEvento(h, evento(tipo, time.Now()))
		require.NoError(t, err)
		assert.False(t, mudou, tipo)
		assert.Equal(t, db.NotifHardBounce, h.Status)
	}
	assert.Equal(t, 0, h.QuantidadeAberturas)
}

func TestReclamacaoDepoisDeEngajamento(t *testing.T) {
	// Marking as spam after opening is common; the complaint wins.
	h := historicoEnviado()
	_, err := AplicarEvento(h, evento("open", time.Now()))
	require.NoError(t, err)

	mudou, err := AplicarEvento(h, evento("complaint", time.Now()))
	require.NoError(t, err)
	assert.True(t, mudou)
	assert.Equal(t, db.NotifReclamacao, h.Status)
	assert.Equal(t, 1, h.QuantidadeAberturas, "engagement history is preserved")
}

func TestDescadastradoEhTerminal(t *testing.T) {
	h := historicoEnviado()
	mudou, err := AplicarEvento(h, evento("unsubscribe", time.Now()))
	require.NoError(t, err)
	assert.True(t, mudou)
	assert.Equal(t, db.NotifDescadastrado, h.Status)
	assert.True(t, EhTerminal(h.Status))
}

func TestEventoDesconhecidoNaoMuta(t *testing.T) {
	h := historicoEnviado()
	antes := *h
	_, err := AplicarEvento(h, evento("telepathy", time.Now()))
	assert.ErrorIs(t, err, ErrEventoDesconhecido)
	assert.Equal(t, antes, *h)
}

func TestTimestampZeradoUsaAgora(t *testing.T) {
	h := historicoEnviado()
	_, err := AplicarEvento(h, &Evento{Tipo: "open"})
	require.NoError(t, err)
	require.NotNil(t, h.DataPrimeiraAbertura)
	assert.WithinDuration(t, time.Now(), *h.DataPrimeiraAbertura, time.Second)
}
