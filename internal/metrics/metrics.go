package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lembra_http_requests_total",
			Help: "Total HTTP requests by method, path, and status",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lembra_http_request_duration_seconds",
			Help:    "HTTP request latency distribution",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	cobrancasReivindicadas = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lembra_cobrancas_reivindicadas_total",
			Help: "Charges successfully claimed by the scheduler",
		},
	)

	reivindicacoesPerdidas = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lembra_reivindicacoes_perdidas_total",
			Help: "Claim attempts lost to a concurrent worker (not an error)",
		},
	)

	disparosTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lembra_disparos_total",
			Help: "Dispatch attempts by channel and outcome (enviado, transitorio, permanente)",
		},
		[]string{"canal", "resultado"},
	)

	disparoLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lembra_disparo_duration_seconds",
			Help:    "Provider send latency distribution",
			Buckets: []float64{.05, .1, .25, .5, 1, 2, 5, 10, 20},
		},
		[]string{"canal"},
	)

	callbacksProcessados = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lembra_callbacks_processados_total",
			Help: "Provider callbacks processed by event type and outcome (aplicado, ignorado, duplicado, erro)",
		},
		[]string{"evento", "resultado"},
	)

	importacaoLinhas = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lembra_importacao_linhas_total",
			Help: "Import rows handled by origin and outcome (processada, com_erro)",
		},
		[]string{"origem", "resultado"},
	)
)

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordRequest records HTTP request metrics
func RecordRequest(method, path string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordClaim records a successful scheduler claim
func RecordClaim() {
	cobrancasReivindicadas.Inc()
}

// RecordLostClaim records a claim lost to a concurrent worker
func RecordLostClaim() {
	reivindicacoesPerdidas.Inc()
}

// RecordDisparo records a dispatch attempt outcome for a channel
func RecordDisparo(canal, resultado string) {
	disparosTotal.WithLabelValues(canal, resultado).Inc()
}

// RecordDisparoLatency records provider send latency
func RecordDisparoLatency(canal string, latency time.Duration) {
	disparoLatency.WithLabelValues(canal).Observe(latency.Seconds())
}

// RecordCallback records a processed provider callback
func RecordCallback(evento, resultado string) {
	callbacksProcessados.WithLabelValues(evento, resultado).Inc()
}

// RecordImportRow records an import row outcome
func RecordImportRow(origem, resultado string) {
	importacaoLinhas.WithLabelValues(origem, resultado).Inc()
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// Middleware returns HTTP middleware that records request metrics
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		RecordRequest(r.Method, r.URL.Path, wrapped.status, time.Since(start))
	})
}
