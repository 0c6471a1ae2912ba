package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/cobrefacil/lembra/internal/api"
	"github.com/cobrefacil/lembra/internal/circuitbreaker"
	"github.com/cobrefacil/lembra/internal/config"
	"github.com/cobrefacil/lembra/internal/db"
	"github.com/cobrefacil/lembra/internal/dispatch"
	"github.com/cobrefacil/lembra/internal/importer"
	"github.com/cobrefacil/lembra/internal/metrics"
	"github.com/cobrefacil/lembra/internal/observ"
	"github.com/cobrefacil/lembra/internal/redis"
	"github.com/cobrefacil/lembra/internal/scheduler"
	"github.com/cobrefacil/lembra/internal/template"
	"github.com/cobrefacil/lembra/internal/tracker"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Setup logger
	logger, err := observ.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting lembra gateway",
		zap.String("env", cfg.Env),
		zap.Int("port", cfg.Port),
	)

	// Initialize database connection
	ctx := context.Background()
	database, err := db.New(ctx, db.Config{
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		User:     cfg.DBUser,
		Password: cfg.DBPassword,
		Database: cfg.DBName,
		SSLMode:  cfg.DBSSLMode,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	repo := db.NewRepository(database, logger)

	// Redis backs callback dedup and tenant rate limiting; both degrade
	// gracefully when it is unavailable.
	redisClient, err := redis.New(ctx, redis.Config{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, logger)
	if err != nil {
		logger.Warn("redis unavailable, callback dedup and rate limiting disabled",
			zap.Error(err),
			zap.String("host", cfg.RedisHost),
		)
	}

	var dedup *redis.DedupService
	var rateLimiter *redis.RateLimiter
	if redisClient != nil {
		dedup = redis.NewDedupService(redisClient)
		rateLimiter = redis.NewRateLimiter(redisClient, logger, redis.RateLimitConfig{
			Limit:  cfg.RateLimitPerMinute,
			Window: time.Minute,
		})
		defer redisClient.Close()
	}

	// Channel senders, each behind its own circuit breaker.
	var senders []dispatch.Sender

	sesSender, err := dispatch.NewSESSender(ctx, dispatch.SESConfig{
		Region:    cfg.AWSRegion,
		FromEmail: cfg.SESFromEmail,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to create SES email sender: %w", err)
	}
	senders = append(senders, circuitbreaker.NewProtectedSender(
		sesSender, circuitbreaker.New(circuitbreaker.DefaultConfig("ses"), logger), logger))

	snsSender, err := dispatch.NewSNSSender(ctx, dispatch.SNSConfig{Region: cfg.SNSRegion}, logger)
	if err != nil {
		logger.Warn("SNS sender unavailable, SMS reminders disabled", zap.Error(err))
	} else {
		senders = append(senders, circuitbreaker.NewProtectedSender(
			snsSender, circuitbreaker.New(circuitbreaker.DefaultConfig("sns"), logger), logger))
	}

	if cfg.WhatsAppAPIURL != "" {
		waSender := dispatch.NewWhatsAppSender(logger, dispatch.WhatsAppConfig{
			APIURL:  cfg.WhatsAppAPIURL,
			Token:   cfg.WhatsAppToken,
			Timeout: time.Duration(cfg.WhatsAppTimeout) * time.Second,
		})
		senders = append(senders, circuitbreaker.NewProtectedSender(
			waSender, circuitbreaker.New(circuitbreaker.DefaultConfig("whatsapp"), logger), logger))
	} else {
		logger.Warn("whatsapp API URL not configured, whatsapp reminders disabled")
	}

	var sender dispatch.Sender = dispatch.NewMultiSender(logger, senders...)
	if cfg.Env == "development" {
		// In development nothing leaves the process.
		sender = dispatch.NewLogSender(logger)
	}

	renderer := template.NewRenderer()
	dispatcher := dispatch.New(repo, sender, renderer, logger)

	sched := scheduler.New(repo, dispatcher, scheduler.Config{
		PollInterval:    cfg.SchedulerInterval,
		BatchSize:       cfg.SchedulerBatch,
		MaxTentativas:   cfg.MaxTentativas,
		DispatchTimeout: cfg.DispatchTimeout,
	}, logger)

	schedCtx, schedCancel := context.WithCancel(context.Background())
	defer schedCancel()
	go sched.Start(schedCtx)
	logger.Info("scheduler started")

	pipeline := importer.New(repo, logger)

	var dedupIface tracker.Dedup
	if dedup != nil {
		dedupIface = dedup
	}
	rastreador := tracker.New(repo, dedupIface, logger)

	// Setup router
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	// Custom logging middleware
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration_ms", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	})

	handler := api.NewHandler(logger, repo, pipeline, rastreador, database)

	r.Route("/v1", func(r chi.Router) {
		r.Use(api.RateLimitMiddleware(rateLimiter, logger, api.TenantKeyFunc))
		r.Use(api.RequireTenant)

		r.Post("/regras", handler.CriarRegra)
		r.Get("/regras", handler.ListarRegras)
		r.Get("/regras/{id}", handler.BuscarRegra)

		r.Post("/cobrancas", handler.CriarCobranca)
		r.Get("/cobrancas", handler.ListarCobrancas)
		r.Get("/cobrancas/{id}", handler.BuscarCobranca)
		r.Post("/cobrancas/{id}/cancelar", handler.CancelarCobranca)

		r.Post("/importacoes/json", handler.ImportarJSON)
		r.Post("/importacoes/planilha", handler.ImportarPlanilha)
		r.Post("/importacoes/webhook", handler.ImportarWebhook)
		r.Get("/importacoes", handler.ListarImportacoes)
		r.Get("/importacoes/{id}", handler.BuscarImportacao)

		r.Post("/callbacks/provedor", handler.ReceberCallbacks)

		r.Get("/notificacoes", handler.ListarNotificacoes)
		r.Get("/notificacoes/{id}", handler.BuscarNotificacao)
	})

	// Health check
	r.Get("/health", handler.Health)

	// Prometheus metrics endpoint
	r.Handle("/metrics", metrics.Handler())

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", srv.Addr))
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))

		// Stop claiming before draining HTTP so in-flight sends finish.
		schedCancel()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			srv.Close()
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}

		logger.Info("server stopped gracefully")
	}

	return nil
}
