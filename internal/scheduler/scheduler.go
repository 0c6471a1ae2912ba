// Package scheduler polls for due charges and drives them through the
// dispatcher. The claim is a conditional status flip in the database, so any
// number of scheduler instances can poll the same table without sending a
// charge twice.
package scheduler

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cobrefacil/lembra/internal/db"
	"github.com/cobrefacil/lembra/internal/dispatch"
	"github.com/cobrefacil/lembra/internal/metrics"
)

// Repository is the slice of the repository the scheduler needs.
type Repository interface {
	BuscarCobrancasDevidas(ctx context.Context, limit int) ([]*db.Cobranca, error)
	ReivindicarCobranca(ctx context.Context, id uuid.UUID) (int, bool, error)
	DevolverCobranca(ctx context.Context, id uuid.UUID, ultimoErro string) error
	FinalizarCobranca(ctx context.Context, id uuid.UUID, status string, ultimoErro *string) error
}

// Processador sends one claimed charge. Satisfied by *dispatch.Dispatcher.
type Processador interface {
	Processar(ctx context.Context, c *db.Cobranca) error
}

type Config struct {
	PollInterval    time.Duration
	BatchSize       int
	MaxTentativas   int
	DispatchTimeout time.Duration
}

type Scheduler struct {
	repo   Repository
	proc   Processador
	config Config
	logger *zap.Logger
}

func New(repo Repository, proc Processador, cfg Config, logger *zap.Logger) *Scheduler {
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 30 * time.Second
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 50
	}
	if cfg.MaxTentativas == 0 {
		cfg.MaxTentativas = 5
	}
	if cfg.DispatchTimeout == 0 {
		cfg.DispatchTimeout = 20 * time.Second
	}

	return &Scheduler{
		repo:   repo,
		proc:   proc,
		config: cfg,
		logger: logger,
	}
}

// Start polls until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	s.logger.Info("scheduler started",
		zap.Duration("poll_interval", s.config.PollInterval),
		zap.Int("batch_size", s.config.BatchSize),
		zap.Int("max_tentativas", s.config.MaxTentativas),
	)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopping")
			return
		case <-ticker.C:
			s.ProcessarLote(ctx)
		}
	}
}

// ProcessarLote claims and dispatches one batch of due charges. Exported so
// operators can trigger a cycle outside the ticker.
func (s *Scheduler) ProcessarLote(ctx context.Context) {
	cobrancas, err := s.repo.BuscarCobrancasDevidas(ctx, s.config.BatchSize)
	if err != nil {
		s.logger.Error("failed to list due charges", zap.Error(err))
		return
	}
	if len(cobrancas) == 0 {
		return
	}

	s.logger.Debug("due charges found", zap.Int("count", len(cobrancas)))

	for _, c := range cobrancas {
		if ctx.Err() != nil {
			return
		}
		s.processarCobranca(ctx, c)
	}
}

func (s *Scheduler) processarCobranca(ctx context.Context, c *db.Cobranca) {
	// The claim increments and returns the live attempt counter. The scan
	// snapshot in c may be stale: another instance can burn attempts between
	// our scan and our claim, and writing a counter derived from the snapshot
	// would regress it.
	tentativas, claimed, err := s.repo.ReivindicarCobranca(ctx, c.ID)
	if err != nil {
		s.logger.Error("failed to claim charge",
			zap.Error(err),
			zap.String("cobranca_id", c.ID.String()),
		)
		return
	}
	if !claimed {
		// Another instance won the race. Not an error.
		metrics.RecordLostClaim()
		s.logger.Debug("charge already claimed elsewhere",
			zap.String("cobranca_id", c.ID.String()),
		)
		return
	}
	metrics.RecordClaim()

	dispatchCtx, cancel := context.WithTimeout(ctx, s.config.DispatchTimeout)
	err = s.proc.Processar(dispatchCtx, c)
	cancel()

	if err == nil {
		if err := s.repo.FinalizarCobranca(ctx, c.ID, db.CobrancaEnviada, nil); err != nil {
			s.logger.Error("failed to finalize sent charge",
				zap.Error(err),
				zap.String("cobranca_id", c.ID.String()),
			)
		}
		return
	}

	msg := err.Error()

	if dispatch.EhPermanente(err) {
		s.logger.Warn("charge failed permanently",
			zap.Error(err),
			zap.String("cobranca_id", c.ID.String()),
			zap.Int("tentativas", tentativas),
		)
		if err := s.repo.FinalizarCobranca(ctx, c.ID, db.CobrancaErro, &msg); err != nil {
			s.logger.Error("failed to finalize errored charge",
				zap.Error(err),
				zap.String("cobranca_id", c.ID.String()),
			)
		}
		return
	}

	if tentativas >= s.config.MaxTentativas {
		s.logger.Warn("charge exhausted retry budget",
			zap.Error(err),
			zap.String("cobranca_id", c.ID.String()),
			zap.Int("tentativas", tentativas),
		)
		if err := s.repo.FinalizarCobranca(ctx, c.ID, db.CobrancaErro, &msg); err != nil {
			s.logger.Error("failed to finalize exhausted charge",
				zap.Error(err),
				zap.String("cobranca_id", c.ID.String()),
			)
		}
		return
	}

	s.logger.Info("transient failure, re-queueing charge",
		zap.Error(err),
		zap.String("cobranca_id", c.ID.String()),
		zap.Int("tentativas", tentativas),
	)
	if err := s.repo.DevolverCobranca(ctx, c.ID, msg); err != nil {
		s.logger.Error("failed to re-queue charge",
			zap.Error(err),
			zap.String("cobranca_id", c.ID.String()),
		)
	}
}
