package idempotency

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orcamentos/internal/domain"
)

const (
	defaultCleanupInterval  = 10 * time.Minute
	defaultCleanupBatchSize = 500
	// maxBatchesPerRun ограничивает один прогон, чтобы большой хвост не держал хранилище.
	maxBatchesPerRun = 1000
)

// CleanupRecorder получает итог каждого прогона очистки.
type CleanupRecorder interface {
	CleanupFinished(deleted int, err error)
}

type cleanupSettings struct {
	logger    *log.Entry
	recorder  CleanupRecorder
	interval  time.Duration
	batchSize int
}

// CleanupOption настраивает CleanupWorker.
type CleanupOption func(*cleanupSettings)

func WithLogger(logger *log.Entry) CleanupOption {
	return func(s *cleanupSettings) { s.logger = logger }
}

func WithInterval(interval time.Duration) CleanupOption {
	return func(s *cleanupSettings) { s.interval = interval }
}

func WithBatchSize(batchSize int) CleanupOption {
	return func(s *cleanupSettings) { s.batchSize = batchSize }
}

func WithCleanupMetrics(recorder CleanupRecorder) CleanupOption {
	return func(s *cleanupSettings) { s.recorder = recorder }
}

// CleanupWorker удаляет ключи idempotency_keys с истёкшим ttl.
// Ключи живут 24 часа после ConfirmSale/CancelSale/CancelInProcessQuote.
type CleanupWorker struct {
	repo domain.IdempotencyRepository
	cfg  cleanupSettings
	now  func() time.Time
}

func NewCleanupWorker(repo domain.IdempotencyRepository, options ...CleanupOption) *CleanupWorker {
	cfg := cleanupSettings{
		interval:  defaultCleanupInterval,
		batchSize: defaultCleanupBatchSize,
	}
	for _, option := range options {
		option(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = log.WithField("component", "idempotency-cleanup-worker")
	}
	if cfg.interval <= 0 {
		cfg.interval = defaultCleanupInterval
	}
	if cfg.batchSize <= 0 {
		cfg.batchSize = defaultCleanupBatchSize
	}

	return &CleanupWorker{
		repo: repo,
		cfg:  cfg,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// Run чистит ключи сразу и затем каждые interval до отмены ctx.
func (w *CleanupWorker) Run(ctx context.Context) {
	if w.repo == nil {
		w.cfg.logger.Warn("idempotency cleanup worker is disabled: repo is nil")
		return
	}

	ticker := time.NewTicker(w.cfg.interval)
	defer ticker.Stop()

	for {
		w.runOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (w *CleanupWorker) runOnce(ctx context.Context) {
	deleted, err := w.DeleteExpired(ctx, w.now())
	if errors.Is(err, context.Canceled) {
		return
	}
	if w.cfg.recorder != nil {
		w.cfg.recorder.CleanupFinished(deleted, err)
	}
	if err != nil {
		w.cfg.logger.WithError(err).WithField("deleted", deleted).Warn("idempotency cleanup run failed")
		return
	}
	if deleted > 0 {
		w.cfg.logger.WithField("deleted", deleted).Info("idempotency cleanup completed")
	}
}

// DeleteExpired удаляет ключи с ttl <= before пачками по batchSize.
// Возвращает число удалённых ключей, даже если прогон прервался ошибкой.
func (w *CleanupWorker) DeleteExpired(ctx context.Context, before time.Time) (int, error) {
	if before.IsZero() {
		before = w.now()
	}

	total := 0
	for batch := 0; batch < maxBatchesPerRun; batch++ {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		deleted, err := w.repo.DeleteExpired(ctx, before, w.cfg.batchSize)
		total += deleted
		if err != nil {
			return total, err
		}
		if deleted < w.cfg.batchSize {
			return total, nil
		}
	}

	w.cfg.logger.WithField("deleted", total).Warn("idempotency cleanup hit batch limit, rest is left for the next run")
	return total, nil
}
