package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orcamentos/internal/domain"
	"github.com/vladislavdragonenkov/orcamentos/internal/metrics"
)

const (
	defaultPollInterval   = 1 * time.Second
	defaultBatchSize      = 100
	defaultMaxAttempts    = 3
	defaultRetryBaseDelay = 50 * time.Millisecond
	maxRetryDelay         = 30 * time.Second
)

// Recorder получает результаты публикации и состояние очереди.
type Recorder interface {
	PublishResult(result string)
	Backlog(pending int, oldestAge time.Duration)
}

type noopRecorder struct{}

func (noopRecorder) PublishResult(string)       {}
func (noopRecorder) Backlog(int, time.Duration) {}

type settings struct {
	logger         *log.Entry
	dlq            domain.OutboxPublisher
	recorder       Recorder
	pollInterval   time.Duration
	batchSize      int
	maxAttempts    int
	retryBaseDelay time.Duration
}

// Option настраивает Worker.
type Option func(*settings)

func WithLogger(logger *log.Entry) Option {
	return func(s *settings) { s.logger = logger }
}

// WithDLQPublisher задаёт топик для событий, которые не удалось доставить за maxAttempts.
func WithDLQPublisher(publisher domain.OutboxPublisher) Option {
	return func(s *settings) { s.dlq = publisher }
}

func WithMetrics(recorder Recorder) Option {
	return func(s *settings) { s.recorder = recorder }
}

func WithPollInterval(interval time.Duration) Option {
	return func(s *settings) { s.pollInterval = interval }
}

func WithBatchSize(batchSize int) Option {
	return func(s *settings) { s.batchSize = batchSize }
}

func WithMaxAttempts(maxAttempts int) Option {
	return func(s *settings) { s.maxAttempts = maxAttempts }
}

// WithRetryBaseDelay задаёт первую паузу между попытками; дальше она удваивается.
func WithRetryBaseDelay(delay time.Duration) Option {
	return func(s *settings) { s.retryBaseDelay = delay }
}

// Worker переносит события продаж из outbox_events в брокер.
// Запись помечается sent только после успешной публикации: доставка at-least-once,
// потребители дедуплицируют по id конверта.
type Worker struct {
	repo      domain.OutboxRepository
	publisher domain.OutboxPublisher
	cfg       settings
}

// deliveryResult — итог обработки одного события.
type deliveryResult int

const (
	delivered deliveryResult = iota
	deadLettered
	interrupted
)

// deadLetter — тело сообщения в DLQ. Формат читает cmd/dlq-reprocess.
type deadLetter struct {
	OutboxID       string          `json:"outbox_id"`
	AggregateType  string          `json:"aggregate_type"`
	AggregateID    string          `json:"aggregate_id"`
	EventType      string          `json:"event_type"`
	Payload        json.RawMessage `json:"payload"`
	PublishError   string          `json:"publish_error"`
	DLQPublishedAt string          `json:"dlq_published_at"`
}

func NewWorker(repo domain.OutboxRepository, publisher domain.OutboxPublisher, options ...Option) *Worker {
	cfg := settings{
		pollInterval:   defaultPollInterval,
		batchSize:      defaultBatchSize,
		maxAttempts:    defaultMaxAttempts,
		retryBaseDelay: defaultRetryBaseDelay,
	}
	for _, option := range options {
		option(&cfg)
	}

	if cfg.logger == nil {
		cfg.logger = log.WithField("component", "outbox-worker")
	}
	if cfg.recorder == nil {
		cfg.recorder = noopRecorder{}
	}
	if cfg.pollInterval <= 0 {
		cfg.pollInterval = defaultPollInterval
	}
	if cfg.batchSize <= 0 {
		cfg.batchSize = defaultBatchSize
	}
	if cfg.maxAttempts <= 0 {
		cfg.maxAttempts = defaultMaxAttempts
	}
	if cfg.retryBaseDelay < 0 {
		cfg.retryBaseDelay = 0
	}

	return &Worker{repo: repo, publisher: publisher, cfg: cfg}
}

// Run опрашивает outbox каждые pollInterval до отмены ctx. Первый цикл выполняется сразу.
func (w *Worker) Run(ctx context.Context) {
	if w.repo == nil || w.publisher == nil {
		w.cfg.logger.Warn("outbox worker is disabled: repo or publisher is nil")
		return
	}

	ticker := time.NewTicker(w.cfg.pollInterval)
	defer ticker.Stop()

	for {
		w.ProcessOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// ProcessOnce публикует одну пачку pending-событий и возвращает,
// сколько доставлено и сколько ушло в DLQ.
func (w *Worker) ProcessOnce(ctx context.Context) (sent, failed int) {
	if ctx.Err() != nil {
		return 0, 0
	}
	defer w.observeBacklog(ctx)

	batch, err := w.repo.PullPending(ctx, w.cfg.batchSize)
	if err != nil {
		w.cfg.logger.WithError(err).Warn("failed to pull pending outbox messages")
		return 0, 0
	}

	for _, msg := range batch {
		switch w.deliver(ctx, msg) {
		case delivered:
			sent++
		case deadLettered:
			failed++
		case interrupted:
			return sent, failed
		}
	}

	if sent+failed > 0 {
		w.cfg.logger.WithFields(log.Fields{"sent": sent, "failed": failed}).Debug("outbox batch processed")
	}
	return sent, failed
}

func (w *Worker) deliver(ctx context.Context, msg domain.OutboxMessage) deliveryResult {
	entry := w.cfg.logger.WithFields(log.Fields{
		"outbox_id":  msg.ID,
		"event_type": msg.EventType,
		"venda_id":   msg.AggregateID,
	})

	publishErr := w.publishWithRetry(ctx, msg)
	if publishErr == nil {
		if err := w.repo.MarkSent(ctx, msg.ID); err != nil {
			entry.WithError(err).Warn("failed to mark outbox message as sent")
		}
		return delivered
	}
	if ctx.Err() != nil {
		// Запись остаётся pending и будет отправлена после рестарта.
		return interrupted
	}

	entry.WithError(publishErr).Error("outbox publish failed after retries")
	w.cfg.recorder.PublishResult(metrics.PublishFailed)

	if err := w.sendToDLQ(msg, publishErr); err != nil {
		entry.WithError(err).Warn("failed to publish to DLQ")
		w.cfg.recorder.PublishResult(metrics.PublishDLQFailed)
	}
	if err := w.repo.MarkFailed(ctx, msg.ID); err != nil {
		entry.WithError(err).Warn("failed to mark outbox message as failed")
	}
	return deadLettered
}

func (w *Worker) publishWithRetry(ctx context.Context, msg domain.OutboxMessage) error {
	var lastErr error
	for attempt := 1; attempt <= w.cfg.maxAttempts; attempt++ {
		if attempt > 1 {
			if err := sleepContext(ctx, w.backoff(attempt-1)); err != nil {
				return err
			}
		}

		lastErr = w.publisher.Publish(msg)
		if lastErr == nil {
			w.cfg.recorder.PublishResult(metrics.PublishSent)
			return nil
		}
		w.cfg.recorder.PublishResult(metrics.PublishRetry)
	}
	return fmt.Errorf("publish failed after %d attempts: %w", w.cfg.maxAttempts, lastErr)
}

// backoff возвращает паузу перед повтором номер retry (с 1): base, 2*base, 4*base...
func (w *Worker) backoff(retry int) time.Duration {
	delay := w.cfg.retryBaseDelay
	for i := 1; i < retry && delay > 0 && delay < maxRetryDelay; i++ {
		delay *= 2
	}
	if delay > maxRetryDelay {
		return maxRetryDelay
	}
	return delay
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (w *Worker) observeBacklog(ctx context.Context) {
	stats, err := w.repo.Stats(ctx)
	if err != nil {
		w.cfg.logger.WithError(err).Debug("failed to collect outbox backlog stats")
		return
	}
	var age time.Duration
	if stats.PendingCount > 0 && !stats.OldestPendingAt.IsZero() {
		age = time.Since(stats.OldestPendingAt)
	}
	w.cfg.recorder.Backlog(stats.PendingCount, age)
}

func (w *Worker) sendToDLQ(msg domain.OutboxMessage, publishErr error) error {
	if w.cfg.dlq == nil {
		return nil
	}

	payload := json.RawMessage(msg.Payload)
	if !json.Valid(payload) {
		quoted, _ := json.Marshal(string(msg.Payload))
		payload = quoted
	}
	body, err := json.Marshal(deadLetter{
		OutboxID:       msg.ID,
		AggregateType:  msg.AggregateType,
		AggregateID:    msg.AggregateID,
		EventType:      msg.EventType,
		Payload:        payload,
		PublishError:   publishErr.Error(),
		DLQPublishedAt: time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("marshal dlq payload: %w", err)
	}

	dead := msg
	dead.Payload = body
	if err := w.cfg.dlq.Publish(dead); err != nil {
		return fmt.Errorf("publish to dlq: %w", err)
	}
	return nil
}
