package lifecycle

import (
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orcamentos/internal/metrics"
)

const defaultCompensationTimeout = 5 * time.Second

// Option настраивает Engine.
type Option func(*Engine)

// WithLogger задаёт logger движка.
func WithLogger(logger *log.Entry) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithMetrics включает запись метрик операций.
func WithMetrics(m *metrics.LifecycleMetrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithClock подменяет источник времени для data_cancelada.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithRejectDuplicateConfirm запрещает повторное выставление сметы,
// у которой уже есть продажа в статусе faturada.
func WithRejectDuplicateConfirm(enabled bool) Option {
	return func(e *Engine) {
		e.rejectDuplicateConfirm = enabled
	}
}

// WithOutboxEvents включает запись событий жизненного цикла в outbox_events.
func WithOutboxEvents(enabled bool) Option {
	return func(e *Engine) {
		e.outboxEvents = enabled
	}
}

// WithCompensationTimeout ограничивает время компенсирующего удаления продажи.
func WithCompensationTimeout(timeout time.Duration) Option {
	return func(e *Engine) {
		if timeout > 0 {
			e.compensationTimeout = timeout
		}
	}
}
