package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Результаты публикации outbox (значение label result).
const (
	PublishSent      = "sent"
	PublishRetry     = "retry_error"
	PublishFailed    = "failed"
	PublishDLQFailed = "dlq_failed"
)

// OutboxMetrics описывает доставку событий продаж из outbox в Kafka.
type OutboxMetrics struct {
	attempts  *prometheus.CounterVec
	pending   prometheus.Gauge
	oldestAge prometheus.Gauge
}

// NewOutboxMetrics регистрирует метрики в prometheus.DefaultRegisterer.
func NewOutboxMetrics() *OutboxMetrics {
	return NewOutboxMetricsWith(prometheus.DefaultRegisterer)
}

func NewOutboxMetricsWith(registerer prometheus.Registerer) *OutboxMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	return &OutboxMetrics{
		attempts: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "orcamentos_outbox_publish_attempts_total",
			Help: "Total number of outbox publish attempts grouped by result",
		}, []string{"result"}),
		pending: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "orcamentos_outbox_pending_records",
			Help: "Current number of pending sale events in the outbox",
		}),
		oldestAge: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "orcamentos_outbox_oldest_pending_age_seconds",
			Help: "Age in seconds of the oldest pending sale event",
		}),
	}
}

// PublishResult увеличивает счётчик попыток с данным результатом.
func (m *OutboxMetrics) PublishResult(result string) {
	m.attempts.WithLabelValues(result).Inc()
}

// Backlog выставляет размер очереди и возраст самого старого события.
func (m *OutboxMetrics) Backlog(pending int, oldestAge time.Duration) {
	if oldestAge < 0 {
		oldestAge = 0
	}
	m.pending.Set(float64(pending))
	m.oldestAge.Set(oldestAge.Seconds())
}
