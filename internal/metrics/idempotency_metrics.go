package metrics

import "github.com/prometheus/client_golang/prometheus"

// IdempotencyMetrics описывает очистку просроченных ключей идемпотентности.
type IdempotencyMetrics struct {
	runs        *prometheus.CounterVec
	deleted     prometheus.Counter
	lastDeleted prometheus.Gauge
}

func NewIdempotencyMetrics() *IdempotencyMetrics {
	return NewIdempotencyMetricsWith(prometheus.DefaultRegisterer)
}

func NewIdempotencyMetricsWith(registerer prometheus.Registerer) *IdempotencyMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	return &IdempotencyMetrics{
		runs: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "orcamentos_idempotency_cleanup_runs_total",
			Help: "Total number of idempotency cleanup runs grouped by result",
		}, []string{"result"}),
		deleted: registerCounter(registerer, prometheus.CounterOpts{
			Name: "orcamentos_idempotency_cleanup_deleted_total",
			Help: "Total number of deleted expired idempotency keys",
		}),
		lastDeleted: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "orcamentos_idempotency_cleanup_last_deleted",
			Help: "Number of keys deleted during the last cleanup run",
		}),
	}
}

// CleanupFinished фиксирует итог прогона; при ошибке deleted не учитывается.
func (m *IdempotencyMetrics) CleanupFinished(deleted int, err error) {
	if err != nil {
		m.runs.WithLabelValues("error").Inc()
		return
	}
	m.runs.WithLabelValues("ok").Inc()
	m.deleted.Add(float64(deleted))
	m.lastDeleted.Set(float64(deleted))
}
