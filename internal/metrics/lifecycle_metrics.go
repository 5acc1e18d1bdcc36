package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Результаты операций жизненного цикла (значение label outcome).
const (
	OutcomeSuccess      = "success"
	OutcomeNotFound     = "not_found"
	OutcomeInvalidState = "invalid_state"
	OutcomePartialWrite = "partial_write"
	OutcomeTimeout      = "timeout"
	OutcomeStoreFailure = "store_failure"
	OutcomeInternal     = "internal"
)

// LifecycleMetrics содержит метрики операций жизненного цикла продаж.
type LifecycleMetrics struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec

	// Компенсации и частичные записи требуют ручной сверки, поэтому считаются отдельно.
	compensations *prometheus.CounterVec
	partialWrites prometheus.Counter

	outboxEvents *prometheus.CounterVec
	inFlight     prometheus.Gauge
}

// NewLifecycleMetrics регистрирует метрики в prometheus.DefaultRegisterer.
func NewLifecycleMetrics() *LifecycleMetrics {
	return NewLifecycleMetricsWith(prometheus.DefaultRegisterer)
}

// NewLifecycleMetricsWith регистрирует метрики в переданном registerer.
// Повторная регистрация возвращает уже существующие коллекторы.
func NewLifecycleMetricsWith(registerer prometheus.Registerer) *LifecycleMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &LifecycleMetrics{
		operations: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "orcamentos_lifecycle_operations_total",
			Help: "Total number of sale lifecycle operations grouped by operation and outcome",
		}, []string{"operation", "outcome"}),
		duration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "orcamentos_lifecycle_duration_seconds",
			Help:    "Duration of sale lifecycle operations in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"operation"}),
		compensations: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "orcamentos_lifecycle_compensations_total",
			Help: "Total number of compensating deletes grouped by result",
		}, []string{"result"}),
		partialWrites: registerCounter(registerer, prometheus.CounterOpts{
			Name: "orcamentos_lifecycle_partial_writes_total",
			Help: "Total number of partial writes that require manual reconciliation",
		}),
		outboxEvents: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "orcamentos_outbox_events_enqueued_total",
			Help: "Total number of lifecycle events written to the outbox",
		}, []string{"event_type"}),
		inFlight: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "orcamentos_lifecycle_in_flight",
			Help: "Number of lifecycle operations currently in progress",
		}),
	}
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerGauge(registerer prometheus.Registerer, opts prometheus.GaugeOpts) prometheus.Gauge {
	collector := prometheus.NewGauge(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Gauge)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register gauge %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogramVec(registerer prometheus.Registerer, opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
	collector := prometheus.NewHistogramVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.HistogramVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram vec %q: %v", opts.Name, err))
	}
	return collector
}

// OperationStarted отмечает начало операции.
func (m *LifecycleMetrics) OperationStarted() {
	m.inFlight.Inc()
}

// OperationFinished фиксирует результат и длительность операции.
func (m *LifecycleMetrics) OperationFinished(operation, outcome string, duration time.Duration) {
	m.inFlight.Dec()
	m.operations.WithLabelValues(operation, outcome).Inc()
	m.duration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordCompensation считает компенсирующее удаление продажи; ok=false — удаление не удалось.
func (m *LifecycleMetrics) RecordCompensation(ok bool) {
	result := "succeeded"
	if !ok {
		result = "failed"
	}
	m.compensations.WithLabelValues(result).Inc()
}

// RecordPartialWrite увеличивает счётчик частичных записей.
func (m *LifecycleMetrics) RecordPartialWrite() {
	m.partialWrites.Inc()
}

// RecordOutboxEvent считает событие, записанное в outbox.
func (m *LifecycleMetrics) RecordOutboxEvent(eventType string) {
	m.outboxEvents.WithLabelValues(eventType).Inc()
}
