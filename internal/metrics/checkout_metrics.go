package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CheckoutMetrics содержит метрики корзины, оформления и сверки платежей.
type CheckoutMetrics struct {
	// Корзина
	cartMutations *prometheus.CounterVec
	cartRollbacks prometheus.Counter

	// Оформление
	checkoutAttempts *prometheus.CounterVec
	checkoutDuration prometheus.Histogram

	// Платёжные сессии и сверка
	paymentOutcomes    *prometheus.CounterVec
	reconcileConflicts prometheus.Counter
	statusReports      *prometheus.CounterVec
	stepDuration       *prometheus.HistogramVec

	timelineEvents prometheus.Counter
	outboxEvents   prometheus.Counter

	// Gauge для открытых платёжных сессий
	activeSessions prometheus.Gauge
}

// NewCheckoutMetrics создаёт метрики в prometheus.DefaultRegisterer.
func NewCheckoutMetrics() *CheckoutMetrics {
	return NewCheckoutMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewCheckoutMetricsWithRegisterer регистрирует метрики в переданном registerer.
// Повторная регистрация возвращает уже существующие коллекторы.
func NewCheckoutMetricsWithRegisterer(registerer prometheus.Registerer) *CheckoutMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &CheckoutMetrics{
		cartMutations: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_cart_mutations_total",
			Help: "Total number of cart mutations grouped by operation and result",
		}, []string{"op", "result"}),
		cartRollbacks: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_cart_rollbacks_total",
			Help: "Total number of optimistic cart mutations rolled back",
		}),
		checkoutAttempts: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_checkout_attempts_total",
			Help: "Total number of checkout submissions grouped by result",
		}, []string{"result"}),
		checkoutDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "storefront_checkout_duration_seconds",
			Help:    "Duration of checkout submissions in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		paymentOutcomes: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_payment_outcomes_total",
			Help: "Total number of reconciled payment outcomes grouped by kind",
		}, []string{"kind"}),
		reconcileConflicts: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_reconcile_conflicts_total",
			Help: "Total number of duplicate terminal outcomes dropped by the reconciler",
		}),
		statusReports: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_status_reports_total",
			Help: "Total number of transaction status reports grouped by result",
		}, []string{"result"}),
		stepDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "storefront_reconcile_step_duration_seconds",
			Help:    "Duration of individual reconciliation steps in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"step"}),
		timelineEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_timeline_events_total",
			Help: "Total number of order timeline events recorded",
		}),
		outboxEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_outbox_events_total",
			Help: "Total number of status reports queued in the outbox",
		}),
		activeSessions: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "storefront_active_payment_sessions",
			Help: "Number of payment sessions awaiting the user",
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

func registerHistogram(registerer prometheus.Registerer, opts prometheus.HistogramOpts) prometheus.Histogram {
	collector := prometheus.NewHistogram(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Histogram)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram %q: %v", opts.Name, err))
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

// Методы ниже допускают nil-получатель: компоненты без метрик просто не пишут их.

// RecordCartMutation учитывает мутацию корзины (op: add, set_quantity, remove, refresh).
func (m *CheckoutMetrics) RecordCartMutation(op, result string) {
	if m == nil {
		return
	}
	m.cartMutations.WithLabelValues(op, result).Inc()
}

// RecordCartRollback увеличивает счётчик откатов.
func (m *CheckoutMetrics) RecordCartRollback() {
	if m == nil {
		return
	}
	m.cartRollbacks.Inc()
}

// RecordCheckout учитывает попытку оформления и её длительность.
func (m *CheckoutMetrics) RecordCheckout(result string, duration time.Duration) {
	if m == nil {
		return
	}
	m.checkoutAttempts.WithLabelValues(result).Inc()
	m.checkoutDuration.Observe(duration.Seconds())
}

// RecordSessionOpened увеличивает число открытых платёжных сессий.
func (m *CheckoutMetrics) RecordSessionOpened() {
	if m == nil {
		return
	}
	m.activeSessions.Inc()
}

// RecordSessionResolved уменьшает число открытых сессий.
func (m *CheckoutMetrics) RecordSessionResolved() {
	if m == nil {
		return
	}
	m.activeSessions.Dec()
}

// RecordPaymentOutcome учитывает применённый исход платежа.
func (m *CheckoutMetrics) RecordPaymentOutcome(kind string) {
	if m == nil {
		return
	}
	m.paymentOutcomes.WithLabelValues(kind).Inc()
}

// RecordReconcileConflict учитывает отброшенный повторный исход.
func (m *CheckoutMetrics) RecordReconcileConflict() {
	if m == nil {
		return
	}
	m.reconcileConflicts.Inc()
}

// RecordStatusReport учитывает отчёт о статусе (sent, queued, failed).
func (m *CheckoutMetrics) RecordStatusReport(result string) {
	if m == nil {
		return
	}
	m.statusReports.WithLabelValues(result).Inc()
}

// RecordStepDuration записывает время выполнения шага сверки.
func (m *CheckoutMetrics) RecordStepDuration(step string, duration time.Duration) {
	if m == nil {
		return
	}
	m.stepDuration.WithLabelValues(step).Observe(duration.Seconds())
}

// RecordTimelineEvent увеличивает счётчик событий timeline.
func (m *CheckoutMetrics) RecordTimelineEvent() {
	if m == nil {
		return
	}
	m.timelineEvents.Inc()
}

// RecordOutboxEvent увеличивает счётчик событий outbox.
func (m *CheckoutMetrics) RecordOutboxEvent() {
	if m == nil {
		return
	}
	m.outboxEvents.Inc()
}
