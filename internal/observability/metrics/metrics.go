package metrics

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Config carries the constant labels applied to every instrument.
type Config struct {
	ServiceName string
	Environment string
}

// Metrics captures payment and ledger health signals.
type Metrics struct {
	intentsInitiated  *prometheus.CounterVec
	intentTransitions *prometheus.CounterVec
	callbacksApplied  *prometheus.CounterVec
	intentsExpired    prometheus.Counter
	settlementsTotal  *prometheus.CounterVec
	integrityWarnings prometheus.Counter
	providerLatency   *prometheus.HistogramVec
}

var (
	metricsOnce sync.Once
	metrics     *Metrics
)

// Default returns the singleton metrics registry.
func Default() *Metrics {
	return WithConfig(Config{})
}

// WithConfig initializes the singleton with the supplied labels.
func WithConfig(cfg Config) *Metrics {
	metricsOnce.Do(func() {
		metrics = newMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return metrics
}

// ResetForTest clears the singleton so tests can install a fresh registry.
func ResetForTest() {
	metricsOnce = sync.Once{}
	metrics = nil
}

// NewForTest builds metrics against a private registry.
func NewForTest(registerer prometheus.Registerer) *Metrics {
	return newMetrics(registerer, Config{ServiceName: "test", Environment: "test"})
}

func newMetrics(registerer prometheus.Registerer, cfg Config) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "rentledger"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	intentsInitiated := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "rentledger_payment_intents_initiated_total",
		Help:        "Payment intents created, by provider.",
		ConstLabels: constLabels,
	}, []string{"provider"})
	intentTransitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "rentledger_payment_intent_transitions_total",
		Help:        "Intent status transitions recorded by the coordinator.",
		ConstLabels: constLabels,
	}, []string{"from", "to"})
	callbacksApplied := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "rentledger_provider_callbacks_total",
		Help:        "Provider callbacks by outcome, including rejected duplicates.",
		ConstLabels: constLabels,
	}, []string{"outcome"})
	intentsExpired := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "rentledger_payment_intents_expired_total",
		Help:        "Waiting intents expired by the sweep.",
		ConstLabels: constLabels,
	})
	settlementsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "rentledger_ledger_settlements_total",
		Help:        "Ledger credit applications, by result.",
		ConstLabels: constLabels,
	}, []string{"result"})
	integrityWarnings := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "rentledger_ledger_integrity_warnings_total",
		Help:        "Malformed ledger rows skipped during aggregation.",
		ConstLabels: constLabels,
	})
	providerLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "rentledger_provider_request_seconds",
		Help:        "Push-to-pay provider round trip latency.",
		Buckets:     []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		ConstLabels: constLabels,
	}, []string{"provider", "op"})

	registerer.MustRegister(
		intentsInitiated,
		intentTransitions,
		callbacksApplied,
		intentsExpired,
		settlementsTotal,
		integrityWarnings,
		providerLatency,
	)

	return &Metrics{
		intentsInitiated:  intentsInitiated,
		intentTransitions: intentTransitions,
		callbacksApplied:  callbacksApplied,
		intentsExpired:    intentsExpired,
		settlementsTotal:  settlementsTotal,
		integrityWarnings: integrityWarnings,
		providerLatency:   providerLatency,
	}
}

func (m *Metrics) IncIntentInitiated(provider string) {
	if m == nil {
		return
	}
	m.intentsInitiated.WithLabelValues(normalizeLabel(provider)).Inc()
}

func (m *Metrics) IncIntentTransition(from, to string) {
	if m == nil {
		return
	}
	m.intentTransitions.WithLabelValues(normalizeLabel(from), normalizeLabel(to)).Inc()
}

func (m *Metrics) IncCallbackApplied(outcome string) {
	if m == nil {
		return
	}
	m.callbacksApplied.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (m *Metrics) AddIntentsExpired(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.intentsExpired.Add(float64(count))
}

func (m *Metrics) IncSettlement(result string) {
	if m == nil {
		return
	}
	m.settlementsTotal.WithLabelValues(normalizeLabel(result)).Inc()
}

func (m *Metrics) IncIntegrityWarning() {
	if m == nil {
		return
	}
	m.integrityWarnings.Inc()
}

func (m *Metrics) ObserveProviderLatency(provider, op string, duration time.Duration) {
	if m == nil || duration < 0 {
		return
	}
	m.providerLatency.WithLabelValues(normalizeLabel(provider), normalizeLabel(op)).Observe(duration.Seconds())
}

func normalizeLabel(value string) string {
	value = strings.TrimSpace(strings.ToLower(value))
	if value == "" {
		return "unknown"
	}
	return value
}
