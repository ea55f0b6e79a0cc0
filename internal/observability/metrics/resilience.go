package metrics

import "github.com/prometheus/client_golang/prometheus"

// ResilienceMetrics counts retries and circuit breaker transitions of
// outbound calls. It satisfies resilience.Observer.
type ResilienceMetrics struct {
	service     string
	retries     *prometheus.CounterVec
	transitions *prometheus.CounterVec
}

func NewResilienceMetrics(reg prometheus.Registerer, service string) *ResilienceMetrics {
	retries := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resilience",
			Name:      "retries_total",
			Help:      "Retried outbound calls by operation.",
		},
		[]string{"service", "operation"},
	)
	transitions := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resilience",
			Name:      "breaker_transitions_total",
			Help:      "Circuit breaker state changes by operation.",
		},
		[]string{"service", "operation", "from", "to"},
	)
	reg.MustRegister(retries, transitions)
	return &ResilienceMetrics{service: service, retries: retries, transitions: transitions}
}

func (m *ResilienceMetrics) Retry(operation string) {
	m.retries.WithLabelValues(m.service, operation).Inc()
}

func (m *ResilienceMetrics) BreakerStateChange(operation, from, to string) {
	m.transitions.WithLabelValues(m.service, operation, from, to).Inc()
}
