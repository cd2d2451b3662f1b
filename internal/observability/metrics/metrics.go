package metrics

import "github.com/prometheus/client_golang/prometheus"

// DispatchMetrics exposes counters/histograms for reminder dispatch.
type DispatchMetrics struct {
	dispatchTotal   *prometheus.CounterVec
	auditFailures   *prometheus.CounterVec
	providerLatency *prometheus.HistogramVec
	idempotentHits  prometheus.Counter
}

func NewDispatchMetrics(reg prometheus.Registerer) *DispatchMetrics {
	m := &DispatchMetrics{
		dispatchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "careplus",
			Subsystem: "dispatch",
			Name:      "requests_total",
			Help:      "Reminder dispatch outcomes by channel and error kind",
		}, []string{"channel", "outcome"}),
		auditFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "careplus",
			Subsystem: "dispatch",
			Name:      "audit_failures_total",
			Help:      "Audit log writes that failed after a successful send",
		}, []string{"channel"}),
		providerLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "careplus",
			Subsystem: "dispatch",
			Name:      "provider_latency_seconds",
			Help:      "Latency of outbound provider calls",
			Buckets:   prometheus.DefBuckets,
		}, []string{"channel", "provider"}),
		idempotentHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "careplus",
			Subsystem: "dispatch",
			Name:      "idempotent_replays_total",
			Help:      "Dispatches answered from a stored Idempotency-Key result",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.dispatchTotal, m.auditFailures, m.providerLatency, m.idempotentHits)
	return m
}

// ObserveDispatch records one dispatch. outcome is "success" or an error kind.
func (m *DispatchMetrics) ObserveDispatch(channel, outcome string) {
	if m == nil {
		return
	}
	if channel == "" {
		channel = "unknown"
	}
	m.dispatchTotal.WithLabelValues(channel, outcome).Inc()
}

func (m *DispatchMetrics) ObserveAuditFailure(channel string) {
	if m == nil {
		return
	}
	m.auditFailures.WithLabelValues(channel).Inc()
}

func (m *DispatchMetrics) ObserveProviderLatency(channel, provider string, seconds float64) {
	if m == nil {
		return
	}
	m.providerLatency.WithLabelValues(channel, provider).Observe(seconds)
}

func (m *DispatchMetrics) ObserveIdempotentReplay() {
	if m == nil {
		return
	}
	m.idempotentHits.Inc()
}
