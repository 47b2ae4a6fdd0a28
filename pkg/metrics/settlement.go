package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SettlementMetrics tracks payment resolution and escrow movement.
type SettlementMetrics struct {
	intents    *prometheus.CounterVec
	resolution *prometheus.HistogramVec
	pollRounds *prometheus.CounterVec
	reserve    *prometheus.CounterVec
	inflight   prometheus.Gauge
}

func NewSettlementMetrics(reg prometheus.Registerer) *SettlementMetrics {
	if reg == nil {
		return &SettlementMetrics{}
	}
	m := &SettlementMetrics{
		intents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_intents_resolved_total",
			Help:      "Payment intents that reached a terminal status.",
		}, []string{"method", "status", "reason"}),
		resolution: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "payment_resolution_seconds",
			Help:      "Time from intent creation to terminal status.",
			Buckets:   []float64{0.5, 1, 2, 3, 5, 10, 20, 30, 45, 60, 90},
		}, []string{"method"}),
		pollRounds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_poll_rounds_total",
			Help:      "Provider status polls by outcome.",
		}, []string{"method", "result"}),
		reserve: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reserve_transitions_total",
			Help:      "Escrow reserve transitions.",
		}, []string{"transition"}),
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "payment_pollers_inflight",
			Help:      "Intents currently being polled by this instance.",
		}),
	}
	reg.MustRegister(m.intents, m.resolution, m.pollRounds, m.reserve, m.inflight)
	return m
}

// IntentResolved records the terminal status of an intent.
func (m *SettlementMetrics) IntentResolved(method, status, reason string, elapsed time.Duration) {
	if m == nil || m.intents == nil {
		return
	}
	m.intents.WithLabelValues(normalizeLabel(method), normalizeLabel(status), reasonLabel(reason)).Inc()
	if elapsed > 0 {
		m.resolution.WithLabelValues(normalizeLabel(method)).Observe(elapsed.Seconds())
	}
}

// PollRound records one provider status check.
func (m *SettlementMetrics) PollRound(method, result string) {
	if m == nil || m.pollRounds == nil {
		return
	}
	m.pollRounds.WithLabelValues(normalizeLabel(method), normalizeLabel(result)).Inc()
}

// ReserveTransition records held, released, refunded, frozen or unfrozen.
func (m *SettlementMetrics) ReserveTransition(transition string) {
	if m == nil || m.reserve == nil {
		return
	}
	m.reserve.WithLabelValues(normalizeLabel(transition)).Inc()
}

func (m *SettlementMetrics) PollerStarted() {
	if m == nil || m.inflight == nil {
		return
	}
	m.inflight.Inc()
}

func (m *SettlementMetrics) PollerStopped() {
	if m == nil || m.inflight == nil {
		return
	}
	m.inflight.Dec()
}

func reasonLabel(reason string) string {
	if reason == "" {
		return "none"
	}
	return reason
}
