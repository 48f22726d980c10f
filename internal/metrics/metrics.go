// Package metrics exposes Prometheus counters for rate limiting and payment recovery.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "payments"

// Metrics holds every collector registered by the service.
type Metrics struct {
	rateLimitDecisions *prometheus.CounterVec
	storeDemotions     prometheus.Counter
	retryAttempts      *prometheus.CounterVec
	notifications      *prometheus.CounterVec
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		rateLimitDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ratelimit",
			Name:      "decisions_total",
			Help:      "Rate limit decisions by endpoint category and outcome.",
		}, []string{"category", "outcome"}),
		storeDemotions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ratelimit",
			Name:      "store_demotions_total",
			Help:      "Times the shared rate limit store was abandoned for the local store.",
		}),
		retryAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retry",
			Name:      "attempts_total",
			Help:      "Recorded payment attempts by failure reason and outcome.",
		}, []string{"reason", "outcome"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Customer payment notifications by status.",
		}, []string{"status"}),
	}

	for _, c := range []prometheus.Collector{m.rateLimitDecisions, m.storeDemotions, m.retryAttempts, m.notifications} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// RateLimitDecision counts one limiter decision; outcome is allowed, rejected, blocked or whitelisted.
func (m *Metrics) RateLimitDecision(category, outcome string) {
	if m == nil {
		return
	}
	m.rateLimitDecisions.WithLabelValues(category, outcome).Inc()
}

func (m *Metrics) StoreDemoted() {
	if m == nil {
		return
	}
	m.storeDemotions.Inc()
}

// RetryAttempt counts one recorded attempt; outcome is scheduled, exhausted or succeeded.
func (m *Metrics) RetryAttempt(reason, outcome string) {
	if m == nil {
		return
	}
	m.retryAttempts.WithLabelValues(reason, outcome).Inc()
}

func (m *Metrics) Notification(status string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(status).Inc()
}
