// Package metrics provides Prometheus metrics for the reward engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Manager registers and exposes the reward engine's Prometheus metrics.
// A nil *Manager is a valid no-op recorder, so tests can leave it out.
type Manager struct {
	registry *prometheus.Registry

	mergesProcessed       *prometheus.CounterVec
	processingLatency     prometheus.Histogram
	verificationFallbacks prometheus.Counter
	partnerFailures       prometheus.Counter
	notificationsFailed   prometheus.Counter
}

// NewManager creates a manager with all metrics registered on a private
// registry.
func NewManager() *Manager {
	registry := prometheus.NewRegistry()
	auto := promauto.With(registry)

	m := &Manager{registry: registry}

	m.mergesProcessed = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "devarena",
			Subsystem: "rewards",
			Name:      "merges_processed_total",
			Help:      "Total merged pull requests processed, by ledger outcome",
		},
		[]string{"outcome"},
	)

	m.processingLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "devarena",
		Subsystem: "rewards",
		Name:      "processing_latency_seconds",
		Help:      "End-to-end merge processing latency in seconds",
		Buckets:   prometheus.DefBuckets,
	})

	m.verificationFallbacks = auto.NewCounter(prometheus.CounterOpts{
		Namespace: "devarena",
		Subsystem: "rewards",
		Name:      "verification_fallbacks_total",
		Help:      "First-contribution external checks that failed and fell back to optimistic true",
	})

	m.partnerFailures = auto.NewCounter(prometheus.CounterOpts{
		Namespace: "devarena",
		Subsystem: "rewards",
		Name:      "partner_reward_failures_total",
		Help:      "Partner reward resolutions that failed and were skipped",
	})

	m.notificationsFailed = auto.NewCounter(prometheus.CounterOpts{
		Namespace: "devarena",
		Subsystem: "rewards",
		Name:      "notifications_failed_total",
		Help:      "Reward notifications that could not be delivered",
	})

	return m
}

func (m *Manager) MergeProcessed(outcome string) {
	if m == nil {
		return
	}
	m.mergesProcessed.WithLabelValues(outcome).Inc()
}

func (m *Manager) ObserveProcessingLatency(seconds float64) {
	if m == nil {
		return
	}
	m.processingLatency.Observe(seconds)
}

func (m *Manager) VerificationFallback() {
	if m == nil {
		return
	}
	m.verificationFallbacks.Inc()
}

func (m *Manager) PartnerRewardFailure() {
	if m == nil {
		return
	}
	m.partnerFailures.Inc()
}

func (m *Manager) NotificationsFailed(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.notificationsFailed.Add(float64(count))
}

// Handler exposes the registry for a /metrics route.
func (m *Manager) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
