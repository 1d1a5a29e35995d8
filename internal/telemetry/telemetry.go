// Package telemetry exposes the daemon's Prometheus metrics.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the daemon's collectors around one registry.
type Metrics struct {
	registry *prometheus.Registry

	turns     *prometheus.CounterVec
	cacheReqs *prometheus.CounterVec
	oracle    *prometheus.HistogramVec
	approvals *prometheus.CounterVec
}

// New creates and registers the collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		turns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "buyerd_turns_total",
				Help: "Conversation turns handled, by plan kind.",
			},
			[]string{"kind"},
		),
		cacheReqs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "buyerd_cache_requests_total",
				Help: "Search cache lookups, by hit or miss.",
			},
			[]string{"result"},
		),
		oracle: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "buyerd_oracle_seconds",
				Help:    "Oracle call latency in seconds, by oracle.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"oracle"},
		),
		approvals: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "buyerd_approvals_total",
				Help: "Approval decisions recorded, by decision.",
			},
			[]string{"decision"},
		),
	}
	m.registry.MustRegister(m.turns, m.cacheReqs, m.oracle, m.approvals)
	return m
}

// Registry returns the registry for the metrics endpoint.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveTurn counts one handled turn of the given plan kind.
func (m *Metrics) ObserveTurn(kind string) {
	m.turns.WithLabelValues(kind).Inc()
}

// ObserveCache counts one cache lookup.
func (m *Metrics) ObserveCache(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheReqs.WithLabelValues(result).Inc()
}

// ObserveOracle records one oracle call duration.
func (m *Metrics) ObserveOracle(oracle string, d time.Duration) {
	m.oracle.WithLabelValues(oracle).Observe(d.Seconds())
}

// ObserveApproval counts one recorded decision.
func (m *Metrics) ObserveApproval(accepted bool) {
	decision := "rejected"
	if accepted {
		decision = "accepted"
	}
	m.approvals.WithLabelValues(decision).Inc()
}
