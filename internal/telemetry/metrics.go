package telemetry

import "github.com/prometheus/client_golang/prometheus"

// Metrics bundles every Prometheus collector the worker exposes. Built by
// NewMetrics and passed to components by construction, matching the
// teacher's logger/config injection style rather than reading a package
// global at the point of use.
type Metrics struct {
	ClaimsTotal              prometheus.Counter
	CompletesTotal           prometheus.Counter
	ReleasesTotal            *prometheus.CounterVec
	CooldownTransitionsTotal *prometheus.CounterVec
	DeferredSweepsTotal      prometheus.Counter
	CheckOutcomesTotal       *prometheus.CounterVec
}

// NewMetrics constructs every collector under the steamid_validator
// namespace, ready to be registered with a prometheus.Registry via
// Metrics.Collectors.
func NewMetrics() *Metrics {
	return &Metrics{
		ClaimsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "steamid_validator",
			Subsystem: "queue",
			Name:      "claims_total",
			Help:      "Total number of items claimed from the remote queue.",
		}),
		CompletesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "steamid_validator",
			Subsystem: "queue",
			Name:      "completes_total",
			Help:      "Total number of profiles acknowledged complete.",
		}),
		ReleasesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "steamid_validator",
			Subsystem: "queue",
			Name:      "releases_total",
			Help:      "Total number of items released back to the queue, by reason.",
		}, []string{"reason"}),
		CooldownTransitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "steamid_validator",
			Subsystem: "cooldown",
			Name:      "transitions_total",
			Help:      "Total number of cooldowns applied, by endpoint and reason.",
		}, []string{"endpoint", "reason"}),
		DeferredSweepsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "steamid_validator",
			Subsystem: "checkstore",
			Name:      "deferred_sweeps_total",
			Help:      "Total number of ConvertDeferredToToCheck sweeps that changed at least one status.",
		}),
		CheckOutcomesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "steamid_validator",
			Subsystem: "checkstore",
			Name:      "check_outcomes_total",
			Help:      "Total number of check status transitions, by check name and resulting status.",
		}, []string{"check", "status"}),
	}
}

// Collectors returns every collector for registration with a
// prometheus.Registry.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.ClaimsTotal,
		m.CompletesTotal,
		m.ReleasesTotal,
		m.CooldownTransitionsTotal,
		m.DeferredSweepsTotal,
		m.CheckOutcomesTotal,
	}
}
