package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "heatmyhome_form"

// Metrics holds the Prometheus counters, histograms, and gauges for the form service.
type Metrics struct {
	// Registry lookups.
	LookupRequests *prometheus.CounterVec   // labels: service={postcodes,epc-directory,epc-certificate}, outcome={success,connectivity,service_error}
	LookupDuration *prometheus.HistogramVec // labels: service

	// Validation pipeline.
	StaleCompletions *prometheus.CounterVec // labels: field
	GateTransitions  *prometheus.CounterVec // labels: ready={true,false}
	SessionsActive   prometheus.Gauge

	// Simulation dispatch.
	DispatchTotal    *prometheus.CounterVec   // labels: backend, outcome
	DispatchDuration *prometheus.HistogramVec // labels: backend
}

// NewMetrics creates and registers all service metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		LookupRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lookup_requests_total",
			Help:      "Registry lookups by service and outcome.",
		}, []string{"service", "outcome"}),
		LookupDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "lookup_duration_seconds",
			Help:      "Registry request duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"service"}),
		StaleCompletions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stale_completions_total",
			Help:      "Validation attempts discarded because a newer attempt superseded them.",
		}, []string{"field"}),
		GateTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gate_transitions_total",
			Help:      "Submission gate readiness transitions.",
		}, []string{"ready"}),
		SessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Form sessions currently held in memory.",
		}),
		DispatchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_total",
			Help:      "Simulation submissions by backend and outcome.",
		}, []string{"backend", "outcome"}),
		DispatchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dispatch_duration_seconds",
			Help:      "Simulation runtime in seconds, up to the dispatch timeout.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		}, []string{"backend"}),
	}

	prometheus.MustRegister(
		m.LookupRequests,
		m.LookupDuration,
		m.StaleCompletions,
		m.GateTransitions,
		m.SessionsActive,
		m.DispatchTotal,
		m.DispatchDuration,
	)

	return m
}

// NewMetricsForTesting creates Metrics with a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return NewUnregisteredMetrics()
}

// NewUnregisteredMetrics creates Metrics that are not registered with the
// default registry. Short-lived tools that never serve /metrics use it.
func NewUnregisteredMetrics() *Metrics {
	return &Metrics{
		LookupRequests:   prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "lookup_requests_total"}, []string{"service", "outcome"}),
		LookupDuration:   prometheus.NewHistogramVec(prometheus.HistogramOpts{Namespace: namespace, Name: "lookup_duration_seconds"}, []string{"service"}),
		StaleCompletions: prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "stale_completions_total"}, []string{"field"}),
		GateTransitions:  prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "gate_transitions_total"}, []string{"ready"}),
		SessionsActive:   prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "sessions_active"}),
		DispatchTotal:    prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "dispatch_total"}, []string{"backend", "outcome"}),
		DispatchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{Namespace: namespace, Name: "dispatch_duration_seconds"}, []string{"backend"}),
	}
}
