package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	backendStarts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "medassist",
			Subsystem: "backend",
			Name:      "starts_total",
			Help:      "Number of backend launches that reached readiness.",
		},
	)
	backendStartFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "medassist",
			Subsystem: "backend",
			Name:      "start_failures_total",
			Help:      "Number of failed backend launches by reason (spawn, exited, not_ready).",
		}, []string{"reason"},
	)
	backendStops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "medassist",
			Subsystem: "backend",
			Name:      "stops_total",
			Help:      "Number of backend terminations by mode (graceful, killed, exited).",
		}, []string{"mode"},
	)
	backendReady = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "medassist",
			Subsystem: "backend",
			Name:      "ready_seconds",
			Help:      "Time from spawn until the backend was considered ready.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 3, 5, 10, 20, 30, 60},
		},
	)
	probeResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "medassist",
			Subsystem: "probe",
			Name:      "results_total",
			Help:      "Integration probe outcomes per check (pass, warn, fail).",
		}, []string{"check", "outcome"},
	)
	probeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "medassist",
			Subsystem: "probe",
			Name:      "duration_seconds",
			Help:      "Round-trip time of each integration probe request.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"check"},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{backendStarts, backendStartFailures, backendStops, backendReady, probeResults, probeDuration}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			// If already registered, ignore (allows double Register with default registry)
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler that serves Prometheus metrics for the DefaultGatherer.
func Handler() http.Handler { return promhttp.Handler() }

// WriteTextfile writes the default gatherer to path in the node_exporter textfile format.
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, prometheus.DefaultGatherer)
}

// Below are lightweight helpers used by internal packages to record metrics.
// They no-op if Register hasn't been called.

func IncBackendStart() {
	if regOK.Load() {
		backendStarts.Inc()
	}
}

func IncBackendStartFailure(reason string) {
	if regOK.Load() {
		backendStartFailures.WithLabelValues(reason).Inc()
	}
}

func IncBackendStop(mode string) {
	if regOK.Load() {
		backendStops.WithLabelValues(mode).Inc()
	}
}

func ObserveBackendReady(seconds float64) {
	if regOK.Load() {
		backendReady.Observe(seconds)
	}
}

func IncProbeResult(check, outcome string) {
	if regOK.Load() {
		probeResults.WithLabelValues(check, outcome).Inc()
	}
}

func ObserveProbeDuration(check string, seconds float64) {
	if regOK.Load() {
		probeDuration.WithLabelValues(check).Observe(seconds)
	}
}
