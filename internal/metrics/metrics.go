package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "imagechain"

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		},
		[]string{"method", "route"},
	)

	// Provider calls are minutes long, buckets follow.
	ProviderCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "calls_total",
			Help:      "Total outbound provider calls",
		},
		[]string{"provider", "operation", "status"},
	)

	ProviderCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "call_duration_seconds",
			Help:      "Outbound provider call duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300},
		},
		[]string{"provider", "operation"},
	)

	NormalizeTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "normalizer",
			Name:      "runs_total",
			Help:      "Normalizer runs by outcome",
		},
		[]string{"outcome"},
	)

	NormalizeQuality = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "normalizer",
			Name:      "final_quality",
			Help:      "Encoder quality that first met the byte budget",
			Buckets:   []float64{20, 30, 40, 50, 60, 70, 80, 85},
		},
	)

	TransformationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "history",
			Name:      "transformations_total",
			Help:      "Orchestrated transformations by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)
)

// RecordRequest records an HTTP request
func RecordRequest(method, route, status string, durationSec float64) {
	RequestsTotal.WithLabelValues(method, route, status).Inc()
	RequestDuration.WithLabelValues(method, route).Observe(durationSec)
}

// RecordProviderCall records one outbound call. status is the HTTP status
// or "error" for transport failures.
func RecordProviderCall(provider, operation, status string, durationSec float64) {
	ProviderCallsTotal.WithLabelValues(provider, operation, status).Inc()
	ProviderCallDuration.WithLabelValues(provider, operation).Observe(durationSec)
}

// RecordNormalize records a normalizer outcome: passthrough, encoded or error.
func RecordNormalize(outcome string, quality int) {
	NormalizeTotal.WithLabelValues(outcome).Inc()
	if outcome == "encoded" && quality > 0 {
		NormalizeQuality.Observe(float64(quality))
	}
}

// RecordTransformation records an orchestrated transformation outcome.
func RecordTransformation(kind, outcome string) {
	TransformationsTotal.WithLabelValues(kind, outcome).Inc()
}
