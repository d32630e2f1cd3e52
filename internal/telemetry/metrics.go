// Package telemetry exposes Prometheus metrics for the conversion pipeline.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the collectors the handlers report into.
type Metrics struct {
	registry *prometheus.Registry

	ConversionsTotal     *prometheus.CounterVec
	ConversionDuration   prometheus.Histogram
	RateLimitRejections  *prometheus.CounterVec
	HistoryWriteFailures prometheus.Counter
}

// New creates a Metrics with its own registry, so tests can build
// independent instances.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		ConversionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "htmlshot_conversions_total",
			Help: "Conversion requests by outcome.",
		}, []string{"outcome"}),
		ConversionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "htmlshot_conversion_duration_seconds",
			Help:    "Wall time of successful renders.",
			Buckets: prometheus.DefBuckets,
		}),
		RateLimitRejections: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "htmlshot_ratelimit_rejections_total",
			Help: "Requests rejected by the rate limiter, by endpoint class.",
		}, []string{"class"}),
		HistoryWriteFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "htmlshot_history_write_failures_total",
			Help: "Best-effort history writes that failed.",
		}),
	}
}

// Handler serves the /metrics endpoint for this instance's registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
