// Package metrics holds the Prometheus collectors exported at /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the process-wide registry. It is separate from the default
// registry so that only haven collectors and the Go runtime are exported.
var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

var (
	// PipelineAnalyses counts analysis attempts by result:
	// processed, fallback, stale, failed, skipped.
	PipelineAnalyses = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "haven",
			Subsystem: "pipeline",
			Name:      "analyses_total",
			Help:      "Entry analyses by result.",
		},
		[]string{"result"},
	)

	// QueueDepth is the number of entry ids waiting in the analysis queue.
	QueueDepth = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "haven",
			Subsystem: "pipeline",
			Name:      "queue_depth",
			Help:      "Entries waiting for analysis.",
		},
	)

	ProviderRequests = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "haven",
			Subsystem: "provider",
			Name:      "requests_total",
			Help:      "Provider calls by capability and result.",
		},
		[]string{"capability", "result"},
	)

	ProviderLatency = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "haven",
			Subsystem: "provider",
			Name:      "latency_seconds",
			Help:      "Provider call latency.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"capability"},
	)

	HTTPRequests = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "haven",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route pattern and status code.",
		},
		[]string{"route", "code"},
	)

	SpeechFilesSwept = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: "haven",
			Subsystem: "speech",
			Name:      "files_swept_total",
			Help:      "Synthesized audio files removed after expiry.",
		},
	)
)

// Handler serves the registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
