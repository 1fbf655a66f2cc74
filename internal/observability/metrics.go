package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	Turns          *prometheus.CounterVec
	ModelCalls     *prometheus.CounterVec
	ParseFallbacks prometheus.Counter
	UploadErrors   prometheus.Counter
	StageLatency   *prometheus.HistogramVec

	pipeline *stageWindow
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		Turns: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Conversation turn operations by type and outcome.",
		}, []string{"operation", "outcome"}),
		ModelCalls: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_calls_total",
			Help:      "Generative model invocations by result.",
		}, []string{"result"}),
		ParseFallbacks: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "parse_fallbacks_total",
			Help:      "Model responses that required the deterministic fallback object.",
		}),
		UploadErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upload_errors_total",
			Help:      "Failed audio uploads to the media host.",
		}),
		StageLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_stage_latency_ms",
			Help:      "Turn pipeline stage latency in milliseconds.",
			Buckets:   []float64{5, 20, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
		}, []string{"stage"}),
		pipeline: newStageWindow(256),
	}
}

// ObserveStage records one pipeline stage duration in both the histogram and
// the rolling window behind /v1/perf/pipeline.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	ms := float64(d.Microseconds()) / 1000.0
	m.StageLatency.WithLabelValues(stage).Observe(ms)
	m.pipeline.Observe(stage, ms)
}

// ObserveIndicator counts a noteworthy pipeline event (fallbacks, retries).
func (m *Metrics) ObserveIndicator(name string) {
	m.pipeline.ObserveIndicator(name)
}

// PipelineSnapshot reports rolling stage stats for the perf endpoint.
func (m *Metrics) PipelineSnapshot() StageSnapshot {
	return m.pipeline.Snapshot()
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
