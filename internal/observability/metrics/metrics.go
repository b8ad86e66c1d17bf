// Package metrics registers the Prometheus collectors the guardrail and
// ingestion pipeline emit against, grounded on the teacher's minimal
// promhttp exporter (cmd/metrics-server) generalized into named, labeled
// collectors for each pipeline stage instead of one generic counter.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles every collector the core emits against. Construct once
// per process with New and share the instance.
type Metrics struct {
	ChunksClassified        *prometheus.CounterVec
	ClassificationOverrides prometheus.Counter
	ExtractionFailures      prometheus.Counter
	IngestDuration          *prometheus.HistogramVec
	GuardrailStepDuration   *prometheus.HistogramVec
	GuardrailStepOutcome    *prometheus.CounterVec
	ProviderRetries         *prometheus.CounterVec
	ComposeStreamsActive    prometheus.Gauge
}

// New creates and registers every collector against registry.
func New(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		ChunksClassified: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coverage_chunks_classified_total",
			Help: "Chunks classified by kind.",
		}, []string{"kind"}),
		ClassificationOverrides: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "coverage_classification_overrides_total",
			Help: "Times the LLM refinement stage overrode the heuristic prior.",
		}),
		ExtractionFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "coverage_extraction_failures_total",
			Help: "Pages that failed both native-text and OCR extraction.",
		}),
		IngestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "coverage_ingest_duration_seconds",
			Help:    "End-to-end ingestion duration per policy.",
			Buckets: prometheus.DefBuckets,
		}, []string{"outcome"}),
		GuardrailStepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "coverage_guardrail_step_duration_seconds",
			Help:    "Duration of each guardrail step.",
			Buckets: prometheus.DefBuckets,
		}, []string{"step"}),
		GuardrailStepOutcome: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coverage_guardrail_step_outcome_total",
			Help: "Outcome counts per guardrail step.",
		}, []string{"step", "outcome"}),
		ProviderRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coverage_provider_retries_total",
			Help: "Retries issued against an external provider.",
		}, []string{"provider"}),
		ComposeStreamsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "coverage_compose_streams_active",
			Help: "Number of compose streams currently in flight.",
		}),
	}
	registry.MustRegister(
		m.ChunksClassified, m.ClassificationOverrides, m.ExtractionFailures,
		m.IngestDuration, m.GuardrailStepDuration, m.GuardrailStepOutcome,
		m.ProviderRetries, m.ComposeStreamsActive,
	)
	return m
}

// Handler returns the promhttp handler bound to registry.
func Handler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
