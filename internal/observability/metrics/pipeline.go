package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kirillkom/insurance-doc-classifier/internal/core/domain"
)

const namespace = "idc"

// PipelineMetrics tracks per-document classification outcomes.
type PipelineMetrics struct {
	registry *prometheus.Registry
	service  string

	documentsTotal      *prometheus.CounterVec
	documentDuration    *prometheus.HistogramVec
	documentsInFlight   prometheus.Gauge
	adaptationTotal     *prometheus.CounterVec
	resultStoreFailures *prometheus.CounterVec
}

func NewPipelineMetrics(service string, registry *prometheus.Registry) *PipelineMetrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	documentsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "documents_total",
			Help:      "Total classified documents by label and status.",
		},
		[]string{"service", "label", "status"},
	)
	documentDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "document_duration_seconds",
			Help:      "Document classification duration in seconds by status.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
		},
		[]string{"service", "status"},
	)
	documentsInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "documents_in_flight",
			Help:      "Number of documents currently being classified.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	adaptationTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "adaptation_total",
			Help:      "Content adaptations by document type and outcome.",
		},
		[]string{"service", "type", "outcome"},
	)
	resultStoreFailures := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "result_store_failures_total",
			Help:      "Classification results that could not be persisted.",
		},
		[]string{"service"},
	)

	registry.MustRegister(documentsTotal, documentDuration, documentsInFlight, adaptationTotal, resultStoreFailures)

	return &PipelineMetrics{
		registry:            registry,
		service:             service,
		documentsTotal:      documentsTotal,
		documentDuration:    documentDuration,
		documentsInFlight:   documentsInFlight,
		adaptationTotal:     adaptationTotal,
		resultStoreFailures: resultStoreFailures,
	}
}

func (m *PipelineMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *PipelineMetrics) StartDocument() {
	m.documentsInFlight.Inc()
}

func (m *PipelineMetrics) FinishDocument(label domain.Label, duration time.Duration, failed bool) {
	m.documentsInFlight.Dec()

	status := "success"
	if failed {
		status = "error"
	}

	m.documentsTotal.WithLabelValues(m.service, string(label), status).Inc()
	m.documentDuration.WithLabelValues(m.service, status).Observe(duration.Seconds())
}

func (m *PipelineMetrics) ObserveAdaptation(docType domain.DocumentType, outcome domain.AdaptationOutcome) {
	m.adaptationTotal.WithLabelValues(m.service, docType.String(), string(outcome)).Inc()
}

func (m *PipelineMetrics) ObserveResultStoreFailure() {
	m.resultStoreFailures.WithLabelValues(m.service).Inc()
}
