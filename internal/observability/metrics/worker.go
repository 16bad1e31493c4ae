package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// WorkerMetrics covers the graph extraction worker.
type WorkerMetrics struct {
	registry *prometheus.Registry

	processTotal     *prometheus.CounterVec
	processDuration  *prometheus.HistogramVec
	processInFlight  prometheus.Gauge
	entitiesResolved *prometheus.CounterVec
	edgesTotal       *prometheus.CounterVec
	mergesTotal      *prometheus.CounterVec
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	processTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "graphrag",
			Subsystem: "worker",
			Name:      "document_process_total",
			Help:      "Total documents mined for graph structure by status.",
		},
		[]string{"service", "status"},
	)
	processDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "graphrag",
			Subsystem: "worker",
			Name:      "document_process_duration_seconds",
			Help:      "Graph extraction duration per document in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "status"},
	)
	processInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "graphrag",
			Subsystem: "worker",
			Name:      "document_process_in_flight",
			Help:      "Number of documents currently being mined.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	entitiesResolved := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "graphrag",
			Subsystem: "worker",
			Name:      "entities_resolved_total",
			Help:      "Total entity resolutions by decision.",
		},
		[]string{"service", "decision"},
	)
	edgesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "graphrag",
			Subsystem: "worker",
			Name:      "edges_total",
			Help:      "Edge persistence attempts by outcome.",
		},
		[]string{"service", "outcome"},
	)
	mergesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "graphrag",
			Subsystem: "worker",
			Name:      "duplicate_merges_total",
			Help:      "Duplicate entity merges by status.",
		},
		[]string{"service", "status"},
	)

	registry.MustRegister(processTotal, processDuration, processInFlight, entitiesResolved, edgesTotal, mergesTotal)

	return &WorkerMetrics{
		registry:         registry,
		processTotal:     processTotal,
		processDuration:  processDuration,
		processInFlight:  processInFlight,
		entitiesResolved: entitiesResolved,
		edgesTotal:       edgesTotal,
		mergesTotal:      mergesTotal,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartDocument() {
	m.processInFlight.Inc()
}

func (m *WorkerMetrics) FinishDocument(service string, duration time.Duration, err error) {
	m.processInFlight.Dec()

	status := "success"
	if err != nil {
		status = "error"
	}

	m.processTotal.WithLabelValues(service, status).Inc()
	m.processDuration.WithLabelValues(service, status).Observe(duration.Seconds())
}

// RecordResolutions counts entity resolution decisions for one document.
func (m *WorkerMetrics) RecordResolutions(service string, created, merged, failed int) {
	if created > 0 {
		m.entitiesResolved.WithLabelValues(service, "created").Add(float64(created))
	}
	if merged > 0 {
		m.entitiesResolved.WithLabelValues(service, "merged").Add(float64(merged))
	}
	if failed > 0 {
		m.entitiesResolved.WithLabelValues(service, "failed").Add(float64(failed))
	}
}

// RecordEdges counts persisted and skipped edges for one document.
func (m *WorkerMetrics) RecordEdges(service string, inserted, skipped int) {
	if inserted > 0 {
		m.edgesTotal.WithLabelValues(service, "inserted").Add(float64(inserted))
	}
	if skipped > 0 {
		m.edgesTotal.WithLabelValues(service, "skipped").Add(float64(skipped))
	}
}

// RecordMerges counts duplicate-sweep outcomes.
func (m *WorkerMetrics) RecordMerges(service string, merged, failed int) {
	if merged > 0 {
		m.mergesTotal.WithLabelValues(service, "merged").Add(float64(merged))
	}
	if failed > 0 {
		m.mergesTotal.WithLabelValues(service, "failed").Add(float64(failed))
	}
}
