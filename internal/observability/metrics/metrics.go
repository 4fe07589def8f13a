package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "impactdash"

// Metrics owns a private registry so tests can build as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	uploadsTotal   *prometheus.CounterVec
	rowsProcessed  prometheus.Counter
	rowsFailed     prometheus.Counter
	uploadDuration *prometheus.HistogramVec
	staleUploads   prometheus.Counter
}

func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		requestTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total HTTP requests processed.",
			},
			[]string{"method", "route", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		uploadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ingestion",
				Name:      "uploads_total",
				Help:      "Upload submissions by outcome.",
			},
			[]string{"outcome"},
		),
		rowsProcessed: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ingestion",
				Name:      "rows_processed_total",
				Help:      "Data rows ingested without error.",
			},
		),
		rowsFailed: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ingestion",
				Name:      "rows_failed_total",
				Help:      "Data rows recorded as row failures.",
			},
		),
		uploadDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "ingestion",
				Name:      "upload_duration_seconds",
				Help:      "Wall time spent on an upload submission.",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"outcome"},
		),
		staleUploads: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ingestion",
				Name:      "stale_uploads_reconciled_total",
				Help:      "Uploads moved out of processing by the reconcile sweep.",
			},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requestTotal,
		m.requestDuration,
		m.uploadsTotal,
		m.rowsProcessed,
		m.rowsFailed,
		m.uploadDuration,
		m.staleUploads,
	)
	return m
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveRequest records one finished HTTP request.
func (m *Metrics) ObserveRequest(method, route string, status int, d time.Duration) {
	m.requestTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// UploadFinished implements ingestion.Recorder.
func (m *Metrics) UploadFinished(outcome string, processed, failed int, d time.Duration) {
	m.uploadsTotal.WithLabelValues(outcome).Inc()
	m.rowsProcessed.Add(float64(processed))
	m.rowsFailed.Add(float64(failed))
	m.uploadDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

// StaleUploadsReconciled implements ingestion.SweepRecorder.
func (m *Metrics) StaleUploadsReconciled(n int) {
	m.staleUploads.Add(float64(n))
}
