package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the documents module.
// Tracks transitions, refused transitions, upload sizes and operation durations.
type Metrics struct {
	Transitions         *prometheus.CounterVec
	TransitionsRefused  *prometheus.CounterVec
	ApplicationsCreated prometheus.Counter
	UploadBytes         prometheus.Histogram
	OperationDuration   *prometheus.HistogramVec
	BlobCircuitOpen     prometheus.Gauge
}

// New creates a Metrics instance registered with the default registry.
func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer registers the documents metrics with reg.
// Tests pass a fresh prometheus.NewRegistry() to avoid duplicate registration.
func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "intake_document_transitions_total",
			Help: "Document status transitions by action and document type",
		}, []string{"action", "document_type"}),
		TransitionsRefused: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "intake_document_transitions_refused_total",
			Help: "Refused document operations by action and error code",
		}, []string{"action", "code"}),
		ApplicationsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "intake_applications_created_total",
			Help: "Total number of applications created",
		}),
		UploadBytes: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "intake_document_upload_bytes",
			Help:    "Size of accepted document uploads in bytes",
			Buckets: prometheus.ExponentialBuckets(16<<10, 4, 7),
		}),
		OperationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "intake_document_operation_duration_seconds",
			Help:    "Duration of document service operations",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"operation"}),
		BlobCircuitOpen: factory.NewGauge(prometheus.GaugeOpts{
			Name: "intake_blob_circuit_open",
			Help: "Blob storage circuit breaker state (0=closed/healthy, 1=open/unhealthy)",
		}),
	}
}

// IncTransition records a successful status change.
func (m *Metrics) IncTransition(action, documentType string) {
	m.Transitions.WithLabelValues(action, documentType).Inc()
}

// IncRefused records an operation refused with a domain error code.
func (m *Metrics) IncRefused(action, code string) {
	m.TransitionsRefused.WithLabelValues(action, code).Inc()
}

// IncApplicationCreated records a successful application creation.
func (m *Metrics) IncApplicationCreated() {
	m.ApplicationsCreated.Inc()
}

// ObserveUploadBytes records the size of an accepted upload.
func (m *Metrics) ObserveUploadBytes(n int64) {
	m.UploadBytes.Observe(float64(n))
}

// ObserveOperation records the duration of a service operation.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveOperation(operation string, start time.Time) {
	m.OperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// SetBlobCircuitOpen sets the blob circuit breaker state gauge.
func (m *Metrics) SetBlobCircuitOpen(open bool) {
	if open {
		m.BlobCircuitOpen.Set(1)
	} else {
		m.BlobCircuitOpen.Set(0)
	}
}
