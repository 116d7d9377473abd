package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "attachment_service"

// Metrics holds all application metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Attachment metrics
	UploadsTotal            prometheus.Counter
	DeletesTotal            prometheus.Counter
	UploadBytesTotal        prometheus.Counter
	DownloadBytesTotal      prometheus.Counter
	ValidationFailuresTotal *prometheus.CounterVec
	SecurityViolationsTotal prometheus.Counter
	OrphanFilesErasedTotal  prometheus.Counter
	DanglingRecordsTotal    prometheus.Gauge
}

// New creates and registers all metrics with the default registry
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates and registers all metrics with a custom
// registry. Tests use this to avoid duplicate registration.
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)

	return &Metrics{
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "endpoint"},
		),
		UploadsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "uploads_total",
				Help:      "Total number of attachments uploaded",
			},
		),
		DeletesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "deletes_total",
				Help:      "Total number of attachments deleted",
			},
		),
		UploadBytesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "upload_bytes_total",
				Help:      "Total bytes written to the storage root",
			},
		),
		DownloadBytesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "download_bytes_total",
				Help:      "Total bytes resolved for download",
			},
		),
		ValidationFailuresTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "validation_failures_total",
				Help:      "Total number of rejected uploads by reason",
			},
			[]string{"reason"},
		),
		SecurityViolationsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "security_violations_total",
				Help:      "Total number of rejected path escape attempts",
			},
		),
		OrphanFilesErasedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "orphan_files_erased_total",
				Help:      "Total number of orphan files erased by the reconciliation sweep",
			},
		),
		DanglingRecordsTotal: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "dangling_records",
				Help:      "Attachment records with no backing file, as of the last sweep",
			},
		),
	}
}
