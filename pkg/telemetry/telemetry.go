package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RequestsTotal counts every HTTP request the admission pipeline
	// finished handling, labeled by method and final status code.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "infractl_requests_total",
			Help: "Total HTTP requests handled, by method and status",
		},
		[]string{"method", "status"},
	)

	// RequestDuration observes end-to-end request latency, wrapping the
	// entire admission chain.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "infractl_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// AdmissionRejectionsTotal counts requests the admission pipeline
	// rejected before reaching a handler, labeled by reason.
	AdmissionRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "infractl_admission_rejections_total",
			Help: "Total requests rejected by the admission pipeline, by reason",
		},
		[]string{"reason"},
	)

	// QueueDepth tracks the number of pending (not yet running) deploy
	// jobs in the live queue.
	QueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "infractl_queue_depth",
			Help: "Number of deploy jobs currently pending in the queue",
		},
	)

	// DeployJobsTotal counts deploy jobs reaching a terminal status.
	DeployJobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "infractl_deploy_jobs_total",
			Help: "Total deploy jobs reaching a terminal status, by status",
		},
		[]string{"status"},
	)

	// RetentionSweepDuration observes how long each retention task
	// (hourly rollup, daily rollup, sweep) takes to run.
	RetentionSweepDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "infractl_retention_task_duration_seconds",
			Help:    "Duration of retention lifecycle tasks in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"task"},
	)

	// UpdaterChecksTotal counts self-update check outcomes.
	UpdaterChecksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "infractl_updater_checks_total",
			Help: "Total self-update checks, by outcome",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		AdmissionRejectionsTotal,
		QueueDepth,
		DeployJobsTotal,
		RetentionSweepDuration,
		UpdaterChecksTotal,
	)
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a small helper for timing an operation and observing its
// duration to a histogram.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed time to histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Observer) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the elapsed time to a labeled histogram vec.
func (t *Timer) ObserveDurationVec(histogram *prometheus.HistogramVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}
