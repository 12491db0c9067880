package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all application metrics
type Metrics struct {
	requestsTotal    *prometheus.CounterVec
	optionsSelected  *prometheus.HistogramVec
	estimatesUnknown *prometheus.CounterVec
	toolProcesses    prometheus.Gauge
	toolDuration     *prometheus.HistogramVec
	downloadBytes    prometheus.Counter
	jobsTotal        *prometheus.CounterVec
	jobsActive       prometheus.Gauge
	stageDuration    *prometheus.HistogramVec
	stageFailures    *prometheus.CounterVec
	uploadBytesTotal prometheus.Counter
	uploadDuration   prometheus.Histogram
	diskFreeBytes    prometheus.Gauge
}

// New creates a new metrics instance registered with reg. A nil reg uses
// the default prometheus registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	m := &Metrics{
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vidgrab_requests_total",
				Help: "Total number of video requests by operation, platform and outcome",
			},
			[]string{"operation", "platform", "outcome"},
		),
		optionsSelected: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "vidgrab_options_selected",
				Help:    "Number of download options offered per video",
				Buckets: prometheus.LinearBuckets(1, 1, 10),
			},
			[]string{"platform"},
		),
		estimatesUnknown: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vidgrab_size_estimates_unknown_total",
				Help: "Total number of options offered without a size estimate",
			},
			[]string{"platform"},
		),
		toolProcesses: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "vidgrab_ytdlp_processes_active",
				Help: "Number of currently running yt-dlp processes",
			},
		),
		toolDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "vidgrab_ytdlp_duration_seconds",
				Help:    "Duration of yt-dlp invocations in seconds",
				Buckets: prometheus.ExponentialBuckets(0.25, 2, 14), // 0.25s to ~34 minutes
			},
			[]string{"operation", "outcome"},
		),
		downloadBytes: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "vidgrab_download_bytes_total",
				Help: "Total bytes of video downloaded",
			},
		),
		jobsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vidgrab_jobs_total",
				Help: "Total number of download jobs by status",
			},
			[]string{"status"},
		),
		jobsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "vidgrab_jobs_active",
				Help: "Number of currently active download jobs",
			},
		),
		stageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "vidgrab_stage_duration_seconds",
				Help:    "Duration of each job stage in seconds",
				Buckets: prometheus.ExponentialBuckets(0.5, 2, 14),
			},
			[]string{"stage"},
		),
		stageFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vidgrab_stage_failures_total",
				Help: "Total number of stage failures by stage and error class",
			},
			[]string{"stage", "class"},
		),
		uploadBytesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "vidgrab_upload_bytes_total",
				Help: "Total bytes uploaded to S3",
			},
		),
		uploadDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "vidgrab_upload_duration_seconds",
				Help:    "Duration of upload operations in seconds",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 12), // 0.1s to ~6 minutes
			},
		),
		diskFreeBytes: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "vidgrab_disk_free_bytes",
				Help: "Free disk space in bytes",
			},
		),
	}

	return m
}

// IncrementRequests counts a finished video request
func (m *Metrics) IncrementRequests(operation, platform, outcome string) {
	m.requestsTotal.WithLabelValues(operation, platform, outcome).Inc()
}

// RequestsCounter returns the request counter for a label set
func (m *Metrics) RequestsCounter(operation, platform, outcome string) prometheus.Counter {
	return m.requestsTotal.WithLabelValues(operation, platform, outcome)
}

// ObserveOptions records how many options a selection produced and how many
// of them lack a size estimate
func (m *Metrics) ObserveOptions(platform string, options, unknownSizes int) {
	m.optionsSelected.WithLabelValues(platform).Observe(float64(options))
	if unknownSizes > 0 {
		m.estimatesUnknown.WithLabelValues(platform).Add(float64(unknownSizes))
	}
}

// IncrementToolProcesses increments the yt-dlp processes gauge
func (m *Metrics) IncrementToolProcesses() {
	m.toolProcesses.Inc()
}

// DecrementToolProcesses decrements the yt-dlp processes gauge
func (m *Metrics) DecrementToolProcesses() {
	m.toolProcesses.Dec()
}

// RecordToolDuration records the duration of a yt-dlp invocation
func (m *Metrics) RecordToolDuration(operation, outcome string, seconds float64) {
	m.toolDuration.WithLabelValues(operation, outcome).Observe(seconds)
}

// AddDownloadBytes adds bytes to the download total
func (m *Metrics) AddDownloadBytes(bytes float64) {
	m.downloadBytes.Add(bytes)
}

// IncrementJobsTotal increments the jobs total counter
func (m *Metrics) IncrementJobsTotal(status string) {
	m.jobsTotal.WithLabelValues(status).Inc()
}

// IncrementJobsActive increments the active jobs gauge
func (m *Metrics) IncrementJobsActive() {
	m.jobsActive.Inc()
}

// DecrementJobsActive decrements the active jobs gauge
func (m *Metrics) DecrementJobsActive() {
	m.jobsActive.Dec()
}

// RecordStageDuration records the duration of a stage
func (m *Metrics) RecordStageDuration(stage string, seconds float64) {
	m.stageDuration.WithLabelValues(stage).Observe(seconds)
}

// IncrementStageFailures increments the stage failures counter
func (m *Metrics) IncrementStageFailures(stage, class string) {
	m.stageFailures.WithLabelValues(stage, class).Inc()
}

// AddUploadBytes adds bytes to the upload total
func (m *Metrics) AddUploadBytes(bytes float64) {
	m.uploadBytesTotal.Add(bytes)
}

// RecordUploadDuration records the duration of an upload
func (m *Metrics) RecordUploadDuration(seconds float64) {
	m.uploadDuration.Observe(seconds)
}

// SetDiskFreeBytes sets the disk free bytes gauge
func (m *Metrics) SetDiskFreeBytes(bytes float64) {
	m.diskFreeBytes.Set(bytes)
}
