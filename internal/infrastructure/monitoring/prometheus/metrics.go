package prometheus

import (
	"time"
)

// AppMetrics holds the ingestion metrics. It satisfies the retrieval client's
// Observer and the orchestrator's metrics hook.
type AppMetrics struct {
	APIRequestsTotal   CounterVec
	APIRequestDuration HistogramVec
	APIRetriesTotal    CounterVec

	DocumentsTotal  CounterVec
	WindowsTotal    CounterVec
	SinkErrorsTotal CounterVec

	RunDuration     HistogramVec
	LastRunUnixTime GaugeVec
	RunsInProgress  GaugeVec
}

// Default Buckets
var (
	DefaultAPIDurationBuckets = []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60}
	DefaultRunDurationBuckets = []float64{10, 30, 60, 300, 600, 1800, 3600, 7200}
)

// NewAppMetrics registers all metrics and returns AppMetrics struct.
func NewAppMetrics(collector MetricsCollector) *AppMetrics {
	m := &AppMetrics{}

	// Remote API
	m.APIRequestsTotal = collector.RegisterCounter("api_requests_total", "Document API attempts by outcome", "outcome")
	m.APIRequestDuration = collector.RegisterHistogram("api_request_duration_seconds", "Document API attempt duration", DefaultAPIDurationBuckets, "outcome")
	m.APIRetriesTotal = collector.RegisterCounter("api_retries_total", "Document API retries")

	// Pipeline
	m.DocumentsTotal = collector.RegisterCounter("documents_total", "Documents processed by result", "result")
	m.WindowsTotal = collector.RegisterCounter("windows_total", "Query windows finished by state", "state")
	m.SinkErrorsTotal = collector.RegisterCounter("sink_errors_total", "Post-ingest sink failures", "sink")

	// Runs
	m.RunDuration = collector.RegisterHistogram("run_duration_seconds", "Full run duration", DefaultRunDurationBuckets)
	m.LastRunUnixTime = collector.RegisterGauge("last_run_timestamp_seconds", "Unix time the last run finished")
	m.RunsInProgress = collector.RegisterGauge("runs_in_progress", "Runs currently executing")

	return m
}

func (m *AppMetrics) ObserveAttempt(outcome string, duration time.Duration) {
	m.APIRequestsTotal.WithLabelValues(outcome).Inc()
	m.APIRequestDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

func (m *AppMetrics) ObserveRetry() {
	m.APIRetriesTotal.WithLabelValues().Inc()
}

func (m *AppMetrics) ObserveDocument(result string) {
	m.DocumentsTotal.WithLabelValues(result).Inc()
}

func (m *AppMetrics) ObserveWindow(state string) {
	m.WindowsTotal.WithLabelValues(state).Inc()
}

func (m *AppMetrics) ObserveSinkFailure(sink string) {
	m.SinkErrorsTotal.WithLabelValues(sink).Inc()
}

func (m *AppMetrics) RunStarted() {
	m.RunsInProgress.WithLabelValues().Inc()
}

func (m *AppMetrics) RunFinished(d time.Duration) {
	m.RunsInProgress.WithLabelValues().Dec()
	m.RunDuration.WithLabelValues().Observe(d.Seconds())
	m.LastRunUnixTime.WithLabelValues().Set(float64(time.Now().Unix()))
}
