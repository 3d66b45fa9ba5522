package prometheus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAppMetrics(t *testing.T) {
	c := newTestCollector(t)
	m := NewAppMetrics(c)

	m.ObserveAttempt("success", 200*time.Millisecond)
	m.ObserveAttempt("failed", time.Second)
	m.ObserveRetry()
	m.ObserveDocument("new")
	m.ObserveDocument("new")
	m.ObserveDocument("already_ingested")
	m.ObserveWindow("done")
	m.ObserveSinkFailure("kafka")
	m.RunStarted()
	m.RunFinished(42 * time.Second)

	out := scrapeMetrics(t, c)
	assert.Contains(t, out, `test_unit_api_requests_total{outcome="success"} 1`)
	assert.Contains(t, out, `test_unit_api_requests_total{outcome="failed"} 1`)
	assert.Contains(t, out, "test_unit_api_retries_total 1")
	assert.Contains(t, out, `test_unit_documents_total{result="new"} 2`)
	assert.Contains(t, out, `test_unit_documents_total{result="already_ingested"} 1`)
	assert.Contains(t, out, `test_unit_windows_total{state="done"} 1`)
	assert.Contains(t, out, `test_unit_sink_errors_total{sink="kafka"} 1`)
	assert.Contains(t, out, "test_unit_runs_in_progress 0")
	assert.Contains(t, out, "test_unit_run_duration_seconds_count 1")
	assert.Contains(t, out, "test_unit_last_run_timestamp_seconds")
}
