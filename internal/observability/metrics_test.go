package observability

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveAPI("GET", "/x", "200", time.Millisecond)
	m.ObserveJob("item_process", "succeeded", time.Second)
	m.ObserveItem("web", "ready", []string{"fetch: timeout"})
	m.APIInflightInc()
	if got := m.JobRuns("item_process", "succeeded"); got != 0 {
		t.Fatalf("JobRuns on nil = %v", got)
	}
}

func TestWritePrometheus(t *testing.T) {
	m := NewMetrics()
	m.ObserveAPI("GET", "/api/items", "200", 30*time.Millisecond)
	m.ObserveJob("item_process", "succeeded", 2*time.Second)
	m.ObserveItem("youtube", "ready", []string{"oembed: 404", "fetch: timeout", "fetch: dns"})

	var buf bytes.Buffer
	if err := m.WritePrometheus(&buf); err != nil {
		t.Fatalf("WritePrometheus: %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		`secondbrain_api_requests_total{method="GET",route="/api/items",status="200"} 1`,
		`secondbrain_api_request_duration_seconds_bucket{method="GET",route="/api/items",le="0.05"} 1`,
		`secondbrain_job_runs_total{job_type="item_process",status="succeeded"} 1`,
		`secondbrain_items_processed_total{source="youtube",status="ready"} 1`,
		`secondbrain_item_warnings_total{stage="fetch"} 2`,
		"# TYPE secondbrain_job_queue_depth gauge",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
}

func TestLabelEscaping(t *testing.T) {
	got := labelString([]string{"a", "b"}, []string{`q"uote`})
	if got != `{a="q\"uote",b="unknown"}` {
		t.Fatalf("labelString = %s", got)
	}
}
