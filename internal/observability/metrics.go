package observability

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"gorm.io/gorm"

	types "github.com/yungbote/secondbrain-backend/internal/domain"
	"github.com/yungbote/secondbrain-backend/internal/pkg/logger"
)

// Metrics is nil-safe: every method on a nil *Metrics is a no-op, so
// callers never need to check whether metrics are enabled.
type Metrics struct {
	apiRequests  *CounterVec
	apiLatency   *HistogramVec
	apiInflight  *Gauge
	jobRuns      *CounterVec
	jobLatency   *HistogramVec
	itemsDone    *CounterVec
	itemWarnings *CounterVec
	rateLimited  *CounterVec
	queueDepth   *GaugeVec
}

func NewMetrics() *Metrics {
	return &Metrics{
		apiRequests: NewCounterVec("secondbrain_api_requests_total", "API requests by route and status.", []string{"method", "route", "status"}),
		apiLatency: NewHistogramVec("secondbrain_api_request_duration_seconds", "API request latency.", []string{"method", "route"},
			[]float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}),
		apiInflight: NewGauge("secondbrain_api_inflight_requests", "API requests in flight."),
		jobRuns:     NewCounterVec("secondbrain_job_runs_total", "Finished job attempts by type and outcome.", []string{"job_type", "status"}),
		jobLatency: NewHistogramVec("secondbrain_job_duration_seconds", "Job attempt duration.", []string{"job_type"},
			[]float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120}),
		itemsDone:    NewCounterVec("secondbrain_items_processed_total", "Items through the ingestion pipeline.", []string{"source", "status"}),
		itemWarnings: NewCounterVec("secondbrain_item_warnings_total", "Degraded pipeline steps by stage.", []string{"stage"}),
		rateLimited:  NewCounterVec("secondbrain_rate_limited_total", "Requests rejected by the per-user limiter.", []string{"route"}),
		queueDepth:   NewGaugeVec("secondbrain_job_queue_depth", "Jobs by status.", []string{"status"}),
	}
}

// ObserveAPI records one request. A negative dur counts it without a
// latency sample.
func (m *Metrics) ObserveAPI(method, route, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.apiRequests.Inc(method, route, status)
	if dur >= 0 {
		m.apiLatency.Observe(dur.Seconds(), method, route)
	}
}

func (m *Metrics) APIInflightInc() {
	if m != nil {
		m.apiInflight.Inc()
	}
}

func (m *Metrics) APIInflightDec() {
	if m != nil {
		m.apiInflight.Dec()
	}
}

func (m *Metrics) ObserveJob(jobType, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.jobRuns.Inc(jobType, status)
	m.jobLatency.Observe(dur.Seconds(), jobType)
}

// ObserveItem records a pipeline outcome and one count per warning stage
// ("fetch: timeout" counts under "fetch").
func (m *Metrics) ObserveItem(source, status string, warnings []string) {
	if m == nil {
		return
	}
	m.itemsDone.Inc(source, status)
	for _, w := range warnings {
		stage, _, _ := strings.Cut(w, ":")
		m.itemWarnings.Inc(strings.TrimSpace(stage))
	}
}

func (m *Metrics) IncRateLimited(route string) {
	if m != nil {
		m.rateLimited.Inc(route)
	}
}

func (m *Metrics) JobRuns(jobType, status string) float64 {
	if m == nil {
		return 0
	}
	return m.jobRuns.Value(jobType, status)
}

func (m *Metrics) WriteHTTP(w http.ResponseWriter, _ *http.Request) {
	if m == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	_ = m.WritePrometheus(w)
}

func (m *Metrics) WritePrometheus(w io.Writer) error {
	if m == nil {
		return nil
	}
	for _, c := range []interface{ WritePrometheus(io.Writer) error }{
		m.apiRequests, m.apiLatency, m.apiInflight,
		m.jobRuns, m.jobLatency, m.queueDepth,
		m.itemsDone, m.itemWarnings, m.rateLimited,
	} {
		if err := c.WritePrometheus(w); err != nil {
			return err
		}
	}
	return nil
}

// StartJobQueueCollector samples job_run counts by status until ctx ends.
func (m *Metrics) StartJobQueueCollector(ctx context.Context, log *logger.Logger, db *gorm.DB, interval time.Duration) {
	if m == nil || db == nil {
		return
	}
	if interval <= 0 {
		interval = 15 * time.Second
	}
	statuses := []string{
		types.JobStatusQueued,
		types.JobStatusRunning,
		types.JobStatusSucceeded,
		types.JobStatusFailed,
		types.JobStatusCanceled,
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				var rows []struct {
					Status string
					Count  int64
				}
				if err := db.WithContext(ctx).
					Model(&types.JobRun{}).
					Select("status, count(*) as count").
					Group("status").
					Scan(&rows).Error; err != nil {
					log.Warn("metrics: job queue depth query failed", "error", err)
					continue
				}
				for _, s := range statuses {
					m.queueDepth.Set(0, s)
				}
				for _, row := range rows {
					m.queueDepth.Set(float64(row.Count), row.Status)
				}
			}
		}
	}()
}
