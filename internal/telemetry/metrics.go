package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	RunsTotal      = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "autopost_runs_total", Help: "Coordinator invocations by result"}, []string{"result"})
	PostsTotal     = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "autopost_posts_total", Help: "Processed posts by outcome"}, []string{"collection", "outcome"})
	ScanErrors     = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "autopost_scan_errors_total", Help: "Collection scans that failed"}, []string{"collection"})
	RunDuration    = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "autopost_run_duration_seconds", Help: "Duration of completed runs", Buckets: prometheus.ExponentialBuckets(0.1, 2, 10)})
	RunningGauge   = prometheus.NewGauge(prometheus.GaugeOpts{Name: "autopost_run_in_progress", Help: "1 while a run is in progress in this process"})
	LastRunGauge   = prometheus.NewGauge(prometheus.GaugeOpts{Name: "autopost_last_run_timestamp_seconds", Help: "Unix time of the last started run"})
	TriggerRejects = prometheus.NewCounter(prometheus.CounterOpts{Name: "autopost_trigger_unauthorized_total", Help: "Trigger requests rejected as unauthorized"})
)

// Run results for RunsTotal.
const (
	ResultCompleted = "completed"
	ResultRunning   = "already_running"
	ResultTooSoon   = "too_soon"
	ResultLeased    = "leased_elsewhere"
	ResultFailed    = "failed"
)

// Handler exposes /metrics HTTP handler with a singleton registry.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(
			RunsTotal,
			PostsTotal,
			ScanErrors,
			RunDuration,
			RunningGauge,
			LastRunGauge,
			TriggerRejects,
		)
	})
	return promhttp.Handler()
}
