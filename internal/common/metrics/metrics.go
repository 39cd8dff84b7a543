package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	WorkerJobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_completed_total",
			Help: "Total number of jobs completed by worker",
		},
		[]string{"task_type"},
	)

	WorkerJobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_failed_total",
			Help: "Total number of jobs failed by worker",
		},
		[]string{"task_type", "error_code"},
	)

	WorkerJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "worker_job_duration_seconds",
			Help: "Duration of job processing in seconds",
		},
		[]string{"task_type"},
	)

	WorkerJobsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "worker_jobs_active",
			Help: "Number of active jobs per worker",
		},
		[]string{"task_type"},
	)

	ToolCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shopping_tool_calls_total",
			Help: "Tool calls served over MCP or the sub-server registry",
		},
		[]string{"tool", "status"},
	)

	ToolCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "shopping_tool_call_duration_seconds",
			Help:    "Duration of tool calls in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		},
		[]string{"tool"},
	)

	WebSearchRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shopping_web_search_requests_total",
			Help: "Web search API requests by outcome",
		},
		[]string{"status"},
	)

	LLMRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shopping_llm_requests_total",
			Help: "LLM API requests by kind and outcome",
		},
		[]string{"kind", "status"},
	)

	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shopping_cache_lookups_total",
			Help: "Redis cache lookups by cache and result",
		},
		[]string{"cache", "result"},
	)

	TrackerChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shopping_tracker_checks_total",
			Help: "Price checks run by tracking sessions",
		},
		[]string{"status"},
	)

	PriceAlerts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shopping_price_alerts_total",
			Help: "Price alerts raised by direction",
		},
		[]string{"direction"},
	)

	ActiveTrackingSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "shopping_tracking_sessions_active",
			Help: "Tracking sessions currently running",
		},
	)
)

// Serve exposes /metrics on addr until ctx is cancelled. An empty addr disables the endpoint.
func Serve(ctx context.Context, addr string) error {
	if addr == "" {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
