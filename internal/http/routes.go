// Package httpx serves the operational endpoints of a jobqueue process.
package httpx

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/target/mmk-jobqueue/internal/observability/metrics"
)

// Queue is the queue surface the ops router reads.
type Queue interface {
	HealthChecker
	StatusReader
}

// RouterServices holds what the ops router exposes.
type RouterServices struct {
	Queue    Queue                           // Required
	Gatherer prometheus.Gatherer             // Optional: /metrics is not routed when nil
	Executor func() metrics.ExecutorSnapshot // Optional: adds executor counters to /stats
	Logger   *slog.Logger                    // Optional
}

// NewRouter routes:
//
//	GET /metrics      Prometheus exposition
//	GET /healthz      store ping, 503 when unreachable
//	GET /stats        queue counters and executor counters as JSON
//	GET /jobs/{id}    job status
func NewRouter(services RouterServices) http.Handler {
	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()
	if services.Gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(services.Gatherer, promhttp.HandlerOpts{
			ErrorLog: slog.NewLogLogger(logger.Handler(), slog.LevelError),
		}))
	}
	mux.HandleFunc("GET /healthz", healthHandler(services.Queue))
	mux.HandleFunc("GET /stats", statsHandler(services.Queue, services.Executor))
	mux.HandleFunc("GET /jobs/{id}", jobStatusHandler(services.Queue))

	var h http.Handler = mux
	h = Logging(logger)(h)
	h = Recover(logger)(h)
	return h
}
