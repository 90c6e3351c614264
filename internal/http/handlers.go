package httpx

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/target/mmk-jobqueue/internal/domain/model"
	"github.com/target/mmk-jobqueue/internal/observability/metrics"
)

const healthResponse = `{"status":"ok"}`

// HealthChecker reports whether the queue's store is reachable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// StatusReader reads job status and aggregate counters.
type StatusReader interface {
	GetStatus(ctx context.Context, id string) (*model.JobStatus, error)
	Stats(ctx context.Context) (model.QueueStats, error)
}

// StatsResponse is the /stats body.
type StatsResponse struct {
	Queue    model.QueueStats          `json:"queue"`
	Executor *metrics.ExecutorSnapshot `json:"executor,omitempty"`
}

func healthHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if checker != nil {
			if err := checker.HealthCheck(r.Context()); err != nil {
				WriteError(w, ErrorParams{Code: http.StatusServiceUnavailable, ErrCode: "unavailable", Err: err})
				return
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if r.Method == http.MethodHead {
			return
		}
		if _, err := io.WriteString(w, healthResponse); err != nil {
			// Nothing more to do if the client connection is gone.
			return
		}
	}
}

func statsHandler(reader StatusReader, executor func() metrics.ExecutorSnapshot) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := reader.Stats(r.Context())
		if err != nil {
			WriteError(w, ErrorParams{Code: http.StatusServiceUnavailable, ErrCode: "stats_unavailable", Err: err})
			return
		}
		resp := StatsResponse{Queue: stats}
		if executor != nil {
			snap := executor()
			resp.Executor = &snap
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func jobStatusHandler(reader StatusReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.PathValue("id"))
		if id == "" {
			WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "missing_id", Err: errors.New("job id is required")})
			return
		}
		status, err := reader.GetStatus(r.Context(), id)
		if err != nil {
			WriteQueueError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, status)
	}
}
