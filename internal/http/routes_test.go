package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/mmk-jobqueue/internal/domain/model"
	apperrors "github.com/target/mmk-jobqueue/internal/errors"
	"github.com/target/mmk-jobqueue/internal/observability/metrics"
)

type fakeQueue struct {
	healthErr error
	stats     model.QueueStats
	statsErr  error
	statuses  map[string]*model.JobStatus
}

func (f *fakeQueue) HealthCheck(context.Context) error { return f.healthErr }

func (f *fakeQueue) Stats(context.Context) (model.QueueStats, error) { return f.stats, f.statsErr }

func (f *fakeQueue) GetStatus(_ context.Context, id string) (*model.JobStatus, error) {
	if st, ok := f.statuses[id]; ok {
		return st, nil
	}
	return nil, model.ErrJobNotFound
}

func serve(t *testing.T, h http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestHealthz(t *testing.T) {
	q := &fakeQueue{}
	h := NewRouter(RouterServices{Queue: q})

	rec := serve(t, h, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, healthResponse, rec.Body.String())

	rec = serve(t, h, http.MethodHead, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())

	q.healthErr = errors.New("store unavailable: dial tcp: refused")
	rec = serve(t, h, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "unavailable")
}

func TestStats(t *testing.T) {
	q := &fakeQueue{stats: model.QueueStats{TotalJobs: 4, CompletedJobs: 3, SuccessRate: 0.75}}
	h := NewRouter(RouterServices{
		Queue:    q,
		Executor: func() metrics.ExecutorSnapshot { return metrics.ExecutorSnapshot{Processed: 3, Succeeded: 3} },
	})

	rec := serve(t, h, http.MethodGet, "/stats")
	require.Equal(t, http.StatusOK, rec.Code)

	var body StatsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, int64(4), body.Queue.TotalJobs)
	require.NotNil(t, body.Executor)
	assert.Equal(t, int64(3), body.Executor.Succeeded)

	q.statsErr = errors.New("boom")
	rec = serve(t, h, http.MethodGet, "/stats")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestJobStatus(t *testing.T) {
	q := &fakeQueue{statuses: map[string]*model.JobStatus{
		"job-1": {State: model.JobStateCompleted, Attempts: 1, MaxAttempts: 3},
	}}
	h := NewRouter(RouterServices{Queue: q})

	rec := serve(t, h, http.MethodGet, "/jobs/job-1")
	require.Equal(t, http.StatusOK, rec.Code)
	var st model.JobStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, model.JobStateCompleted, st.State)

	rec = serve(t, h, http.MethodGet, "/jobs/missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(t, h, http.MethodPost, "/jobs/job-1")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestMetricsRoute(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "jobqueue_test_total", Help: "test"})
	reg.MustRegister(c)
	c.Inc()

	rec := serve(t, NewRouter(RouterServices{Queue: &fakeQueue{}, Gatherer: reg}), http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "jobqueue_test_total 1"))

	rec = serve(t, NewRouter(RouterServices{Queue: &fakeQueue{}}), http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRecover(t *testing.T) {
	h := Recover(discardLogger())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := serve(t, h, http.MethodGet, "/")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestWriteQueueError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
		body string
	}{
		{"not found", fmt.Errorf("get: %w", model.ErrJobNotFound), http.StatusNotFound, "not_found"},
		{"validation", apperrors.ValidationField("id", "too long"), http.StatusBadRequest, "validation"},
		{"storage", apperrors.Storage("redis get", errors.New("refused")), http.StatusServiceUnavailable, "storage"},
		{"other", errors.New("boom"), http.StatusInternalServerError, "internal"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			WriteQueueError(rec, tt.err)
			assert.Equal(t, tt.code, rec.Code)
			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.body, body["error"])
		})
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
