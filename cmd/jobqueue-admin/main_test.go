package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/mmk-jobqueue/config"
	"github.com/target/mmk-jobqueue/internal/data"
	"github.com/target/mmk-jobqueue/internal/domain/model"
	"github.com/target/mmk-jobqueue/internal/service"
)

type harness struct {
	app    *app
	queue  *service.QueueService
	out    *bytes.Buffer
	closed int
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	q, err := service.NewQueueService(service.QueueServiceOptions{Store: data.NewMemoryStore(nil)})
	require.NoError(t, err)

	h := &harness{queue: q, out: &bytes.Buffer{}}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h.app = newApp(logger, h.out)
	h.app.loadConfig = func() (config.AppConfig, error) {
		return config.AppConfig{Store: config.StoreConfig{Backend: config.StoreBackendRedis}}, nil
	}
	h.app.openQueue = func(context.Context, *config.AppConfig) (adminQueue, func() error, error) {
		return q, func() error { h.closed++; return nil }, nil
	}
	return h
}

func (h *harness) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	h.out.Reset()
	root := newRootCommand(h.app)
	root.SetArgs(args)
	root.SetErr(io.Discard)
	err := root.ExecuteContext(context.Background())
	return h.out.String(), err
}

func TestEnqueueAndStatus(t *testing.T) {
	h := newHarness(t)

	out, err := h.run(t, "enqueue", "email.send", "--payload", `{"to":"a@example.com"}`, "--priority", "high", "--max-attempts", "5")
	require.NoError(t, err)
	id := strings.TrimSpace(out)
	require.NotEmpty(t, id)
	assert.Equal(t, 1, h.closed)

	out, err = h.run(t, "status", id)
	require.NoError(t, err)
	var st model.JobStatus
	require.NoError(t, json.Unmarshal([]byte(out), &st))
	assert.Equal(t, model.JobStateQueued, st.State)
	assert.Equal(t, 5, st.MaxAttempts)
}

func TestEnqueue_Delay(t *testing.T) {
	h := newHarness(t)

	out, err := h.run(t, "enqueue", "report", "--delay", "1h")
	require.NoError(t, err)

	st, err := h.queue.GetStatus(context.Background(), strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, model.JobStateQueued, st.State)
	require.NotNil(t, st.ScheduledFor)
	assert.True(t, st.ScheduledFor.After(time.Now().Add(50*time.Minute)))
}

func TestEnqueue_Invalid(t *testing.T) {
	h := newHarness(t)

	_, err := h.run(t, "enqueue", "email.send", "--priority", "urgent")
	require.Error(t, err)

	_, err = h.run(t, "enqueue", "email.send", "--payload", "not-json")
	require.Error(t, err)

	_, err = h.run(t, "enqueue")
	require.Error(t, err)
}

func TestStatus_NotFound(t *testing.T) {
	h := newHarness(t)
	_, err := h.run(t, "status", "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestCancel(t *testing.T) {
	h := newHarness(t)
	out, err := h.run(t, "enqueue", "email.send")
	require.NoError(t, err)
	id := strings.TrimSpace(out)

	out, err = h.run(t, "cancel", id)
	require.NoError(t, err)
	assert.Contains(t, out, "cancelled "+id)

	out, err = h.run(t, "cancel", id)
	require.NoError(t, err)
	assert.Contains(t, out, "already finished")
}

func TestStats(t *testing.T) {
	h := newHarness(t)
	for range 3 {
		_, err := h.run(t, "enqueue", "email.send")
		require.NoError(t, err)
	}

	out, err := h.run(t, "stats", "--json")
	require.NoError(t, err)
	var stats model.QueueStats
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.Equal(t, int64(3), stats.TotalJobs)
	assert.Equal(t, int64(3), stats.QueuedJobs)

	out, err = h.run(t, "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "queued")
	assert.Contains(t, out, "success rate")
}

func TestCleanupAndReclaim(t *testing.T) {
	h := newHarness(t)

	out, err := h.run(t, "cleanup", "--older-than", "1h")
	require.NoError(t, err)
	assert.Contains(t, out, "deleted 0 jobs")

	_, err = h.run(t, "cleanup", "--older-than", "0s")
	require.Error(t, err)

	out, err = h.run(t, "reclaim")
	require.NoError(t, err)
	assert.Contains(t, out, "reclaimed 0 jobs")
}

func TestEnqueueFile(t *testing.T) {
	h := newHarness(t)
	path := filepath.Join(t.TempDir(), "jobs.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
- type: webhook
  priority: critical
  payload:
    url: https://example.com/hook
    headers:
      X-Team: ops
- type: report
  delay: 10m
  max_attempts: 2
  timeout: 90s
  metadata:
    owner: billing
`), 0o600))

	out, err := h.run(t, "enqueue-file", path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)

	id := strings.Fields(lines[0])[0]
	job, err := h.queue.GetJob(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, model.PriorityCritical, job.Priority)

	stats, err := h.queue.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.TotalJobs)
}

func TestParseEnqueueFile(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	reqs, err := parseEnqueueFile(strings.NewReader(`
- type: report
  delay: 10m
  timeout: 90s
  payload: {id: 7}
  metadata: {owner: billing}
`), now)
	require.NoError(t, err)
	require.Len(t, reqs, 1)
	r := reqs[0]
	assert.Equal(t, model.JobType("report"), r.Type)
	assert.JSONEq(t, `{"id":7}`, string(r.Payload))
	assert.Equal(t, 90, r.TimeoutSeconds)
	require.NotNil(t, r.ScheduledFor)
	assert.Equal(t, now.Add(10*time.Minute), *r.ScheduledFor)
	assert.JSONEq(t, `"billing"`, string(r.Metadata["owner"]))

	tests := []struct {
		name string
		doc  string
	}{
		{"empty", ``},
		{"empty list", `[]`},
		{"unknown field", "- type: report\n  colour: red\n"},
		{"bad priority", "- type: report\n  priority: urgent\n"},
		{"missing type", "- payload: {}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseEnqueueFile(strings.NewReader(tt.doc), now)
			require.Error(t, err)
		})
	}
}

func TestMigrate(t *testing.T) {
	h := newHarness(t)
	var called bool
	h.app.migrate = func(context.Context, *config.AppConfig) error {
		called = true
		return nil
	}
	out, err := h.run(t, "migrate")
	require.NoError(t, err)
	assert.True(t, called)
	assert.Contains(t, out, "migrations applied")

	h.app.migrate = func(context.Context, *config.AppConfig) error { return errors.New("boom") }
	_, err = h.run(t, "migrate")
	require.Error(t, err)
}

func TestConfigLoadFailure(t *testing.T) {
	h := newHarness(t)
	h.app.loadConfig = func() (config.AppConfig, error) { return config.AppConfig{}, errors.New("bad env") }
	_, err := h.run(t, "stats")
	require.EqualError(t, err, "bad env")
}

func TestOpenStoreQueue_RejectsMemory(t *testing.T) {
	a := newApp(slog.New(slog.NewTextHandler(io.Discard, nil)), io.Discard)
	cfg := config.AppConfig{Store: config.StoreConfig{Backend: config.StoreBackendMemory}}
	_, _, err := a.openStoreQueue(context.Background(), &cfg)
	require.ErrorIs(t, err, errSharedStoreRequired)
}
