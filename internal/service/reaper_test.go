package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/mmk-jobqueue/config"
	"github.com/target/mmk-jobqueue/internal/domain/model"
	"github.com/target/mmk-jobqueue/internal/observability/statsd"
	"github.com/target/mmk-jobqueue/internal/testutil"
)

// fakeMaintainer is a simple QueueMaintainer for testing.
type fakeMaintainer struct {
	mu sync.Mutex

	reclaimCalls int
	reclaimCount int
	reclaimErr   error

	purgeCalls map[model.JobState]int
	purgeAges  map[model.JobState]time.Duration
	// batches returned per state, in order; exhausted means 0
	purgeBatches map[model.JobState][]int64
	purgeErr     error
}

func (f *fakeMaintainer) ReclaimStale(context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reclaimCalls++
	return f.reclaimCount, f.reclaimErr
}

func (f *fakeMaintainer) PurgeFinished(
	_ context.Context,
	state model.JobState,
	olderThan time.Duration,
	_ int,
) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.purgeCalls == nil {
		f.purgeCalls = map[model.JobState]int{}
		f.purgeAges = map[model.JobState]time.Duration{}
	}
	f.purgeCalls[state]++
	f.purgeAges[state] = olderThan
	if f.purgeErr != nil {
		return 0, f.purgeErr
	}
	batches := f.purgeBatches[state]
	if len(batches) == 0 {
		return 0, nil
	}
	f.purgeBatches[state] = batches[1:]
	return batches[0], nil
}

func testReaperConfig() config.ReaperConfig {
	return config.ReaperConfig{
		Interval:        time.Minute,
		CompletedMaxAge: 24 * time.Hour,
		FailedMaxAge:    48 * time.Hour,
		CancelledMaxAge: 12 * time.Hour,
		BatchSize:       10,
	}
}

func TestNewReaperService(t *testing.T) {
	tests := []struct {
		name    string
		opts    ReaperServiceOptions
		wantErr bool
	}{
		{
			name: "valid options",
			opts: ReaperServiceOptions{Queue: &fakeMaintainer{}, Config: testReaperConfig(), Logger: slog.Default()},
		},
		{
			name:    "missing queue",
			opts:    ReaperServiceOptions{Config: testReaperConfig()},
			wantErr: true,
		},
		{
			name:    "zero interval",
			opts:    ReaperServiceOptions{Queue: &fakeMaintainer{}},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := NewReaperService(tt.opts)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, svc)
		})
	}
}

func TestReaperService_RunOnce(t *testing.T) {
	t.Run("reclaims and purges each terminal state in batches", func(t *testing.T) {
		q := &fakeMaintainer{
			reclaimCount: 2,
			purgeBatches: map[model.JobState][]int64{
				model.JobStateCompleted: {10, 10, 3},
				model.JobStateFailed:    {4},
			},
		}
		rec := &statsd.Recorder{}
		svc, err := NewReaperService(ReaperServiceOptions{Queue: q, Config: testReaperConfig(), Metrics: rec})
		require.NoError(t, err)

		require.NoError(t, svc.RunOnce(context.Background()))

		assert.Equal(t, 1, q.reclaimCalls)
		assert.Equal(t, 3, q.purgeCalls[model.JobStateCompleted], "stops after a short batch")
		assert.Equal(t, 1, q.purgeCalls[model.JobStateFailed])
		assert.Equal(t, 1, q.purgeCalls[model.JobStateCancelled])
		assert.Equal(t, 24*time.Hour, q.purgeAges[model.JobStateCompleted])
		assert.Equal(t, 48*time.Hour, q.purgeAges[model.JobStateFailed])
		assert.Equal(t, 12*time.Hour, q.purgeAges[model.JobStateCancelled])

		assert.Len(t, rec.Find("reaper.cleanup", map[string]string{"result": "success"}), 1)
		processed := rec.Find("reaper.jobs_processed", map[string]string{"operation": "delete_completed"})
		require.Len(t, processed, 1)
		assert.InDelta(t, 23, processed[0].Value, 0)
		assert.Len(t, rec.Find("reaper.cleanup_operation", map[string]string{
			"operation": "delete_cancelled",
			"result":    "noop",
		}), 1)
	})

	t.Run("disabled max age skips the state", func(t *testing.T) {
		q := &fakeMaintainer{}
		cfg := testReaperConfig()
		cfg.CancelledMaxAge = 0
		svc, err := NewReaperService(ReaperServiceOptions{Queue: q, Config: cfg})
		require.NoError(t, err)

		require.NoError(t, svc.RunOnce(context.Background()))
		assert.Zero(t, q.purgeCalls[model.JobStateCancelled])
	})

	t.Run("errors are joined and every step still runs", func(t *testing.T) {
		q := &fakeMaintainer{
			reclaimErr: errors.New("list failed"),
			purgeErr:   errors.New("purge failed"),
		}
		rec := &statsd.Recorder{}
		svc, err := NewReaperService(ReaperServiceOptions{Queue: q, Config: testReaperConfig(), Metrics: rec})
		require.NoError(t, err)

		err = svc.RunOnce(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "reclaim stale jobs")
		assert.Contains(t, err.Error(), "delete old cancelled jobs")
		assert.Equal(t, 1, q.purgeCalls[model.JobStateCancelled])
		assert.Len(t, rec.Find("reaper.cleanup", map[string]string{"result": "error"}), 1)
		assert.Empty(t, rec.Find("reaper.last_success_epoch", nil))
	})

	t.Run("cancellation is reported as context.Canceled", func(t *testing.T) {
		q := &fakeMaintainer{reclaimErr: context.Canceled, purgeErr: context.Canceled}
		svc, err := NewReaperService(ReaperServiceOptions{Queue: q, Config: testReaperConfig()})
		require.NoError(t, err)

		err = svc.RunOnce(context.Background())
		require.ErrorIs(t, err, context.Canceled)
	})
}

func TestReaperService_Run(t *testing.T) {
	q := &fakeMaintainer{}
	cfg := testReaperConfig()
	cfg.Interval = 10 * time.Millisecond
	svc, err := NewReaperService(ReaperServiceOptions{Queue: q, Config: cfg})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	require.Eventually(t, func() bool {
		q.mu.Lock()
		defer q.mu.Unlock()
		return q.reclaimCalls >= 2
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("reaper did not stop")
	}
}

func TestReaperService_WithQueueService(t *testing.T) {
	ctx := context.Background()
	f := newQueueFixture(t, func(o *QueueServiceOptions) { o.Retention = 0 })
	cfg := testReaperConfig()
	cfg.CompletedMaxAge = time.Hour

	id := f.enqueue(t, testutil.NewEnqueueRequest())
	job, err := f.svc.Dequeue(ctx, "w1")
	require.NoError(t, err)
	_, err = f.svc.ApplyResult(ctx, job, model.Success(nil, ""))
	require.NoError(t, err)

	stuck := f.enqueue(t, testutil.NewEnqueueRequest())
	_, err = f.svc.Dequeue(ctx, "w2")
	require.NoError(t, err)

	svc, err := NewReaperService(ReaperServiceOptions{Queue: f.svc, Config: cfg})
	require.NoError(t, err)

	f.clock.Advance(2 * time.Hour)
	require.NoError(t, svc.RunOnce(ctx))

	_, err = f.svc.GetJob(ctx, id)
	require.ErrorIs(t, err, model.ErrJobNotFound)
	status, err := f.svc.GetStatus(ctx, stuck)
	require.NoError(t, err)
	assert.Equal(t, model.JobStateRetrying, status.State)
}
