// Package storetest is the conformance suite every core.JobStore implementation must pass.
package storetest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/mmk-jobqueue/internal/core"
	"github.com/target/mmk-jobqueue/internal/domain/model"
)

// Factory returns an empty store for one subtest.
type Factory func(t *testing.T) core.JobStore

// Run executes the suite against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Helper()
	tests := []struct {
		name string
		fn   func(t *testing.T, s core.JobStore)
	}{
		{"SaveAndGet", testSaveAndGet},
		{"ClaimHonoursPriorityAndFIFO", testClaimOrder},
		{"ClaimEmpty", testClaimEmpty},
		{"PromoteDue", testPromoteDue},
		{"RemoveJob", testRemoveJob},
		{"ReleaseClaim", testReleaseClaim},
		{"Counters", testCounters},
		{"PurgeFinished", testPurgeFinished},
		{"AcquireFireKey", testAcquireFireKey},
		{"ConcurrentClaimSingleWinner", testConcurrentClaim},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, newStore(t))
		})
	}
}

// Now is the reference time used by the suite, truncated so every backend round-trips it.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

// NewJob builds a queued record with a fresh ID.
func NewJob(priority model.JobPriority) *model.QueuedJob {
	return &model.QueuedJob{
		ID:        uuid.NewString(),
		Type:      "test.job",
		Priority:  priority,
		Payload:   json.RawMessage(`{"n":1}`),
		CreatedAt: Now(),
		Status: model.JobStatus{
			State:       model.JobStateQueued,
			MaxAttempts: model.DefaultMaxAttempts,
		},
	}
}

func saveReady(t *testing.T, s core.JobStore, p model.JobPriority) *model.QueuedJob {
	t.Helper()
	ctx := context.Background()
	job := NewJob(p)
	require.NoError(t, s.SaveJob(ctx, job, 0))
	require.NoError(t, s.PushReady(ctx, job.Ref()))
	return job
}

func testSaveAndGet(t *testing.T, s core.JobStore) {
	ctx := context.Background()
	job := NewJob(model.PriorityHigh)
	job.Status.LastError = model.StringPtr("boom")
	require.NoError(t, job.Status.SetMetadata("worker_id", "w1"))
	require.NoError(t, s.SaveJob(ctx, job, time.Hour))

	got, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, got.ID)
	assert.Equal(t, job.Type, got.Type)
	assert.Equal(t, job.Priority, got.Priority)
	assert.JSONEq(t, string(job.Payload), string(got.Payload))
	assert.True(t, job.CreatedAt.Equal(got.CreatedAt))
	assert.Equal(t, "boom", *got.Status.LastError)
	worker, ok := got.Status.MetadataString("worker_id")
	assert.True(t, ok)
	assert.Equal(t, "w1", worker)

	_, err = s.GetJob(ctx, uuid.NewString())
	require.ErrorIs(t, err, model.ErrJobNotFound)
}

func testClaimOrder(t *testing.T, s core.JobStore) {
	ctx := context.Background()
	low := saveReady(t, s, model.PriorityLow)
	normal1 := saveReady(t, s, model.PriorityNormal)
	critical := saveReady(t, s, model.PriorityCritical)
	normal2 := saveReady(t, s, model.PriorityNormal)
	high := saveReady(t, s, model.PriorityHigh)

	want := []string{critical.ID, high.ID, normal1.ID, normal2.ID, low.ID}
	for i, id := range want {
		got, err := s.ClaimNext(ctx)
		require.NoError(t, err, "claim %d", i)
		assert.Equal(t, id, got, "claim %d", i)
	}

	processing, err := s.ListProcessing(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, want, processing)
}

func testClaimEmpty(t *testing.T, s core.JobStore) {
	_, err := s.ClaimNext(context.Background())
	require.ErrorIs(t, err, model.ErrNoJobsAvailable)
}

func testPromoteDue(t *testing.T, s core.JobStore) {
	ctx := context.Background()
	now := Now()

	due := NewJob(model.PriorityHigh)
	later := NewJob(model.PriorityLow)
	require.NoError(t, s.SaveJob(ctx, due, 0))
	require.NoError(t, s.SaveJob(ctx, later, 0))
	require.NoError(t, s.ScheduleDelayed(ctx, due.Ref(), now.Add(-time.Second)))
	require.NoError(t, s.ScheduleDelayed(ctx, later.Ref(), now.Add(time.Hour)))

	_, err := s.ClaimNext(ctx)
	require.ErrorIs(t, err, model.ErrNoJobsAvailable, "delayed jobs are not claimable")

	promoted, err := s.PromoteDue(ctx, now, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{due.ID}, promoted)

	id, err := s.ClaimNext(ctx)
	require.NoError(t, err)
	assert.Equal(t, due.ID, id)

	promoted, err = s.PromoteDue(ctx, now.Add(2*time.Hour), 10)
	require.NoError(t, err)
	assert.Equal(t, []string{later.ID}, promoted)
}

func testRemoveJob(t *testing.T, s core.JobStore) {
	ctx := context.Background()

	ready := saveReady(t, s, model.PriorityNormal)
	found, err := s.RemoveJob(ctx, ready.Ref())
	require.NoError(t, err)
	assert.True(t, found)

	delayed := NewJob(model.PriorityCritical)
	require.NoError(t, s.SaveJob(ctx, delayed, 0))
	require.NoError(t, s.ScheduleDelayed(ctx, delayed.Ref(), Now().Add(time.Minute)))
	found, err = s.RemoveJob(ctx, delayed.Ref())
	require.NoError(t, err)
	assert.True(t, found)

	claimed := saveReady(t, s, model.PriorityLow)
	_, err = s.ClaimNext(ctx)
	require.NoError(t, err)
	found, err = s.RemoveJob(ctx, claimed.Ref())
	require.NoError(t, err)
	assert.True(t, found)

	found, err = s.RemoveJob(ctx, claimed.Ref())
	require.NoError(t, err)
	assert.False(t, found, "second removal finds nothing")

	_, err = s.ClaimNext(ctx)
	require.ErrorIs(t, err, model.ErrNoJobsAvailable)
	promoted, err := s.PromoteDue(ctx, Now().Add(time.Hour), 10)
	require.NoError(t, err)
	assert.Empty(t, promoted)
	processing, err := s.ListProcessing(ctx)
	require.NoError(t, err)
	assert.Empty(t, processing)
}

func testReleaseClaim(t *testing.T, s core.JobStore) {
	ctx := context.Background()
	job := saveReady(t, s, model.PriorityNormal)
	_, err := s.ClaimNext(ctx)
	require.NoError(t, err)

	released, err := s.ReleaseClaim(ctx, job.ID)
	require.NoError(t, err)
	assert.True(t, released)

	released, err = s.ReleaseClaim(ctx, job.ID)
	require.NoError(t, err)
	assert.False(t, released)
}

func testCounters(t *testing.T, s core.JobStore) {
	ctx := context.Background()
	queued := model.StateCounter(model.JobStateQueued)
	processing := model.StateCounter(model.JobStateProcessing)

	require.NoError(t, s.IncrementCounters(ctx, map[model.Counter]int64{model.CounterTotal: 2, queued: 2}))
	require.NoError(t, s.IncrementCounters(ctx, map[model.Counter]int64{queued: -1, processing: 1}))

	got, err := s.Counters(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got[model.CounterTotal])
	assert.Equal(t, int64(1), got[queued])
	assert.Equal(t, int64(1), got[processing])
	assert.Zero(t, got[model.StateCounter(model.JobStateFailed)])
}

func testPurgeFinished(t *testing.T, s core.JobStore) {
	ctx := context.Background()
	now := Now()

	finish := func(age time.Duration, state model.JobState) *model.QueuedJob {
		job := NewJob(model.PriorityNormal)
		job.Status.State = state
		job.Status.CompletedAt = model.TimePtr(now.Add(-age))
		require.NoError(t, s.SaveJob(ctx, job, 0))
		return job
	}
	old1 := finish(48*time.Hour, model.JobStateCompleted)
	old2 := finish(36*time.Hour, model.JobStateFailed)
	fresh := finish(time.Hour, model.JobStateCompleted)
	active := NewJob(model.PriorityNormal)
	require.NoError(t, s.SaveJob(ctx, active, 0))

	old3 := finish(30*time.Hour, model.JobStateCompleted)
	cutoff := now.Add(-24 * time.Hour)

	n, err := s.PurgeFinished(ctx, model.JobStateCompleted, cutoff, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	_, err = s.GetJob(ctx, old1.ID)
	require.ErrorIs(t, err, model.ErrJobNotFound, "oldest record goes first")
	_, err = s.GetJob(ctx, old3.ID)
	require.NoError(t, err)

	n, err = s.PurgeFinished(ctx, model.JobStateCompleted, cutoff, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = s.GetJob(ctx, old2.ID)
	require.NoError(t, err, "failed records are purged separately")
	n, err = s.PurgeFinished(ctx, model.JobStateFailed, cutoff, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	_, err = s.GetJob(ctx, old2.ID)
	require.ErrorIs(t, err, model.ErrJobNotFound)

	for _, keep := range []*model.QueuedJob{fresh, active} {
		_, err = s.GetJob(ctx, keep.ID)
		require.NoError(t, err)
	}
}

func testAcquireFireKey(t *testing.T, s core.JobStore) {
	ctx := context.Background()
	key := "nightly:" + uuid.NewString()

	ok, err := s.AcquireFireKey(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.AcquireFireKey(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
}

func testConcurrentClaim(t *testing.T, s core.JobStore) {
	ctx := context.Background()
	job := saveReady(t, s, model.PriorityNormal)

	const workers = 8
	var (
		mu      sync.Mutex
		winners []string
		wg      sync.WaitGroup
		start   = make(chan struct{})
		errs    = make(chan error, workers)
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			id, err := s.ClaimNext(ctx)
			if errors.Is(err, model.ErrNoJobsAvailable) {
				return
			}
			if err != nil {
				errs <- fmt.Errorf("claim: %w", err)
				return
			}
			mu.Lock()
			winners = append(winners, id)
			mu.Unlock()
		}()
	}
	close(start)
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, []string{job.ID}, winners)
}
