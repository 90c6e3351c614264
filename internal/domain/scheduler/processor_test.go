package scheduler_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/mmk-jobqueue/internal/domain"
	"github.com/target/mmk-jobqueue/internal/domain/model"
	"github.com/target/mmk-jobqueue/internal/domain/scheduler"
)

type stubFireKeys struct {
	held map[string]time.Duration
	err  error
}

func (s *stubFireKeys) AcquireFireKey(_ context.Context, key string, ttl time.Duration) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	if s.held == nil {
		s.held = map[string]time.Duration{}
	}
	if _, ok := s.held[key]; ok {
		return false, nil
	}
	s.held[key] = ttl
	return true, nil
}

type stubStateReader struct {
	states map[string]model.JobState
	err    error
}

func (s *stubStateReader) GetStatus(_ context.Context, id string) (*model.JobStatus, error) {
	if s.err != nil {
		return nil, s.err
	}
	st, ok := s.states[id]
	if !ok {
		return nil, model.ErrJobNotFound
	}
	return &model.JobStatus{State: st}, nil
}

type stubEnqueuer struct {
	reqs []*model.EnqueueRequest
	err  error
}

func (s *stubEnqueuer) Enqueue(_ context.Context, req *model.EnqueueRequest) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.reqs = append(s.reqs, req)
	return "job-" + string(rune('a'+len(s.reqs)-1)), nil
}

var base = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func everyFiveMinutes(t *testing.T, overrun domain.OverrunPolicy) *scheduler.Task {
	t.Helper()
	task, err := scheduler.NewTask(domain.ScheduleEntry{
		Name:    "sweep",
		Cron:    "*/5 * * * *",
		JobType: "ops.sweep",
		Overrun: overrun,
	}, base)
	require.NoError(t, err)
	return task
}

type processorFixture struct {
	keys     *stubFireKeys
	states   *stubStateReader
	enqueuer *stubEnqueuer
	proc     *scheduler.Processor
}

func newProcessorFixture(t *testing.T) *processorFixture {
	t.Helper()
	f := &processorFixture{
		keys:     &stubFireKeys{},
		states:   &stubStateReader{states: map[string]model.JobState{}},
		enqueuer: &stubEnqueuer{},
	}
	proc, err := scheduler.NewProcessor(scheduler.ProcessorOptions{
		FireKeys:    f.keys,
		Enqueuer:    f.enqueuer,
		StateReader: f.states,
	})
	require.NoError(t, err)
	f.proc = proc
	return f
}

func TestProcessor_NotDue(t *testing.T) {
	f := newProcessorFixture(t)
	task := everyFiveMinutes(t, domain.OverrunPolicySkip)

	res, err := f.proc.Process(context.Background(), task, base.Add(4*time.Minute))
	require.NoError(t, err)
	assert.False(t, res.Due)
	assert.Empty(t, f.enqueuer.reqs)
	assert.Equal(t, base, task.LastCheck)
}

func TestProcessor_EnqueuesDueFire(t *testing.T) {
	f := newProcessorFixture(t)
	task := everyFiveMinutes(t, domain.OverrunPolicySkip)
	now := base.Add(5*time.Minute + 10*time.Second)

	res, err := f.proc.Process(context.Background(), task, now)
	require.NoError(t, err)
	assert.True(t, res.Enqueued)
	assert.Equal(t, base.Add(5*time.Minute), res.FireAt)
	assert.Equal(t, scheduler.ComputeFireKey("sweep", base.Add(5*time.Minute)), res.FireKey)
	assert.Equal(t, 5*time.Minute, f.keys.held[res.FireKey])
	assert.Equal(t, now, task.LastCheck)
	assert.Equal(t, res.JobID, task.LastJobID)

	require.Len(t, f.enqueuer.reqs, 1)
	req := f.enqueuer.reqs[0]
	assert.Equal(t, model.JobType("ops.sweep"), req.Type)
	var name string
	require.NoError(t, json.Unmarshal(req.Metadata[scheduler.MetadataSchedule], &name))
	assert.Equal(t, "sweep", name)
}

func TestProcessor_CollapsesMissedFires(t *testing.T) {
	f := newProcessorFixture(t)
	task := everyFiveMinutes(t, domain.OverrunPolicyQueue)

	res, err := f.proc.Process(context.Background(), task, base.Add(32*time.Minute))
	require.NoError(t, err)
	assert.True(t, res.Enqueued)
	assert.Equal(t, base.Add(30*time.Minute), res.FireAt)
	assert.Len(t, f.enqueuer.reqs, 1)
}

func TestProcessor_SkipPolicy(t *testing.T) {
	ctx := context.Background()
	f := newProcessorFixture(t)
	task := everyFiveMinutes(t, domain.OverrunPolicySkip)

	first, err := f.proc.Process(ctx, task, base.Add(5*time.Minute))
	require.NoError(t, err)
	require.True(t, first.Enqueued)

	f.states.states[first.JobID] = model.JobStateRetrying
	second, err := f.proc.Process(ctx, task, base.Add(10*time.Minute))
	require.NoError(t, err)
	assert.False(t, second.Enqueued)
	assert.Equal(t, scheduler.SkipOverrun, second.Skipped)
	assert.Equal(t, base.Add(10*time.Minute), task.LastCheck)

	f.states.states[first.JobID] = model.JobStateCompleted
	third, err := f.proc.Process(ctx, task, base.Add(15*time.Minute))
	require.NoError(t, err)
	assert.True(t, third.Enqueued)
	assert.Len(t, f.enqueuer.reqs, 2)
}

func TestProcessor_SkipPolicyTreatsExpiredJobAsFinished(t *testing.T) {
	ctx := context.Background()
	f := newProcessorFixture(t)
	task := everyFiveMinutes(t, domain.OverrunPolicySkip)
	task.LastJobID = "purged"

	res, err := f.proc.Process(ctx, task, base.Add(5*time.Minute))
	require.NoError(t, err)
	assert.True(t, res.Enqueued)
}

func TestProcessor_QueuePolicyIgnoresRunningJob(t *testing.T) {
	ctx := context.Background()
	f := newProcessorFixture(t)
	task := everyFiveMinutes(t, domain.OverrunPolicyQueue)
	task.LastJobID = "running"
	f.states.states["running"] = model.JobStateProcessing

	res, err := f.proc.Process(ctx, task, base.Add(5*time.Minute))
	require.NoError(t, err)
	assert.True(t, res.Enqueued)
}

func TestProcessor_DuplicateFireAcrossInstances(t *testing.T) {
	ctx := context.Background()
	f := newProcessorFixture(t)
	other, err := scheduler.NewProcessor(scheduler.ProcessorOptions{
		FireKeys:    f.keys,
		Enqueuer:    f.enqueuer,
		StateReader: f.states,
	})
	require.NoError(t, err)

	now := base.Add(5 * time.Minute)
	a, err := f.proc.Process(ctx, everyFiveMinutes(t, domain.OverrunPolicyQueue), now)
	require.NoError(t, err)
	b, err := other.Process(ctx, everyFiveMinutes(t, domain.OverrunPolicyQueue), now)
	require.NoError(t, err)

	assert.True(t, a.Enqueued)
	assert.False(t, b.Enqueued)
	assert.Equal(t, scheduler.SkipDuplicate, b.Skipped)
	assert.Len(t, f.enqueuer.reqs, 1)
}

func TestProcessor_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("state reader failure keeps last check", func(t *testing.T) {
		f := newProcessorFixture(t)
		f.states.err = errors.New("store down")
		task := everyFiveMinutes(t, domain.OverrunPolicySkip)
		task.LastJobID = "prev"

		_, err := f.proc.Process(ctx, task, base.Add(5*time.Minute))
		require.Error(t, err)
		assert.Equal(t, base, task.LastCheck)
	})

	t.Run("fire key failure keeps last check", func(t *testing.T) {
		f := newProcessorFixture(t)
		f.keys.err = errors.New("store down")
		task := everyFiveMinutes(t, domain.OverrunPolicySkip)

		_, err := f.proc.Process(ctx, task, base.Add(5*time.Minute))
		require.Error(t, err)
		assert.Equal(t, base, task.LastCheck)
	})

	t.Run("enqueue failure drops the fire", func(t *testing.T) {
		f := newProcessorFixture(t)
		f.enqueuer.err = errors.New("rejected")
		task := everyFiveMinutes(t, domain.OverrunPolicySkip)
		now := base.Add(5 * time.Minute)

		_, err := f.proc.Process(ctx, task, now)
		require.Error(t, err)
		assert.Equal(t, now, task.LastCheck)
	})

	t.Run("missing collaborators", func(t *testing.T) {
		_, err := scheduler.NewProcessor(scheduler.ProcessorOptions{})
		require.Error(t, err)
	})
}

func TestLatestFire(t *testing.T) {
	sched, err := domain.ParseCron("@hourly")
	require.NoError(t, err)

	_, ok := scheduler.LatestFire(sched, base, base.Add(59*time.Minute))
	assert.False(t, ok)

	fire, ok := scheduler.LatestFire(sched, base, base.Add(3*time.Hour+time.Second))
	require.True(t, ok)
	assert.Equal(t, base.Add(3*time.Hour), fire)

	fire, ok = scheduler.LatestFire(sched, base, base.Add(time.Hour))
	require.True(t, ok)
	assert.Equal(t, base.Add(time.Hour), fire, "a fire exactly at now is due")
}
