package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/target/mmk-jobqueue/internal/domain"
	"github.com/target/mmk-jobqueue/internal/domain/model"
	"github.com/target/mmk-jobqueue/internal/domain/scheduler"
	"github.com/target/mmk-jobqueue/internal/mocks"
)

func hourlyEntry(name string) domain.ScheduleEntry {
	return domain.ScheduleEntry{
		Name:     name,
		Cron:     "@hourly",
		JobType:  "report.build",
		Priority: model.PriorityHigh,
		Payload:  json.RawMessage(`{"report":"usage"}`),
	}
}

func newTestScheduler(t *testing.T, f *queueFixture, entries ...domain.ScheduleEntry) *SchedulerService {
	t.Helper()
	svc, err := NewSchedulerService(SchedulerServiceOptions{
		Entries:  entries,
		Queue:    f.svc,
		FireKeys: f.store,
		Clock:    f.clock,
	})
	require.NoError(t, err)
	return svc
}

func TestNewSchedulerService_Validation(t *testing.T) {
	f := newQueueFixture(t)

	_, err := NewSchedulerService(SchedulerServiceOptions{FireKeys: f.store})
	require.Error(t, err, "queue is required")

	_, err = NewSchedulerService(SchedulerServiceOptions{Queue: f.svc})
	require.Error(t, err, "fire keys are required")

	_, err = NewSchedulerService(SchedulerServiceOptions{
		Entries:  []domain.ScheduleEntry{hourlyEntry("a"), hourlyEntry("a")},
		Queue:    f.svc,
		FireKeys: f.store,
	})
	require.Error(t, err)

	bad := hourlyEntry("bad")
	bad.Cron = "every tuesday"
	_, err = NewSchedulerService(SchedulerServiceOptions{
		Entries:  []domain.ScheduleEntry{bad},
		Queue:    f.svc,
		FireKeys: f.store,
	})
	require.Error(t, err)
}

func TestSchedulerService_Tick(t *testing.T) {
	ctx := context.Background()
	f := newQueueFixture(t)
	svc := newTestScheduler(t, f, hourlyEntry("usage-report"))
	assert.Equal(t, []string{"usage-report"}, svc.Entries())

	n, err := svc.Tick(ctx, f.clock.Now().Add(30*time.Minute))
	require.NoError(t, err)
	assert.Zero(t, n)

	f.clock.Advance(time.Hour)
	n, err = svc.Tick(ctx, f.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	job, err := f.svc.Dequeue(ctx, "w1")
	require.NoError(t, err)
	assert.Equal(t, model.JobType("report.build"), job.Type)
	assert.Equal(t, model.PriorityHigh, job.Priority)
	assert.JSONEq(t, `{"report":"usage"}`, string(job.Payload))
	name, ok := job.Status.MetadataString(scheduler.MetadataSchedule)
	require.True(t, ok)
	assert.Equal(t, "usage-report", name)

	// Same fire again is a no-op.
	n, err = svc.Tick(ctx, f.clock.Now())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSchedulerService_SkipsWhilePreviousJobRuns(t *testing.T) {
	ctx := context.Background()
	f := newQueueFixture(t)
	svc := newTestScheduler(t, f, hourlyEntry("usage-report"))

	f.clock.Advance(time.Hour)
	n, err := svc.Tick(ctx, f.clock.Now())
	require.NoError(t, err)
	require.Equal(t, 1, n)
	job, err := f.svc.Dequeue(ctx, "w1")
	require.NoError(t, err)

	f.clock.Advance(time.Hour)
	n, err = svc.Tick(ctx, f.clock.Now())
	require.NoError(t, err)
	assert.Zero(t, n, "previous job still processing")

	_, err = f.svc.ApplyResult(ctx, job, model.Success(nil, ""))
	require.NoError(t, err)

	f.clock.Advance(time.Hour)
	n, err = svc.Tick(ctx, f.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSchedulerService_InstancesShareFires(t *testing.T) {
	ctx := context.Background()
	f := newQueueFixture(t)
	a := newTestScheduler(t, f, hourlyEntry("usage-report"))
	b := newTestScheduler(t, f, hourlyEntry("usage-report"))

	f.clock.Advance(time.Hour)
	na, err := a.Tick(ctx, f.clock.Now())
	require.NoError(t, err)
	nb, err := b.Tick(ctx, f.clock.Now())
	require.NoError(t, err)

	assert.Equal(t, 1, na+nb)
	assert.Equal(t, int64(1), f.stats(t).TotalJobs)
}

func TestSchedulerService_EnqueueErrorDropsFire(t *testing.T) {
	ctx := context.Background()
	f := newQueueFixture(t)
	ctrl := gomock.NewController(t)
	q := mocks.NewMockJobEnqueuer(ctrl)

	svc, err := NewSchedulerService(SchedulerServiceOptions{
		Entries:  []domain.ScheduleEntry{hourlyEntry("usage-report")},
		Queue:    q,
		FireKeys: f.store,
		Clock:    f.clock,
	})
	require.NoError(t, err)

	q.EXPECT().Enqueue(gomock.Any(), gomock.Any()).Return("", errors.New("store down"))
	f.clock.Advance(time.Hour)
	n, err := svc.Tick(ctx, f.clock.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "usage-report")
	assert.Zero(t, n)

	// The fire key is held, so the same fire is not retried.
	n, err = svc.Tick(ctx, f.clock.Now())
	require.NoError(t, err)
	assert.Zero(t, n)

	q.EXPECT().Enqueue(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, req *model.EnqueueRequest) (string, error) {
			assert.Equal(t, model.JobType("report.build"), req.Type)
			return "job-2", nil
		})
	f.clock.Advance(time.Hour)
	n, err = svc.Tick(ctx, f.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
