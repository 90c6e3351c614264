package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/target/mmk-jobqueue/internal/core"
	"github.com/target/mmk-jobqueue/internal/domain"
	"github.com/target/mmk-jobqueue/internal/domain/scheduler"
)

// SchedulerQueue is the queue surface the scheduler enqueues through.
type SchedulerQueue interface {
	core.JobEnqueuer
}

// SchedulerServiceOptions holds the dependencies for creating a SchedulerService.
type SchedulerServiceOptions struct {
	Entries  []domain.ScheduleEntry // Required: recurring entries
	Queue    SchedulerQueue         // Required: enqueue target and status reader
	FireKeys scheduler.FireKeyStore // Required: cross-instance fire dedup
	Clock    core.Clock             // Optional: defaults to wall clock
	Logger   *slog.Logger           // Optional
}

// SchedulerService enqueues recurring jobs when their cron expressions fire.
// Several instances may run against one store; AcquireFireKey makes each fire enqueue once.
type SchedulerService struct {
	mu     sync.Mutex
	tasks  []*scheduler.Task
	proc   *scheduler.Processor
	logger *slog.Logger
}

// NewSchedulerService compiles the entries. Fires at or before the construction time are ignored.
func NewSchedulerService(opts SchedulerServiceOptions) (*SchedulerService, error) {
	if opts.Queue == nil {
		return nil, errors.New("queue is required")
	}
	clock := opts.Clock
	if clock == nil {
		clock = systemClock{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	proc, err := scheduler.NewProcessor(scheduler.ProcessorOptions{
		FireKeys:    opts.FireKeys,
		Enqueuer:    opts.Queue,
		StateReader: opts.Queue,
	})
	if err != nil {
		return nil, err
	}

	since := clock.Now()
	seen := make(map[string]bool, len(opts.Entries))
	tasks := make([]*scheduler.Task, 0, len(opts.Entries))
	for _, e := range opts.Entries {
		if seen[e.Name] {
			return nil, fmt.Errorf("duplicate schedule name %q", e.Name)
		}
		seen[e.Name] = true
		task, err := scheduler.NewTask(e, since)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}

	return &SchedulerService{
		tasks:  tasks,
		proc:   proc,
		logger: logger.With("component", "scheduler_service"),
	}, nil
}

// Tick processes every entry once and returns the number of jobs enqueued.
// A failing entry does not stop the others; their errors are joined.
func (s *SchedulerService) Tick(ctx context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		enqueued int
		errs     []error
	)
	for _, task := range s.tasks {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		res, err := s.proc.Process(ctx, task, now)
		if err != nil {
			errs = append(errs, fmt.Errorf("schedule %s: %w", task.Entry.Name, err))
			continue
		}
		switch {
		case res.Enqueued:
			enqueued++
			s.logger.InfoContext(ctx, "scheduled job enqueued",
				"schedule", task.Entry.Name,
				"job_id", res.JobID,
				"fire_key", res.FireKey,
			)
		case res.Skipped != "":
			s.logger.DebugContext(ctx, "scheduled fire skipped",
				"schedule", task.Entry.Name,
				"reason", res.Skipped,
				"fire_key", res.FireKey,
			)
		}
	}
	return enqueued, errors.Join(errs...)
}

// Entries returns the configured schedule names in load order.
func (s *SchedulerService) Entries() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, len(s.tasks))
	for i, t := range s.tasks {
		names[i] = t.Entry.Name
	}
	return names
}
