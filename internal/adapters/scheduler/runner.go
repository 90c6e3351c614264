// Package scheduler provides adapters for running the recurring job scheduler.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	obserrors "github.com/target/mmk-jobqueue/internal/observability/errors"
	"github.com/target/mmk-jobqueue/internal/observability/metrics"
	"github.com/target/mmk-jobqueue/internal/observability/statsd"
)

// Ticker is the scheduler surface the runner drives.
type Ticker interface {
	Tick(ctx context.Context, now time.Time) (int, error)
}

// RunnerOptions holds the dependencies for creating a Runner.
type RunnerOptions struct {
	Scheduler Ticker
	Interval  time.Duration
	Logger    *slog.Logger
	Metrics   statsd.Sink
}

// Runner calls Tick on a fixed interval until its context ends.
type Runner struct {
	scheduler Ticker
	interval  time.Duration
	logger    *slog.Logger
	metrics   statsd.Sink
}

// NewRunner creates a new scheduler runner with the given options.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.Scheduler == nil {
		return nil, errors.New("scheduler is required")
	}
	if opts.Interval <= 0 {
		opts.Interval = time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Runner{
		scheduler: opts.Scheduler,
		interval:  opts.Interval,
		logger:    opts.Logger.With("component", "scheduler_runner"),
		metrics:   opts.Metrics,
	}, nil
}

// Run starts the scheduler loop and runs until the context is cancelled.
// Tick errors are logged and the loop continues.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting scheduler runner", "interval", r.interval)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.InfoContext(ctx, "scheduler runner stopping", "reason", ctx.Err())
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()

		case now := <-ticker.C:
			r.tick(ctx, now)
		}
	}
}

func (r *Runner) tick(ctx context.Context, now time.Time) {
	start := time.Now()
	enqueued, err := r.scheduler.Tick(ctx, now.UTC())
	r.emitTickMetrics(enqueued, time.Since(start), err)

	switch {
	case err != nil && ctx.Err() == nil:
		r.logger.ErrorContext(ctx, "scheduler tick failed", "error", err, "enqueued", enqueued)
	case enqueued > 0:
		r.logger.DebugContext(ctx, "scheduler tick", "enqueued", enqueued)
	}
}

func (r *Runner) emitTickMetrics(enqueued int, elapsed time.Duration, err error) {
	if r.metrics == nil {
		return
	}

	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultError
	} else if enqueued == 0 {
		result = metrics.ResultNoop
	}

	tags := map[string]string{
		"result": result,
	}

	if err != nil {
		if class := obserrors.Classify(err); class != "" {
			tags["error_class"] = class
		}
	}

	r.metrics.Count("scheduler.tick", 1, tags)

	if enqueued > 0 {
		r.metrics.Count("scheduler.jobs_enqueued", int64(enqueued), tags)
	}

	if elapsed > 0 {
		r.metrics.Timing("scheduler.tick_duration", elapsed, metrics.CloneTags(tags))
	}

	if err == nil {
		r.metrics.Gauge("scheduler.last_success_epoch", float64(time.Now().Unix()), nil)
	}
}
