// Package jobrunner runs queued jobs through their registered handlers.
package jobrunner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/target/mmk-jobqueue/internal/core"
	"github.com/target/mmk-jobqueue/internal/domain/job"
	"github.com/target/mmk-jobqueue/internal/domain/model"
	apperrors "github.com/target/mmk-jobqueue/internal/errors"
	"github.com/target/mmk-jobqueue/internal/observability/metrics"
)

// Defaults applied by NewExecutor.
const (
	DefaultPollInterval      = time.Second
	DefaultMaxConcurrentJobs = 10
	DefaultShutdownTimeout   = 30 * time.Second
)

// HandlerSource resolves the handler for a job type.
type HandlerSource interface {
	Lookup(jobType model.JobType) (job.Handler, bool)
}

// ExecutorOptions configures the Executor.
type ExecutorOptions struct {
	Queue    core.JobQueue // Required
	Handlers HandlerSource // Required
	Notifier job.Notifier  // Optional: wakes the poll loop when work is enqueued locally

	PollInterval      time.Duration
	MaxConcurrentJobs int
	DefaultTimeout    time.Duration // fallback when neither the job nor the handler sets one
	ShutdownTimeout   time.Duration
	WorkerID          string

	Logger   *slog.Logger
	Observer metrics.Observer // Optional: receives dispatch events in addition to Metrics()
}

// Executor polls the queue and dispatches claimed jobs to handlers.
//
// A global permit is taken before every Dequeue, so the executor never claims a job it
// cannot start. Per-type limits from HandlerConfig.MaxConcurrentJobs are checked right after
// the claim without blocking: a job whose type is saturated goes back to the tail of its
// ready list and its permit is returned, so other types keep running.
type Executor struct {
	queue    core.JobQueue
	handlers HandlerSource
	notifier job.Notifier

	pollInterval    time.Duration
	maxConcurrent   int64
	defaultTimeout  time.Duration
	shutdownTimeout time.Duration
	workerID        string

	permits   *semaphore.Weighted
	slotFreed chan struct{}

	limitsMu sync.Mutex
	limits   map[model.JobType]typeLimit

	stats    *metrics.ExecutorMetrics
	observer metrics.Observer
	logger   *slog.Logger
}

type typeLimit struct {
	size int
	sem  *semaphore.Weighted
}

// NewExecutor validates options and applies defaults.
func NewExecutor(opts ExecutorOptions) (*Executor, error) {
	if opts.Queue == nil {
		return nil, errors.New("queue is required")
	}
	if opts.Handlers == nil {
		return nil, errors.New("handler source is required")
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.MaxConcurrentJobs <= 0 {
		opts.MaxConcurrentJobs = DefaultMaxConcurrentJobs
	}
	if opts.DefaultTimeout <= 0 {
		opts.DefaultTimeout = model.DefaultTimeout
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = DefaultShutdownTimeout
	}
	if opts.WorkerID == "" {
		opts.WorkerID = DefaultWorkerID()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	stats := metrics.NewExecutorMetrics()
	observer := metrics.Observer(stats)
	if opts.Observer != nil {
		observer = metrics.Observers{stats, opts.Observer}
	}

	return &Executor{
		queue:           opts.Queue,
		handlers:        opts.Handlers,
		notifier:        opts.Notifier,
		pollInterval:    opts.PollInterval,
		maxConcurrent:   int64(opts.MaxConcurrentJobs),
		defaultTimeout:  opts.DefaultTimeout,
		shutdownTimeout: opts.ShutdownTimeout,
		workerID:        opts.WorkerID,
		permits:         semaphore.NewWeighted(int64(opts.MaxConcurrentJobs)),
		slotFreed:       make(chan struct{}, 1),
		limits:          make(map[model.JobType]typeLimit),
		stats:           stats,
		observer:        observer,
		logger:          logger.With("component", "executor", "worker_id", opts.WorkerID),
	}, nil
}

// DefaultWorkerID returns hostname-pid.
func DefaultWorkerID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return host + "-" + strconv.Itoa(os.Getpid())
}

// Metrics returns the executor counters.
func (e *Executor) Metrics() metrics.ExecutorSnapshot {
	return e.stats.Snapshot()
}

// WorkerID identifies this executor in job metadata.
func (e *Executor) WorkerID() string { return e.workerID }

// Run polls until ctx is cancelled, then waits up to the shutdown timeout for in-flight jobs.
// Returns nil on graceful shutdown.
func (e *Executor) Run(ctx context.Context) error {
	e.logger.InfoContext(ctx, "starting executor",
		"poll_interval", e.pollInterval,
		"max_concurrent_jobs", e.maxConcurrent,
	)

	var wake <-chan struct{}
	if e.notifier != nil {
		unsub, ch := e.notifier.Subscribe()
		defer unsub()
		wake = ch
	}

	ticker := time.NewTicker(e.pollInterval)
	defer ticker.Stop()

	for {
		if e.poll(ctx) {
			// Requeues during the pass signalled the notifier; skip that wakeup so deferred
			// jobs are retried on the next tick or slot release instead of in a tight loop.
			select {
			case _, ok := <-wake:
				if !ok {
					wake = nil
				}
			default:
			}
		}

		select {
		case <-ctx.Done():
			e.drain()
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case <-ticker.C:
		case <-e.slotFreed:
		case _, ok := <-wake:
			if !ok {
				wake = nil
			}
		}
	}
}

// poll claims jobs while permits are free. Store errors are logged and polling resumes next tick.
// Claims and requeues run detached from ctx so shutdown never interrupts a half-written claim.
// Reports whether any job was deferred because its type was at its limit.
func (e *Executor) poll(ctx context.Context) bool {
	claimCtx := context.WithoutCancel(ctx)
	var deferred map[string]struct{}
	for ctx.Err() == nil {
		if !e.permits.TryAcquire(1) {
			break
		}
		claimed, err := e.queue.Dequeue(claimCtx, e.workerID)
		if err != nil {
			e.permits.Release(1)
			if !errors.Is(err, model.ErrNoJobsAvailable) {
				e.logger.ErrorContext(ctx, "dequeue failed", "error", err)
			}
			break
		}

		a, admitted := e.admit(claimed)
		if admitted {
			go e.dispatch(claimCtx, claimed, a)
			continue
		}

		e.permits.Release(1)
		if err := e.queue.Requeue(claimCtx, claimed); err != nil {
			e.logger.ErrorContext(ctx, "requeue of saturated job type failed",
				"job_id", claimed.ID, "job_type", claimed.Type, "error", err)
			break
		}
		if deferred == nil {
			deferred = make(map[string]struct{})
		}
		// Seeing a deferred job again means the rest of the ready list is saturated too.
		if _, seen := deferred[claimed.ID]; seen {
			break
		}
		deferred[claimed.ID] = struct{}{}
	}
	return deferred != nil
}

// drain waits for every permit to come back or the shutdown timeout to pass.
func (e *Executor) drain() {
	active := e.stats.Snapshot().Active
	e.logger.Info("executor stopping", "active_jobs", active, "shutdown_timeout", e.shutdownTimeout)

	ctx, cancel := context.WithTimeout(context.Background(), e.shutdownTimeout)
	defer cancel()
	if err := e.permits.Acquire(ctx, e.maxConcurrent); err != nil {
		e.logger.Warn("shutdown timeout exceeded; unfinished jobs are left to stale reclamation",
			"active_jobs", e.stats.Snapshot().Active,
		)
		return
	}
	e.permits.Release(e.maxConcurrent)
	e.logger.Info("executor stopped")
}

// admission is what dispatch needs from admit.
type admission struct {
	handler job.Handler
	found   bool
	release func() // frees the per-type slot; nil when the type is unlimited
	err     error  // set when resolving the handler panicked
}

// admit resolves the handler and takes a per-type slot without blocking. It reports false
// only when the type is at its limit; a panicking Lookup or Config admits the job with err
// set so it fails through the normal result path.
func (e *Executor) admit(claimed *model.QueuedJob) (a admission, admitted bool) {
	defer func() {
		if r := recover(); r != nil {
			a, admitted = admission{err: apperrors.Fatalf("handler config panic: %v", r)}, true
		}
	}()

	h, ok := e.handlers.Lookup(claimed.Type)
	if !ok {
		return admission{}, true
	}
	a = admission{handler: h, found: true}
	sem := e.typeLimiter(claimed.Type, h.Config().MaxConcurrentJobs)
	if sem == nil {
		return a, true
	}
	if !sem.TryAcquire(1) {
		return admission{}, false
	}
	a.release = func() {
		sem.Release(1)
		select {
		case e.slotFreed <- struct{}{}:
		default:
		}
	}
	return a, true
}

// dispatch runs one admitted job and records its result. ctx is already detached from the
// poll context, so neither the handler nor the result write is cut short by shutdown.
func (e *Executor) dispatch(ctx context.Context, claimed *model.QueuedJob, a admission) {
	defer e.permits.Release(1)
	if a.release != nil {
		defer a.release()
	}
	logger := e.logger.With("job_id", claimed.ID, "job_type", claimed.Type)

	e.observer.ObserveStart(claimed.Type)
	start := time.Now()
	result := e.execute(ctx, logger, claimed, a)
	elapsed := time.Since(start)

	state, err := e.queue.ApplyResult(ctx, claimed, result)
	switch {
	case errors.Is(err, model.ErrResultDiscarded):
		e.observer.ObserveDiscard(claimed.Type, state)
		logger.DebugContext(ctx, "job result discarded", "result", result.Kind, "state", state)
		return
	case err != nil:
		logger.ErrorContext(ctx, "apply result failed", "error", err, "result", result.Kind)
		state = model.JobStateProcessing
	}
	e.observer.ObserveFinish(claimed.Type, state, elapsed)

	logger.DebugContext(ctx, "job finished", "result", result.Kind, "state", state, "elapsed", elapsed)
}

// execute validates and runs the job. A panic anywhere on this path, including
// ValidateJobData and Config, fails the job instead of the process.
func (e *Executor) execute(
	ctx context.Context,
	logger *slog.Logger,
	claimed *model.QueuedJob,
	a admission,
) (result model.JobResult) {
	defer func() {
		if r := recover(); r != nil {
			logger.ErrorContext(ctx, "job dispatch panicked", "panic", r)
			result = model.Failed(apperrors.Fatalf("handler panic: %v", r).Error())
		}
	}()

	if a.err != nil {
		logger.ErrorContext(ctx, "handler resolution failed", "error", a.err)
		return model.Failed(a.err.Error())
	}
	if !a.found {
		err := apperrors.NoHandler(string(claimed.Type))
		logger.WarnContext(ctx, "no handler registered", "error", err)
		return model.Failed(err.Error())
	}
	if err := a.handler.ValidateJobData(claimed.Payload); err != nil {
		return model.Failed(apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid job data").Error())
	}
	return e.runHandler(ctx, logger, claimed, a.handler)
}

type handlerOutcome struct {
	result model.JobResult
	err    error
}

// runHandler calls Handle under the resolved timeout. On timeout the handler goroutine is
// abandoned with its context cancelled.
func (e *Executor) runHandler(
	ctx context.Context,
	logger *slog.Logger,
	claimed *model.QueuedJob,
	h job.Handler,
) model.JobResult {
	timeout := e.resolveTimeout(claimed, h)
	hctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan handlerOutcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.ErrorContext(ctx, "handler panicked", "panic", r)
				done <- handlerOutcome{err: apperrors.Fatalf("handler panic: %v", r)}
			}
		}()
		res, err := h.Handle(hctx, claimed.Payload, model.NewJobContext(claimed))
		done <- handlerOutcome{result: res, err: err}
	}()

	timedOut := func() model.JobResult {
		logger.WarnContext(ctx, "handler timed out", "timeout", timeout)
		return model.Failed(fmt.Sprintf("job timed out after %s", timeout))
	}

	select {
	case out := <-done:
		if out.err != nil && errors.Is(hctx.Err(), context.DeadlineExceeded) {
			return timedOut()
		}
		return translate(out.result, out.err)
	case <-hctx.Done():
		return timedOut()
	}
}

// resolveTimeout picks the job timeout, then the handler default, then the executor default.
func (e *Executor) resolveTimeout(claimed *model.QueuedJob, h job.Handler) time.Duration {
	if d := claimed.Timeout(); d > 0 {
		return d
	}
	if d := h.Config().DefaultTimeout; d > 0 {
		return d
	}
	return e.defaultTimeout
}

// translate maps a handler return to a JobResult. Validation, fatal and no-handler errors
// fail the job; every other error is retried.
func translate(res model.JobResult, err error) model.JobResult {
	if err != nil {
		if apperrors.IsValidation(err) || apperrors.IsFatal(err) || apperrors.IsNoHandler(err) {
			return model.Failed(err.Error())
		}
		return model.Retry(err.Error(), nil)
	}
	if !res.Valid() {
		return model.Failed(fmt.Sprintf("handler returned unknown result kind %q", res.Kind))
	}
	return res
}

// typeLimiter returns the per-type semaphore, or nil when the type is unlimited.
func (e *Executor) typeLimiter(jobType model.JobType, size int) *semaphore.Weighted {
	if size <= 0 {
		return nil
	}
	e.limitsMu.Lock()
	defer e.limitsMu.Unlock()
	if l, ok := e.limits[jobType]; ok && l.size == size {
		return l.sem
	}
	l := typeLimit{size: size, sem: semaphore.NewWeighted(int64(size))}
	e.limits[jobType] = l
	return l.sem
}
