package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/target/mmk-jobqueue/internal/core"
	domainjob "github.com/target/mmk-jobqueue/internal/domain/job"
	"github.com/target/mmk-jobqueue/internal/domain/model"
	apperrors "github.com/target/mmk-jobqueue/internal/errors"
	"github.com/target/mmk-jobqueue/internal/observability/metrics"
	"github.com/target/mmk-jobqueue/internal/observability/statsd"
)

const (
	// DefaultPromoteBatch bounds how many delayed jobs a single Dequeue promotes.
	DefaultPromoteBatch = 100
	// DefaultStaleAfter is how long a job may stay Processing before it is reclaimed.
	DefaultStaleAfter = time.Hour
	// DefaultCleanupBatch bounds each purge round trip.
	DefaultCleanupBatch = 1000

	staleReclaimError = "stale claim reclaimed"
)

// QueueServiceOptions groups dependencies for QueueService.
type QueueServiceOptions struct {
	Store        core.JobStore          // Required: durable job store
	Defaults     core.HandlerDefaults   // Optional: per-type handler settings used at enqueue
	RetryPolicy  *domainjob.RetryPolicy // Optional: defaults to 60s base delay capped at 300x
	Clock        core.Clock             // Optional: defaults to system time
	Logger       *slog.Logger           // Optional: structured logger
	Retention    time.Duration          // Optional: TTL for terminal records, 0 keeps them until cleanup
	PromoteBatch int                    // Optional: delayed jobs promoted per Dequeue
	StaleAfter   time.Duration          // Optional: age after which a processing claim is reclaimed
	CleanupBatch int                    // Optional: records deleted per purge round trip
	Notifier     domainjob.Notifier     // Optional: woken when a job becomes ready
	Metrics      statsd.Sink            // Optional: lifecycle metrics sink
}

// QueueService implements the durable job queue on top of a core.JobStore.
//
// Every state change saves the full record first and then moves the job between the store
// structures, so a crash in between leaves a record the reclaimer can repair.
type QueueService struct {
	store        core.JobStore
	defaults     core.HandlerDefaults
	retry        *domainjob.RetryPolicy
	clock        core.Clock
	logger       *slog.Logger
	retention    time.Duration
	promoteBatch int
	staleAfter   time.Duration
	cleanupBatch int
	notifier     domainjob.Notifier
	metrics      statsd.Sink
}

var (
	_ core.JobQueue    = (*QueueService)(nil)
	_ core.JobEnqueuer = (*QueueService)(nil)
)

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// NewQueueService constructs a new QueueService.
func NewQueueService(opts QueueServiceOptions) (*QueueService, error) {
	if opts.Store == nil {
		return nil, errors.New("JobStore is required")
	}

	s := &QueueService{
		store:        opts.Store,
		defaults:     opts.Defaults,
		retry:        opts.RetryPolicy,
		clock:        opts.Clock,
		retention:    opts.Retention,
		promoteBatch: opts.PromoteBatch,
		staleAfter:   opts.StaleAfter,
		cleanupBatch: opts.CleanupBatch,
		notifier:     opts.Notifier,
		metrics:      opts.Metrics,
	}
	if s.retry == nil {
		s.retry = domainjob.DefaultRetryPolicy()
	}
	if s.clock == nil {
		s.clock = systemClock{}
	}
	if s.promoteBatch <= 0 {
		s.promoteBatch = DefaultPromoteBatch
	}
	if s.staleAfter <= 0 {
		s.staleAfter = DefaultStaleAfter
	}
	if s.cleanupBatch <= 0 {
		s.cleanupBatch = DefaultCleanupBatch
	}
	if s.retention < 0 {
		s.retention = 0
	}
	if opts.Logger != nil {
		s.logger = opts.Logger.With("component", "queue_service")
		s.logger.Debug("QueueService initialized",
			"retention", s.retention,
			"stale_after", s.staleAfter,
			"retry_base_delay", s.retry.BaseDelay(),
			"retry_max_delay", s.retry.MaxDelay(),
		)
	}
	return s, nil
}

// MustNewQueueService constructs a new QueueService and panics on error.
func MustNewQueueService(opts QueueServiceOptions) *QueueService {
	s, err := NewQueueService(opts)
	if err != nil {
		panic(fmt.Sprintf("failed to create QueueService: %v", err))
	}
	return s
}

// Enqueue validates the request, stores a new Queued job and returns its ID.
// A scheduled_for in the future places the job in the delayed set.
func (s *QueueService) Enqueue(ctx context.Context, req *model.EnqueueRequest) (string, error) {
	if req == nil {
		return "", apperrors.Validation("enqueue request is required")
	}
	if err := req.Validate(); err != nil {
		return "", apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid enqueue request")
	}

	now := s.clock.Now()
	priority := req.Priority
	if priority == "" {
		priority = model.PriorityNormal
	}

	job := &model.QueuedJob{
		ID:             uuid.NewString(),
		Type:           req.Type,
		Priority:       priority,
		Payload:        append([]byte(nil), req.Payload...),
		TimeoutSeconds: req.TimeoutSeconds,
		CreatedAt:      now,
		Status: model.JobStatus{
			State:       model.JobStateQueued,
			MaxAttempts: s.maxAttempts(req),
		},
	}
	if len(req.Metadata) > 0 {
		job.Status.Metadata = model.JobStatus{Metadata: req.Metadata}.Clone().Metadata
	}
	delayed := req.ScheduledFor != nil && req.ScheduledFor.After(now)
	if req.ScheduledFor != nil {
		job.Status.ScheduledFor = model.TimePtr(req.ScheduledFor.UTC())
	}

	if err := s.store.SaveJob(ctx, job, 0); err != nil {
		return "", fmt.Errorf("save job: %w", err)
	}
	var err error
	if delayed {
		err = s.store.ScheduleDelayed(ctx, job.Ref(), *job.Status.ScheduledFor)
	} else {
		err = s.store.PushReady(ctx, job.Ref())
	}
	if err != nil {
		return "", fmt.Errorf("enqueue job %s: %w", job.ID, err)
	}

	s.applyTransition(ctx, job.ID, "", model.JobStateQueued)
	if !delayed && s.notifier != nil {
		s.notifier.Notify()
	}
	s.emit(job, metrics.TransitionEnqueue, 0, nil)

	if s.logger != nil {
		s.logger.DebugContext(ctx, "job enqueued",
			"job_id", job.ID,
			"job_type", job.Type,
			"priority", job.Priority,
			"delayed", delayed,
		)
	}
	return job.ID, nil
}

func (s *QueueService) maxAttempts(req *model.EnqueueRequest) int {
	if req.MaxAttempts > 0 {
		return req.MaxAttempts
	}
	if s.defaults != nil {
		if n := s.defaults.Defaults(req.Type).DefaultMaxAttempts; n > 0 {
			return n
		}
	}
	return model.DefaultMaxAttempts
}

// Dequeue promotes due delayed jobs and claims the highest-priority ready job for workerID.
// Returns model.ErrNoJobsAvailable when every ready list is empty.
func (s *QueueService) Dequeue(ctx context.Context, workerID string) (*model.QueuedJob, error) {
	s.promoteDue(ctx)

	for {
		id, err := s.store.ClaimNext(ctx)
		if err != nil {
			if errors.Is(err, model.ErrNoJobsAvailable) {
				return nil, err
			}
			return nil, fmt.Errorf("claim next job: %w", err)
		}

		job, err := s.store.GetJob(ctx, id)
		switch {
		case errors.Is(err, model.ErrJobNotFound):
			s.dropClaim(ctx, id, "record missing")
			continue
		case err != nil:
			return nil, fmt.Errorf("load claimed job %s: %w", id, err)
		}

		prev := job.Status.State
		switch {
		case prev.Terminal():
			s.dropClaim(ctx, id, "job already finished")
			continue
		case prev == model.JobStateProcessing:
			// A duplicate ready entry; the live claim belongs to another worker.
			continue
		}

		now := s.clock.Now()
		job.Status.State = model.JobStateProcessing
		job.Status.StartedAt = model.TimePtr(now)
		if err := job.Status.SetMetadata(model.MetadataWorkerID, workerID); err != nil {
			return nil, err
		}
		if err := s.store.SaveJob(ctx, job, 0); err != nil {
			s.revertClaim(ctx, job)
			return nil, fmt.Errorf("mark job %s processing: %w", id, err)
		}

		s.applyTransition(ctx, id, prev, model.JobStateProcessing)
		s.emit(job, metrics.TransitionDequeue, now.Sub(job.CreatedAt), nil)
		return job, nil
	}
}

// promoteDue moves due delayed jobs to their ready lists. Retrying jobs become Queued.
func (s *QueueService) promoteDue(ctx context.Context) {
	ids, err := s.store.PromoteDue(ctx, s.clock.Now(), s.promoteBatch)
	if err != nil {
		if s.logger != nil {
			s.logger.WarnContext(ctx, "failed to promote delayed jobs", "error", err)
		}
		return
	}
	for _, id := range ids {
		job, err := s.store.GetJob(ctx, id)
		if err != nil {
			if !errors.Is(err, model.ErrJobNotFound) && s.logger != nil {
				s.logger.WarnContext(ctx, "failed to load promoted job", "job_id", id, "error", err)
			}
			continue
		}
		if job.Status.State != model.JobStateRetrying {
			continue
		}
		job.Status.State = model.JobStateQueued
		if err := s.store.SaveJob(ctx, job, 0); err != nil {
			if s.logger != nil {
				s.logger.WarnContext(ctx, "failed to mark promoted job queued", "job_id", id, "error", err)
			}
			continue
		}
		s.applyTransition(ctx, id, model.JobStateRetrying, model.JobStateQueued)
		s.emit(job, metrics.TransitionPromote, 0, nil)
	}
}

func (s *QueueService) dropClaim(ctx context.Context, id, reason string) {
	if _, err := s.store.ReleaseClaim(ctx, id); err != nil && s.logger != nil {
		s.logger.WarnContext(ctx, "failed to release claim", "job_id", id, "reason", reason, "error", err)
		return
	}
	if s.logger != nil {
		s.logger.DebugContext(ctx, "released claim", "job_id", id, "reason", reason)
	}
}

// revertClaim puts a claimed job back on its ready list after the claim could not be recorded.
func (s *QueueService) revertClaim(ctx context.Context, job *model.QueuedJob) {
	err := s.store.PushReady(ctx, job.Ref())
	if err == nil {
		_, err = s.store.ReleaseClaim(ctx, job.ID)
	}
	if err != nil && s.logger != nil {
		s.logger.ErrorContext(ctx, "failed to revert claim, reclaimer will repair it",
			"job_id", job.ID,
			"error", err,
		)
	}
}

// GetJob returns the full job record.
func (s *QueueService) GetJob(ctx context.Context, id string) (*model.QueuedJob, error) {
	job, err := s.store.GetJob(ctx, id)
	if err != nil {
		if errors.Is(err, model.ErrJobNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}
	return job, nil
}

// GetStatus returns the status portion of the job record.
func (s *QueueService) GetStatus(ctx context.Context, id string) (*model.JobStatus, error) {
	job, err := s.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	return &job.Status, nil
}

// UpdateStatus replaces the job status and reconciles the counters.
// Jobs in a terminal state are final and return model.ErrJobFinalized.
func (s *QueueService) UpdateStatus(ctx context.Context, id string, status model.JobStatus) error {
	if !status.State.Valid() {
		return apperrors.ValidationField("state", fmt.Sprintf("invalid job state %q", status.State))
	}
	job, err := s.GetJob(ctx, id)
	if err != nil {
		return err
	}
	prev := job.Status.State
	if prev.Terminal() {
		return model.ErrJobFinalized
	}

	job.Status = status.Clone()
	var ttl time.Duration
	if status.State.Terminal() {
		if job.Status.CompletedAt == nil {
			job.Status.CompletedAt = model.TimePtr(s.clock.Now())
		}
		ttl = s.retention
	}
	if err := s.store.SaveJob(ctx, job, ttl); err != nil {
		return fmt.Errorf("save job %s: %w", id, err)
	}
	if status.State.Terminal() {
		if _, err := s.store.RemoveJob(ctx, job.Ref()); err != nil {
			return fmt.Errorf("remove finished job %s: %w", id, err)
		}
	}
	s.applyTransition(ctx, id, prev, status.State)
	return nil
}

// CancelJob cancels a job that has not finished. It reports false when the job is already
// in a terminal state, which makes repeated cancels harmless.
func (s *QueueService) CancelJob(ctx context.Context, id string) (bool, error) {
	job, err := s.GetJob(ctx, id)
	if err != nil {
		return false, err
	}
	prev := job.Status.State
	if prev.Terminal() {
		return false, nil
	}

	job.Status.State = model.JobStateCancelled
	job.Status.CompletedAt = model.TimePtr(s.clock.Now())
	if err := job.Status.SetMetadata(model.MetadataCancelReason, "cancelled by request"); err != nil {
		return false, err
	}
	if err := s.store.SaveJob(ctx, job, s.retention); err != nil {
		return false, fmt.Errorf("save cancelled job %s: %w", id, err)
	}
	if _, err := s.store.RemoveJob(ctx, job.Ref()); err != nil {
		return false, fmt.Errorf("remove cancelled job %s: %w", id, err)
	}

	s.applyTransition(ctx, id, prev, model.JobStateCancelled)
	s.emit(job, metrics.TransitionCancel, 0, nil)
	if s.logger != nil {
		s.logger.InfoContext(ctx, "job cancelled", "job_id", id, "previous_state", prev)
	}
	return true, nil
}

// ApplyResult records the outcome of one execution and returns the state the job landed in.
//
// Results for a job that is no longer Processing (cancelled, reclaimed or already finished)
// are discarded; the current state is returned with model.ErrResultDiscarded.
func (s *QueueService) ApplyResult(
	ctx context.Context,
	job *model.QueuedJob,
	result model.JobResult,
) (model.JobState, error) {
	if job == nil {
		return "", errors.New("job is required")
	}
	return s.applyResult(ctx, job.ID, result, "")
}

func (s *QueueService) applyResult(
	ctx context.Context,
	id string,
	result model.JobResult,
	transition metrics.Transition,
) (model.JobState, error) {
	current, err := s.store.GetJob(ctx, id)
	if err != nil {
		if errors.Is(err, model.ErrJobNotFound) {
			s.dropClaim(ctx, id, "record missing")
			return "", err
		}
		return "", fmt.Errorf("load job %s: %w", id, err)
	}

	prev := current.Status.State
	if prev != model.JobStateProcessing {
		if prev.Terminal() {
			s.dropClaim(ctx, id, "job already finished")
		}
		if s.logger != nil {
			s.logger.InfoContext(ctx, "discarding result for job that is no longer processing",
				"job_id", id,
				"state", prev,
				"result", result.Kind,
			)
		}
		return prev, model.ErrResultDiscarded
	}

	now := s.clock.Now()
	var retryAt time.Time
	st := &current.Status
	switch result.Kind {
	case model.ResultSuccess:
		st.State = model.JobStateCompleted
		st.Result = result.Result
		if result.Message != "" {
			st.Message = model.StringPtr(result.Message)
		}
		done := 1.0
		st.Progress = &done
		st.CompletedAt = model.TimePtr(now)
	case model.ResultRetry:
		decision := s.retry.Decide(st.Attempts, st.MaxAttempts, result.Delay)
		st.Attempts = decision.Attempts
		st.LastError = model.StringPtr(result.Error)
		if decision.Retry {
			st.State = model.JobStateRetrying
			retryAt = now.Add(decision.Delay)
			st.ScheduledFor = model.TimePtr(retryAt)
		} else {
			st.State = model.JobStateFailed
			st.CompletedAt = model.TimePtr(now)
		}
	case model.ResultFailed:
		st.State = model.JobStateFailed
		st.LastError = model.StringPtr(result.Error)
		st.CompletedAt = model.TimePtr(now)
	case model.ResultCancelled:
		st.State = model.JobStateCancelled
		st.CompletedAt = model.TimePtr(now)
		if err := st.SetMetadata(model.MetadataCancelReason, result.Reason); err != nil {
			return "", err
		}
	default:
		st.State = model.JobStateFailed
		st.LastError = model.StringPtr(fmt.Sprintf("invalid job result kind %q", result.Kind))
		st.CompletedAt = model.TimePtr(now)
	}

	next := st.State
	var ttl time.Duration
	if next.Terminal() {
		ttl = s.retention
	}
	if err := s.store.SaveJob(ctx, current, ttl); err != nil {
		return "", fmt.Errorf("save job %s: %w", id, err)
	}
	if next == model.JobStateRetrying {
		if err := s.store.ScheduleDelayed(ctx, current.Ref(), retryAt); err != nil {
			return "", fmt.Errorf("schedule retry for job %s: %w", id, err)
		}
	}
	s.dropClaim(ctx, id, "result applied")
	s.applyTransition(ctx, id, prev, next)

	if transition == "" {
		transition = metrics.TransitionFor(next)
	}
	var runtime time.Duration
	if current.Status.StartedAt != nil {
		runtime = now.Sub(*current.Status.StartedAt)
	}
	var resultErr error
	if next == model.JobStateFailed || next == model.JobStateRetrying {
		resultErr = errors.New(derefString(st.LastError))
	}
	s.emit(current, transition, runtime, resultErr)

	if s.logger != nil {
		s.logger.DebugContext(ctx, "job result applied",
			"job_id", id,
			"job_type", current.Type,
			"state", next,
			"attempts", st.Attempts,
		)
	}
	return next, nil
}

// Requeue returns a claimed job that never ran to the tail of its ready list.
func (s *QueueService) Requeue(ctx context.Context, job *model.QueuedJob) error {
	if job == nil {
		return errors.New("job is required")
	}
	current, err := s.store.GetJob(ctx, job.ID)
	if err != nil {
		if errors.Is(err, model.ErrJobNotFound) {
			s.dropClaim(ctx, job.ID, "record missing")
			return err
		}
		return fmt.Errorf("load job %s: %w", job.ID, err)
	}
	if current.Status.State != model.JobStateProcessing {
		s.dropClaim(ctx, job.ID, "job no longer processing")
		return nil
	}

	current.Status.State = model.JobStateQueued
	current.Status.StartedAt = nil
	delete(current.Status.Metadata, model.MetadataWorkerID)
	if err := s.store.SaveJob(ctx, current, 0); err != nil {
		return fmt.Errorf("save job %s: %w", job.ID, err)
	}
	if err := s.store.PushReady(ctx, current.Ref()); err != nil {
		return fmt.Errorf("requeue job %s: %w", job.ID, err)
	}
	s.dropClaim(ctx, job.ID, "requeued")
	s.applyTransition(ctx, job.ID, model.JobStateProcessing, model.JobStateQueued)
	s.emit(current, metrics.TransitionRequeue, 0, nil)
	if s.notifier != nil {
		s.notifier.Notify()
	}
	return nil
}

// ReclaimStale recovers jobs whose worker disappeared. Every Processing job that started
// more than StaleAfter ago goes through the retry decision. Entries left in the processing
// set by an interrupted write are repaired. Returns the number of jobs reclaimed.
func (s *QueueService) ReclaimStale(ctx context.Context) (int, error) {
	ids, err := s.store.ListProcessing(ctx)
	if err != nil {
		return 0, fmt.Errorf("list processing jobs: %w", err)
	}

	cutoff := s.clock.Now().Add(-s.staleAfter)
	var (
		reclaimed int
		errs      []error
	)
	for _, id := range ids {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		job, err := s.store.GetJob(ctx, id)
		if err != nil {
			if errors.Is(err, model.ErrJobNotFound) {
				s.dropClaim(ctx, id, "record missing")
				continue
			}
			errs = append(errs, fmt.Errorf("load job %s: %w", id, err))
			continue
		}

		switch job.Status.State {
		case model.JobStateProcessing:
			if job.Status.StartedAt != nil && job.Status.StartedAt.After(cutoff) {
				continue
			}
			released, err := s.store.ReleaseClaim(ctx, id)
			if err != nil {
				errs = append(errs, fmt.Errorf("release stale job %s: %w", id, err))
				continue
			}
			if !released {
				continue
			}
			state, err := s.applyResult(ctx, id, model.Retry(staleReclaimError, nil), metrics.TransitionReclaim)
			if errors.Is(err, model.ErrResultDiscarded) {
				continue
			}
			if err != nil {
				errs = append(errs, fmt.Errorf("reclaim job %s: %w", id, err))
				continue
			}
			reclaimed++
			if s.logger != nil {
				s.logger.WarnContext(ctx, "reclaimed stale job",
					"job_id", id,
					"job_type", job.Type,
					"state", state,
				)
			}
		case model.JobStateQueued:
			// Claimed but never marked Processing.
			if lastActivity(job).After(cutoff) {
				continue
			}
			if err := s.store.PushReady(ctx, job.Ref()); err != nil {
				errs = append(errs, fmt.Errorf("repair job %s: %w", id, err))
				continue
			}
			s.dropClaim(ctx, id, "claim never recorded")
		default:
			s.dropClaim(ctx, id, "orphaned claim")
		}
	}
	return reclaimed, errors.Join(errs...)
}

func lastActivity(job *model.QueuedJob) time.Time {
	latest := job.CreatedAt
	for _, t := range []*time.Time{job.Status.StartedAt, job.Status.ScheduledFor} {
		if t != nil && t.After(latest) {
			latest = *t
		}
	}
	return latest
}

// Stats returns the counter snapshot with derived rates.
func (s *QueueService) Stats(ctx context.Context) (model.QueueStats, error) {
	c, err := s.store.Counters(ctx)
	if err != nil {
		return model.QueueStats{}, fmt.Errorf("read counters: %w", err)
	}
	stats := model.QueueStats{
		TotalJobs:      c[model.CounterTotal],
		QueuedJobs:     c[model.StateCounter(model.JobStateQueued)],
		ProcessingJobs: c[model.StateCounter(model.JobStateProcessing)],
		CompletedJobs:  c[model.StateCounter(model.JobStateCompleted)],
		FailedJobs:     c[model.StateCounter(model.JobStateFailed)],
		RetryingJobs:   c[model.StateCounter(model.JobStateRetrying)],
		CancelledJobs:  c[model.StateCounter(model.JobStateCancelled)],
	}
	if stats.TotalJobs > 0 {
		total := float64(stats.TotalJobs)
		stats.ErrorRate = float64(stats.FailedJobs) / total
		stats.SuccessRate = float64(stats.CompletedJobs) / total
	}
	return stats, nil
}

// PurgeFinished deletes one batch of jobs in the terminal state that completed more than
// olderThan ago.
func (s *QueueService) PurgeFinished(
	ctx context.Context,
	state model.JobState,
	olderThan time.Duration,
	limit int,
) (int64, error) {
	if !state.Terminal() {
		return 0, apperrors.ValidationField("state", fmt.Sprintf("%q is not a terminal state", state))
	}
	if limit <= 0 {
		limit = s.cleanupBatch
	}
	n, err := s.store.PurgeFinished(ctx, state, s.clock.Now().Add(-olderThan), limit)
	if err != nil {
		return n, fmt.Errorf("purge %s jobs: %w", state, err)
	}
	return n, nil
}

// CleanupOldJobs deletes every completed, failed and cancelled job older than olderThan.
func (s *QueueService) CleanupOldJobs(ctx context.Context, olderThan time.Duration) (int64, error) {
	var total int64
	for _, state := range []model.JobState{
		model.JobStateCompleted,
		model.JobStateFailed,
		model.JobStateCancelled,
	} {
		for {
			n, err := s.PurgeFinished(ctx, state, olderThan, s.cleanupBatch)
			total += n
			if err != nil {
				return total, err
			}
			if n < int64(s.cleanupBatch) {
				break
			}
			if ctx.Err() != nil {
				return total, ctx.Err()
			}
		}
	}
	if total > 0 && s.logger != nil {
		s.logger.InfoContext(ctx, "cleaned up old jobs", "count", total, "older_than", olderThan)
	}
	return total, nil
}

// HealthCheck pings the store and reclaims stale jobs as a side effect.
func (s *QueueService) HealthCheck(ctx context.Context) error {
	if err := s.store.Ping(ctx); err != nil {
		return fmt.Errorf("store unavailable: %w", err)
	}
	if _, err := s.ReclaimStale(ctx); err != nil && s.logger != nil {
		s.logger.WarnContext(ctx, "stale job reclamation failed", "error", err)
	}
	return nil
}

func (s *QueueService) emit(job *model.QueuedJob, t metrics.Transition, d time.Duration, err error) {
	if s.metrics == nil {
		return
	}
	metrics.EmitJobLifecycle(s.metrics, metrics.JobMetric{
		JobType:    job.Type,
		Priority:   job.Priority,
		Transition: t,
		Duration:   d,
		Err:        err,
	})
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
