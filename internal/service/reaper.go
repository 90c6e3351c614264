package service

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/target/mmk-jobqueue/config"
	"github.com/target/mmk-jobqueue/internal/domain/model"
	obserrors "github.com/target/mmk-jobqueue/internal/observability/errors"
	"github.com/target/mmk-jobqueue/internal/observability/metrics"
	"github.com/target/mmk-jobqueue/internal/observability/statsd"
)

// QueueMaintainer is the part of the queue the reaper drives.
type QueueMaintainer interface {
	ReclaimStale(ctx context.Context) (int, error)
	PurgeFinished(ctx context.Context, state model.JobState, olderThan time.Duration, limit int) (int64, error)
}

var _ QueueMaintainer = (*QueueService)(nil)

// ReaperServiceOptions groups dependencies for ReaperService.
type ReaperServiceOptions struct {
	Queue   QueueMaintainer     // Required: queue to maintain
	Config  config.ReaperConfig // Required: reaper configuration
	Logger  *slog.Logger        // Optional: structured logger
	Metrics statsd.Sink         // Optional: metrics sink (StatsD-compatible)
}

// ReaperService keeps the queue healthy in the background.
//
// Each cycle it:
// - reclaims jobs whose worker stopped reporting (stale Processing claims).
// - deletes completed, failed and cancelled jobs past their per-state max age.
type ReaperService struct {
	queue   QueueMaintainer
	config  config.ReaperConfig
	logger  *slog.Logger
	metrics statsd.Sink
}

// NewReaperService constructs a new ReaperService.
func NewReaperService(opts ReaperServiceOptions) (*ReaperService, error) {
	if opts.Queue == nil {
		return nil, errors.New("QueueMaintainer is required")
	}
	if opts.Config.Interval <= 0 {
		return nil, errors.New("reaper interval must be positive")
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "reaper_service")
		logger.Debug("ReaperService initialized",
			"interval", opts.Config.Interval,
			"completed_max_age", opts.Config.CompletedMaxAge,
			"failed_max_age", opts.Config.FailedMaxAge,
			"cancelled_max_age", opts.Config.CancelledMaxAge,
		)
	}

	return &ReaperService{
		queue:   opts.Queue,
		config:  opts.Config,
		logger:  logger,
		metrics: opts.Metrics,
	}, nil
}

// Run starts the reaper loop and runs until the context is cancelled.
// Returns nil on graceful shutdown (context.Canceled), error otherwise.
func (s *ReaperService) Run(ctx context.Context) error {
	if s.logger != nil {
		s.logger.InfoContext(ctx, "starting reaper service", "interval", s.config.Interval)
	}

	// Spread instances that start together.
	s.waitWithJitter(ctx)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	if err := s.RunOnce(ctx); err != nil {
		s.logCleanupError(err, "initial cleanup")
	}

	return s.runLoop(ctx, ticker)
}

// waitWithJitter adds a random delay up to 10% of the interval.
func (s *ReaperService) waitWithJitter(ctx context.Context) {
	maxJitter := int64(s.config.Interval / 10)
	if maxJitter <= 0 {
		return
	}

	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		if s.logger != nil {
			s.logger.WarnContext(ctx, "failed to generate jitter, skipping", "error", err)
		}
		return
	}

	jitterNanos := binary.BigEndian.Uint64(buf[:]) % uint64(maxJitter)
	jitter := time.Duration(int64(jitterNanos)) // #nosec G115 - bounded by maxJitter which is int64

	select {
	case <-time.After(jitter):
	case <-ctx.Done():
	}
}

func (s *ReaperService) runLoop(ctx context.Context, ticker *time.Ticker) error {
	for {
		select {
		case <-ctx.Done():
			if s.logger != nil {
				s.logger.InfoContext(ctx, "reaper service stopping", "reason", ctx.Err())
			}
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()

		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				s.logCleanupError(err, "cleanup")
			}
		}
	}
}

// RunOnce performs one reclamation and cleanup cycle.
func (s *ReaperService) RunOnce(ctx context.Context) error {
	start := time.Now()
	var (
		errs               []error
		allContextCanceled = true
		results            []stepResult
	)

	steps := []cleanupStep{
		{operation: "reclaim_stale", label: "reclaim stale jobs", fn: s.reclaimStale},
		{operation: "delete_completed", label: "delete old completed jobs", fn: s.purger(model.JobStateCompleted, s.config.CompletedMaxAge)},
		{operation: "delete_failed", label: "delete old failed jobs", fn: s.purger(model.JobStateFailed, s.config.FailedMaxAge)},
		{operation: "delete_cancelled", label: "delete old cancelled jobs", fn: s.purger(model.JobStateCancelled, s.config.CancelledMaxAge)},
	}

	for _, step := range steps {
		count, err := step.fn(ctx)
		results = append(results, stepResult{
			operation: step.operation,
			count:     count,
			err:       suppressContextCancellation(err),
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", step.label, err))
			allContextCanceled = allContextCanceled && isContextCancellation(err)
		}
	}

	s.emitCleanupMetrics(results, time.Since(start))

	if len(errs) > 0 {
		joined := errors.Join(errs...)
		if allContextCanceled && isContextCancellation(joined) {
			return context.Canceled
		}
		return fmt.Errorf("cleanup failed: %w", joined)
	}
	return nil
}

type cleanupFunc func(context.Context) (int64, error)

type cleanupStep struct {
	operation string
	label     string
	fn        cleanupFunc
}

type stepResult struct {
	operation string
	count     int64
	err       error
}

func (s *ReaperService) reclaimStale(ctx context.Context) (int64, error) {
	n, err := s.queue.ReclaimStale(ctx)
	if n > 0 && s.logger != nil {
		s.logger.InfoContext(ctx, "reclaimed stale jobs", "count", n)
	}
	return int64(n), err
}

// purger deletes jobs in state older than maxAge, looping in batches until a short batch.
// A non-positive maxAge disables the step.
func (s *ReaperService) purger(state model.JobState, maxAge time.Duration) cleanupFunc {
	return func(ctx context.Context) (int64, error) {
		if maxAge <= 0 {
			return 0, nil
		}
		var totalCount int64
		for {
			count, err := s.queue.PurgeFinished(ctx, state, maxAge, s.config.BatchSize)
			if err != nil {
				return totalCount, err
			}
			totalCount += count
			if count == 0 || (s.config.BatchSize > 0 && count < int64(s.config.BatchSize)) {
				break
			}
			if ctx.Err() != nil {
				return totalCount, ctx.Err()
			}
		}

		if totalCount > 0 && s.logger != nil {
			s.logger.InfoContext(ctx, "deleted old jobs",
				"state", state,
				"count", totalCount,
				"max_age", maxAge,
			)
		}
		return totalCount, nil
	}
}

func (s *ReaperService) emitCleanupMetrics(results []stepResult, elapsed time.Duration) {
	if s.metrics == nil {
		return
	}

	var (
		totalCount int64
		firstErr   error
	)
	for _, r := range results {
		totalCount += r.count
		if firstErr == nil {
			firstErr = r.err
		}
	}

	result := metrics.ResultSuccess
	if firstErr != nil {
		result = metrics.ResultError
	} else if totalCount == 0 {
		result = metrics.ResultNoop
	}

	tags := map[string]string{"result": result}
	if firstErr != nil {
		if class := obserrors.Classify(firstErr); class != "" {
			tags["error_class"] = class
		}
	}

	s.metrics.Count("reaper.cleanup", 1, tags)
	if elapsed > 0 {
		s.metrics.Timing("reaper.cleanup_duration", elapsed, metrics.CloneTags(tags))
	}

	for _, r := range results {
		s.emitCleanupOperationMetric(r)
	}

	if firstErr == nil {
		s.metrics.Gauge("reaper.last_success_epoch", float64(time.Now().Unix()), nil)
	}
}

func (s *ReaperService) emitCleanupOperationMetric(r stepResult) {
	result := metrics.ResultSuccess
	if r.err != nil {
		result = metrics.ResultError
	} else if r.count == 0 {
		result = metrics.ResultNoop
	}

	tags := map[string]string{
		"operation": r.operation,
		"result":    result,
	}
	if r.err != nil {
		if class := obserrors.Classify(r.err); class != "" {
			tags["error_class"] = class
		}
	}

	s.metrics.Count("reaper.cleanup_operation", 1, tags)
	if r.err == nil && r.count > 0 {
		s.metrics.Count("reaper.jobs_processed", r.count, metrics.CloneTags(tags))
	}
}

func (s *ReaperService) logCleanupError(err error, label string) {
	if err == nil || s.logger == nil {
		return
	}
	if isContextCancellation(err) {
		s.logger.Debug(label+" cancelled by context", "error", err)
		return
	}
	s.logger.Error(label+" failed", "error", err)
}

func isContextCancellation(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func suppressContextCancellation(err error) error {
	if isContextCancellation(err) {
		return nil
	}
	return err
}
