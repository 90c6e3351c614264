package service

import (
	"context"

	"github.com/target/mmk-jobqueue/internal/domain/model"
)

// transitionDeltas returns the counter changes for a job moving from prev to next.
// An empty prev means the job is new.
func transitionDeltas(prev, next model.JobState) map[model.Counter]int64 {
	if prev == next {
		return nil
	}
	deltas := map[model.Counter]int64{model.StateCounter(next): 1}
	if prev == "" {
		deltas[model.CounterTotal] = 1
	} else {
		deltas[model.StateCounter(prev)] = -1
	}
	return deltas
}

// applyTransition records prev -> next in the store counters.
// Counter writes are best effort: the job record is already durable when this runs.
func (s *QueueService) applyTransition(ctx context.Context, jobID string, prev, next model.JobState) {
	deltas := transitionDeltas(prev, next)
	if len(deltas) == 0 {
		return
	}
	if err := s.store.IncrementCounters(ctx, deltas); err != nil && s.logger != nil {
		s.logger.WarnContext(ctx, "failed to update queue counters",
			"job_id", jobID,
			"from", prev,
			"to", next,
			"error", err,
		)
	}
}
