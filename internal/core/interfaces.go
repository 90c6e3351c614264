// Package core declares the ports between the queue services and their adapters.
package core

import (
	"context"
	"time"

	"github.com/target/mmk-jobqueue/internal/domain/model"
)

// This file contains the store and queue interface definitions (ports in hexagonal architecture).
// Services depend on these interfaces; internal/data provides the implementations.

// JobStore is the durable storage capability the queue is built on.
//
// Only ClaimNext is atomic across workers. Every other write is last-write-wins.
type JobStore interface {
	// SaveJob writes the full record. A positive ttl expires the record after ttl;
	// zero keeps it until removed.
	SaveJob(ctx context.Context, job *model.QueuedJob, ttl time.Duration) error
	// GetJob returns model.ErrJobNotFound when the record does not exist or has expired.
	GetJob(ctx context.Context, id string) (*model.QueuedJob, error)

	// PushReady appends the job to the tail of its priority's ready list.
	PushReady(ctx context.Context, ref model.JobRef) error
	// ScheduleDelayed adds the job to the delayed set, due at dueAt.
	ScheduleDelayed(ctx context.Context, ref model.JobRef, dueAt time.Time) error
	// PromoteDue moves up to limit delayed jobs with dueAt <= now to their ready lists
	// and returns their IDs.
	PromoteDue(ctx context.Context, now time.Time, limit int) ([]string, error)

	// ClaimNext atomically pops the head of the highest non-empty ready list and adds it
	// to the processing set. Returns model.ErrNoJobsAvailable when every list is empty.
	ClaimNext(ctx context.Context) (string, error)
	// ReleaseClaim removes the job from the processing set. Reports whether it was present.
	ReleaseClaim(ctx context.Context, id string) (bool, error)
	// ListProcessing returns the IDs currently in the processing set.
	ListProcessing(ctx context.Context) ([]string, error)

	// RemoveJob removes the job from every ready list, the delayed set and the processing set.
	// Reports whether it was found in any of them.
	RemoveJob(ctx context.Context, ref model.JobRef) (bool, error)

	// IncrementCounters applies the deltas to the aggregate counters.
	IncrementCounters(ctx context.Context, deltas map[model.Counter]int64) error
	// Counters returns every counter. Missing counters read as zero.
	Counters(ctx context.Context) (map[model.Counter]int64, error)

	// PurgeFinished deletes up to limit records in terminal state that completed before
	// cutoff, oldest first.
	PurgeFinished(ctx context.Context, state model.JobState, cutoff time.Time, limit int) (int64, error)

	// AcquireFireKey records key for ttl. Reports false when the key is already held,
	// so concurrent schedulers enqueue each recurring fire once.
	AcquireFireKey(ctx context.Context, key string, ttl time.Duration) (bool, error)

	Ping(ctx context.Context) error
}

// JobQueue is the slice of the queue the executor depends on.
type JobQueue interface {
	// Dequeue claims the next job for workerID, or returns model.ErrNoJobsAvailable.
	Dequeue(ctx context.Context, workerID string) (*model.QueuedJob, error)
	// ApplyResult records the outcome of one execution and returns the resulting state.
	// A job that is no longer Processing is left alone; its current state comes back
	// with model.ErrResultDiscarded.
	ApplyResult(ctx context.Context, job *model.QueuedJob, result model.JobResult) (model.JobState, error)
	// Requeue returns a claimed job that never ran to its ready list.
	Requeue(ctx context.Context, job *model.QueuedJob) error
}

// JobEnqueuer is the producer surface of the queue.
type JobEnqueuer interface {
	Enqueue(ctx context.Context, req *model.EnqueueRequest) (string, error)
	GetStatus(ctx context.Context, id string) (*model.JobStatus, error)
}

// HandlerDefaults resolves per-type handler settings at enqueue time.
type HandlerDefaults interface {
	Defaults(jobType model.JobType) model.HandlerConfig
}

// Clock supplies wall-clock time.
type Clock interface {
	Now() time.Time
}
