package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/target/mmk-jobqueue/internal/domain"
	"github.com/target/mmk-jobqueue/internal/domain/model"
)

// Metadata keys attached to scheduled jobs.
const (
	MetadataSchedule = "schedule"
	MetadataFireKey  = "fire_key"
)

// minFireKeyTTL bounds how long a fire key is held for very frequent schedules.
const minFireKeyTTL = time.Minute

// maxCatchUp caps how many missed fires LatestFire walks before giving up.
const maxCatchUp = 100_000

// FireKeyStore deduplicates fires across scheduler instances.
type FireKeyStore interface {
	AcquireFireKey(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// JobStateReader reports the status of a previously enqueued job.
type JobStateReader interface {
	GetStatus(ctx context.Context, id string) (*model.JobStatus, error)
}

// JobEnqueuer creates the job for a fire.
type JobEnqueuer interface {
	Enqueue(ctx context.Context, req *model.EnqueueRequest) (string, error)
}

// Task is a compiled schedule entry plus the per-instance progress the processor maintains.
type Task struct {
	Entry     domain.ScheduleEntry
	Schedule  cron.Schedule
	LastCheck time.Time
	LastJobID string
}

// NewTask compiles entry. Fires at or before since are never considered.
func NewTask(entry domain.ScheduleEntry, since time.Time) (*Task, error) {
	if err := entry.Validate(); err != nil {
		return nil, err
	}
	sched, err := domain.ParseCron(entry.Cron)
	if err != nil {
		return nil, err
	}
	return &Task{Entry: entry, Schedule: sched, LastCheck: since}, nil
}

// SkipReason explains why a due fire produced no job.
type SkipReason string

const (
	SkipOverrun   SkipReason = "overrun"
	SkipDuplicate SkipReason = "duplicate"
)

// ProcessResult captures the outcome of processing a task.
type ProcessResult struct {
	Due      bool
	FireAt   time.Time
	FireKey  string
	Enqueued bool
	JobID    string
	Skipped  SkipReason
}

// ProcessorOptions wires the Processor collaborators.
type ProcessorOptions struct {
	FireKeys    FireKeyStore   // Required
	Enqueuer    JobEnqueuer    // Required
	StateReader JobStateReader // Required for the skip policy
}

// Processor applies the overrun policy and fire deduplication for a single task.
type Processor struct {
	fireKeys FireKeyStore
	enqueuer JobEnqueuer
	states   JobStateReader
}

// NewProcessor constructs a Processor.
func NewProcessor(opts ProcessorOptions) (*Processor, error) {
	if opts.FireKeys == nil {
		return nil, errors.New("fire key store is required")
	}
	if opts.Enqueuer == nil {
		return nil, errors.New("job enqueuer is required")
	}
	return &Processor{fireKeys: opts.FireKeys, enqueuer: opts.Enqueuer, states: opts.StateReader}, nil
}

// Process enqueues at most one job for task: missed fires since the last check collapse into
// the latest one. LastCheck advances only when the fire was handled, so a failed tick retries.
func (p *Processor) Process(ctx context.Context, task *Task, now time.Time) (*ProcessResult, error) {
	if task == nil || task.Schedule == nil {
		return nil, errors.New("task is not compiled")
	}
	if now.IsZero() {
		now = time.Now()
	}

	result := &ProcessResult{}
	fireAt, ok := LatestFire(task.Schedule, task.LastCheck, now)
	if !ok {
		return result, nil
	}
	result.Due = true
	result.FireAt = fireAt
	result.FireKey = ComputeFireKey(task.Entry.Name, fireAt)

	if task.Entry.Policy() == domain.OverrunPolicySkip {
		running, err := p.previousRunning(ctx, task)
		if err != nil {
			return nil, fmt.Errorf("check overrun policy: %w", err)
		}
		if running {
			result.Skipped = SkipOverrun
			task.LastCheck = now
			return result, nil
		}
	}

	acquired, err := p.fireKeys.AcquireFireKey(ctx, result.FireKey, fireKeyTTL(task.Schedule, fireAt))
	if err != nil {
		return nil, fmt.Errorf("acquire fire key: %w", err)
	}
	if !acquired {
		result.Skipped = SkipDuplicate
		task.LastCheck = now
		return result, nil
	}

	req, err := buildRequest(task.Entry, result.FireKey)
	if err != nil {
		return nil, err
	}
	id, err := p.enqueuer.Enqueue(ctx, req)
	if err != nil {
		// The fire key is already held, so this fire is lost; move on to the next one.
		task.LastCheck = now
		return nil, fmt.Errorf("enqueue job: %w", err)
	}

	result.Enqueued = true
	result.JobID = id
	task.LastJobID = id
	task.LastCheck = now
	return result, nil
}

func (p *Processor) previousRunning(ctx context.Context, task *Task) (bool, error) {
	if task.LastJobID == "" {
		return false, nil
	}
	if p.states == nil {
		return false, errors.New("job state reader is not configured")
	}
	status, err := p.states.GetStatus(ctx, task.LastJobID)
	if errors.Is(err, model.ErrJobNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return !status.State.Terminal(), nil
}

func buildRequest(entry domain.ScheduleEntry, fireKey string) (*model.EnqueueRequest, error) {
	req := entry.Request()
	name, err := json.Marshal(entry.Name)
	if err != nil {
		return nil, err
	}
	key, err := json.Marshal(fireKey)
	if err != nil {
		return nil, err
	}
	req.Metadata = map[string]json.RawMessage{
		MetadataSchedule: name,
		MetadataFireKey:  key,
	}
	return req, nil
}

// LatestFire returns the latest activation t of sched with after < t <= now.
func LatestFire(sched cron.Schedule, after, now time.Time) (time.Time, bool) {
	t := sched.Next(after)
	if t.IsZero() || t.After(now) {
		return time.Time{}, false
	}
	for range maxCatchUp {
		next := sched.Next(t)
		if next.IsZero() || next.After(now) {
			break
		}
		t = next
	}
	return t, true
}

// fireKeyTTL holds the key until the following activation.
func fireKeyTTL(sched cron.Schedule, fireAt time.Time) time.Duration {
	gap := sched.Next(fireAt).Sub(fireAt)
	if gap < minFireKeyTTL {
		return minFireKeyTTL
	}
	return gap
}

// ComputeFireKey derives the idempotent key for one activation of a schedule.
func ComputeFireKey(name string, fireAt time.Time) string {
	return fmt.Sprintf("%s:%d", name, fireAt.Unix())
}
