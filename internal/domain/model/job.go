// Package model defines the core data types shared by the queue, the store adapters and the executor.
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// JobType names the kind of work a job performs and selects its handler.
type JobType string

// JobPriority orders jobs for dequeue. Critical > High > Normal > Low.
//
//nolint:recvcheck // UnmarshalText needs pointer receiver, the rest value receivers
type JobPriority string

// JobState is the lifecycle state of a job.
type JobState string

const (
	// PriorityCritical jobs are dequeued before every other tier.
	PriorityCritical JobPriority = "critical"
	// PriorityHigh jobs are dequeued after critical jobs.
	PriorityHigh JobPriority = "high"
	// PriorityNormal is the default priority.
	PriorityNormal JobPriority = "normal"
	// PriorityLow jobs run only when every other tier is empty.
	PriorityLow JobPriority = "low"

	// JobStateQueued indicates the job sits in a ready list or the delayed set.
	JobStateQueued JobState = "queued"
	// JobStateProcessing indicates a worker has claimed the job.
	JobStateProcessing JobState = "processing"
	// JobStateRetrying indicates the job failed transiently and waits in the delayed set.
	JobStateRetrying JobState = "retrying"
	// JobStateCompleted indicates the job finished successfully.
	JobStateCompleted JobState = "completed"
	// JobStateFailed indicates the job failed permanently.
	JobStateFailed JobState = "failed"
	// JobStateCancelled indicates the job was cancelled.
	JobStateCancelled JobState = "cancelled"
)

const (
	// DefaultMaxAttempts is used when neither the request nor the handler sets one.
	DefaultMaxAttempts = 3
	// DefaultTimeout is the executor-wide fallback for handler execution.
	DefaultTimeout = 300 * time.Second
)

// Metadata keys written by the queue.
const (
	MetadataWorkerID     = "worker_id"
	MetadataCancelReason = "cancel_reason"
)

var (
	// ErrNoJobsAvailable is returned when no jobs are available for claiming.
	ErrNoJobsAvailable = errors.New("no jobs available")
	// ErrJobNotFound is returned when a job record does not exist (or has expired).
	ErrJobNotFound = errors.New("job not found")
	// ErrJobFinalized is returned when a status change targets a job in a terminal state.
	ErrJobFinalized = errors.New("job is in a terminal state")
	// ErrResultDiscarded is returned with the current state when a result arrives for a job
	// that is no longer Processing.
	ErrResultDiscarded = errors.New("result discarded: job is no longer processing")
)

var jobTypePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_.:-]{0,127}$`)

// Valid reports whether the job type is a non-empty lowercase identifier.
func (t JobType) Valid() bool {
	return jobTypePattern.MatchString(string(t))
}

// Priorities returns every priority in dequeue order.
func Priorities() []JobPriority {
	return []JobPriority{PriorityCritical, PriorityHigh, PriorityNormal, PriorityLow}
}

// Valid returns true if the priority is known.
func (p JobPriority) Valid() bool {
	return p.Rank() >= 0
}

// Rank maps the priority to an integer where larger values dequeue first.
func (p JobPriority) Rank() int {
	switch p {
	case PriorityCritical:
		return 3
	case PriorityHigh:
		return 2
	case PriorityNormal:
		return 1
	case PriorityLow:
		return 0
	default:
		return -1
	}
}

// PriorityFromRank is the inverse of Rank.
func PriorityFromRank(rank int) (JobPriority, bool) {
	for _, p := range Priorities() {
		if p.Rank() == rank {
			return p, true
		}
	}
	return "", false
}

// Before reports whether p is dequeued ahead of other.
func (p JobPriority) Before(other JobPriority) bool {
	return p.Rank() > other.Rank()
}

// UnmarshalText implements encoding.TextUnmarshaler so priorities can come from env, flags and JSON.
func (p *JobPriority) UnmarshalText(text []byte) error {
	v := JobPriority(strings.ToLower(strings.TrimSpace(string(text))))
	if v == "" {
		*p = PriorityNormal
		return nil
	}
	if !v.Valid() {
		return fmt.Errorf("invalid JobPriority: %q", string(text))
	}
	*p = v
	return nil
}

// Valid returns true if the state is known.
func (s JobState) Valid() bool {
	switch s {
	case JobStateQueued, JobStateProcessing, JobStateRetrying,
		JobStateCompleted, JobStateFailed, JobStateCancelled:
		return true
	default:
		return false
	}
}

// Terminal reports whether no further transitions are allowed.
func (s JobState) Terminal() bool {
	return s == JobStateCompleted || s == JobStateFailed || s == JobStateCancelled
}

// JobStatus is the mutable portion of a job record.
type JobStatus struct {
	State        JobState                   `json:"state"`
	Attempts     int                        `json:"attempts"`
	MaxAttempts  int                        `json:"max_attempts"`
	ScheduledFor *time.Time                 `json:"scheduled_for,omitempty"`
	StartedAt    *time.Time                 `json:"started_at,omitempty"`
	CompletedAt  *time.Time                 `json:"completed_at,omitempty"`
	LastError    *string                    `json:"last_error,omitempty"`
	Progress     *float64                   `json:"progress,omitempty"`
	Result       json.RawMessage            `json:"result,omitempty"`
	Message      *string                    `json:"message,omitempty"`
	Metadata     map[string]json.RawMessage `json:"metadata,omitempty"`
}

// Clone returns a deep copy of the status.
func (s JobStatus) Clone() JobStatus {
	out := s
	out.ScheduledFor = cloneTime(s.ScheduledFor)
	out.StartedAt = cloneTime(s.StartedAt)
	out.CompletedAt = cloneTime(s.CompletedAt)
	out.LastError = cloneString(s.LastError)
	out.Message = cloneString(s.Message)
	if s.Progress != nil {
		v := *s.Progress
		out.Progress = &v
	}
	if s.Result != nil {
		out.Result = append(json.RawMessage(nil), s.Result...)
	}
	if s.Metadata != nil {
		out.Metadata = make(map[string]json.RawMessage, len(s.Metadata))
		for k, v := range s.Metadata {
			out.Metadata[k] = append(json.RawMessage(nil), v...)
		}
	}
	return out
}

// SetMetadata stores v under key, encoding it as JSON.
func (s *JobStatus) SetMetadata(key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode metadata %q: %w", key, err)
	}
	if s.Metadata == nil {
		s.Metadata = make(map[string]json.RawMessage)
	}
	s.Metadata[key] = raw
	return nil
}

// MetadataString returns the metadata value for key when it holds a JSON string.
func (s JobStatus) MetadataString(key string) (string, bool) {
	raw, ok := s.Metadata[key]
	if !ok {
		return "", false
	}
	var out string
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", false
	}
	return out, true
}

// QueuedJob is a job record as held by the store.
type QueuedJob struct {
	ID             string          `json:"id"`
	Type           JobType         `json:"job_type"`
	Priority       JobPriority     `json:"priority"`
	Payload        json.RawMessage `json:"payload"`
	TimeoutSeconds int             `json:"timeout_seconds,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	Status         JobStatus       `json:"status"`
}

// Clone returns a deep copy of the job.
func (j *QueuedJob) Clone() *QueuedJob {
	if j == nil {
		return nil
	}
	out := *j
	if j.Payload != nil {
		out.Payload = append(json.RawMessage(nil), j.Payload...)
	}
	out.Status = j.Status.Clone()
	return &out
}

// Ref returns the locator used by the store for structure membership.
func (j *QueuedJob) Ref() JobRef {
	return JobRef{ID: j.ID, Priority: j.Priority}
}

// Timeout returns the per-job timeout, or zero when the job does not set one.
func (j *QueuedJob) Timeout() time.Duration {
	if j == nil || j.TimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(j.TimeoutSeconds) * time.Second
}

// JobRef identifies a job and the ready list it belongs to.
type JobRef struct {
	ID       string
	Priority JobPriority
}

// EnqueueRequest represents a request to add a job to the queue.
type EnqueueRequest struct {
	Type           JobType                    `json:"job_type"`
	Priority       JobPriority                `json:"priority,omitempty"`
	Payload        json.RawMessage            `json:"payload"`
	ScheduledFor   *time.Time                 `json:"scheduled_for,omitempty"`
	MaxAttempts    int                        `json:"max_attempts,omitempty"`
	TimeoutSeconds int                        `json:"timeout_seconds,omitempty"`
	Metadata       map[string]json.RawMessage `json:"metadata,omitempty"`
}

// Validate validates the EnqueueRequest fields.
func (r *EnqueueRequest) Validate() error {
	if !r.Type.Valid() {
		return fmt.Errorf("invalid job type %q", r.Type)
	}
	if r.Priority != "" && !r.Priority.Valid() {
		return fmt.Errorf("invalid priority %q", r.Priority)
	}
	if len(r.Payload) == 0 {
		return errors.New("payload is required")
	}
	if !json.Valid(r.Payload) {
		return errors.New("payload must be valid JSON")
	}
	if r.MaxAttempts < 0 {
		return errors.New("max attempts must be >= 0")
	}
	if r.TimeoutSeconds < 0 {
		return errors.New("timeout seconds must be >= 0")
	}
	return nil
}

// HandlerConfig holds optional per-handler overrides. Zero values mean unset.
type HandlerConfig struct {
	MaxConcurrentJobs  int           `json:"max_concurrent_jobs,omitempty"`
	DefaultTimeout     time.Duration `json:"default_timeout,omitempty"`
	DefaultMaxAttempts int           `json:"default_max_attempts,omitempty"`
}

// JobContext is the read-only view of a job passed to a handler.
type JobContext struct {
	JobID       string
	Attempt     int
	MaxAttempts int
	StartedAt   time.Time
	Metadata    map[string]json.RawMessage
}

// NewJobContext builds the handler view for a claimed job. Attempt is one-based.
func NewJobContext(job *QueuedJob) JobContext {
	jc := JobContext{
		JobID:       job.ID,
		Attempt:     job.Status.Attempts + 1,
		MaxAttempts: job.Status.MaxAttempts,
		Metadata:    job.Status.Clone().Metadata,
	}
	if job.Status.StartedAt != nil {
		jc.StartedAt = *job.Status.StartedAt
	}
	return jc
}

// QueueStats is the monitoring snapshot of the queue counters.
type QueueStats struct {
	TotalJobs      int64   `json:"total_jobs"`
	QueuedJobs     int64   `json:"queued_jobs"`
	ProcessingJobs int64   `json:"processing_jobs"`
	CompletedJobs  int64   `json:"completed_jobs"`
	FailedJobs     int64   `json:"failed_jobs"`
	RetryingJobs   int64   `json:"retrying_jobs"`
	CancelledJobs  int64   `json:"cancelled_jobs"`
	ErrorRate      float64 `json:"error_rate"`
	SuccessRate    float64 `json:"success_rate"`
}

// Counter names an aggregate counter kept by the store.
type Counter string

const (
	// CounterTotal counts every job ever enqueued.
	CounterTotal Counter = "total"
)

// StateCounter returns the counter tracking jobs currently in state s.
func StateCounter(s JobState) Counter {
	return Counter(s)
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// TimePtr returns a pointer to t.
func TimePtr(t time.Time) *time.Time {
	return &t
}

// StringPtr returns a pointer to s.
func StringPtr(s string) *string {
	return &s
}
