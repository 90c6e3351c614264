package metrics

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/target/mmk-jobqueue/internal/domain/model"
	"github.com/target/mmk-jobqueue/internal/observability/statsd"
)

// Observer receives executor dispatch events.
//
// ObserveFinish reports the state the queue moved the job to. A state that is not one of
// Completed, Failed, Retrying or Cancelled (for example Queued after a requeue) is not an outcome.
// ObserveDiscard ends a dispatch whose result the queue dropped because the job had already
// left Processing; current is the state the job was found in.
type Observer interface {
	ObserveStart(jobType model.JobType)
	ObserveFinish(jobType model.JobType, state model.JobState, elapsed time.Duration)
	ObserveDiscard(jobType model.JobType, current model.JobState)
}

// Observers fans events out to every member.
type Observers []Observer

var _ Observer = Observers(nil)

func (o Observers) ObserveStart(jobType model.JobType) {
	for _, ob := range o {
		ob.ObserveStart(jobType)
	}
}

func (o Observers) ObserveFinish(jobType model.JobType, state model.JobState, elapsed time.Duration) {
	for _, ob := range o {
		ob.ObserveFinish(jobType, state, elapsed)
	}
}

func (o Observers) ObserveDiscard(jobType model.JobType, current model.JobState) {
	for _, ob := range o {
		ob.ObserveDiscard(jobType, current)
	}
}

// ExecutorSnapshot is a consistent read of ExecutorMetrics.
type ExecutorSnapshot struct {
	Processed             int64         `json:"processed"`
	Succeeded             int64         `json:"succeeded"`
	Failed                int64         `json:"failed"`
	Retried               int64         `json:"retried"`
	Cancelled             int64         `json:"cancelled"`
	Discarded             int64         `json:"discarded"`
	Active                int64         `json:"active"`
	SuccessRate           float64       `json:"success_rate"`
	AverageProcessingTime time.Duration `json:"average_processing_time"`
}

// ExecutorMetrics keeps in-process dispatch counters.
// Processed counts final outcomes only, so Processed == Succeeded + Failed.
type ExecutorMetrics struct {
	active atomic.Int64

	mu        sync.Mutex
	succeeded int64
	failed    int64
	retried   int64
	cancelled int64
	discarded int64
	total     time.Duration
}

var _ Observer = (*ExecutorMetrics)(nil)

// NewExecutorMetrics returns zeroed counters.
func NewExecutorMetrics() *ExecutorMetrics {
	return &ExecutorMetrics{}
}

func (m *ExecutorMetrics) ObserveStart(model.JobType) {
	m.active.Add(1)
}

func (m *ExecutorMetrics) ObserveFinish(_ model.JobType, state model.JobState, elapsed time.Duration) {
	m.active.Add(-1)

	m.mu.Lock()
	defer m.mu.Unlock()
	switch state {
	case model.JobStateCompleted:
		m.succeeded++
		m.total += elapsed
	case model.JobStateFailed:
		m.failed++
		m.total += elapsed
	case model.JobStateRetrying:
		m.retried++
	case model.JobStateCancelled:
		m.cancelled++
	}
}

func (m *ExecutorMetrics) ObserveDiscard(model.JobType, model.JobState) {
	m.active.Add(-1)

	m.mu.Lock()
	m.discarded++
	m.mu.Unlock()
}

// Snapshot returns the current counters with derived rates.
func (m *ExecutorMetrics) Snapshot() ExecutorSnapshot {
	m.mu.Lock()
	s := ExecutorSnapshot{
		Succeeded: m.succeeded,
		Failed:    m.failed,
		Retried:   m.retried,
		Cancelled: m.cancelled,
		Discarded: m.discarded,
	}
	total := m.total
	m.mu.Unlock()

	s.Processed = s.Succeeded + s.Failed
	s.Active = m.active.Load()
	if s.Processed > 0 {
		s.SuccessRate = float64(s.Succeeded) / float64(s.Processed)
		s.AverageProcessingTime = total / time.Duration(s.Processed)
	}
	return s
}

// StatsdObserver forwards dispatch events to a StatsD sink.
type StatsdObserver struct {
	sink   statsd.Sink
	active atomic.Int64
}

var _ Observer = (*StatsdObserver)(nil)

// NewStatsdObserver returns nil when sink is nil.
func NewStatsdObserver(sink statsd.Sink) *StatsdObserver {
	if sink == nil {
		return nil
	}
	return &StatsdObserver{sink: sink}
}

func (o *StatsdObserver) ObserveStart(jobType model.JobType) {
	n := o.active.Add(1)
	o.sink.Gauge("executor.active", float64(n), nil)
	o.sink.Count("executor.started", 1, map[string]string{"job_type": string(jobType)})
}

func (o *StatsdObserver) ObserveFinish(jobType model.JobType, state model.JobState, elapsed time.Duration) {
	n := o.active.Add(-1)
	o.sink.Gauge("executor.active", float64(n), nil)

	tags := map[string]string{
		"job_type": string(jobType),
		"state":    string(state),
	}
	o.sink.Count("executor.finished", 1, tags)
	if elapsed > 0 {
		o.sink.Timing("executor.execution_time", elapsed, CloneTags(tags))
	}
}

func (o *StatsdObserver) ObserveDiscard(jobType model.JobType, current model.JobState) {
	n := o.active.Add(-1)
	o.sink.Gauge("executor.active", float64(n), nil)
	o.sink.Count("executor.discarded", 1, map[string]string{
		"job_type": string(jobType),
		"state":    string(current),
	})
}
