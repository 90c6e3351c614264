// Package metrics emits queue and executor metrics to StatsD and Prometheus.
package metrics

import (
	"time"

	"github.com/target/mmk-jobqueue/internal/domain/model"
	obserrors "github.com/target/mmk-jobqueue/internal/observability/errors"
	"github.com/target/mmk-jobqueue/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultNoop    = "noop"
)

// Transition names a job lifecycle event.
type Transition string

const (
	TransitionEnqueue  Transition = "enqueue"
	TransitionDequeue  Transition = "dequeue"
	TransitionComplete Transition = "complete"
	TransitionRetry    Transition = "retry"
	TransitionFail     Transition = "fail"
	TransitionCancel   Transition = "cancel"
	TransitionRequeue  Transition = "requeue"
	TransitionReclaim  Transition = "reclaim"
	TransitionPromote  Transition = "promote"
)

// TransitionFor maps the state a job lands in after a result to its transition name.
func TransitionFor(state model.JobState) Transition {
	switch state {
	case model.JobStateCompleted:
		return TransitionComplete
	case model.JobStateRetrying:
		return TransitionRetry
	case model.JobStateCancelled:
		return TransitionCancel
	case model.JobStateQueued:
		return TransitionRequeue
	default:
		return TransitionFail
	}
}

// JobMetric captures details about a job lifecycle event for metric emission.
type JobMetric struct {
	JobType    model.JobType
	Priority   model.JobPriority
	Transition Transition
	Result     string
	Duration   time.Duration
	Err        error
}

// EmitJobLifecycle emits standardised job lifecycle metrics.
func EmitJobLifecycle(sink statsd.Sink, in JobMetric) {
	if sink == nil {
		return
	}

	result := in.Result
	if result == "" {
		result = ResultSuccess
		if in.Err != nil {
			result = ResultError
		}
	}

	tags := map[string]string{
		"job_type":   string(in.JobType),
		"transition": string(in.Transition),
		"result":     result,
	}
	if in.Priority != "" {
		tags["priority"] = string(in.Priority)
	}

	if in.Err != nil && result == ResultError {
		if class := obserrors.Classify(in.Err); class != "" {
			tags["error_class"] = class
		}
	}

	sink.Count("job.transition", 1, tags)

	if in.Duration > 0 {
		sink.Timing("job.duration", in.Duration, CloneTags(tags))
	}
}

// CloneTags creates a shallow copy of a tag map.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
