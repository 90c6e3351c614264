package model

import (
	"encoding/json"
	"time"
)

// ResultKind discriminates the JobResult variants.
type ResultKind string

const (
	// ResultSuccess completes the job.
	ResultSuccess ResultKind = "success"
	// ResultRetry schedules another attempt when the budget allows it.
	ResultRetry ResultKind = "retry"
	// ResultFailed fails the job without further attempts.
	ResultFailed ResultKind = "failed"
	// ResultCancelled cancels the job.
	ResultCancelled ResultKind = "cancelled"
)

// JobResult is the outcome of one handler execution.
// Only the fields belonging to Kind are meaningful.
type JobResult struct {
	Kind ResultKind `json:"kind"`

	// Success
	Result  json.RawMessage `json:"result,omitempty"`
	Message string          `json:"message,omitempty"`

	// Retry, Failed
	Error string `json:"error,omitempty"`
	// Retry: nil lets the queue compute the backoff.
	Delay *time.Duration `json:"delay,omitempty"`

	// Cancelled
	Reason string `json:"reason,omitempty"`
}

// Success builds a successful result. Both arguments are optional.
func Success(result json.RawMessage, message string) JobResult {
	return JobResult{Kind: ResultSuccess, Result: result, Message: message}
}

// Retry builds a retryable failure. A nil delay uses the queue backoff.
func Retry(err string, delay *time.Duration) JobResult {
	return JobResult{Kind: ResultRetry, Error: err, Delay: delay}
}

// RetryAfter is Retry with an explicit delay.
func RetryAfter(err string, delay time.Duration) JobResult {
	return Retry(err, &delay)
}

// Failed builds a non-retryable failure.
func Failed(err string) JobResult {
	return JobResult{Kind: ResultFailed, Error: err}
}

// Cancelled builds a cancellation result.
func Cancelled(reason string) JobResult {
	return JobResult{Kind: ResultCancelled, Reason: reason}
}

// Valid reports whether the kind is known.
func (r JobResult) Valid() bool {
	switch r.Kind {
	case ResultSuccess, ResultRetry, ResultFailed, ResultCancelled:
		return true
	default:
		return false
	}
}
