// Package testutil provides testing utilities and helpers for the job queue.
package testutil

import (
	"encoding/json"
	"time"

	"github.com/target/mmk-jobqueue/internal/domain/model"
)

// EnqueueRequestBuilder provides a fluent interface for building EnqueueRequest objects for testing.
type EnqueueRequestBuilder struct {
	req *model.EnqueueRequest
}

// NewEnqueueRequest creates a builder with sensible defaults.
func NewEnqueueRequest() *EnqueueRequestBuilder {
	return &EnqueueRequestBuilder{
		req: &model.EnqueueRequest{
			Type:     "test.job",
			Priority: model.PriorityNormal,
			Payload:  json.RawMessage(`{"n":1}`),
		},
	}
}

// WithType sets the job type.
func (b *EnqueueRequestBuilder) WithType(jobType model.JobType) *EnqueueRequestBuilder {
	b.req.Type = jobType
	return b
}

// WithPriority sets the job priority.
func (b *EnqueueRequestBuilder) WithPriority(priority model.JobPriority) *EnqueueRequestBuilder {
	b.req.Priority = priority
	return b
}

// WithPayload sets the job payload.
func (b *EnqueueRequestBuilder) WithPayload(payload string) *EnqueueRequestBuilder {
	b.req.Payload = json.RawMessage(payload)
	return b
}

// WithMaxAttempts sets the attempt budget.
func (b *EnqueueRequestBuilder) WithMaxAttempts(n int) *EnqueueRequestBuilder {
	b.req.MaxAttempts = n
	return b
}

// WithTimeout sets the per-job timeout.
func (b *EnqueueRequestBuilder) WithTimeout(d time.Duration) *EnqueueRequestBuilder {
	b.req.TimeoutSeconds = int(d / time.Second)
	return b
}

// ScheduledFor delays the job until t.
func (b *EnqueueRequestBuilder) ScheduledFor(t time.Time) *EnqueueRequestBuilder {
	b.req.ScheduledFor = &t
	return b
}

// Build returns the request.
func (b *EnqueueRequestBuilder) Build() *model.EnqueueRequest {
	return b.req
}
