// Package mocks provides mock implementations of the queue ports for testing.
//
// This package uses go.uber.org/mock (gomock). To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	store := mocks.NewMockJobStore(ctrl)
//	store.EXPECT().Ping(gomock.Any()).Return(nil)
package mocks

// Generate mock for JobStore interface from internal/core package.
// This creates MockJobStore with methods for all JobStore interface methods.
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=job_store_mock.go github.com/target/mmk-jobqueue/internal/core JobStore

// Generate mock for JobQueue interface from internal/core package.
// This creates MockJobQueue with methods: Dequeue, ApplyResult, Requeue
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=job_queue_mock.go github.com/target/mmk-jobqueue/internal/core JobQueue

// Generate mock for JobEnqueuer interface from internal/core package.
// This creates MockJobEnqueuer with methods: Enqueue, GetStatus
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=job_enqueuer_mock.go github.com/target/mmk-jobqueue/internal/core JobEnqueuer
