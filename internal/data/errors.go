package data

import "errors"

// Shared sentinel errors for the store adapters.
var (
	// ErrUnknownPriority is returned when a job reference carries a priority with no ready list.
	ErrUnknownPriority = errors.New("unknown priority")
	// ErrNilJob is returned by SaveJob for a nil record.
	ErrNilJob = errors.New("job is nil")
)
