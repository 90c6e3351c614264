package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ServiceMode represents the available service modes.
type ServiceMode string

const (
	// ServiceModeWorker runs the job executor.
	ServiceModeWorker ServiceMode = "worker"
	// ServiceModeReaper runs stale reclamation and retention cleanup.
	ServiceModeReaper ServiceMode = "reaper"
	// ServiceModeScheduler runs the recurring job scheduler.
	ServiceModeScheduler ServiceMode = "scheduler"
	// ServiceModeMetrics runs the metrics and health HTTP server.
	ServiceModeMetrics ServiceMode = "metrics"
)

// ValidServiceModes returns all valid service mode names.
func ValidServiceModes() []ServiceMode {
	return []ServiceMode{
		ServiceModeWorker,
		ServiceModeReaper,
		ServiceModeScheduler,
		ServiceModeMetrics,
	}
}

// ParseServices parses a comma-delimited string of service names and returns the enabled services.
// It validates that all service names are valid and returns an error if any are invalid.
func ParseServices(servicesStr string) (map[ServiceMode]bool, error) {
	services := make(map[ServiceMode]bool)

	if strings.TrimSpace(servicesStr) == "" {
		return services, errors.New("at least one service must be specified")
	}

	for part := range strings.SplitSeq(servicesStr, ",") {
		serviceName := strings.TrimSpace(part)
		if serviceName == "" {
			continue
		}

		mode := ServiceMode(serviceName)
		switch mode {
		case ServiceModeWorker, ServiceModeReaper, ServiceModeScheduler, ServiceModeMetrics:
			services[mode] = true
		default:
			return nil, fmt.Errorf(
				"invalid service name: %q (valid options: worker, reaper, scheduler, metrics)",
				serviceName,
			)
		}
	}

	if len(services) == 0 {
		return nil, errors.New("at least one valid service must be specified")
	}

	return services, nil
}

// QueueConfig contains queue semantics shared by every service in the process.
type QueueConfig struct {
	// KeyPrefix namespaces Redis keys.
	KeyPrefix string `env:"QUEUE_KEY_PREFIX" envDefault:"jobqueue"`

	// RetryBaseDelay is the backoff unit; the nth retry waits base * 2^(n-1).
	RetryBaseDelay time.Duration `env:"QUEUE_RETRY_BASE_DELAY" envDefault:"60s"`

	// RetryMaxMultiplier caps the backoff at RetryBaseDelay * RetryMaxMultiplier.
	RetryMaxMultiplier int `env:"QUEUE_RETRY_MAX_MULTIPLIER" envDefault:"300"`

	// Retention is the TTL applied to terminal job records. Zero keeps them until cleanup.
	Retention time.Duration `env:"QUEUE_RETENTION" envDefault:"168h"` // 7 days

	// PromoteBatch bounds how many delayed jobs a single dequeue promotes.
	PromoteBatch int `env:"QUEUE_PROMOTE_BATCH" envDefault:"100"`

	// StaleAfter is how long a job may stay processing before the reaper reclaims it.
	StaleAfter time.Duration `env:"QUEUE_STALE_AFTER" envDefault:"1h"`
}

// Sanitize applies guardrails to queue configuration values.
func (q *QueueConfig) Sanitize() {
	q.KeyPrefix = strings.TrimSpace(q.KeyPrefix)
	if q.KeyPrefix == "" {
		q.KeyPrefix = "jobqueue"
	}
	if q.RetryBaseDelay < time.Second {
		q.RetryBaseDelay = time.Second
	}
	if q.RetryMaxMultiplier < 1 {
		q.RetryMaxMultiplier = 1
	}
	if q.Retention < 0 {
		q.Retention = 0
	}
	if q.PromoteBatch < 1 {
		q.PromoteBatch = 1
	}
	if q.StaleAfter < time.Minute {
		q.StaleAfter = time.Minute
	}
}

// ExecutorConfig contains worker service configuration.
type ExecutorConfig struct {
	// PollInterval is how often the executor polls for work when idle.
	PollInterval time.Duration `env:"EXECUTOR_POLL_INTERVAL" envDefault:"1s"`

	// MaxConcurrentJobs bounds the jobs running at once in this process.
	MaxConcurrentJobs int `env:"EXECUTOR_MAX_CONCURRENT_JOBS" envDefault:"10"`

	// DefaultTimeout applies when neither the job nor its handler sets a timeout.
	DefaultTimeout time.Duration `env:"EXECUTOR_DEFAULT_TIMEOUT" envDefault:"300s"`

	// ShutdownTimeout bounds how long shutdown waits for in-flight jobs.
	ShutdownTimeout time.Duration `env:"EXECUTOR_SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// WorkerID identifies this process in job metadata. Empty uses hostname-pid.
	WorkerID string `env:"EXECUTOR_WORKER_ID"`
}

// Sanitize applies guardrails to executor configuration values.
func (e *ExecutorConfig) Sanitize() {
	if e.PollInterval < 10*time.Millisecond {
		e.PollInterval = 10 * time.Millisecond
	}
	if e.MaxConcurrentJobs < 1 {
		e.MaxConcurrentJobs = 1
	}
	if e.DefaultTimeout <= 0 {
		e.DefaultTimeout = 300 * time.Second
	}
	if e.ShutdownTimeout < 0 {
		e.ShutdownTimeout = 0
	}
	e.WorkerID = strings.TrimSpace(e.WorkerID)
}

// ReaperConfig contains job reaper service configuration.
type ReaperConfig struct {
	// Interval is the reaper tick interval.
	Interval time.Duration `env:"REAPER_INTERVAL" envDefault:"1m"`

	// CompletedMaxAge is the maximum age for completed jobs before deletion.
	CompletedMaxAge time.Duration `env:"REAPER_COMPLETED_MAX_AGE" envDefault:"168h"` // 7 days

	// FailedMaxAge is the maximum age for failed jobs before deletion.
	FailedMaxAge time.Duration `env:"REAPER_FAILED_MAX_AGE" envDefault:"168h"` // 7 days

	// CancelledMaxAge is the maximum age for cancelled jobs before deletion.
	CancelledMaxAge time.Duration `env:"REAPER_CANCELLED_MAX_AGE" envDefault:"168h"` // 7 days

	// BatchSize is the maximum number of jobs to delete per operation.
	// Batching prevents long locks and I/O spikes on large tables.
	BatchSize int `env:"REAPER_BATCH_SIZE" envDefault:"1000"`
}

// Sanitize applies guardrails to reaper configuration values.
// A max age of zero disables cleanup for that state.
func (r *ReaperConfig) Sanitize() {
	// Enforce minimum intervals to prevent excessive store load
	if r.Interval < 1*time.Minute {
		r.Interval = 1 * time.Minute
	}
	for _, age := range []*time.Duration{&r.CompletedMaxAge, &r.FailedMaxAge, &r.CancelledMaxAge} {
		if *age < 0 {
			*age = 0
		}
		if *age > 0 && *age < time.Hour {
			*age = time.Hour
		}
	}

	// Enforce batch size bounds to prevent excessive locks or inefficiency
	if r.BatchSize < 1 {
		r.BatchSize = 1
	}
	if r.BatchSize > 10000 {
		r.BatchSize = 10000
	}
}

// SchedulerConfig contains recurring scheduler configuration.
type SchedulerConfig struct {
	// Interval is the scheduler tick interval.
	Interval time.Duration `env:"SCHEDULER_INTERVAL" envDefault:"1s"`

	// File is the YAML schedule file. Empty disables the scheduler even when enabled in SERVICES.
	File string `env:"SCHEDULER_FILE"`
}

// Sanitize applies guardrails to scheduler configuration values.
func (s *SchedulerConfig) Sanitize() {
	if s.Interval < 100*time.Millisecond {
		s.Interval = 100 * time.Millisecond
	}
	s.File = strings.TrimSpace(s.File)
}
