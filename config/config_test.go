package config

import (
	"log/slog"
	"reflect"
	"testing"
	"time"

	env "github.com/caarlos0/env/v11"
)

func TestParseServices(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		expected    map[ServiceMode]bool
		expectError bool
	}{
		{
			name:     "single service - worker",
			input:    "worker",
			expected: map[ServiceMode]bool{ServiceModeWorker: true},
		},
		{
			name:  "default services",
			input: "worker,reaper",
			expected: map[ServiceMode]bool{
				ServiceModeWorker: true,
				ServiceModeReaper: true,
			},
		},
		{
			name:  "all services with spaces",
			input: " worker , reaper , scheduler , metrics ",
			expected: map[ServiceMode]bool{
				ServiceModeWorker:    true,
				ServiceModeReaper:    true,
				ServiceModeScheduler: true,
				ServiceModeMetrics:   true,
			},
		},
		{
			name:  "duplicate services",
			input: "worker,worker,metrics",
			expected: map[ServiceMode]bool{
				ServiceModeWorker:  true,
				ServiceModeMetrics: true,
			},
		},
		{
			name:        "empty string",
			input:       "",
			expectError: true,
		},
		{
			name:        "only commas",
			input:       " , ,",
			expectError: true,
		},
		{
			name:        "invalid service",
			input:       "worker,http",
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ParseServices(tt.input)
			if tt.expectError {
				if err == nil {
					t.Errorf("expected error but got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !reflect.DeepEqual(result, tt.expected) {
				t.Errorf("expected %v, got %v", tt.expected, result)
			}
		})
	}
}

func TestAppConfig_Defaults(t *testing.T) {
	var cfg AppConfig
	if err := env.Parse(&cfg); err != nil {
		t.Fatalf("parse config: %v", err)
	}
	cfg.Sanitize()

	if cfg.Store.Backend != StoreBackendMemory {
		t.Errorf("expected memory backend, got %q", cfg.Store.Backend)
	}
	if !cfg.IsWorkerEnabled() || !cfg.IsReaperEnabled() {
		t.Errorf("expected worker and reaper enabled by default")
	}
	if cfg.IsSchedulerEnabled() || cfg.IsMetricsServerEnabled() {
		t.Errorf("expected scheduler and metrics disabled by default")
	}

	expectedQueue := QueueConfig{
		KeyPrefix:          "jobqueue",
		RetryBaseDelay:     60 * time.Second,
		RetryMaxMultiplier: 300,
		Retention:          168 * time.Hour,
		PromoteBatch:       100,
		StaleAfter:         time.Hour,
	}
	if cfg.Queue != expectedQueue {
		t.Errorf("unexpected queue config:\nexpected: %#v\ngot:      %#v", expectedQueue, cfg.Queue)
	}

	expectedExecutor := ExecutorConfig{
		PollInterval:      time.Second,
		MaxConcurrentJobs: 10,
		DefaultTimeout:    300 * time.Second,
		ShutdownTimeout:   30 * time.Second,
	}
	if cfg.Executor != expectedExecutor {
		t.Errorf("unexpected executor config:\nexpected: %#v\ngot:      %#v", expectedExecutor, cfg.Executor)
	}

	expectedReaper := ReaperConfig{
		Interval:        time.Minute,
		CompletedMaxAge: 168 * time.Hour,
		FailedMaxAge:    168 * time.Hour,
		CancelledMaxAge: 168 * time.Hour,
		BatchSize:       1000,
	}
	if cfg.Reaper != expectedReaper {
		t.Errorf("unexpected reaper config:\nexpected: %#v\ngot:      %#v", expectedReaper, cfg.Reaper)
	}

	if cfg.Scheduler.Interval != time.Second || cfg.Scheduler.File != "" {
		t.Errorf("unexpected scheduler config: %#v", cfg.Scheduler)
	}
	if cfg.Webhook.Timeout != 30*time.Second || cfg.Webhook.OAuth.Enabled() {
		t.Errorf("unexpected webhook config: %#v", cfg.Webhook)
	}
	if cfg.Observability.Metrics.IsEnabled() {
		t.Errorf("expected statsd disabled by default")
	}
	if cfg.Observability.Prometheus.Addr != ":9090" {
		t.Errorf("expected :9090, got %q", cfg.Observability.Prometheus.Addr)
	}
	if cfg.SlogLevel() != slog.LevelInfo {
		t.Errorf("expected info level, got %v", cfg.SlogLevel())
	}
}

func TestAppConfig_ParseEnv(t *testing.T) {
	t.Setenv("STORE_BACKEND", " Redis ")
	t.Setenv("SERVICES", "worker,scheduler,metrics")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("REDIS_URI", "redis://cache:6379/2")
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("QUEUE_KEY_PREFIX", "payments")
	t.Setenv("EXECUTOR_MAX_CONCURRENT_JOBS", "4")
	t.Setenv("EXECUTOR_WORKER_ID", " node-a ")
	t.Setenv("SCHEDULER_FILE", "/etc/jobqueue/schedule.yaml")
	t.Setenv("WEBHOOK_OAUTH_TOKEN_URL", "https://login.example.com/token")
	t.Setenv("WEBHOOK_OAUTH_CLIENT_ID", "jobqueue")
	t.Setenv("WEBHOOK_OAUTH_SCOPES", "hooks.write,hooks.read")
	t.Setenv("OBSERVABILITY_METRICS_TAGS", "env:prod,region:us")

	var cfg AppConfig
	if err := env.Parse(&cfg); err != nil {
		t.Fatalf("parse config: %v", err)
	}
	cfg.Sanitize()

	if cfg.Store.Backend != StoreBackendRedis || !cfg.Store.Valid() {
		t.Errorf("expected redis backend, got %q", cfg.Store.Backend)
	}
	if !cfg.IsSchedulerEnabled() || !cfg.IsMetricsServerEnabled() || cfg.IsReaperEnabled() {
		t.Errorf("unexpected enabled services for %q", cfg.Services)
	}
	if cfg.SlogLevel() != slog.LevelDebug {
		t.Errorf("expected debug level, got %v", cfg.SlogLevel())
	}
	if cfg.Redis.URI != "redis://cache:6379/2" || cfg.Postgres.Host != "db.internal" {
		t.Errorf("unexpected connection config: %#v %#v", cfg.Redis, cfg.Postgres)
	}
	if cfg.Queue.KeyPrefix != "payments" {
		t.Errorf("expected payments prefix, got %q", cfg.Queue.KeyPrefix)
	}
	if cfg.Executor.MaxConcurrentJobs != 4 || cfg.Executor.WorkerID != "node-a" {
		t.Errorf("unexpected executor config: %#v", cfg.Executor)
	}
	if cfg.Scheduler.File != "/etc/jobqueue/schedule.yaml" {
		t.Errorf("unexpected scheduler file %q", cfg.Scheduler.File)
	}

	expectedOAuth := WebhookOAuthConfig{
		TokenURL: "https://login.example.com/token",
		ClientID: "jobqueue",
		Scopes:   []string{"hooks.write", "hooks.read"},
	}
	if !reflect.DeepEqual(cfg.Webhook.OAuth, expectedOAuth) || !cfg.Webhook.OAuth.Enabled() {
		t.Errorf("unexpected oauth config:\nexpected: %#v\ngot:      %#v", expectedOAuth, cfg.Webhook.OAuth)
	}

	expectedTags := map[string]string{"env": "prod", "region": "us"}
	if !reflect.DeepEqual(cfg.Observability.Metrics.Tags, expectedTags) {
		t.Errorf("expected tags %v, got %v", expectedTags, cfg.Observability.Metrics.Tags)
	}
}

func TestConfig_ServiceEnabledMethodsWithInvalidConfig(t *testing.T) {
	cfg := &AppConfig{Services: "worker,bogus"}

	if cfg.IsWorkerEnabled() || cfg.IsReaperEnabled() || cfg.IsSchedulerEnabled() || cfg.IsMetricsServerEnabled() {
		t.Errorf("expected every service disabled for invalid configuration")
	}
}

func TestValidServiceModes(t *testing.T) {
	modes := ValidServiceModes()
	expected := []ServiceMode{ServiceModeWorker, ServiceModeReaper, ServiceModeScheduler, ServiceModeMetrics}

	if !reflect.DeepEqual(modes, expected) {
		t.Errorf("expected %v, got %v", expected, modes)
	}
}

func TestStoreConfig_Valid(t *testing.T) {
	cfg := StoreConfig{Backend: " "}
	cfg.Sanitize()
	if cfg.Backend != StoreBackendMemory {
		t.Errorf("expected blank backend to default to memory, got %q", cfg.Backend)
	}

	cfg = StoreConfig{Backend: "sqlite"}
	cfg.Sanitize()
	if cfg.Valid() {
		t.Errorf("expected sqlite to be rejected")
	}
}

func TestQueueConfig_Sanitize(t *testing.T) {
	cfg := QueueConfig{
		KeyPrefix:          " ",
		RetryBaseDelay:     0,
		RetryMaxMultiplier: -5,
		Retention:          -time.Hour,
		PromoteBatch:       0,
		StaleAfter:         time.Second,
	}
	cfg.Sanitize()

	expected := QueueConfig{
		KeyPrefix:          "jobqueue",
		RetryBaseDelay:     time.Second,
		RetryMaxMultiplier: 1,
		Retention:          0,
		PromoteBatch:       1,
		StaleAfter:         time.Minute,
	}
	if cfg != expected {
		t.Errorf("expected %#v, got %#v", expected, cfg)
	}
}

func TestExecutorConfig_Sanitize(t *testing.T) {
	cfg := ExecutorConfig{MaxConcurrentJobs: 0, DefaultTimeout: -1, ShutdownTimeout: -1}
	cfg.Sanitize()

	if cfg.MaxConcurrentJobs != 1 {
		t.Errorf("expected concurrency clamped to 1, got %d", cfg.MaxConcurrentJobs)
	}
	if cfg.DefaultTimeout != 300*time.Second {
		t.Errorf("expected default timeout restored, got %s", cfg.DefaultTimeout)
	}
	if cfg.ShutdownTimeout != 0 {
		t.Errorf("expected shutdown timeout clamped to 0, got %s", cfg.ShutdownTimeout)
	}
}

func TestReaperConfig_Sanitize(t *testing.T) {
	cfg := ReaperConfig{
		Interval:        time.Second,
		CompletedMaxAge: time.Minute,
		FailedMaxAge:    0,
		CancelledMaxAge: -time.Hour,
		BatchSize:       50000,
	}
	cfg.Sanitize()

	expected := ReaperConfig{
		Interval:        time.Minute,
		CompletedMaxAge: time.Hour,
		FailedMaxAge:    0,
		CancelledMaxAge: 0,
		BatchSize:       10000,
	}
	if cfg != expected {
		t.Errorf("expected %#v, got %#v", expected, cfg)
	}
}

func TestObservabilityMetricsConfig_Sanitize(t *testing.T) {
	cfg := ObservabilityMetricsConfig{
		Enabled:       true,
		StatsdAddress: " ",
	}

	cfg.Sanitize()

	if cfg.Enabled {
		t.Fatalf("expected enabled to be false when address is empty")
	}

	cfg = ObservabilityMetricsConfig{
		Enabled:       true,
		StatsdAddress: " statsd:1234 ",
	}

	cfg.Sanitize()

	if !cfg.IsEnabled() {
		t.Fatalf("expected metrics to remain enabled")
	}
	if cfg.StatsdAddress != "statsd:1234" {
		t.Fatalf("expected address to be trimmed, got %q", cfg.StatsdAddress)
	}
	if cfg.Prefix != defaultMetricsPrefix {
		t.Fatalf("expected default prefix, got %q", cfg.Prefix)
	}
}

func TestPrometheusConfig_Sanitize(t *testing.T) {
	cfg := PrometheusConfig{Addr: " ", MaxConnections: 0}
	cfg.Sanitize()

	if cfg.Addr != ":9090" || cfg.MaxConnections != 1 || cfg.ScrapeTimeout != 5*time.Second {
		t.Fatalf("unexpected prometheus config: %#v", cfg)
	}
}
