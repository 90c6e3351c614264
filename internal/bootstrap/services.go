package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/target/mmk-jobqueue/config"
	"github.com/target/mmk-jobqueue/internal/adapters/handlers"
	"github.com/target/mmk-jobqueue/internal/adapters/jobrunner"
	"github.com/target/mmk-jobqueue/internal/adapters/reaper"
	schedrunner "github.com/target/mmk-jobqueue/internal/adapters/scheduler"
	"github.com/target/mmk-jobqueue/internal/core"
	"github.com/target/mmk-jobqueue/internal/domain"
	"github.com/target/mmk-jobqueue/internal/domain/job"
	"github.com/target/mmk-jobqueue/internal/domain/model"
	"github.com/target/mmk-jobqueue/internal/observability/metrics"
	"github.com/target/mmk-jobqueue/internal/observability/statsd"
	"github.com/target/mmk-jobqueue/internal/service"
)

// ComponentsOptions groups dependencies for BuildComponents.
type ComponentsOptions struct {
	Config  *config.AppConfig // Required
	Store   core.JobStore     // Required
	Metrics statsd.Sink       // Optional: defaults to statsd.Nop
	Logger  *slog.Logger      // Optional
}

// Components holds the services shared by every enabled service mode.
type Components struct {
	Config     *config.AppConfig
	Store      core.JobStore
	Queue      *service.QueueService
	Handlers   *job.Registry
	Notifier   *job.LocalNotifier
	Metrics    statsd.Sink
	Prometheus *prometheus.Registry
	Logger     *slog.Logger

	promObserver *metrics.PrometheusObserver
}

// BuildComponents builds the queue, the handler registry and the Prometheus registry.
func BuildComponents(opts ComponentsOptions) (*Components, error) {
	cfg := opts.Config
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if opts.Store == nil {
		return nil, errors.New("store is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	sink := opts.Metrics
	if sink == nil {
		sink = statsd.Nop{}
	}

	registry, err := NewHandlerRegistry(cfg.Webhook)
	if err != nil {
		return nil, err
	}

	retry, err := job.NewRetryPolicy(cfg.Queue.RetryBaseDelay, cfg.Queue.RetryMaxMultiplier)
	if err != nil {
		return nil, fmt.Errorf("build retry policy: %w", err)
	}

	notifier := job.NewNotifier()
	queue, err := service.NewQueueService(service.QueueServiceOptions{
		Store:        opts.Store,
		Defaults:     registry,
		RetryPolicy:  retry,
		Logger:       logger,
		Retention:    cfg.Queue.Retention,
		PromoteBatch: cfg.Queue.PromoteBatch,
		StaleAfter:   cfg.Queue.StaleAfter,
		CleanupBatch: cfg.Reaper.BatchSize,
		Notifier:     notifier,
		Metrics:      sink,
	})
	if err != nil {
		return nil, fmt.Errorf("build queue service: %w", err)
	}

	reg, promObserver, err := newPrometheusRegistry(queue, cfg.Observability.Prometheus, logger)
	if err != nil {
		return nil, err
	}

	return &Components{
		Config:       cfg,
		Store:        opts.Store,
		Queue:        queue,
		Handlers:     registry,
		Notifier:     notifier,
		Metrics:      sink,
		Prometheus:   reg,
		Logger:       logger,
		promObserver: promObserver,
	}, nil
}

// NewHandlerRegistry registers the built-in echo and webhook handlers.
func NewHandlerRegistry(cfg config.WebhookConfig) (*job.Registry, error) {
	var oauth *handlers.OAuthConfig
	if cfg.OAuth.Enabled() {
		oauth = &handlers.OAuthConfig{
			TokenURL:     cfg.OAuth.TokenURL,
			ClientID:     cfg.OAuth.ClientID,
			ClientSecret: cfg.OAuth.ClientSecret,
			Scopes:       cfg.OAuth.Scopes,
		}
	}
	webhook, err := handlers.NewWebhook(handlers.WebhookOptions{
		HTTPClient: &http.Client{Timeout: cfg.Timeout},
		OAuth:      oauth,
		Settings: model.HandlerConfig{
			MaxConcurrentJobs: cfg.MaxConcurrentJobs,
			DefaultTimeout:    cfg.Timeout,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("build webhook handler: %w", err)
	}

	registry := job.NewRegistry()
	for _, h := range []job.Handler{handlers.NewEcho(), webhook} {
		if err := registry.Register(h); err != nil {
			return nil, fmt.Errorf("register %s handler: %w", h.JobType(), err)
		}
	}
	return registry, nil
}

func newPrometheusRegistry(
	queue *service.QueueService,
	cfg config.PrometheusConfig,
	logger *slog.Logger,
) (*prometheus.Registry, *metrics.PrometheusObserver, error) {
	reg := prometheus.NewRegistry()
	if err := reg.Register(collectors.NewGoCollector()); err != nil {
		return nil, nil, fmt.Errorf("register go collector: %w", err)
	}
	if err := reg.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
		return nil, nil, fmt.Errorf("register process collector: %w", err)
	}

	observer, err := metrics.NewPrometheusObserver(reg)
	if err != nil {
		return nil, nil, err
	}
	stats, err := metrics.NewQueueStatsCollector(queue, cfg.ScrapeTimeout, logger)
	if err != nil {
		return nil, nil, err
	}
	if err := reg.Register(stats); err != nil {
		return nil, nil, fmt.Errorf("register queue stats collector: %w", err)
	}
	return reg, observer, nil
}

// backgroundService describes a long-running component started for one service mode.
type backgroundService struct {
	mode config.ServiceMode
	name string
	run  func(context.Context) error
}

func (c *Components) backgroundServices(ctx context.Context) ([]backgroundService, error) {
	enabled, err := c.Config.GetEnabledServices()
	if err != nil {
		return nil, fmt.Errorf("determine enabled services: %w", err)
	}

	var (
		services []backgroundService
		executor *jobrunner.Executor
	)
	if enabled[config.ServiceModeWorker] {
		executor, err = c.newExecutor()
		if err != nil {
			return nil, err
		}
		services = append(services, backgroundService{mode: config.ServiceModeWorker, name: "executor", run: executor.Run})
	}
	if enabled[config.ServiceModeReaper] {
		r, err := reaper.NewRunner(reaper.RunnerOptions{
			Queue:   c.Queue,
			Config:  c.Config.Reaper,
			Logger:  c.Logger,
			Metrics: c.Metrics,
		})
		if err != nil {
			return nil, err
		}
		services = append(services, backgroundService{mode: config.ServiceModeReaper, name: "reaper", run: r.Run})
	}
	if enabled[config.ServiceModeScheduler] {
		if c.Config.Scheduler.File == "" {
			c.Logger.WarnContext(ctx, "scheduler enabled without SCHEDULER_FILE; not starting")
		} else {
			r, err := c.newSchedulerRunner()
			if err != nil {
				return nil, err
			}
			services = append(services, backgroundService{mode: config.ServiceModeScheduler, name: "scheduler", run: r.Run})
		}
	}
	if enabled[config.ServiceModeMetrics] {
		opts := MetricsServerOptions{
			Addr:           c.Config.Observability.Prometheus.Addr,
			MaxConnections: c.Config.Observability.Prometheus.MaxConnections,
			Gatherer:       c.Prometheus,
			Queue:          c.Queue,
			Logger:         c.Logger,
		}
		if executor != nil {
			opts.Executor = executor.Metrics
		}
		srv, err := NewMetricsServer(opts)
		if err != nil {
			return nil, err
		}
		services = append(services, backgroundService{mode: config.ServiceModeMetrics, name: "metrics server", run: srv.Run})
	}
	return services, nil
}

func (c *Components) newExecutor() (*jobrunner.Executor, error) {
	cfg := c.Config.Executor
	observers := metrics.Observers{c.promObserver}
	if so := metrics.NewStatsdObserver(c.Metrics); so != nil {
		observers = append(observers, so)
	}
	executor, err := jobrunner.NewExecutor(jobrunner.ExecutorOptions{
		Queue:             c.Queue,
		Handlers:          c.Handlers,
		Notifier:          c.Notifier,
		PollInterval:      cfg.PollInterval,
		MaxConcurrentJobs: cfg.MaxConcurrentJobs,
		DefaultTimeout:    cfg.DefaultTimeout,
		ShutdownTimeout:   cfg.ShutdownTimeout,
		WorkerID:          cfg.WorkerID,
		Logger:            c.Logger,
		Observer:          observers,
	})
	if err != nil {
		return nil, fmt.Errorf("build executor: %w", err)
	}
	return executor, nil
}

func (c *Components) newSchedulerRunner() (*schedrunner.Runner, error) {
	entries, err := domain.LoadScheduleFile(c.Config.Scheduler.File)
	if err != nil {
		return nil, err
	}
	scheduler, err := service.NewSchedulerService(service.SchedulerServiceOptions{
		Entries:  entries,
		Queue:    c.Queue,
		FireKeys: c.Store,
		Logger:   c.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("build scheduler: %w", err)
	}
	return schedrunner.NewRunner(schedrunner.RunnerOptions{
		Scheduler: scheduler,
		Interval:  c.Config.Scheduler.Interval,
		Logger:    c.Logger,
		Metrics:   c.Metrics,
	})
}

// RunServices starts every enabled service and blocks until ctx ends or one of them fails.
// A failing service cancels the others.
func RunServices(ctx context.Context, c *Components) error {
	if c == nil {
		return errors.New("components are required")
	}
	services, err := c.backgroundServices(ctx)
	if err != nil {
		return err
	}
	if len(services) == 0 {
		return errors.New("no runnable services enabled")
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, svc := range services {
		g.Go(func() error {
			c.Logger.InfoContext(gctx, "background service started", "service", svc.name, "mode", svc.mode)
			if err := svc.run(gctx); err != nil {
				return fmt.Errorf("%s failed: %w", svc.name, err)
			}
			c.Logger.InfoContext(gctx, "background service stopped", "service", svc.name)
			return nil
		})
	}
	err = g.Wait()
	c.Notifier.StopAll()
	return err
}

// RunServicesWithShutdown runs RunServices until SIGINT or SIGTERM.
func RunServicesWithShutdown(ctx context.Context, c *Components) error {
	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return RunServices(sigCtx, c)
}
