package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/target/mmk-jobqueue/config"
	"github.com/target/mmk-jobqueue/internal/bootstrap"
	"github.com/target/mmk-jobqueue/internal/observability/statsd"
)

func main() {
	ctx := context.Background()
	logger := bootstrap.InitLogger()
	if err := run(ctx, logger); err != nil {
		logger.ErrorContext(ctx, "fatal error", "error", err)
		os.Exit(1) //nolint:forbidigo // Main entrypoint should exit with non-zero status on fatal errors.
	}
}

func run(ctx context.Context, logger *slog.Logger) (err error) {
	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		return err
	}
	bootstrap.ApplyLogLevel(&cfg)

	if err = bootstrap.ValidateServiceConfig(&cfg); err != nil {
		return err
	}
	logStartupInfo(ctx, logger, &cfg)

	infra, err := bootstrap.OpenInfrastructure(ctx, bootstrap.InfrastructureOptions{Config: &cfg, Logger: logger})
	if err != nil {
		return err
	}
	defer func() {
		if cerr := infra.Close(); cerr != nil {
			logger.ErrorContext(ctx, "close infrastructure failed", "error", cerr)
		}
	}()

	sink, closeSink, err := statsd.NewSink(statsd.Config{
		Enabled:    cfg.Observability.Metrics.IsEnabled(),
		Address:    cfg.Observability.Metrics.StatsdAddress,
		Prefix:     cfg.Observability.Metrics.Prefix,
		GlobalTags: cfg.Observability.Metrics.Tags,
		Logger:     logger,
	})
	if err != nil {
		// Metrics are best effort; run without them.
		logger.ErrorContext(ctx, "failed to initialise statsd client", "error", err)
		sink, closeSink = statsd.Nop{}, func() error { return nil }
	}
	defer func() {
		if cerr := closeSink(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("close statsd: %w", cerr))
		}
	}()

	components, err := bootstrap.BuildComponents(bootstrap.ComponentsOptions{
		Config:  &cfg,
		Store:   infra.Store,
		Metrics: sink,
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	return bootstrap.RunServicesWithShutdown(ctx, components)
}

func logStartupInfo(ctx context.Context, logger *slog.Logger, cfg *config.AppConfig) {
	logger.InfoContext(ctx, "starting jobqueue service",
		"store_backend", cfg.Store.Backend,
		"enabled_services", bootstrap.GetEnabledServices(cfg),
		"max_concurrent_jobs", cfg.Executor.MaxConcurrentJobs,
	)
}
