package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/target/mmk-jobqueue/config"
	"github.com/target/mmk-jobqueue/internal/bootstrap"
	"github.com/target/mmk-jobqueue/internal/domain/model"
)

const defaultMigrationTimeout = 5 * time.Minute

// adminQueue is the queue surface the CLI drives.
type adminQueue interface {
	Enqueue(ctx context.Context, req *model.EnqueueRequest) (string, error)
	GetStatus(ctx context.Context, id string) (*model.JobStatus, error)
	CancelJob(ctx context.Context, id string) (bool, error)
	Stats(ctx context.Context) (model.QueueStats, error)
	CleanupOldJobs(ctx context.Context, olderThan time.Duration) (int64, error)
	ReclaimStale(ctx context.Context) (int, error)
}

type app struct {
	logger *slog.Logger
	out    io.Writer
	cfg    config.AppConfig

	loadConfig func() (config.AppConfig, error)
	openQueue  func(ctx context.Context, cfg *config.AppConfig) (adminQueue, func() error, error)
	migrate    func(ctx context.Context, cfg *config.AppConfig) error
}

func newApp(logger *slog.Logger, out io.Writer) *app {
	a := &app{logger: logger, out: out, loadConfig: bootstrap.LoadConfig}
	a.openQueue = a.openStoreQueue
	a.migrate = a.runMigrations
	return a
}

var errSharedStoreRequired = errors.New("admin commands need a shared store; set STORE_BACKEND to redis or postgres")

func (a *app) openStoreQueue(ctx context.Context, cfg *config.AppConfig) (adminQueue, func() error, error) {
	if cfg.Store.Backend == config.StoreBackendMemory {
		return nil, nil, errSharedStoreRequired
	}
	infra, err := bootstrap.OpenInfrastructure(ctx, bootstrap.InfrastructureOptions{
		Config:         cfg,
		Logger:         a.logger,
		SkipMigrations: true,
	})
	if err != nil {
		return nil, nil, err
	}
	components, err := bootstrap.BuildComponents(bootstrap.ComponentsOptions{
		Config: cfg,
		Store:  infra.Store,
		Logger: a.logger,
	})
	if err != nil {
		return nil, nil, errors.Join(err, infra.Close())
	}
	return components.Queue, infra.Close, nil
}

func (a *app) runMigrations(ctx context.Context, cfg *config.AppConfig) error {
	ctx, cancel := context.WithTimeout(ctx, defaultMigrationTimeout)
	defer cancel()

	db, err := bootstrap.ConnectDB(ctx, bootstrap.DatabaseConfig{DBConfig: cfg.Postgres, Logger: a.logger})
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			a.logger.ErrorContext(ctx, "close database failed", "error", cerr)
		}
	}()
	return bootstrap.RunMigrations(ctx, db, a.logger)
}

// withQueue opens the queue for one command and closes it afterwards.
func (a *app) withQueue(ctx context.Context, fn func(adminQueue) error) (err error) {
	q, closeFn, err := a.openQueue(ctx, &a.cfg)
	if err != nil {
		return err
	}
	defer func() {
		if closeFn != nil {
			if cerr := closeFn(); cerr != nil {
				err = errors.Join(err, fmt.Errorf("close store: %w", cerr))
			}
		}
	}()
	return fn(q)
}
