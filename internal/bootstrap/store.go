package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/target/mmk-jobqueue/config"
	"github.com/target/mmk-jobqueue/internal/core"
	"github.com/target/mmk-jobqueue/internal/data"
)

// Infrastructure holds the job store and the connections behind it.
type Infrastructure struct {
	Backend config.StoreBackend
	Store   core.JobStore
	DB      *sql.DB               // set for the postgres backend
	Redis   redis.UniversalClient // set for the redis backend
}

// Close releases every open connection.
func (i *Infrastructure) Close() error {
	if i == nil {
		return nil
	}
	var errs []error
	if i.DB != nil {
		if err := i.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
	}
	if i.Redis != nil {
		if err := i.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	return errors.Join(errs...)
}

// InfrastructureOptions controls how OpenInfrastructure prepares the store.
type InfrastructureOptions struct {
	Config *config.AppConfig
	Logger *slog.Logger
	// SkipMigrations leaves the Postgres schema untouched even when RUN_MIGRATIONS_ON_START is set.
	SkipMigrations bool
}

// OpenInfrastructure connects the configured store backend.
func OpenInfrastructure(ctx context.Context, opts InfrastructureOptions) (*Infrastructure, error) {
	cfg := opts.Config
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	dbCfg := DatabaseConfig{DBConfig: cfg.Postgres, RedisConfig: cfg.Redis, Logger: logger}

	switch cfg.Store.Backend {
	case config.StoreBackendMemory, "":
		logger.WarnContext(ctx, "using in-memory job store; jobs are lost on restart")
		return &Infrastructure{Backend: config.StoreBackendMemory, Store: data.NewMemoryStore(nil)}, nil

	case config.StoreBackendRedis:
		client, err := ConnectRedis(ctx, dbCfg)
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		return &Infrastructure{
			Backend: config.StoreBackendRedis,
			Store:   data.NewRedisStore(client, cfg.Queue.KeyPrefix),
			Redis:   client,
		}, nil

	case config.StoreBackendPostgres:
		db, err := ConnectDB(ctx, dbCfg)
		if err != nil {
			return nil, fmt.Errorf("connect db: %w", err)
		}
		if cfg.Postgres.RunMigrationsOnStart && !opts.SkipMigrations {
			if err := RunMigrations(ctx, db, logger); err != nil {
				if cerr := db.Close(); cerr != nil {
					err = errors.Join(err, fmt.Errorf("close database: %w", cerr))
				}
				return nil, err
			}
		} else {
			logger.InfoContext(ctx, "skipping database migrations on startup", "reason", "disabled via config")
		}
		return &Infrastructure{
			Backend: config.StoreBackendPostgres,
			Store:   data.NewPostgresStore(data.PostgresStoreOptions{DB: db}),
			DB:      db,
		}, nil

	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}
