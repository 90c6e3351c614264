package bootstrap

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/mmk-jobqueue/config"
)

func TestValidateServiceConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *config.AppConfig
		wantErr string
	}{
		{name: "nil config", cfg: nil, wantErr: "required"},
		{
			name:    "unknown backend",
			cfg:     &config.AppConfig{Store: config.StoreConfig{Backend: "sqlite"}, Services: "worker"},
			wantErr: "invalid store backend",
		},
		{
			name:    "invalid services",
			cfg:     &config.AppConfig{Store: config.StoreConfig{Backend: config.StoreBackendMemory}, Services: "http"},
			wantErr: "invalid service configuration",
		},
		{
			name: "valid",
			cfg:  &config.AppConfig{Store: config.StoreConfig{Backend: config.StoreBackendRedis}, Services: "worker,metrics"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateServiceConfig(tt.cfg)
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestGetEnabledServices(t *testing.T) {
	cfg := &config.AppConfig{Services: "metrics, scheduler,worker"}
	assert.Equal(t, []string{"worker", "scheduler", "metrics"}, GetEnabledServices(cfg))

	assert.Empty(t, GetEnabledServices(&config.AppConfig{Services: "bogus"}))
	assert.Empty(t, GetEnabledServices(nil))
}

func TestLoadConfig(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("SERVICES", "worker")
	t.Setenv("EXECUTOR_MAX_CONCURRENT_JOBS", "-3")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "worker", cfg.Services)
	assert.Equal(t, 1, cfg.Executor.MaxConcurrentJobs, "sanitized")
}

func TestApplyLogLevel(t *testing.T) {
	t.Cleanup(func() { logLevel.Set(slog.LevelInfo) })

	ApplyLogLevel(&config.AppConfig{LogLevel: "debug"})
	assert.Equal(t, slog.LevelDebug, logLevel.Level())

	ApplyLogLevel(nil)
	assert.Equal(t, slog.LevelDebug, logLevel.Level())
}
