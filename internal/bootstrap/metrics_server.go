package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/net/netutil"

	httpx "github.com/target/mmk-jobqueue/internal/http"
	"github.com/target/mmk-jobqueue/internal/observability/metrics"
)

const metricsShutdownTimeout = 10 * time.Second

// MetricsServerOptions configures the ops HTTP server.
type MetricsServerOptions struct {
	Addr           string
	MaxConnections int                 // concurrent connections accepted; non-positive means 16
	Gatherer       prometheus.Gatherer // Optional
	Queue          httpx.Queue         // Required
	Executor       func() metrics.ExecutorSnapshot
	Logger         *slog.Logger
}

// MetricsServer serves /metrics, /healthz, /stats and /jobs/{id}.
type MetricsServer struct {
	server   *http.Server
	maxConns int
	logger   *slog.Logger
}

// NewMetricsServer builds the server without listening.
func NewMetricsServer(opts MetricsServerOptions) (*MetricsServer, error) {
	if opts.Queue == nil {
		return nil, errors.New("queue is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "metrics_server")
	if opts.Addr == "" {
		opts.Addr = ":9090"
	}
	if opts.MaxConnections <= 0 {
		opts.MaxConnections = 16
	}

	handler := httpx.NewRouter(httpx.RouterServices{
		Queue:    opts.Queue,
		Gatherer: opts.Gatherer,
		Executor: opts.Executor,
		Logger:   logger,
	})
	return &MetricsServer{
		server: &http.Server{
			Addr:              opts.Addr,
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		maxConns: opts.MaxConnections,
		logger:   logger,
	}, nil
}

// Handler returns the routed handler.
func (s *MetricsServer) Handler() http.Handler { return s.server.Handler }

// Run listens on the configured address and serves until ctx ends.
func (s *MetricsServer) Run(ctx context.Context) error {
	ln, err := (&net.ListenConfig{}).Listen(ctx, "tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.server.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts at most MaxConnections concurrent connections from ln until ctx ends,
// then shuts down gracefully. Returns nil on shutdown.
func (s *MetricsServer) Serve(ctx context.Context, ln net.Listener) error {
	limited := netutil.LimitListener(ln, s.maxConns)
	s.logger.InfoContext(ctx, "starting metrics server", "addr", ln.Addr().String(), "max_connections", s.maxConns)

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.server.Serve(limited)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve metrics: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), metricsShutdownTimeout)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown metrics server: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve metrics: %w", err)
	}
	s.logger.InfoContext(ctx, "metrics server stopped")
	return nil
}
