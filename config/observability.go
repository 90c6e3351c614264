package config

import (
	"strings"
	"time"
)

const defaultMetricsPrefix = "jobqueue"

// ObservabilityConfig groups configuration that controls metrics emission and exposure.
type ObservabilityConfig struct {
	Metrics    ObservabilityMetricsConfig
	Prometheus PrometheusConfig
}

// Sanitize applies guardrails to observability sub-configs.
func (c *ObservabilityConfig) Sanitize() {
	c.Metrics.Sanitize()
	c.Prometheus.Sanitize()
}

// ObservabilityMetricsConfig controls emission of metrics to external sinks such as StatsD.
type ObservabilityMetricsConfig struct {
	Enabled       bool              `env:"OBSERVABILITY_METRICS_ENABLED"        envDefault:"false"`
	StatsdAddress string            `env:"OBSERVABILITY_METRICS_STATSD_ADDRESS" envDefault:"127.0.0.1:8125"`
	Prefix        string            `env:"OBSERVABILITY_METRICS_PREFIX"         envDefault:"jobqueue"`
	Tags          map[string]string `env:"OBSERVABILITY_METRICS_TAGS"`
}

// Sanitize normalises derived fields and enforces safe defaults.
func (c *ObservabilityMetricsConfig) Sanitize() {
	c.StatsdAddress = strings.TrimSpace(c.StatsdAddress)
	if c.StatsdAddress == "" {
		c.Enabled = false
	}
	if c.Prefix = strings.TrimSpace(c.Prefix); c.Prefix == "" {
		c.Prefix = defaultMetricsPrefix
	}
}

// IsEnabled returns true when metrics emission is active after sanitisation.
func (c *ObservabilityMetricsConfig) IsEnabled() bool {
	return c.Enabled && c.StatsdAddress != ""
}

// PrometheusConfig controls the metrics HTTP server.
type PrometheusConfig struct {
	Addr string `env:"OBSERVABILITY_PROMETHEUS_ADDR" envDefault:":9090"`

	// MaxConnections caps concurrent connections to the metrics server.
	MaxConnections int `env:"OBSERVABILITY_PROMETHEUS_MAX_CONNECTIONS" envDefault:"16"`

	// ScrapeTimeout bounds the queue stats read behind each scrape.
	ScrapeTimeout time.Duration `env:"OBSERVABILITY_PROMETHEUS_SCRAPE_TIMEOUT" envDefault:"5s"`
}

// Sanitize normalises the metrics server configuration.
func (c *PrometheusConfig) Sanitize() {
	if c.Addr = strings.TrimSpace(c.Addr); c.Addr == "" {
		c.Addr = ":9090"
	}
	if c.MaxConnections < 1 {
		c.MaxConnections = 1
	}
	if c.ScrapeTimeout <= 0 {
		c.ScrapeTimeout = 5 * time.Second
	}
}
