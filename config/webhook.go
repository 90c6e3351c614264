package config

import (
	"strings"
	"time"
)

// WebhookConfig configures the built-in webhook handler.
type WebhookConfig struct {
	// Timeout bounds each outbound request.
	Timeout time.Duration `env:"WEBHOOK_TIMEOUT" envDefault:"30s"`

	// MaxConcurrentJobs limits concurrent webhook jobs per process. Zero is unlimited.
	MaxConcurrentJobs int `env:"WEBHOOK_MAX_CONCURRENT_JOBS" envDefault:"0"`

	OAuth WebhookOAuthConfig `envPrefix:"WEBHOOK_OAUTH_"`
}

// WebhookOAuthConfig enables client-credentials auth when TokenURL and ClientID are set.
type WebhookOAuthConfig struct {
	TokenURL     string   `env:"TOKEN_URL"`
	ClientID     string   `env:"CLIENT_ID"`
	ClientSecret string   `env:"CLIENT_SECRET"`
	Scopes       []string `env:"SCOPES"`
}

// Sanitize applies guardrails to webhook configuration values.
func (w *WebhookConfig) Sanitize() {
	if w.Timeout <= 0 {
		w.Timeout = 30 * time.Second
	}
	if w.MaxConcurrentJobs < 0 {
		w.MaxConcurrentJobs = 0
	}
	w.OAuth.TokenURL = strings.TrimSpace(w.OAuth.TokenURL)
	w.OAuth.ClientID = strings.TrimSpace(w.OAuth.ClientID)
}

// Enabled reports whether OAuth is configured.
func (o WebhookOAuthConfig) Enabled() bool {
	return o.TokenURL != "" && o.ClientID != ""
}
