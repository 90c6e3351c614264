package job

import (
	"errors"
	"time"
)

// ErrInvalidBaseDelay indicates the configured retry base delay is not positive.
var ErrInvalidBaseDelay = errors.New("retry base delay must be positive")

const (
	// DefaultRetryBaseDelay is the delay before the first retry.
	DefaultRetryBaseDelay = 60 * time.Second
	// DefaultRetryMaxMultiplier caps the exponential growth of the retry delay.
	DefaultRetryMaxMultiplier = 300
)

// DelaySource identifies how a retry delay was resolved.
type DelaySource string

const (
	// DelaySourceExplicit indicates the handler supplied the delay.
	DelaySourceExplicit DelaySource = "explicit"
	// DelaySourceBackoff indicates the exponential backoff was used.
	DelaySourceBackoff DelaySource = "backoff"
	// DelaySourceCapped indicates the backoff hit the maximum multiplier.
	DelaySourceCapped DelaySource = "capped"
)

// RetryPolicy decides whether a failed attempt is retried and how long to wait.
type RetryPolicy struct {
	baseDelay     time.Duration
	maxMultiplier int64
}

// NewRetryPolicy constructs a RetryPolicy. A non-positive maxMultiplier uses the default.
func NewRetryPolicy(baseDelay time.Duration, maxMultiplier int) (*RetryPolicy, error) {
	if baseDelay <= 0 {
		return nil, ErrInvalidBaseDelay
	}
	if maxMultiplier <= 0 {
		maxMultiplier = DefaultRetryMaxMultiplier
	}
	return &RetryPolicy{baseDelay: baseDelay, maxMultiplier: int64(maxMultiplier)}, nil
}

// DefaultRetryPolicy returns the policy with a 60s base delay capped at 300x.
func DefaultRetryPolicy() *RetryPolicy {
	return &RetryPolicy{baseDelay: DefaultRetryBaseDelay, maxMultiplier: DefaultRetryMaxMultiplier}
}

// BaseDelay returns the configured base delay.
func (p *RetryPolicy) BaseDelay() time.Duration {
	if p == nil {
		return DefaultRetryBaseDelay
	}
	return p.baseDelay
}

// MaxDelay returns the largest delay the backoff can produce.
func (p *RetryPolicy) MaxDelay() time.Duration {
	if p == nil {
		return DefaultRetryBaseDelay * DefaultRetryMaxMultiplier
	}
	return p.baseDelay * time.Duration(p.maxMultiplier)
}

// RetryDecision captures the outcome of a failed attempt.
type RetryDecision struct {
	// Attempts is the attempt count after this failure.
	Attempts int
	Retry    bool
	Delay    time.Duration
	Source   DelaySource
}

// Decide increments attempts and reports whether another attempt is allowed.
// attempts is the count before this failure; requested overrides the backoff when set.
func (p *RetryPolicy) Decide(attempts, maxAttempts int, requested *time.Duration) RetryDecision {
	d := RetryDecision{Attempts: attempts + 1}
	if d.Attempts >= maxAttempts {
		return d
	}
	d.Retry = true
	if requested != nil && *requested >= 0 {
		d.Delay = *requested
		d.Source = DelaySourceExplicit
		return d
	}
	d.Delay, d.Source = p.Backoff(d.Attempts)
	return d
}

// Backoff returns min(2^(attempts-1), maxMultiplier) * baseDelay.
func (p *RetryPolicy) Backoff(attempts int) (time.Duration, DelaySource) {
	if p == nil {
		p = DefaultRetryPolicy()
	}
	if attempts < 1 {
		attempts = 1
	}
	multiplier := int64(1)
	for i := 1; i < attempts; i++ {
		multiplier *= 2
		if multiplier >= p.maxMultiplier {
			return p.MaxDelay(), DelaySourceCapped
		}
	}
	if multiplier >= p.maxMultiplier {
		return p.MaxDelay(), DelaySourceCapped
	}
	return p.baseDelay * time.Duration(multiplier), DelaySourceBackoff
}
