package job

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRetryPolicy(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		policy, err := NewRetryPolicy(10*time.Second, 4)
		require.NoError(t, err)
		assert.Equal(t, 10*time.Second, policy.BaseDelay())
		assert.Equal(t, 40*time.Second, policy.MaxDelay())
	})

	t.Run("invalid base delay", func(t *testing.T) {
		policy, err := NewRetryPolicy(0, 4)
		require.ErrorIs(t, err, ErrInvalidBaseDelay)
		assert.Nil(t, policy)
	})

	t.Run("zero multiplier uses default", func(t *testing.T) {
		policy, err := NewRetryPolicy(time.Second, 0)
		require.NoError(t, err)
		assert.Equal(t, 300*time.Second, policy.MaxDelay())
	})
}

func TestRetryPolicy_Backoff(t *testing.T) {
	policy := DefaultRetryPolicy()

	tests := []struct {
		attempts int
		want     time.Duration
		source   DelaySource
	}{
		{attempts: 0, want: time.Minute, source: DelaySourceBackoff},
		{attempts: 1, want: time.Minute, source: DelaySourceBackoff},
		{attempts: 2, want: 2 * time.Minute, source: DelaySourceBackoff},
		{attempts: 3, want: 4 * time.Minute, source: DelaySourceBackoff},
		{attempts: 9, want: 256 * time.Minute, source: DelaySourceBackoff},
		{attempts: 10, want: 300 * time.Minute, source: DelaySourceCapped},
		{attempts: 64, want: 300 * time.Minute, source: DelaySourceCapped},
	}

	for _, tt := range tests {
		got, source := policy.Backoff(tt.attempts)
		assert.Equal(t, tt.want, got, "attempts=%d", tt.attempts)
		assert.Equal(t, tt.source, source, "attempts=%d", tt.attempts)
	}
}

func TestRetryPolicy_Decide(t *testing.T) {
	policy := DefaultRetryPolicy()

	t.Run("retries while budget remains", func(t *testing.T) {
		d := policy.Decide(0, 3, nil)
		assert.True(t, d.Retry)
		assert.Equal(t, 1, d.Attempts)
		assert.Equal(t, time.Minute, d.Delay)
	})

	t.Run("exhausts on the last attempt", func(t *testing.T) {
		d := policy.Decide(2, 3, nil)
		assert.False(t, d.Retry)
		assert.Equal(t, 3, d.Attempts)
	})

	t.Run("explicit delay wins", func(t *testing.T) {
		delay := 5 * time.Second
		d := policy.Decide(1, 3, &delay)
		assert.True(t, d.Retry)
		assert.Equal(t, delay, d.Delay)
		assert.Equal(t, DelaySourceExplicit, d.Source)
	})

	t.Run("single attempt budget never retries", func(t *testing.T) {
		d := policy.Decide(0, 1, nil)
		assert.False(t, d.Retry)
		assert.Equal(t, 1, d.Attempts)
	})
}
