package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/stylesync/internal/config"
)

func TestDefaultPolicy(t *testing.T) {
	p := DefaultPolicy()
	assert.Equal(t, config.RetryBackoffExponential, p.Mode)
	assert.Equal(t, time.Second, p.Initial)
	assert.Equal(t, 30*time.Second, p.Max)
	assert.Zero(t, p.MaxRetries)
}

// initial > max is clamped.
func TestNewPolicyOverrides(t *testing.T) {
	p := NewPolicy(config.RetryBackoffFixed, 5*time.Second, 2*time.Second, 5)
	assert.Equal(t, 2*time.Second, p.Initial)
	assert.Equal(t, 2*time.Second, p.Max)
	assert.Equal(t, config.RetryBackoffFixed, p.Mode)
	assert.Equal(t, 5, p.MaxRetries)

	p = NewPolicy("bogus", 0, 0, -1)
	assert.Equal(t, DefaultPolicy(), p)
}

func TestFromDownload(t *testing.T) {
	p := FromDownload(&config.DownloadConfig{
		Retries:           3,
		RetryBackoff:      config.RetryBackoffLinear,
		RetryInitialDelay: "200ms",
		RetryMaxDelay:     "1s",
	})
	assert.Equal(t, 3, p.MaxRetries)
	assert.Equal(t, config.RetryBackoffLinear, p.Mode)
	assert.Equal(t, 200*time.Millisecond, p.Initial)
	assert.Equal(t, time.Second, p.Max)

	assert.Equal(t, DefaultPolicy(), FromDownload(nil))
}

func TestDelayModes(t *testing.T) {
	fixed := NewPolicy(config.RetryBackoffFixed, 100*time.Millisecond, 500*time.Millisecond, 3)
	for i := 1; i <= 3; i++ {
		assert.Equal(t, 100*time.Millisecond, fixed.Delay(i))
	}

	linear := NewPolicy(config.RetryBackoffLinear, 100*time.Millisecond, 250*time.Millisecond, 5)
	for attempt, want := range map[int]time.Duration{1: 100 * time.Millisecond, 2: 200 * time.Millisecond, 3: 250 * time.Millisecond, 4: 250 * time.Millisecond} {
		assert.Equal(t, want, linear.Delay(attempt), "linear attempt %d", attempt)
	}

	exp := NewPolicy(config.RetryBackoffExponential, 50*time.Millisecond, 160*time.Millisecond, 5)
	for attempt, want := range map[int]time.Duration{1: 50 * time.Millisecond, 2: 100 * time.Millisecond, 3: 160 * time.Millisecond, 64: 160 * time.Millisecond} {
		assert.Equal(t, want, exp.Delay(attempt), "exponential attempt %d", attempt)
	}

	assert.Zero(t, exp.Delay(0))
	assert.Zero(t, exp.Delay(-1))
}

func TestValidate(t *testing.T) {
	require.Error(t, Policy{Initial: 0, Max: time.Second}.Validate())
	require.Error(t, Policy{Initial: time.Second, Max: 0}.Validate())
	require.Error(t, Policy{Initial: time.Second, Max: time.Second, MaxRetries: -1}.Validate())
	require.NoError(t, DefaultPolicy().Validate())
}

func TestDo(t *testing.T) {
	transient := errors.New("connection reset")
	fatal := errors.New("status 404")
	p := NewPolicy(config.RetryBackoffFixed, time.Millisecond, time.Millisecond, 2)

	t.Run("succeeds after retries", func(t *testing.T) {
		calls, retries := 0, 0
		err := p.Do(context.Background(), func() error {
			calls++
			if calls < 3 {
				return transient
			}
			return nil
		}, nil, func(int, time.Duration, error) { retries++ })
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
		assert.Equal(t, 2, retries)
	})

	t.Run("budget exhausted", func(t *testing.T) {
		calls := 0
		err := p.Do(context.Background(), func() error { calls++; return transient }, nil, nil)
		require.ErrorIs(t, err, transient)
		assert.Equal(t, 3, calls)
	})

	t.Run("non retryable stops immediately", func(t *testing.T) {
		calls := 0
		err := p.Do(context.Background(), func() error { calls++; return fatal },
			func(err error) bool { return !errors.Is(err, fatal) }, nil)
		require.ErrorIs(t, err, fatal)
		assert.Equal(t, 1, calls)
	})

	t.Run("context cancelled while waiting", func(t *testing.T) {
		slow := NewPolicy(config.RetryBackoffFixed, time.Hour, time.Hour, 1)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := slow.Do(ctx, func() error { return transient }, nil, nil)
		require.ErrorIs(t, err, transient)
		require.ErrorIs(t, err, context.Canceled)
	})
}
