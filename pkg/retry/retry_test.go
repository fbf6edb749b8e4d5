package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "pzgrab/pkg/errors"
)

func fastConfig(maxAttempts int) *Config {
	return &Config{
		MaxAttempts: maxAttempts,
		Backoff:     &ExponentialBackoff{BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2.0},
		RetryIf:     DefaultRetryIf,
		Context:     context.Background(),
	}
}

func TestDoSucceedsFirstTry(t *testing.T) {
	calls := 0
	err := Do(func() error {
		calls++
		return nil
	}, fastConfig(5))

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoRetriesUntilSuccess(t *testing.T) {
	calls := 0
	err := Do(func() error {
		calls++
		if calls < 3 {
			return errs.New(errs.ErrorTypeServerError, 503, "HTTP 503")
		}
		return nil
	}, fastConfig(5))

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoExhaustsAttempts(t *testing.T) {
	calls := 0
	err := Do(func() error {
		calls++
		return errs.New(errs.ErrorTypeNetwork, 0, "connection refused")
	}, fastConfig(3))

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Contains(t, err.Error(), "max retry attempts")
}

func TestDoStopsOnNonRetryableError(t *testing.T) {
	calls := 0
	terminal := errs.New(errs.ErrorTypeNotFound, 404, "HTTP 404")
	err := Do(func() error {
		calls++
		return terminal
	}, fastConfig(5))

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, error(terminal))
}

func TestDoHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := fastConfig(0)
	cfg.Context = ctx
	cfg.Backoff = &ExponentialBackoff{BaseDelay: time.Hour, MaxDelay: time.Hour, Multiplier: 1.0}

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := Do(func() error {
		return errs.New(errs.ErrorTypeNetwork, 0, "down")
	}, cfg)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "retry cancelled")
}

func TestDefaultRetryIf(t *testing.T) {
	assert.False(t, DefaultRetryIf(nil))
	assert.True(t, DefaultRetryIf(errs.New(errs.ErrorTypeNetwork, 0, "down")))
	assert.True(t, DefaultRetryIf(errs.New(errs.ErrorTypeRateLimit, 429, "slow down")))
	assert.False(t, DefaultRetryIf(errs.New(errs.ErrorTypeAuth, 401, "denied")))
	assert.False(t, DefaultRetryIf(context.Canceled))
	assert.True(t, DefaultRetryIf(errors.New("something else")))
}

func TestExponentialBackoffGrows(t *testing.T) {
	eb := &ExponentialBackoff{BaseDelay: time.Second, MaxDelay: time.Minute, Multiplier: 2.0}

	assert.Equal(t, time.Duration(0), eb.NextDelay(0))
	assert.Equal(t, time.Second, eb.NextDelay(1))
	assert.Equal(t, 2*time.Second, eb.NextDelay(2))
	assert.Equal(t, 4*time.Second, eb.NextDelay(3))
	// Capped at MaxDelay
	assert.Equal(t, time.Minute, eb.NextDelay(20))
}

func TestAttemptBackoffRange(t *testing.T) {
	ab := &AttemptBackoff{Slope: 2 * time.Second, Jitter: 500 * time.Millisecond}

	for attempt := 1; attempt <= 5; attempt++ {
		d := ab.NextDelay(attempt)
		base := 2 * time.Second * time.Duration(attempt)
		assert.GreaterOrEqual(t, d, base)
		assert.Less(t, d, base+500*time.Millisecond)
	}

	assert.Equal(t, time.Duration(0), ab.NextDelay(0))
}

func TestWaitCancellable(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	err := Wait(ctx, time.Minute)
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)

	assert.NoError(t, Wait(context.Background(), 0))
}
