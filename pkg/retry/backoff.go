package retry

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// BackoffStrategy computes the delay before a retry attempt
type BackoffStrategy interface {
	// NextDelay returns the delay before the given attempt (1-based)
	NextDelay(attempt int) time.Duration
}

// ExponentialBackoff implements exponential backoff with jitter. It is the
// strategy used between transport-level retries.
type ExponentialBackoff struct {
	BaseDelay    time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	JitterFactor float64
}

// DefaultExponentialBackoff returns the transport backoff: 1s doubling,
// capped at 60s
func DefaultExponentialBackoff() *ExponentialBackoff {
	return &ExponentialBackoff{
		BaseDelay:    1 * time.Second,
		MaxDelay:     60 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.1,
	}
}

// NextDelay calculates the next delay with exponential backoff and jitter
func (eb *ExponentialBackoff) NextDelay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}

	delay := float64(eb.BaseDelay) * math.Pow(eb.Multiplier, float64(attempt-1))
	if delay > float64(eb.MaxDelay) {
		delay = float64(eb.MaxDelay)
	}

	if eb.JitterFactor > 0 {
		jitter := delay * eb.JitterFactor
		delay += (rand.Float64() * 2 * jitter) - jitter
	}

	if delay < 0 {
		delay = 0
	}

	return time.Duration(delay)
}

// AttemptBackoff scales linearly with the attempt index plus a uniform
// jitter. It is the strategy used between whole-operation attempts:
// Slope*attempt + uniform(0, Jitter).
type AttemptBackoff struct {
	Slope  time.Duration
	Jitter time.Duration
}

// DefaultAttemptBackoff returns the whole-operation backoff:
// 2s per attempt plus up to 500ms of jitter
func DefaultAttemptBackoff() *AttemptBackoff {
	return &AttemptBackoff{
		Slope:  2 * time.Second,
		Jitter: 500 * time.Millisecond,
	}
}

// NextDelay returns the delay before the given attempt
func (ab *AttemptBackoff) NextDelay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	delay := ab.Slope * time.Duration(attempt)
	if ab.Jitter > 0 {
		delay += time.Duration(rand.Int63n(int64(ab.Jitter)))
	}
	return delay
}

// Wait sleeps for the given delay or returns early when the context is
// cancelled
func Wait(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
