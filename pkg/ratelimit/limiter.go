package ratelimit

import (
	"sync"
	"time"
)

// Limiter paces outbound requests
type Limiter interface {
	// Allow reports whether a request may proceed now
	Allow() bool
	// Wait blocks until the limiter allows another request
	Wait()
	// Reset restores the limiter to its initial state
	Reset()
}

// TokenBucket is a token bucket limiter refilled in full once per period
type TokenBucket struct {
	capacity     int
	tokens       int
	refillPeriod time.Duration
	lastRefill   time.Time
	mu           sync.Mutex
}

// NewTokenBucket creates a token bucket with the given capacity per period
func NewTokenBucket(capacity int, refillPeriod time.Duration) *TokenBucket {
	return &TokenBucket{
		capacity:     capacity,
		tokens:       capacity,
		refillPeriod: refillPeriod,
		lastRefill:   time.Now(),
	}
}

// PerMinute returns a limiter allowing rpm requests per minute, or an
// unlimited limiter when rpm is zero
func PerMinute(rpm int) Limiter {
	if rpm <= 0 {
		return nopLimiter{}
	}
	return NewTokenBucket(rpm, time.Minute)
}

// Allow consumes a token if one is available
func (tb *TokenBucket) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refill()

	if tb.tokens > 0 {
		tb.tokens--
		return true
	}

	return false
}

// Wait blocks until a token is available
func (tb *TokenBucket) Wait() {
	for !tb.Allow() {
		tb.mu.Lock()
		untilRefill := tb.refillPeriod - time.Since(tb.lastRefill)
		tb.mu.Unlock()

		if untilRefill > 0 {
			time.Sleep(untilRefill)
		} else {
			time.Sleep(100 * time.Millisecond)
		}
	}
}

// Reset restores the bucket to full capacity
func (tb *TokenBucket) Reset() {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.tokens = tb.capacity
	tb.lastRefill = time.Now()
}

func (tb *TokenBucket) refill() {
	now := time.Now()
	if now.Sub(tb.lastRefill) >= tb.refillPeriod {
		tb.tokens = tb.capacity
		tb.lastRefill = now
	}
}

type nopLimiter struct{}

func (nopLimiter) Allow() bool { return true }
func (nopLimiter) Wait()       {}
func (nopLimiter) Reset()      {}
