package utils

import (
	"math"
	"time"
)

// ExponentialBackoff implements a capped exponential backoff strategy. It is
// used for retransmission timers, so it carries no jitter: timer expiry must be
// reproducible for a fixed seed.
type ExponentialBackoff struct {
	BaseDelay  time.Duration
	Multiplier float64
	MaxDelay   time.Duration
}

// NewExponentialBackoff creates a new exponential backoff strategy
func NewExponentialBackoff(baseDelay, maxDelay time.Duration, multiplier float64) *ExponentialBackoff {
	if multiplier <= 0 {
		multiplier = 2.0
	}
	return &ExponentialBackoff{
		BaseDelay:  baseDelay,
		Multiplier: multiplier,
		MaxDelay:   maxDelay,
	}
}

// NextDelay returns the exponentially increasing delay
func (eb *ExponentialBackoff) NextDelay(attempt int) time.Duration {
	delay := float64(eb.BaseDelay) * math.Pow(eb.Multiplier, float64(attempt))
	if eb.MaxDelay > 0 && delay > float64(eb.MaxDelay) {
		return eb.MaxDelay
	}
	return time.Duration(delay)
}

// Grow applies one backoff step to an arbitrary current delay, capped at MaxDelay.
func (eb *ExponentialBackoff) Grow(current time.Duration) time.Duration {
	next := time.Duration(float64(current) * eb.Multiplier)
	if eb.MaxDelay > 0 && next > eb.MaxDelay {
		return eb.MaxDelay
	}
	return next
}
