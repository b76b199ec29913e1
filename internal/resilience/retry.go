// Package resilience provides the retry policy used for calls to external hosts.
package resilience

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"
)

// Policy controls retry behavior. The zero multiplier (or 1.0) gives a fixed
// delay between attempts; larger values grow the delay geometrically.
type Policy struct {
	// MaxAttempts is the total number of attempts including the first try.
	// Default: 3.
	MaxAttempts int

	// Delay is the pause after a failed attempt. Default: 5s.
	Delay time.Duration

	// Multiplier scales Delay after each failed attempt. Default: 1.0.
	Multiplier float64

	// MaxDelay caps the computed delay. Default: 60s.
	MaxDelay time.Duration

	// ShouldRetry optionally limits which errors are retried.
	// If nil, every error is retried.
	ShouldRetry func(err error) bool

	// OnRetry is called after each failed attempt that will be retried,
	// with the 1-based attempt number and its error.
	OnRetry func(attempt int, err error)
}

// DefaultPolicy returns three attempts with a fixed 5s pause.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		Delay:       5 * time.Second,
		Multiplier:  1.0,
		MaxDelay:    60 * time.Second,
	}
}

// FromConfig builds a Policy from config values, falling back to
// DefaultPolicy for unset (non-positive) fields.
func FromConfig(maxAttempts, delayMs, maxDelayMs int, multiplier float64) Policy {
	p := DefaultPolicy()
	if maxAttempts > 0 {
		p.MaxAttempts = maxAttempts
	}
	if delayMs > 0 {
		p.Delay = time.Duration(delayMs) * time.Millisecond
	}
	if maxDelayMs > 0 {
		p.MaxDelay = time.Duration(maxDelayMs) * time.Millisecond
	}
	if multiplier > 0 {
		p.Multiplier = multiplier
	}
	return p
}

// Do executes fn until it succeeds, the policy is exhausted, or ctx is done.
// It returns the last error and the number of attempts made.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) (int, error) {
	_, n, err := DoVal(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return n, err
}

// DoVal is Do for functions that return a value. On failure the zero value
// is returned.
func DoVal[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, int, error) {
	p = applyDefaults(p)

	var zero T
	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		val, err := fn(ctx)
		if err == nil {
			return val, attempt, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return zero, attempt, lastErr
		}
		if p.ShouldRetry != nil && !p.ShouldRetry(lastErr) {
			return zero, attempt, lastErr
		}
		// No pause after the final attempt.
		if attempt == p.MaxAttempts {
			break
		}

		if p.OnRetry != nil {
			p.OnRetry(attempt, lastErr)
		}

		timer := time.NewTimer(p.delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, attempt, lastErr
		case <-timer.C:
		}
	}

	return zero, p.MaxAttempts, lastErr
}

func applyDefaults(p Policy) Policy {
	def := DefaultPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.Delay < 0 {
		p.Delay = 0
	}
	if p.Multiplier <= 0 {
		p.Multiplier = 1.0
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = def.MaxDelay
	}
	return p
}

// delay returns the pause after the given 1-based failed attempt.
func (p Policy) delay(attempt int) time.Duration {
	d := float64(p.Delay) * math.Pow(p.Multiplier, float64(attempt-1))
	if d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}
	return time.Duration(d)
}

// RetryLogger returns an OnRetry callback that logs each failed attempt
// with its failure class.
func RetryLogger(operation string, fields ...zap.Field) func(int, error) {
	return func(attempt int, err error) {
		zap.L().Warn("attempt failed, retrying",
			append(fields,
				zap.String("operation", operation),
				zap.Int("attempt", attempt),
				zap.String("failure", Classify(err).String()),
				zap.Error(err),
			)...,
		)
	}
}
