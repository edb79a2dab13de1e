// Package resilience re-issues failed backend operations with bounded,
// delayed retries. Whether a failure is worth retrying is decided fresh
// on every attempt, against the error that attempt actually produced.
package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"

	"github.com/carbonlens/carbonlens-cli/internal/apierr"
)

// RetryConfig controls retry behavior.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts (including the first
	// try). A value of 1 means no retries. Default: 4 (one try plus
	// three retries).
	MaxAttempts int

	// Delay is the base wait before a retry. Default: 1s.
	Delay time.Duration

	// MaxDelay caps the computed delay. Default: 30s.
	MaxDelay time.Duration

	// Multiplier scales the delay after each attempt. 1.0 keeps the
	// delay fixed, which is the default for backend calls.
	Multiplier float64

	// JitterFraction adds random jitter as a fraction of the computed
	// delay (0.0 = none). Default: 0.
	JitterFraction float64

	// ShouldRetry overrides the default retryability check. If nil,
	// apierr.ShouldRetry is used.
	ShouldRetry func(err error) bool

	// OnRetry is called before each retry sleep with the attempt number
	// and the error that triggered the retry.
	OnRetry func(attempt int, err error)
}

// DefaultRetryConfig returns the configuration used for backend API
// calls: three fixed-delay retries, one second apart.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 4,
		Delay:       time.Second,
		MaxDelay:    30 * time.Second,
		Multiplier:  1.0,
	}
}

// WithRetries returns DefaultRetryConfig with the retry count replaced.
// maxRetries counts retries, not attempts; 0 disables retrying.
func WithRetries(maxRetries int) RetryConfig {
	cfg := DefaultRetryConfig()
	cfg.MaxAttempts = maxRetries + 1
	return cfg
}

// FromConfig builds a RetryConfig from the flat config-file values.
// Zero or negative values keep the defaults.
func FromConfig(maxRetries, delayMs int, multiplier, jitterFraction float64) RetryConfig {
	cfg := DefaultRetryConfig()
	if maxRetries >= 0 {
		cfg.MaxAttempts = maxRetries + 1
	}
	if delayMs > 0 {
		cfg.Delay = time.Duration(delayMs) * time.Millisecond
	}
	if multiplier > 0 {
		cfg.Multiplier = multiplier
	}
	if jitterFraction > 0 {
		cfg.JitterFraction = jitterFraction
	}
	return cfg
}

// Do executes fn with retry logic according to cfg. Each failure is
// classified anew; non-retryable errors and context cancellation return
// immediately.
func Do(ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) error) error {
	_, err := DoVal(ctx, cfg, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// DoVal executes fn returning a value with retry logic. Same semantics
// as Do but preserves the return value from the successful call.
func DoVal[T any](ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) (T, error)) (T, error) {
	cfg = applyDefaults(cfg)

	shouldRetry := cfg.ShouldRetry
	if shouldRetry == nil {
		shouldRetry = apierr.ShouldRetry
	}

	var zero T
	var lastErr error
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		val, err := fn(ctx)
		if err == nil {
			return val, nil
		}
		lastErr = err

		// Don't retry on context cancellation.
		if ctx.Err() != nil {
			return zero, lastErr
		}

		// Classify the error this attempt produced, not the first one.
		if !shouldRetry(lastErr) {
			return zero, lastErr
		}

		// Don't sleep after the last attempt.
		if attempt >= cfg.MaxAttempts-1 {
			break
		}

		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt+1, lastErr)
		}

		timer := time.NewTimer(computeDelay(attempt, cfg))
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, lastErr
		case <-timer.C:
		}
	}

	return zero, lastErr
}

func applyDefaults(cfg RetryConfig) RetryConfig {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 4
	}
	if cfg.Delay <= 0 {
		cfg.Delay = time.Second
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 30 * time.Second
	}
	if cfg.Multiplier <= 0 {
		cfg.Multiplier = 1.0
	}
	if cfg.JitterFraction < 0 {
		cfg.JitterFraction = 0
	}
	return cfg
}

func computeDelay(attempt int, cfg RetryConfig) time.Duration {
	delay := float64(cfg.Delay) * math.Pow(cfg.Multiplier, float64(attempt))
	if delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}

	if cfg.JitterFraction > 0 {
		jitterRange := delay * cfg.JitterFraction
		delay += (rand.Float64()*2 - 1) * jitterRange
	}

	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}

// RetryLogger returns an OnRetry callback that logs each retry attempt.
func RetryLogger(operation string) func(int, error) {
	return func(attempt int, err error) {
		zap.L().Warn("retrying backend call",
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.String("code", string(apierr.CodeOf(err))),
			zap.Error(err),
		)
	}
}
