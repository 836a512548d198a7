// Package retry provides capped exponential backoff for provider calls.
//
// Providers translate transport failures into the sentinel errors below,
// usually via ClassifyStatus, and WithRetry re-runs anything whose error
// matches the configured retryable set. Everything else fails fast.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"net/http"
	"time"
)

// Sentinel errors for transient provider failures.
var (
	ErrRateLimited = errors.New("agentloom: rate limit exceeded")
	ErrTimeout     = errors.New("agentloom: request timeout")
	ErrServerError = errors.New("agentloom: server error (5xx)")
)

// RetryConfig controls how many times a call is re-attempted and how long
// to wait between attempts.
type RetryConfig struct {
	MaxRetries      int           // retries after the first attempt; 0 disables retrying
	InitialDelay    time.Duration // backoff before the first retry
	MaxDelay        time.Duration // ceiling for any single backoff
	Multiplier      float64       // growth factor per attempt; 2.0 doubles each time
	Jitter          float64       // fraction of the delay randomized in both directions, 0..1
	RetryableErrors []error       // errors worth re-attempting
}

// DefaultRetryConfig retries the three transient sentinels up to three times,
// doubling from one second with 20% jitter.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   3,
		InitialDelay: time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		Jitter:       0.2,
		RetryableErrors: []error{
			ErrRateLimited,
			ErrTimeout,
			ErrServerError,
		},
	}
}

// IsRetryable reports whether err matches any of the configured retryable
// errors. A nil error is never retryable.
func (c RetryConfig) IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	for _, sentinel := range c.RetryableErrors {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}

// CalculateDelay returns the backoff for a zero-based attempt number.
// Attempt 0 waits InitialDelay; later attempts grow by Multiplier, get
// Jitter applied, and are clamped to MaxDelay.
func (c RetryConfig) CalculateDelay(attempt int) time.Duration {
	if attempt <= 0 {
		return c.InitialDelay
	}

	backoff := float64(c.InitialDelay) * math.Pow(c.Multiplier, float64(attempt))
	if c.Jitter > 0 {
		backoff *= 1 + c.Jitter*(2*rand.Float64()-1)
	}
	if d := time.Duration(backoff); d < c.MaxDelay {
		return d
	}
	return c.MaxDelay
}

// ClassifyStatus maps an HTTP status onto a retryable sentinel, or nil for
// statuses that a retry cannot fix.
func ClassifyStatus(statusCode int) error {
	switch {
	case statusCode == http.StatusTooManyRequests:
		return ErrRateLimited
	case statusCode == http.StatusRequestTimeout || statusCode == http.StatusGatewayTimeout:
		return ErrTimeout
	case statusCode >= 500:
		return ErrServerError
	}
	return nil
}

// WithRetry runs fn until it succeeds, returns a non-retryable error, or the
// retry budget is spent. The context is honored both between attempts and
// while waiting out a backoff.
func WithRetry[T any](ctx context.Context, cfg RetryConfig, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, fmt.Errorf("retry abandoned: %w", err)
		}

		result, err := fn()
		if err == nil {
			if attempt > 0 {
				slog.Info("call recovered after retry", "attempt", attempt)
			}
			return result, nil
		}
		if !cfg.IsRetryable(err) {
			return zero, fmt.Errorf("non-retryable error: %w", err)
		}

		lastErr = err
		if attempt >= cfg.MaxRetries {
			break
		}

		delay := cfg.CalculateDelay(attempt)
		slog.Warn("retryable call failed, backing off",
			"attempt", attempt+1,
			"max_retries", cfg.MaxRetries,
			"delay", delay,
			"error", err,
		)
		if err := wait(ctx, delay); err != nil {
			return zero, fmt.Errorf("retry backoff interrupted: %w", err)
		}
	}

	return zero, fmt.Errorf("max retries (%d) exceeded: %w", cfg.MaxRetries, lastErr)
}

// wait blocks for d or until ctx is done, whichever comes first.
func wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
