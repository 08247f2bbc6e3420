package llm

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryConfig holds retry configuration for LLM requests.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts, first call included.
	MaxAttempts int

	// BackoffBase is the wait before the second attempt.
	BackoffBase time.Duration

	// BackoffMultiplier is applied to the wait on each retry.
	BackoffMultiplier float64

	// MaxBackoff caps a single wait.
	MaxBackoff time.Duration

	// Jitter randomizes each wait by ±Jitter. Zero keeps waits at exact powers of the multiplier.
	Jitter float64
}

// DefaultRetryConfig returns 3 attempts waiting 2s then 4s, capped at 30s.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		BackoffBase:       2 * time.Second,
		BackoffMultiplier: 2.0,
		MaxBackoff:        30 * time.Second,
	}
}

func (c RetryConfig) normalized() RetryConfig {
	def := DefaultRetryConfig()
	if c.MaxAttempts < 1 {
		c.MaxAttempts = 1
	}
	if c.BackoffBase < 0 {
		c.BackoffBase = 0
	}
	if c.BackoffMultiplier < 1 {
		c.BackoffMultiplier = def.BackoffMultiplier
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = def.MaxBackoff
	}
	if c.Jitter < 0 || c.Jitter >= 1 {
		c.Jitter = 0
	}
	return c
}

func (c RetryConfig) backOff(ctx context.Context) backoff.BackOff {
	c = c.normalized()
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = c.BackoffBase
	exp.Multiplier = c.BackoffMultiplier
	exp.MaxInterval = c.MaxBackoff
	exp.RandomizationFactor = c.Jitter
	exp.MaxElapsedTime = 0
	exp.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(c.MaxAttempts-1)), ctx)
}

// RetryNotify is called before each wait with the failed attempt number and its error.
type RetryNotify func(attempt int, err error, wait time.Duration)

// Retry runs op until it succeeds, returns a FatalError, the context ends, or attempts run out.
// Attempts are numbered from 1. The last op error is returned on exhaustion.
func Retry(ctx context.Context, cfg RetryConfig, op func(ctx context.Context, attempt int) error, notify RetryNotify) error {
	attempt := 0
	operation := func() error {
		attempt++
		err := op(ctx, attempt)
		if err == nil {
			return nil
		}
		if IsFatal(err) || errors.Is(err, context.Canceled) {
			return backoff.Permanent(err)
		}
		return err
	}
	var onRetry backoff.Notify
	if notify != nil {
		onRetry = func(err error, wait time.Duration) {
			notify(attempt, err, wait)
		}
	}
	return backoff.RetryNotify(operation, cfg.backOff(ctx), onRetry)
}
