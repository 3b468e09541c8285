package services

import (
	"context"
	"fmt"
	"time"
)

const (
	defaultRetryAttempts  = 3
	defaultRetryBaseDelay = 1 * time.Second
	defaultRetryMaxDelay  = 30 * time.Second
)

// RetryPolicy bounds how often a transient failure is re-attempted and how
// long to wait between attempts. Delays grow exponentially from BaseDelay
// and are clamped at MaxDelay.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration

	// Sleeper overrides how delays are performed; tests inject a recorder.
	Sleeper func(context.Context, time.Duration) error
}

// DefaultRetryPolicy returns the policy applied to billable stages when the
// configuration does not override it.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: defaultRetryAttempts,
		BaseDelay:   defaultRetryBaseDelay,
		MaxDelay:    defaultRetryMaxDelay,
	}
}

// Attempts returns the effective attempt ceiling.
func (p RetryPolicy) Attempts() int {
	if p.MaxAttempts <= 0 {
		return 1
	}
	return p.MaxAttempts
}

// Delay computes the backoff before the given 1-based attempt number.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	base := p.BaseDelay
	if base <= 0 {
		base = defaultRetryBaseDelay
	}
	maxDelay := p.MaxDelay
	if maxDelay <= 0 {
		maxDelay = defaultRetryMaxDelay
	}
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maxDelay {
			return maxDelay
		}
	}
	if delay > maxDelay {
		return maxDelay
	}
	return delay
}

// Retry runs fn up to the attempt ceiling, sleeping between attempts.
// Non-retryable errors (permanent, configuration, cap, cancellation) are
// returned immediately. The attempt callback, when set, observes every
// attempt outcome before the classification is applied.
func Retry(ctx context.Context, policy RetryPolicy, fn func(ctx context.Context, attempt int) error, observe func(attempt int, err error)) error {
	attempts := policy.Attempts()
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		err := fn(ctx, attempt)
		if observe != nil {
			observe(attempt, err)
		}
		if err == nil {
			return nil
		}
		lastErr = err
		if !Retryable(err) {
			return err
		}
		if attempt == attempts {
			break
		}
		if sleepErr := policy.sleep(ctx, policy.Delay(attempt+1)); sleepErr != nil {
			return sleepErr
		}
	}

	return fmt.Errorf("failed after %d attempts: %w", attempts, lastErr)
}

func (p RetryPolicy) sleep(ctx context.Context, delay time.Duration) error {
	if p.Sleeper != nil {
		return p.Sleeper(ctx, delay)
	}
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
