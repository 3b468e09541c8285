package services

import (
	"context"
	"errors"
	"testing"
	"time"
)

func instantSleeper(recorded *[]time.Duration) func(context.Context, time.Duration) error {
	return func(_ context.Context, delay time.Duration) error {
		*recorded = append(*recorded, delay)
		return nil
	}
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	var slept []time.Duration
	policy := RetryPolicy{MaxAttempts: 4, BaseDelay: time.Second, MaxDelay: 30 * time.Second, Sleeper: instantSleeper(&slept)}

	calls := 0
	err := Retry(context.Background(), policy, func(_ context.Context, attempt int) error {
		calls++
		if attempt != calls {
			t.Fatalf("attempt = %d on call %d", attempt, calls)
		}
		if calls < 3 {
			return Wrap(ErrTransient, "synthesize", "submit", "busy", nil)
		}
		return nil
	}, nil)
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
	// Backoff before attempts 2 and 3: 2s then 4s.
	if len(slept) != 2 || slept[0] != 2*time.Second || slept[1] != 4*time.Second {
		t.Fatalf("sleeps = %v", slept)
	}
}

func TestRetryStopsAtAttemptCeiling(t *testing.T) {
	var slept []time.Duration
	policy := RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second, Sleeper: instantSleeper(&slept)}

	calls := 0
	var observed []int
	err := Retry(context.Background(), policy, func(context.Context, int) error {
		calls++
		return Wrap(ErrTransient, "compose", "submit", "overloaded", nil)
	}, func(attempt int, err error) {
		if err == nil {
			t.Fatal("observe saw nil error")
		}
		observed = append(observed, attempt)
	})
	if err == nil {
		t.Fatal("Retry should fail after exhausting attempts")
	}
	if !errors.Is(err, ErrTransient) {
		t.Fatalf("exhausted error lost classification: %v", err)
	}
	if calls != 3 || len(slept) != 2 {
		t.Fatalf("calls = %d, sleeps = %d", calls, len(slept))
	}
	if len(observed) != 3 || observed[2] != 3 {
		t.Fatalf("observed attempts = %v", observed)
	}
}

func TestRetryReturnsPermanentErrorImmediately(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 5, Sleeper: func(context.Context, time.Duration) error {
		t.Fatal("must not sleep for a permanent error")
		return nil
	}}

	calls := 0
	permanent := Wrap(ErrPermanent, "synthesize", "submit", "voice rejected", nil)
	err := Retry(context.Background(), policy, func(context.Context, int) error {
		calls++
		return permanent
	}, nil)
	if !errors.Is(err, ErrPermanent) {
		t.Fatalf("err = %v", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestRetryHonorsCancellationDuringSleep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	policy := RetryPolicy{MaxAttempts: 3, Sleeper: func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	}}

	err := Retry(ctx, policy, func(context.Context, int) error {
		return Wrap(ErrTransient, "evaluate", "score", "busy", nil)
	}, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestDelayClampsAtMaxDelay(t *testing.T) {
	policy := RetryPolicy{BaseDelay: time.Second, MaxDelay: 5 * time.Second}
	if got := policy.Delay(1); got != time.Second {
		t.Fatalf("Delay(1) = %v", got)
	}
	if got := policy.Delay(3); got != 4*time.Second {
		t.Fatalf("Delay(3) = %v", got)
	}
	if got := policy.Delay(10); got != 5*time.Second {
		t.Fatalf("Delay(10) = %v", got)
	}
}

func TestDefaultRetryPolicyAttempts(t *testing.T) {
	if got := DefaultRetryPolicy().Attempts(); got != 3 {
		t.Fatalf("Attempts = %d, want 3", got)
	}
	if got := (RetryPolicy{}).Attempts(); got != 1 {
		t.Fatalf("zero policy Attempts = %d, want 1", got)
	}
}
