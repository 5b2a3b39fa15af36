package sessions

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func noSleep(context.Context, time.Duration) error { return nil }

func TestRetryPolicySucceedsAfterTransientBusy(t *testing.T) {
	t.Parallel()

	policy := RetryPolicy{
		MaxAttempts: 5,
		Backoff:     500 * time.Millisecond,
		Retryable:   isBusy,
		Sleep:       noSleep,
	}

	calls := 0
	err := policy.Do(context.Background(), nullLogger(), "add", func() error {
		calls++
		if calls < 3 {
			return fmt.Errorf("insert session: %w", ErrStoreBusy)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success once contention resolves, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}

func TestRetryPolicyExhaustionWrapsUnavailable(t *testing.T) {
	t.Parallel()

	policy := RetryPolicy{
		MaxAttempts: 3,
		Backoff:     time.Millisecond,
		Retryable:   isBusy,
		Sleep:       noSleep,
	}

	calls := 0
	err := policy.Do(context.Background(), nullLogger(), "add", func() error {
		calls++
		return ErrStoreBusy
	})
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected the full attempt budget, got %d calls", calls)
	}
}

func TestRetryPolicyDoesNotRetryNonBusyErrors(t *testing.T) {
	t.Parallel()

	policy := RetryPolicy{
		MaxAttempts: 5,
		Backoff:     time.Millisecond,
		Retryable:   isBusy,
		Sleep:       noSleep,
	}

	permanent := errors.New("table is gone")
	calls := 0
	err := policy.Do(context.Background(), nullLogger(), "add", func() error {
		calls++
		return permanent
	})
	if !errors.Is(err, permanent) {
		t.Fatalf("expected the permanent error to surface unchanged, got %v", err)
	}
	if errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("permanent errors must not be dressed up as retry exhaustion")
	}
	if calls != 1 {
		t.Fatalf("expected a single attempt, got %d", calls)
	}
}

func TestRetryPolicyBackoffGrowsLinearly(t *testing.T) {
	t.Parallel()

	var delays []time.Duration
	policy := RetryPolicy{
		MaxAttempts: 3,
		Backoff:     2 * time.Second,
		Grow:        true,
		Retryable:   isBusy,
		Sleep: func(_ context.Context, d time.Duration) error {
			delays = append(delays, d)
			return nil
		},
	}

	_ = policy.Do(context.Background(), nullLogger(), "initialize", func() error {
		return ErrStoreBusy
	})

	want := []time.Duration{2 * time.Second, 4 * time.Second}
	if len(delays) != len(want) {
		t.Fatalf("expected %d sleeps, got %d", len(want), len(delays))
	}
	for i := range want {
		if delays[i] != want[i] {
			t.Fatalf("sleep %d: expected %v, got %v", i, want[i], delays[i])
		}
	}
}

func TestRetryPolicyStopsOnCancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	policy := RetryPolicy{
		MaxAttempts: 5,
		Backoff:     time.Minute,
		Retryable:   isBusy,
	}

	calls := 0
	err := policy.Do(ctx, nullLogger(), "add", func() error {
		calls++
		return ErrStoreBusy
	})
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable on cancelled backoff, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected one attempt before the cancelled sleep, got %d", calls)
	}
}

func TestIsBusyClassification(t *testing.T) {
	t.Parallel()

	if !isBusy(ErrStoreBusy) {
		t.Fatalf("expected ErrStoreBusy to classify as busy")
	}
	if !isBusy(fmt.Errorf("insert session: %w", ErrStoreBusy)) {
		t.Fatalf("expected wrapped ErrStoreBusy to classify as busy")
	}
	if isBusy(errors.New("no such table")) {
		t.Fatalf("expected unrelated errors to not classify as busy")
	}
	if isBusy(nil) {
		t.Fatalf("nil is not busy")
	}
}
