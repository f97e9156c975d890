package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastPolicy() RetryPolicy {
	return RetryPolicy{MaxTries: 3, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	attempts := 0
	got, err := Retry(context.Background(), fastPolicy(),
		func(error) bool { return true },
		func() (string, error) {
			attempts++
			if attempts < 3 {
				return "", errTest
			}
			return "ok", nil
		})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if got != "ok" || attempts != 3 {
		t.Fatalf("got %q after %d attempts, want ok after 3", got, attempts)
	}
}

func TestRetryStopsAtMaxTries(t *testing.T) {
	attempts := 0
	_, err := Retry(context.Background(), fastPolicy(),
		func(error) bool { return true },
		func() (struct{}, error) {
			attempts++
			return struct{}{}, errTest
		})
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if attempts != 3 {
		t.Fatalf("attempts = %d, want 3", attempts)
	}
}

func TestRetryDoesNotRetryPermanentErrors(t *testing.T) {
	permanent := errors.New("validation: bad params")
	attempts := 0
	_, err := Retry(context.Background(), fastPolicy(),
		func(err error) bool { return !errors.Is(err, permanent) },
		func() (struct{}, error) {
			attempts++
			return struct{}{}, permanent
		})
	if !errors.Is(err, permanent) {
		t.Fatalf("err = %v, want the permanent error", err)
	}
	if attempts != 1 {
		t.Fatalf("attempts = %d, want 1 (no retry)", attempts)
	}
}
