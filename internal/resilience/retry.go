package resilience

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// RetryPolicy bounds the exponential backoff applied to transient failures.
type RetryPolicy struct {
	MaxTries        uint
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryPolicy retries twice more after the initial attempt, starting
// at 100ms between attempts.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxTries:        3,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     2 * time.Second,
	}
}

// Retry runs op with bounded exponential backoff. The retryable predicate
// decides per error whether another attempt is worthwhile; non-retryable
// errors abort immediately and are returned as-is.
func Retry[T any](ctx context.Context, policy RetryPolicy, retryable func(error) bool, op func() (T, error)) (T, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = policy.InitialInterval
	bo.MaxInterval = policy.MaxInterval

	return backoff.Retry(ctx, func() (T, error) {
		out, err := op()
		if err != nil && !retryable(err) {
			return out, backoff.Permanent(err)
		}
		return out, err
	}, backoff.WithBackOff(bo), backoff.WithMaxTries(policy.MaxTries))
}
