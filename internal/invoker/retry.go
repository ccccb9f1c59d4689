package invoker

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// RetryPolicy defines exponential backoff.
type RetryPolicy struct {
	MaxRetries   int           `yaml:"max_retries"`   // retries after the first attempt
	InitialDelay time.Duration `yaml:"initial_delay"` // delay before the first retry
	MaxDelay     time.Duration `yaml:"max_delay"`
	Multiplier   float64       `yaml:"multiplier"`
	Jitter       bool          `yaml:"jitter"` // adds 0-20% random delay
}

// RetryableFunc is a function that can be retried.
type RetryableFunc[T any] func(ctx context.Context) (T, error)

// RetryWithPolicy runs fn until it succeeds, a non-retryable error occurs, or
// the policy is exhausted. attempts is the number of calls made to fn.
func RetryWithPolicy[T any](
	ctx context.Context,
	policy RetryPolicy,
	fn RetryableFunc[T],
	classify func(error) RetryClass,
	onRetry func(attempt int, delay time.Duration, err error),
) (result T, attempts int, err error) {
	var zero T
	retry := 0
	for {
		attempts++
		result, err = fn(ctx)
		if err == nil {
			return result, attempts, nil
		}

		class := classify(err)
		if class == RetryClassNonRetryable {
			return zero, attempts, err
		}
		if retry >= policy.MaxRetries {
			if policy.MaxRetries == 0 {
				return zero, attempts, err
			}
			return zero, attempts, &RetryExhaustedError{Err: err, Attempts: attempts}
		}
		if class == RetryClassMaybe && retry >= 2 {
			return zero, attempts, &RetryExhaustedError{Err: err, Attempts: attempts, IsGuarded: true}
		}

		delay := calculateDelay(policy, retry)
		if onRetry != nil {
			onRetry(retry+1, delay, err)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, attempts, fmt.Errorf("context cancelled during retry: %w", ctx.Err())
		case <-timer.C:
		}
		retry++
	}
}

// calculateDelay computes InitialDelay * Multiplier^attempt capped at MaxDelay.
func calculateDelay(policy RetryPolicy, attempt int) time.Duration {
	mult := policy.Multiplier
	if mult <= 0 {
		mult = 1
	}
	delay := float64(policy.InitialDelay) * math.Pow(mult, float64(attempt))
	if policy.MaxDelay > 0 && delay > float64(policy.MaxDelay) {
		delay = float64(policy.MaxDelay)
	}
	if policy.Jitter {
		delay += rand.Float64() * 0.2 * delay
	}
	return time.Duration(delay)
}
