package retry

import (
	"context"
	"errors"
	"net"
	"time"
)

// Decider reports whether err should be retried after attempt (1-based) and
// how long to wait before the next attempt.
type Decider func(err error, attempt int) (time.Duration, bool)

// Policy bounds a retry loop. MaxAttempts counts the first call.
type Policy struct {
	MaxAttempts int
	Decide      Decider
}

// Do runs fn until it succeeds, the policy declines a retry, attempts run out,
// or ctx is done. The last error from fn is returned.
func Do(ctx context.Context, policy Policy, fn func(ctx context.Context) error) error {
	_, err := DoValue(ctx, policy, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// DoValue is Do for calls that produce a value.
func DoValue[T any](ctx context.Context, policy Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	attempts := policy.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var (
		zero    T
		lastErr error
	)
	for attempt := 1; attempt <= attempts; attempt++ {
		value, err := fn(ctx)
		if err == nil {
			return value, nil
		}
		lastErr = err

		if attempt == attempts || policy.Decide == nil {
			break
		}
		delay, ok := policy.Decide(err, attempt)
		if !ok {
			break
		}
		if err := sleep(ctx, delay); err != nil {
			return zero, lastErr
		}
	}

	return zero, lastErr
}

// OnTimeout retries only timeouts, waiting delay multiplied by the attempt number.
func OnTimeout(delay time.Duration) Decider {
	return func(err error, attempt int) (time.Duration, bool) {
		if !IsTimeout(err) {
			return 0, false
		}
		return time.Duration(attempt) * delay, true
	}
}

// AfterServerDelay retries errors for which retryAfter reports a server-provided wait.
func AfterServerDelay(retryAfter func(error) (time.Duration, bool)) Decider {
	return func(err error, _ int) (time.Duration, bool) {
		if retryAfter == nil {
			return 0, false
		}
		return retryAfter(err)
	}
}

// IsTimeout reports whether err is a deadline or network timeout.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func sleep(ctx context.Context, delay time.Duration) error {
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
