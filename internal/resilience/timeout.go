package resilience

import (
	"context"
	"fmt"
	"time"
)

// TimeoutError marks a failure caused by the guard's own deadline, as opposed
// to an error produced by the guarded operation.
type TimeoutError struct {
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("operation timed out after %v", e.After)
}

// WithTimeout runs op and waits at most d for it to settle. If the timer wins
// the race the call returns a *TimeoutError; op keeps running in its own
// goroutine (the guard stops waiting, it does not cancel in-flight work beyond
// the context it hands to op). The timer is stopped on both paths.
func WithTimeout[T any](ctx context.Context, d time.Duration, op func(ctx context.Context) (T, error)) (T, error) {
	type outcome struct {
		val T
		err error
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Buffered so a late-finishing op never blocks on the send.
	done := make(chan outcome, 1)
	go func() {
		val, err := op(ctx)
		done <- outcome{val, err}
	}()

	timer := time.NewTimer(d)
	defer timer.Stop()

	var zero T
	select {
	case out := <-done:
		return out.val, out.err
	case <-timer.C:
		return zero, &TimeoutError{After: d}
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
