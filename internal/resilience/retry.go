package resilience

import (
	"context"
	"time"
)

// Strategy selects how the inter-attempt delay grows.
type Strategy string

const (
	// StrategyFixed sleeps BaseDelay between every attempt.
	StrategyFixed Strategy = "fixed"
	// StrategyExponential doubles the delay each attempt, capped at MaxDelay.
	StrategyExponential Strategy = "exponential"
)

// Policy is a bounded-retry value object. The two call sites in the system
// deliberately use different policies: the queue worker retries whole
// dispatches on a fixed cadence, while the analyzer HTTP client backs off
// exponentially. Both construct their Policy explicitly from config.
type Policy struct {
	MaxAttempts int
	Strategy    Strategy
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// FixedPolicy returns a constant-delay policy.
func FixedPolicy(attempts int, delay time.Duration) Policy {
	return Policy{MaxAttempts: attempts, Strategy: StrategyFixed, BaseDelay: delay}
}

// ExponentialPolicy returns a doubling policy capped at maxDelay.
func ExponentialPolicy(attempts int, base, maxDelay time.Duration) Policy {
	return Policy{MaxAttempts: attempts, Strategy: StrategyExponential, BaseDelay: base, MaxDelay: maxDelay}
}

// Delay returns the sleep before the given retry. attempt is 1-based: the
// delay after the first failure is Delay(1).
func (p Policy) Delay(attempt int) time.Duration {
	if p.Strategy != StrategyExponential {
		return p.BaseDelay
	}
	d := p.BaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// Do invokes op up to MaxAttempts times, sleeping the policy delay between
// attempts. The error from the final attempt is returned on exhaustion.
// Context cancellation aborts the inter-attempt wait. Callers are responsible
// for only wrapping retryable operations; Do does not inspect error classes.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if attempt == attempts {
			break
		}

		timer := time.NewTimer(p.Delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return lastErr
}
