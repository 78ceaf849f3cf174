package resilience

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestRetrySucceedsFirstAttempt(t *testing.T) {
	calls := 0
	p := FixedPolicy(3, time.Millisecond)
	err := p.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected exactly 1 call, got %d", calls)
	}
}

func TestRetryExhaustionReturnsLastError(t *testing.T) {
	calls := 0
	p := FixedPolicy(3, time.Millisecond)
	err := p.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return fmt.Errorf("attempt %d failed", calls)
	})
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
	if err == nil || err.Error() != "attempt 3 failed" {
		t.Errorf("expected error from 3rd attempt, got %v", err)
	}
}

func TestRetryRecoversMidway(t *testing.T) {
	calls := 0
	p := FixedPolicy(3, time.Millisecond)
	err := p.Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 2 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 2 {
		t.Errorf("expected 2 calls, got %d", calls)
	}
}

func TestRetryContextCancelAbortsWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := FixedPolicy(3, time.Minute)

	calls := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	err := p.Do(ctx, func(ctx context.Context) error {
		calls++
		return errors.New("fail")
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call before cancel, got %d", calls)
	}
}

func TestExponentialDelayDoublesAndCaps(t *testing.T) {
	p := ExponentialPolicy(10, 200*time.Millisecond, 5*time.Second)

	expected := []time.Duration{
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
		1600 * time.Millisecond,
		3200 * time.Millisecond,
		5 * time.Second,
		5 * time.Second,
	}
	for i, want := range expected {
		if got := p.Delay(i + 1); got != want {
			t.Errorf("Delay(%d): expected %v, got %v", i+1, want, got)
		}
	}
}

func TestFixedDelayIsConstant(t *testing.T) {
	p := FixedPolicy(3, 500*time.Millisecond)
	for attempt := 1; attempt <= 5; attempt++ {
		if got := p.Delay(attempt); got != 500*time.Millisecond {
			t.Errorf("Delay(%d): expected 500ms, got %v", attempt, got)
		}
	}
}
