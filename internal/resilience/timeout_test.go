package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestWithTimeoutSettlesFirst(t *testing.T) {
	got, err := WithTimeout(context.Background(), 200*time.Millisecond, func(ctx context.Context) (string, error) {
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "ok" {
		t.Errorf("expected ok, got %q", got)
	}
}

func TestWithTimeoutPropagatesOpError(t *testing.T) {
	opErr := errors.New("boom")
	_, err := WithTimeout(context.Background(), 200*time.Millisecond, func(ctx context.Context) (int, error) {
		return 0, opErr
	})
	if !errors.Is(err, opErr) {
		t.Errorf("expected op error, got %v", err)
	}
}

func TestWithTimeoutTimerFirst(t *testing.T) {
	start := time.Now()
	_, err := WithTimeout(context.Background(), 20*time.Millisecond, func(ctx context.Context) (int, error) {
		time.Sleep(time.Second)
		return 1, nil
	})

	var te *TimeoutError
	if !errors.As(err, &te) {
		t.Fatalf("expected *TimeoutError, got %v", err)
	}
	if te.After != 20*time.Millisecond {
		t.Errorf("expected After 20ms, got %v", te.After)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("timeout did not fire promptly, took %v", elapsed)
	}
}

func TestWithTimeoutRepeatedCallsDoNotLeak(t *testing.T) {
	// A leaked timer or unbuffered result channel would make late ops block
	// forever; run enough iterations that either shows up.
	for i := 0; i < 100; i++ {
		_, err := WithTimeout(context.Background(), time.Millisecond, func(ctx context.Context) (int, error) {
			time.Sleep(10 * time.Millisecond)
			return 0, nil
		})
		var te *TimeoutError
		if !errors.As(err, &te) {
			t.Fatalf("iteration %d: expected timeout, got %v", i, err)
		}
	}
	// Give stragglers a moment to finish sending to their buffered channels.
	time.Sleep(50 * time.Millisecond)
}

func TestWithTimeoutContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := WithTimeout(ctx, time.Minute, func(ctx context.Context) (int, error) {
		<-ctx.Done()
		time.Sleep(time.Second)
		return 0, ctx.Err()
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
