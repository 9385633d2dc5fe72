package upstream

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetryWithBackoff_SuccessFirstTry(t *testing.T) {
	calls := 0
	err := retryWithBackoff(context.Background(), func() error {
		calls++
		return nil
	}, func(error) ErrorClass { return ErrorClassServer })

	if err != nil {
		t.Fatalf("retryWithBackoff failed: %v", err)
	}
	if calls != 1 {
		t.Errorf("fn called %d times, want 1", calls)
	}
}

func TestRetryWithBackoff_ClientErrorReturnsImmediately(t *testing.T) {
	calls := 0
	wantErr := &Error{StatusCode: 404, Class: ErrorClassClient, Message: "not found"}

	err := retryWithBackoff(context.Background(), func() error {
		calls++
		return wantErr
	}, func(error) ErrorClass { return ErrorClassClient })

	if !errors.Is(err, wantErr) {
		t.Errorf("error = %v, want the client error unchanged", err)
	}
	if calls != 1 {
		t.Errorf("fn called %d times, want 1 (no retry for client errors)", calls)
	}
}

func TestRetryWithBackoff_ContextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	start := time.Now()
	err := retryWithBackoff(ctx, func() error {
		calls++
		return &Error{StatusCode: 503, Class: ErrorClassServer, Message: "unavailable"}
	}, func(error) ErrorClass { return ErrorClassServer })

	if !errors.Is(err, ErrContextCancelled) {
		t.Errorf("error = %v, want ErrContextCancelled", err)
	}
	if calls != 1 {
		t.Errorf("fn called %d times, want 1", calls)
	}
	if time.Since(start) > time.Second {
		t.Errorf("cancelled retry took %v, should abort the backoff wait", time.Since(start))
	}
}

func TestRetryWithBackoff_RateLimitBackoffFloor(t *testing.T) {
	// Rate-limit backoff starts at 5s (retryConfigForClass). With ±20%
	// jitter the first wait is at least 4s, so a 2.5s deadline must expire
	// during that first wait: exactly one attempt, no early retry on the
	// 1s default floor.
	ctx, cancel := context.WithTimeout(context.Background(), 2500*time.Millisecond)
	defer cancel()

	calls := 0
	err := retryWithBackoff(ctx, func() error {
		calls++
		return &Error{StatusCode: 429, Class: ErrorClassRateLimit, Message: "too many requests"}
	}, func(error) ErrorClass { return ErrorClassRateLimit })

	if !errors.Is(err, ErrContextCancelled) {
		t.Errorf("error = %v, want ErrContextCancelled", err)
	}
	if calls != 1 {
		t.Errorf("fn called %d times, want 1 (first rate-limit wait must outlast the deadline)", calls)
	}
}

func TestRetryConfigForClass(t *testing.T) {
	if cfg := retryConfigForClass(ErrorClassRateLimit); cfg.InitialBackoff <= retryConfigForClass(ErrorClassServer).InitialBackoff {
		t.Error("rate-limit backoff should start longer than server backoff")
	}
	if cfg := retryConfigForClass(""); cfg != DefaultRetryConfig() {
		t.Errorf("unknown class config = %+v, want default", cfg)
	}
}
