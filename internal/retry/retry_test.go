package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/xonecas/agentcore/internal/llmprovider"
)

func TestDoSucceedsAfterRetryableErrors(t *testing.T) {
	policy := Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond}
	calls := 0
	result, err := Do(context.Background(), policy, func(attempt int) (string, error) {
		calls++
		if attempt < 2 {
			return "", llmprovider.RateLimited(0, "slow down")
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "ok" {
		t.Errorf("expected ok, got %q", result)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestDoPropagatesNonRetryableImmediately(t *testing.T) {
	policy := DefaultPolicy()
	calls := 0
	_, err := Do(context.Background(), policy, func(attempt int) (string, error) {
		calls++
		return "", llmprovider.AuthError("bad key")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("expected exactly one call for non-retryable error, got %d", calls)
	}
}

func TestDoPropagatesUnclassifiedErrorImmediately(t *testing.T) {
	policy := DefaultPolicy()
	calls := 0
	sentinel := errors.New("boom")
	_, err := Do(context.Background(), policy, func(attempt int) (string, error) {
		calls++
		return "", sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected exactly one call, got %d", calls)
	}
}

func TestDoExhaustsAttemptsAndReturnsLastError(t *testing.T) {
	policy := Policy{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
	calls := 0
	_, err := Do(context.Background(), policy, func(attempt int) (string, error) {
		calls++
		return "", llmprovider.NetworkError(errors.New("dial tcp: timeout"))
	})
	if err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
	if calls != 2 {
		t.Errorf("expected 2 calls, got %d", calls)
	}
}

func TestDoHonorsRetryAfter(t *testing.T) {
	policy := Policy{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: time.Second}
	start := time.Now()
	_, _ = Do(context.Background(), policy, func(attempt int) (string, error) {
		if attempt == 0 {
			return "", llmprovider.RateLimited(20, "slow down")
		}
		return "ok", nil
	})
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Errorf("expected to wait at least the server-requested delay, waited %v", elapsed)
	}
}

func TestDoRespectsCancellation(t *testing.T) {
	policy := Policy{MaxAttempts: 5, BaseDelay: time.Second, MaxDelay: time.Second}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Do(ctx, policy, func(attempt int) (string, error) {
		return "", llmprovider.RateLimited(0, "slow down")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
