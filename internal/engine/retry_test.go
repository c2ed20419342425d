package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"auto-trading-engine/internal/types"
)

func TestWithRetryEventualSuccess(t *testing.T) {
	calls := 0
	err := withRetry(context.Background(), 3, time.Millisecond, func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestWithRetryExhaustsAttempts(t *testing.T) {
	calls := 0
	err := withRetry(context.Background(), 3, time.Millisecond, func(ctx context.Context) error {
		calls++
		return errors.New("still down")
	})
	if err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestWithRetryStopsOnRejection(t *testing.T) {
	calls := 0
	err := withRetry(context.Background(), 5, time.Millisecond, func(ctx context.Context) error {
		calls++
		return types.ErrOrderRejected
	})
	if !errors.Is(err, types.ErrOrderRejected) {
		t.Fatalf("expected rejection error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("rejections must not be retried, got %d calls", calls)
	}
}

func TestWithRetryHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := withRetry(ctx, 3, time.Second, func(ctx context.Context) error {
		return errors.New("transient")
	})
	if err == nil {
		t.Fatal("expected error under cancelled context")
	}
}
