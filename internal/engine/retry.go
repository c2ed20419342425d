package engine

import (
	"context"
	"errors"
	"time"

	"auto-trading-engine/internal/types"
)

// withRetry runs fn up to attempts times with a fixed backoff between tries.
// Rejections are not retried: the broker said no, asking again changes
// nothing.
func withRetry(ctx context.Context, attempts int, backoff time.Duration, fn func(context.Context) error) error {
	if attempts <= 0 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if errors.Is(err, types.ErrOrderRejected) || ctx.Err() != nil {
			return err
		}
		if i < attempts-1 {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return err
}
