// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

// backoffBase controls the base duration for exponential backoff. Tests
// override this to avoid real sleeps.
var backoffBase = time.Second

// Retrying wraps an Invoker with exponential backoff. Context errors and
// permanent API errors are returned without retrying.
type Retrying struct {
	Next       Invoker
	MaxRetries int
}

// NewRetrying returns a Retrying invoker. A non-positive maxRetries uses 3.
func NewRetrying(next Invoker, maxRetries int) *Retrying {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &Retrying{Next: next, MaxRetries: maxRetries}
}

// Invoke calls the wrapped invoker up to MaxRetries+1 times.
func (r *Retrying) Invoke(ctx context.Context, req Request) (Response, error) {
	var lastErr error
	for attempt := 0; attempt <= r.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt-1))) * backoffBase
			select {
			case <-ctx.Done():
				return Response{}, ctx.Err()
			case <-time.After(backoff):
			}
		}

		resp, err := r.Next.Invoke(ctx, req)
		if err == nil {
			return resp, nil
		}
		if !retryable(ctx, err) {
			return Response{}, err
		}
		lastErr = err
	}
	return Response{}, fmt.Errorf("after %d retries: %w", r.MaxRetries, lastErr)
}

func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Temporary()
	}
	return true
}
