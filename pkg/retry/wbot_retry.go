// Package retry provides a bounded retry policy with exponential backoff.
// Policies are configured per external dependency instead of inlining
// sleep loops at call sites. Only idempotent reads should be retried;
// outbound sends are never retried here.
package retry

import (
	"context"
	"math"
	"time"
)

// Policy holds the retry configuration for one external dependency.
type Policy struct {
	MaxAttempts     int           // total attempts including the first
	BaseDelay       time.Duration // delay before the second attempt
	MaxDelay        time.Duration // backoff cap
	BackoffMultiple float64
}

// DefaultPolicy returns the baseline policy for idempotent upstream reads.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:     3,
		BaseDelay:       200 * time.Millisecond,
		MaxDelay:        5 * time.Second,
		BackoffMultiple: 2.0,
	}
}

// None returns a policy that makes exactly one attempt.
func None() Policy {
	return Policy{MaxAttempts: 1}
}

func (p Policy) delay(attempt int) time.Duration {
	d := time.Duration(float64(p.BaseDelay) * math.Pow(p.BackoffMultiple, float64(attempt)))
	if d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

// Do runs fn under the policy. A nil return stops immediately; context
// cancellation aborts the backoff wait. The last error is returned when
// all attempts are exhausted.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.delay(attempt - 1)):
			}
		}

		if err := fn(ctx); err != nil {
			lastErr = err
			continue
		}
		return nil
	}

	return lastErr
}
