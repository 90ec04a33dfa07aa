package judge

import (
	"context"
	"log"
	"math"
	"time"
)

// retryPolicy controls how a judge call is re-attempted before falling back.
type retryPolicy struct {
	maxAttempts int
	baseDelay   time.Duration
	fixedDelay  bool // true: same delay every retry; false: doubles per attempt
}

// defaultPolicy: up to 3 attempts, delay doubling from 1s.
func defaultPolicy() retryPolicy {
	return retryPolicy{maxAttempts: 3, baseDelay: time.Second}
}

// snapshotPolicy: environment checks fire every few seconds, so retrying
// aggressively would just pile frames up. One retry, longer fixed delay.
func snapshotPolicy() retryPolicy {
	return retryPolicy{maxAttempts: 2, baseDelay: 2500 * time.Millisecond, fixedDelay: true}
}

// withRetry runs call under the policy, sleeping between attempts. It
// returns the last error once attempts are exhausted.
func withRetry(ctx context.Context, p retryPolicy, name string, call func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt < p.maxAttempts; attempt++ {
		if attempt > 0 {
			delay := p.baseDelay
			if !p.fixedDelay {
				delay = time.Duration(math.Pow(2, float64(attempt-1))) * p.baseDelay
			}
			log.Printf("[Judge] %s retry %d/%d in %v", name, attempt, p.maxAttempts-1, delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if lastErr = call(ctx); lastErr == nil {
			return nil
		}
		log.Printf("[Judge] %s attempt %d failed: %v", name, attempt+1, lastErr)
	}
	return lastErr
}
