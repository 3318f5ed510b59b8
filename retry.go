package keymaster

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/KyberNetwork/logger"
)

// RetryPolicy is an explicit, reusable retry schedule applied at the chain
// client boundary. Backoff doubles from BaseDelay up to MaxDelay.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// NonceRetryPolicy is the default policy for nonce queries.
func NonceRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: DefaultNonceRetries, BaseDelay: 500 * time.Millisecond, MaxDelay: 30 * time.Second}
}

// ReadRetryPolicy is the default policy for balance, block height, chain id
// and dispatch calls.
func ReadRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: DefaultReadRetries, BaseDelay: 500 * time.Millisecond, MaxDelay: 30 * time.Second}
}

// Do runs fn until it succeeds, the policy is exhausted, or ctx is done.
// Every failed attempt is logged with the operation label. Exhaustion wraps
// ErrRetriesExhausted together with the last error so callers can classify
// with errors.Is.
func (p RetryPolicy) Do(ctx context.Context, label string, fn func() error) error {
	if p.MaxAttempts < 1 {
		return fmt.Errorf("retry policy for %s has no attempts", label)
	}

	delay := p.BaseDelay
	var lastErr error

	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		logger.WithFields(logger.Fields{
			"operation": label,
			"attempt":   attempt,
			"max":       p.MaxAttempts,
			"error":     lastErr,
		}).Warn("Operation failed, will retry")

		if attempt == p.MaxAttempts {
			break
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay *= 2
		if p.MaxDelay > 0 && delay > p.MaxDelay {
			delay = p.MaxDelay
		}
	}

	return errors.Join(ErrRetriesExhausted, fmt.Errorf("%s failed after %d attempts: %w", label, p.MaxAttempts, lastErr))
}
