package keymaster

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy(attempts int) RetryPolicy {
	return RetryPolicy{MaxAttempts: attempts, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
}

func TestRetryPolicySucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := fastPolicy(8).Do(context.Background(), "read", func() error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryPolicySucceedsMidway(t *testing.T) {
	calls := 0
	err := fastPolicy(8).Do(context.Background(), "read", func() error {
		calls++
		if calls < 3 {
			return fmt.Errorf("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryPolicyExhaustion(t *testing.T) {
	calls := 0
	err := fastPolicy(8).Do(context.Background(), "read", func() error {
		calls++
		return fmt.Errorf("still down")
	})
	require.Error(t, err)
	assert.Equal(t, 8, calls, "exhaustion must consume exactly MaxAttempts")
	assert.ErrorIs(t, err, ErrRetriesExhausted)
	assert.Contains(t, err.Error(), "still down", "last error must be preserved")
}

func TestRetryPolicyDefaultBudgets(t *testing.T) {
	assert.Equal(t, 18, NonceRetryPolicy().MaxAttempts)
	assert.Equal(t, 8, ReadRetryPolicy().MaxAttempts)
}

func TestRetryPolicyContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	policy := RetryPolicy{MaxAttempts: 100, BaseDelay: 10 * time.Millisecond, MaxDelay: 10 * time.Millisecond}
	err := policy.Do(ctx, "read", func() error {
		calls++
		if calls == 2 {
			cancel()
		}
		return fmt.Errorf("transient")
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, calls, "cancellation must stop further attempts")
}

func TestRetryPolicyNoAttempts(t *testing.T) {
	err := RetryPolicy{}.Do(context.Background(), "read", func() error { return nil })
	assert.Error(t, err)
}
