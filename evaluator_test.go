package keymaster

import (
	"context"
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluateThresholdAboveLowerBound(t *testing.T) {
	ctx := context.Background()
	addr := testAddress(0x01)

	// 1 ETH balance, above the 0.15 ETH low watermark
	reader := &mockChainReader{
		GetBalanceFn: func(common.Address) (*big.Int, error) {
			return mustWei("1000000000000000000"), nil
		},
	}

	amount, err := EvaluateThreshold(ctx, reader, addr, testLowerBound, testUpperBound)
	require.NoError(t, err)
	assert.Nil(t, amount, "satisfactory balance must need no top-up")
}

func TestEvaluateThresholdExactlyAtLowerBound(t *testing.T) {
	ctx := context.Background()
	addr := testAddress(0x01)

	// Balance equal to the lower bound is still satisfactory
	reader := &mockChainReader{
		GetBalanceFn: func(common.Address) (*big.Int, error) {
			return new(big.Int).Set(testLowerBound), nil
		},
	}

	amount, err := EvaluateThreshold(ctx, reader, addr, testLowerBound, testUpperBound)
	require.NoError(t, err)
	assert.Nil(t, amount)
}

func TestEvaluateThresholdBelowLowerBound(t *testing.T) {
	ctx := context.Background()
	addr := testAddress(0x01)

	// 0.1 ETH balance, below the low watermark: top up to the full 2 ETH
	balance := mustWei("100000000000000000")
	reader := &mockChainReader{
		GetBalanceFn: func(common.Address) (*big.Int, error) {
			return new(big.Int).Set(balance), nil
		},
	}

	amount, err := EvaluateThreshold(ctx, reader, addr, testLowerBound, testUpperBound)
	require.NoError(t, err)
	require.NotNil(t, amount)
	assert.Equal(t, mustWei("1900000000000000000"), amount)
	assert.Equal(t, 1, amount.Sign(), "top-up amount must be positive")
}

func TestEvaluateThresholdZeroBalance(t *testing.T) {
	ctx := context.Background()
	addr := testAddress(0x01)

	reader := &mockChainReader{}

	amount, err := EvaluateThreshold(ctx, reader, addr, testLowerBound, testUpperBound)
	require.NoError(t, err)
	require.NotNil(t, amount)
	assert.Equal(t, testUpperBound, amount, "empty wallet tops up to the full upper bound")
}

func TestEvaluateThresholdIdempotentAfterTopUp(t *testing.T) {
	ctx := context.Background()
	addr := testAddress(0x01)

	// A wallet at the upper bound (as if just topped up) needs nothing
	reader := &mockChainReader{
		GetBalanceFn: func(common.Address) (*big.Int, error) {
			return new(big.Int).Set(testUpperBound), nil
		},
	}

	amount, err := EvaluateThreshold(ctx, reader, addr, testLowerBound, testUpperBound)
	require.NoError(t, err)
	assert.Nil(t, amount)
}

func TestEvaluateThresholdInvalidBounds(t *testing.T) {
	ctx := context.Background()
	addr := testAddress(0x01)

	reader := &mockChainReader{}

	_, err := EvaluateThreshold(ctx, reader, addr, testUpperBound, testLowerBound)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidThreshold)
	assert.Empty(t, reader.GetBalanceCalls, "invalid bounds must be rejected before any network read")
}

func TestEvaluateThresholdEqualBounds(t *testing.T) {
	ctx := context.Background()
	addr := testAddress(0x01)

	bound := mustWei("1000000000000000000")
	reader := &mockChainReader{
		GetBalanceFn: func(common.Address) (*big.Int, error) {
			return mustWei("500000000000000000"), nil
		},
	}

	// Degenerate but legal: lower == upper behaves as a single watermark
	amount, err := EvaluateThreshold(ctx, reader, addr, bound, bound)
	require.NoError(t, err)
	require.NotNil(t, amount)
	assert.Equal(t, mustWei("500000000000000000"), amount)
}

func TestEvaluateThresholdBalanceReadError(t *testing.T) {
	ctx := context.Background()
	addr := testAddress(0x01)

	reader := &mockChainReader{
		GetBalanceFn: func(common.Address) (*big.Int, error) {
			return nil, fmt.Errorf("connection refused")
		},
	}

	_, err := EvaluateThreshold(ctx, reader, addr, testLowerBound, testUpperBound)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}
