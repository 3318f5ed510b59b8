package keymaster

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// EvaluateThreshold checks addr's balance against a low/high watermark pair
// and returns the amount needed to bring it back to the upper bound, or nil
// when the balance is still at or above the lower bound.
//
// The asymmetric pair matters: topping up to the upper bound only once the
// balance has fallen below the lower bound prevents a top-up on every run.
// The returned amount is always positive; an upper bound below the lower
// bound is a configuration error and is rejected before any network read.
func EvaluateThreshold(ctx context.Context, reader ChainReader, addr common.Address, lower, upper *big.Int) (*big.Int, error) {
	if upper.Cmp(lower) < 0 {
		return nil, fmt.Errorf("%w: lower %s, upper %s", ErrInvalidThreshold, lower, upper)
	}

	balance, err := reader.GetBalance(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("couldn't fetch balance of %s: %w", addr.Hex(), err)
	}

	if balance.Cmp(lower) >= 0 {
		return nil, nil
	}

	return new(big.Int).Sub(upper, balance), nil
}
