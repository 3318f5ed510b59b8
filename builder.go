package keymaster

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/crosschain-ops/keymaster/config"
)

// BuildTopUp constructs and signs a top-up transaction from chain's bank to
// recipient.
//
// The chain id is resolved from the endpoint at build time rather than taken
// from configuration, so a transaction can never be signed for a different
// chain than the one the endpoint actually serves. The gas limit is the
// plain-transfer base times the chain's configured multiplier, and the gas
// price is the chain's flat configured value; keymaster does no fee-market
// estimation.
//
// Signing is local and deterministic, so signing errors are surfaced
// verbatim and never retried.
func BuildTopUp(ctx context.Context, reader ChainReader, chain *config.Chain, recipient common.Address, amount *big.Int, nonce uint64) (*PendingTx, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: got %v for %s on %s", ErrInvalidTopUpAmount, amount, recipient.Hex(), chain.Name)
	}

	chainID, err := reader.GetChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("couldn't resolve chain id for %s: %w", chain.Name, err)
	}

	gasLimit := uint64(BaseGasLimit) * chain.GasLimitMultiplier
	params := TxParams{
		Nonce:    nonce,
		GasPrice: new(big.Int).Set(chain.GasPrice),
		GasLimit: gasLimit,
		// Hex() renders the checksummed form kept for the audit record.
		To:       recipient.Hex(),
		ValueWei: new(big.Int).Set(amount),
		ChainID:  chainID,
	}

	unsigned := types.NewTransaction(nonce, recipient, amount, gasLimit, chain.GasPrice, nil)
	signed, err := types.SignTx(unsigned, types.LatestSignerForChainID(chainID), chain.BankKey)
	if err != nil {
		return nil, fmt.Errorf("couldn't sign top-up for %s on %s: %w", recipient.Hex(), chain.Name, err)
	}

	return &PendingTx{
		Chain:     chain.Name,
		Recipient: recipient,
		Params:    params,
		Signed:    signed,
	}, nil
}
