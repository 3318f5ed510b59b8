// deps.go defines minimal interfaces for the chain-facing dependencies.
// This allows for easy mocking in tests and decouples the core from the
// concrete RPC client.
package keymaster

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// ChainReader defines the minimal interface for reading chain state. All
// calls may fail transiently; implementations are expected to retry at this
// boundary so callers never see transient errors directly.
type ChainReader interface {
	// GetBalance returns the current balance of addr in wei.
	GetBalance(ctx context.Context, addr common.Address) (*big.Int, error)

	// GetNonce returns the transaction count of addr, which is the nonce of
	// its next transaction.
	GetNonce(ctx context.Context, addr common.Address) (uint64, error)

	// GetBlockHeight returns the current block number.
	GetBlockHeight(ctx context.Context) (uint64, error)

	// GetChainID returns the chain id reported by the endpoint. Callers use
	// it at build time to guard against endpoint/chain-id mismatch.
	GetChainID(ctx context.Context) (*big.Int, error)
}

// ChainBroadcaster defines the minimal interface for submitting signed
// transactions.
type ChainBroadcaster interface {
	// SendRawTx submits a signed transaction and returns its hash.
	SendRawTx(ctx context.Context, tx *types.Transaction) (common.Hash, error)
}

// ReaderFactory creates a ChainReader for an endpoint. Injectable for
// testing.
type ReaderFactory func(endpoint string) (ChainReader, error)

// BroadcasterFactory creates a ChainBroadcaster for an endpoint. Injectable
// for testing.
type BroadcasterFactory func(endpoint string) (ChainBroadcaster, error)
