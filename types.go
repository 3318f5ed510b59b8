package keymaster

import (
	"fmt"
	"math/big"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

const (
	// BaseGasLimit is the gas limit of a plain value transfer. Chains that
	// meter intrinsic gas differently configure a multiplier on top of it.
	BaseGasLimit = 21000

	// DefaultNonceRetries bounds nonce queries, which gate queue construction
	// and therefore get a larger budget than other reads.
	DefaultNonceRetries = 18

	// DefaultReadRetries bounds balance, block height, chain id and dispatch
	// calls.
	DefaultReadRetries = 8

	// DefaultDispatchDelay is the pause between consecutive dispatches on one
	// chain, to stay under endpoint rate limits.
	DefaultDispatchDelay = 3 * time.Second
)

var (
	ErrRetriesExhausted   = fmt.Errorf("retries exhausted")
	ErrInvalidThreshold   = fmt.Errorf("threshold upper bound is below lower bound")
	ErrInvalidTopUpAmount = fmt.Errorf("top-up amount must be positive")
	ErrChainUnavailable   = fmt.Errorf("chain unavailable")
)

// TxParams is the unsigned parameter set of a top-up transaction. It is
// retained alongside the signed payload for logging and audit, never for
// re-dispatch.
type TxParams struct {
	Nonce    uint64   `json:"nonce"`
	GasPrice *big.Int `json:"gas_price"`
	GasLimit uint64   `json:"gas_limit"`
	To       string   `json:"to"`
	ValueWei *big.Int `json:"value_wei"`
	ChainID  *big.Int `json:"chain_id"`
}

// PendingTx is a signed top-up transaction queued for one chain. Immutable
// once created; owned exclusively by its chain's queue until dispatch.
type PendingTx struct {
	Chain     string
	Home      string
	Role      string
	Recipient common.Address
	Params    TxParams
	Signed    *types.Transaction
}

// TargetFailure records an isolated per-(home, chain, address) evaluation
// failure. It never aborts the rest of the run.
type TargetFailure struct {
	Home    string
	Chain   string
	Role    string
	Address common.Address
	Err     error
}

// Plan is the outcome of the planning pass: one insertion-ordered queue per
// chain with nonces already assigned. It is immutable after construction and
// passed explicitly to the dispatch phase.
type Plan struct {
	// Queues maps chain name to its queued top-ups in nonce order.
	Queues map[string][]*PendingTx

	// ChainErrors marks chains whose bank state could not be read; their
	// queues were abandoned for this run.
	ChainErrors map[string]error

	// TargetErrors lists per-address failures that were skipped over.
	TargetErrors []TargetFailure
}

// QueuedChains returns the names of chains with a non-empty queue, sorted
// for deterministic reporting.
func (p *Plan) QueuedChains() []string {
	names := make([]string, 0, len(p.Queues))
	for name, queue := range p.Queues {
		if len(queue) > 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// ChainSummary is what the operator sees before confirming dispatch for a
// chain: how many transactions are queued, their total value, and how much
// the bank currently holds.
type ChainSummary struct {
	Chain       string
	Count       int
	TotalWei    *big.Int
	BankWei     *big.Int
	BankAddress common.Address
}

// DispatchResult records the outcome of one dispatched transaction.
type DispatchResult struct {
	Tx   *PendingTx
	Hash common.Hash
	Err  error
}

// Report is the per-chain dispatch report of a top-up run.
type Report struct {
	// Declined is set when the operator refused the confirmation gate; in
	// that case nothing was dispatched on any chain.
	Declined bool

	// Results holds dispatch outcomes per chain, in dispatch order.
	Results map[string][]DispatchResult
}

// ConfirmFunc is the operator confirmation gate shown the pending summaries.
// Returning false aborts the entire run: no chain dispatches, including
// chains whose summaries were already shown.
type ConfirmFunc func(summaries []ChainSummary) bool
