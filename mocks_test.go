package keymaster

import (
	"context"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/crosschain-ops/keymaster/config"
)

// ============================================================
// Mock Implementations
// ============================================================

// mockChainReader implements ChainReader for testing
type mockChainReader struct {
	mu sync.Mutex

	// Function hooks - set these to customize behavior
	GetBalanceFn     func(addr common.Address) (*big.Int, error)
	GetNonceFn       func(addr common.Address) (uint64, error)
	GetBlockHeightFn func() (uint64, error)
	GetChainIDFn     func() (*big.Int, error)

	// Call tracking for assertions
	GetBalanceCalls     []common.Address
	GetNonceCalls       []common.Address
	GetBlockHeightCalls int
	GetChainIDCalls     int
}

func (m *mockChainReader) GetBalance(ctx context.Context, addr common.Address) (*big.Int, error) {
	m.mu.Lock()
	m.GetBalanceCalls = append(m.GetBalanceCalls, addr)
	m.mu.Unlock()
	if m.GetBalanceFn != nil {
		return m.GetBalanceFn(addr)
	}
	return big.NewInt(0), nil
}

func (m *mockChainReader) GetNonce(ctx context.Context, addr common.Address) (uint64, error) {
	m.mu.Lock()
	m.GetNonceCalls = append(m.GetNonceCalls, addr)
	m.mu.Unlock()
	if m.GetNonceFn != nil {
		return m.GetNonceFn(addr)
	}
	return 0, nil
}

func (m *mockChainReader) GetBlockHeight(ctx context.Context) (uint64, error) {
	m.mu.Lock()
	m.GetBlockHeightCalls++
	m.mu.Unlock()
	if m.GetBlockHeightFn != nil {
		return m.GetBlockHeightFn()
	}
	return 100, nil
}

func (m *mockChainReader) GetChainID(ctx context.Context) (*big.Int, error) {
	m.mu.Lock()
	m.GetChainIDCalls++
	m.mu.Unlock()
	if m.GetChainIDFn != nil {
		return m.GetChainIDFn()
	}
	return big.NewInt(1), nil
}

// mockChainBroadcaster implements ChainBroadcaster for testing
type mockChainBroadcaster struct {
	mu sync.Mutex

	SendRawTxFn func(tx *types.Transaction) (common.Hash, error)

	SendRawTxCalls []*types.Transaction
}

func (m *mockChainBroadcaster) SendRawTx(ctx context.Context, tx *types.Transaction) (common.Hash, error) {
	m.mu.Lock()
	m.SendRawTxCalls = append(m.SendRawTxCalls, tx)
	m.mu.Unlock()
	if m.SendRawTxFn != nil {
		return m.SendRawTxFn(tx)
	}
	return tx.Hash(), nil
}

// ============================================================
// Test Fixtures
// ============================================================

var (
	// 0.15 ETH low watermark, 2 ETH high watermark
	testLowerBound = mustWei("150000000000000000")
	testUpperBound = mustWei("2000000000000000000")
	testGasPrice   = big.NewInt(20000000000)
)

func mustWei(s string) *big.Int {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic("bad wei amount: " + s)
	}
	return n
}

// testChain builds a validated chain entry with a fresh bank key.
func testChain(t *testing.T, name string) *config.Chain {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return &config.Chain{
		Name:               name,
		Endpoint:           "http://" + name + ".test:8545",
		UpperBound:         new(big.Int).Set(testUpperBound),
		LowerBound:         new(big.Int).Set(testLowerBound),
		GasPrice:           new(big.Int).Set(testGasPrice),
		GasLimitMultiplier: 1,
		BankAddress:        crypto.PubkeyToAddress(key.PublicKey),
		BankKey:            key,
	}
}

func testAddress(b byte) common.Address {
	var addr common.Address
	for i := range addr {
		addr[i] = b
	}
	return addr
}
