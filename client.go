package keymaster

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// NodeClient is the ethclient-backed implementation of ChainReader and
// ChainBroadcaster for one endpoint. Transient RPC failures are retried here
// with the configured policies so the rest of the core only sees either a
// result or an exhausted operation.
type NodeClient struct {
	endpoint    string
	client      *ethclient.Client
	noncePolicy RetryPolicy
	readPolicy  RetryPolicy
}

// NewNodeClient dials endpoint with default retry policies.
func NewNodeClient(endpoint string) (*NodeClient, error) {
	return NewNodeClientWithPolicies(endpoint, NonceRetryPolicy(), ReadRetryPolicy())
}

// NewNodeClientWithPolicies dials endpoint with explicit retry policies.
func NewNodeClientWithPolicies(endpoint string, noncePolicy, readPolicy RetryPolicy) (*NodeClient, error) {
	client, err := ethclient.Dial(endpoint)
	if err != nil {
		return nil, fmt.Errorf("couldn't dial %s: %w", endpoint, err)
	}
	return &NodeClient{
		endpoint:    endpoint,
		client:      client,
		noncePolicy: noncePolicy,
		readPolicy:  readPolicy,
	}, nil
}

// GetBalance returns the latest balance of addr in wei.
func (c *NodeClient) GetBalance(ctx context.Context, addr common.Address) (*big.Int, error) {
	var balance *big.Int
	err := c.readPolicy.Do(ctx, fmt.Sprintf("get balance of %s via %s", addr.Hex(), c.endpoint), func() error {
		var err error
		balance, err = c.client.BalanceAt(ctx, addr, nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return balance, nil
}

// GetNonce returns the transaction count of addr at the latest block.
func (c *NodeClient) GetNonce(ctx context.Context, addr common.Address) (uint64, error) {
	var nonce uint64
	err := c.noncePolicy.Do(ctx, fmt.Sprintf("get nonce of %s via %s", addr.Hex(), c.endpoint), func() error {
		var err error
		nonce, err = c.client.NonceAt(ctx, addr, nil)
		return err
	})
	if err != nil {
		return 0, err
	}
	return nonce, nil
}

// GetBlockHeight returns the current block number.
func (c *NodeClient) GetBlockHeight(ctx context.Context) (uint64, error) {
	var height uint64
	err := c.readPolicy.Do(ctx, fmt.Sprintf("get block height via %s", c.endpoint), func() error {
		var err error
		height, err = c.client.BlockNumber(ctx)
		return err
	})
	if err != nil {
		return 0, err
	}
	return height, nil
}

// GetChainID returns the chain id reported by the endpoint.
func (c *NodeClient) GetChainID(ctx context.Context) (*big.Int, error) {
	var chainID *big.Int
	err := c.readPolicy.Do(ctx, fmt.Sprintf("get chain id via %s", c.endpoint), func() error {
		var err error
		chainID, err = c.client.ChainID(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return chainID, nil
}

// SendRawTx submits a signed transaction and returns its hash.
func (c *NodeClient) SendRawTx(ctx context.Context, tx *types.Transaction) (common.Hash, error) {
	err := c.readPolicy.Do(ctx, fmt.Sprintf("send tx %s via %s", tx.Hash().Hex(), c.endpoint), func() error {
		return c.client.SendTransaction(ctx, tx)
	})
	if err != nil {
		return common.Hash{}, err
	}
	return tx.Hash(), nil
}

// Close releases the underlying RPC connection.
func (c *NodeClient) Close() {
	c.client.Close()
}

// DefaultReaderFactory dials an endpoint with default retry policies.
func DefaultReaderFactory(endpoint string) (ChainReader, error) {
	return NewNodeClient(endpoint)
}

// DefaultBroadcasterFactory dials an endpoint with default retry policies.
func DefaultBroadcasterFactory(endpoint string) (ChainBroadcaster, error) {
	return NewNodeClient(endpoint)
}

// Compile-time checks
var (
	_ ChainReader      = (*NodeClient)(nil)
	_ ChainBroadcaster = (*NodeClient)(nil)
)
