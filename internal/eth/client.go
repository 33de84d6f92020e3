package eth

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/ethclient"
)

const (
	// DefaultCallTimeout bounds a single RPC round trip when the caller's context has no deadline
	DefaultCallTimeout = 10 * time.Second

	gasBufferPercent = 20
)

// Client talks to the JSON-RPC endpoint of one EVM chain
type Client struct {
	rpc     *ethclient.Client
	chainID int64
	timeout time.Duration
}

// NewClient creates a client for chainID.
// The HTTP transport connects lazily; use VerifyChainID to check the endpoint.
func NewClient(rpcURL string, chainID int64) (*Client, error) {
	if rpcURL == "" {
		return nil, fmt.Errorf("RPC URL is required")
	}

	rpc, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial RPC for chain %d: %w", chainID, err)
	}

	return &Client{rpc: rpc, chainID: chainID, timeout: DefaultCallTimeout}, nil
}

// ChainID returns the configured chain ID
func (c *Client) ChainID() int64 {
	return c.chainID
}

// VerifyChainID checks that the RPC endpoint serves the configured chain
func (c *Client) VerifyChainID(ctx context.Context) error {
	ctx, cancel := c.callContext(ctx)
	defer cancel()

	remote, err := c.rpc.ChainID(ctx)
	if err != nil {
		return c.wrap("eth_chainId", err)
	}
	if !remote.IsInt64() || remote.Int64() != c.chainID {
		return fmt.Errorf("RPC serves chain %s, expected %d", remote, c.chainID)
	}
	return nil
}

// GetBalance returns the latest balance of address in wei
func (c *Client) GetBalance(ctx context.Context, address string) (*big.Int, error) {
	ctx, cancel := c.callContext(ctx)
	defer cancel()

	balance, err := c.rpc.BalanceAt(ctx, common.HexToAddress(address), nil)
	if err != nil {
		return nil, c.wrap("eth_getBalance", err)
	}
	return balance, nil
}

// HasCode reports whether contract code is deployed at address
func (c *Client) HasCode(ctx context.Context, address string) (bool, error) {
	ctx, cancel := c.callContext(ctx)
	defer cancel()

	code, err := c.rpc.CodeAt(ctx, common.HexToAddress(address), nil)
	if err != nil {
		return false, c.wrap("eth_getCode", err)
	}
	return len(code) > 0, nil
}

// EstimateGas returns the node's estimate plus a 20% buffer.
// An empty to estimates a contract creation.
func (c *Client) EstimateGas(ctx context.Context, from, to string, value *big.Int, data []byte) (uint64, error) {
	ctx, cancel := c.callContext(ctx)
	defer cancel()

	msg := ethereum.CallMsg{
		From:  common.HexToAddress(from),
		Value: value,
		Data:  data,
	}
	if to != "" {
		addr := common.HexToAddress(to)
		msg.To = &addr
	}

	gas, err := c.rpc.EstimateGas(ctx, msg)
	if err != nil {
		return 0, c.wrap("eth_estimateGas", err)
	}
	return gas + gas*gasBufferPercent/100, nil
}

// SuggestGasPrice returns the node's legacy gas price suggestion
func (c *Client) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	ctx, cancel := c.callContext(ctx)
	defer cancel()

	price, err := c.rpc.SuggestGasPrice(ctx)
	if err != nil {
		return nil, c.wrap("eth_gasPrice", err)
	}
	return price, nil
}

// SuggestGasTipCap returns the node's EIP-1559 priority fee suggestion
func (c *Client) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	ctx, cancel := c.callContext(ctx)
	defer cancel()

	tip, err := c.rpc.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, c.wrap("eth_maxPriorityFeePerGas", err)
	}
	return tip, nil
}

// SendRawTransaction relays the encoded transaction unchanged and returns the
// hash reported by the node. Callers validate the transaction first.
func (c *Client) SendRawTransaction(ctx context.Context, rawTx []byte) (string, error) {
	ctx, cancel := c.callContext(ctx)
	defer cancel()

	var hash common.Hash
	if err := c.rpc.Client().CallContext(ctx, &hash, "eth_sendRawTransaction", hexutil.Encode(rawTx)); err != nil {
		return "", c.wrap("eth_sendRawTransaction", err)
	}
	return hash.Hex(), nil
}

// Close closes the client connection
func (c *Client) Close() {
	c.rpc.Close()
}

func (c *Client) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok || c.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}

func (c *Client) wrap(method string, err error) error {
	return fmt.Errorf("chain %d %s: %w", c.chainID, method, err)
}
