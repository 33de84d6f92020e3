package eth

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

// UserOperation is an ERC-4337 v0.6 user operation in its JSON-RPC form.
type UserOperation struct {
	Sender               common.Address `json:"sender"`
	Nonce                *hexutil.Big   `json:"nonce"`
	InitCode             hexutil.Bytes  `json:"initCode"`
	CallData             hexutil.Bytes  `json:"callData"`
	CallGasLimit         *hexutil.Big   `json:"callGasLimit"`
	VerificationGasLimit *hexutil.Big   `json:"verificationGasLimit"`
	PreVerificationGas   *hexutil.Big   `json:"preVerificationGas"`
	MaxFeePerGas         *hexutil.Big   `json:"maxFeePerGas"`
	MaxPriorityFeePerGas *hexutil.Big   `json:"maxPriorityFeePerGas"`
	PaymasterAndData     hexutil.Bytes  `json:"paymasterAndData"`
	Signature            hexutil.Bytes  `json:"signature"`
}

// Bundler submits user operations to an ERC-4337 bundler endpoint
type Bundler struct {
	client     *rpc.Client
	entryPoint common.Address
}

// NewBundler dials the bundler JSON-RPC endpoint
func NewBundler(ctx context.Context, url string, entryPoint common.Address) (*Bundler, error) {
	if url == "" {
		return nil, fmt.Errorf("bundler URL is required")
	}

	client, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to bundler: %w", err)
	}

	return &Bundler{client: client, entryPoint: entryPoint}, nil
}

// EntryPoint returns the entry point contract the bundler targets
func (b *Bundler) EntryPoint() common.Address {
	return b.entryPoint
}

// SendUserOperation submits op and returns the user operation hash
func (b *Bundler) SendUserOperation(ctx context.Context, op *UserOperation) (common.Hash, error) {
	var hash common.Hash
	if err := b.client.CallContext(ctx, &hash, "eth_sendUserOperation", op, b.entryPoint); err != nil {
		return common.Hash{}, fmt.Errorf("eth_sendUserOperation failed: %w", err)
	}
	return hash, nil
}

// Close closes the bundler connection
func (b *Bundler) Close() {
	b.client.Close()
}
