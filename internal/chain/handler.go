package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/better-wallet/agent-custody/internal/eth"
	"github.com/better-wallet/agent-custody/pkg/types"
)

// WalletProvisioner persists wallet records for the handlers
type WalletProvisioner interface {
	CreateWallet(ctx context.Context, userID, address string, chain types.ChainConfig, linkage types.SignerLinkage) (*types.WalletRecord, bool, error)
	MarkDeployed(ctx context.Context, address string, chain types.ChainConfig) (bool, error)
}

// CreateWalletRequest asks a handler to provision a wallet
type CreateWalletRequest struct {
	UserID  string
	Address string
	Chain   Variant
	Linkage types.SignerLinkage
}

// Handler is the baseline contract every chain family implements
type Handler interface {
	Family() types.ChainFamily

	// ValidateAddress checks address against the chain's format and returns its canonical form
	ValidateAddress(chain Variant, address string) (string, error)

	// CreateWallet idempotently provisions the wallet. created is false when it already existed.
	CreateWallet(ctx context.Context, req CreateWalletRequest) (rec *types.WalletRecord, created bool, err error)

	// GetBalance returns the native balance in the chain's smallest unit
	GetBalance(ctx context.Context, chain Variant, address string) (*big.Int, error)

	// SubmitTransaction broadcasts a signed transaction and returns its hash
	SubmitTransaction(ctx context.Context, chain Variant, signedTx []byte) (string, error)
}

// DeployRequest asks for an EVM smart account to be deployed
type DeployRequest struct {
	Chain   Variant
	Address string
	// UserOp carries the initCode for the account factory. It is only needed
	// when the account has no code yet.
	UserOp *eth.UserOperation
}

// DeployResult reports the outcome of a deployment request
type DeployResult struct {
	Deployed   bool         `json:"deployed"`
	UserOpHash *common.Hash `json:"user_op_hash,omitempty"`
}

// GasEstimateRequest describes a call to estimate
type GasEstimateRequest struct {
	Chain Variant
	From  string
	To    string
	Value *big.Int
	Data  []byte
}

// GasEstimate is a buffered gas limit with current fee suggestions
type GasEstimate struct {
	GasLimit             uint64   `json:"gas_limit"`
	MaxFeePerGas         *big.Int `json:"max_fee_per_gas"`
	MaxPriorityFeePerGas *big.Int `json:"max_priority_fee_per_gas"`
}

// AccountAbstractionHandler is implemented only by families with smart-account support
type AccountAbstractionHandler interface {
	Handler
	DeployWallet(ctx context.Context, req DeployRequest) (*DeployResult, error)
	SubmitUserOperation(ctx context.Context, chain Variant, op *eth.UserOperation) (common.Hash, error)
	EstimateGas(ctx context.Context, req GasEstimateRequest) (*GasEstimate, error)
}

// base holds what every handler shares
type base struct {
	provisioner WalletProvisioner
}

func (b base) createWallet(ctx context.Context, h Handler, req CreateWalletRequest) (*types.WalletRecord, bool, error) {
	if req.Chain == nil {
		return nil, false, fmt.Errorf("chain is required")
	}
	address, err := h.ValidateAddress(req.Chain, req.Address)
	if err != nil {
		return nil, false, err
	}
	return b.provisioner.CreateWallet(ctx, req.UserID, address, req.Chain.Config(), req.Linkage)
}

func wrongVariant(family types.ChainFamily, v Variant) error {
	return fmt.Errorf("chain variant %T routed to %s handler", v, family)
}
