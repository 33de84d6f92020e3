package chain

import (
	"context"
	"fmt"
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"github.com/better-wallet/agent-custody/internal/eth"
	"github.com/better-wallet/agent-custody/internal/validation"
	apperrors "github.com/better-wallet/agent-custody/pkg/errors"
	"github.com/better-wallet/agent-custody/pkg/types"
)

// EVMClient is the RPC surface the EVM handler needs
type EVMClient interface {
	GetBalance(ctx context.Context, address string) (*big.Int, error)
	HasCode(ctx context.Context, address string) (bool, error)
	EstimateGas(ctx context.Context, from, to string, value *big.Int, data []byte) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	SendRawTransaction(ctx context.Context, rawTx []byte) (string, error)
}

// UserOperationSender submits ERC-4337 user operations
type UserOperationSender interface {
	SendUserOperation(ctx context.Context, op *eth.UserOperation) (common.Hash, error)
}

// EVMHandler handles every EVM chain. RPC clients are keyed by numeric chain id.
type EVMHandler struct {
	base
	clients map[int64]EVMClient
	bundler UserOperationSender
	limits  validation.Limits
}

// NewEVMHandler creates the EVM handler. clients and bundler may be empty;
// operations that need them then fail with a configuration error.
func NewEVMHandler(provisioner WalletProvisioner, clients map[int64]EVMClient, bundler UserOperationSender) *EVMHandler {
	if clients == nil {
		clients = map[int64]EVMClient{}
	}
	return &EVMHandler{
		base:    base{provisioner: provisioner},
		clients: clients,
		bundler: bundler,
		limits:  validation.DefaultLimits,
	}
}

// Family returns EVM
func (h *EVMHandler) Family() types.ChainFamily { return types.ChainFamilyEVM }

// ValidateAddress accepts a 20-byte hex address and returns its EIP-55 checksum form
func (h *EVMHandler) ValidateAddress(chain Variant, address string) (string, error) {
	evm, ok := chain.(EVM)
	if !ok {
		return "", wrongVariant(h.Family(), chain)
	}
	if !common.IsHexAddress(address) {
		return "", apperrors.InvalidAddress(evm.cfg.ID, address)
	}
	return common.HexToAddress(address).Hex(), nil
}

// CreateWallet provisions a counterfactual smart-account record
func (h *EVMHandler) CreateWallet(ctx context.Context, req CreateWalletRequest) (*types.WalletRecord, bool, error) {
	return h.createWallet(ctx, h, req)
}

// GetBalance returns the wei balance
func (h *EVMHandler) GetBalance(ctx context.Context, chain Variant, address string) (*big.Int, error) {
	client, addr, err := h.resolve(chain, address)
	if err != nil {
		return nil, err
	}
	return client.GetBalance(ctx, addr)
}

// SubmitTransaction broadcasts a signed, RLP or typed-envelope encoded transaction.
// The transaction must be signed for this chain's id.
func (h *EVMHandler) SubmitTransaction(ctx context.Context, chain Variant, signedTx []byte) (string, error) {
	evm, ok := chain.(EVM)
	if !ok {
		return "", wrongVariant(h.Family(), chain)
	}
	client, err := h.client(evm)
	if err != nil {
		return "", err
	}
	if _, _, err := validation.SignedTransaction(signedTx, evm.ChainID(), h.limits); err != nil {
		return "", err
	}
	return client.SendRawTransaction(ctx, signedTx)
}

// DeployWallet deploys the smart account at req.Address.
// If code is already present the record is marked deployed; otherwise the
// initCode user operation is submitted and the record stays counterfactual
// until a later call observes the code.
func (h *EVMHandler) DeployWallet(ctx context.Context, req DeployRequest) (*DeployResult, error) {
	client, addr, err := h.resolve(req.Chain, req.Address)
	if err != nil {
		return nil, err
	}

	deployed, err := client.HasCode(ctx, addr)
	if err != nil {
		return nil, err
	}
	if deployed {
		if _, err := h.provisioner.MarkDeployed(ctx, addr, req.Chain.Config()); err != nil {
			return nil, err
		}
		return &DeployResult{Deployed: true}, nil
	}

	if req.UserOp == nil || len(req.UserOp.InitCode) == 0 {
		return nil, apperrors.BadRequest("user operation with initCode is required to deploy")
	}
	if req.UserOp.Sender != common.HexToAddress(addr) {
		return nil, apperrors.BadRequest("user operation sender does not match wallet address")
	}

	hash, err := h.SubmitUserOperation(ctx, req.Chain, req.UserOp)
	if err != nil {
		return nil, err
	}
	return &DeployResult{Deployed: false, UserOpHash: &hash}, nil
}

// SubmitUserOperation relays op through the bundler
func (h *EVMHandler) SubmitUserOperation(ctx context.Context, chain Variant, op *eth.UserOperation) (common.Hash, error) {
	if _, ok := chain.(EVM); !ok {
		return common.Hash{}, wrongVariant(h.Family(), chain)
	}
	if h.bundler == nil {
		return common.Hash{}, apperrors.Configuration("BUNDLER_URL")
	}
	if op == nil {
		return common.Hash{}, apperrors.BadRequest("user operation is required")
	}
	return h.bundler.SendUserOperation(ctx, op)
}

// EstimateGas returns a buffered gas limit and EIP-1559 fee suggestions
func (h *EVMHandler) EstimateGas(ctx context.Context, req GasEstimateRequest) (*GasEstimate, error) {
	client, from, err := h.resolve(req.Chain, req.From)
	if err != nil {
		return nil, err
	}
	if err := validation.Call(req.Value, req.Data, h.limits); err != nil {
		return nil, err
	}
	to := ""
	if req.To != "" {
		if to, err = h.ValidateAddress(req.Chain, req.To); err != nil {
			return nil, err
		}
	}

	gas, err := client.EstimateGas(ctx, from, to, req.Value, req.Data)
	if err != nil {
		return nil, err
	}
	tip, err := client.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, err
	}
	price, err := client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, err
	}

	return &GasEstimate{
		GasLimit:             gas,
		MaxFeePerGas:         new(big.Int).Add(price, tip),
		MaxPriorityFeePerGas: tip,
	}, nil
}

func (h *EVMHandler) resolve(chain Variant, address string) (EVMClient, string, error) {
	evm, ok := chain.(EVM)
	if !ok {
		return nil, "", wrongVariant(h.Family(), chain)
	}
	addr, err := h.ValidateAddress(chain, address)
	if err != nil {
		return nil, "", err
	}
	client, err := h.client(evm)
	if err != nil {
		return nil, "", err
	}
	return client, addr, nil
}

func (h *EVMHandler) client(chain EVM) (EVMClient, error) {
	client, ok := h.clients[chain.ChainID()]
	if !ok {
		return nil, apperrors.Configuration(fmt.Sprintf("EVM_RPC_URLS[%s]", strconv.FormatInt(chain.ChainID(), 10)))
	}
	return client, nil
}

var _ AccountAbstractionHandler = (*EVMHandler)(nil)
