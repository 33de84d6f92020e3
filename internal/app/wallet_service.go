package app

import (
	"context"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/better-wallet/agent-custody/internal/chain"
	"github.com/better-wallet/agent-custody/internal/eth"
	"github.com/better-wallet/agent-custody/internal/wallet"
	apperrors "github.com/better-wallet/agent-custody/pkg/errors"
	"github.com/better-wallet/agent-custody/pkg/types"
)

// WalletService handles wallet lifecycle operations across chain families
type WalletService struct {
	dispatcher  *chain.Dispatcher
	provisioner *wallet.Provisioner
}

// NewWalletService creates a new wallet service
func NewWalletService(dispatcher *chain.Dispatcher, provisioner *wallet.Provisioner) *WalletService {
	return &WalletService{
		dispatcher:  dispatcher,
		provisioner: provisioner,
	}
}

// ProvisionWalletRequest represents a request to provision a wallet
type ProvisionWalletRequest struct {
	UserID  string              `json:"user_id"`
	Chain   string              `json:"chain"`
	Address string              `json:"address"`
	Linkage types.SignerLinkage `json:"linkage"`
}

// ProvisionWalletResponse is the stored wallet and whether this call created it
type ProvisionWalletResponse struct {
	Wallet  *types.WalletRecord `json:"wallet"`
	Created bool                `json:"created"`
}

// Provision idempotently creates the wallet through its family handler
func (s *WalletService) Provision(ctx context.Context, req ProvisionWalletRequest) (*ProvisionWalletResponse, error) {
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		return nil, apperrors.BadRequest("user_id is required")
	}

	h, v, err := s.dispatcher.ResolveHandler(req.Chain)
	if err != nil {
		return nil, err
	}

	rec, created, err := h.CreateWallet(ctx, chain.CreateWalletRequest{
		UserID:  userID,
		Address: req.Address,
		Chain:   v,
		Linkage: req.Linkage,
	})
	if err != nil {
		return nil, err
	}
	return &ProvisionWalletResponse{Wallet: rec, Created: created}, nil
}

// DeployWalletRequest represents a request to deploy an EVM smart account
type DeployWalletRequest struct {
	Chain   string             `json:"-"`
	Address string             `json:"-"`
	UserOp  *eth.UserOperation `json:"user_operation,omitempty"`
}

// Deploy deploys a provisioned EVM smart account. Other families report
// UnimplementedCapability.
func (s *WalletService) Deploy(ctx context.Context, req DeployWalletRequest) (*chain.DeployResult, error) {
	h, v, err := s.dispatcher.ResolveAccountAbstraction(req.Chain, "deploy_wallet")
	if err != nil {
		return nil, err
	}

	address, err := h.ValidateAddress(v, req.Address)
	if err != nil {
		return nil, err
	}
	if _, err := s.provisioner.Get(ctx, address, v.Config()); err != nil {
		return nil, err
	}

	return h.DeployWallet(ctx, chain.DeployRequest{
		Chain:   v,
		Address: address,
		UserOp:  req.UserOp,
	})
}

// Deactivate marks the wallet inactive
func (s *WalletService) Deactivate(ctx context.Context, chainID, address string) error {
	v, address, err := s.resolveAddress(chainID, address)
	if err != nil {
		return err
	}
	return s.provisioner.Deactivate(ctx, address, v.Config())
}

// Get returns one wallet record
func (s *WalletService) Get(ctx context.Context, chainID, address string) (*types.WalletRecord, error) {
	v, address, err := s.resolveAddress(chainID, address)
	if err != nil {
		return nil, err
	}
	return s.provisioner.Get(ctx, address, v.Config())
}

// List returns every wallet owned by userID
func (s *WalletService) List(ctx context.Context, userID string) ([]*types.WalletRecord, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, apperrors.BadRequest("user_id is required")
	}
	return s.provisioner.ListByUser(ctx, userID)
}

// Balance is a native balance in the chain's smallest unit
type Balance struct {
	Chain   string   `json:"chain"`
	Address string   `json:"address"`
	Amount  *big.Int `json:"amount"`
}

// Balance returns the wallet's native balance
func (s *WalletService) Balance(ctx context.Context, chainID, address string) (*Balance, error) {
	h, v, err := s.dispatcher.ResolveHandler(chainID)
	if err != nil {
		return nil, err
	}
	address, err = h.ValidateAddress(v, address)
	if err != nil {
		return nil, err
	}

	amount, err := h.GetBalance(ctx, v, address)
	if err != nil {
		return nil, err
	}
	return &Balance{Chain: v.Config().ID, Address: address, Amount: amount}, nil
}

// SubmitTransaction broadcasts a signed transaction on chainID
func (s *WalletService) SubmitTransaction(ctx context.Context, chainID string, signedTx []byte) (string, error) {
	h, v, err := s.dispatcher.ResolveHandler(chainID)
	if err != nil {
		return "", err
	}
	return h.SubmitTransaction(ctx, v, signedTx)
}

// SubmitUserOperation relays an ERC-4337 user operation through the bundler
func (s *WalletService) SubmitUserOperation(ctx context.Context, chainID string, op *eth.UserOperation) (common.Hash, error) {
	h, v, err := s.dispatcher.ResolveAccountAbstraction(chainID, "submit_user_operation")
	if err != nil {
		return common.Hash{}, err
	}
	return h.SubmitUserOperation(ctx, v, op)
}

// EstimateGasRequest represents a request to estimate gas for a call
type EstimateGasRequest struct {
	Chain string        `json:"-"`
	From  string        `json:"from"`
	To    string        `json:"to,omitempty"`
	Value *hexutil.Big  `json:"value,omitempty"`
	Data  hexutil.Bytes `json:"data,omitempty"`
}

// EstimateGas estimates gas and fees for a call on an EVM chain
func (s *WalletService) EstimateGas(ctx context.Context, req EstimateGasRequest) (*chain.GasEstimate, error) {
	h, v, err := s.dispatcher.ResolveAccountAbstraction(req.Chain, "estimate_gas")
	if err != nil {
		return nil, err
	}
	return h.EstimateGas(ctx, chain.GasEstimateRequest{
		Chain: v,
		From:  req.From,
		To:    req.To,
		Value: (*big.Int)(req.Value),
		Data:  req.Data,
	})
}

func (s *WalletService) resolveAddress(chainID, address string) (chain.Variant, string, error) {
	h, v, err := s.dispatcher.ResolveHandler(chainID)
	if err != nil {
		return nil, "", err
	}
	canonical, err := h.ValidateAddress(v, address)
	if err != nil {
		return nil, "", err
	}
	return v, canonical, nil
}
