package chain

import (
	"context"
	"math/big"

	"github.com/gagliardetto/solana-go"

	apperrors "github.com/better-wallet/agent-custody/pkg/errors"
	"github.com/better-wallet/agent-custody/pkg/types"
)

// SolanaHandler handles Solana clusters. Balance lookup and broadcast are not supported yet.
type SolanaHandler struct {
	base
}

// NewSolanaHandler creates the Solana handler
func NewSolanaHandler(provisioner WalletProvisioner) *SolanaHandler {
	return &SolanaHandler{base: base{provisioner: provisioner}}
}

// Family returns SOLANA
func (h *SolanaHandler) Family() types.ChainFamily { return types.ChainFamilySolana }

// ValidateAddress parses a base58 public key
func (h *SolanaHandler) ValidateAddress(chain Variant, address string) (string, error) {
	sol, ok := chain.(Solana)
	if !ok {
		return "", wrongVariant(h.Family(), chain)
	}
	pub, err := solana.PublicKeyFromBase58(address)
	if err != nil || pub.IsZero() {
		return "", apperrors.InvalidAddress(sol.cfg.ID, address)
	}
	return pub.String(), nil
}

// CreateWallet provisions a deployed Solana wallet record
func (h *SolanaHandler) CreateWallet(ctx context.Context, req CreateWalletRequest) (*types.WalletRecord, bool, error) {
	return h.createWallet(ctx, h, req)
}

// GetBalance is not implemented for Solana
func (h *SolanaHandler) GetBalance(ctx context.Context, chain Variant, address string) (*big.Int, error) {
	return nil, apperrors.UnimplementedCapability(string(h.Family()), "get_balance")
}

// SubmitTransaction is not implemented for Solana
func (h *SolanaHandler) SubmitTransaction(ctx context.Context, chain Variant, signedTx []byte) (string, error) {
	return "", apperrors.UnimplementedCapability(string(h.Family()), "submit_transaction")
}

var _ Handler = (*SolanaHandler)(nil)
