package chain

import (
	"context"
	"math/big"

	"github.com/btcsuite/btcd/btcutil"

	apperrors "github.com/better-wallet/agent-custody/pkg/errors"
	"github.com/better-wallet/agent-custody/pkg/types"
)

// BitcoinHandler handles Bitcoin networks. Balance lookup and broadcast are not supported yet.
type BitcoinHandler struct {
	base
}

// NewBitcoinHandler creates the Bitcoin handler
func NewBitcoinHandler(provisioner WalletProvisioner) *BitcoinHandler {
	return &BitcoinHandler{base: base{provisioner: provisioner}}
}

// Family returns BITCOIN
func (h *BitcoinHandler) Family() types.ChainFamily { return types.ChainFamilyBitcoin }

// ValidateAddress decodes address for the variant's network
func (h *BitcoinHandler) ValidateAddress(chain Variant, address string) (string, error) {
	btc, ok := chain.(Bitcoin)
	if !ok {
		return "", wrongVariant(h.Family(), chain)
	}
	decoded, err := btcutil.DecodeAddress(address, btc.params)
	if err != nil || !decoded.IsForNet(btc.params) {
		return "", apperrors.InvalidAddress(btc.cfg.ID, address)
	}
	return decoded.EncodeAddress(), nil
}

// CreateWallet provisions a deployed Bitcoin wallet record
func (h *BitcoinHandler) CreateWallet(ctx context.Context, req CreateWalletRequest) (*types.WalletRecord, bool, error) {
	return h.createWallet(ctx, h, req)
}

// GetBalance is not implemented for Bitcoin
func (h *BitcoinHandler) GetBalance(ctx context.Context, chain Variant, address string) (*big.Int, error) {
	return nil, apperrors.UnimplementedCapability(string(h.Family()), "get_balance")
}

// SubmitTransaction is not implemented for Bitcoin
func (h *BitcoinHandler) SubmitTransaction(ctx context.Context, chain Variant, signedTx []byte) (string, error) {
	return "", apperrors.UnimplementedCapability(string(h.Family()), "submit_transaction")
}

var _ Handler = (*BitcoinHandler)(nil)
