// Package validation checks EVM transactions and calls before they are relayed to an RPC node.
package validation

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"

	apperrors "github.com/better-wallet/agent-custody/pkg/errors"
)

// Intrinsic gas of a plain transfer
const minGasLimit = 21000

// Limits bounds what the service will relay. Zero values disable a bound.
type Limits struct {
	MaxValue    *big.Int
	MaxDataSize int
	MaxGasLimit uint64
	MaxFeeCap   *big.Int
}

// DefaultLimits mirrors the defaults of common execution clients' transaction pools
var DefaultLimits = Limits{
	MaxDataSize: 128 * 1024,
	MaxGasLimit: 30_000_000,
	MaxFeeCap:   new(big.Int).SetUint64(100_000_000_000_000), // 100000 gwei
}

// SignedTransaction decodes a raw legacy or typed-envelope transaction and checks
// that it is signed for chainID and within limits.
// Returns the decoded transaction and its sender.
func SignedTransaction(raw []byte, chainID int64, limits Limits) (*ethtypes.Transaction, common.Address, error) {
	if len(raw) == 0 {
		return nil, common.Address{}, apperrors.BadRequest("signed transaction is empty")
	}

	tx := new(ethtypes.Transaction)
	if err := tx.UnmarshalBinary(raw); err != nil {
		return nil, common.Address{}, apperrors.BadRequest("signed transaction could not be decoded")
	}
	if !tx.Protected() {
		return nil, common.Address{}, apperrors.BadRequest("signed transaction is not replay protected")
	}

	want := big.NewInt(chainID)
	if tx.ChainId().Cmp(want) != 0 {
		return nil, common.Address{}, apperrors.BadRequest(fmt.Sprintf("transaction chain id %s does not match chain %d", tx.ChainId(), chainID))
	}

	sender, err := ethtypes.Sender(ethtypes.LatestSignerForChainID(want), tx)
	if err != nil {
		return nil, common.Address{}, apperrors.BadRequest("signed transaction has an invalid signature")
	}

	if err := ValidateGasParameters(tx.Gas(), tx.GasFeeCap(), tx.GasTipCap(), limits); err != nil {
		return nil, common.Address{}, err
	}
	if err := Call(tx.Value(), tx.Data(), limits); err != nil {
		return nil, common.Address{}, err
	}

	return tx, sender, nil
}

// Call validates the value and calldata of a call. A nil value is a zero transfer.
func Call(value *big.Int, data []byte, limits Limits) error {
	if value != nil {
		if err := ValidateTransactionValue(value, limits.MaxValue); err != nil {
			return err
		}
	}
	return ValidateTransactionData(data, limits.MaxDataSize)
}

// ValidateTransactionValue validates a transaction value
func ValidateTransactionValue(value *big.Int, maxValue *big.Int) error {
	if value == nil {
		return apperrors.BadRequest("value cannot be nil")
	}
	if value.Sign() < 0 {
		return apperrors.BadRequest("value cannot be negative")
	}
	if maxValue != nil && value.Cmp(maxValue) > 0 {
		return apperrors.BadRequest(fmt.Sprintf("value exceeds maximum allowed: %s > %s", value, maxValue))
	}
	return nil
}

// ValidateGasParameters validates gas limit and EIP-1559 fee caps.
// Legacy transactions report their gas price as both caps.
func ValidateGasParameters(gasLimit uint64, gasFeeCap, gasTipCap *big.Int, limits Limits) error {
	if gasLimit < minGasLimit {
		return apperrors.BadRequest(fmt.Sprintf("gas limit too low: minimum %d", minGasLimit))
	}
	if limits.MaxGasLimit > 0 && gasLimit > limits.MaxGasLimit {
		return apperrors.BadRequest(fmt.Sprintf("gas limit too high: maximum %d", limits.MaxGasLimit))
	}

	if gasFeeCap == nil || gasTipCap == nil {
		return apperrors.BadRequest("gas fee caps are required")
	}
	if gasFeeCap.Sign() <= 0 {
		return apperrors.BadRequest("gas fee cap must be positive")
	}
	if gasTipCap.Sign() < 0 {
		return apperrors.BadRequest("gas tip cap cannot be negative")
	}
	if gasTipCap.Cmp(gasFeeCap) > 0 {
		return apperrors.BadRequest("gas tip cap cannot exceed gas fee cap")
	}
	if limits.MaxFeeCap != nil && gasFeeCap.Cmp(limits.MaxFeeCap) > 0 {
		return apperrors.BadRequest(fmt.Sprintf("gas fee cap too high: maximum %s wei", limits.MaxFeeCap))
	}

	return nil
}

// ValidateTransactionData validates transaction calldata size
func ValidateTransactionData(data []byte, maxDataSize int) error {
	if maxDataSize > 0 && len(data) > maxDataSize {
		return apperrors.BadRequest(fmt.Sprintf("transaction data too large: %d bytes > %d bytes max", len(data), maxDataSize))
	}
	return nil
}
