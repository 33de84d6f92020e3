package ethtest

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

// TxOption adjusts the dynamic-fee transaction built by SignedTx
type TxOption func(*ethtypes.DynamicFeeTx)

// WithGas sets the gas limit
func WithGas(gas uint64) TxOption {
	return func(tx *ethtypes.DynamicFeeTx) { tx.Gas = gas }
}

// WithData sets the calldata
func WithData(data []byte) TxOption {
	return func(tx *ethtypes.DynamicFeeTx) { tx.Data = data }
}

// WithFees sets the fee and tip caps
func WithFees(feeCap, tipCap int64) TxOption {
	return func(tx *ethtypes.DynamicFeeTx) {
		tx.GasFeeCap = big.NewInt(feeCap)
		tx.GasTipCap = big.NewInt(tipCap)
	}
}

// SignedTx returns a binary-encoded EIP-1559 transfer signed by a fresh key for chainID,
// together with the signer's address.
func SignedTx(t *testing.T, chainID int64, opts ...TxOption) ([]byte, common.Address) {
	t.Helper()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	to := common.HexToAddress("0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed")
	inner := &ethtypes.DynamicFeeTx{
		ChainID:   big.NewInt(chainID),
		Nonce:     0,
		GasTipCap: big.NewInt(1_000_000_000),
		GasFeeCap: big.NewInt(30_000_000_000),
		Gas:       21000,
		To:        &to,
		Value:     big.NewInt(1),
	}
	for _, opt := range opts {
		opt(inner)
	}

	tx, err := ethtypes.SignNewTx(key, ethtypes.LatestSignerForChainID(big.NewInt(chainID)), inner)
	require.NoError(t, err)

	raw, err := tx.MarshalBinary()
	require.NoError(t, err)
	return raw, crypto.PubkeyToAddress(key.PublicKey)
}
