package app

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/stretchr/testify/require"

	"github.com/better-wallet/agent-custody/internal/storage/sqlite"
)

var testMasterSecret = bytes.Repeat([]byte{0x42}, 32)

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "custody.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func orderTypedData() apitypes.TypedData {
	return apitypes.TypedData{
		Types: apitypes.Types{
			"Order": {
				{Name: "maker", Type: "address"},
				{Name: "market", Type: "string"},
				{Name: "amount", Type: "uint256"},
			},
		},
		PrimaryType: "Order",
		Domain: apitypes.TypedDataDomain{
			Name:              "Exchange",
			Version:           "1",
			ChainId:           math.NewHexOrDecimal256(8453),
			VerifyingContract: "0xCcCCccccCCCCcCCCCCCcCcCccCcCCCcCcccccccC",
		},
		Message: apitypes.TypedDataMessage{
			"maker":  "0xCD2a3d9F938E13CD947Ec05AbC7FE734Df8DD826",
			"market": "ETH-USDC",
			"amount": "1000000",
		},
	}
}
