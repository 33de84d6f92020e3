package signing

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/better-wallet/agent-custody/internal/crypto"
	"github.com/better-wallet/agent-custody/internal/secmem"
	apperrors "github.com/better-wallet/agent-custody/pkg/errors"
	"github.com/better-wallet/agent-custody/pkg/types"
)

func mailTypedData() apitypes.TypedData {
	return apitypes.TypedData{
		Types: apitypes.Types{
			"Person": {
				{Name: "name", Type: "string"},
				{Name: "wallet", Type: "address"},
			},
			"Mail": {
				{Name: "from", Type: "Person"},
				{Name: "to", Type: "Person"},
				{Name: "contents", Type: "string"},
			},
		},
		PrimaryType: "Mail",
		Domain: apitypes.TypedDataDomain{
			Name:              "Ether Mail",
			Version:           "1",
			ChainId:           math.NewHexOrDecimal256(1),
			VerifyingContract: "0xCcCCccccCCCCcCCCCCCcCcCccCcCCCcCcccccccC",
		},
		Message: apitypes.TypedDataMessage{
			"from": map[string]interface{}{
				"name":   "Cow",
				"wallet": "0xCD2a3d9F938E13CD947Ec05AbC7FE734Df8DD826",
			},
			"to": map[string]interface{}{
				"name":   "Bob",
				"wallet": "0xbBbBBBBbbBBBbbbBbbBbbbbBBbBbbbbBbBbbBBbB",
			},
			"contents": "Hello, Bob!",
		},
	}
}

func newKey(t *testing.T) (*secmem.Key, string) {
	t.Helper()
	raw, address, err := crypto.GenerateKey(types.CurveSecp256k1)
	require.NoError(t, err)
	return secmem.NewKey(types.CurveSecp256k1, raw), address
}

func TestTypedDataHash_MatchesReference(t *testing.T) {
	td := mailTypedData()

	withDomain := mailTypedData()
	withDomain.Types[DomainType] = []apitypes.Type{
		{Name: "name", Type: "string"},
		{Name: "version", Type: "string"},
		{Name: "chainId", Type: "uint256"},
		{Name: "verifyingContract", Type: "address"},
	}
	expected, _, err := apitypes.TypedDataAndHash(withDomain)
	require.NoError(t, err)

	hash, err := TypedDataHash(td)
	require.NoError(t, err)
	assert.Equal(t, expected, hash.Bytes())
	assert.Equal(t, "0xbe609aee343fb3c4b28e1df9e632fca64fcfaede20f02e86244efddf30957bd2", hash.Hex())
}

func TestTypedDataHash_IgnoresSuppliedDomainType(t *testing.T) {
	base, err := TypedDataHash(mailTypedData())
	require.NoError(t, err)

	tests := []struct {
		name   string
		fields []apitypes.Type
	}{
		{"empty", nil},
		{"reordered", []apitypes.Type{
			{Name: "chainId", Type: "uint256"},
			{Name: "name", Type: "string"},
		}},
		{"extra field", []apitypes.Type{
			{Name: "name", Type: "string"},
			{Name: "salt", Type: "bytes32"},
			{Name: "bogus", Type: "uint8"},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			td := mailTypedData()
			td.Types[DomainType] = tt.fields

			hash, err := TypedDataHash(td)
			require.NoError(t, err)
			assert.Equal(t, base, hash)
		})
	}

	t.Run("caller types untouched", func(t *testing.T) {
		td := mailTypedData()
		td.Types[DomainType] = nil
		_, err := TypedDataHash(td)
		require.NoError(t, err)
		assert.Nil(t, td.Types[DomainType])
	})
}

func TestTypedDataHash_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*apitypes.TypedData)
	}{
		{"missing primary type", func(td *apitypes.TypedData) { td.PrimaryType = "" }},
		{"undefined primary type", func(td *apitypes.TypedData) { td.PrimaryType = "Order" }},
		{"domain as primary type", func(td *apitypes.TypedData) { td.PrimaryType = DomainType }},
		{"bad field value", func(td *apitypes.TypedData) { td.Message["contents"] = 42 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			td := mailTypedData()
			tt.mutate(&td)
			_, err := TypedDataHash(td)
			require.Error(t, err)
			assert.True(t, errors.Is(err, apperrors.ErrBadRequest))
		})
	}
}

func TestService_Sign(t *testing.T) {
	svc := NewService(nil)
	ctx := context.Background()

	key, address := newKey(t)
	defer key.Destroy()

	first, err := svc.Sign(ctx, key, mailTypedData())
	require.NoError(t, err)
	second, err := svc.Sign(ctx, key, mailTypedData())
	require.NoError(t, err)

	for _, sig := range []*Signature{first, second} {
		require.Len(t, sig.Bytes, 65)
		assert.Contains(t, []byte{27, 28}, sig.Bytes[64])

		recovered, err := RecoverAddress(sig.Hash, sig.Bytes)
		require.NoError(t, err)
		assert.Equal(t, address, recovered.Hex())
	}

	assert.Equal(t, first.Hash, second.Hash)
	assert.Equal(t, first.Hex, second.Hex)
}

func TestService_SignRejects(t *testing.T) {
	svc := NewService(nil)
	ctx := context.Background()

	t.Run("ed25519 key", func(t *testing.T) {
		raw, _, err := crypto.GenerateKey(types.CurveEd25519)
		require.NoError(t, err)
		key := secmem.NewKey(types.CurveEd25519, raw)
		defer key.Destroy()

		_, err = svc.Sign(ctx, key, mailTypedData())
		require.Error(t, err)
		assert.True(t, errors.Is(err, apperrors.ErrUnimplementedCapability))
	})

	t.Run("destroyed key", func(t *testing.T) {
		key, _ := newKey(t)
		key.Destroy()

		_, err := svc.Sign(ctx, key, mailTypedData())
		assert.Error(t, err)
	})

	t.Run("nil key", func(t *testing.T) {
		_, err := svc.Sign(ctx, nil, mailTypedData())
		assert.Error(t, err)
	})
}

func TestRecoverAddress_BadLength(t *testing.T) {
	hash, err := TypedDataHash(mailTypedData())
	require.NoError(t, err)

	_, err = RecoverAddress(hash, make([]byte, 64))
	assert.Error(t, err)
}
