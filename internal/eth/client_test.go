package eth

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/better-wallet/agent-custody/internal/eth/ethtest"
)

const testAddress = "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"

func TestNewClient_RequiresURL(t *testing.T) {
	_, err := NewClient("", 1)
	assert.Error(t, err)
}

func TestClient_Reads(t *testing.T) {
	srv := ethtest.NewServer(t, map[string]ethtest.Handler{
		"eth_chainId":     ethtest.Static("0x2105"),
		"eth_getBalance":  ethtest.Static("0xde0b6b3a7640000"),
		"eth_getCode":     ethtest.Static("0x6080"),
		"eth_estimateGas": ethtest.Static("0x5208"),
	})

	client, err := NewClient(srv.URL, 8453)
	require.NoError(t, err)
	defer client.Close()
	ctx := context.Background()

	require.NoError(t, client.VerifyChainID(ctx))

	balance, err := client.GetBalance(ctx, testAddress)
	require.NoError(t, err)
	assert.Equal(t, "1000000000000000000", balance.String())

	deployed, err := client.HasCode(ctx, testAddress)
	require.NoError(t, err)
	assert.True(t, deployed)

	gas, err := client.EstimateGas(ctx, testAddress, testAddress, big.NewInt(1), nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(21000*120/100), gas)
}

func TestClient_VerifyChainIDMismatch(t *testing.T) {
	srv := ethtest.NewServer(t, map[string]ethtest.Handler{
		"eth_chainId": ethtest.Static("0x1"),
	})

	client, err := NewClient(srv.URL, 8453)
	require.NoError(t, err)
	defer client.Close()

	assert.Error(t, client.VerifyChainID(context.Background()))
}

func TestClient_SendRawTransaction(t *testing.T) {
	var received string
	srv := ethtest.NewServer(t, map[string]ethtest.Handler{
		"eth_sendRawTransaction": func(params []json.RawMessage) (any, error) {
			if len(params) != 1 {
				return nil, errors.New("expected one param")
			}
			if err := json.Unmarshal(params[0], &received); err != nil {
				return nil, err
			}
			var tx types.Transaction
			if err := tx.UnmarshalBinary(hexutil.MustDecode(received)); err != nil {
				return nil, errors.New("rlp: invalid transaction")
			}
			return tx.Hash().Hex(), nil
		},
	})

	client, err := NewClient(srv.URL, 8453)
	require.NoError(t, err)
	defer client.Close()
	ctx := context.Background()

	raw, _ := ethtest.SignedTx(t, 8453)
	hash, err := client.SendRawTransaction(ctx, raw)
	require.NoError(t, err)
	assert.Equal(t, hexutil.Encode(raw), received)

	var tx types.Transaction
	require.NoError(t, tx.UnmarshalBinary(raw))
	assert.Equal(t, tx.Hash().Hex(), hash)

	t.Run("node rejection names chain and method", func(t *testing.T) {
		_, err := client.SendRawTransaction(ctx, []byte{0x01, 0x02})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "chain 8453 eth_sendRawTransaction")
	})
}

func TestClient_CallTimeout(t *testing.T) {
	srv := ethtest.NewServer(t, map[string]ethtest.Handler{
		"eth_getBalance": func([]json.RawMessage) (any, error) {
			time.Sleep(200 * time.Millisecond)
			return "0x1", nil
		},
	})

	client, err := NewClient(srv.URL, 8453)
	require.NoError(t, err)
	defer client.Close()
	client.timeout = 20 * time.Millisecond

	_, err = client.GetBalance(context.Background(), testAddress)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestBundler_SendUserOperation(t *testing.T) {
	entryPoint := common.HexToAddress("0x5FF137D4b0FDCD49DcA30c7CF57E578a026d2789")
	want := common.HexToHash("0x1234")

	var gotEntryPoint common.Address
	var gotOp UserOperation
	srv := ethtest.NewServer(t, map[string]ethtest.Handler{
		"eth_sendUserOperation": func(params []json.RawMessage) (any, error) {
			if len(params) != 2 {
				return nil, errors.New("expected two params")
			}
			if err := json.Unmarshal(params[0], &gotOp); err != nil {
				return nil, err
			}
			if err := json.Unmarshal(params[1], &gotEntryPoint); err != nil {
				return nil, err
			}
			return want, nil
		},
	})

	bundler, err := NewBundler(context.Background(), srv.URL, entryPoint)
	require.NoError(t, err)
	defer bundler.Close()

	op := &UserOperation{
		Sender:   common.HexToAddress(testAddress),
		Nonce:    (*hexutil.Big)(big.NewInt(0)),
		InitCode: hexutil.Bytes{0xde, 0xad},
	}
	hash, err := bundler.SendUserOperation(context.Background(), op)
	require.NoError(t, err)
	assert.Equal(t, want, hash)
	assert.Equal(t, entryPoint, gotEntryPoint)
	assert.Equal(t, op.Sender, gotOp.Sender)
	assert.Equal(t, op.InitCode, gotOp.InitCode)
	assert.Equal(t, entryPoint, bundler.EntryPoint())
}
