package chain

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/better-wallet/agent-custody/internal/eth"
	"github.com/better-wallet/agent-custody/internal/eth/ethtest"
	apperrors "github.com/better-wallet/agent-custody/pkg/errors"
	"github.com/better-wallet/agent-custody/pkg/types"
)

type fakeProvisioner struct {
	mu       sync.Mutex
	created  []string
	deployed []string
}

func (f *fakeProvisioner) CreateWallet(_ context.Context, userID, address string, chain types.ChainConfig, linkage types.SignerLinkage) (*types.WalletRecord, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, address)
	return &types.WalletRecord{UserID: userID, Address: address, ChainID: chain.NumericChainID(), ChainFamily: chain.Family, ChainName: chain.ID}, true, nil
}

func (f *fakeProvisioner) MarkDeployed(_ context.Context, address string, _ types.ChainConfig) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deployed = append(f.deployed, address)
	return true, nil
}

type fakeEVMClient struct {
	balance *big.Int
	hasCode bool
	sent    [][]byte
}

func (f *fakeEVMClient) GetBalance(context.Context, string) (*big.Int, error) { return f.balance, nil }
func (f *fakeEVMClient) HasCode(context.Context, string) (bool, error)        { return f.hasCode, nil }
func (f *fakeEVMClient) EstimateGas(context.Context, string, string, *big.Int, []byte) (uint64, error) {
	return 25200, nil
}
func (f *fakeEVMClient) SuggestGasPrice(context.Context) (*big.Int, error)  { return big.NewInt(100), nil }
func (f *fakeEVMClient) SuggestGasTipCap(context.Context) (*big.Int, error) { return big.NewInt(2), nil }
func (f *fakeEVMClient) SendRawTransaction(_ context.Context, raw []byte) (string, error) {
	f.sent = append(f.sent, raw)
	return "0xabc", nil
}

type fakeBundler struct {
	ops []*eth.UserOperation
}

func (f *fakeBundler) SendUserOperation(_ context.Context, op *eth.UserOperation) (common.Hash, error) {
	f.ops = append(f.ops, op)
	return common.HexToHash("0x01"), nil
}

const (
	evmAddress     = "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"
	btcAddress     = "bc1qar0srrr7xfkvy5l643lydnw9re59gtzzwf5mdq"
	btcTestAddress = "tb1qw508d6qejxtdg4y5r3zarvary0c5xw7kxpjzsx"
	solAddress     = "4Nd1mBQtrMJVYVfKf2PJy9NZUZdTAsp7D4xWLs4gDB4T"
)

var documentedCurves = map[string]types.Curve{
	"ethereum":        types.CurveSecp256k1,
	"sepolia":         types.CurveSecp256k1,
	"base":            types.CurveSecp256k1,
	"base-sepolia":    types.CurveSecp256k1,
	"arbitrum":        types.CurveSecp256k1,
	"optimism":        types.CurveSecp256k1,
	"polygon":         types.CurveSecp256k1,
	"bitcoin":         types.CurveSecp256k1,
	"bitcoin-testnet": types.CurveSecp256k1,
	"solana":          types.CurveEd25519,
	"solana-devnet":   types.CurveEd25519,
}

func newTestDispatcher() (*Dispatcher, *fakeProvisioner, *fakeEVMClient, *fakeBundler) {
	prov := &fakeProvisioner{}
	client := &fakeEVMClient{balance: big.NewInt(42)}
	bundler := &fakeBundler{}
	d := NewDefaultDispatcher(prov, map[int64]EVMClient{8453: client}, bundler)
	return d, prov, client, bundler
}

func TestTable_DispatchConsistency(t *testing.T) {
	d, _, _, _ := newTestDispatcher()

	table := Table()
	require.Len(t, table, len(documentedCurves))

	for _, cfg := range table {
		t.Run(cfg.ID, func(t *testing.T) {
			curve, err := CurveOf(cfg.ID)
			require.NoError(t, err)
			assert.Equal(t, documentedCurves[cfg.ID], curve)

			isEVM, err := IsEVMFamily(cfg.ID)
			require.NoError(t, err)
			supportsAA, err := d.SupportsAccountAbstraction(cfg.ID)
			require.NoError(t, err)
			assert.Equal(t, isEVM, supportsAA)

			if isEVM {
				assert.NotZero(t, cfg.NumericChainID())
			} else {
				assert.Nil(t, cfg.ChainID)
				assert.Zero(t, cfg.NumericChainID())
			}
		})
	}
}

func TestTable_IsCopied(t *testing.T) {
	table := Table()
	*table[0].ChainID = 999

	cfg, err := Lookup(table[0].ID)
	require.NoError(t, err)
	assert.NotEqual(t, int64(999), cfg.NumericChainID())
}

func TestUnsupportedChain(t *testing.T) {
	d, _, _, _ := newTestDispatcher()

	for _, id := range []string{"", "cosmoshub", "ETHEREUM", "dogecoin"} {
		_, err := CurveOf(id)
		assert.True(t, errors.Is(err, apperrors.ErrUnsupportedChain), id)

		_, _, err = d.ResolveHandler(id)
		assert.True(t, errors.Is(err, apperrors.ErrUnsupportedChain), id)

		_, err = d.SupportsAccountAbstraction(id)
		assert.True(t, errors.Is(err, apperrors.ErrUnsupportedChain), id)
	}
}

func TestClassifyConfig(t *testing.T) {
	base, err := Lookup("base")
	require.NoError(t, err)

	v, err := ClassifyConfig(base)
	require.NoError(t, err)
	assert.Equal(t, int64(8453), v.(EVM).ChainID())

	tampered := base
	wrong := int64(1)
	tampered.ChainID = &wrong
	_, err = ClassifyConfig(tampered)
	assert.True(t, errors.Is(err, apperrors.ErrUnsupportedChain))

	_, err = ClassifyConfig(types.ChainConfig{ID: "cosmoshub-4", Family: types.ChainFamilyCosmos, Curve: types.CurveSecp256k1})
	assert.True(t, errors.Is(err, apperrors.ErrUnimplementedCapability))
}

func TestDispatcher_SingletonHandlers(t *testing.T) {
	d, _, _, _ := newTestDispatcher()

	first, _, err := d.ResolveHandler("ethereum")
	require.NoError(t, err)
	second, _, err := d.ResolveHandler("polygon")
	require.NoError(t, err)
	assert.Same(t, first, second)

	btc, v, err := d.ResolveHandler("bitcoin-testnet")
	require.NoError(t, err)
	assert.Equal(t, types.ChainFamilyBitcoin, btc.Family())
	assert.Equal(t, "testnet3", v.(Bitcoin).Params().Name)

	_, v, err = d.ResolveHandler("solana-devnet")
	require.NoError(t, err)
	assert.Equal(t, ClusterDevnet, v.(Solana).Cluster())

	_, _, err = d.ResolveAccountAbstraction("solana", "deploy_wallet")
	assert.True(t, errors.Is(err, apperrors.ErrUnimplementedCapability))
}

func TestHandlers_ValidateAddress(t *testing.T) {
	d, _, _, _ := newTestDispatcher()

	tests := []struct {
		chain   string
		address string
		want    string
		wantErr bool
	}{
		{"base", "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed", evmAddress, false},
		{"base", "0x1234", "", true},
		{"base", solAddress, "", true},
		{"bitcoin", btcAddress, btcAddress, false},
		{"bitcoin", btcTestAddress, "", true},
		{"bitcoin-testnet", btcTestAddress, btcTestAddress, false},
		{"bitcoin", evmAddress, "", true},
		{"solana", solAddress, solAddress, false},
		{"solana", "not-base58-0OIl", "", true},
		{"solana", "11111111111111111111111111111111", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.chain+"/"+tt.address, func(t *testing.T) {
			h, v, err := d.ResolveHandler(tt.chain)
			require.NoError(t, err)

			got, err := h.ValidateAddress(v, tt.address)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, apperrors.ErrInvalidAddress))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHandlers_CreateWallet(t *testing.T) {
	d, prov, _, _ := newTestDispatcher()
	ctx := context.Background()

	for _, tc := range []struct{ chain, address string }{
		{"base", "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed"},
		{"bitcoin", btcAddress},
		{"solana", solAddress},
	} {
		h, v, err := d.ResolveHandler(tc.chain)
		require.NoError(t, err)

		rec, created, err := h.CreateWallet(ctx, CreateWalletRequest{UserID: "user-1", Address: tc.address, Chain: v})
		require.NoError(t, err)
		assert.True(t, created)
		assert.Equal(t, tc.chain, rec.ChainName)
	}

	assert.Equal(t, []string{evmAddress, btcAddress, solAddress}, prov.created)

	h, _, err := d.ResolveHandler("base")
	require.NoError(t, err)
	btc, err := Classify("bitcoin")
	require.NoError(t, err)
	_, _, err = h.CreateWallet(ctx, CreateWalletRequest{UserID: "user-1", Address: btcAddress, Chain: btc})
	assert.Error(t, err)
}

func TestHandlers_NonEVMCapabilities(t *testing.T) {
	d, _, _, _ := newTestDispatcher()
	ctx := context.Background()

	for _, id := range []string{"bitcoin", "solana"} {
		h, v, err := d.ResolveHandler(id)
		require.NoError(t, err)

		_, err = h.GetBalance(ctx, v, "x")
		assert.True(t, errors.Is(err, apperrors.ErrUnimplementedCapability))

		_, err = h.SubmitTransaction(ctx, v, []byte{0x01})
		assert.True(t, errors.Is(err, apperrors.ErrUnimplementedCapability))

		_, ok := h.(AccountAbstractionHandler)
		assert.False(t, ok)
	}
}

func TestEVMHandler_Operations(t *testing.T) {
	d, prov, client, bundler := newTestDispatcher()
	ctx := context.Background()

	aa, v, err := d.ResolveAccountAbstraction("base", "deploy_wallet")
	require.NoError(t, err)

	balance, err := aa.GetBalance(ctx, v, evmAddress)
	require.NoError(t, err)
	assert.Equal(t, int64(42), balance.Int64())

	raw, _ := ethtest.SignedTx(t, 8453)
	hash, err := aa.SubmitTransaction(ctx, v, raw)
	require.NoError(t, err)
	assert.Equal(t, "0xabc", hash)
	assert.Len(t, client.sent, 1)

	wrongChain, _ := ethtest.SignedTx(t, 1)
	_, err = aa.SubmitTransaction(ctx, v, wrongChain)
	assert.True(t, errors.Is(err, apperrors.ErrBadRequest))
	assert.Len(t, client.sent, 1, "invalid transactions are not relayed")

	est, err := aa.EstimateGas(ctx, GasEstimateRequest{Chain: v, From: evmAddress, To: evmAddress})
	require.NoError(t, err)
	assert.Equal(t, uint64(25200), est.GasLimit)
	assert.Equal(t, int64(102), est.MaxFeePerGas.Int64())
	assert.Equal(t, int64(2), est.MaxPriorityFeePerGas.Int64())

	t.Run("deploy submits initCode when no code", func(t *testing.T) {
		_, err := aa.DeployWallet(ctx, DeployRequest{Chain: v, Address: evmAddress})
		assert.True(t, errors.Is(err, apperrors.ErrBadRequest))

		op := &eth.UserOperation{Sender: common.HexToAddress(evmAddress), InitCode: []byte{0x01}}
		res, err := aa.DeployWallet(ctx, DeployRequest{Chain: v, Address: evmAddress, UserOp: op})
		require.NoError(t, err)
		assert.False(t, res.Deployed)
		require.NotNil(t, res.UserOpHash)
		assert.Len(t, bundler.ops, 1)
		assert.Empty(t, prov.deployed)
	})

	t.Run("deploy marks deployed when code exists", func(t *testing.T) {
		client.hasCode = true
		res, err := aa.DeployWallet(ctx, DeployRequest{Chain: v, Address: evmAddress})
		require.NoError(t, err)
		assert.True(t, res.Deployed)
		assert.Equal(t, []string{evmAddress}, prov.deployed)
	})

	t.Run("chain without rpc client", func(t *testing.T) {
		eth1, err := Classify("ethereum")
		require.NoError(t, err)
		_, err = aa.GetBalance(ctx, eth1, evmAddress)
		assert.True(t, errors.Is(err, apperrors.ErrConfiguration))
	})

	t.Run("no bundler", func(t *testing.T) {
		h := NewEVMHandler(prov, nil, nil)
		_, err := h.SubmitUserOperation(ctx, v, &eth.UserOperation{})
		assert.True(t, errors.Is(err, apperrors.ErrConfiguration))
	})
}
