package chain

import (
	"github.com/btcsuite/btcd/chaincfg"

	apperrors "github.com/better-wallet/agent-custody/pkg/errors"
	"github.com/better-wallet/agent-custody/pkg/types"
)

// Solana clusters
const (
	ClusterMainnetBeta = "mainnet-beta"
	ClusterDevnet      = "devnet"
)

type definition struct {
	config    types.ChainConfig
	btcParams *chaincfg.Params
	cluster   string
}

func evmChain(id string, chainID int64) definition {
	return definition{config: types.ChainConfig{
		ID:            id,
		Family:        types.ChainFamilyEVM,
		Curve:         types.CurveSecp256k1,
		AddressFormat: types.AddressFormatHex20,
		ChainID:       &chainID,
	}}
}

func bitcoinChain(id string, params *chaincfg.Params) definition {
	return definition{
		config: types.ChainConfig{
			ID:            id,
			Family:        types.ChainFamilyBitcoin,
			Curve:         types.CurveSecp256k1,
			AddressFormat: types.AddressFormatBitcoin,
		},
		btcParams: params,
	}
}

func solanaChain(id, cluster string) definition {
	return definition{
		config: types.ChainConfig{
			ID:            id,
			Family:        types.ChainFamilySolana,
			Curve:         types.CurveEd25519,
			AddressFormat: types.AddressFormatBase58,
		},
		cluster: cluster,
	}
}

// definitions is the classification table. Order is the listing order.
var definitions = []definition{
	evmChain("ethereum", 1),
	evmChain("sepolia", 11155111),
	evmChain("base", 8453),
	evmChain("base-sepolia", 84532),
	evmChain("arbitrum", 42161),
	evmChain("optimism", 10),
	evmChain("polygon", 137),
	bitcoinChain("bitcoin", &chaincfg.MainNetParams),
	bitcoinChain("bitcoin-testnet", &chaincfg.TestNet3Params),
	solanaChain("solana", ClusterMainnetBeta),
	solanaChain("solana-devnet", ClusterDevnet),
}

var byID = func() map[string]definition {
	m := make(map[string]definition, len(definitions))
	for _, d := range definitions {
		m[d.config.ID] = d
	}
	return m
}()

// Table returns a copy of every classified chain, in listing order
func Table() []types.ChainConfig {
	out := make([]types.ChainConfig, 0, len(definitions))
	for _, d := range definitions {
		out = append(out, copyConfig(d.config))
	}
	return out
}

// Lookup returns the classification for id
func Lookup(id string) (types.ChainConfig, error) {
	d, ok := byID[id]
	if !ok {
		return types.ChainConfig{}, apperrors.UnsupportedChain(id)
	}
	return copyConfig(d.config), nil
}

// LookupEVM returns the EVM chain with the given numeric chain id
func LookupEVM(chainID int64) (types.ChainConfig, bool) {
	for _, d := range definitions {
		if d.config.Family == types.ChainFamilyEVM && d.config.NumericChainID() == chainID {
			return copyConfig(d.config), true
		}
	}
	return types.ChainConfig{}, false
}

// CurveOf returns the curve of chain id
func CurveOf(id string) (types.Curve, error) {
	cfg, err := Lookup(id)
	if err != nil {
		return "", err
	}
	return cfg.Curve, nil
}

// IsEVMFamily reports whether id is an EVM chain
func IsEVMFamily(id string) (bool, error) {
	cfg, err := Lookup(id)
	if err != nil {
		return false, err
	}
	return cfg.Family == types.ChainFamilyEVM, nil
}

func copyConfig(c types.ChainConfig) types.ChainConfig {
	if c.ChainID != nil {
		id := *c.ChainID
		c.ChainID = &id
	}
	return c
}
