package chain

import (
	"fmt"

	"github.com/btcsuite/btcd/chaincfg"

	apperrors "github.com/better-wallet/agent-custody/pkg/errors"
	"github.com/better-wallet/agent-custody/pkg/types"
)

// Variant is a classified chain. The set of variants is closed: EVM, Bitcoin and Solana.
type Variant interface {
	Config() types.ChainConfig
	variant()
}

// EVM is an Ethereum-compatible chain
type EVM struct {
	cfg types.ChainConfig
}

// Config returns the chain's classification
func (v EVM) Config() types.ChainConfig { return copyConfig(v.cfg) }

// ChainID returns the numeric EVM chain id
func (v EVM) ChainID() int64 { return v.cfg.NumericChainID() }

func (EVM) variant() {}

// Bitcoin is a Bitcoin network
type Bitcoin struct {
	cfg    types.ChainConfig
	params *chaincfg.Params
}

// Config returns the chain's classification
func (v Bitcoin) Config() types.ChainConfig { return copyConfig(v.cfg) }

// Params returns the btcd network parameters
func (v Bitcoin) Params() *chaincfg.Params { return v.params }

func (Bitcoin) variant() {}

// Solana is a Solana cluster
type Solana struct {
	cfg     types.ChainConfig
	cluster string
}

// Config returns the chain's classification
func (v Solana) Config() types.ChainConfig { return copyConfig(v.cfg) }

// Cluster returns the cluster name, e.g. mainnet-beta
func (v Solana) Cluster() string { return v.cluster }

func (Solana) variant() {}

// Classify resolves a chain identifier to its variant.
// Identifiers absent from the table yield UnsupportedChainError.
func Classify(id string) (Variant, error) {
	d, ok := byID[id]
	if !ok {
		return nil, apperrors.UnsupportedChain(id)
	}
	return d.variant()
}

// ClassifyConfig resolves a full chain config. The config must match the table entry for its id.
func ClassifyConfig(cfg types.ChainConfig) (Variant, error) {
	d, ok := byID[cfg.ID]
	if !ok {
		if cfg.Family == types.ChainFamilyCosmos {
			return nil, apperrors.UnimplementedCapability(string(cfg.Family), "classify")
		}
		return nil, apperrors.UnsupportedChain(cfg.ID)
	}
	if d.config.Family != cfg.Family || d.config.Curve != cfg.Curve || d.config.NumericChainID() != cfg.NumericChainID() {
		return nil, apperrors.UnsupportedChain(cfg.ID)
	}
	return d.variant()
}

func (d definition) variant() (Variant, error) {
	switch d.config.Family {
	case types.ChainFamilyEVM:
		return EVM{cfg: d.config}, nil
	case types.ChainFamilyBitcoin:
		return Bitcoin{cfg: d.config, params: d.btcParams}, nil
	case types.ChainFamilySolana:
		return Solana{cfg: d.config, cluster: d.cluster}, nil
	case types.ChainFamilyCosmos:
		return nil, apperrors.UnimplementedCapability(string(d.config.Family), "classify")
	default:
		panic(fmt.Sprintf("chain: unhandled family %q for %s", d.config.Family, d.config.ID))
	}
}
