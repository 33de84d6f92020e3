// Package chain classifies chain identifiers and routes wallet operations to
// the handler for each chain family.
package chain

import (
	"fmt"

	apperrors "github.com/better-wallet/agent-custody/pkg/errors"
)

// Dispatcher holds one handler per family for the life of the process
type Dispatcher struct {
	evm     *EVMHandler
	bitcoin *BitcoinHandler
	solana  *SolanaHandler
}

// NewDispatcher creates a dispatcher over the family handlers
func NewDispatcher(evm *EVMHandler, bitcoin *BitcoinHandler, solana *SolanaHandler) *Dispatcher {
	return &Dispatcher{evm: evm, bitcoin: bitcoin, solana: solana}
}

// NewDefaultDispatcher builds handlers that share one provisioner
func NewDefaultDispatcher(provisioner WalletProvisioner, clients map[int64]EVMClient, bundler UserOperationSender) *Dispatcher {
	return NewDispatcher(
		NewEVMHandler(provisioner, clients, bundler),
		NewBitcoinHandler(provisioner),
		NewSolanaHandler(provisioner),
	)
}

// HandlerFor returns the singleton handler for the variant's family
func (d *Dispatcher) HandlerFor(v Variant) Handler {
	switch v.(type) {
	case EVM:
		return d.evm
	case Bitcoin:
		return d.bitcoin
	case Solana:
		return d.solana
	default:
		panic(fmt.Sprintf("chain: unhandled variant %T", v))
	}
}

// ResolveHandler classifies id and returns its handler together with the variant
func (d *Dispatcher) ResolveHandler(id string) (Handler, Variant, error) {
	v, err := Classify(id)
	if err != nil {
		return nil, nil, err
	}
	return d.HandlerFor(v), v, nil
}

// ResolveAccountAbstraction returns the handler for id if it supports smart accounts
func (d *Dispatcher) ResolveAccountAbstraction(id string, operation string) (AccountAbstractionHandler, Variant, error) {
	h, v, err := d.ResolveHandler(id)
	if err != nil {
		return nil, nil, err
	}
	aa, ok := h.(AccountAbstractionHandler)
	if !ok {
		return nil, nil, apperrors.UnimplementedCapability(string(h.Family()), operation)
	}
	return aa, v, nil
}

// SupportsAccountAbstraction reports whether id's handler implements AccountAbstractionHandler
func (d *Dispatcher) SupportsAccountAbstraction(id string) (bool, error) {
	h, _, err := d.ResolveHandler(id)
	if err != nil {
		return false, err
	}
	_, ok := h.(AccountAbstractionHandler)
	return ok, nil
}
