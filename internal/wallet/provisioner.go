// Package wallet provisions wallet records idempotently per chain family.
package wallet

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/better-wallet/agent-custody/internal/logger"
	"github.com/better-wallet/agent-custody/internal/metrics"
	apperrors "github.com/better-wallet/agent-custody/pkg/errors"
	"github.com/better-wallet/agent-custody/pkg/types"
)

// Provision outcomes recorded in metrics
const (
	OutcomeCreated  = "created"
	OutcomeUpdated  = "updated"
	OutcomeConflict = "conflict"
	OutcomeError    = "error"
)

// RecordStore persists wallet records.
//
// Upsert must be atomic on (address, chain_id): when a row with the same
// chain_name exists it updates active, last_activity_at and merges metadata,
// otherwise it inserts rec. A row stored under another chain_name is returned
// unchanged. created reports whether rec was inserted.
//
// Non-EVM chains share chain_id 0, so Deactivate also matches chain_name.
type RecordStore interface {
	Upsert(ctx context.Context, rec *types.WalletRecord) (stored *types.WalletRecord, created bool, err error)
	MarkDeployed(ctx context.Context, address string, chainID int64) (bool, error)
	Deactivate(ctx context.Context, address string, chainID int64, chainName string) (bool, error)
	Get(ctx context.Context, address string, chainID int64) (*types.WalletRecord, error)
	ListByUser(ctx context.Context, userID string) ([]*types.WalletRecord, error)
}

// Provisioner creates and mutates wallet records
type Provisioner struct {
	store   RecordStore
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewProvisioner creates a new Provisioner
func NewProvisioner(store RecordStore, m *metrics.Metrics) *Provisioner {
	return &Provisioner{
		store:   store,
		metrics: m,
		now:     time.Now,
	}
}

// InitialStatus returns the deployment status a new wallet starts in.
// EVM smart accounts start counterfactual; other families have no deployment step.
func InitialStatus(family types.ChainFamily) (types.DeploymentStatus, error) {
	switch family {
	case types.ChainFamilyEVM:
		return types.DeploymentCounterfactual, nil
	case types.ChainFamilyBitcoin, types.ChainFamilySolana:
		return types.DeploymentDeployed, nil
	case types.ChainFamilyCosmos:
		return "", apperrors.UnimplementedCapability(string(family), "create_wallet")
	default:
		return "", fmt.Errorf("unknown chain family %q", family)
	}
}

// CreateWallet upserts the wallet for (address, chain). Repeated calls for the
// same pair update the existing record and never fail as a conflict.
// An address already held by another chain with the same chain id, such as
// solana and solana-devnet, is a conflict and the stored row is left as is.
// The address must already be validated and normalized for the chain.
func (p *Provisioner) CreateWallet(ctx context.Context, userID, address string, chain types.ChainConfig, linkage types.SignerLinkage) (*types.WalletRecord, bool, error) {
	status, err := InitialStatus(chain.Family)
	if err != nil {
		return nil, false, err
	}
	if userID == "" {
		return nil, false, apperrors.BadRequest("user_id is required")
	}

	now := p.now().UTC()
	rec := &types.WalletRecord{
		ID:               uuid.New(),
		UserID:           userID,
		Address:          address,
		ChainID:          chain.NumericChainID(),
		ChainFamily:      chain.Family,
		ChainName:        chain.ID,
		DeploymentStatus: status,
		Active:           true,
		Metadata:         linkage.Metadata(),
		LastActivityAt:   now,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	stored, created, err := p.store.Upsert(ctx, rec)
	if err != nil {
		p.metrics.Provision(string(chain.Family), OutcomeError)
		return nil, false, fmt.Errorf("failed to upsert wallet: %w", err)
	}
	if stored.ChainName != chain.ID {
		p.metrics.Provision(string(chain.Family), OutcomeConflict)
		return nil, false, apperrors.WalletChainConflict(chain.ID, address, stored.ChainName)
	}

	outcome := OutcomeUpdated
	if created {
		outcome = OutcomeCreated
	}
	p.metrics.Provision(string(chain.Family), outcome)
	logger.Info(ctx, "wallet provisioned",
		"wallet_id", stored.ID,
		"chain", chain.ID,
		"address", stored.Address,
		"outcome", outcome,
	)

	return stored, created, nil
}

// MarkDeployed moves an EVM wallet from counterfactual to deployed.
// It returns false when the wallet was already deployed or does not exist.
func (p *Provisioner) MarkDeployed(ctx context.Context, address string, chain types.ChainConfig) (bool, error) {
	if chain.Family != types.ChainFamilyEVM {
		return false, apperrors.UnimplementedCapability(string(chain.Family), "deploy_wallet")
	}

	changed, err := p.store.MarkDeployed(ctx, address, chain.NumericChainID())
	if err != nil {
		return false, fmt.Errorf("failed to mark wallet deployed: %w", err)
	}
	if changed {
		logger.Info(ctx, "wallet deployed", "chain", chain.ID, "address", address)
	}
	return changed, nil
}

// Deactivate marks the wallet inactive. Records are never deleted.
func (p *Provisioner) Deactivate(ctx context.Context, address string, chain types.ChainConfig) error {
	found, err := p.store.Deactivate(ctx, address, chain.NumericChainID(), chain.ID)
	if err != nil {
		return fmt.Errorf("failed to deactivate wallet: %w", err)
	}
	if !found {
		return apperrors.WalletNotFound(chain.ID, address)
	}
	return nil
}

// Get returns the wallet for (address, chain)
func (p *Provisioner) Get(ctx context.Context, address string, chain types.ChainConfig) (*types.WalletRecord, error) {
	rec, err := p.store.Get(ctx, address, chain.NumericChainID())
	if err != nil {
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}
	if rec == nil || rec.ChainName != chain.ID {
		return nil, apperrors.WalletNotFound(chain.ID, address)
	}
	return rec, nil
}

// ListByUser returns every wallet owned by userID
func (p *Provisioner) ListByUser(ctx context.Context, userID string) ([]*types.WalletRecord, error) {
	recs, err := p.store.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list wallets: %w", err)
	}
	return recs, nil
}
