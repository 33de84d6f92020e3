package types

import (
	"time"

	"github.com/google/uuid"
)

// DeploymentStatus tracks whether a wallet exists on-chain.
type DeploymentStatus string

// DeploymentStatus constants
const (
	// DeploymentCounterfactual is an EVM smart-account address that is pre-computed but not deployed.
	DeploymentCounterfactual DeploymentStatus = "counterfactual"
	DeploymentDeployed       DeploymentStatus = "deployed"
)

// Metadata keys written on wallet records
const (
	MetadataSignerID        = "signer_id"
	MetadataSignerType      = "signer_type"
	MetadataCreationChannel = "creation_channel"
)

// WalletRecord is a provisioned wallet owned by a user.
// (Address, ChainID) is globally unique.
type WalletRecord struct {
	ID               uuid.UUID        `json:"id"`
	UserID           string           `json:"user_id"`
	Address          string           `json:"address"`
	ChainID          int64            `json:"chain_id"`
	ChainFamily      ChainFamily      `json:"chain_family"`
	ChainName        string           `json:"chain"`
	DeploymentStatus DeploymentStatus `json:"deployment_status"`
	Active           bool             `json:"active"`
	Metadata         map[string]any   `json:"metadata"`
	LastActivityAt   time.Time        `json:"last_activity_at"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// SignerLinkage links a wallet to the signer that controls it.
type SignerLinkage struct {
	SignerID        string `json:"signer_id,omitempty"`
	SignerType      string `json:"signer_type,omitempty"`
	CreationChannel string `json:"creation_channel,omitempty"`
}

// Metadata returns the linkage as wallet metadata, omitting empty fields.
func (l SignerLinkage) Metadata() map[string]any {
	m := make(map[string]any, 3)
	if l.SignerID != "" {
		m[MetadataSignerID] = l.SignerID
	}
	if l.SignerType != "" {
		m[MetadataSignerType] = l.SignerType
	}
	if l.CreationChannel != "" {
		m[MetadataCreationChannel] = l.CreationChannel
	}
	return m
}
