package api

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/better-wallet/agent-custody/internal/app"
	"github.com/better-wallet/agent-custody/internal/chain"
	"github.com/better-wallet/agent-custody/internal/eth"
	"github.com/better-wallet/agent-custody/pkg/types"
)

// WalletService is the subset of app.WalletService used by the API layer.
type WalletService interface {
	Provision(ctx context.Context, req app.ProvisionWalletRequest) (*app.ProvisionWalletResponse, error)
	Deploy(ctx context.Context, req app.DeployWalletRequest) (*chain.DeployResult, error)
	Deactivate(ctx context.Context, chainID, address string) error
	Get(ctx context.Context, chainID, address string) (*types.WalletRecord, error)
	List(ctx context.Context, userID string) ([]*types.WalletRecord, error)
	Balance(ctx context.Context, chainID, address string) (*app.Balance, error)
	SubmitTransaction(ctx context.Context, chainID string, signedTx []byte) (string, error)
	SubmitUserOperation(ctx context.Context, chainID string, op *eth.UserOperation) (common.Hash, error)
	EstimateGas(ctx context.Context, req app.EstimateGasRequest) (*chain.GasEstimate, error)
}

// AgentKeyService is the subset of app.AgentKeyService used by the API layer.
type AgentKeyService interface {
	StartMission(ctx context.Context, req app.StartMissionRequest) (*app.MissionKey, error)
	ImportForMission(ctx context.Context, req app.ImportMissionKeyRequest) (*app.MissionKey, error)
	SignForMission(ctx context.Context, missionID string, td apitypes.TypedData) (*app.MissionSignature, error)
	RevokeMission(ctx context.Context, missionID string) error
	GetMissionKey(ctx context.Context, missionID string) (*types.AgentKey, error)
}

// ExportService is the subset of app.ExportService used by the API layer.
type ExportService interface {
	Export(ctx context.Context, req app.ExportRequest) (*app.ExportResponse, error)
}

var (
	_ WalletService   = (*app.WalletService)(nil)
	_ AgentKeyService = (*app.AgentKeyService)(nil)
	_ ExportService   = (*app.ExportService)(nil)
)
