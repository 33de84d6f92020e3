package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/google/uuid"

	"github.com/better-wallet/agent-custody/internal/custody"
	"github.com/better-wallet/agent-custody/internal/logger"
	"github.com/better-wallet/agent-custody/internal/secmem"
	"github.com/better-wallet/agent-custody/internal/signing"
	"github.com/better-wallet/agent-custody/internal/storage"
	apperrors "github.com/better-wallet/agent-custody/pkg/errors"
	"github.com/better-wallet/agent-custody/pkg/types"
)

const maxMissionIDLength = 128

// AgentKeyStore persists mission agent keys.
// Create returns storage.ErrDuplicate when the mission already has an active key.
type AgentKeyStore interface {
	Create(ctx context.Context, key *types.AgentKey) error
	GetActiveByMission(ctx context.Context, missionID string) (*types.AgentKey, error)
	Revoke(ctx context.Context, missionID string) (bool, error)
}

// AgentKeyService manages the per-mission agent key lifecycle
type AgentKeyService struct {
	keys    AgentKeyStore
	custody *custody.Service
	signer  *signing.Service
}

// NewAgentKeyService creates a new agent key service
func NewAgentKeyService(keys AgentKeyStore, custodySvc *custody.Service, signer *signing.Service) *AgentKeyService {
	return &AgentKeyService{
		keys:    keys,
		custody: custodySvc,
		signer:  signer,
	}
}

// StartMissionRequest represents a request to provision a mission's agent key
type StartMissionRequest struct {
	MissionID string      `json:"-"`
	Curve     types.Curve `json:"curve,omitempty"`
}

// ImportMissionKeyRequest represents a request to import an existing key for a mission
type ImportMissionKeyRequest struct {
	MissionID  string      `json:"-"`
	Curve      types.Curve `json:"curve,omitempty"`
	PrivateKey string      `json:"private_key"`
}

// MissionKey is the public view of a mission's agent key
type MissionKey struct {
	*types.AgentKey
	Created bool `json:"created"`
}

// StartMission generates and stores the mission's agent key.
// If the mission already has an active key it is returned unchanged.
func (s *AgentKeyService) StartMission(ctx context.Context, req StartMissionRequest) (*MissionKey, error) {
	missionID, curve, err := missionParams(req.MissionID, req.Curve)
	if err != nil {
		return nil, err
	}
	ctx = logger.WithMissionID(ctx, missionID)

	existing, err := s.keys.GetActiveByMission(ctx, missionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load agent key: %w", err)
	}
	if existing != nil {
		return &MissionKey{AgentKey: existing}, nil
	}

	generated, err := s.custody.Generate(ctx, curve)
	if err != nil {
		return nil, err
	}

	key := newAgentKey(missionID, generated, types.KeyOriginGenerated)
	if err := s.keys.Create(ctx, key); err != nil {
		if !errors.Is(err, storage.ErrDuplicate) {
			return nil, fmt.Errorf("failed to store agent key: %w", err)
		}
		// A concurrent call won; return its key.
		existing, err := s.keys.GetActiveByMission(ctx, missionID)
		if err != nil {
			return nil, fmt.Errorf("failed to load agent key: %w", err)
		}
		if existing == nil {
			return nil, apperrors.ErrConflict
		}
		return &MissionKey{AgentKey: existing}, nil
	}

	logger.Info(ctx, "agent key created", "key_id", key.ID, "address", key.Address, "curve", key.Curve)
	return &MissionKey{AgentKey: key, Created: true}, nil
}

// ImportForMission encrypts a caller-supplied key and stores it as the mission's agent key.
// The mission must not already have an active key.
func (s *AgentKeyService) ImportForMission(ctx context.Context, req ImportMissionKeyRequest) (*MissionKey, error) {
	missionID, curve, err := missionParams(req.MissionID, req.Curve)
	if err != nil {
		return nil, err
	}
	ctx = logger.WithMissionID(ctx, missionID)

	imported, err := s.custody.ImportExisting(ctx, curve, req.PrivateKey)
	if err != nil {
		return nil, err
	}

	key := newAgentKey(missionID, imported, types.KeyOriginImported)
	if err := s.keys.Create(ctx, key); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			return nil, apperrors.NewWithDetail(
				apperrors.ErrCodeConflict,
				"Mission already has an active agent key",
				"revoke the existing key first",
				apperrors.ErrConflict.StatusCode,
			)
		}
		return nil, fmt.Errorf("failed to store agent key: %w", err)
	}

	logger.Info(ctx, "agent key imported", "key_id", key.ID, "address", key.Address, "curve", key.Curve)
	return &MissionKey{AgentKey: key, Created: true}, nil
}

// MissionSignature is a typed-data signature and the agent key that produced it
type MissionSignature struct {
	signing.Signature
	KeyID   uuid.UUID
	Address string
}

// SignForMission signs EIP-712 typed data with the mission's agent key.
// The plaintext key exists only for the duration of the call.
func (s *AgentKeyService) SignForMission(ctx context.Context, missionID string, td apitypes.TypedData) (*MissionSignature, error) {
	key, err := s.GetMissionKey(ctx, missionID)
	if err != nil {
		return nil, err
	}
	ctx = logger.WithMissionID(ctx, key.MissionID)

	var sig *signing.Signature
	err = s.custody.WithDecryptedKey(ctx, key.Curve, custody.FromAgentKey(key), func(ctx context.Context, k *secmem.Key) error {
		var err error
		sig, err = s.signer.Sign(ctx, k, td)
		return err
	})
	if err != nil {
		if errors.Is(err, apperrors.ErrDecryption) {
			logger.Error(ctx, "agent key decryption failed", "key_id", key.ID)
		}
		return nil, err
	}

	logger.Debug(ctx, "typed data signed", "key_id", key.ID, "hash", sig.Hash.Hex())
	return &MissionSignature{Signature: *sig, KeyID: key.ID, Address: key.Address}, nil
}

// RevokeMission deactivates the mission's agent key. Other missions are untouched.
func (s *AgentKeyService) RevokeMission(ctx context.Context, missionID string) error {
	missionID, err := validateMissionID(missionID)
	if err != nil {
		return err
	}
	ctx = logger.WithMissionID(ctx, missionID)

	revoked, err := s.keys.Revoke(ctx, missionID)
	if err != nil {
		return fmt.Errorf("failed to revoke agent key: %w", err)
	}
	if !revoked {
		return apperrors.AgentKeyNotFound(missionID)
	}

	logger.Info(ctx, "agent key revoked")
	return nil
}

// GetMissionKey returns the mission's active agent key
func (s *AgentKeyService) GetMissionKey(ctx context.Context, missionID string) (*types.AgentKey, error) {
	missionID, err := validateMissionID(missionID)
	if err != nil {
		return nil, err
	}

	key, err := s.keys.GetActiveByMission(ctx, missionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load agent key: %w", err)
	}
	if key == nil {
		return nil, apperrors.AgentKeyNotFound(missionID)
	}
	return key, nil
}

func newAgentKey(missionID string, k *custody.GeneratedKey, origin types.KeyOrigin) *types.AgentKey {
	return &types.AgentKey{
		ID:         uuid.New(),
		MissionID:  missionID,
		Curve:      k.Curve,
		Address:    k.Address,
		Ciphertext: k.Ciphertext,
		IV:         k.IV,
		AuthTag:    k.AuthTag,
		Origin:     origin,
		Active:     true,
	}
}

func missionParams(missionID string, curve types.Curve) (string, types.Curve, error) {
	missionID, err := validateMissionID(missionID)
	if err != nil {
		return "", "", err
	}
	if curve == "" {
		curve = types.CurveSecp256k1
	}
	if !curve.Valid() {
		return "", "", apperrors.BadRequest(fmt.Sprintf("unsupported curve %q", curve))
	}
	return missionID, curve, nil
}

func validateMissionID(missionID string) (string, error) {
	missionID = strings.TrimSpace(missionID)
	if missionID == "" {
		return "", apperrors.BadRequest("mission_id is required")
	}
	if len(missionID) > maxMissionIDLength {
		return "", apperrors.BadRequest(fmt.Sprintf("mission_id must be at most %d characters", maxMissionIDLength))
	}
	return missionID, nil
}
