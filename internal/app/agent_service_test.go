package app

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/better-wallet/agent-custody/internal/custody"
	"github.com/better-wallet/agent-custody/internal/signing"
	apperrors "github.com/better-wallet/agent-custody/pkg/errors"
	"github.com/better-wallet/agent-custody/pkg/types"
)

func newAgentKeyService(t *testing.T, secret []byte) *AgentKeyService {
	t.Helper()
	return NewAgentKeyService(newTestStore(t), custody.NewService(secret, nil, nil), signing.NewService(nil))
}

func TestStartMission_Idempotent(t *testing.T) {
	svc := newAgentKeyService(t, testMasterSecret)
	ctx := context.Background()

	first, err := svc.StartMission(ctx, StartMissionRequest{MissionID: "mission-1"})
	require.NoError(t, err)
	assert.True(t, first.Created)
	assert.Equal(t, types.CurveSecp256k1, first.Curve)
	assert.Equal(t, types.KeyOriginGenerated, first.Origin)
	assert.True(t, common.IsHexAddress(first.Address))

	second, err := svc.StartMission(ctx, StartMissionRequest{MissionID: "mission-1"})
	require.NoError(t, err)
	assert.False(t, second.Created)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.Address, second.Address)
}

func TestStartMission_Concurrent(t *testing.T) {
	svc := newAgentKeyService(t, testMasterSecret)
	ctx := context.Background()

	const workers = 8
	addresses := make([]string, workers)
	errs := make([]error, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key, err := svc.StartMission(ctx, StartMissionRequest{MissionID: "race"})
			errs[i] = err
			if err == nil {
				addresses[i] = key.Address
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, addresses[0], addresses[i])
	}
}

func TestStartMission_Validation(t *testing.T) {
	svc := newAgentKeyService(t, testMasterSecret)
	ctx := context.Background()

	tests := []struct {
		name string
		req  StartMissionRequest
	}{
		{"empty mission", StartMissionRequest{MissionID: "  "}},
		{"long mission", StartMissionRequest{MissionID: strings.Repeat("m", maxMissionIDLength+1)}},
		{"unknown curve", StartMissionRequest{MissionID: "m", Curve: "P256"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.StartMission(ctx, tt.req)
			assert.True(t, errors.Is(err, apperrors.ErrBadRequest))
		})
	}
}

func TestStartMission_NoMasterSecret(t *testing.T) {
	svc := newAgentKeyService(t, nil)

	_, err := svc.StartMission(context.Background(), StartMissionRequest{MissionID: "m"})
	assert.True(t, errors.Is(err, apperrors.ErrConfiguration))
}

func TestSignForMission_RecoversAgentAddress(t *testing.T) {
	svc := newAgentKeyService(t, testMasterSecret)
	ctx := context.Background()

	key, err := svc.StartMission(ctx, StartMissionRequest{MissionID: "trade"})
	require.NoError(t, err)

	sig, err := svc.SignForMission(ctx, "trade", orderTypedData())
	require.NoError(t, err)
	require.Len(t, sig.Bytes, 65)

	recovered, err := signing.RecoverAddress(sig.Hash, sig.Bytes)
	require.NoError(t, err)
	assert.Equal(t, key.Address, recovered.Hex())
	assert.Equal(t, key.Address, sig.Address)
	assert.Equal(t, key.ID, sig.KeyID)
}

func TestSignForMission_Ed25519Unimplemented(t *testing.T) {
	svc := newAgentKeyService(t, testMasterSecret)
	ctx := context.Background()

	_, err := svc.StartMission(ctx, StartMissionRequest{MissionID: "sol", Curve: types.CurveEd25519})
	require.NoError(t, err)

	_, err = svc.SignForMission(ctx, "sol", orderTypedData())
	assert.True(t, errors.Is(err, apperrors.ErrUnimplementedCapability))
}

func TestImportForMission(t *testing.T) {
	svc := newAgentKeyService(t, testMasterSecret)
	ctx := context.Background()

	// Well-known test key; address 0x7E5F4552091A69125d5DfCb7b8C2659029395Bdf.
	raw := "0x0000000000000000000000000000000000000000000000000000000000000001"

	key, err := svc.ImportForMission(ctx, ImportMissionKeyRequest{MissionID: "imported", PrivateKey: raw})
	require.NoError(t, err)
	assert.Equal(t, "0x7E5F4552091A69125d5DfCb7b8C2659029395Bdf", key.Address)
	assert.Equal(t, types.KeyOriginImported, key.Origin)

	_, err = svc.ImportForMission(ctx, ImportMissionKeyRequest{MissionID: "imported", PrivateKey: raw})
	assert.True(t, errors.Is(err, apperrors.ErrConflict))

	sig, err := svc.SignForMission(ctx, "imported", orderTypedData())
	require.NoError(t, err)
	recovered, err := signing.RecoverAddress(sig.Hash, sig.Bytes)
	require.NoError(t, err)
	assert.Equal(t, key.Address, recovered.Hex())

	_, err = svc.ImportForMission(ctx, ImportMissionKeyRequest{MissionID: "bad", PrivateKey: "0xzz"})
	assert.True(t, errors.Is(err, apperrors.ErrBadRequest))
}

func TestRevokeMission_DoesNotAffectOtherMissions(t *testing.T) {
	svc := newAgentKeyService(t, testMasterSecret)
	ctx := context.Background()

	_, err := svc.StartMission(ctx, StartMissionRequest{MissionID: "a"})
	require.NoError(t, err)
	b, err := svc.StartMission(ctx, StartMissionRequest{MissionID: "b"})
	require.NoError(t, err)

	require.NoError(t, svc.RevokeMission(ctx, "a"))

	_, err = svc.GetMissionKey(ctx, "a")
	assert.True(t, errors.Is(err, apperrors.ErrAgentKeyNotFound))
	_, err = svc.SignForMission(ctx, "a", orderTypedData())
	assert.True(t, errors.Is(err, apperrors.ErrAgentKeyNotFound))

	stillB, err := svc.GetMissionKey(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, b.ID, stillB.ID)
	_, err = svc.SignForMission(ctx, "b", orderTypedData())
	require.NoError(t, err)

	err = svc.RevokeMission(ctx, "a")
	assert.True(t, errors.Is(err, apperrors.ErrAgentKeyNotFound))

	again, err := svc.StartMission(ctx, StartMissionRequest{MissionID: "a"})
	require.NoError(t, err)
	assert.True(t, again.Created)
}
