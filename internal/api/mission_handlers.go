package api

import (
	"net/http"

	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/better-wallet/agent-custody/internal/app"
	"github.com/better-wallet/agent-custody/internal/logger"
)

// SignTypedDataRequest carries an EIP-712 payload
type SignTypedDataRequest struct {
	TypedData apitypes.TypedData `json:"typed_data"`
}

// SignTypedDataResponse returns the signature and the signed digest
type SignTypedDataResponse struct {
	Signature string `json:"signature"`
	Hash      string `json:"hash"`
	Address   string `json:"address"`
}

func (s *Server) handleStartMission(w http.ResponseWriter, r *http.Request) {
	var req app.StartMissionRequest
	if r.ContentLength != 0 {
		if err := s.decodeJSON(r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	req.MissionID = r.PathValue("missionID")

	key, err := s.agentKeys.StartMission(logger.WithMissionID(r.Context(), req.MissionID), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	status := http.StatusOK
	if key.Created {
		status = http.StatusCreated
	}
	s.writeJSON(w, status, key)
}

func (s *Server) handleImportMissionKey(w http.ResponseWriter, r *http.Request) {
	var req app.ImportMissionKeyRequest
	if err := s.decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	req.MissionID = r.PathValue("missionID")

	key, err := s.agentKeys.ImportForMission(logger.WithMissionID(r.Context(), req.MissionID), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, key)
}

func (s *Server) handleGetMissionKey(w http.ResponseWriter, r *http.Request) {
	key, err := s.agentKeys.GetMissionKey(r.Context(), r.PathValue("missionID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, key)
}

func (s *Server) handleRevokeMission(w http.ResponseWriter, r *http.Request) {
	missionID := r.PathValue("missionID")
	if err := s.agentKeys.RevokeMission(logger.WithMissionID(r.Context(), missionID), missionID); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSignForMission(w http.ResponseWriter, r *http.Request) {
	var req SignTypedDataRequest
	if err := s.decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	missionID := r.PathValue("missionID")
	ctx := logger.WithMissionID(r.Context(), missionID)

	sig, err := s.agentKeys.SignForMission(ctx, missionID, req.TypedData)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, SignTypedDataResponse{
		Signature: sig.Hex,
		Hash:      sig.Hash.Hex(),
		Address:   sig.Address,
	})
}
