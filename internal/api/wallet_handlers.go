package api

import (
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/better-wallet/agent-custody/internal/app"
	"github.com/better-wallet/agent-custody/internal/chain"
	"github.com/better-wallet/agent-custody/internal/eth"
	"github.com/better-wallet/agent-custody/internal/middleware"
	apperrors "github.com/better-wallet/agent-custody/pkg/errors"
	"github.com/better-wallet/agent-custody/pkg/types"
)

// ChainInfo is one classification table entry in API responses
type ChainInfo struct {
	types.ChainConfig
	SupportsAccountAbstraction bool `json:"supports_account_abstraction"`
}

// ListWalletsResponse wraps a wallet listing
type ListWalletsResponse struct {
	Data []*types.WalletRecord `json:"data"`
}

// SubmitTransactionRequest carries a signed transaction
type SubmitTransactionRequest struct {
	SignedTransaction hexutil.Bytes `json:"signed_transaction"`
}

// SubmitTransactionResponse returns the broadcast transaction hash
type SubmitTransactionResponse struct {
	TransactionHash string `json:"transaction_hash"`
}

// SubmitUserOperationResponse returns the bundler's user operation hash
type SubmitUserOperationResponse struct {
	UserOpHash string `json:"user_op_hash"`
}

func (s *Server) handleListChains(w http.ResponseWriter, r *http.Request) {
	table := chain.Table()
	out := make([]ChainInfo, 0, len(table))
	for _, cfg := range table {
		evm, err := chain.IsEVMFamily(cfg.ID)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		out = append(out, ChainInfo{ChainConfig: cfg, SupportsAccountAbstraction: evm})
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"data": out})
}

func (s *Server) handleProvisionWallet(w http.ResponseWriter, r *http.Request) {
	var req app.ProvisionWalletRequest
	if err := s.decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.UserID == "" {
		req.UserID = middleware.GetActor(r.Context())
	}

	resp, err := s.wallets.Provision(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	status := http.StatusOK
	if resp.Created {
		status = http.StatusCreated
	}
	s.writeJSON(w, status, resp)
}

func (s *Server) handleListWallets(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(r.URL.Query().Get("user_id"))
	if userID == "" {
		userID = middleware.GetActor(r.Context())
	}

	wallets, err := s.wallets.List(r.Context(), userID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if wallets == nil {
		wallets = []*types.WalletRecord{}
	}
	s.writeJSON(w, http.StatusOK, ListWalletsResponse{Data: wallets})
}

func (s *Server) handleGetWallet(w http.ResponseWriter, r *http.Request) {
	rec, err := s.wallets.Get(r.Context(), r.PathValue("chain"), r.PathValue("address"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleDeactivateWallet(w http.ResponseWriter, r *http.Request) {
	if err := s.wallets.Deactivate(r.Context(), r.PathValue("chain"), r.PathValue("address")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeployWallet(w http.ResponseWriter, r *http.Request) {
	var req app.DeployWalletRequest
	if r.ContentLength != 0 {
		if err := s.decodeJSON(r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	req.Chain = r.PathValue("chain")
	req.Address = r.PathValue("address")

	res, err := s.wallets.Deploy(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	status := http.StatusOK
	if !res.Deployed {
		status = http.StatusAccepted
	}
	s.writeJSON(w, status, res)
}

func (s *Server) handleGetBalance(w http.ResponseWriter, r *http.Request) {
	bal, err := s.wallets.Balance(r.Context(), r.PathValue("chain"), r.PathValue("address"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{
		"chain":   bal.Chain,
		"address": bal.Address,
		"amount":  bal.Amount.String(),
	})
}

func (s *Server) handleSubmitTransaction(w http.ResponseWriter, r *http.Request) {
	var req SubmitTransactionRequest
	if err := s.decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	hash, err := s.wallets.SubmitTransaction(r.Context(), r.PathValue("chain"), req.SignedTransaction)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, SubmitTransactionResponse{TransactionHash: hash})
}

func (s *Server) handleSubmitUserOperation(w http.ResponseWriter, r *http.Request) {
	var op eth.UserOperation
	if err := s.decodeJSON(r, &op); err != nil {
		s.writeError(w, r, err)
		return
	}

	hash, err := s.wallets.SubmitUserOperation(r.Context(), r.PathValue("chain"), &op)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, SubmitUserOperationResponse{UserOpHash: hash.Hex()})
}

func (s *Server) handleEstimateGas(w http.ResponseWriter, r *http.Request) {
	var req app.EstimateGasRequest
	if err := s.decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.From == "" {
		s.writeError(w, r, apperrors.BadRequest("from is required"))
		return
	}
	req.Chain = r.PathValue("chain")

	est, err := s.wallets.EstimateGas(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, est)
}
