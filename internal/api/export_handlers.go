package api

import (
	"net/http"

	"github.com/better-wallet/agent-custody/internal/app"
	"github.com/better-wallet/agent-custody/internal/middleware"
)

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	var req app.ExportRequest
	if err := s.decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	ctx := r.Context()
	req.Actor = middleware.GetActor(ctx)
	if ip := middleware.GetClientIP(ctx); ip != nil {
		req.ClientIP = *ip
	}
	if ua := middleware.GetUserAgent(ctx); ua != nil {
		req.UserAgent = *ua
	}

	resp, err := s.exports.Export(ctx, req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}
