// Package api serves the custody HTTP surface.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/better-wallet/agent-custody/internal/app"
	"github.com/better-wallet/agent-custody/internal/logger"
	"github.com/better-wallet/agent-custody/internal/metrics"
	"github.com/better-wallet/agent-custody/internal/middleware"
	apperrors "github.com/better-wallet/agent-custody/pkg/errors"
)

// Pinger reports storage health
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options configures the server
type Options struct {
	Port           int
	RateLimitRPS   float64
	RateLimitBurst int
}

// Server represents the HTTP server
type Server struct {
	opts       Options
	wallets    WalletService
	agentKeys  AgentKeyService
	exports    ExportService
	store      Pinger
	metrics    *metrics.Metrics
	httpServer *http.Server
}

// NewServer creates a new API server
func NewServer(opts Options, wallets WalletService, agentKeys AgentKeyService, exports ExportService, store Pinger, m *metrics.Metrics) *Server {
	return &Server{
		opts:      opts,
		wallets:   wallets,
		agentKeys: agentKeys,
		exports:   exports,
		store:     store,
		metrics:   m,
	}
}

// NewServerFromRuntime creates a server over the runtime's services
func NewServerFromRuntime(rt *app.Runtime) *Server {
	return NewServer(Options{
		Port:           rt.Config.Port,
		RateLimitRPS:   rt.Config.RateLimitRPS,
		RateLimitBurst: rt.Config.RateLimitBurst,
	}, rt.Wallets, rt.AgentKeys, rt.Exports, rt.Stores, rt.Metrics)
}

// Handler builds the routed handler with the middleware chain applied
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}

	mux.HandleFunc("GET /v1/chains", s.handleListChains)
	mux.HandleFunc("POST /v1/chains/{chain}/transactions", s.handleSubmitTransaction)
	mux.HandleFunc("POST /v1/chains/{chain}/user-operations", s.handleSubmitUserOperation)
	mux.HandleFunc("POST /v1/chains/{chain}/estimate-gas", s.handleEstimateGas)

	mux.HandleFunc("POST /v1/wallets", s.handleProvisionWallet)
	mux.HandleFunc("GET /v1/wallets", s.handleListWallets)
	mux.HandleFunc("GET /v1/wallets/{chain}/{address}", s.handleGetWallet)
	mux.HandleFunc("DELETE /v1/wallets/{chain}/{address}", s.handleDeactivateWallet)
	mux.HandleFunc("POST /v1/wallets/{chain}/{address}/deploy", s.handleDeployWallet)
	mux.HandleFunc("GET /v1/wallets/{chain}/{address}/balance", s.handleGetBalance)

	mux.HandleFunc("POST /v1/missions/{missionID}/agent-key", s.handleStartMission)
	mux.HandleFunc("PUT /v1/missions/{missionID}/agent-key", s.handleImportMissionKey)
	mux.HandleFunc("GET /v1/missions/{missionID}/agent-key", s.handleGetMissionKey)
	mux.HandleFunc("DELETE /v1/missions/{missionID}/agent-key", s.handleRevokeMission)
	mux.HandleFunc("POST /v1/missions/{missionID}/sign", s.handleSignForMission)

	mux.Handle("POST /v1/exports", middleware.RequireActor(http.HandlerFunc(s.handleExport)))

	limiter := middleware.NewRateLimiter(s.opts.RateLimitRPS, s.opts.RateLimitBurst)

	// Chain: RequestID -> AuditContext -> AccessLog -> RateLimit -> LimitBody -> Routes
	return middleware.RequestID(
		middleware.AuditContext(
			middleware.AccessLog(
				limiter.Limit(
					middleware.LimitBody(middleware.MaxBodySize)(mux)))))
}

// Start starts the HTTP server and blocks until it stops
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.opts.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	logger.Info(context.Background(), "starting server", "port", s.opts.Port)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// handleHealth reports liveness and storage reachability
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.store.Ping(ctx); err != nil {
			logger.Error(ctx, "health check failed", "error", err)
			s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return apperrors.BadRequest("request body is required")
		}
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return apperrors.BadRequest("request body too large")
		}
		return apperrors.BadRequest("invalid JSON body")
	}
	return nil
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, statusCode int, data any) {
	middleware.WriteJSON(w, statusCode, data)
}

// writeError writes err as an AppError. Unexpected errors are logged and
// reported as internal errors.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if _, ok := apperrors.IsAppError(err); !ok {
		logger.Error(r.Context(), "request failed", "path", r.URL.Path, "error", err)
	}
	middleware.WriteError(w, err)
}
