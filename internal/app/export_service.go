package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/better-wallet/agent-custody/internal/logger"
	"github.com/better-wallet/agent-custody/internal/metrics"
	"github.com/better-wallet/agent-custody/internal/ratelimit"
	pkgcrypto "github.com/better-wallet/agent-custody/pkg/crypto"
	apperrors "github.com/better-wallet/agent-custody/pkg/errors"
	"github.com/better-wallet/agent-custody/pkg/types"
)

const (
	exportFeature        = "mnemonic_export"
	maxBundleResponse    = 1 << 20
	defaultBundleTimeout = 15 * time.Second
)

// ExportAuditLog is the append-only record of export attempts
type ExportAuditLog interface {
	Append(ctx context.Context, entry *types.ExportAuditEntry) error
}

// BundleRequest asks the external provider to seal a mnemonic to a recipient key
type BundleRequest struct {
	TargetEntity       string `json:"target_entity"`
	RecipientPublicKey string `json:"recipient_public_key"`
}

// BundleProvider produces encrypted export bundles. The backend never sees
// the plaintext and cannot open the bundle.
type BundleProvider interface {
	RequestBundle(ctx context.Context, req BundleRequest) (*pkgcrypto.EncryptedBundle, error)
}

// HTTPBundleProvider posts bundle requests to an external export service
type HTTPBundleProvider struct {
	url    string
	client *http.Client
}

// NewHTTPBundleProvider creates a bundle provider for url
func NewHTTPBundleProvider(url string, client *http.Client) *HTTPBundleProvider {
	if client == nil {
		client = &http.Client{Timeout: defaultBundleTimeout}
	}
	return &HTTPBundleProvider{url: url, client: client}
}

// RequestBundle posts req as JSON and decodes the returned bundle
func (p *HTTPBundleProvider) RequestBundle(ctx context.Context, req BundleRequest) (*pkgcrypto.EncryptedBundle, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode bundle request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build bundle request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("bundle provider request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBundleResponse))
		return nil, fmt.Errorf("bundle provider returned status %d", resp.StatusCode)
	}

	var bundle pkgcrypto.EncryptedBundle
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBundleResponse)).Decode(&bundle); err != nil {
		return nil, fmt.Errorf("failed to decode bundle: %w", err)
	}
	return &bundle, nil
}

// ExportService brokers mnemonic export bundles
type ExportService struct {
	enabled  bool
	provider BundleProvider
	audit    ExportAuditLog
	limiter  *ratelimit.Keyed
	metrics  *metrics.Metrics
	now      func() time.Time
}

// ExportConfig configures the export flow
type ExportConfig struct {
	Enabled       bool
	Provider      BundleProvider
	RatePerMinute int
}

// NewExportService creates a new export service. A nil provider leaves the
// feature disabled regardless of cfg.Enabled.
func NewExportService(cfg ExportConfig, audit ExportAuditLog, m *metrics.Metrics) *ExportService {
	rpm := cfg.RatePerMinute
	if rpm <= 0 {
		rpm = 3
	}
	return &ExportService{
		enabled:  cfg.Enabled,
		provider: cfg.Provider,
		audit:    audit,
		limiter:  ratelimit.PerMinute(rpm),
		metrics:  m,
		now:      time.Now,
	}
}

// ExportRequest represents a mnemonic export request
type ExportRequest struct {
	Actor                 string `json:"-"`
	TargetEntity          string `json:"target_entity"`
	RecipientPublicKeyHex string `json:"recipient_public_key"`
	ClientIP              string `json:"-"`
	UserAgent             string `json:"-"`
}

// ExportResponse carries the sealed bundle back to the caller
type ExportResponse struct {
	Bundle               *pkgcrypto.EncryptedBundle `json:"bundle"`
	RecipientFingerprint string                     `json:"recipient_fingerprint"`
}

// Enabled reports whether exports can be served
func (s *ExportService) Enabled() bool {
	return s.enabled && s.provider != nil
}

// Export requests a bundle sealed to the caller's recipient key.
// Every attempt is audited; if the audit entry cannot be written the export fails.
func (s *ExportService) Export(ctx context.Context, req ExportRequest) (*ExportResponse, error) {
	actor := strings.TrimSpace(req.Actor)
	if actor == "" {
		return nil, apperrors.ErrUnauthorized
	}
	target := strings.TrimSpace(req.TargetEntity)
	if target == "" {
		return nil, apperrors.BadRequest("target_entity is required")
	}

	entry := &types.ExportAuditEntry{
		ID:           uuid.New(),
		Actor:        actor,
		TargetEntity: target,
		ClientIP:     req.ClientIP,
		UserAgent:    req.UserAgent,
	}

	if !s.Enabled() {
		return nil, s.deny(ctx, entry, apperrors.FeatureDisabled(exportFeature))
	}

	recipient, err := pkgcrypto.ParseRecipientPublicKey(req.RecipientPublicKeyHex)
	if err != nil {
		return nil, s.deny(ctx, entry, apperrors.BadRequest(err.Error()))
	}
	entry.RecipientFingerprint = pkgcrypto.Fingerprint(recipient)

	if !s.limiter.Allow(actor) {
		return nil, s.deny(ctx, entry, apperrors.ErrRateLimited)
	}

	bundle, err := s.provider.RequestBundle(ctx, BundleRequest{
		TargetEntity:       target,
		RecipientPublicKey: req.RecipientPublicKeyHex,
	})
	if err == nil {
		err = bundle.Validate()
	}
	if err != nil {
		logger.Error(ctx, "export bundle request failed", "actor", actor, "target", target, "error", err)
		if auditErr := s.record(ctx, entry, types.ExportOutcomeFailed); auditErr != nil {
			return nil, auditErr
		}
		return nil, apperrors.NewWithDetail(
			apperrors.ErrCodeInternalError,
			"Export bundle unavailable",
			"bundle provider failed",
			http.StatusBadGateway,
		)
	}

	if err := s.record(ctx, entry, types.ExportOutcomeSucceeded); err != nil {
		return nil, err
	}

	logger.Info(ctx, "export bundle issued", "actor", actor, "target", target, "recipient", entry.RecipientFingerprint)
	return &ExportResponse{Bundle: bundle, RecipientFingerprint: entry.RecipientFingerprint}, nil
}

func (s *ExportService) deny(ctx context.Context, entry *types.ExportAuditEntry, cause error) error {
	if err := s.record(ctx, entry, types.ExportOutcomeDenied); err != nil {
		return err
	}
	logger.Warn(ctx, "export denied", "actor", entry.Actor, "target", entry.TargetEntity, "error", cause)
	return cause
}

func (s *ExportService) record(ctx context.Context, entry *types.ExportAuditEntry, outcome string) error {
	entry.Outcome = outcome
	entry.CreatedAt = s.now().UTC()
	s.metrics.Export(outcome)
	if err := s.audit.Append(ctx, entry); err != nil {
		logger.Error(ctx, "export audit append failed", "actor", entry.Actor, "error", err)
		return fmt.Errorf("failed to record export audit: %w", err)
	}
	return nil
}
