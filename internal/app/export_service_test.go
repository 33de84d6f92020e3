package app

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/better-wallet/agent-custody/internal/metrics"
	pkgcrypto "github.com/better-wallet/agent-custody/pkg/crypto"
	apperrors "github.com/better-wallet/agent-custody/pkg/errors"
	"github.com/better-wallet/agent-custody/pkg/types"
)

// newBundleServer seals a fixed payload to the requested recipient, the way
// the external export service would.
func newBundleServer(t *testing.T, status int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		var req BundleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		pub, err := pkgcrypto.ParseRecipientPublicKey(req.RecipientPublicKey)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		bundle, err := pkgcrypto.SealToRecipient(pub, []byte("test test test junk"))
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(bundle)
	}))
	t.Cleanup(srv.Close)
	return srv
}

type failingAudit struct{}

func (failingAudit) Append(context.Context, *types.ExportAuditEntry) error {
	return errors.New("disk full")
}

func recipientKeyHex(t *testing.T) (string, func(*pkgcrypto.EncryptedBundle) []byte) {
	t.Helper()
	priv, pub, err := pkgcrypto.GenerateRecipientKeyPair()
	require.NoError(t, err)
	return "0x" + hex.EncodeToString(pub.Bytes()), func(b *pkgcrypto.EncryptedBundle) []byte {
		plain, err := pkgcrypto.OpenBundle(priv, b)
		require.NoError(t, err)
		return plain
	}
}

func TestExport_Succeeds(t *testing.T) {
	store := newTestStore(t)
	m := metrics.New()
	srv := newBundleServer(t, http.StatusOK)
	svc := NewExportService(ExportConfig{
		Enabled:  true,
		Provider: NewHTTPBundleProvider(srv.URL, srv.Client()),
	}, store, m)

	recipient, open := recipientKeyHex(t)
	resp, err := svc.Export(context.Background(), ExportRequest{
		Actor:                 "user-1",
		TargetEntity:          "wallet-1",
		RecipientPublicKeyHex: recipient,
		ClientIP:              "10.0.0.1",
		UserAgent:             "test",
	})
	require.NoError(t, err)
	assert.Equal(t, []byte("test test test junk"), open(resp.Bundle))

	entries, err := store.ListByActor(context.Background(), "user-1", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, types.ExportOutcomeSucceeded, entries[0].Outcome)
	assert.Equal(t, resp.RecipientFingerprint, entries[0].RecipientFingerprint)
	assert.Equal(t, "10.0.0.1", entries[0].ClientIP)
	count, err := testutil.GatherAndCount(m.Registry(), "export_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestExport_DisabledIsAudited(t *testing.T) {
	recipient, _ := recipientKeyHex(t)

	tests := []struct {
		name string
		cfg  ExportConfig
	}{
		{"flag off", ExportConfig{Enabled: false, Provider: NewHTTPBundleProvider("http://unused", nil)}},
		{"no provider", ExportConfig{Enabled: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newTestStore(t)
			svc := NewExportService(tt.cfg, store, nil)

			_, err := svc.Export(context.Background(), ExportRequest{
				Actor: "user-1", TargetEntity: "wallet-1", RecipientPublicKeyHex: recipient,
			})
			assert.True(t, errors.Is(err, apperrors.ErrFeatureDisabled))

			entries, err := store.ListByActor(context.Background(), "user-1", 10)
			require.NoError(t, err)
			require.Len(t, entries, 1)
			assert.Equal(t, types.ExportOutcomeDenied, entries[0].Outcome)
		})
	}
}

func TestExport_InvalidRecipientKey(t *testing.T) {
	store := newTestStore(t)
	srv := newBundleServer(t, http.StatusOK)
	svc := NewExportService(ExportConfig{Enabled: true, Provider: NewHTTPBundleProvider(srv.URL, nil)}, store, nil)

	recipient, _ := recipientKeyHex(t)
	compressed := "0x02" + recipient[4:68]

	for _, key := range []string{"", "0xzz", compressed, "0x04" + recipient[4:len(recipient)-2]} {
		_, err := svc.Export(context.Background(), ExportRequest{
			Actor: "user-1", TargetEntity: "wallet-1", RecipientPublicKeyHex: key,
		})
		assert.True(t, errors.Is(err, apperrors.ErrBadRequest), "key %q", key)
	}

	entries, err := store.ListByActor(context.Background(), "user-1", 10)
	require.NoError(t, err)
	assert.Len(t, entries, 4)
}

func TestExport_RateLimitedPerActor(t *testing.T) {
	store := newTestStore(t)
	srv := newBundleServer(t, http.StatusOK)
	svc := NewExportService(ExportConfig{
		Enabled:       true,
		Provider:      NewHTTPBundleProvider(srv.URL, nil),
		RatePerMinute: 1,
	}, store, nil)
	recipient, _ := recipientKeyHex(t)
	ctx := context.Background()

	req := ExportRequest{Actor: "user-1", TargetEntity: "wallet-1", RecipientPublicKeyHex: recipient}
	_, err := svc.Export(ctx, req)
	require.NoError(t, err)

	_, err = svc.Export(ctx, req)
	assert.True(t, errors.Is(err, apperrors.ErrRateLimited))

	req.Actor = "user-2"
	_, err = svc.Export(ctx, req)
	require.NoError(t, err)
}

func TestExport_ProviderFailure(t *testing.T) {
	store := newTestStore(t)
	srv := newBundleServer(t, http.StatusInternalServerError)
	svc := NewExportService(ExportConfig{Enabled: true, Provider: NewHTTPBundleProvider(srv.URL, nil)}, store, nil)
	recipient, _ := recipientKeyHex(t)

	_, err := svc.Export(context.Background(), ExportRequest{
		Actor: "user-1", TargetEntity: "wallet-1", RecipientPublicKeyHex: recipient,
	})
	require.Error(t, err)
	appErr, ok := apperrors.IsAppError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadGateway, appErr.StatusCode)

	entries, err := store.ListByActor(context.Background(), "user-1", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, types.ExportOutcomeFailed, entries[0].Outcome)
}

func TestExport_FailsClosedWhenAuditFails(t *testing.T) {
	srv := newBundleServer(t, http.StatusOK)
	svc := NewExportService(ExportConfig{Enabled: true, Provider: NewHTTPBundleProvider(srv.URL, nil)}, failingAudit{}, nil)
	recipient, _ := recipientKeyHex(t)

	resp, err := svc.Export(context.Background(), ExportRequest{
		Actor: "user-1", TargetEntity: "wallet-1", RecipientPublicKeyHex: recipient,
	})
	require.Error(t, err)
	assert.Nil(t, resp)
}

func TestExport_RequiresActor(t *testing.T) {
	svc := NewExportService(ExportConfig{}, failingAudit{}, nil)

	_, err := svc.Export(context.Background(), ExportRequest{TargetEntity: "wallet-1"})
	assert.True(t, errors.Is(err, apperrors.ErrUnauthorized))
}
