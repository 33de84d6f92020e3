// Package custody generates, imports, encrypts and decrypts agent signing keys.
//
// Keys are sealed with AES-256-GCM under a key derived once per process from the
// master secret. Plaintext keys leave this package only as *secmem.Key values,
// and WithDecryptedKey bounds their lifetime to a single callback.
package custody

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/better-wallet/agent-custody/internal/crypto"
	"github.com/better-wallet/agent-custody/internal/logger"
	"github.com/better-wallet/agent-custody/internal/metrics"
	"github.com/better-wallet/agent-custody/internal/secmem"
	apperrors "github.com/better-wallet/agent-custody/pkg/errors"
	"github.com/better-wallet/agent-custody/pkg/types"
)

const masterSecretSetting = "MASTER_SECRET"

var tracer = otel.Tracer("github.com/better-wallet/agent-custody/internal/custody")

// EncryptedKey is the stored form of an agent key. All fields are hex.
type EncryptedKey struct {
	Ciphertext string `json:"ciphertext"`
	IV         string `json:"iv"`
	AuthTag    string `json:"auth_tag"`
}

// FromAgentKey extracts the encrypted fields of a stored agent key
func FromAgentKey(k *types.AgentKey) EncryptedKey {
	return EncryptedKey{Ciphertext: k.Ciphertext, IV: k.IV, AuthTag: k.AuthTag}
}

// GeneratedKey is a freshly generated or imported key in its stored form.
type GeneratedKey struct {
	Curve   types.Curve
	Address string
	EncryptedKey
}

// Service is the key custody service. It is safe for concurrent use.
type Service struct {
	kdf     crypto.KDF
	metrics *metrics.Metrics

	mu     sync.Mutex
	secret []byte

	cipher func() (crypto.KeyedAEAD, error)
}

// NewService creates a custody service over a master secret.
// A nil kdf selects HKDF-SHA256 with the agent key salt. An empty secret is
// accepted here and reported as a configuration error on first use.
func NewService(masterSecret []byte, kdf crypto.KDF, m *metrics.Metrics) *Service {
	if kdf == nil {
		kdf = crypto.NewAgentKeyHKDF()
	}
	s := &Service{
		kdf:     kdf,
		metrics: m,
		secret:  append([]byte(nil), masterSecret...),
	}
	s.cipher = sync.OnceValues(s.deriveCipher)
	return s
}

// deriveCipher runs once. The service's copy of the master secret is erased
// after a successful derivation.
func (s *Service) deriveCipher() (crypto.KeyedAEAD, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.secret) == 0 {
		return nil, apperrors.Configuration(masterSecretSetting)
	}

	key, err := s.kdf.Derive(s.secret, crypto.KeySize)
	if err != nil {
		return nil, fmt.Errorf("failed to derive agent key encryption key: %w", err)
	}
	defer crypto.Zero(key)

	aead, err := crypto.NewAESGCM(key)
	if err != nil {
		return nil, err
	}

	crypto.Zero(s.secret)
	s.secret = nil
	return aead, nil
}

// Configured reports whether a master secret is available
func (s *Service) Configured() bool {
	_, err := s.cipher()
	return err == nil
}

// Generate creates a new key on curve and returns it encrypted
func (s *Service) Generate(ctx context.Context, curve types.Curve) (_ *GeneratedKey, err error) {
	ctx, span := s.startSpan(ctx, "custody.Generate", curve)
	defer func() { s.finish(span, "generate", err) }()

	aead, err := s.cipher()
	if err != nil {
		return nil, err
	}

	raw, address, err := crypto.GenerateKey(curve)
	if err != nil {
		return nil, fmt.Errorf("failed to generate %s key: %w", curve, err)
	}
	defer crypto.Zero(raw)

	enc, err := seal(aead, raw)
	if err != nil {
		return nil, err
	}

	logger.Debug(ctx, "agent key generated", "curve", curve, "address", address)
	return &GeneratedKey{Curve: curve, Address: address, EncryptedKey: *enc}, nil
}

// ImportExisting encrypts an externally generated key.
// The stored form is identical to a generated key's.
func (s *Service) ImportExisting(ctx context.Context, curve types.Curve, rawKey string) (_ *GeneratedKey, err error) {
	ctx, span := s.startSpan(ctx, "custody.ImportExisting", curve)
	defer func() { s.finish(span, "import", err) }()

	aead, err := s.cipher()
	if err != nil {
		return nil, err
	}

	raw, err := crypto.ParseRawKey(curve, strings.TrimSpace(rawKey))
	if err != nil {
		return nil, apperrors.BadRequest("invalid private key")
	}
	defer crypto.Zero(raw)

	address, err := crypto.AddressFromRaw(curve, raw)
	if err != nil {
		return nil, apperrors.BadRequest("invalid private key")
	}

	enc, err := seal(aead, raw)
	if err != nil {
		return nil, err
	}

	logger.Debug(ctx, "agent key imported", "curve", curve, "address", address)
	return &GeneratedKey{Curve: curve, Address: address, EncryptedKey: *enc}, nil
}

// Decrypt recovers the plaintext key. The caller owns the result and must Destroy it.
// Any authentication or format failure yields a DecryptionError and no key.
func (s *Service) Decrypt(ctx context.Context, curve types.Curve, enc EncryptedKey) (_ *secmem.Key, err error) {
	_, span := s.startSpan(ctx, "custody.Decrypt", curve)
	defer func() { s.finish(span, "decrypt", err) }()

	if !curve.Valid() {
		return nil, apperrors.BadRequest(fmt.Sprintf("unknown curve %q", curve))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	aead, err := s.cipher()
	if err != nil {
		return nil, err
	}

	sealed, err := decodeSealed(enc)
	if err != nil {
		return nil, apperrors.Decryption()
	}

	raw, err := aead.Open(sealed)
	if err != nil {
		return nil, apperrors.Decryption()
	}
	if len(raw) != crypto.RawKeySize(curve) {
		crypto.Zero(raw)
		return nil, apperrors.Decryption()
	}

	return secmem.NewKey(curve, raw), nil
}

// WithDecryptedKey decrypts enc, passes the key to fn and erases it when fn
// returns, fails, or panics. fn must not retain the key or its bytes.
func (s *Service) WithDecryptedKey(ctx context.Context, curve types.Curve, enc EncryptedKey, fn func(context.Context, *secmem.Key) error) error {
	key, err := s.Decrypt(ctx, curve, enc)
	if err != nil {
		return err
	}
	defer key.Destroy()

	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(ctx, key)
}

func seal(aead crypto.KeyedAEAD, raw []byte) (*EncryptedKey, error) {
	sealed, err := aead.Seal(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt key: %w", err)
	}
	return &EncryptedKey{
		Ciphertext: hex.EncodeToString(sealed.Ciphertext),
		IV:         hex.EncodeToString(sealed.IV),
		AuthTag:    hex.EncodeToString(sealed.Tag),
	}, nil
}

func decodeSealed(enc EncryptedKey) (*crypto.Sealed, error) {
	ciphertext, err := hex.DecodeString(enc.Ciphertext)
	if err != nil {
		return nil, err
	}
	iv, err := hex.DecodeString(enc.IV)
	if err != nil {
		return nil, err
	}
	tag, err := hex.DecodeString(enc.AuthTag)
	if err != nil {
		return nil, err
	}
	return &crypto.Sealed{Ciphertext: ciphertext, IV: iv, Tag: tag}, nil
}

func (s *Service) startSpan(ctx context.Context, name string, curve types.Curve) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attribute.String("curve", string(curve))))
}

func (s *Service) finish(span trace.Span, op string, err error) {
	if err != nil {
		span.SetStatus(codes.Error, op+" failed")
	}
	span.End()
	s.metrics.CustodyOp(op, err)
}
