// Package signing produces EIP-712 signatures with transiently decrypted agent keys.
package signing

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/better-wallet/agent-custody/internal/crypto"
	"github.com/better-wallet/agent-custody/internal/metrics"
	"github.com/better-wallet/agent-custody/internal/secmem"
	apperrors "github.com/better-wallet/agent-custody/pkg/errors"
	"github.com/better-wallet/agent-custody/pkg/types"
)

// DomainType is the EIP-712 meta-type describing the domain.
const DomainType = "EIP712Domain"

var tracer = otel.Tracer("github.com/better-wallet/agent-custody/internal/signing")

// Signature is an EIP-712 signature over Hash. Bytes is r || s || v with v in {27, 28}.
type Signature struct {
	Bytes []byte      `json:"-"`
	Hash  common.Hash `json:"hash"`
	Hex   string      `json:"signature"`
}

// Service signs typed data. It holds no key material.
type Service struct {
	metrics *metrics.Metrics
}

// NewService creates a signing service
func NewService(m *metrics.Metrics) *Service {
	return &Service{metrics: m}
}

// Sign hashes td and signs the digest with key.
// The key is only read; releasing it is the caller's job.
func (s *Service) Sign(ctx context.Context, key *secmem.Key, td apitypes.TypedData) (_ *Signature, err error) {
	_, span := tracer.Start(ctx, "signing.Sign", trace.WithAttributes(
		attribute.String("primary_type", td.PrimaryType),
	))
	defer func() {
		if err != nil {
			span.SetStatus(codes.Error, "sign failed")
		}
		span.End()
		s.metrics.CustodyOp("sign", err)
	}()

	if key == nil {
		return nil, fmt.Errorf("signing key is nil")
	}
	if key.Curve() != types.CurveSecp256k1 {
		return nil, apperrors.UnimplementedCapability(string(key.Curve()), "eip712_sign")
	}

	hash, err := TypedDataHash(td)
	if err != nil {
		return nil, err
	}

	raw := key.Bytes()
	if raw == nil {
		return nil, fmt.Errorf("signing key has been destroyed")
	}

	privateKey, err := crypto.BytesToPrivateKey(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid signing key")
	}
	defer crypto.ZeroPrivateKey(privateKey)

	sig, err := ethcrypto.Sign(hash.Bytes(), privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign: %w", err)
	}
	sig[64] += 27

	return &Signature{
		Bytes: sig,
		Hash:  hash,
		Hex:   hexutil.Encode(sig),
	}, nil
}

// TypedDataHash returns keccak256(0x19 0x01 || domainSeparator || hashStruct(message)).
// Any EIP712Domain entry supplied in td.Types is ignored; the domain type is
// rebuilt from the domain fields that are set.
func TypedDataHash(td apitypes.TypedData) (common.Hash, error) {
	normalized, err := normalize(td)
	if err != nil {
		return common.Hash{}, err
	}

	domainSeparator, err := normalized.HashStruct(DomainType, normalized.Domain.Map())
	if err != nil {
		return common.Hash{}, apperrors.BadRequest(fmt.Sprintf("invalid domain: %v", err))
	}
	structHash, err := normalized.HashStruct(normalized.PrimaryType, normalized.Message)
	if err != nil {
		return common.Hash{}, apperrors.BadRequest(fmt.Sprintf("invalid message: %v", err))
	}

	raw := make([]byte, 0, 2+2*common.HashLength)
	raw = append(raw, 0x19, 0x01)
	raw = append(raw, domainSeparator...)
	raw = append(raw, structHash...)
	return ethcrypto.Keccak256Hash(raw), nil
}

// RecoverAddress returns the address that produced sig over hash
func RecoverAddress(hash common.Hash, sig []byte) (common.Address, error) {
	if len(sig) != ethcrypto.SignatureLength {
		return common.Address{}, fmt.Errorf("signature must be %d bytes, got %d", ethcrypto.SignatureLength, len(sig))
	}

	normalized := make([]byte, len(sig))
	copy(normalized, sig)
	if normalized[64] >= 27 {
		normalized[64] -= 27
	}

	pub, err := ethcrypto.SigToPub(hash.Bytes(), normalized)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to recover public key: %w", err)
	}
	return ethcrypto.PubkeyToAddress(*pub), nil
}

// normalize copies td with the domain meta-type derived from the domain itself
func normalize(td apitypes.TypedData) (apitypes.TypedData, error) {
	if td.PrimaryType == "" {
		return td, apperrors.BadRequest("primaryType is required")
	}
	if td.PrimaryType == DomainType {
		return td, apperrors.BadRequest("primaryType cannot be " + DomainType)
	}
	if _, ok := td.Types[td.PrimaryType]; !ok {
		return td, apperrors.BadRequest(fmt.Sprintf("primaryType %q is not defined in types", td.PrimaryType))
	}

	typesCopy := make(apitypes.Types, len(td.Types)+1)
	for name, fields := range td.Types {
		if name == DomainType {
			continue
		}
		typesCopy[name] = fields
	}
	typesCopy[DomainType] = domainFields(td.Domain)

	td.Types = typesCopy
	return td, nil
}

// domainFields lists the EIP712Domain fields present, in canonical order
func domainFields(d apitypes.TypedDataDomain) []apitypes.Type {
	var fields []apitypes.Type
	if d.Name != "" {
		fields = append(fields, apitypes.Type{Name: "name", Type: "string"})
	}
	if d.Version != "" {
		fields = append(fields, apitypes.Type{Name: "version", Type: "string"})
	}
	if d.ChainId != nil {
		fields = append(fields, apitypes.Type{Name: "chainId", Type: "uint256"})
	}
	if d.VerifyingContract != "" {
		fields = append(fields, apitypes.Type{Name: "verifyingContract", Type: "address"})
	}
	if d.Salt != "" {
		fields = append(fields, apitypes.Type{Name: "salt", Type: "bytes32"})
	}
	return fields
}
