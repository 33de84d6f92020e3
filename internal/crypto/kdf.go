package crypto

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// Agent key derivation context. Bump the salt version to rotate every derived key.
const (
	AgentKeySalt = "better-wallet/agent-key/v1"
	AgentKeyInfo = "agent-key-encryption"
)

// ErrEmptySecret is returned when deriving from an empty master secret.
var ErrEmptySecret = errors.New("kdf: master secret is empty")

// KDF derives fixed-length keys from a master secret.
type KDF interface {
	Derive(secret []byte, length int) ([]byte, error)
}

// HKDF is HKDF-SHA256 (RFC 5869) with a fixed salt and info string.
type HKDF struct {
	Salt []byte
	Info []byte
}

// NewAgentKeyHKDF returns the KDF used for agent key encryption
func NewAgentKeyHKDF() *HKDF {
	return &HKDF{
		Salt: []byte(AgentKeySalt),
		Info: []byte(AgentKeyInfo),
	}
}

// Derive expands secret into length bytes
func (h *HKDF) Derive(secret []byte, length int) ([]byte, error) {
	if len(secret) == 0 {
		return nil, ErrEmptySecret
	}

	out := make([]byte, length)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, h.Salt, h.Info), out); err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}
	return out, nil
}

var _ KDF = (*HKDF)(nil)
