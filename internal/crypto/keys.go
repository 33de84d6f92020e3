package crypto

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"

	"github.com/better-wallet/agent-custody/pkg/types"
)

// GenerateEthereumKey generates a new secp256k1 private key
func GenerateEthereumKey() (*ecdsa.PrivateKey, error) {
	privateKey, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate private key: %w", err)
	}
	return privateKey, nil
}

// GetEthereumAddress derives the Ethereum address from a private key
func GetEthereumAddress(privateKey *ecdsa.PrivateKey) common.Address {
	return crypto.PubkeyToAddress(privateKey.PublicKey)
}

// PrivateKeyToBytes converts a private key to its 32-byte scalar
func PrivateKeyToBytes(privateKey *ecdsa.PrivateKey) []byte {
	return crypto.FromECDSA(privateKey)
}

// BytesToPrivateKey converts a 32-byte scalar to a private key
func BytesToPrivateKey(b []byte) (*ecdsa.PrivateKey, error) {
	return crypto.ToECDSA(b)
}

// ZeroPrivateKey clears the scalar words of an ECDSA key in place.
func ZeroPrivateKey(privateKey *ecdsa.PrivateKey) {
	if privateKey == nil || privateKey.D == nil {
		return
	}
	words := privateKey.D.Bits()
	for i := range words {
		words[i] = 0
	}
	privateKey.D.SetInt64(0)
}

// GenerateSolanaSeed generates a new ed25519 key and returns its 32-byte seed
func GenerateSolanaSeed() ([]byte, error) {
	key, err := solana.NewRandomPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate ed25519 key: %w", err)
	}
	seed := make([]byte, ed25519.SeedSize)
	copy(seed, key[:ed25519.SeedSize])
	Zero(key)
	return seed, nil
}

// SolanaAddressFromSeed derives the base58 Solana address for an ed25519 seed
func SolanaAddressFromSeed(seed []byte) (string, error) {
	if len(seed) != ed25519.SeedSize {
		return "", fmt.Errorf("ed25519 seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	key := solana.PrivateKey(ed25519.NewKeyFromSeed(seed))
	defer Zero(key)
	return key.PublicKey().String(), nil
}

// GenerateKey draws a random key for the curve and returns the raw key
// bytes together with the address they control.
func GenerateKey(curve types.Curve) (raw []byte, address string, err error) {
	switch curve {
	case types.CurveSecp256k1:
		privateKey, err := GenerateEthereumKey()
		if err != nil {
			return nil, "", err
		}
		defer ZeroPrivateKey(privateKey)
		return PrivateKeyToBytes(privateKey), GetEthereumAddress(privateKey).Hex(), nil
	case types.CurveEd25519:
		seed, err := GenerateSolanaSeed()
		if err != nil {
			return nil, "", err
		}
		address, err := SolanaAddressFromSeed(seed)
		if err != nil {
			Zero(seed)
			return nil, "", err
		}
		return seed, address, nil
	default:
		return nil, "", fmt.Errorf("unsupported curve: %s", curve)
	}
}

// AddressFromRaw derives the address for raw key bytes on the curve
func AddressFromRaw(curve types.Curve, raw []byte) (string, error) {
	switch curve {
	case types.CurveSecp256k1:
		privateKey, err := BytesToPrivateKey(raw)
		if err != nil {
			return "", fmt.Errorf("invalid secp256k1 key: %w", err)
		}
		defer ZeroPrivateKey(privateKey)
		return GetEthereumAddress(privateKey).Hex(), nil
	case types.CurveEd25519:
		return SolanaAddressFromSeed(raw)
	default:
		return "", fmt.Errorf("unsupported curve: %s", curve)
	}
}

// ParseRawKey decodes an externally issued key.
// secp256k1 keys are hex (optional 0x prefix). ed25519 keys are a hex seed,
// a hex 64-byte keypair, or the base58 keypair form used by Solana tooling;
// ed25519 keys are normalized to their 32-byte seed.
func ParseRawKey(curve types.Curve, encoded string) ([]byte, error) {
	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return nil, fmt.Errorf("key is empty")
	}

	switch curve {
	case types.CurveSecp256k1:
		raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimPrefix(encoded, "0x"), "0X"))
		if err != nil {
			return nil, fmt.Errorf("key is not valid hex")
		}
		if len(raw) != 32 {
			Zero(raw)
			return nil, fmt.Errorf("secp256k1 key must be 32 bytes, got %d", len(raw))
		}
		return raw, nil
	case types.CurveEd25519:
		raw, err := hex.DecodeString(strings.TrimPrefix(encoded, "0x"))
		if err != nil {
			raw, err = base58.Decode(encoded)
			if err != nil {
				return nil, fmt.Errorf("key is neither hex nor base58")
			}
		}
		switch len(raw) {
		case ed25519.SeedSize:
			return raw, nil
		case ed25519.PrivateKeySize:
			seed := make([]byte, ed25519.SeedSize)
			copy(seed, raw[:ed25519.SeedSize])
			derived := ed25519.NewKeyFromSeed(seed)
			consistent := subtle.ConstantTimeCompare(derived[ed25519.SeedSize:], raw[ed25519.SeedSize:]) == 1
			Zero(derived)
			Zero(raw)
			if !consistent {
				Zero(seed)
				return nil, fmt.Errorf("ed25519 keypair public half does not match its seed")
			}
			return seed, nil
		default:
			Zero(raw)
			return nil, fmt.Errorf("ed25519 key must be 32 or 64 bytes")
		}
	default:
		return nil, fmt.Errorf("unsupported curve: %s", curve)
	}
}

// Zero overwrites b with zeros
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// RawKeySize returns the length of a raw key on the curve, or 0 if unknown
func RawKeySize(curve types.Curve) int {
	switch curve {
	case types.CurveSecp256k1:
		return 32
	case types.CurveEd25519:
		return ed25519.SeedSize
	default:
		return 0
	}
}
