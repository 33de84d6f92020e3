package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdh"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
)

// Uncompressed P-256 point: 0x04 || X || Y
const (
	uncompressedPointPrefix = 0x04
	uncompressedPointSize   = 65
)

// EncryptedBundle is an export bundle sealed to a recipient P-256 key
type EncryptedBundle struct {
	Ciphertext      string `json:"ciphertext"`       // Base64-encoded nonce || ciphertext
	EncapsulatedKey string `json:"encapsulated_key"` // Base64-encoded ephemeral public key
	EncryptionType  string `json:"encryption_type"`  // Always "HPKE"
}

// ParseRecipientPublicKey parses a hex-encoded uncompressed P-256 point.
// The 0x prefix is optional; the point itself must start with 0x04.
func ParseRecipientPublicKey(encoded string) (*ecdh.PublicKey, error) {
	encoded = strings.TrimPrefix(strings.TrimSpace(encoded), "0x")
	raw, err := hex.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("recipient public key is not valid hex")
	}
	if len(raw) != uncompressedPointSize {
		return nil, fmt.Errorf("recipient public key must be %d bytes, got %d", uncompressedPointSize, len(raw))
	}
	if raw[0] != uncompressedPointPrefix {
		return nil, fmt.Errorf("recipient public key must be an uncompressed point (0x04 prefix)")
	}

	pub, err := ecdh.P256().NewPublicKey(raw)
	if err != nil {
		return nil, fmt.Errorf("recipient public key is not on P-256: %w", err)
	}
	return pub, nil
}

// Fingerprint identifies a recipient key in audit logs without storing it
func Fingerprint(pub *ecdh.PublicKey) string {
	sum := sha256.Sum256(pub.Bytes())
	return hex.EncodeToString(sum[:16])
}

// SealToRecipient encrypts data using HPKE-compatible encryption with the configuration:
// - KEM: DHKEM_P256_HKDF_SHA256 (ECDH with P-256)
// - KDF: HKDF_SHA256
// - AEAD: AES-256-GCM
// - Mode: BASE
func SealToRecipient(recipient *ecdh.PublicKey, plaintext []byte) (*EncryptedBundle, error) {
	ephemeralPrivKey, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate ephemeral key: %w", err)
	}

	sharedSecret, err := ephemeralPrivKey.ECDH(recipient)
	if err != nil {
		return nil, fmt.Errorf("failed to perform ECDH: %w", err)
	}

	aesGCM, err := bundleCipher(sharedSecret)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, aesGCM.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	ciphertext := aesGCM.Seal(nonce, nonce, plaintext, nil)

	return &EncryptedBundle{
		Ciphertext:      base64.StdEncoding.EncodeToString(ciphertext),
		EncapsulatedKey: base64.StdEncoding.EncodeToString(ephemeralPrivKey.PublicKey().Bytes()),
		EncryptionType:  "HPKE",
	}, nil
}

// Validate checks that the bundle is well formed. It cannot check the contents.
func (b *EncryptedBundle) Validate() error {
	if b == nil {
		return fmt.Errorf("bundle is empty")
	}
	if b.EncryptionType != "HPKE" {
		return fmt.Errorf("unsupported bundle encryption type %q", b.EncryptionType)
	}
	encapsulated, err := base64.StdEncoding.DecodeString(b.EncapsulatedKey)
	if err != nil {
		return fmt.Errorf("failed to decode encapsulated key: %w", err)
	}
	if _, err := ecdh.P256().NewPublicKey(encapsulated); err != nil {
		return fmt.Errorf("invalid encapsulated key: %w", err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(b.Ciphertext)
	if err != nil {
		return fmt.Errorf("failed to decode ciphertext: %w", err)
	}
	if len(ciphertext) < 12+16 {
		return fmt.Errorf("ciphertext too short")
	}
	return nil
}

// OpenBundle decrypts a bundle with the recipient's private key.
// The service never holds recipient keys; this exists for clients and tests.
func OpenBundle(recipientPrivateKey *ecdh.PrivateKey, bundle *EncryptedBundle) ([]byte, error) {
	encapsulatedKeyBytes, err := base64.StdEncoding.DecodeString(bundle.EncapsulatedKey)
	if err != nil {
		return nil, fmt.Errorf("failed to decode encapsulated key: %w", err)
	}

	ciphertextWithNonce, err := base64.StdEncoding.DecodeString(bundle.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("failed to decode ciphertext: %w", err)
	}

	ephemeralPubKey, err := ecdh.P256().NewPublicKey(encapsulatedKeyBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse ephemeral public key: %w", err)
	}

	sharedSecret, err := recipientPrivateKey.ECDH(ephemeralPubKey)
	if err != nil {
		return nil, fmt.Errorf("failed to perform ECDH: %w", err)
	}

	aesGCM, err := bundleCipher(sharedSecret)
	if err != nil {
		return nil, err
	}

	nonceSize := aesGCM.NonceSize()
	if len(ciphertextWithNonce) < nonceSize {
		return nil, fmt.Errorf("ciphertext too short")
	}

	plaintext, err := aesGCM.Open(nil, ciphertextWithNonce[:nonceSize], ciphertextWithNonce[nonceSize:], nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: %w", err)
	}

	return plaintext, nil
}

// GenerateRecipientKeyPair generates a P-256 key pair for bundle encryption
func GenerateRecipientKeyPair() (*ecdh.PrivateKey, *ecdh.PublicKey, error) {
	privateKey, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate key pair: %w", err)
	}

	return privateKey, privateKey.PublicKey(), nil
}

// bundleCipher derives the AES-256-GCM cipher from an ECDH shared secret.
// HKDF info is empty as in HPKE BASE mode.
func bundleCipher(sharedSecret []byte) (cipher.AEAD, error) {
	encKey := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, sharedSecret, nil, nil), encKey); err != nil {
		return nil, fmt.Errorf("failed to derive encryption key: %w", err)
	}

	aesCipher, err := aes.NewCipher(encKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}

	aesGCM, err := cipher.NewGCM(aesCipher)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return aesGCM, nil
}
