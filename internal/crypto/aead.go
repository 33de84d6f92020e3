package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
)

// Sizes used by the agent key storage format
const (
	KeySize = 32 // AES-256
	IVSize  = 16
	TagSize = 16
)

// ErrOpen is returned when a sealed value fails authentication or is malformed.
var ErrOpen = errors.New("aead: message authentication failed")

// Sealed is the output of a KeyedAEAD seal, split into the stored fields.
type Sealed struct {
	Ciphertext []byte
	IV         []byte
	Tag        []byte
}

// KeyedAEAD is an authenticated cipher bound to a single derived key.
type KeyedAEAD interface {
	// Seal encrypts plaintext under a fresh random IV
	Seal(plaintext []byte) (*Sealed, error)

	// Open authenticates and decrypts. On failure it returns ErrOpen and no plaintext.
	Open(sealed *Sealed) ([]byte, error)
}

// AESGCM implements KeyedAEAD with AES-256-GCM using a 16-byte IV.
// The cipher.AEAD is safe for concurrent use once constructed.
type AESGCM struct {
	aead cipher.AEAD
	rand io.Reader
}

// NewAESGCM creates an AES-256-GCM cipher from a 32-byte key
func NewAESGCM(key []byte) (*AESGCM, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("aes-gcm key must be %d bytes, got %d", KeySize, len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCMWithNonceSize(block, IVSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &AESGCM{aead: gcm, rand: rand.Reader}, nil
}

// Seal encrypts plaintext with a newly drawn IV
func (a *AESGCM) Seal(plaintext []byte) (*Sealed, error) {
	iv := make([]byte, IVSize)
	if _, err := io.ReadFull(a.rand, iv); err != nil {
		return nil, fmt.Errorf("failed to generate iv: %w", err)
	}

	out := a.aead.Seal(nil, iv, plaintext, nil)
	split := len(out) - TagSize

	return &Sealed{
		Ciphertext: out[:split],
		IV:         iv,
		Tag:        out[split:],
	}, nil
}

// Open decrypts a sealed value
func (a *AESGCM) Open(sealed *Sealed) ([]byte, error) {
	if sealed == nil || len(sealed.IV) != IVSize || len(sealed.Tag) != TagSize {
		return nil, ErrOpen
	}

	buf := make([]byte, 0, len(sealed.Ciphertext)+TagSize)
	buf = append(buf, sealed.Ciphertext...)
	buf = append(buf, sealed.Tag...)

	plaintext, err := a.aead.Open(nil, sealed.IV, buf, nil)
	if err != nil {
		return nil, ErrOpen
	}
	return plaintext, nil
}

var _ KeyedAEAD = (*AESGCM)(nil)
