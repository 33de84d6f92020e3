package crypto

import (
	"bytes"
	"crypto/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAEAD(t *testing.T) *AESGCM {
	t.Helper()
	key := make([]byte, KeySize)
	_, err := rand.Read(key)
	require.NoError(t, err)

	aead, err := NewAESGCM(key)
	require.NoError(t, err)
	return aead
}

func TestNewAESGCM(t *testing.T) {
	t.Run("rejects short key", func(t *testing.T) {
		_, err := NewAESGCM(make([]byte, 16))
		assert.Error(t, err)
	})

	t.Run("accepts 32-byte key", func(t *testing.T) {
		_, err := NewAESGCM(make([]byte, KeySize))
		assert.NoError(t, err)
	})
}

func TestAESGCM_RoundTrip(t *testing.T) {
	aead := newTestAEAD(t)

	tests := []struct {
		name      string
		plaintext []byte
	}{
		{"32-byte key", bytes.Repeat([]byte{0xab}, 32)},
		{"empty", []byte{}},
		{"odd length", []byte("agent-key")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sealed, err := aead.Seal(tt.plaintext)
			require.NoError(t, err)

			assert.Len(t, sealed.IV, IVSize)
			assert.Len(t, sealed.Tag, TagSize)
			assert.Len(t, sealed.Ciphertext, len(tt.plaintext))

			opened, err := aead.Open(sealed)
			require.NoError(t, err)
			assert.Equal(t, tt.plaintext, opened)
		})
	}
}

func TestAESGCM_IVUniqueness(t *testing.T) {
	aead := newTestAEAD(t)
	plaintext := bytes.Repeat([]byte{0x01}, 32)

	const total = 10000
	const workers = 8

	var mu sync.Mutex
	seen := make(map[string]struct{}, total)
	var wg sync.WaitGroup

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < total/workers; i++ {
				sealed, err := aead.Seal(plaintext)
				if err != nil {
					t.Error(err)
					return
				}
				mu.Lock()
				seen[string(sealed.IV)] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, total)
}

func TestAESGCM_TamperDetection(t *testing.T) {
	aead := newTestAEAD(t)
	plaintext := bytes.Repeat([]byte{0x5a}, 32)

	sealed, err := aead.Seal(plaintext)
	require.NoError(t, err)

	flip := func(field []byte, bit int) []byte {
		out := append([]byte(nil), field...)
		out[bit/8] ^= 1 << (bit % 8)
		return out
	}

	t.Run("every ciphertext bit", func(t *testing.T) {
		for bit := 0; bit < len(sealed.Ciphertext)*8; bit++ {
			tampered := &Sealed{Ciphertext: flip(sealed.Ciphertext, bit), IV: sealed.IV, Tag: sealed.Tag}
			out, err := aead.Open(tampered)
			require.ErrorIs(t, err, ErrOpen, "bit %d", bit)
			require.Nil(t, out)
		}
	})

	t.Run("every tag bit", func(t *testing.T) {
		for bit := 0; bit < TagSize*8; bit++ {
			tampered := &Sealed{Ciphertext: sealed.Ciphertext, IV: sealed.IV, Tag: flip(sealed.Tag, bit)}
			out, err := aead.Open(tampered)
			require.ErrorIs(t, err, ErrOpen, "bit %d", bit)
			require.Nil(t, out)
		}
	})

	t.Run("every iv bit", func(t *testing.T) {
		for bit := 0; bit < IVSize*8; bit++ {
			tampered := &Sealed{Ciphertext: sealed.Ciphertext, IV: flip(sealed.IV, bit), Tag: sealed.Tag}
			_, err := aead.Open(tampered)
			require.ErrorIs(t, err, ErrOpen, "bit %d", bit)
		}
	})

	t.Run("malformed fields", func(t *testing.T) {
		_, err := aead.Open(nil)
		assert.ErrorIs(t, err, ErrOpen)

		_, err = aead.Open(&Sealed{Ciphertext: sealed.Ciphertext, IV: sealed.IV[:12], Tag: sealed.Tag})
		assert.ErrorIs(t, err, ErrOpen)

		_, err = aead.Open(&Sealed{Ciphertext: sealed.Ciphertext, IV: sealed.IV, Tag: sealed.Tag[:8]})
		assert.ErrorIs(t, err, ErrOpen)
	})
}

func TestAESGCM_WrongKey(t *testing.T) {
	a := newTestAEAD(t)
	b := newTestAEAD(t)

	sealed, err := a.Seal([]byte("secret"))
	require.NoError(t, err)

	_, err = b.Open(sealed)
	assert.ErrorIs(t, err, ErrOpen)
}
