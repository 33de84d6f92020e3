package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHKDF_Derive(t *testing.T) {
	kdf := NewAgentKeyHKDF()

	t.Run("deterministic for the same secret", func(t *testing.T) {
		a, err := kdf.Derive([]byte("master-secret"), KeySize)
		require.NoError(t, err)
		b, err := kdf.Derive([]byte("master-secret"), KeySize)
		require.NoError(t, err)

		assert.Len(t, a, KeySize)
		assert.Equal(t, a, b)
	})

	t.Run("differs per secret", func(t *testing.T) {
		a, err := kdf.Derive([]byte("secret-a"), KeySize)
		require.NoError(t, err)
		b, err := kdf.Derive([]byte("secret-b"), KeySize)
		require.NoError(t, err)

		assert.NotEqual(t, a, b)
	})

	t.Run("salt and info separate purposes", func(t *testing.T) {
		other := &HKDF{Salt: []byte(AgentKeySalt), Info: []byte("export-bundle")}

		a, err := kdf.Derive([]byte("master-secret"), KeySize)
		require.NoError(t, err)
		b, err := other.Derive([]byte("master-secret"), KeySize)
		require.NoError(t, err)

		assert.NotEqual(t, a, b)
	})

	t.Run("does not return the secret itself", func(t *testing.T) {
		secret := []byte("0123456789abcdef0123456789abcdef")
		out, err := kdf.Derive(secret, KeySize)
		require.NoError(t, err)
		assert.NotEqual(t, secret, out)
	})

	t.Run("rejects empty secret", func(t *testing.T) {
		_, err := kdf.Derive(nil, KeySize)
		assert.ErrorIs(t, err, ErrEmptySecret)
	})
}
