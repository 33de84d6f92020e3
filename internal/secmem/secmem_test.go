package secmem

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/better-wallet/agent-custody/pkg/types"
)

func TestKey_Destroy(t *testing.T) {
	raw := bytes.Repeat([]byte{0x42}, 32)
	alias := raw

	key := NewKey(types.CurveSecp256k1, raw)
	assert.Equal(t, types.CurveSecp256k1, key.Curve())
	assert.Equal(t, bytes.Repeat([]byte{0x42}, 32), key.Bytes())

	key.Destroy()

	assert.True(t, key.Destroyed())
	assert.Nil(t, key.Bytes())
	assert.Equal(t, make([]byte, 32), alias, "underlying buffer must be zeroed")
}

func TestKey_DestroyIdempotent(t *testing.T) {
	key := NewKey(types.CurveEd25519, []byte{1, 2, 3})
	key.Destroy()
	key.Destroy()

	var nilKey *Key
	nilKey.Destroy()
}
