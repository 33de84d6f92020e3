// Package secmem holds transient plaintext key material.
//
// A Key owns its buffer: callers read it through Bytes while the key is live
// and must call Destroy when done. Destroy zeroes the buffer and releases the
// page lock taken on platforms that support it.
package secmem

import (
	"sync"

	"github.com/better-wallet/agent-custody/pkg/types"
)

// Key is a plaintext private key bound to its curve.
type Key struct {
	mu        sync.Mutex
	curve     types.Curve
	buf       []byte
	locked    bool
	destroyed bool
}

// NewKey takes ownership of raw. The caller must not retain raw.
func NewKey(curve types.Curve, raw []byte) *Key {
	k := &Key{curve: curve, buf: raw}
	k.locked = lock(raw) == nil
	return k
}

// Curve returns the curve the key belongs to
func (k *Key) Curve() types.Curve {
	return k.curve
}

// Bytes returns the live buffer, or nil once destroyed.
// The slice aliases the key and is erased by Destroy.
func (k *Key) Bytes() []byte {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.destroyed {
		return nil
	}
	return k.buf
}

// Destroyed reports whether Destroy has run
func (k *Key) Destroyed() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.destroyed
}

// Destroy zeroes the buffer. It is safe to call more than once.
func (k *Key) Destroy() {
	if k == nil {
		return
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.destroyed {
		return
	}
	for i := range k.buf {
		k.buf[i] = 0
	}
	if k.locked {
		_ = unlock(k.buf)
	}
	k.buf = nil
	k.destroyed = true
}
