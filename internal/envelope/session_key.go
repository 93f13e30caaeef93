package envelope

import (
	"encoding/base64"
	"log/slog"
	"sync"
)

const redacted = "[redacted]"

// SessionKey is the unwrapped data key of a logged-in admin. It lives only in
// memory and renders as a redacted marker in logs and format verbs.
type SessionKey struct {
	mu  sync.RWMutex
	key []byte
}

func NewSessionKey(b []byte) *SessionKey {
	cp := make([]byte, len(b))
	copy(cp, b)
	return &SessionKey{key: cp}
}

// Valid reports whether the key is present and has not been destroyed.
func (k *SessionKey) Valid() bool {
	if k == nil {
		return false
	}
	k.mu.RLock()
	defer k.mu.RUnlock()
	return len(k.key) == dataKeySize
}

// Destroy zeroes the key. Later use fails with ErrDecryptFailed.
func (k *SessionKey) Destroy() {
	if k == nil {
		return
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	clear(k.key)
	k.key = nil
}

// bytes returns a copy of the key so a concurrent Destroy cannot zero it
// mid-use. Callers clear the copy when done.
func (k *SessionKey) bytes() ([]byte, bool) {
	if k == nil {
		return nil, false
	}
	k.mu.RLock()
	defer k.mu.RUnlock()
	if len(k.key) != dataKeySize {
		return nil, false
	}
	return append([]byte(nil), k.key...), true
}

func (k *SessionKey) String() string               { return redacted }
func (k *SessionKey) GoString() string             { return redacted }
func (k *SessionKey) LogValue() slog.Value         { return slog.StringValue(redacted) }
func (k *SessionKey) MarshalText() ([]byte, error) { return []byte(redacted), nil }

// EncodeSalt and DecodeSalt convert KEK salts for storage.
func EncodeSalt(salt []byte) string {
	return base64.RawStdEncoding.EncodeToString(salt)
}

func DecodeSalt(s string) ([]byte, error) {
	return base64.RawStdEncoding.DecodeString(s)
}
