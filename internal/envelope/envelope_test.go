package envelope

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newKeys(t *testing.T) *KeyMaterial {
	t.Helper()
	km, err := GenerateKeySet()
	require.NoError(t, err)
	return km
}

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	km := newKeys(t)

	for _, pt := range []string{"", "Ada Lovelace", "ada@example.com", "Flat 2\n10 Downing St", "🎟️ ünïcode"} {
		ct, err := Encrypt(km.PublicKey, pt)
		require.NoError(t, err)
		assert.True(t, IsCiphertext(ct))
		if pt != "" {
			assert.NotContains(t, ct, pt)
		}

		got, err := Decrypt(ct, km.SealedPrivateKey, km.DataKey)
		require.NoError(t, err)
		assert.Equal(t, pt, got)
	}
}

func TestEncrypt_NonDeterministic(t *testing.T) {
	km := newKeys(t)

	a, err := Encrypt(km.PublicKey, "same")
	require.NoError(t, err)
	b, err := Encrypt(km.PublicKey, "same")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestDecrypt_WrongKey(t *testing.T) {
	km := newKeys(t)
	other := newKeys(t)

	ct, err := Encrypt(km.PublicKey, "secret")
	require.NoError(t, err)

	_, err = Decrypt(ct, km.SealedPrivateKey, other.DataKey)
	assert.ErrorIs(t, err, ErrDecryptFailed)
}

func TestDecrypt_RejectsTamperedAndPlaintext(t *testing.T) {
	km := newKeys(t)

	ct, err := Encrypt(km.PublicKey, "secret")
	require.NoError(t, err)

	raw, err := base64.RawStdEncoding.DecodeString(strings.TrimPrefix(ct, ciphertextPrefix))
	require.NoError(t, err)
	raw[len(raw)/2] ^= 0xff
	tampered := ciphertextPrefix + base64.RawStdEncoding.EncodeToString(raw)

	for _, in := range []string{tampered, "secret", "enc1:not base64!"} {
		_, err := Decrypt(in, km.SealedPrivateKey, km.DataKey)
		assert.ErrorIs(t, err, ErrDecryptFailed, in)
	}
}

func TestDecrypt_DestroyedKey(t *testing.T) {
	km := newKeys(t)

	ct, err := Encrypt(km.PublicKey, "secret")
	require.NoError(t, err)

	km.DataKey.Destroy()

	_, err = Decrypt(ct, km.SealedPrivateKey, km.DataKey)
	assert.ErrorIs(t, err, ErrDecryptFailed)
}

func TestEncrypt_InvalidPublicKey(t *testing.T) {
	_, err := Encrypt("short", "x")
	assert.ErrorIs(t, err, ErrEncryptFailed)
}

func TestWrapUnwrap_PerAdmin(t *testing.T) {
	km := newKeys(t)

	saltA, err := NewSalt()
	require.NoError(t, err)
	saltB, err := NewSalt()
	require.NoError(t, err)

	kekA := DeriveKEK("alice-password", saltA)
	kekB := DeriveKEK("bob-password", saltB)

	wrappedA, err := WrapDataKey(km.DataKey, kekA)
	require.NoError(t, err)
	wrappedB, err := WrapDataKey(km.DataKey, kekB)
	require.NoError(t, err)
	assert.NotEqual(t, wrappedA, wrappedB)

	ct, err := Encrypt(km.PublicKey, "shared")
	require.NoError(t, err)

	for _, tc := range []struct {
		wrapped string
		kek     []byte
	}{{wrappedA, kekA}, {wrappedB, kekB}} {
		key, err := UnwrapDataKey(tc.wrapped, tc.kek)
		require.NoError(t, err)

		pt, err := Decrypt(ct, km.SealedPrivateKey, key)
		require.NoError(t, err)
		assert.Equal(t, "shared", pt)
	}

	_, err = UnwrapDataKey(wrappedA, DeriveKEK("wrong", saltA))
	assert.ErrorIs(t, err, ErrDecryptFailed)
}

func TestSessionKey_NeverRendered(t *testing.T) {
	km := newKeys(t)

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	logger.Info("unlocked", "key", km.DataKey)

	assert.Contains(t, buf.String(), redacted)
	assert.Equal(t, redacted, fmt.Sprintf("%v", km.DataKey))
	assert.Equal(t, redacted, fmt.Sprintf("%#v", km.DataKey))
}

func TestSessionKey_CopySurvivesDestroy(t *testing.T) {
	km := newKeys(t)

	b, ok := km.DataKey.bytes()
	require.True(t, ok)
	want := append([]byte(nil), b...)

	km.DataKey.Destroy()

	assert.Equal(t, want, b)
	_, ok = km.DataKey.bytes()
	assert.False(t, ok)
}

func TestSessionKey_DestroyWhileDecrypting(t *testing.T) {
	km := newKeys(t)

	ct, err := Encrypt(km.PublicKey, "secret")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				pt, err := Decrypt(ct, km.SealedPrivateKey, km.DataKey)
				if err != nil {
					assert.ErrorIs(t, err, ErrDecryptFailed)
					continue
				}
				assert.Equal(t, "secret", pt)
			}
		}()
	}

	km.DataKey.Destroy()
	wg.Wait()

	assert.False(t, km.DataKey.Valid())
}
