// Package envelope implements the PII encryption scheme.
//
// A single random data key protects an X25519 private key. PII is sealed to
// the matching public key, so registrations can encrypt without any admin
// being logged in, while decryption needs the data key. The data key is never
// stored in the clear: each administrator holds a copy wrapped under a key
// derived from their password.
package envelope

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/nacl/box"
)

const (
	ciphertextPrefix = "enc1:"
	dataKeySize      = 32
	saltSize         = 16
)

var (
	ErrDecryptFailed = errors.New("decrypt failed")
	ErrEncryptFailed = errors.New("encrypt failed")
)

// KeyMaterial is produced once at setup. Only PublicKey and SealedPrivateKey
// are persisted; DataKey must be wrapped before it leaves memory.
type KeyMaterial struct {
	DataKey          *SessionKey
	PublicKey        string
	SealedPrivateKey string
}

// GenerateKeySet creates a fresh data key and PII key pair.
func GenerateKeySet() (*KeyMaterial, error) {
	const op = "envelope.GenerateKeySet"

	dk := make([]byte, dataKeySize)
	if _, err := io.ReadFull(rand.Reader, dk); err != nil {
		return nil, fmt.Errorf("%s: read data key: %w", op, err)
	}

	pub, priv, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("%s: generate key pair: %w", op, err)
	}

	sealed, err := seal(dk, priv[:])
	clear(priv[:])
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &KeyMaterial{
		DataKey:          NewSessionKey(dk),
		PublicKey:        base64.RawStdEncoding.EncodeToString(pub[:]),
		SealedPrivateKey: sealed,
	}, nil
}

// NewSalt returns a random KEK salt.
func NewSalt() ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("envelope.NewSalt: %w", err)
	}
	return salt, nil
}

// DeriveKEK stretches an admin password into a key-encryption key.
func DeriveKEK(password string, salt []byte) []byte {
	return argon2.IDKey([]byte(password), salt, 1, 64*1024, 4, 32)
}

// WrapDataKey seals the data key under a KEK.
func WrapDataKey(dataKey *SessionKey, kek []byte) (string, error) {
	const op = "envelope.WrapDataKey"

	dk, ok := dataKey.bytes()
	if !ok {
		return "", fmt.Errorf("%s: %w", op, ErrEncryptFailed)
	}
	defer clear(dk)

	wrapped, err := seal(kek, dk)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return wrapped, nil
}

// UnwrapDataKey recovers the data key from an admin's wrapped copy.
func UnwrapDataKey(wrapped string, kek []byte) (*SessionKey, error) {
	const op = "envelope.UnwrapDataKey"

	dk, err := open(kek, wrapped)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, ErrDecryptFailed)
	}
	if len(dk) != dataKeySize {
		return nil, fmt.Errorf("%s: %w", op, ErrDecryptFailed)
	}

	return NewSessionKey(dk), nil
}

// Encrypt seals plaintext to the PII public key.
func Encrypt(publicKey, plaintext string) (string, error) {
	const op = "envelope.Encrypt"

	raw, err := base64.RawStdEncoding.DecodeString(publicKey)
	if err != nil || len(raw) != 32 {
		return "", fmt.Errorf("%s: %w", op, ErrEncryptFailed)
	}

	var pub [32]byte
	copy(pub[:], raw)

	ct, err := box.SealAnonymous(nil, []byte(plaintext), &pub, rand.Reader)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, ErrEncryptFailed)
	}

	return ciphertextPrefix + base64.RawStdEncoding.EncodeToString(ct), nil
}

// Decrypt opens one ciphertext produced by Encrypt.
func Decrypt(ciphertext, sealedPrivateKey string, key *SessionKey) (string, error) {
	d, err := OpenPrivateKey(sealedPrivateKey, key)
	if err != nil {
		return "", err
	}
	defer d.Destroy()

	return d.Decrypt(ciphertext)
}

// Decrypter holds an unsealed private key so that a batch of fields can be
// decrypted without unsealing it for each one.
type Decrypter struct {
	pub  [32]byte
	priv [32]byte
}

// OpenPrivateKey unseals the PII private key with the data key.
func OpenPrivateKey(sealedPrivateKey string, key *SessionKey) (*Decrypter, error) {
	const op = "envelope.OpenPrivateKey"

	dk, ok := key.bytes()
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, ErrDecryptFailed)
	}
	defer clear(dk)

	raw, err := open(dk, sealedPrivateKey)
	if err != nil || len(raw) != 32 {
		return nil, fmt.Errorf("%s: %w", op, ErrDecryptFailed)
	}

	d := &Decrypter{}
	copy(d.priv[:], raw)
	clear(raw)
	curve25519.ScalarBaseMult(&d.pub, &d.priv)

	return d, nil
}

func (d *Decrypter) Decrypt(ciphertext string) (string, error) {
	const op = "envelope.Decrypter.Decrypt"

	body, ok := strings.CutPrefix(ciphertext, ciphertextPrefix)
	if !ok {
		return "", fmt.Errorf("%s: %w", op, ErrDecryptFailed)
	}

	ct, err := base64.RawStdEncoding.DecodeString(body)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, ErrDecryptFailed)
	}

	pt, ok := box.OpenAnonymous(nil, ct, &d.pub, &d.priv)
	if !ok {
		return "", fmt.Errorf("%s: %w", op, ErrDecryptFailed)
	}

	return string(pt), nil
}

func (d *Decrypter) Destroy() {
	clear(d.priv[:])
}

// IsCiphertext reports whether s carries the envelope prefix.
func IsCiphertext(s string) bool {
	return strings.HasPrefix(s, ciphertextPrefix)
}

// seal encrypts with AES-GCM and encodes nonce||ciphertext.
func seal(key, plaintext []byte) (string, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("read nonce: %w", err)
	}

	payload := aead.Seal(nonce, nonce, plaintext, nil)
	return base64.RawStdEncoding.EncodeToString(payload), nil
}

func open(key []byte, sealed string) ([]byte, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}

	payload, err := base64.RawStdEncoding.DecodeString(sealed)
	if err != nil {
		return nil, fmt.Errorf("decode sealed value: %w", err)
	}

	n := aead.NonceSize()
	if len(payload) < n {
		return nil, errors.New("sealed value is too short")
	}

	return aead.Open(nil, payload[:n], payload[n:], nil)
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("new cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("new gcm: %w", err)
	}
	return aead, nil
}
