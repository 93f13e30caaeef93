package keyring

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/chobbledotcom/tickets-sub006/internal/envelope"
	"github.com/chobbledotcom/tickets-sub006/internal/testkit/memstore"
)

func newService(t *testing.T) (*Service, *memstore.Store) {
	t.Helper()
	store := memstore.New()
	return New(store, nil, WithBcryptCost(bcrypt.MinCost)), store
}

func TestSetupUnlockRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, _ := newService(t)

	first, err := s.Setup(ctx, "alice", "correct horse")
	require.NoError(t, err)
	require.True(t, first.Key.Valid())

	ct, err := s.Encrypt(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.True(t, envelope.IsCiphertext(ct))

	u, err := s.Unlock(ctx, "alice", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, first.AdminID, u.AdminID)

	pt, err := s.Decrypt(ctx, ct, u.Key)
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", pt)
}

func TestSetup_OnlyOnce(t *testing.T) {
	ctx := context.Background()
	s, _ := newService(t)

	_, err := s.Setup(ctx, "alice", "correct horse")
	require.NoError(t, err)

	_, err = s.Setup(ctx, "bob", "battery staple")
	assert.ErrorIs(t, err, ErrAlreadySetUp)
}

func TestSetup_RejectsWeakInput(t *testing.T) {
	s, _ := newService(t)

	_, err := s.Setup(context.Background(), "alice", "short")
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = s.Setup(context.Background(), "  ", "correct horse")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestUnlock_InvalidCredentials(t *testing.T) {
	ctx := context.Background()
	s, _ := newService(t)

	_, err := s.Setup(ctx, "alice", "correct horse")
	require.NoError(t, err)

	_, err = s.Unlock(ctx, "alice", "wrong password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = s.Unlock(ctx, "mallory", "correct horse")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAddAdmin_SharesDataKey(t *testing.T) {
	ctx := context.Background()
	s, store := newService(t)

	first, err := s.Setup(ctx, "alice", "correct horse")
	require.NoError(t, err)

	ct, err := s.Encrypt(ctx, "07700 900000")
	require.NoError(t, err)

	_, err = s.AddAdmin(ctx, first.Key, "bob", "battery staple")
	require.NoError(t, err)

	_, err = s.AddAdmin(ctx, first.Key, "bob", "another password")
	assert.ErrorIs(t, err, ErrAdminExists)

	// A fresh instance loads the key set from storage.
	other := New(store, nil, WithBcryptCost(bcrypt.MinCost))
	bob, err := other.Unlock(ctx, "bob", "battery staple")
	require.NoError(t, err)

	pt, err := other.Decrypt(ctx, ct, bob.Key)
	require.NoError(t, err)
	assert.Equal(t, "07700 900000", pt)
}

func TestAddAdmin_RequiresWorkingKey(t *testing.T) {
	ctx := context.Background()
	s, _ := newService(t)

	first, err := s.Setup(ctx, "alice", "correct horse")
	require.NoError(t, err)

	first.Key.Destroy()
	_, err = s.AddAdmin(ctx, first.Key, "bob", "battery staple")
	assert.ErrorIs(t, err, ErrLocked)

	stray, err := envelope.GenerateKeySet()
	require.NoError(t, err)
	_, err = s.AddAdmin(ctx, stray.DataKey, "bob", "battery staple")
	assert.ErrorIs(t, err, ErrLocked)
}

func TestDecrypt_WrongKeyFails(t *testing.T) {
	ctx := context.Background()
	s, _ := newService(t)

	_, err := s.Setup(ctx, "alice", "correct horse")
	require.NoError(t, err)

	ct, err := s.Encrypt(ctx, "secret")
	require.NoError(t, err)

	stray, err := envelope.GenerateKeySet()
	require.NoError(t, err)

	_, err = s.Decrypt(ctx, ct, stray.DataKey)
	assert.ErrorIs(t, err, envelope.ErrDecryptFailed)
}

func TestEncrypt_NotSetUp(t *testing.T) {
	s, _ := newService(t)

	_, err := s.Encrypt(context.Background(), "x")
	assert.ErrorIs(t, err, ErrNotSetUp)

	ok, err := s.IsSetUp(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}
