package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chobbledotcom/tickets-sub006/internal/envelope"
)

func testKey(t *testing.T) *envelope.SessionKey {
	t.Helper()
	km, err := envelope.GenerateKeySet()
	require.NoError(t, err)
	return km.DataKey
}

func TestCreateGetDelete(t *testing.T) {
	s := NewStore(time.Hour)
	key := testKey(t)

	sess := s.Create(1, "alice", key)
	require.NotEmpty(t, sess.Token)

	got, ok := s.Get(sess.Token)
	require.True(t, ok)
	assert.Equal(t, int64(1), got.AdminID)

	s.Delete(sess.Token)
	_, ok = s.Get(sess.Token)
	assert.False(t, ok)
	assert.False(t, key.Valid(), "logout must destroy the key")
}

func TestExpiry(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	s := NewStore(time.Minute)
	s.now = func() time.Time { return now }

	key := testKey(t)
	sess := s.Create(1, "alice", key)
	live := s.Create(2, "bob", testKey(t))

	now = now.Add(2 * time.Minute)
	_, ok := s.Get(sess.Token)
	assert.False(t, ok)
	assert.False(t, key.Valid())

	assert.Equal(t, 1, s.sweep())
	assert.Equal(t, 0, s.Len())
	_, ok = s.Get(live.Token)
	assert.False(t, ok)
}

func TestSweep_StopsWithContext(t *testing.T) {
	s := NewStore(time.Hour)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.Sweep(ctx, time.Millisecond) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Sweep did not return")
	}
}
