package uow

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackoff_Grows(t *testing.T) {
	assert.Equal(t, 5*time.Millisecond, backoff(1))
	assert.Equal(t, 20*time.Millisecond, backoff(2))
	assert.Greater(t, backoff(5), backoff(4))
}

func TestSleepCtx(t *testing.T) {
	require.NoError(t, sleepCtx(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := sleepCtx(ctx, time.Hour)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}

func TestOptions(t *testing.T) {
	u := NewUoW(nil, WithMaxAttempts(0), WithLogger(nil))
	assert.Equal(t, defaultMaxAttempts, u.maxAttempts)
	assert.NotNil(t, u.log)

	u = NewUoW(nil, WithMaxAttempts(9))
	assert.Equal(t, 9, u.maxAttempts)
}
