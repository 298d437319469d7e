package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLockerTryLock(t *testing.T) {
	l := NewMemoryLocker()
	ctx := context.Background()

	ok, err := l.TryLock(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = l.TryLock(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	// Independent keys do not contend.
	ok, err = l.TryLock(ctx, "other", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryLockerUnlock(t *testing.T) {
	l := NewMemoryLocker()
	ctx := context.Background()

	ok, _ := l.TryLock(ctx, "k", time.Minute)
	require.True(t, ok)

	require.NoError(t, l.Unlock(ctx, "k"))

	ok, err := l.TryLock(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryLockerExpiry(t *testing.T) {
	l := NewMemoryLocker()
	ctx := context.Background()

	ok, _ := l.TryLock(ctx, "k", 10*time.Millisecond)
	require.True(t, ok)

	time.Sleep(20 * time.Millisecond)

	ok, err := l.TryLock(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}
