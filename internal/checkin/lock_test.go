package checkin

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLock(t *testing.T) (*TicketLock, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewTicketLock(client, 10*time.Second), mr
}

func TestTicketLockExclusive(t *testing.T) {
	lock, _ := newTestLock(t)
	ctx := context.Background()

	ok, err := lock.Acquire(ctx, "t1", "scan-a")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = lock.Acquire(ctx, "t1", "scan-b")
	require.NoError(t, err)
	assert.False(t, ok)

	// A different ticket is unaffected.
	ok, err = lock.Acquire(ctx, "t2", "scan-b")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestTicketLockReleaseByHolderOnly(t *testing.T) {
	lock, _ := newTestLock(t)
	ctx := context.Background()

	ok, err := lock.Acquire(ctx, "t1", "scan-a")
	require.NoError(t, err)
	require.True(t, ok)

	// A non-holder release is a no-op.
	require.NoError(t, lock.Release(ctx, "t1", "scan-b"))
	ok, err = lock.Acquire(ctx, "t1", "scan-c")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, lock.Release(ctx, "t1", "scan-a"))
	ok, err = lock.Acquire(ctx, "t1", "scan-c")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestTicketLockExpires(t *testing.T) {
	lock, mr := newTestLock(t)
	ctx := context.Background()

	ok, err := lock.Acquire(ctx, "t1", "scan-a")
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(11 * time.Second)

	ok, err = lock.Acquire(ctx, "t1", "scan-b")
	require.NoError(t, err)
	assert.True(t, ok)

	// Releasing an expired lock is not an error.
	require.NoError(t, lock.Release(ctx, "t1", "scan-a"))
}
