package lock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func TestWalletLockMutualExclusion(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	lockA := NewWalletLock(client, 100, "holder-a")
	lockB := NewWalletLock(client, 100, "holder-b")

	ok, err := lockA.TryLock(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	// 同一用户的第二把锁拿不到
	ok, err = lockB.TryLock(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	// 不同用户互不影响
	lockC := NewWalletLock(client, 200, "holder-c")
	ok, err = lockC.TryLock(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	// 释放后可重新获取
	require.NoError(t, lockA.Unlock(ctx))
	ok, err = lockB.TryLock(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestUnlockOnlyOwnLock(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	lockA := NewWalletLock(client, 100, "holder-a")
	lockB := NewWalletLock(client, 100, "holder-b")

	ok, err := lockA.TryLock(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	// 持有者不符，删不掉别人的锁
	_ = lockB.Unlock(ctx)
	ok, err = lockB.TryLock(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLockWithRetry(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	lockA := NewWalletLock(client, 100, "holder-a")
	ok, err := lockA.TryLock(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	go func() {
		time.Sleep(30 * time.Millisecond)
		_ = lockA.Unlock(ctx)
	}()

	// 阻塞重试直到前一把锁释放
	lockB := NewWalletLock(client, 100, "holder-b")
	err = lockB.Lock(ctx, 10*time.Millisecond, 20)
	assert.NoError(t, err)
}

func TestLockRetryExhausted(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	lockA := NewWalletLock(client, 100, "holder-a")
	ok, err := lockA.TryLock(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	lockB := NewWalletLock(client, 100, "holder-b")
	err = lockB.Lock(ctx, time.Millisecond, 3)
	assert.ErrorIs(t, err, ErrLockFailed)
}
