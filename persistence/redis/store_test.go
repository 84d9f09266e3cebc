package redis

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainforge/txpipe"
)

func TestStore_PutGetDelete(t *testing.T) {
	client := testRedisClient(t)
	store := NewStore(client)

	_, ok := store.Get("wallet:1:nonce")
	assert.False(t, ok)

	store.Put("wallet:1:nonce", float64(7))
	value, ok := store.Get("wallet:1:nonce")
	require.True(t, ok)
	assert.Equal(t, float64(7), value)

	assert.Contains(t, store.Keys(), "wallet:1:nonce")

	store.Delete("wallet:1:nonce")
	_, ok = store.Get("wallet:1:nonce")
	assert.False(t, ok)
	assert.NotContains(t, store.Keys(), "wallet:1:nonce")
}

func TestStore_Clear(t *testing.T) {
	client := testRedisClient(t)
	store := NewStore(client)

	store.Put("a", float64(1))
	store.Put("b", float64(2))
	assert.Len(t, store.Keys(), 2)

	store.Clear()
	assert.Empty(t, store.Keys())
}

func TestStore_PutReleasesLock(t *testing.T) {
	client := testRedisClient(t)
	store := NewStore(client)

	ctx := context.Background()
	require.NoError(t, store.Lock(ctx, "wallet:1:nonce"))

	store.Put("wallet:1:nonce", float64(3))

	// The lock was released as a side effect of Put, so a fresh Lock call
	// succeeds immediately instead of blocking.
	lockCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	require.NoError(t, store.Lock(lockCtx, "wallet:1:nonce"))
	store.Release("wallet:1:nonce")
}

func TestStore_LockExcludesConcurrentHolders(t *testing.T) {
	client := testRedisClient(t)
	store := NewStore(client, WithLockAcquireTimeout(3*time.Second))

	ctx := context.Background()
	require.NoError(t, store.Lock(ctx, "wallet:1:nonce"))

	var wg sync.WaitGroup
	acquired := make(chan struct{}, 1)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := store.Lock(ctx, "wallet:1:nonce"); err == nil {
			acquired <- struct{}{}
		}
	}()

	select {
	case <-acquired:
		t.Fatal("second Lock call should not have acquired the lock while the first is held")
	case <-time.After(200 * time.Millisecond):
	}

	store.Release("wallet:1:nonce")
	wg.Wait()
}

func TestStore_LockTimesOut(t *testing.T) {
	client := testRedisClient(t)
	store := NewStore(client, WithLockAcquireTimeout(200*time.Millisecond))

	ctx := context.Background()
	require.NoError(t, store.Lock(ctx, "wallet:1:nonce"))
	defer store.Release("wallet:1:nonce")

	err := store.Lock(ctx, "wallet:1:nonce")
	assert.ErrorIs(t, err, txpipe.ErrLockTimeout)
}
