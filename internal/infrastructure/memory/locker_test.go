package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocker_MutualExclusion(t *testing.T) {
	locker := NewLocker()
	ctx := context.Background()

	ok, err := locker.TryAcquire(ctx, "conv:ai-generation", "holder-a", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = locker.TryAcquire(ctx, "conv:ai-generation", "holder-b", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	// Re-entry by the same holder refreshes rather than fails.
	ok, err = locker.TryAcquire(ctx, "conv:ai-generation", "holder-a", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLocker_RaceYieldsSingleWinner(t *testing.T) {
	locker := NewLocker()
	ctx := context.Background()

	const contenders = 32
	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0

	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := locker.TryAcquire(ctx, "race", uuid.NewString(), time.Minute)
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, winners)
}

func TestLocker_ExpiredLockIsAcquirable(t *testing.T) {
	locker := NewLocker()
	ctx := context.Background()

	ok, err := locker.TryAcquire(ctx, "conv", "crashed-holder", 20*time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)

	time.Sleep(30 * time.Millisecond)

	// No release ever happened; expiry alone voids the entry.
	ok, err = locker.TryAcquire(ctx, "conv", "next-holder", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLocker_ReleaseChecksToken(t *testing.T) {
	locker := NewLocker()
	ctx := context.Background()

	ok, err := locker.TryAcquire(ctx, "conv", "owner", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	// A stale caller releasing with the wrong token is a no-op.
	require.NoError(t, locker.Release(ctx, "conv", "stranger"))
	ok, err = locker.TryAcquire(ctx, "conv", "other", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, locker.Release(ctx, "conv", "owner"))
	ok, err = locker.TryAcquire(ctx, "conv", "other", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLocker_DeleteExpired(t *testing.T) {
	locker := NewLocker()
	ctx := context.Background()

	_, err := locker.TryAcquire(ctx, "stale", "a", -time.Second)
	require.NoError(t, err)
	_, err = locker.TryAcquire(ctx, "live", "b", time.Minute)
	require.NoError(t, err)

	n, err := locker.DeleteExpired(ctx, time.Now(), 100)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	ok, err := locker.TryAcquire(ctx, "live", "c", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPresenceStore_TTL(t *testing.T) {
	store := NewPresenceStore()
	ctx := context.Background()
	conversationID := uuid.New()
	actorID := uuid.New()

	require.NoError(t, store.SetTyping(ctx, conversationID, actorID, true, 20*time.Millisecond))
	typing, err := store.ListTyping(ctx, conversationID)
	require.NoError(t, err)
	assert.Len(t, typing, 1)

	time.Sleep(30 * time.Millisecond)
	typing, err = store.ListTyping(ctx, conversationID)
	require.NoError(t, err)
	assert.Empty(t, typing)
}

func TestPresenceStore_Off(t *testing.T) {
	store := NewPresenceStore()
	ctx := context.Background()
	conversationID := uuid.New()
	actorID := uuid.New()

	require.NoError(t, store.SetTyping(ctx, conversationID, actorID, true, time.Minute))
	require.NoError(t, store.SetTyping(ctx, conversationID, actorID, false, 0))

	typing, err := store.ListTyping(ctx, conversationID)
	require.NoError(t, err)
	assert.Empty(t, typing)
}
