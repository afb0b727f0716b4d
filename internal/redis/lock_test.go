package redisclient

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLockerClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestWithProviderLockAcquiresAndReleases(t *testing.T) {
	mr, client := newLockerClient(t)
	locker := NewRedisProviderLocker(client, 5*time.Second, 3, 10*time.Millisecond)
	providerID := uuid.New()
	key := fmt.Sprintf("lock:care-provider:%s", providerID)

	var sawKey bool
	err := locker.WithProviderLock(context.Background(), providerID, func(ctx context.Context) error {
		sawKey = mr.Exists(key)
		return nil
	})
	require.NoError(t, err)
	assert.True(t, sawKey, "lock key should be held inside the critical section")
	assert.False(t, mr.Exists(key), "lock key should be released afterwards")
}

func TestWithProviderLockPropagatesCallbackError(t *testing.T) {
	mr, client := newLockerClient(t)
	locker := NewRedisProviderLocker(client, 5*time.Second, 1, 0)
	providerID := uuid.New()

	sentinel := errors.New("booking failed")
	err := locker.WithProviderLock(context.Background(), providerID, func(ctx context.Context) error {
		return sentinel
	})
	assert.ErrorIs(t, err, sentinel)
	assert.False(t, mr.Exists(fmt.Sprintf("lock:care-provider:%s", providerID)),
		"lock must be released even when the callback fails")
}

func TestWithProviderLockContention(t *testing.T) {
	_, client := newLockerClient(t)
	locker := NewRedisProviderLocker(client, 5*time.Second, 3, time.Millisecond)
	providerID := uuid.New()
	key := fmt.Sprintf("lock:care-provider:%s", providerID)

	// Another holder owns the key; the bounded wait must give up with
	// ErrLockNotAcquired rather than block.
	require.NoError(t, client.Set(context.Background(), key, "other-token", time.Minute).Err())

	err := locker.WithProviderLock(context.Background(), providerID, func(ctx context.Context) error {
		t.Fatal("critical section must not run without the lock")
		return nil
	})
	assert.ErrorIs(t, err, ErrLockNotAcquired)

	// The contender must not have touched the holder's key.
	val, err := client.Get(context.Background(), key).Result()
	require.NoError(t, err)
	assert.Equal(t, "other-token", val)
}

func TestWithProviderLockWaitsOutContention(t *testing.T) {
	mr, client := newLockerClient(t)
	locker := NewRedisProviderLocker(client, 5*time.Second, 5, 5*time.Millisecond)
	providerID := uuid.New()
	key := fmt.Sprintf("lock:care-provider:%s", providerID)

	require.NoError(t, client.Set(context.Background(), key, "other-token", 10*time.Millisecond).Err())

	// miniredis does not expire keys on its own clock; advance it so
	// the holder's TTL lapses during the retry backoff.
	mr.FastForward(20 * time.Millisecond)

	ran := false
	err := locker.WithProviderLock(context.Background(), providerID, func(ctx context.Context) error {
		ran = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)
}

func TestWithProviderLockTokenSafeRelease(t *testing.T) {
	mr, client := newLockerClient(t)
	locker := NewRedisProviderLocker(client, 5*time.Second, 1, 0)
	providerID := uuid.New()
	key := fmt.Sprintf("lock:care-provider:%s", providerID)

	err := locker.WithProviderLock(context.Background(), providerID, func(ctx context.Context) error {
		// Simulate the TTL expiring mid-section and another request
		// taking the lock. Release must leave the new holder alone.
		mr.Del(key)
		require.NoError(t, client.Set(context.Background(), key, "new-holder", time.Minute).Err())
		return nil
	})
	require.NoError(t, err)

	val, err := client.Get(context.Background(), key).Result()
	require.NoError(t, err)
	assert.Equal(t, "new-holder", val)
}

func TestWithProviderLockHonorsContextCancel(t *testing.T) {
	_, client := newLockerClient(t)
	locker := NewRedisProviderLocker(client, 5*time.Second, 10, 50*time.Millisecond)
	providerID := uuid.New()
	key := fmt.Sprintf("lock:care-provider:%s", providerID)

	require.NoError(t, client.Set(context.Background(), key, "other-token", time.Minute).Err())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := locker.WithProviderLock(ctx, providerID, func(ctx context.Context) error {
		t.Fatal("critical section must not run")
		return nil
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
