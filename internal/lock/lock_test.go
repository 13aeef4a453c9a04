package lock

import (
	"context"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisLocker(t *testing.T, wait time.Duration) (*RedisLocker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisLocker(client, time.Second, wait), mr
}

func TestRedisLockerExcludesSecondHolder(t *testing.T) {
	locker, mr := newRedisLocker(t, 100*time.Millisecond)
	ctx := context.Background()

	release, err := locker.Acquire(ctx, "escrow:1")
	require.NoError(t, err)
	assert.True(t, mr.Exists(keyPrefix+"escrow:1"))

	_, err = locker.Acquire(ctx, "escrow:1")
	assert.ErrorIs(t, err, ErrNotAcquired)

	other, err := locker.Acquire(ctx, "escrow:2")
	require.NoError(t, err)
	other()

	release()
	release()
	assert.False(t, mr.Exists(keyPrefix+"escrow:1"))

	again, err := locker.Acquire(ctx, "escrow:1")
	require.NoError(t, err)
	again()
}

func TestRedisLockerReleaseKeepsForeignOwner(t *testing.T) {
	locker, mr := newRedisLocker(t, 100*time.Millisecond)

	release, err := locker.Acquire(context.Background(), "escrow:1")
	require.NoError(t, err)

	// Simulate expiry and takeover by another instance.
	require.NoError(t, mr.Set(keyPrefix+"escrow:1", "someone-else"))
	release()

	got, err := mr.Get(keyPrefix + "escrow:1")
	require.NoError(t, err)
	assert.Equal(t, "someone-else", got)
}

func TestLocalLockerSerializes(t *testing.T) {
	locker := NewLocalLocker()
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		maxSeen int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := locker.Acquire(ctx, "escrow:1")
			if !assert.NoError(t, err) {
				return
			}
			defer release()
			mu.Lock()
			inside++
			if inside > maxSeen {
				maxSeen = inside
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			inside--
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxSeen)
}

func TestLocalLockerHonorsContext(t *testing.T) {
	locker := NewLocalLocker()
	release, err := locker.Acquire(context.Background(), "k")
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = locker.Acquire(ctx, "k")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
